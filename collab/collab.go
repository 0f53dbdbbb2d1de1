// Package collab defines the external collaborator interfaces the core
// consults but does not own: Team and CourseOffering lookups, and the
// authorization oracle. The relational schema backing these — users,
// courses, enrollments — is owned by the course catalog system; this
// package specifies only the interface the core needs from it.
package collab

import "github.com/corvus-paas/controlplane/models"

// TeamStore resolves a team by id.
type TeamStore interface {
	GetTeam(id string) (*models.Team, error)
}

// CourseOfferingStore resolves a course offering and persists settings
// mutations (tag/untag append to or remove from project_tags).
type CourseOfferingStore interface {
	GetOffering(id string) (*models.CourseOffering, error)
	UpdateSettings(id string, settings models.OfferingSettings) error
	ListTeams(offeringID string) ([]*models.Team, error)
}

// AuthOracle is the synchronous permission predicate the pipeline consults
// before allowing a deploy or stop to proceed.
type AuthOracle interface {
	IsAdmin(userID string) bool
	IsInstructor(userID, offeringID string) bool
	IsMember(userID, teamID string) bool
}
