package models

// Team, CourseOffering, and User model the external, out-of-core-scope
// collaborators the control plane depends on. Only the fields the control
// plane actually reads are modeled; the full relational schema (enrollments,
// course metadata, grading, and so on) lives in the collaborator system.

// Team is the tenant the core deploys projects on behalf of.
type Team struct {
	ID               string `json:"id" db:"id"`
	Name             string `json:"name" db:"name"`
	CourseOfferingID string `json:"course_offering_id" db:"course_offering_id"`
}

// OfferingSettings is the typed form of CourseOffering.settings, which is
// stored as opaque JSON by the collaborator system.
type OfferingSettings struct {
	ServerLocked bool     `json:"server_locked"`
	ProjectTags  []string `json:"project_tags"`
}

// HasTag reports whether label is already a recognized tag for this offering.
func (s OfferingSettings) HasTag(label string) bool {
	for _, t := range s.ProjectTags {
		if t == label {
			return true
		}
	}
	return false
}

// CourseOffering is the semester-scoped grouping of teams.
type CourseOffering struct {
	ID       string           `json:"id" db:"id"`
	Name     string           `json:"name" db:"name"`
	Settings OfferingSettings `json:"settings" db:"settings"`
}

// User identifies a caller for authorization and attribution purposes.
type User struct {
	ID      string `json:"id" db:"id"`
	IsAdmin bool   `json:"is_admin" db:"is_admin"`
}
