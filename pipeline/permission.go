package pipeline

import (
	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/models"
)

// checkDeployPermission validates the team exists and, when the team's
// course offering is server-locked, that the caller is an admin or
// instructor.
func (p *Pipeline) checkDeployPermission(teamID, callerID string) (*models.Team, error) {
	team, err := p.teams.GetTeam(teamID)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindNotFound, "team not found", err)
	}

	offering, err := p.offer.GetOffering(team.CourseOfferingID)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindNotFound, "course offering not found", err)
	}

	if offering.Settings.ServerLocked && !p.auth.IsAdmin(callerID) && !p.auth.IsInstructor(callerID, offering.ID) {
		return nil, corvuserr.New(corvuserr.KindForbidden, "course offering is server-locked", nil)
	}
	return team, nil
}

// checkStopPermission evaluates, in order: admin always allowed; instructor
// allowed when locked; instructor or member allowed when unlocked.
func (p *Pipeline) checkStopPermission(project *models.Project, callerID string) error {
	if p.auth.IsAdmin(callerID) {
		return nil
	}

	team, err := p.teams.GetTeam(project.TeamID)
	if err != nil {
		return corvuserr.New(corvuserr.KindNotFound, "team not found", err)
	}
	offering, err := p.offer.GetOffering(team.CourseOfferingID)
	if err != nil {
		return corvuserr.New(corvuserr.KindNotFound, "course offering not found", err)
	}

	isInstructor := p.auth.IsInstructor(callerID, offering.ID)
	if offering.Settings.ServerLocked {
		if isInstructor {
			return nil
		}
		return corvuserr.New(corvuserr.KindForbidden, "course offering is server-locked", nil)
	}

	if isInstructor || p.auth.IsMember(callerID, project.TeamID) {
		return nil
	}
	return corvuserr.New(corvuserr.KindForbidden, "caller is neither instructor nor team member", nil)
}
