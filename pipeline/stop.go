package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/models"
)

// Stop checks the ordered permission predicate, force-kills the container
// (daemon NotFound is benign), and persists the stopped transition with the
// reconciler counters reset.
func (p *Pipeline) Stop(ctx context.Context, projectID, callerID string) (*models.Project, error) {
	project, err := p.store.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", projectID, err)
	}

	if err := p.checkStopPermission(project, callerID); err != nil {
		return nil, err
	}

	// A project with no container (never started, or already pruned) is
	// rejected with BadRequest rather than marked stopped.
	if project.ContainerID == "" {
		return nil, corvuserr.New(corvuserr.KindBadRequest, "project has no container", nil)
	}
	if err := p.daemon.KillContainer(ctx, project.ContainerID); err != nil {
		p.logger.Warn("stop: kill failed", "project_id", project.ID, "container_id", project.ContainerID, "error", err)
	}

	project.Status = models.StatusStopped
	now := time.Now().UTC()
	project.StoppedAt = &now
	project.FailedCheckCount = 0
	project.LastCheckedAt = nil
	if err := p.store.Update(project); err != nil {
		return nil, fmt.Errorf("persist stopped project: %w", err)
	}
	p.logger.Info("project stopped", "project_id", project.ID, "caller_id", callerID)
	return project, nil
}
