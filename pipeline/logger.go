package pipeline

import (
	"log/slog"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/models"
)

// deployLogger bundles a project with the pipeline it belongs to so a
// failure anywhere in the deploy protocol can be logged and persisted in one
// call, mirroring the teacher's build2/pipeline_logger.go helper.
type deployLogger struct {
	pipeline *Pipeline
	project  *models.Project
}

func (p *Pipeline) newDeployLogger(project *models.Project) *deployLogger {
	return &deployLogger{pipeline: p, project: project}
}

func (l *deployLogger) info(msg string, args ...any) {
	l.pipeline.logger.Info(msg, append([]any{"project_id", l.project.ID}, args...)...)
}

// fail marks the project failed, persists it, logs the error, and returns a
// corvuserr-wrapped error for the caller to propagate. Clone, build, image
// resolution, and container create/start failures all route through here so
// the project's stored status always reflects the last attempt.
func (l *deployLogger) fail(kind corvuserr.Kind, step string, cause error) error {
	l.project.Status = models.StatusFailed
	if updateErr := l.pipeline.store.Update(l.project); updateErr != nil {
		l.pipeline.logger.Error("failed to persist failed status", "project_id", l.project.ID, "error", updateErr)
	}
	l.pipeline.logger.Error("deploy step failed", "project_id", l.project.ID, "step", step, "error", cause)
	return corvuserr.New(kind, step, cause)
}
