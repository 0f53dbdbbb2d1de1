// Package engine is the composition root: it wires the daemon adapter,
// store, collaborators, pipeline, reconciler, pruner, and tag/migration
// engine into one object and exposes every control-plane operation as plain
// methods, owning the lifecycle of the periodic jobs via Start/Stop instead
// of package-level state.
package engine

import (
	"context"
	"log/slog"

	"github.com/corvus-paas/controlplane/collab"
	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/logtransport"
	"github.com/corvus-paas/controlplane/models"
	"github.com/corvus-paas/controlplane/pipeline"
	"github.com/corvus-paas/controlplane/pruner"
	"github.com/corvus-paas/controlplane/reconciler"
	"github.com/corvus-paas/controlplane/store"
	"github.com/corvus-paas/controlplane/tagmigrate"
)

// Engine bundles every component of the control plane. One instance is
// constructed at startup in main.go and threaded through the HTTP façade.
type Engine struct {
	Store  *store.Store
	Daemon daemon.Client
	Logger *slog.Logger
	Config *config.AppConfig

	pipeline   *pipeline.Pipeline
	reconciler *reconciler.Reconciler
	pruner     *pruner.Pruner
	tagmigrate *tagmigrate.Engine
}

// New constructs an Engine from its dependencies. teams/offer/auth are the
// external collaborator lookups the core consults but does not own;
// store.Store itself satisfies all three when no richer implementation is
// available.
func New(s *store.Store, d daemon.Client, teams collab.TeamStore, offer collab.CourseOfferingStore, auth collab.AuthOracle, logger *slog.Logger, cfg *config.AppConfig) *Engine {
	return &Engine{
		Store:      s,
		Daemon:     d,
		Logger:     logger,
		Config:     cfg,
		pipeline:   pipeline.New(s, d, teams, offer, auth, logger, cfg),
		reconciler: reconciler.New(s, d, logger, cfg.ReconcilerInterval),
		pruner:     pruner.New(s, d, logger, cfg),
		tagmigrate: tagmigrate.New(s, d, teams, offer, logger, cfg),
	}
}

// Start launches the periodic reconciler and pruner jobs. Returns an error
// only if the pruner's cron schedule fails to parse.
func (e *Engine) Start(ctx context.Context) error {
	e.reconciler.Start(ctx)
	if err := e.pruner.Start(ctx); err != nil {
		return err
	}
	e.Logger.Info("engine started", "reconciler_interval", e.Config.ReconcilerInterval, "pruner_schedule", e.Config.PrunerSchedule)
	return nil
}

// Stop halts the periodic jobs and closes the daemon connection.
func (e *Engine) Stop() {
	e.reconciler.Stop()
	e.pruner.Stop()
	if err := e.Daemon.Close(); err != nil {
		e.Logger.Error("engine: close daemon client failed", "error", err)
	}
}

// Deploy, DeployStreaming, Redeploy, Stop, and DeployLegacyTwoContainer
// forward directly to the Deploy Pipeline.

func (e *Engine) Deploy(ctx context.Context, in pipeline.DeployInput) (*models.Project, error) {
	return e.pipeline.Deploy(ctx, in)
}

func (e *Engine) DeployStreaming(ctx context.Context, in pipeline.DeployInput) (*pipeline.DeployStream, error) {
	return e.pipeline.DeployStreaming(ctx, in)
}

func (e *Engine) Redeploy(ctx context.Context, sourceProjectID string, deployedBy *string) (*models.Project, error) {
	return e.pipeline.Redeploy(ctx, sourceProjectID, deployedBy)
}

func (e *Engine) StopProject(ctx context.Context, projectID, callerID string) (*models.Project, error) {
	return e.pipeline.Stop(ctx, projectID, callerID)
}

func (e *Engine) DeployLegacyTwoContainer(ctx context.Context, in pipeline.DeployInput, variant pipeline.DBVariant) (*models.Project, error) {
	return e.pipeline.DeployLegacyTwoContainer(ctx, in, variant)
}

// StreamRuntimeLogs opens a running project's multiplexed container logs as
// an outbound event stream.
func (e *Engine) StreamRuntimeLogs(ctx context.Context, projectID string, opts daemon.LogOptions) (<-chan logtransport.Event, error) {
	project, err := e.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	return logtransport.StreamRuntimeLogs(ctx, e.Daemon, project.ContainerID, opts)
}

// StreamBuildLogs replays a project's stored build log as a single event —
// the build already completed, so there is nothing to stream live; this
// exists so the façade has one uniform event-based API for both log
// surfaces.
func (e *Engine) StreamBuildLogs(projectID string) (<-chan logtransport.Event, error) {
	project, err := e.Store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	out := make(chan logtransport.Event, 1)
	out <- logtransport.Event{Type: logtransport.EventLog, Data: project.BuildLogs, ProjectID: project.ID}
	close(out)
	return out, nil
}

// PruneAllUntagged and PruneProject forward to the Pruning Engine.

func (e *Engine) PruneAllUntagged(ctx context.Context) (pruner.Result, error) {
	return e.pruner.PruneAll(ctx)
}

func (e *Engine) PruneProject(ctx context.Context, projectID string) (pruner.Result, error) {
	return e.pruner.PruneProject(ctx, projectID)
}

// TagCourseOffering, UntagCourseOffering, and MigrateForeignContainer
// forward to the Tag & Migration Engine.

func (e *Engine) TagCourseOffering(ctx context.Context, offeringID, label string) (tagmigrate.TagResult, error) {
	return e.tagmigrate.TagCourseOfferingProjects(ctx, offeringID, label)
}

func (e *Engine) UntagCourseOffering(ctx context.Context, offeringID, label string) (tagmigrate.UntagResult, error) {
	return e.tagmigrate.RemoveTagFromCourseOfferingProjects(ctx, offeringID, label)
}

func (e *Engine) MigrateForeignContainer(ctx context.Context, containerName, teamID string, githubURL, deployedBy *string) (*tagmigrate.MigrationReport, error) {
	return e.tagmigrate.MigrateProjectContainer(ctx, containerName, teamID, githubURL, deployedBy)
}
