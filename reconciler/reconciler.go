// Package reconciler runs a periodic job that detects containers the daemon
// reports as no longer running and transitions their Project out of
// `running`.
//
// Grounded on the teacher's build/expiration.go StartExpirationCleanupLoop
// ticker idiom, generalized from expiration-cleanup to status-reconciliation
// and with per-tick concurrency via golang.org/x/sync/errgroup instead of the
// teacher's sequential loop.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/models"
	"github.com/corvus-paas/controlplane/store"
)

// Reconciler owns the ticker loop. One instance runs for the lifetime of the
// process, started and stopped by engine.Engine.
type Reconciler struct {
	store    *store.Store
	daemon   daemon.Client
	logger   *slog.Logger
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// New constructs a Reconciler with the given tick interval.
func New(s *store.Store, d daemon.Client, logger *slog.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{store: s, daemon: d, logger: logger, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the ticker loop until ctx is cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass, exported so tests can drive it
// synchronously without waiting for the ticker.
func (r *Reconciler) Tick(ctx context.Context) {
	running, err := r.store.ListRunning()
	if err != nil {
		r.logger.Error("reconciler: list running projects failed", "error", err)
		return
	}
	if len(running) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, project := range running {
		project := project
		group.Go(func() error {
			r.reconcileOne(groupCtx, project)
			return nil
		})
	}
	_ = group.Wait()
}

func (r *Reconciler) reconcileOne(ctx context.Context, project *models.Project) {
	if project.ContainerID == "" {
		return
	}

	info, err := r.daemon.InspectContainer(ctx, project.ContainerID)
	switch {
	case err == nil && info.Running:
		return
	case err == nil && !info.Running:
		r.transitionStopped(project)
	case corvuserr.OfKind(err, corvuserr.KindNotFound):
		r.transitionStopped(project)
	default:
		r.logger.Error("reconciler: inspect failed", "project_id", project.ID, "container_id", project.ContainerID, "error", err)
	}
}

func (r *Reconciler) transitionStopped(project *models.Project) {
	project.Status = models.StatusStopped
	now := time.Now().UTC()
	project.StoppedAt = &now
	if err := r.store.Update(project); err != nil {
		r.logger.Error("reconciler: persist stopped project failed", "project_id", project.ID, "error", err)
		return
	}
	r.logger.Info("reconciler: transitioned to stopped", "project_id", project.ID)
}
