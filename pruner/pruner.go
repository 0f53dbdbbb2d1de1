// Package pruner reclaims containers, images, and data files for projects
// that are no longer running and not protected by a tag, either on a daily
// schedule or on demand for a single project.
//
// Grounded on the teacher's build/expiration.go cleanup idiom for the
// per-project removal sequence, generalized to add image-protection and
// data-file-rewrite rules, with the scheduled mode driven by robfig/cron/v3
// (matching the rest of the pack's use of that library for daily jobs) and
// per-candidate concurrency via golang.org/x/sync/errgroup.
package pruner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/models"
	"github.com/corvus-paas/controlplane/store"
)

// Result aggregates the outcome of a scheduled prune run.
type Result struct {
	TotalFound   int      `json:"total_found"`
	SuccessCount int      `json:"success_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors,omitempty"`
}

// Pruner owns the cron schedule for the daily prune job and exposes the
// per-project routine for on-demand use.
type Pruner struct {
	store  *store.Store
	daemon daemon.Client
	logger *slog.Logger
	cfg    *config.AppConfig

	cron    *cron.Cron
	entryID cron.EntryID
}

// New constructs a Pruner. Start registers the cron schedule from
// cfg.PrunerSchedule; construction alone does not.
func New(s *store.Store, d daemon.Client, logger *slog.Logger, cfg *config.AppConfig) *Pruner {
	return &Pruner{store: s, daemon: d, logger: logger, cfg: cfg, cron: cron.New()}
}

// Start registers the scheduled prune job and starts the cron scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	schedule := p.cfg.PrunerSchedule
	if schedule == "" {
		schedule = "0 2 * * *"
	}
	id, err := p.cron.AddFunc(schedule, func() {
		result, err := p.PruneAll(ctx)
		if err != nil {
			p.logger.Error("scheduled prune failed", "error", err)
			return
		}
		p.logger.Info("scheduled prune complete", "total_found", result.TotalFound, "success", result.SuccessCount, "errors", result.ErrorCount)
	})
	if err != nil {
		return fmt.Errorf("register prune schedule %q: %w", schedule, err)
	}
	p.entryID = id
	p.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight job.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// protectedImageSet computes the union of running and tagged-not-pruned
// image hashes, optionally excluding one project id (the on-demand
// single-project path).
func (p *Pruner) protectedImageSet(excludeProjectID string) (map[string]bool, error) {
	protected := map[string]bool{}

	running, err := p.store.ListProtected()
	if err != nil {
		return nil, fmt.Errorf("list protected projects: %w", err)
	}
	for _, proj := range running {
		if proj.ID == excludeProjectID {
			continue
		}
		if proj.ImageHash != "" {
			protected[proj.ImageHash] = true
		}
	}
	return protected, nil
}

// PruneAll runs the scheduled mode: prune every candidate concurrently,
// aggregating outcomes.
func (p *Pruner) PruneAll(ctx context.Context) (Result, error) {
	candidates, err := p.store.ListPruneCandidates()
	if err != nil {
		return Result{}, fmt.Errorf("list prune candidates: %w", err)
	}

	protected, err := p.protectedImageSet("")
	if err != nil {
		return Result{}, err
	}

	result := Result{TotalFound: len(candidates)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, candidate := range candidates {
		candidate := candidate
		group.Go(func() error {
			err := p.pruneOne(groupCtx, candidate, protected)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ErrorCount++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", candidate.ID, err))
			} else {
				result.SuccessCount++
			}
			return nil
		})
	}
	_ = group.Wait()
	return result, nil
}

// PruneProject prunes a single project on demand, excluding it from its own
// protected-image computation so its image can be removed even though it is
// (about to stop being) the record that was protecting it.
func (p *Pruner) PruneProject(ctx context.Context, projectID string) (Result, error) {
	project, err := p.store.GetProject(projectID)
	if err != nil {
		return Result{}, corvuserr.New(corvuserr.KindNotFound, "project not found", err)
	}
	if project.Status == models.StatusPruned {
		return Result{}, corvuserr.New(corvuserr.KindBadRequest, "project already pruned", nil)
	}
	protected, err := p.protectedImageSet(projectID)
	if err != nil {
		return Result{}, err
	}
	if err := p.pruneOne(ctx, project, protected); err != nil {
		return Result{TotalFound: 1, ErrorCount: 1, Errors: []string{err.Error()}}, err
	}
	return Result{TotalFound: 1, SuccessCount: 1}, nil
}

// pruneOne implements the four-step per-project prune procedure: kill and
// remove the container, remove the image if unprotected, delete the data
// file, and mark the project pruned.
func (p *Pruner) pruneOne(ctx context.Context, project *models.Project, protected map[string]bool) error {
	containerRemoved := p.removeContainer(ctx, project)

	if project.ImageHash != "" && !protected[project.ImageHash] {
		if err := p.removeImage(ctx, project.ImageHash); err != nil {
			p.logger.Error("pruner: remove image failed", "project_id", project.ID, "image_hash", project.ImageHash, "error", err)
		}
	}

	p.removeDataFile(project)

	if !containerRemoved {
		return fmt.Errorf("container removal did not complete for project %s", project.ID)
	}

	project.Status = models.StatusPruned
	project.ContainerID = ""
	project.ContainerName = ""
	project.DataFile = nil
	if err := p.store.Update(project); err != nil {
		return fmt.Errorf("persist pruned project %s: %w", project.ID, err)
	}
	p.logger.Info("pruner: project pruned", "project_id", project.ID)
	return nil
}

// removeContainer implements step 1: best-effort stop then remove, with
// daemon NotFound counting as success.
func (p *Pruner) removeContainer(ctx context.Context, project *models.Project) bool {
	if project.ContainerID == "" {
		return true
	}
	if err := p.daemon.KillContainer(ctx, project.ContainerID); err != nil {
		p.logger.Warn("pruner: kill before remove failed", "project_id", project.ID, "error", err)
	}
	if err := p.daemon.RemoveContainer(ctx, project.ContainerID, true); err != nil {
		p.logger.Error("pruner: remove container failed", "project_id", project.ID, "container_id", project.ContainerID, "error", err)
		return false
	}
	return true
}

// removeImage implements step 2: remove the image, and on Conflict (still
// referenced) stop and remove every container built from it, then retry.
func (p *Pruner) removeImage(ctx context.Context, imageHash string) error {
	err := p.daemon.RemoveImage(ctx, imageHash)
	if err == nil || corvuserr.OfKind(err, corvuserr.KindNotFound) {
		return nil
	}
	if !corvuserr.OfKind(err, corvuserr.KindConflict) {
		return err
	}

	containers, listErr := p.daemon.ListContainers(ctx, true)
	if listErr != nil {
		return fmt.Errorf("list containers referencing image %q: %w", imageHash, listErr)
	}
	for _, c := range containers {
		if !referencesImage(c.Image, imageHash) {
			continue
		}
		if err := p.daemon.KillContainer(ctx, c.ID); err != nil {
			p.logger.Warn("pruner: kill container referencing image failed", "container_id", c.ID, "error", err)
		}
		if err := p.daemon.RemoveContainer(ctx, c.ID, true); err != nil {
			p.logger.Warn("pruner: remove container referencing image failed", "container_id", c.ID, "error", err)
		}
	}

	err = p.daemon.RemoveImage(ctx, imageHash)
	if err == nil || corvuserr.OfKind(err, corvuserr.KindNotFound) {
		return nil
	}
	return err
}

func referencesImage(containerImage, imageHash string) bool {
	return strings.HasPrefix(containerImage, imageHash) || strings.HasPrefix(imageHash, containerImage)
}

// removeDataFile implements step 3: rewrite the container-side prefix to the
// host directory when configured, then remove the file if it exists.
func (p *Pruner) removeDataFile(project *models.Project) {
	if project.DataFile == nil || *project.DataFile == "" {
		return
	}
	path := p.resolveDataFileHostPath(*project.DataFile)
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		p.logger.Error("pruner: remove data file failed", "project_id", project.ID, "path", path, "error", err)
	}
}

func (p *Pruner) resolveDataFileHostPath(dataFile string) string {
	if p.cfg.HostDataDir != "" && strings.HasPrefix(dataFile, p.cfg.ContainerDataDir) {
		return p.cfg.HostDataDir + strings.TrimPrefix(dataFile, p.cfg.ContainerDataDir)
	}
	return dataFile
}
