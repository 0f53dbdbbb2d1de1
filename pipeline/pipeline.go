// Package pipeline implements project deploys: Deploy, DeployStreaming,
// Redeploy, Stop, and DeployLegacyTwoContainer, the deploy protocol that
// drives them, and canonical project naming.
//
// Grounded on the teacher's build2 package (DeployerPipeline's struct shape,
// the clone-then-build-then-serve ordering of DeployGitHub), build2's
// pipeline_logger.go (per-deploy logging/failure helper, generalized here as
// deployLogger), build/pipeline_nginx_server.go (the deployToNginx body,
// relocated and generalized to createStartInspect since the spec's container is
// an arbitrary built image, not always an Nginx static-file server), and
// build2/pipeline_zip_deploy.go's RedeployExistingZip (skip-clone-skip-build
// shape, generalized to image-hash reuse).
package pipeline

import (
	"context"
	"io"
	"log/slog"

	"github.com/corvus-paas/controlplane/collab"
	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/gitclone"
	"github.com/corvus-paas/controlplane/store"
)

// Pipeline holds every dependency a deploy attempt needs. One instance is
// constructed at startup and shared across all requests — concurrency
// safety comes from each dependency's own thread-safety guarantees (the
// SDK client, the single-writer SQLite store), not from locking here.
type Pipeline struct {
	store   *store.Store
	daemon  daemon.Client
	teams   collab.TeamStore
	offer   collab.CourseOfferingStore
	auth    collab.AuthOracle
	logger  *slog.Logger
	cfg     *config.AppConfig
	cloneFn func(ctx context.Context, repoURL, destinationDir string, logWriter io.Writer) error
}

// New constructs a Pipeline from its dependencies.
func New(s *store.Store, d daemon.Client, teams collab.TeamStore, offer collab.CourseOfferingStore, auth collab.AuthOracle, logger *slog.Logger, cfg *config.AppConfig) *Pipeline {
	return &Pipeline{
		store: s, daemon: d, teams: teams, offer: offer, auth: auth, logger: logger, cfg: cfg,
		cloneFn: func(ctx context.Context, repoURL, destinationDir string, logWriter io.Writer) error {
			return gitclone.Clone(ctx, repoURL, "main", destinationDir, logWriter)
		},
	}
}
