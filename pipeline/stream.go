package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/models"
)

// DeployStream is the channel-backed iterator form of the streaming deploy.
// initBuild has already run by the time DeployStreaming returns one; Next
// yields the live build event stream; Close runs completeBuild against
// whatever the caller observed.
type DeployStream struct {
	pipeline      *Pipeline
	project       *models.Project
	canonicalName string
	cloneDir      string
	imageRef      string
	events        <-chan daemon.BuildEvent
	buildLog      strings.Builder
	failed        bool
	closed        bool
}

// DeployStreaming creates the project row, pre-empts siblings, reconciles
// any name collision, ensures the network, clones the repository, and
// starts the build, returning a stream the caller drives to completion with
// Next/Close.
func (p *Pipeline) DeployStreaming(ctx context.Context, in DeployInput) (*DeployStream, error) {
	callerID := ""
	if in.DeployedByID != nil {
		callerID = *in.DeployedByID
	}
	team, err := p.checkDeployPermission(in.TeamID, callerID)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		TeamID:               in.TeamID,
		DeployedByID:         in.DeployedByID,
		GitHubURL:            in.GitHubURL,
		Status:               models.StatusBuilding,
		BuildArgs:            in.BuildArgs,
		EnvVars:              in.EnvVars,
		DataFile:             in.DataFilePath,
		OriginalDataFileName: in.OriginalFileName,
	}
	if err := p.store.CreateProject(project); err != nil {
		return nil, fmt.Errorf("create project row: %w", err)
	}
	dl := p.newDeployLogger(project)
	dl.info("streaming deploy started", "github_url", in.GitHubURL)

	canonicalName := normalizedTeamName(team.Name)

	p.preemptSiblings(ctx, in.TeamID, project.ID)
	p.reconcileNameCollision(ctx, canonicalName)

	if err := EnsureNetwork(ctx, p.daemon, p.cfg.ProjectsNetwork); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "ensure network", err)
	}

	cloneDir := filepath.Join(os.TempDir(), fmt.Sprintf("project-%d-%s", time.Now().UnixMilli(), repoSlug(in.GitHubURL)))
	var cloneLog strings.Builder
	if err := p.gitclone(ctx, in.GitHubURL, cloneDir, &cloneLog); err != nil {
		os.RemoveAll(cloneDir)
		project.BuildLogs = cloneLog.String()
		return nil, dl.fail(corvuserr.KindBuildFailure, "clone repository", err)
	}

	imageRef := canonicalName + ":latest"
	events, err := p.daemon.BuildImage(ctx, cloneDir, imageRef, in.BuildArgs)
	if err != nil {
		os.RemoveAll(cloneDir)
		return nil, dl.fail(corvuserr.KindBuildFailure, "build image", err)
	}

	stream := &DeployStream{
		pipeline:      p,
		project:       project,
		canonicalName: canonicalName,
		cloneDir:      cloneDir,
		imageRef:      imageRef,
		events:        events,
	}
	stream.buildLog.WriteString(cloneLog.String())
	return stream, nil
}

// Next yields the next raw build event and accumulates its text. The second
// return value is false once the build event stream has ended — the caller
// must then call Close.
func (s *DeployStream) Next(ctx context.Context) (daemon.BuildEvent, bool) {
	select {
	case <-ctx.Done():
		s.failed = true
		return daemon.BuildEvent{}, false
	case ev, ok := <-s.events:
		if !ok {
			return daemon.BuildEvent{}, false
		}
		switch {
		case ev.Error != "":
			s.buildLog.WriteString("ERROR: " + ev.Error + "\n")
			s.failed = true
		case ev.Stream != "":
			s.buildLog.WriteString(ev.Stream)
		case ev.Status != "":
			line := ev.Status
			if ev.Progress != "" {
				line += " " + ev.Progress
			}
			s.buildLog.WriteString(line + "\n")
		}
		return ev, true
	}
}

// Close finalizes the project from the accumulated build logs — resolving
// the image hash and creating/starting the container on success — or marks
// the Project failed if the stream ended in error or was abandoned early by
// the caller (disconnect). Always removes the temp clone directory. Only the
// first call finalizes; a later call is a no-op returning the same Project
// and a nil error.
func (s *DeployStream) Close(ctx context.Context) (*models.Project, error) {
	if s.closed {
		return s.project, nil
	}
	s.closed = true
	defer os.RemoveAll(s.cloneDir)

	p := s.pipeline
	dl := p.newDeployLogger(s.project)
	s.project.BuildLogs = s.buildLog.String()

	if !s.failed {
		// A caller that stops calling Next before the event stream has
		// ended has abandoned the build.
		select {
		case _, ok := <-s.events:
			s.failed = ok
		default:
			s.failed = true
		}
	}
	if s.failed {
		return nil, dl.fail(corvuserr.KindBuildFailure, "build image", fmt.Errorf("build reported failure or was interrupted"))
	}

	info, err := p.daemon.InspectImage(ctx, s.imageRef)
	if err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "resolve image hash", err)
	}
	s.project.ImageHash = info.ID
	if err := p.store.Update(s.project); err != nil {
		p.logger.Error("failed to persist build logs and image hash", "project_id", s.project.ID, "error", err)
	}

	if err := p.createStartInspect(ctx, s.project, s.canonicalName, info.ID); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "create container", err)
	}

	if err := p.store.Update(s.project); err != nil {
		return nil, fmt.Errorf("persist deployed project: %w", err)
	}
	dl.info("streaming deploy succeeded", "container_id", s.project.ContainerID)
	return s.project, nil
}
