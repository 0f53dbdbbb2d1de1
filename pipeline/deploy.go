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
	"github.com/corvus-paas/controlplane/logtransport"
	"github.com/corvus-paas/controlplane/models"
)

// containerMemoryCapDefaultMiB is the default per-container memory ceiling,
// used when the operator has not overridden config.AppConfig.ContainerMemoryCapMiB.
const containerMemoryCapDefaultMiB = 800

// DeployInput is the caller-supplied shape for a brand new deploy.
type DeployInput struct {
	TeamID           string
	GitHubURL        string
	DeployedByID     *string
	BuildArgs        map[string]string
	EnvVars          map[string]string
	DataFilePath     *string // host path of an already-received upload, if any
	OriginalFileName *string
}

// Deploy provisions a brand new project end to end: validate, create the
// row, pre-empt siblings, reconcile any orphaned container, ensure the
// network, clone, build, resolve the image, create and start the
// container, and persist the result.
func (p *Pipeline) Deploy(ctx context.Context, in DeployInput) (*models.Project, error) {
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
	dl.info("deploy started", "github_url", in.GitHubURL)

	canonicalName := normalizedTeamName(team.Name)

	p.preemptSiblings(ctx, in.TeamID, project.ID)
	p.reconcileNameCollision(ctx, canonicalName)

	if err := EnsureNetwork(ctx, p.daemon, p.cfg.ProjectsNetwork); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "ensure network", err)
	}

	cloneDir := filepath.Join(os.TempDir(), fmt.Sprintf("project-%d-%s", time.Now().UnixMilli(), repoSlug(in.GitHubURL)))
	defer os.RemoveAll(cloneDir)

	var buildLog strings.Builder
	if err := p.gitclone(ctx, in.GitHubURL, cloneDir, &buildLog); err != nil {
		project.BuildLogs = buildLog.String()
		return nil, dl.fail(corvuserr.KindBuildFailure, "clone repository", err)
	}

	imageRef := canonicalName + ":latest"
	accumulated, buildFailed, err := p.runBuild(ctx, cloneDir, imageRef, in.BuildArgs, &buildLog)
	project.BuildLogs = buildLog.String()
	if err != nil {
		return nil, dl.fail(corvuserr.KindBuildFailure, "build image", err)
	}
	if buildFailed {
		return nil, dl.fail(corvuserr.KindBuildFailure, "build image", fmt.Errorf("build reported failure: %s", accumulated))
	}

	info, err := p.daemon.InspectImage(ctx, imageRef)
	if err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "resolve image hash", err)
	}
	project.ImageHash = info.ID
	if err := p.store.Update(project); err != nil {
		p.logger.Error("failed to persist build logs and image hash", "project_id", project.ID, "error", err)
	}

	if err := p.createStartInspect(ctx, project, canonicalName, info.ID); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "create container", err)
	}

	if err := p.store.Update(project); err != nil {
		return nil, fmt.Errorf("persist deployed project: %w", err)
	}
	dl.info("deploy succeeded", "container_id", project.ContainerID)
	return project, nil
}

// preemptSiblings opportunistically stops every other running project of
// the same team before this one takes its place.
func (p *Pipeline) preemptSiblings(ctx context.Context, teamID, excludeProjectID string) {
	siblings, err := p.store.ListByTeamAndStatus(teamID, models.StatusRunning)
	if err != nil {
		p.logger.Error("pre-emption: list running siblings failed", "team_id", teamID, "error", err)
		return
	}
	for _, sibling := range siblings {
		if sibling.ID == excludeProjectID {
			continue
		}
		p.stopContainerBestEffort(ctx, sibling)
	}
}

// stopContainerBestEffort kills a project's container and marks it stopped,
// tolerating a daemon NotFound as success (used by pre-emption).
func (p *Pipeline) stopContainerBestEffort(ctx context.Context, project *models.Project) {
	if project.ContainerID != "" {
		if err := p.daemon.KillContainer(ctx, project.ContainerID); err != nil {
			p.logger.Warn("best-effort kill failed", "project_id", project.ID, "container_id", project.ContainerID, "error", err)
		}
	}
	project.Status = models.StatusStopped
	now := time.Now().UTC()
	project.StoppedAt = &now
	project.FailedCheckCount = 0
	project.LastCheckedAt = nil
	if err := p.store.Update(project); err != nil {
		p.logger.Error("pre-emption: persist stopped project failed", "project_id", project.ID, "error", err)
	}
}

// reconcileNameCollision handles the case where the daemon holds a
// container under the canonical name that the repository has forgotten
// about (e.g. from a crash between create and persist); reconcile it away.
func (p *Pipeline) reconcileNameCollision(ctx context.Context, canonicalName string) {
	id, err := p.daemon.FindContainerByName(ctx, canonicalName)
	if err != nil || id == "" {
		return
	}
	if err := p.daemon.KillContainer(ctx, id); err != nil {
		p.logger.Warn("name collision: best-effort kill failed", "container_id", id, "error", err)
	}
	if err := p.daemon.RemoveContainer(ctx, id, true); err != nil {
		p.logger.Warn("name collision: best-effort remove failed", "container_id", id, "error", err)
	}
}

func (p *Pipeline) gitclone(ctx context.Context, repoURL, destinationDir string, logWriter *strings.Builder) error {
	return p.cloneFn(ctx, repoURL, destinationDir, logWriter)
}

// runBuild drives BuildImage to completion, draining the event stream
// through logtransport.AdaptBuildEvents and discarding the outbound events
// themselves (non-streaming Deploy does not relay anything live — the
// streaming variant, DeployStreaming, is the one that does).
func (p *Pipeline) runBuild(ctx context.Context, contextDir, imageRef string, buildArgs map[string]string, buildLog *strings.Builder) (string, bool, error) {
	raw, err := p.daemon.BuildImage(ctx, contextDir, imageRef, buildArgs)
	if err != nil {
		return "", false, err
	}
	events, accumulated := logtransport.AdaptBuildEvents("", raw)
	for range events {
	}
	text, failed := accumulated()
	buildLog.WriteString(text)
	return text, failed, nil
}

// createStartInspect creates the container from the resolved image hash,
// attaches it to the shared network under the canonical alias, starts it,
// and records the daemon-assigned identity on project; the caller persists
// it. cmd is nil for the
// single-container path; DeployLegacyTwoContainer passes a forced start
// command.
func (p *Pipeline) createStartInspect(ctx context.Context, project *models.Project, canonicalName, imageHash string, cmd ...string) error {
	spec := daemon.ContainerSpec{
		Name:                 canonicalName,
		Image:                imageHash,
		Cmd:                  cmd,
		Env:                  project.EnvVars,
		MemoryLimitMiB:       p.memoryCap(),
		NetworkName:          p.cfg.ProjectsNetwork,
		NetworkAlias:         canonicalName,
		RestartUnlessStopped: true,
	}
	if project.DataFile != nil && *project.DataFile != "" {
		containerPath := p.cfg.DataMountPath
		if project.OriginalDataFileName != nil && *project.OriginalDataFileName != "" {
			containerPath = filepath.Join(p.cfg.DataMountPath, *project.OriginalDataFileName)
		}
		spec.BindMounts = []daemon.BindMount{{
			HostPath:      *project.DataFile,
			ContainerPath: containerPath,
			ReadOnly:      true,
		}}
	}

	containerID, err := p.daemon.CreateContainer(ctx, spec)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := p.daemon.StartContainer(ctx, containerID); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	info, err := p.daemon.InspectContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("inspect container: %w", err)
	}

	project.ContainerID = info.ID
	project.ContainerName = canonicalName
	project.Ports = containerPortsToModel(info.Ports)
	project.Status = models.StatusRunning
	now := time.Now().UTC()
	project.DeployedAt = &now
	return nil
}

func containerPortsToModel(ports map[string][]daemon.PortBinding) models.PortMap {
	if len(ports) == 0 {
		return nil
	}
	out := make(models.PortMap, len(ports))
	for key, bindings := range ports {
		mapped := make([]models.PortBinding, len(bindings))
		for i, b := range bindings {
			mapped[i] = models.PortBinding{HostIP: b.HostIP, HostPort: b.HostPort}
		}
		out[key] = mapped
	}
	return out
}

// repoSlug derives a filesystem-safe fragment from a GitHub URL for the
// temporary clone directory name, e.g. "https://github.com/org/repo" -> "repo".
func repoSlug(githubURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(githubURL, "/"), ".git")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 || idx == len(trimmed)-1 {
		return "repo"
	}
	slug := trimmed[idx+1:]
	if slug == "" {
		return "repo"
	}
	return slug
}
