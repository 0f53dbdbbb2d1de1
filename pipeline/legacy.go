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

// DBVariant selects the sidecar database image for DeployLegacyTwoContainer.
type DBVariant string

const (
	VariantJSON DBVariant = "json"
	VariantSQL  DBVariant = "sql"
)

// legacyStartCommand is the fixed entrypoint forced onto the application
// container in the two-container path, overriding whatever CMD its image
// declares — the legacy Flask projects this variant serves all start the
// same way.
var legacyStartCommand = []string{"flask", "run", "--host=0.0.0.0", "--port=5000"}

func dbImageAndEnv(variant DBVariant, dbAlias string) (string, map[string]string, error) {
	switch variant {
	case VariantJSON:
		return "mongo:6", map[string]string{
			"MONGO_INITDB_DATABASE": dbAlias,
		}, nil
	case VariantSQL:
		return "mysql:8", map[string]string{
			"MYSQL_ALLOW_EMPTY_PASSWORD": "yes",
			"MYSQL_DATABASE":             dbAlias,
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown db variant %q", variant)
	}
}

// DeployLegacyTwoContainer runs the same deploy protocol as Deploy, plus a
// sidecar database container sharing the project network under alias
// "{team}-db", with DB_NAME injected into the application container's
// environment and its start command forced to the legacy Flask entrypoint.
func (p *Pipeline) DeployLegacyTwoContainer(ctx context.Context, in DeployInput, variant DBVariant) (*models.Project, error) {
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
	dl.info("legacy two-container deploy started", "github_url", in.GitHubURL, "variant", variant)

	canonicalName := normalizedTeamName(team.Name)
	dbAlias := canonicalName + "-db"

	p.preemptSiblings(ctx, in.TeamID, project.ID)
	p.reconcileNameCollision(ctx, canonicalName)
	p.reconcileNameCollision(ctx, dbAlias)

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

	dbImage, dbEnv, err := dbImageAndEnv(variant, dbAlias)
	if err != nil {
		return nil, dl.fail(corvuserr.KindBadRequest, "resolve db variant", err)
	}
	dbSpec := daemon.ContainerSpec{
		Name:                 dbAlias,
		Image:                dbImage,
		Env:                  dbEnv,
		MemoryLimitMiB:       p.memoryCap(),
		NetworkName:          p.cfg.ProjectsNetwork,
		NetworkAlias:         dbAlias,
		RestartUnlessStopped: true,
	}
	dbContainerID, err := p.daemon.CreateContainer(ctx, dbSpec)
	if err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "create db sidecar", err)
	}
	if err := p.daemon.StartContainer(ctx, dbContainerID); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "start db sidecar", err)
	}

	if project.EnvVars == nil {
		project.EnvVars = map[string]string{}
	}
	project.EnvVars["DB_NAME"] = dbAlias

	if err := p.createStartInspect(ctx, project, canonicalName, info.ID, legacyStartCommand...); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "create app container", err)
	}

	if err := p.store.Update(project); err != nil {
		return nil, fmt.Errorf("persist deployed project: %w", err)
	}
	dl.info("legacy two-container deploy succeeded", "container_id", project.ContainerID, "db_alias", dbAlias)
	return project, nil
}

func (p *Pipeline) memoryCap() int64 {
	if p.cfg.ContainerMemoryCapMiB == 0 {
		return containerMemoryCapDefaultMiB
	}
	return p.cfg.ContainerMemoryCapMiB
}
