package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/models"
)

// Redeploy creates a new Project reusing the source project's image, build
// args, data file, env vars, and tag. The validation, pre-emption, network,
// create, start, and persist steps of the deploy protocol apply; clone and
// build are skipped since the existing image is reused as-is.
func (p *Pipeline) Redeploy(ctx context.Context, sourceProjectID string, deployedBy *string) (*models.Project, error) {
	source, err := p.store.GetProject(sourceProjectID)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindNotFound, "source project not found", err)
	}

	callerID := ""
	if deployedBy != nil {
		callerID = *deployedBy
	}
	team, err := p.checkDeployPermission(source.TeamID, callerID)
	if err != nil {
		return nil, err
	}

	if source.ImageHash == "" {
		return nil, corvuserr.New(corvuserr.KindNotFound, "source project has no image", nil)
	}
	if _, err := p.daemon.InspectImage(ctx, source.ImageHash); err != nil {
		return nil, corvuserr.New(corvuserr.KindNotFound, "source image no longer exists in daemon", err)
	}
	if source.DataFile != nil && *source.DataFile != "" {
		if _, err := os.Stat(*source.DataFile); err != nil {
			return nil, corvuserr.New(corvuserr.KindNotFound, "source data file no longer exists on disk", err)
		}
	}

	project := &models.Project{
		TeamID:               source.TeamID,
		DeployedByID:         deployedBy,
		GitHubURL:            source.GitHubURL,
		ImageHash:            source.ImageHash,
		Tag:                  source.Tag,
		Status:               models.StatusDeploying,
		BuildArgs:            source.BuildArgs,
		EnvVars:              source.EnvVars,
		DataFile:             source.DataFile,
		OriginalDataFileName: source.OriginalDataFileName,
	}
	if err := p.store.CreateProject(project); err != nil {
		return nil, fmt.Errorf("create redeployed project row: %w", err)
	}
	dl := p.newDeployLogger(project)
	dl.info("redeploy started", "source_project_id", sourceProjectID)

	canonicalName := normalizedTeamName(team.Name)

	p.preemptSiblings(ctx, source.TeamID, project.ID)
	p.reconcileNameCollision(ctx, canonicalName)

	if err := EnsureNetwork(ctx, p.daemon, p.cfg.ProjectsNetwork); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "ensure network", err)
	}

	if err := p.createStartInspect(ctx, project, canonicalName, source.ImageHash); err != nil {
		return nil, dl.fail(corvuserr.KindDaemonError, "create container", err)
	}

	if err := p.store.Update(project); err != nil {
		return nil, fmt.Errorf("persist redeployed project: %w", err)
	}
	dl.info("redeploy succeeded", "container_id", project.ContainerID)
	return project, nil
}
