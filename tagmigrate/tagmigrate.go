// Package tagmigrate pins a course offering's teams' preferred images
// against automatic pruning, releases that pin, and adopts a foreign
// (out-of-band-created) container into the repository under a unique
// network alias.
//
// Grounded on the teacher's docker/nginx.go network-attachment dance
// (inspect, disconnect-if-different-alias, reconnect) generalized into an
// alias-uniqueness retry loop, and on pipeline.EnsureNetwork for the
// shared-network precondition.
package tagmigrate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corvus-paas/controlplane/collab"
	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/models"
	"github.com/corvus-paas/controlplane/pipeline"
	"github.com/corvus-paas/controlplane/store"
)

const maxAliasRetries = 10

// Engine implements TagCourseOfferingProjects, RemoveTagFromCourseOfferingProjects,
// and MigrateProjectContainer.
type Engine struct {
	store  *store.Store
	daemon daemon.Client
	teams  collab.TeamStore
	offer  collab.CourseOfferingStore
	logger *slog.Logger
	cfg    *config.AppConfig
}

// New constructs a tag/migration Engine.
func New(s *store.Store, d daemon.Client, teams collab.TeamStore, offer collab.CourseOfferingStore, logger *slog.Logger, cfg *config.AppConfig) *Engine {
	return &Engine{store: s, daemon: d, teams: teams, offer: offer, logger: logger, cfg: cfg}
}

// TagResult is the outcome of TagCourseOfferingProjects.
type TagResult struct {
	Tagged  int      `json:"tagged"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// UntagResult is the outcome of RemoveTagFromCourseOfferingProjects.
type UntagResult struct {
	Untagged int      `json:"untagged"`
	Errors   []string `json:"errors,omitempty"`
}

// MigrationReport is the outcome of MigrateProjectContainer.
type MigrationReport struct {
	ProjectID string `json:"project_id"`
	Alias     string `json:"alias"`
	Moved     bool   `json:"moved"`
	Created   bool   `json:"created"`
}

// TagCourseOfferingProjects pins every team's preferred project's image
// under a shared label, protecting it from pruning.
func (e *Engine) TagCourseOfferingProjects(ctx context.Context, offeringID, label string) (TagResult, error) {
	offering, err := e.offer.GetOffering(offeringID)
	if err != nil {
		return TagResult{}, corvuserr.New(corvuserr.KindNotFound, "course offering not found", err)
	}
	if offering.Settings.HasTag(label) {
		return TagResult{}, corvuserr.New(corvuserr.KindConflict, "label already tagged for this offering", nil)
	}

	teams, err := e.teams.ListTeams(offeringID)
	if err != nil {
		return TagResult{}, fmt.Errorf("list teams for offering %q: %w", offeringID, err)
	}

	result := TagResult{}
	for _, team := range teams {
		project, err := e.preferredProject(team.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("team %s: %v", team.ID, err))
			continue
		}
		if project == nil {
			result.Skipped++
			continue
		}

		if _, err := e.daemon.InspectImage(ctx, project.ImageHash); err != nil {
			if corvuserr.OfKind(err, corvuserr.KindNotFound) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("project %s: inspect image: %v", project.ID, err))
			continue
		}

		repo := normalizedTeamName(team.Name)
		if err := e.daemon.TagImage(ctx, project.ImageHash, repo, label); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("project %s: tag image: %v", project.ID, err))
			continue
		}

		tag := label
		project.Tag = &tag
		if err := e.store.Update(project); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("project %s: persist tag: %v", project.ID, err))
			continue
		}
		result.Tagged++
	}

	offering.Settings.ProjectTags = append(offering.Settings.ProjectTags, label)
	if err := e.offer.UpdateSettings(offeringID, offering.Settings); err != nil {
		return result, fmt.Errorf("persist offering settings: %w", err)
	}
	return result, nil
}

// RemoveTagFromCourseOfferingProjects idempotently drops the label from
// the offering's settings and clears it from every project
// that carried it. The daemon-side image tag is left alone; only pruning
// eventually reclaims it.
func (e *Engine) RemoveTagFromCourseOfferingProjects(ctx context.Context, offeringID, label string) (UntagResult, error) {
	offering, err := e.offer.GetOffering(offeringID)
	if err != nil {
		return UntagResult{}, corvuserr.New(corvuserr.KindNotFound, "course offering not found", err)
	}

	teams, err := e.teams.ListTeams(offeringID)
	if err != nil {
		return UntagResult{}, fmt.Errorf("list teams for offering %q: %w", offeringID, err)
	}

	result := UntagResult{}
	for _, team := range teams {
		projects, err := e.store.ListByTeam(team.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("team %s: %v", team.ID, err))
			continue
		}
		for _, project := range projects {
			if project.Tag == nil || *project.Tag != label {
				continue
			}
			project.Tag = nil
			if err := e.store.Update(project); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("project %s: %v", project.ID, err))
				continue
			}
			result.Untagged++
		}
	}

	filtered := offering.Settings.ProjectTags[:0]
	for _, t := range offering.Settings.ProjectTags {
		if t != label {
			filtered = append(filtered, t)
		}
	}
	offering.Settings.ProjectTags = filtered
	if err := e.offer.UpdateSettings(offeringID, offering.Settings); err != nil {
		return result, fmt.Errorf("persist offering settings: %w", err)
	}
	return result, nil
}

// preferredProject selects the newest running project for a team, or the
// newest project of any status if none is running. Returns nil, nil if the
// team has no projects at all.
func (e *Engine) preferredProject(teamID string) (*models.Project, error) {
	running, err := e.store.ListByTeamAndStatus(teamID, models.StatusRunning)
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return running[0], nil
	}

	all, err := e.store.ListByTeam(teamID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

// MigrateProjectContainer adopts a container the daemon knows about but
// the repository does not (or reassigns one it already tracks under a
// different team), attaching it to the shared network under
// a guaranteed-unique alias.
func (e *Engine) MigrateProjectContainer(ctx context.Context, containerName, teamID string, githubURL, deployedByID *string) (*MigrationReport, error) {
	team, err := e.teams.GetTeam(teamID)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindNotFound, "team not found", err)
	}

	containerID, err := e.daemon.FindContainerByName(ctx, containerName)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindDaemonError, "find container", err)
	}
	if containerID == "" {
		return nil, corvuserr.New(corvuserr.KindNotFound, "no container with this name", nil)
	}

	if err := pipeline.EnsureNetwork(ctx, e.daemon, e.cfg.ProjectsNetwork); err != nil {
		return nil, corvuserr.New(corvuserr.KindDaemonError, "ensure network", err)
	}

	alias, err := e.allocateUniqueAlias(ctx, normalizedTeamName(team.Name))
	if err != nil {
		return nil, err
	}

	if err := e.attachWithAlias(ctx, containerID, alias); err != nil {
		return nil, corvuserr.New(corvuserr.KindDaemonError, "attach container to network", err)
	}

	info, err := e.daemon.InspectContainer(ctx, containerID)
	if err != nil {
		return nil, corvuserr.New(corvuserr.KindDaemonError, "re-inspect container", err)
	}

	imageHash := info.Image
	if resolved, err := e.daemon.InspectImage(ctx, info.Image); err == nil {
		imageHash = resolved.ID
	}

	previousTeamID := ""
	if existing, err := e.store.GetProjectByContainerID(containerID); err == nil {
		previousTeamID = existing.TeamID
	}

	project, err := e.upsertProject(containerID, teamID, imageHash, info, alias, githubURL, deployedByID)
	if err != nil {
		return nil, err
	}

	return &MigrationReport{
		ProjectID: project.ID,
		Alias:     alias,
		Moved:     previousTeamID != "" && previousTeamID != teamID,
		Created:   project.CreatedAt.Equal(project.UpdatedAt),
	}, nil
}

// allocateUniqueAlias tries the base name, retrying with a
// random 4-hex-char suffix up to maxAliasRetries times against the network's
// connected-container alias lists.
func (e *Engine) allocateUniqueAlias(ctx context.Context, base string) (string, error) {
	net, err := e.daemon.NetworkInspect(ctx, e.cfg.ProjectsNetwork)
	if err != nil {
		return "", corvuserr.New(corvuserr.KindDaemonError, "inspect network", err)
	}
	used := map[string]bool{}
	for _, aliases := range net.Containers {
		for _, a := range aliases {
			used[a] = true
		}
	}

	if !used[base] {
		return base, nil
	}
	for i := 0; i < maxAliasRetries; i++ {
		suffix, err := randomHexSuffix()
		if err != nil {
			return "", fmt.Errorf("generate alias suffix: %w", err)
		}
		candidate := base + "-" + suffix
		if !used[candidate] {
			return candidate, nil
		}
	}
	return "", corvuserr.New(corvuserr.KindConflict, "exhausted alias retries", nil)
}

func randomHexSuffix() (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// attachWithAlias connects if absent, reconnects if present under a
// different alias, and no-ops if already correct.
func (e *Engine) attachWithAlias(ctx context.Context, containerID, alias string) error {
	info, err := e.daemon.InspectContainer(ctx, containerID)
	if err != nil {
		return fmt.Errorf("inspect container before attach: %w", err)
	}

	endpoint, onNetwork := info.Networks[e.cfg.ProjectsNetwork]
	if !onNetwork {
		return e.daemon.NetworkConnect(ctx, e.cfg.ProjectsNetwork, containerID, []string{alias})
	}
	if len(endpoint.Aliases) == 1 && endpoint.Aliases[0] == alias {
		return nil
	}

	if err := e.daemon.NetworkDisconnect(ctx, e.cfg.ProjectsNetwork, containerID, false); err != nil {
		e.logger.Warn("migrate: disconnect before realias failed", "container_id", containerID, "error", err)
	}
	return e.daemon.NetworkConnect(ctx, e.cfg.ProjectsNetwork, containerID, []string{alias})
}

// upsertProject handles the three cases: adopting a brand new project row,
// reassigning an existing one to a different team, or updating one already
// owned by the caller's team.
func (e *Engine) upsertProject(containerID, teamID, imageHash string, info daemon.ContainerInfo, alias string, githubURL, deployedByID *string) (*models.Project, error) {
	status := models.StatusStopped
	if info.Running {
		status = models.StatusRunning
	}
	ports := make(models.PortMap, len(info.Ports))
	for key, bindings := range info.Ports {
		mapped := make([]models.PortBinding, len(bindings))
		for i, b := range bindings {
			mapped[i] = models.PortBinding{HostIP: b.HostIP, HostPort: b.HostPort}
		}
		ports[key] = mapped
	}

	existing, err := e.store.GetProjectByContainerID(containerID)
	if err != nil && err != store.ErrRecordNotFound {
		return nil, fmt.Errorf("lookup project by container id: %w", err)
	}

	if existing != nil {
		existing.ImageHash = imageHash
		existing.ContainerName = alias
		existing.Ports = ports
		existing.Status = status
		if existing.TeamID != teamID {
			existing.TeamID = teamID
			if deployedByID != nil {
				existing.DeployedByID = deployedByID
			}
		}
		if err := e.store.Update(existing); err != nil {
			return nil, fmt.Errorf("persist migrated project: %w", err)
		}
		return existing, nil
	}

	deployedAt := info.CreatedAt
	project := &models.Project{
		TeamID:        teamID,
		DeployedByID:  deployedByID,
		GitHubURL:     derefOrEmpty(githubURL),
		ImageHash:     imageHash,
		ContainerID:   containerID,
		ContainerName: alias,
		Status:        status,
		Ports:         ports,
		BuildArgs:     map[string]string{},
		DeployedAt:    &deployedAt,
	}
	if err := e.store.CreateProject(project); err != nil {
		return nil, fmt.Errorf("create migrated project: %w", err)
	}
	return project, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// normalizedTeamName duplicates pipeline's unexported helper; kept here
// rather than exported from pipeline to avoid a naming-policy dependency
// between the two packages beyond the shared EnsureNetwork contract.
func normalizedTeamName(name string) string {
	lower := strings.ToLower(name)
	fields := strings.Fields(lower)
	return strings.Join(fields, "-")
}
