// Package models defines the data structures shared across the control
// plane. Like the teacher's models package, it has no imports from other
// internal packages, keeping it the foundation of the dependency graph.
package models

import "time"

// Status is the lifecycle state of a Project. A named string type instead of
// a plain string means the compiler rejects a typo'd status at the call
// site, the same reasoning the teacher's DeploymentStatus type documents.
type Status string

const (
	// StatusBuilding means the pipeline is cloning, building, or resolving
	// the image for a brand new project.
	StatusBuilding Status = "building"

	// StatusDeploying means a redeploy is reusing an existing image and
	// (re)creating the container.
	StatusDeploying Status = "deploying"

	// StatusRunning means the container is started and reachable.
	StatusRunning Status = "running"

	// StatusStopped means the container was stopped (by Stop, pre-emption,
	// or the reconciler) but the project has not been pruned.
	StatusStopped Status = "stopped"

	// StatusFailed means the pipeline encountered an error before the
	// container ever reached running.
	StatusFailed Status = "failed"

	// StatusPruned is terminal: the container, image reference, and data
	// file for this project have been reclaimed.
	StatusPruned Status = "pruned"
)

// PortMap is the opaque port-assignment snapshot captured at container
// start, keyed by container-side port/proto (e.g. "80/tcp") mapping to the
// host ports bound to it.
type PortMap map[string][]PortBinding

// PortBinding is one host-side binding for a container port.
type PortBinding struct {
	HostIP   string `json:"host_ip"`
	HostPort string `json:"host_port"`
}

// Project is the central entity of the control plane. It maps 1:1 to the
// projects table and is the struct passed between the repository, the
// pipeline, the reconciler, the pruner, and the tag/migration engine.
type Project struct {
	// ID is a UUID v4, generated at creation time.
	ID string `json:"id" db:"id"`

	// TeamID identifies the owning team. Required.
	TeamID string `json:"team_id" db:"team_id"`

	// DeployedByID optionally identifies the user who triggered this
	// deploy attempt. Nullable: the deploying user's account may later be
	// removed without invalidating the project record.
	DeployedByID *string `json:"deployed_by_id,omitempty" db:"deployed_by_id"`

	// GitHubURL is the source repository this project was built from.
	// Kept even for migrated (adopted) projects, where it may be empty.
	GitHubURL string `json:"github_url" db:"github_url"`

	// ImageHash is the content identifier the daemon reports for the built
	// image. Empty until a build (or adoption) resolves it.
	ImageHash string `json:"image_hash" db:"image_hash"`

	// Tag is an optional label pinning this project's image; non-null
	// means the image is protected from automatic pruning.
	Tag *string `json:"tag,omitempty" db:"tag"`

	// ContainerID is the daemon-assigned container identifier, unique
	// across all non-pruned projects when non-empty.
	ContainerID string `json:"container_id,omitempty" db:"container_id"`

	// ContainerName is the daemon-assigned (or canonically derived)
	// container name.
	ContainerName string `json:"container_name,omitempty" db:"container_name"`

	// Status is the current lifecycle state: building, deploying, running,
	// stopped, failed, or pruned.
	Status Status `json:"status" db:"status"`

	// Ports is the port-mapping snapshot captured at container start.
	Ports PortMap `json:"ports,omitempty" db:"ports"`

	// BuildLogs is the concatenated build output, stored verbatim.
	BuildLogs string `json:"build_logs,omitempty" db:"build_logs"`

	// BuildArgs is passed to the image build step.
	BuildArgs map[string]string `json:"build_args,omitempty" db:"build_args"`

	// EnvVars is injected into the running container's environment.
	EnvVars map[string]string `json:"env_vars,omitempty" db:"env_vars"`

	// DataFile is an optional host path to a read-only bind-mounted file.
	DataFile *string `json:"data_file,omitempty" db:"data_file"`

	// OriginalDataFileName preserves the in-container filename across
	// redeploys even though DataFile's on-disk name may be mangled for
	// uniqueness.
	OriginalDataFileName *string `json:"original_data_file_name,omitempty" db:"original_data_file_name"`

	// DeployedAt is set once the container reaches running.
	DeployedAt *time.Time `json:"deployed_at,omitempty" db:"deployed_at"`

	// StoppedAt is set on the transition to stopped.
	StoppedAt *time.Time `json:"stopped_at,omitempty" db:"stopped_at"`

	// FailedCheckCount and LastCheckedAt exist to support a future
	// consecutive-failure threshold in the reconciler; current behavior
	// resets them when Stop or pre-emption stops a project (the
	// reconciler's stop transition leaves them unchanged) and never
	// increments them (see DESIGN.md's Open Question decision).
	FailedCheckCount int        `json:"failed_check_count" db:"failed_check_count"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`

	// CreatedAt/UpdatedAt are audit timestamps, ambient per the teacher's
	// own table design (db/deployments.go).
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsRunning reports whether the project is currently considered live.
func (p *Project) IsRunning() bool { return p.Status == StatusRunning }

// IsTagged reports whether the project carries a protection-granting tag.
func (p *Project) IsTagged() bool { return p.Tag != nil && *p.Tag != "" }

// IsTerminal reports whether the project can never transition again.
func (p *Project) IsTerminal() bool { return p.Status == StatusPruned }
