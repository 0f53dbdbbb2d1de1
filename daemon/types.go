package daemon

import "time"

// BuildEvent is one line of progress from an image build. Exactly one of
// Stream, Status, or Error is populated, the tagged-variant shape the
// Docker build API's JSON stream produces.
type BuildEvent struct {
	Stream   string `json:"stream,omitempty"`
	Status   string `json:"status,omitempty"`
	Progress string `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ContainerSpec is the input to CreateContainer — the subset of the daemon's
// container configuration the control plane actually drives.
type ContainerSpec struct {
	Name                 string
	Image                string
	Cmd                  []string
	Env                  map[string]string
	Labels               map[string]string
	MemoryLimitMiB       int64
	BindMounts           []BindMount
	NetworkName          string
	NetworkAlias         string
	RestartUnlessStopped bool
}

// BindMount is one host-to-container read-only or read-write bind mount.
type BindMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ContainerInfo is the subset of container inspect data the control plane
// consumes.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Running   bool
	CreatedAt time.Time
	Ports     map[string][]PortBinding
	Networks  map[string]NetworkEndpoint
}

// PortBinding mirrors models.PortBinding, kept distinct here so the daemon
// package has no dependency on models (keeping models the leaf of the graph).
type PortBinding struct {
	HostIP   string
	HostPort string
}

// NetworkEndpoint describes a container's attachment to one network.
type NetworkEndpoint struct {
	NetworkID string
	Aliases   []string
}

// ContainerSummary is one row of a container listing.
type ContainerSummary struct {
	ID    string
	Names []string
	Image string
	State string
}

// ImageInfo is the subset of image inspect data the control plane consumes.
type ImageInfo struct {
	ID   string
	Tags []string
}

// NetworkInfo is the subset of network inspect data the control plane
// consumes — in particular, every connected container's aliases, needed for
// the migration engine's alias-uniqueness check.
type NetworkInfo struct {
	ID         string
	Name       string
	Containers map[string][]string // containerID -> aliases
}

// LogOptions configures a runtime log read.
type LogOptions struct {
	Follow     bool
	Tail       int
	Since      *time.Time
	Timestamps bool
}
