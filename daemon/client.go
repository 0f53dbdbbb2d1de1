// Package daemon is a typed wrapper around the container engine API. All
// Docker SDK calls are isolated here, the same isolation principle the
// teacher's docker package documents — if the daemon interaction strategy
// ever changes, only this package changes.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dockerSDKclient "github.com/docker/docker/client"
)

// Client is the operation surface the rest of the control plane depends on.
// Packages consume this interface, not *Adapter directly, so pipeline,
// reconciler, pruner, and tagmigrate tests can supply an in-memory fake
// instead of talking to a real daemon.
type Client interface {
	BuildImage(ctx context.Context, contextDir, tag string, buildArgs map[string]string) (<-chan BuildEvent, error)
	InspectImage(ctx context.Context, ref string) (ImageInfo, error)
	TagImage(ctx context.Context, sourceRef, newRepo, newTag string) error
	RemoveImage(ctx context.Context, ref string) error

	ListContainers(ctx context.Context, includeStopped bool) ([]ContainerSummary, error)
	FindContainerByName(ctx context.Context, name string) (string, error)
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout time.Duration) error
	KillContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)
	ContainerLogs(ctx context.Context, id string, opts LogOptions) (ReadCloser, error)

	NetworkInspect(ctx context.Context, name string) (NetworkInfo, error)
	NetworkCreate(ctx context.Context, name string) error
	NetworkConnect(ctx context.Context, networkName, containerID string, aliases []string) error
	NetworkDisconnect(ctx context.Context, networkName, containerID string, force bool) error

	Close() error
}

// ReadCloser aliases io.ReadCloser at the package boundary so call sites
// importing "daemon" do not also need to import "io" just for this type.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// Adapter is the Client implementation backed by the real Docker SDK. It
// wraps *client.Client plus a logger, exactly the struct shape of the
// teacher's docker.DockerClient, generalized to the full image/container/
// network operation surface the control plane needs.
type Adapter struct {
	sdk    *dockerSDKclient.Client
	logger *slog.Logger
}

var _ Client = (*Adapter)(nil)

// NewAdapter connects to the daemon using the standard environment-derived
// options and pings it once to fail fast at startup, matching the teacher's
// docker.NewClient.
func NewAdapter(logger *slog.Logger) (*Adapter, error) {
	sdkClient, err := dockerSDKclient.NewClientWithOpts(
		dockerSDKclient.FromEnv,
		dockerSDKclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	adapter := &Adapter{sdk: sdkClient, logger: logger}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := adapter.sdk.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker client connected", "host", sdkClient.DaemonHost())
	return adapter, nil
}

// Close releases the underlying SDK client connection.
func (a *Adapter) Close() error {
	return a.sdk.Close()
}
