package daemon

import (
	"fmt"
	"strconv"
	"time"

	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/docker/go-units"
)

// CreateContainer creates (but does not start) a container from spec,
// attaching it to the shared network with the requested alias at creation
// time — the same "attach at create, not after start" ordering the teacher's
// nginx.go documents to avoid a routing race.
func (a *Adapter) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	envList := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		envList = append(envList, k+"="+v)
	}

	mounts := make([]mount.Mount, 0, len(spec.BindMounts))
	for _, m := range spec.BindMounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.HostPath,
			Target:   m.ContainerPath,
			ReadOnly: m.ReadOnly,
		})
	}

	restartPolicy := container.RestartPolicy{}
	if spec.RestartUnlessStopped {
		restartPolicy.Name = "unless-stopped"
	}

	var memoryBytes int64
	if spec.MemoryLimitMiB > 0 {
		memoryBytes = spec.MemoryLimitMiB * units.MiB
	}

	hostConfig := &container.HostConfig{
		Mounts:        mounts,
		RestartPolicy: restartPolicy,
		Resources: container.Resources{
			Memory: memoryBytes,
		},
	}

	var networkingConfig *network.NetworkingConfig
	if spec.NetworkName != "" {
		endpoint := &network.EndpointSettings{}
		if spec.NetworkAlias != "" {
			endpoint.Aliases = []string{spec.NetworkAlias}
		}
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.NetworkName: endpoint,
			},
		}
	}

	var platform *v1.Platform

	createResponse, err := a.sdk.ContainerCreate(
		ctx,
		&container.Config{
			Image:  spec.Image,
			Cmd:    spec.Cmd,
			Env:    envList,
			Labels: spec.Labels,
		},
		hostConfig,
		networkingConfig,
		platform,
		spec.Name,
	)
	if err != nil {
		return "", mapErr(fmt.Sprintf("create container %q", spec.Name), err)
	}

	a.logger.Info("container created", "container_id", shortID(createResponse.ID), "name", spec.Name)
	return createResponse.ID, nil
}

// StartContainer transitions a created container to running.
func (a *Adapter) StartContainer(ctx context.Context, id string) error {
	if err := a.sdk.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return mapErr(fmt.Sprintf("start container %q", id), err)
	}
	return nil
}

// StopContainer sends SIGTERM and waits up to timeout before the daemon
// escalates to SIGKILL. A NotFound is not treated as success here: it is
// returned as a corvuserr NotFound error, so callers can log the distinction
// if they wish.
func (a *Adapter) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := a.sdk.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return mapErr(fmt.Sprintf("stop container %q", id), err)
	}
	return nil
}

// KillContainer force-kills a container immediately — the stop path always
// uses SIGKILL rather than a graceful stop, since a student project's
// container shutdown handling cannot be relied on.
func (a *Adapter) KillContainer(ctx context.Context, id string) error {
	if err := a.sdk.ContainerKill(ctx, id, "SIGKILL"); err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return mapErr(fmt.Sprintf("kill container %q", id), err)
	}
	return nil
}

// RemoveContainer deletes a container and its writable layer.
func (a *Adapter) RemoveContainer(ctx context.Context, id string, force bool) error {
	err := a.sdk.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return mapErr(fmt.Sprintf("remove container %q", id), err)
	}
	return nil
}

// InspectContainer returns the subset of inspect data the control plane
// needs: running state, image, creation time, port bindings, and network
// attachments (the last is load-bearing for the migration engine's alias
// uniqueness check).
func (a *Adapter) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	inspect, err := a.sdk.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, mapErr(fmt.Sprintf("inspect container %q", id), err)
	}

	info := ContainerInfo{
		ID:       inspect.ID,
		Name:     inspect.Name,
		Networks: map[string]NetworkEndpoint{},
		Ports:    map[string][]PortBinding{},
	}
	if inspect.Config != nil {
		info.Image = inspect.Config.Image
	}
	if inspect.State != nil {
		info.Running = inspect.State.Running
	}
	if created, perr := time.Parse(time.RFC3339Nano, inspect.Created); perr == nil {
		info.CreatedAt = created
	} else {
		info.CreatedAt = time.Now()
	}
	if inspect.NetworkSettings != nil {
		for portKey, bindings := range inspect.NetworkSettings.Ports {
			key := string(portKey)
			for _, b := range bindings {
				info.Ports[key] = append(info.Ports[key], PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
			}
		}
		for netName, endpoint := range inspect.NetworkSettings.Networks {
			info.Networks[netName] = NetworkEndpoint{
				NetworkID: endpoint.NetworkID,
				Aliases:   endpoint.Aliases,
			}
		}
	}
	return info, nil
}

// ListContainers lists containers, optionally including stopped ones (used
// by the pruner to find the containers still using an image it removes).
func (a *Adapter) ListContainers(ctx context.Context, includeStopped bool) ([]ContainerSummary, error) {
	list, err := a.sdk.ContainerList(ctx, container.ListOptions{All: includeStopped})
	if err != nil {
		return nil, mapErr("list containers", err)
	}
	summaries := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		summaries = append(summaries, ContainerSummary{
			ID:    c.ID,
			Names: c.Names,
			Image: c.Image,
			State: c.State,
		})
	}
	return summaries, nil
}

// FindContainerByName mirrors the teacher's nginx.go name-match loop:
// ContainerList's name filter is a substring match, so the exact match is
// re-verified against Docker's leading-"/" name convention. Returns "" with
// a nil error when no container has this exact name.
func (a *Adapter) FindContainerByName(ctx context.Context, name string) (string, error) {
	list, err := a.sdk.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", mapErr(fmt.Sprintf("list containers matching %q", name), err)
	}
	target := "/" + name
	for _, c := range list {
		for _, n := range c.Names {
			if n == target {
				return c.ID, nil
			}
		}
	}
	return "", nil
}

// ContainerLogs opens the multiplexed log stream; callers demultiplex it via
// logtransport.Demux.
func (a *Adapter) ContainerLogs(ctx context.Context, id string, opts LogOptions) (ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	if opts.Tail > 0 {
		logOpts.Tail = strconv.Itoa(opts.Tail)
	}
	if opts.Since != nil {
		logOpts.Since = opts.Since.Format(time.RFC3339Nano)
	}
	stream, err := a.sdk.ContainerLogs(ctx, id, logOpts)
	if err != nil {
		return nil, mapErr(fmt.Sprintf("read logs for container %q", id), err)
	}
	return stream, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
