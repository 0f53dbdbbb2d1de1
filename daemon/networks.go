package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/network"
)

// NetworkInspect returns the network's connected containers, each with its
// name and its aliases on this network, the data the migration engine's
// alias-uniqueness check consumes.
func (a *Adapter) NetworkInspect(ctx context.Context, name string) (NetworkInfo, error) {
	inspect, err := a.sdk.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		return NetworkInfo{}, mapErr(fmt.Sprintf("inspect network %q", name), err)
	}
	info := NetworkInfo{ID: inspect.ID, Name: inspect.Name, Containers: map[string][]string{}}
	for containerID, endpoint := range inspect.Containers {
		aliases := []string{}
		// Docker's raw NetworkContainer inspect entry reports only the
		// container's Name; the alias list itself lives on the container's
		// own inspect data, so it is read from there.
		if endpoint.Name != "" {
			aliases = append(aliases, endpoint.Name)
		}
		if c, cerr := a.sdk.ContainerInspect(ctx, containerID); cerr == nil && c.NetworkSettings != nil {
			if ep, ok := c.NetworkSettings.Networks[inspect.Name]; ok && ep != nil {
				aliases = append(aliases, ep.Aliases...)
			}
		}
		info.Containers[containerID] = aliases
	}
	return info, nil
}

// NetworkCreate creates a bridge network idempotently: an AlreadyExists
// response from the daemon is treated as success, so concurrent "ensure
// network" calls from overlapping deploys all observe success.
func (a *Adapter) NetworkCreate(ctx context.Context, name string) error {
	_, err := a.sdk.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return mapErr(fmt.Sprintf("create network %q", name), err)
	}
	return nil
}

// NetworkConnect attaches a container to a network with the given aliases.
func (a *Adapter) NetworkConnect(ctx context.Context, networkName, containerID string, aliases []string) error {
	err := a.sdk.NetworkConnect(ctx, networkName, containerID, &network.EndpointSettings{
		Aliases: aliases,
	})
	if err != nil {
		return mapErr(fmt.Sprintf("connect container %q to network %q", containerID, networkName), err)
	}
	return nil
}

// NetworkDisconnect detaches a container from a network.
func (a *Adapter) NetworkDisconnect(ctx context.Context, networkName, containerID string, force bool) error {
	err := a.sdk.NetworkDisconnect(ctx, networkName, containerID, force)
	if err != nil {
		if isNotFoundErr(err) {
			return nil
		}
		return mapErr(fmt.Sprintf("disconnect container %q from network %q", containerID, networkName), err)
	}
	return nil
}

// isAlreadyExists reports whether err indicates the daemon rejected a create
// because the named resource already exists — the Docker daemon reports this
// as a 403/Conflict-shaped error whose message contains "already exists";
// errdefs has no dedicated predicate for it, so the message is inspected
// directly, same as the daemon's own CLI does for this exact case.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
