// Package daemonfake is an in-memory daemon.Client used by the test suites of
// pipeline, reconciler, pruner, and tagmigrate in place of a real Docker
// daemon. It lives outside _test.go so every package's tests can share one
// implementation instead of each re-deriving its own.
package daemonfake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corvus-paas/controlplane/corvuserr"
	"github.com/corvus-paas/controlplane/daemon"
)

// NotFound mirrors daemon.Adapter's mapErr: every not-found condition this
// fake reports is a *corvuserr.Error with KindNotFound, never a raw
// sentinel, so code under test that uses corvuserr.OfKind behaves
// identically against both.
func NotFound(what string) error {
	return corvuserr.New(corvuserr.KindNotFound, what+" not found", nil)
}

// Conflict reports a daemon-side conflict, e.g. removing an image still
// referenced by a container.
func Conflict(what string) error {
	return corvuserr.New(corvuserr.KindConflict, what, nil)
}

// Daemon is the fake itself.
type Daemon struct {
	mu sync.Mutex

	images     map[string]daemon.ImageInfo
	containers map[string]*container
	networks   map[string]daemon.NetworkInfo
	nextID     int

	// RemoveImageErr, when set, is returned once by RemoveImage for any ref
	// not yet removed, then cleared — used to exercise the pruner's
	// conflict-then-retry path.
	RemoveImageErr error
}

type container struct {
	info    daemon.ContainerInfo
	spec    daemon.ContainerSpec
	killed  bool
	removed bool
}

// New constructs an empty fake daemon.
func New() *Daemon {
	return &Daemon{
		images:     map[string]daemon.ImageInfo{},
		containers: map[string]*container{},
		networks:   map[string]daemon.NetworkInfo{},
	}
}

func (f *Daemon) genID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *Daemon) BuildImage(ctx context.Context, contextDir, tag string, buildArgs map[string]string) (<-chan daemon.BuildEvent, error) {
	events := make(chan daemon.BuildEvent, 2)
	events <- daemon.BuildEvent{Stream: "building " + tag + "\n"}
	events <- daemon.BuildEvent{Status: "done"}
	close(events)

	f.mu.Lock()
	f.images[tag] = daemon.ImageInfo{ID: "sha256:" + tag, Tags: []string{tag}}
	f.mu.Unlock()
	return events, nil
}

func (f *Daemon) InspectImage(ctx context.Context, ref string) (daemon.ImageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inspectImageLocked(ref)
}

func (f *Daemon) inspectImageLocked(ref string) (daemon.ImageInfo, error) {
	if info, ok := f.images[ref]; ok {
		return info, nil
	}
	for _, info := range f.images {
		if info.ID == ref {
			return info, nil
		}
	}
	return daemon.ImageInfo{}, NotFound("image")
}

// PutImage seeds an image directly, for tests that need InspectImage to
// resolve a hash without going through BuildImage.
func (f *Daemon) PutImage(ref string, info daemon.ImageInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = info
}

func (f *Daemon) TagImage(ctx context.Context, sourceRef, newRepo, newTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, err := f.inspectImageLocked(sourceRef)
	if err != nil {
		return err
	}
	info.Tags = append(info.Tags, newRepo+":"+newTag)
	f.images[newRepo+":"+newTag] = info
	return nil
}

func (f *Daemon) RemoveImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveImageErr != nil {
		err := f.RemoveImageErr
		f.RemoveImageErr = nil
		return err
	}
	for key, info := range f.images {
		if key == ref || info.ID == ref {
			delete(f.images, key)
			return nil
		}
	}
	return NotFound("image")
}

func (f *Daemon) ListContainers(ctx context.Context, includeStopped bool) ([]daemon.ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []daemon.ContainerSummary
	for _, c := range f.containers {
		if c.removed {
			continue
		}
		if !includeStopped && !c.info.Running {
			continue
		}
		out = append(out, daemon.ContainerSummary{ID: c.info.ID, Names: []string{c.info.Name}, Image: c.info.Image, State: stateOf(c.info.Running)})
	}
	return out, nil
}

func stateOf(running bool) string {
	if running {
		return "running"
	}
	return "exited"
}

func (f *Daemon) FindContainerByName(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if c.removed {
			continue
		}
		if c.info.Name == name {
			return c.info.ID, nil
		}
	}
	return "", nil
}

func (f *Daemon) CreateContainer(ctx context.Context, spec daemon.ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.genID("container")
	networks := map[string]daemon.NetworkEndpoint{}
	if spec.NetworkName != "" {
		networks[spec.NetworkName] = daemon.NetworkEndpoint{NetworkID: spec.NetworkName, Aliases: []string{spec.NetworkAlias}}
	}
	f.containers[id] = &container{
		spec: spec,
		info: daemon.ContainerInfo{
			ID:        id,
			Name:      spec.Name,
			Image:     spec.Image,
			Running:   false,
			CreatedAt: time.Unix(0, 0).UTC(),
			Ports:     map[string][]daemon.PortBinding{"80/tcp": {{HostIP: "0.0.0.0", HostPort: "30000"}}},
			Networks:  networks,
		},
	}
	return id, nil
}

// ContainerSpec returns the spec a still-present container was created
// with, for tests that need to assert on the forced Cmd, Env, or mounts a
// pipeline step passed to CreateContainer.
func (f *Daemon) ContainerSpec(id string) (daemon.ContainerSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return daemon.ContainerSpec{}, false
	}
	return c.spec, true
}

func (f *Daemon) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok || c.removed {
		return NotFound("container")
	}
	c.info.Running = true
	return nil
}

func (f *Daemon) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	return f.KillContainer(ctx, id)
}

func (f *Daemon) KillContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok || c.removed {
		return NotFound("container")
	}
	c.info.Running = false
	c.killed = true
	return nil
}

func (f *Daemon) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok || c.removed {
		return NotFound("container")
	}
	c.removed = true
	return nil
}

func (f *Daemon) InspectContainer(ctx context.Context, id string) (daemon.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok || c.removed {
		return daemon.ContainerInfo{}, NotFound("container")
	}
	return c.info, nil
}

func (f *Daemon) ContainerLogs(ctx context.Context, id string, opts daemon.LogOptions) (daemon.ReadCloser, error) {
	return nil, NotFound("logs not supported by fake")
}

func (f *Daemon) NetworkInspect(ctx context.Context, name string) (daemon.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.networks[name]; ok {
		return info, nil
	}
	return daemon.NetworkInfo{}, NotFound("network")
}

func (f *Daemon) NetworkCreate(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[name]; ok {
		return nil
	}
	f.networks[name] = daemon.NetworkInfo{ID: name, Name: name, Containers: map[string][]string{}}
	return nil
}

func (f *Daemon) NetworkConnect(ctx context.Context, networkName, containerID string, aliases []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	net, ok := f.networks[networkName]
	if !ok {
		return NotFound("network")
	}
	net.Containers[containerID] = aliases
	f.networks[networkName] = net
	if c, ok := f.containers[containerID]; ok {
		if c.info.Networks == nil {
			c.info.Networks = map[string]daemon.NetworkEndpoint{}
		}
		c.info.Networks[networkName] = daemon.NetworkEndpoint{NetworkID: networkName, Aliases: aliases}
	}
	return nil
}

func (f *Daemon) NetworkDisconnect(ctx context.Context, networkName, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	net, ok := f.networks[networkName]
	if !ok {
		return NotFound("network")
	}
	delete(net.Containers, containerID)
	f.networks[networkName] = net
	if c, ok := f.containers[containerID]; ok {
		delete(c.info.Networks, networkName)
	}
	return nil
}

func (f *Daemon) Close() error { return nil }

var _ daemon.Client = (*Daemon)(nil)
