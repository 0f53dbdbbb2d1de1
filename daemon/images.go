package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
)

// BuildImage tars contextDir and streams it to the daemon's build endpoint,
// relaying each decoded progress line on the returned channel. The channel
// is closed once the build stream ends, whether it ended in success or in a
// daemon-reported error event.
func (a *Adapter) BuildImage(ctx context.Context, contextDir, tag string, buildArgs map[string]string) (<-chan BuildEvent, error) {
	tarStream, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return nil, mapErr("tar build context", err)
	}

	args := make(map[string]*string, len(buildArgs))
	for k, v := range buildArgs {
		value := v
		args[k] = &value
	}

	response, err := a.sdk.ImageBuild(ctx, tarStream, image.BuildOptions{
		Tags:      []string{tag},
		BuildArgs: args,
		Remove:    true,
	})
	if err != nil {
		tarStream.Close()
		return nil, mapErr("build image", err)
	}

	events := make(chan BuildEvent, 16)
	go func() {
		defer close(events)
		defer response.Body.Close()
		defer tarStream.Close()

		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var event BuildEvent
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if err := json.Unmarshal(line, &event); err != nil {
				events <- BuildEvent{Stream: string(line)}
				continue
			}
			events <- event
			if event.Error != "" {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			events <- BuildEvent{Error: err.Error()}
		}
	}()

	return events, nil
}

// InspectImage resolves ref to its content identifier and tags.
func (a *Adapter) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	inspect, err := a.sdk.ImageInspect(ctx, ref)
	if err != nil {
		return ImageInfo{}, mapErr(fmt.Sprintf("inspect image %q", ref), err)
	}
	return ImageInfo{ID: inspect.ID, Tags: inspect.RepoTags}, nil
}

// TagImage applies a new repo:tag reference to an existing image without
// rebuilding it — used to pin a team's current image under a course-offering
// label so pruning leaves it alone.
func (a *Adapter) TagImage(ctx context.Context, sourceRef, newRepo, newTag string) error {
	if err := a.sdk.ImageTag(ctx, sourceRef, newRepo+":"+newTag); err != nil {
		return mapErr(fmt.Sprintf("tag image %q as %q:%q", sourceRef, newRepo, newTag), err)
	}
	return nil
}

// RemoveImage deletes an image by reference. Callers distinguish "in use by
// a container" (corvuserr.Conflict) from other failures so the pruner can
// retry after removing referencing containers.
func (a *Adapter) RemoveImage(ctx context.Context, ref string) error {
	_, err := a.sdk.ImageRemove(ctx, ref, image.RemoveOptions{Force: false})
	if err != nil {
		return mapErr(fmt.Sprintf("remove image %q", ref), err)
	}
	return nil
}
