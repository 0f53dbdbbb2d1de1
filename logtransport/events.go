package logtransport

import (
	"context"
	"io"
	"time"

	"github.com/corvus-paas/controlplane/daemon"
)

// EventType tags the kind of outbound record emitted by either stream.
type EventType string

const (
	EventStart    EventType = "start"
	EventLog      EventType = "log"
	EventComplete EventType = "complete"
	EventEnd      EventType = "end"
	EventError    EventType = "error"
)

// Event is the outbound record shape for both build-log and runtime-log
// streaming.
type Event struct {
	Type      EventType `json:"type"`
	Data      string    `json:"data,omitempty"`
	Stream    string    `json:"stream,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	ProjectID string    `json:"project_id,omitempty"`
}

// AdaptBuildEvents converts a daemon.BuildEvent stream into outbound Events,
// accumulating the raw text alongside so the caller can persist it as the
// project's build log once the build finishes. The returned channel is
// closed once the source channel closes; accumulated() returns the final
// text only after the channel is drained.
func AdaptBuildEvents(projectID string, source <-chan daemon.BuildEvent) (<-chan Event, func() (string, bool)) {
	out := make(chan Event, 16)
	var accumulated string
	var failed bool

	go func() {
		defer close(out)
		out <- Event{Type: EventStart, ProjectID: projectID}
		for be := range source {
			switch {
			case be.Error != "":
				accumulated += "ERROR: " + be.Error + "\n"
				failed = true
				out <- Event{Type: EventError, Message: be.Error, ProjectID: projectID}
			case be.Stream != "":
				accumulated += be.Stream
				out <- Event{Type: EventLog, Data: be.Stream, ProjectID: projectID}
			case be.Status != "":
				line := be.Status
				if be.Progress != "" {
					line += " " + be.Progress
				}
				accumulated += line + "\n"
				out <- Event{Type: EventLog, Data: line, ProjectID: projectID}
			}
		}
		if !failed {
			out <- Event{Type: EventComplete, ProjectID: projectID}
		}
	}()

	return out, func() (string, bool) { return accumulated, failed }
}

// StreamRuntimeLogs opens a container's multiplexed log stream and relays
// demultiplexed frames as outbound Events until the upstream stream ends,
// errors, or ctx is cancelled.
func StreamRuntimeLogs(ctx context.Context, client daemon.Client, containerID string, opts daemon.LogOptions) (<-chan Event, error) {
	upstream, err := client.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer upstream.Close()

		go func() {
			<-ctx.Done()
			upstream.Close()
		}()

		demuxErr := Demux(upstream, func(f Frame) error {
			out <- Event{
				Type:      EventLog,
				Stream:    f.Stream.String(),
				Data:      string(f.Payload),
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			}
			return nil
		})

		select {
		case <-ctx.Done():
		default:
			if demuxErr != nil && demuxErr != io.EOF {
				out <- Event{Type: EventError, Message: demuxErr.Error()}
			} else {
				out <- Event{Type: EventEnd}
			}
		}
	}()

	return out, nil
}
