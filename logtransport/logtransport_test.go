package logtransport

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvus-paas/controlplane/daemon"
)

// encodeFrame builds a raw multiplexed frame matching the stdcopy header
// contract this package decodes: 1-byte stream type, 3 reserved bytes, a
// big-endian uint32 payload length, then the payload.
func encodeFrame(stream StreamType, payload string) []byte {
	header := make([]byte, headerLen)
	header[0] = byte(stream)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestDemuxDecodesMultipleFrames(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(encodeFrame(StreamStdout, "building\n"))
	raw.Write(encodeFrame(StreamStderr, "warning: deprecated\n"))

	var frames []Frame
	err := Demux(&raw, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, StreamStdout, frames[0].Stream)
	require.Equal(t, "building\n", string(frames[0].Payload))
	require.Equal(t, StreamStderr, frames[1].Stream)
	require.Equal(t, "warning: deprecated\n", string(frames[1].Payload))
}

func TestDemuxBuffersPartialFrameAcrossReads(t *testing.T) {
	full := encodeFrame(StreamStdout, "hello world")
	r := &chunkedReader{chunks: [][]byte{full[:5], full[5:]}}

	var frames []Frame
	err := Demux(r, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, "hello world", string(frames[0].Payload))
}

// chunkedReader serves its chunks one Read call at a time, simulating a
// stream that splits a frame's header or payload across two reads.
type chunkedReader struct {
	chunks [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func TestAdaptBuildEventsAccumulatesLogAndCompletes(t *testing.T) {
	source := make(chan daemon.BuildEvent, 4)
	source <- daemon.BuildEvent{Stream: "step 1/3\n"}
	source <- daemon.BuildEvent{Status: "pulling image", Progress: "50%"}
	close(source)

	out, accumulated := AdaptBuildEvents("project-1", source)

	var events []Event
	for e := range out {
		events = append(events, e)
	}

	require.Equal(t, EventStart, events[0].Type)
	require.Equal(t, EventComplete, events[len(events)-1].Type)

	text, failed := accumulated()
	require.False(t, failed)
	require.Contains(t, text, "step 1/3")
	require.Contains(t, text, "pulling image 50%")
}

func TestAdaptBuildEventsMarksFailureOnError(t *testing.T) {
	source := make(chan daemon.BuildEvent, 2)
	source <- daemon.BuildEvent{Error: "build step failed"}
	close(source)

	out, accumulated := AdaptBuildEvents("project-1", source)

	var sawError bool
	for e := range out {
		if e.Type == EventError {
			sawError = true
			require.Equal(t, "build step failed", e.Message)
		}
	}
	require.True(t, sawError)

	text, failed := accumulated()
	require.True(t, failed)
	require.Contains(t, text, "ERROR: build step failed")
}
