package reconciler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/daemonfake"
	"github.com/corvus-paas/controlplane/models"
	"github.com/corvus-paas/controlplane/store"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	s, err := store.Open(dbPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTickTransitionsVanishedContainerToStopped(t *testing.T) {
	s := newTestStore(t)
	d := daemonfake.New()
	r := New(s, d, testLogger(), 0)

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ContainerID: "never-created"}
	require.NoError(t, s.CreateProject(project))

	r.Tick(context.Background())

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, fetched.Status)
	require.NotNil(t, fetched.StoppedAt)
}

func TestTickTransitionsExitedContainerToStopped(t *testing.T) {
	s := newTestStore(t)
	d := daemonfake.New()
	ctx := context.Background()

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)
	require.NoError(t, d.StartContainer(ctx, containerID))
	require.NoError(t, d.KillContainer(ctx, containerID))

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	r := New(s, d, testLogger(), 0)
	r.Tick(ctx)

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, fetched.Status)
}

func TestTickLeavesRunningContainerAlone(t *testing.T) {
	s := newTestStore(t)
	d := daemonfake.New()
	ctx := context.Background()

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)
	require.NoError(t, d.StartContainer(ctx, containerID))

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	r := New(s, d, testLogger(), 0)
	r.Tick(ctx)

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, fetched.Status)
	require.Nil(t, fetched.StoppedAt)
}

func TestTickSkipsProjectsWithoutContainer(t *testing.T) {
	s := newTestStore(t)
	d := daemonfake.New()

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning}
	require.NoError(t, s.CreateProject(project))

	r := New(s, d, testLogger(), 0)
	require.NotPanics(t, func() { r.Tick(context.Background()) })
}

func TestStartStopLoopDoesNotBlock(t *testing.T) {
	s := newTestStore(t)
	d := daemonfake.New()
	r := New(s, d, testLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	r.Stop()
}
