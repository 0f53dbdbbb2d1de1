package pruner

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/corvuserr"
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

func newTestPruner(t *testing.T) (*Pruner, *store.Store, string, *daemonfake.Daemon) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	s, err := store.Open(dbPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := daemonfake.New()
	p := New(s, d, testLogger(), &config.AppConfig{})
	return p, s, dbPath, d
}

func seedTeamDirect(t *testing.T, dbPath, teamID, teamName, offeringID string) {
	t.Helper()
	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT OR IGNORE INTO course_offerings (id, name) VALUES (?, ?)`, offeringID, "CS 101")
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO teams (id, name, course_offering_id) VALUES (?, ?, ?)`, teamID, teamName, offeringID)
	require.NoError(t, err)
}

func TestPruneAllRemovesUntaggedStoppedProjects(t *testing.T) {
	p, s, dbPath, d := newTestPruner(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)
	d.PutImage("sha256:stale", daemon.ImageInfo{ID: "sha256:stale", Tags: []string{"team-one:latest"}})

	candidate := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusStopped, ContainerID: containerID, ImageHash: "sha256:stale"}
	require.NoError(t, s.CreateProject(candidate))

	result, err := p.PruneAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalFound)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 0, result.ErrorCount)

	fetched, err := s.GetProject(candidate.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPruned, fetched.Status)
	require.Empty(t, fetched.ContainerID)

	_, err = d.InspectImage(ctx, "sha256:stale")
	require.Error(t, err)
}

func TestPruneAllSkipsTaggedProjects(t *testing.T) {
	p, s, dbPath, _ := newTestPruner(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	tag := "midterm"
	tagged := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusStopped, Tag: &tag, ImageHash: "sha256:keep"}
	require.NoError(t, s.CreateProject(tagged))

	result, err := p.PruneAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, result.TotalFound)

	fetched, err := s.GetProject(tagged.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, fetched.Status)
}

func TestPruneAllSkipsImageStillProtectedByRunningProject(t *testing.T) {
	p, s, dbPath, d := newTestPruner(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")
	d.PutImage("sha256:shared", daemon.ImageInfo{ID: "sha256:shared"})

	running := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ImageHash: "sha256:shared"}
	require.NoError(t, s.CreateProject(running))
	stopped := &models.Project{TeamID: "team-1", GitHubURL: "r2", Status: models.StatusStopped, ImageHash: "sha256:shared"}
	require.NoError(t, s.CreateProject(stopped))

	result, err := p.PruneAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalFound)
	require.Equal(t, 1, result.SuccessCount)

	fetched, err := s.GetProject(stopped.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPruned, fetched.Status)

	_, err = d.InspectImage(ctx, "sha256:shared")
	require.NoError(t, err)
}

func TestPruneProjectAlreadyPrunedIsBadRequest(t *testing.T) {
	p, s, dbPath, _ := newTestPruner(t)
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusPruned}
	require.NoError(t, s.CreateProject(project))

	_, err := p.PruneProject(context.Background(), project.ID)
	require.Error(t, err)
	require.True(t, corvuserr.OfKind(err, corvuserr.KindBadRequest))
}

func TestPruneProjectRemovesOwnDataFile(t *testing.T) {
	p, s, dbPath, d := newTestPruner(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)

	dataFile := t.TempDir() + "/upload.zip"
	require.NoError(t, os.WriteFile(dataFile, []byte("contents"), 0o644))

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusStopped, ContainerID: containerID, DataFile: &dataFile}
	require.NoError(t, s.CreateProject(project))

	result, err := p.PruneProject(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)

	_, statErr := os.Stat(dataFile)
	require.True(t, os.IsNotExist(statErr))
}

func TestRemoveImageRetriesAfterConflict(t *testing.T) {
	p, s, dbPath, d := newTestPruner(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	blocker, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "blocker", Image: "sha256:busy"})
	require.NoError(t, err)
	require.NoError(t, d.StartContainer(ctx, blocker))
	d.PutImage("sha256:busy", daemon.ImageInfo{ID: "sha256:busy"})
	d.RemoveImageErr = daemonfake.Conflict("image in use")

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusStopped, ImageHash: "sha256:busy"}
	require.NoError(t, s.CreateProject(project))

	result, err := p.PruneProject(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)

	_, err = d.InspectContainer(ctx, blocker)
	require.True(t, corvuserr.OfKind(err, corvuserr.KindNotFound))
	_, err = d.InspectImage(ctx, "sha256:busy")
	require.Error(t, err)
}
