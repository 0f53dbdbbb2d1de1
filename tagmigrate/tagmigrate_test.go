package tagmigrate

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvus-paas/controlplane/config"
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

func newTestEngine(t *testing.T) (*Engine, *store.Store, string, *daemonfake.Daemon) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	s, err := store.Open(dbPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := daemonfake.New()
	e := New(s, d, s, s, testLogger(), &config.AppConfig{ProjectsNetwork: "projects_network"})
	return e, s, dbPath, d
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

func TestTagCourseOfferingProjectsTagsPreferredProjects(t *testing.T) {
	e, s, dbPath, d := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	d.PutImage("sha256:abc", daemon.ImageInfo{ID: "sha256:abc", Tags: []string{"team-one:latest"}})
	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ImageHash: "sha256:abc"}
	require.NoError(t, s.CreateProject(project))

	result, err := e.TagCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.NoError(t, err)
	require.Equal(t, 1, result.Tagged)
	require.Equal(t, 0, result.Skipped)

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Tag)
	require.Equal(t, "midterm", *fetched.Tag)

	offering, err := s.GetOffering("offering-1")
	require.NoError(t, err)
	require.True(t, offering.Settings.HasTag("midterm"))
}

func TestTagCourseOfferingProjectsRejectsDuplicateLabel(t *testing.T) {
	e, _, dbPath, _ := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	_, err := e.TagCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.NoError(t, err)

	_, err = e.TagCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.Error(t, err)
}

func TestTagCourseOfferingProjectsSkipsMissingImage(t *testing.T) {
	e, s, dbPath, _ := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ImageHash: "sha256:gone"}
	require.NoError(t, s.CreateProject(project))

	result, err := e.TagCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.NoError(t, err)
	require.Equal(t, 0, result.Tagged)
	require.Equal(t, 1, result.Skipped)
}

func TestRemoveTagFromCourseOfferingProjectsClearsTag(t *testing.T) {
	e, s, dbPath, d := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	d.PutImage("sha256:abc", daemon.ImageInfo{ID: "sha256:abc"})
	project := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning, ImageHash: "sha256:abc"}
	require.NoError(t, s.CreateProject(project))

	_, err := e.TagCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.NoError(t, err)

	result, err := e.RemoveTagFromCourseOfferingProjects(ctx, "offering-1", "midterm")
	require.NoError(t, err)
	require.Equal(t, 1, result.Untagged)

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Nil(t, fetched.Tag)

	offering, err := s.GetOffering("offering-1")
	require.NoError(t, err)
	require.False(t, offering.Settings.HasTag("midterm"))
}

func TestMigrateProjectContainerAdoptsForeignContainer(t *testing.T) {
	e, _, dbPath, d := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "orphan-container", Image: "sha256:orphan"})
	require.NoError(t, err)
	require.NoError(t, d.StartContainer(ctx, containerID))

	report, err := e.MigrateProjectContainer(ctx, "orphan-container", "team-1", nil, nil)
	require.NoError(t, err)
	require.True(t, report.Created)
	require.NotEmpty(t, report.Alias)

	info, err := d.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	endpoint, onNetwork := info.Networks["projects_network"]
	require.True(t, onNetwork)
	require.Contains(t, endpoint.Aliases, report.Alias)
}

func TestMigrateProjectContainerRejectsUnknownContainer(t *testing.T) {
	e, _, dbPath, _ := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	_, err := e.MigrateProjectContainer(ctx, "does-not-exist", "team-1", nil, nil)
	require.Error(t, err)
}

func TestMigrateProjectContainerAllocatesUniqueAliasOnCollision(t *testing.T) {
	e, _, dbPath, d := newTestEngine(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1")

	require.NoError(t, d.NetworkCreate(ctx, "projects_network"))
	taken, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "taken", Image: "sha256:taken"})
	require.NoError(t, err)
	require.NoError(t, d.NetworkConnect(ctx, "projects_network", taken, []string{"team-one"}))

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "orphan-container", Image: "sha256:orphan"})
	require.NoError(t, err)

	report, err := e.MigrateProjectContainer(ctx, "orphan-container", "team-1", nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, "team-one", report.Alias)
}
