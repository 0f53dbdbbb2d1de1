package store

import (
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corvus-paas/controlplane/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	s, err := Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// seedTeam inserts a team and its course offering directly, bypassing the
// Store's read-only collaborator surface — in production these tables are
// populated by the course catalog system, not the control plane itself.
func seedTeam(t *testing.T, dbPath, teamID, teamName, offeringID string) {
	t.Helper()
	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT OR IGNORE INTO course_offerings (id, name) VALUES (?, ?)`, offeringID, "CS 101")
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO teams (id, name, course_offering_id) VALUES (?, ?, ?)`, teamID, teamName, offeringID)
	require.NoError(t, err)
}

func TestCreateAndGetProject(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	project := &models.Project{
		TeamID:    "team-1",
		GitHubURL: "https://github.com/example/repo",
		Status:    models.StatusBuilding,
		BuildArgs: map[string]string{"NODE_ENV": "production"},
		EnvVars:   map[string]string{"PORT": "3000"},
	}
	require.NoError(t, s.CreateProject(project))
	require.NotEmpty(t, project.ID)
	require.False(t, project.CreatedAt.IsZero())
	require.Equal(t, project.CreatedAt, project.UpdatedAt)

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, project.TeamID, fetched.TeamID)
	require.Equal(t, project.GitHubURL, fetched.GitHubURL)
	require.Equal(t, "production", fetched.BuildArgs["NODE_ENV"])
	require.Equal(t, "3000", fetched.EnvVars["PORT"])
}

func TestGetProjectNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetProject("does-not-exist")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdateProjectBumpsUpdatedAt(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	project := &models.Project{TeamID: "team-1", GitHubURL: "https://github.com/example/repo", Status: models.StatusBuilding}
	require.NoError(t, s.CreateProject(project))
	createdAt := project.CreatedAt

	project.Status = models.StatusRunning
	project.ContainerID = "abc123"
	require.NoError(t, s.Update(project))

	fetched, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, fetched.Status)
	require.Equal(t, "abc123", fetched.ContainerID)
	require.Equal(t, createdAt, fetched.CreatedAt)
	require.True(t, fetched.UpdatedAt.After(createdAt))
}

func TestGetProjectByContainerIDUniqueness(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	project := &models.Project{TeamID: "team-1", GitHubURL: "https://github.com/example/repo", Status: models.StatusRunning, ContainerID: "container-xyz"}
	require.NoError(t, s.CreateProject(project))

	fetched, err := s.GetProjectByContainerID("container-xyz")
	require.NoError(t, err)
	require.Equal(t, project.ID, fetched.ID)

	_, err = s.GetProjectByContainerID("no-such-container")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestListByTeamAndStatus(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	running := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusRunning}
	stopped := &models.Project{TeamID: "team-1", GitHubURL: "r2", Status: models.StatusStopped}
	require.NoError(t, s.CreateProject(running))
	require.NoError(t, s.CreateProject(stopped))

	results, err := s.ListByTeamAndStatus("team-1", models.StatusRunning)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, running.ID, results[0].ID)
}

func TestListPruneCandidatesExcludesTaggedAndRunning(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	tag := "midterm"
	tagged := &models.Project{TeamID: "team-1", GitHubURL: "r1", Status: models.StatusStopped, Tag: &tag, ImageHash: "hash-tagged"}
	untagged := &models.Project{TeamID: "team-1", GitHubURL: "r2", Status: models.StatusStopped, ImageHash: "hash-untagged"}
	running := &models.Project{TeamID: "team-1", GitHubURL: "r3", Status: models.StatusRunning, ImageHash: "hash-running"}
	require.NoError(t, s.CreateProject(tagged))
	require.NoError(t, s.CreateProject(untagged))
	require.NoError(t, s.CreateProject(running))

	candidates, err := s.ListPruneCandidates()
	require.NoError(t, err)

	ids := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		ids[c.ID] = true
	}
	require.True(t, ids[untagged.ID], "untagged stopped project should be a prune candidate")
	require.False(t, ids[tagged.ID], "tagged project should not be a prune candidate")
	require.False(t, ids[running.ID], "running project should not be a prune candidate")
}

func TestCollaboratorRoles(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`INSERT INTO enrollments (user_id, team_id, course_offering_id, role) VALUES (?, ?, ?, ?)`, "user-1", "team-1", "offering-1", "instructor")
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO enrollments (user_id, team_id, course_offering_id, role) VALUES (?, ?, ?, ?)`, "user-2", "team-1", "offering-1", "student")
	require.NoError(t, err)

	require.True(t, s.IsInstructor("user-1", "offering-1"))
	require.False(t, s.IsInstructor("user-2", "offering-1"))
	require.True(t, s.IsMember("user-2", "team-1"))
	require.False(t, s.IsAdmin("user-2"))
}

func TestUpdateSettingsRoundTrips(t *testing.T) {
	s, dbPath := newTestStore(t)
	seedTeam(t, dbPath, "team-1", "Team One", "offering-1")

	settings := models.OfferingSettings{ServerLocked: true, ProjectTags: []string{"midterm"}}
	require.NoError(t, s.UpdateSettings("offering-1", settings))

	offering, err := s.GetOffering("offering-1")
	require.NoError(t, err)
	require.True(t, offering.Settings.ServerLocked)
	require.True(t, offering.Settings.HasTag("midterm"))
	require.False(t, offering.Settings.HasTag("final"))
}
