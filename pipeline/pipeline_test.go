package pipeline

import (
	"context"
	"database/sql"
	"io"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		ProjectsNetwork:       "projects_network",
		DataMountPath:         "/var/www",
		ContainerMemoryCapMiB: 0,
	}
}

// newTestPipeline opens a fresh temp-file SQLite store (the Store's
// single-connection pool makes ":memory:" disappear between connections, so
// tests that also need a second raw connection — seedTeamDirect, enrollDirect
// — use a real temp file instead) plus an empty fake daemon.
func newTestPipeline(t *testing.T) (*Pipeline, *store.Store, string, *daemonfake.Daemon) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	s, err := store.Open(dbPath, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := daemonfake.New()
	p := New(s, d, s, s, s, testLogger(), testConfig())
	p.cloneFn = func(ctx context.Context, repoURL, destinationDir string, logWriter io.Writer) error {
		return os.MkdirAll(destinationDir, 0o755)
	}
	return p, s, dbPath, d
}

// seedTeamDirect inserts a course offering and team directly via a second
// connection to the same SQLite file — these rows are owned by the external
// course catalog system in production, not by the control plane's own API.
func seedTeamDirect(t *testing.T, dbPath, teamID, teamName, offeringID string, locked bool) {
	t.Helper()
	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	settings := `{"server_locked":false,"project_tags":[]}`
	if locked {
		settings = `{"server_locked":true,"project_tags":[]}`
	}
	_, err = conn.Exec(`INSERT OR IGNORE INTO course_offerings (id, name, settings) VALUES (?, ?, ?)`, offeringID, "CS 101", settings)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO teams (id, name, course_offering_id) VALUES (?, ?, ?)`, teamID, teamName, offeringID)
	require.NoError(t, err)
}

func enrollDirect(t *testing.T, dbPath, userID, teamID, offeringID, role string) {
	t.Helper()
	conn, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO enrollments (user_id, team_id, course_offering_id, role) VALUES (?, ?, ?, ?)`, userID, teamID, offeringID, role)
	require.NoError(t, err)
}

func TestNormalizedTeamName(t *testing.T) {
	cases := map[string]string{
		"Team Rocket":      "team-rocket",
		"  Extra  Spaces ": "extra-spaces",
		"ALLCAPS":          "allcaps",
		"already-hyphens":  "already-hyphens",
	}
	for input, want := range cases {
		require.Equal(t, want, normalizedTeamName(input), "input %q", input)
	}
}

func TestEnsureNetworkCreatesWhenAbsent(t *testing.T) {
	d := daemonfake.New()
	ctx := context.Background()

	_, err := d.NetworkInspect(ctx, "projects_network")
	require.Error(t, err)

	require.NoError(t, EnsureNetwork(ctx, d, "projects_network"))

	_, err = d.NetworkInspect(ctx, "projects_network")
	require.NoError(t, err)

	// idempotent: calling again on an existing network is a no-op, not an error.
	require.NoError(t, EnsureNetwork(ctx, d, "projects_network"))
}

func TestRepoSlug(t *testing.T) {
	cases := map[string]string{
		"https://github.com/org/repo":     "repo",
		"https://github.com/org/repo.git": "repo",
		"https://github.com/org/repo/":    "repo",
		"not-a-url":                       "repo",
	}
	for input, want := range cases {
		require.Equal(t, want, repoSlug(input), "input %q", input)
	}
}

func TestDBImageAndEnv(t *testing.T) {
	image, env, err := dbImageAndEnv(VariantJSON, "team-rocket-db")
	require.NoError(t, err)
	require.Equal(t, "mongo:6", image)
	require.Equal(t, "team-rocket-db", env["MONGO_INITDB_DATABASE"])

	image, env, err = dbImageAndEnv(VariantSQL, "team-rocket-db")
	require.NoError(t, err)
	require.Equal(t, "mysql:8", image)
	require.Equal(t, "team-rocket-db", env["MYSQL_DATABASE"])

	_, _, err = dbImageAndEnv("bogus", "team-rocket-db")
	require.Error(t, err)
}

func TestCreateStartInspectAttachesNetworkAndMountsDataFile(t *testing.T) {
	p, _, _, d := newTestPipeline(t)
	ctx := context.Background()
	require.NoError(t, EnsureNetwork(ctx, d, p.cfg.ProjectsNetwork))

	dataFile := t.TempDir() + "/upload.zip"
	require.NoError(t, os.WriteFile(dataFile, []byte("contents"), 0o644))
	originalName := "upload.zip"

	project := &models.Project{EnvVars: map[string]string{"FOO": "bar"}, DataFile: &dataFile, OriginalDataFileName: &originalName}
	require.NoError(t, p.createStartInspect(ctx, project, "team-rocket", "sha256:abc"))

	require.Equal(t, models.StatusRunning, project.Status)
	require.NotEmpty(t, project.ContainerID)
	require.NotNil(t, project.Ports)
	require.NotEmpty(t, project.Ports["80/tcp"])
}

func TestRedeployReusesImage(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)

	d.PutImage("sha256:existing", daemon.ImageInfo{ID: "sha256:existing", Tags: []string{"team-one:latest"}})

	source := &models.Project{TeamID: "team-1", GitHubURL: "https://github.com/example/repo", Status: models.StatusRunning, ImageHash: "sha256:existing"}
	require.NoError(t, s.CreateProject(source))

	redeployed, err := p.Redeploy(ctx, source.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, redeployed.Status)
	require.Equal(t, source.ImageHash, redeployed.ImageHash)
	require.NotEqual(t, source.ID, redeployed.ID)
}

func TestRedeploySourceImageMissingFromDaemon(t *testing.T) {
	p, s, dbPath, _ := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)

	source := &models.Project{TeamID: "team-1", GitHubURL: "https://github.com/example/repo", Status: models.StatusStopped, ImageHash: "sha256:gone"}
	require.NoError(t, s.CreateProject(source))

	_, err := p.Redeploy(ctx, source.ID, nil)
	require.Error(t, err)
	require.True(t, corvuserr.OfKind(err, corvuserr.KindNotFound))
}

func TestStopKillsContainerAndMarksStopped(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)
	enrollDirect(t, dbPath, "user-1", "team-1", "offering-1", "student")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)
	require.NoError(t, d.StartContainer(ctx, containerID))

	project := &models.Project{TeamID: "team-1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	stopped, err := p.Stop(ctx, project.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)

	info, err := d.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	require.False(t, info.Running)
}

func TestStopForbiddenForNonMemberWhenUnlocked(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)

	project := &models.Project{TeamID: "team-1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	_, err = p.Stop(ctx, project.ID, "stranger")
	require.Error(t, err)
	require.True(t, corvuserr.OfKind(err, corvuserr.KindForbidden))
}

func TestStopForbiddenForMemberWhenLocked(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", true)
	enrollDirect(t, dbPath, "user-1", "team-1", "offering-1", "student")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)

	project := &models.Project{TeamID: "team-1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	_, err = p.Stop(ctx, project.ID, "user-1")
	require.Error(t, err)
	require.True(t, corvuserr.OfKind(err, corvuserr.KindForbidden))
}

func TestDeployBuildsAndStartsContainer(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)

	project, err := p.Deploy(ctx, DeployInput{
		TeamID:    "team-1",
		GitHubURL: "https://github.com/example/repo",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, project.Status)
	require.NotEmpty(t, project.ImageHash)
	require.NotEmpty(t, project.ContainerID)

	spec, ok := d.ContainerSpec(project.ContainerID)
	require.True(t, ok)
	require.Equal(t, "team-one", spec.Name)

	stored, err := s.GetProject(project.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, stored.Status)
}

func TestDeployLegacyTwoContainerForcesFlaskStartCommand(t *testing.T) {
	p, _, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", false)

	project, err := p.DeployLegacyTwoContainer(ctx, DeployInput{
		TeamID:    "team-1",
		GitHubURL: "https://github.com/example/repo",
	}, VariantSQL)
	require.NoError(t, err)
	require.Equal(t, models.StatusRunning, project.Status)
	require.Equal(t, "team-one-db", project.EnvVars["DB_NAME"])

	appSpec, ok := d.ContainerSpec(project.ContainerID)
	require.True(t, ok)
	require.Equal(t, []string{"flask", "run", "--host=0.0.0.0", "--port=5000"}, appSpec.Cmd)

	dbContainerID, err := d.FindContainerByName(ctx, "team-one-db")
	require.NoError(t, err)
	require.NotEmpty(t, dbContainerID)
	dbSpec, ok := d.ContainerSpec(dbContainerID)
	require.True(t, ok)
	require.Equal(t, "mysql:8", dbSpec.Image)
}

func TestStopAllowedForInstructorWhenLocked(t *testing.T) {
	p, s, dbPath, d := newTestPipeline(t)
	ctx := context.Background()
	seedTeamDirect(t, dbPath, "team-1", "Team One", "offering-1", true)
	enrollDirect(t, dbPath, "prof-1", "team-1", "offering-1", "instructor")

	containerID, err := d.CreateContainer(ctx, daemon.ContainerSpec{Name: "team-one"})
	require.NoError(t, err)

	project := &models.Project{TeamID: "team-1", Status: models.StatusRunning, ContainerID: containerID}
	require.NoError(t, s.CreateProject(project))

	stopped, err := p.Stop(ctx, project.ID, "prof-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, stopped.Status)
}
