package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corvus-paas/controlplane/models"
)

// ErrRecordNotFound is returned when a query finds no matching row,
// mirroring the teacher db package's sentinel-error convention.
var ErrRecordNotFound = errors.New("record not found")

// scanner is satisfied by both *sql.Row and *sql.Rows, letting a single scan
// helper serve both the single-row and multi-row query paths, exactly the
// teacher's db/deployments.go pattern.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		p                                              models.Project
		deployedByID, tag, containerID, containerName  sql.NullString
		portsJSON, buildArgsJSON, envVarsJSON          sql.NullString
		dataFile, originalDataFileName                 sql.NullString
		deployedAt, stoppedAt, lastCheckedAt            sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.TeamID, &deployedByID, &p.GitHubURL, &p.ImageHash, &tag,
		&containerID, &containerName, &p.Status, &portsJSON, &p.BuildLogs,
		&buildArgsJSON, &envVarsJSON, &dataFile, &originalDataFileName,
		&deployedAt, &stoppedAt, &p.FailedCheckCount, &lastCheckedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	if deployedByID.Valid {
		p.DeployedByID = &deployedByID.String
	}
	if tag.Valid {
		p.Tag = &tag.String
	}
	if containerID.Valid {
		p.ContainerID = containerID.String
	}
	if containerName.Valid {
		p.ContainerName = containerName.String
	}
	if dataFile.Valid {
		p.DataFile = &dataFile.String
	}
	if originalDataFileName.Valid {
		p.OriginalDataFileName = &originalDataFileName.String
	}
	if deployedAt.Valid {
		p.DeployedAt = &deployedAt.Time
	}
	if stoppedAt.Valid {
		p.StoppedAt = &stoppedAt.Time
	}
	if lastCheckedAt.Valid {
		p.LastCheckedAt = &lastCheckedAt.Time
	}
	if portsJSON.Valid && portsJSON.String != "" {
		_ = json.Unmarshal([]byte(portsJSON.String), &p.Ports)
	}
	if buildArgsJSON.Valid && buildArgsJSON.String != "" {
		_ = json.Unmarshal([]byte(buildArgsJSON.String), &p.BuildArgs)
	}
	if envVarsJSON.Valid && envVarsJSON.String != "" {
		_ = json.Unmarshal([]byte(envVarsJSON.String), &p.EnvVars)
	}

	return &p, nil
}

const projectColumns = `id, team_id, deployed_by_id, github_url, image_hash, tag,
	container_id, container_name, status, ports, build_logs,
	build_args, env_vars, data_file, original_data_file_name,
	deployed_at, stopped_at, failed_check_count, last_checked_at,
	created_at, updated_at`

// CreateProject assigns a new UUID, stamps timestamps, and inserts the row.
func (s *Store) CreateProject(p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	ports, err := marshalOrNil(p.Ports)
	if err != nil {
		return fmt.Errorf("marshal ports: %w", err)
	}
	buildArgs, err := marshalOrNil(p.BuildArgs)
	if err != nil {
		return fmt.Errorf("marshal build args: %w", err)
	}
	envVars, err := marshalOrNil(p.EnvVars)
	if err != nil {
		return fmt.Errorf("marshal env vars: %w", err)
	}

	_, err = s.connection.Exec(`
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TeamID, nullableString(p.DeployedByID), p.GitHubURL, p.ImageHash, nullableString(p.Tag),
		nullableStringValue(p.ContainerID), nullableStringValue(p.ContainerName), p.Status, ports, p.BuildLogs,
		buildArgs, envVars, nullableString(p.DataFile), nullableString(p.OriginalDataFileName),
		p.DeployedAt, p.StoppedAt, p.FailedCheckCount, p.LastCheckedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(id string) (*models.Project, error) {
	row := s.connection.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByContainerID fetches the project owning a given container,
// relying on the schema's unique index over non-empty container_id values.
func (s *Store) GetProjectByContainerID(containerID string) (*models.Project, error) {
	row := s.connection.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE container_id = ?`, containerID)
	return scanProject(row)
}

// ListByTeamAndStatus returns all projects for a team with the given status.
func (s *Store) ListByTeamAndStatus(teamID string, status models.Status) ([]*models.Project, error) {
	return s.queryProjects(`SELECT `+projectColumns+` FROM projects WHERE team_id = ? AND status = ? ORDER BY deployed_at DESC`, teamID, status)
}

// ListRunning returns every project currently marked running, consumed by
// the reconciler.
func (s *Store) ListRunning() ([]*models.Project, error) {
	return s.queryProjects(`SELECT ` + projectColumns + ` FROM projects WHERE status = 'running'`)
}

// ListPruneCandidates returns every untagged, non-running, non-pruned
// project, consumed by the scheduled pruner.
func (s *Store) ListPruneCandidates() ([]*models.Project, error) {
	return s.queryProjects(`SELECT ` + projectColumns + ` FROM projects
		WHERE status NOT IN ('running','pruned') AND (tag IS NULL OR tag = '')`)
}

// ListProtected returns every project whose image must be protected from
// pruning: running, or tagged and not pruned.
func (s *Store) ListProtected() ([]*models.Project, error) {
	return s.queryProjects(`SELECT ` + projectColumns + ` FROM projects
		WHERE (status = 'running' AND image_hash != '')
		   OR (tag IS NOT NULL AND tag != '' AND status != 'pruned' AND image_hash != '')`)
}

// ListByTeam returns every project for a team, whatever its status, ordered
// by deployed_at newest first.
func (s *Store) ListByTeam(teamID string) ([]*models.Project, error) {
	return s.queryProjects(`SELECT `+projectColumns+` FROM projects WHERE team_id = ? ORDER BY deployed_at DESC`, teamID)
}

func (s *Store) queryProjects(query string, args ...any) ([]*models.Project, error) {
	rows, err := s.connection.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// Update persists the full row, refreshing updated_at. The pipeline,
// reconciler, pruner, and tag/migration engine all mutate projects by
// loading, modifying in place, and calling Update — simpler than a partial
// patch API given every caller already has the full struct in hand.
func (s *Store) Update(p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()

	ports, err := marshalOrNil(p.Ports)
	if err != nil {
		return fmt.Errorf("marshal ports: %w", err)
	}
	buildArgs, err := marshalOrNil(p.BuildArgs)
	if err != nil {
		return fmt.Errorf("marshal build args: %w", err)
	}
	envVars, err := marshalOrNil(p.EnvVars)
	if err != nil {
		return fmt.Errorf("marshal env vars: %w", err)
	}

	result, err := s.connection.Exec(`
		UPDATE projects SET
			team_id = ?, deployed_by_id = ?, github_url = ?, image_hash = ?, tag = ?,
			container_id = ?, container_name = ?, status = ?, ports = ?, build_logs = ?,
			build_args = ?, env_vars = ?, data_file = ?, original_data_file_name = ?,
			deployed_at = ?, stopped_at = ?, failed_check_count = ?, last_checked_at = ?,
			updated_at = ?
		WHERE id = ?`,
		p.TeamID, nullableString(p.DeployedByID), p.GitHubURL, p.ImageHash, nullableString(p.Tag),
		nullableStringValue(p.ContainerID), nullableStringValue(p.ContainerName), p.Status, ports, p.BuildLogs,
		buildArgs, envVars, nullableString(p.DataFile), nullableString(p.OriginalDataFileName),
		p.DeployedAt, p.StoppedAt, p.FailedCheckCount, p.LastCheckedAt,
		p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project %q: %w", p.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for project %q: %w", p.ID, err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func marshalOrNil(v any) (any, error) {
	switch val := v.(type) {
	case models.PortMap:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableStringValue(s string) any {
	if s == "" {
		return nil
	}
	return s
}
