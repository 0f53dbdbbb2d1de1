package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corvus-paas/controlplane/collab"
	"github.com/corvus-paas/controlplane/models"
)

var _ collab.TeamStore = (*Store)(nil)
var _ collab.CourseOfferingStore = (*Store)(nil)
var _ collab.AuthOracle = (*Store)(nil)

// GetTeam resolves a team by id.
func (s *Store) GetTeam(id string) (*models.Team, error) {
	var t models.Team
	err := s.connection.QueryRow(`SELECT id, name, course_offering_id FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.CourseOfferingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetOffering resolves a course offering, decoding its JSON-encoded settings
// column into the typed models.OfferingSettings.
func (s *Store) GetOffering(id string) (*models.CourseOffering, error) {
	var (
		o            models.CourseOffering
		settingsJSON string
	)
	err := s.connection.QueryRow(`SELECT id, name, settings FROM course_offerings WHERE id = ?`, id).
		Scan(&o.ID, &o.Name, &settingsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(settingsJSON), &o.Settings); err != nil {
		return nil, fmt.Errorf("decode offering settings: %w", err)
	}
	return &o, nil
}

// UpdateSettings persists a course offering's settings JSON column.
func (s *Store) UpdateSettings(id string, settings models.OfferingSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode offering settings: %w", err)
	}
	result, err := s.connection.Exec(`UPDATE course_offerings SET settings = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("update offering settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListTeams returns every team belonging to a course offering.
func (s *Store) ListTeams(offeringID string) ([]*models.Team, error) {
	rows, err := s.connection.Query(`SELECT id, name, course_offering_id FROM teams WHERE course_offering_id = ?`, offeringID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CourseOfferingID); err != nil {
			return nil, err
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

// IsAdmin reports whether a user has the admin role recorded on any
// enrollment row.
func (s *Store) IsAdmin(userID string) bool {
	return s.hasRole(userID, "", "admin")
}

// IsInstructor reports whether a user is enrolled as instructor of a
// specific course offering.
func (s *Store) IsInstructor(userID, offeringID string) bool {
	return s.hasRole(userID, offeringID, "instructor")
}

// IsMember reports whether a user belongs to a specific team.
func (s *Store) IsMember(userID, teamID string) bool {
	var count int
	err := s.connection.QueryRow(`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND team_id = ?`, userID, teamID).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

func (s *Store) hasRole(userID, offeringID, role string) bool {
	var count int
	var err error
	if offeringID == "" {
		err = s.connection.QueryRow(`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND role = ?`, userID, role).Scan(&count)
	} else {
		err = s.connection.QueryRow(`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND course_offering_id = ? AND role = ?`, userID, offeringID, role).Scan(&count)
	}
	if err != nil {
		return false
	}
	return count > 0
}
