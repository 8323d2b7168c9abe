package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chrysalis/internal/domain"
)

const missionColumns = `id, code_name, description, location, start_date, end_date, status,
	classification_level, encrypted_data, agent_id, title, created_at, updated_at`

// CreateMission inserts m, assigning an id and timestamps when absent.
func (s *SQLiteStore) CreateMission(ctx context.Context, m *domain.Mission) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO missions (`+missionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CodeName, m.Description, m.Location, nullTime(m.StartDate), nullTime(m.EndDate),
		string(m.Status), string(m.ClassificationLevel), m.EncryptedData, m.AgentID, m.Title,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert mission: %w", err)
	}
	if m.Steps == nil {
		m.Steps = []domain.Step{}
	}
	if m.Reports == nil {
		m.Reports = []domain.FieldReport{}
	}
	return nil
}

// GetMission returns the mission with its steps and reports.
func (s *SQLiteStore) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(domain.SubSystemMission, "Store.GetMission", id)
	}
	if err != nil {
		return nil, err
	}

	if m.Steps, err = s.ListSteps(ctx, id); err != nil {
		return nil, err
	}
	if m.Reports, err = s.ListReports(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMissions returns every mission, oldest first, with children attached.
func (s *SQLiteStore) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	missions := []domain.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		missions = append(missions, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	steps, err := s.ListSteps(ctx, "")
	if err != nil {
		return nil, err
	}
	reports, err := s.ListReports(ctx, "")
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(missions))
	for i := range missions {
		index[missions[i].ID] = i
	}
	for _, st := range steps {
		if i, ok := index[st.MissionID]; ok {
			missions[i].Steps = append(missions[i].Steps, st)
		}
	}
	for _, r := range reports {
		if i, ok := index[r.MissionID]; ok {
			missions[i].Reports = append(missions[i].Reports, r)
		}
	}
	return missions, nil
}

// UpdateMission overwrites the scalar fields of m and bumps UpdatedAt.
func (s *SQLiteStore) UpdateMission(ctx context.Context, m *domain.Mission) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE missions SET code_name = ?, description = ?, location = ?, start_date = ?, end_date = ?,
			status = ?, classification_level = ?, encrypted_data = ?, agent_id = ?, title = ?, updated_at = ?
		WHERE id = ?`,
		m.CodeName, m.Description, m.Location, nullTime(m.StartDate), nullTime(m.EndDate),
		string(m.Status), string(m.ClassificationLevel), m.EncryptedData, m.AgentID, m.Title,
		formatTime(now), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update mission: %w", err)
	}
	if err := checkAffected(res, domain.SubSystemMission, "Store.UpdateMission", m.ID); err != nil {
		return err
	}
	m.UpdatedAt = now
	return nil
}

// DeleteMission removes the mission; steps and reports go with it.
func (s *SQLiteStore) DeleteMission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM missions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mission: %w", err)
	}
	return checkAffected(res, domain.SubSystemMission, "Store.DeleteMission", id)
}

func scanMission(row scanner) (*domain.Mission, error) {
	var m domain.Mission
	var status, level, createdStr, updatedStr string
	var start, end sql.NullString
	if err := row.Scan(&m.ID, &m.CodeName, &m.Description, &m.Location, &start, &end, &status,
		&level, &m.EncryptedData, &m.AgentID, &m.Title, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	m.Status = domain.MissionStatus(status)
	m.ClassificationLevel = domain.ClassificationLevel(level)
	m.StartDate = timePtr(start)
	m.EndDate = timePtr(end)
	m.CreatedAt = parseTime(createdStr)
	m.UpdatedAt = parseTime(updatedStr)
	m.Steps = []domain.Step{}
	m.Reports = []domain.FieldReport{}
	return &m, nil
}
