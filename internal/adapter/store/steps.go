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

const stepColumns = `id, mission_id, title, description, assigned_agent, location, start_date, end_date,
	status, step_order, encrypted_instructions, created_at, updated_at`

// CreateStep inserts st. A missing parent mission yields NotFound.
func (s *SQLiteStore) CreateStep(ctx context.Context, st *domain.Step) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Status == "" {
		st.Status = domain.DefaultStepStatus
	}
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (`+stepColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.MissionID, st.Title, st.Description, st.AssignedAgent, st.Location,
		nullTime(st.StartDate), nullTime(st.EndDate), st.Status, st.Order, st.EncryptedInstructions,
		formatTime(now), formatTime(now),
	)
	if isForeignKeyViolation(err) {
		return notFound(domain.SubSystemMission, "Store.CreateStep", st.MissionID)
	}
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// GetStep returns a single step.
func (s *SQLiteStore) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)
	st, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(domain.SubSystemStep, "Store.GetStep", id)
	}
	return st, err
}

// ListSteps returns steps ordered by their position, then creation time.
func (s *SQLiteStore) ListSteps(ctx context.Context, missionID string) ([]domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps`
	var args []any
	if missionID != "" {
		query += ` WHERE mission_id = ?`
		args = append(args, missionID)
	}
	query += ` ORDER BY step_order, created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []domain.Step{}
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *st)
	}
	return steps, rows.Err()
}

// UpdateStep overwrites the mutable fields of st. The owning mission never changes.
func (s *SQLiteStore) UpdateStep(ctx context.Context, st *domain.Step) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE steps SET title = ?, description = ?, assigned_agent = ?, location = ?, start_date = ?,
			end_date = ?, status = ?, step_order = ?, encrypted_instructions = ?, updated_at = ?
		WHERE id = ?`,
		st.Title, st.Description, st.AssignedAgent, st.Location, nullTime(st.StartDate),
		nullTime(st.EndDate), st.Status, st.Order, st.EncryptedInstructions, formatTime(now), st.ID,
	)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if err := checkAffected(res, domain.SubSystemStep, "Store.UpdateStep", st.ID); err != nil {
		return err
	}
	st.UpdatedAt = now
	return nil
}

// DeleteStep removes a single step.
func (s *SQLiteStore) DeleteStep(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	return checkAffected(res, domain.SubSystemStep, "Store.DeleteStep", id)
}

func scanStep(row scanner) (*domain.Step, error) {
	var st domain.Step
	var start, end sql.NullString
	var createdStr, updatedStr string
	if err := row.Scan(&st.ID, &st.MissionID, &st.Title, &st.Description, &st.AssignedAgent, &st.Location,
		&start, &end, &st.Status, &st.Order, &st.EncryptedInstructions, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	st.StartDate = timePtr(start)
	st.EndDate = timePtr(end)
	st.CreatedAt = parseTime(createdStr)
	st.UpdatedAt = parseTime(updatedStr)
	return &st, nil
}
