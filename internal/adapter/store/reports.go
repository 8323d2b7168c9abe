package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chrysalis/internal/domain"
)

const reportColumns = `id, mission_id, encrypted_content, location, latitude, longitude, status,
	attachments, created_at, updated_at`

// CreateReport inserts r. A missing parent mission yields NotFound.
func (s *SQLiteStore) CreateReport(ctx context.Context, r *domain.FieldReport) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.ReportDraft
	}
	if r.Attachments == nil {
		r.Attachments = []string{}
	}
	attJSON, err := json.Marshal(r.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO field_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.MissionID, r.EncryptedContent, r.Location, nullFloat(r.Latitude), nullFloat(r.Longitude),
		string(r.Status), string(attJSON), formatTime(now), formatTime(now),
	)
	if isForeignKeyViolation(err) {
		return notFound(domain.SubSystemMission, "Store.CreateReport", r.MissionID)
	}
	if err != nil {
		return fmt.Errorf("insert field report: %w", err)
	}
	return nil
}

// GetReport returns a single field report.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*domain.FieldReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM field_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(domain.SubSystemReport, "Store.GetReport", id)
	}
	return r, err
}

// ListReports returns reports in the order they were filed.
func (s *SQLiteStore) ListReports(ctx context.Context, missionID string) ([]domain.FieldReport, error) {
	query := `SELECT ` + reportColumns + ` FROM field_reports`
	var args []any
	if missionID != "" {
		query += ` WHERE mission_id = ?`
		args = append(args, missionID)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []domain.FieldReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// UpdateReport overwrites the mutable fields of r.
func (s *SQLiteStore) UpdateReport(ctx context.Context, r *domain.FieldReport) error {
	if r.Attachments == nil {
		r.Attachments = []string{}
	}
	attJSON, err := json.Marshal(r.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE field_reports SET encrypted_content = ?, location = ?, latitude = ?, longitude = ?,
			status = ?, attachments = ?, updated_at = ?
		WHERE id = ?`,
		r.EncryptedContent, r.Location, nullFloat(r.Latitude), nullFloat(r.Longitude),
		string(r.Status), string(attJSON), formatTime(now), r.ID,
	)
	if err != nil {
		return fmt.Errorf("update field report: %w", err)
	}
	if err := checkAffected(res, domain.SubSystemReport, "Store.UpdateReport", r.ID); err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

// DeleteReport removes a single field report.
func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM field_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete field report: %w", err)
	}
	return checkAffected(res, domain.SubSystemReport, "Store.DeleteReport", id)
}

func scanReport(row scanner) (*domain.FieldReport, error) {
	var r domain.FieldReport
	var lat, lng sql.NullFloat64
	var status, attStr, createdStr, updatedStr string
	if err := row.Scan(&r.ID, &r.MissionID, &r.EncryptedContent, &r.Location, &lat, &lng, &status,
		&attStr, &createdStr, &updatedStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attStr), &r.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	if r.Attachments == nil {
		r.Attachments = []string{}
	}
	r.Status = domain.ReportStatus(status)
	r.Latitude = floatPtr(lat)
	r.Longitude = floatPtr(lng)
	r.CreatedAt = parseTime(createdStr)
	r.UpdatedAt = parseTime(updatedStr)
	return &r, nil
}
