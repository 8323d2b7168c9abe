package domain

import (
	"context"
	"time"
)

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionAssigned    MissionStatus = "ASSIGNED"
	MissionInProgress  MissionStatus = "IN_PROGRESS"
	MissionCompleted   MissionStatus = "COMPLETED"
	MissionCompromised MissionStatus = "COMPROMISED"
	MissionCancelled   MissionStatus = "CANCELLED"
)

// Valid reports whether s is one of the known mission statuses.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionAssigned, MissionInProgress, MissionCompleted, MissionCompromised, MissionCancelled:
		return true
	}
	return false
}

// ClassificationLevel is the secrecy level of a mission.
type ClassificationLevel string

const (
	ClassificationTopSecret    ClassificationLevel = "TOP_SECRET"
	ClassificationSecret       ClassificationLevel = "SECRET"
	ClassificationConfidential ClassificationLevel = "CONFIDENTIAL"
)

// Valid reports whether c is one of the known classification levels.
func (c ClassificationLevel) Valid() bool {
	switch c {
	case ClassificationTopSecret, ClassificationSecret, ClassificationConfidential:
		return true
	}
	return false
}

// ReportStatus is the editorial state of a field report.
type ReportStatus string

const (
	ReportDraft      ReportStatus = "draft"
	ReportSubmitted  ReportStatus = "submitted"
	ReportReviewed   ReportStatus = "reviewed"
	ReportClassified ReportStatus = "classified"
)

// Valid reports whether s is one of the known report statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportDraft, ReportSubmitted, ReportReviewed, ReportClassified:
		return true
	}
	return false
}

// DefaultStepStatus is assigned to steps created without a status.
const DefaultStepStatus = "ASSIGNED"

// Mission is a covert assignment owning ordered steps and field reports.
type Mission struct {
	ID                  string              `json:"id"`
	CodeName            string              `json:"codeName,omitempty"`
	Description         string              `json:"description,omitempty"`
	Location            string              `json:"location,omitempty"`
	StartDate           *time.Time          `json:"startDate,omitempty"`
	EndDate             *time.Time          `json:"endDate,omitempty"`
	Status              MissionStatus       `json:"status"`
	ClassificationLevel ClassificationLevel `json:"classificationLevel"`
	EncryptedData       string              `json:"encryptedData,omitempty"`
	AgentID             string              `json:"agentId,omitempty"`
	Title               string              `json:"title"`
	Steps               []Step              `json:"steps"`
	Reports             []FieldReport       `json:"reports"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// MissionInput is the payload accepted when creating a mission.
type MissionInput struct {
	CodeName            string              `json:"codeName"`
	Description         string              `json:"description"`
	Location            string              `json:"location"`
	StartDate           *time.Time          `json:"startDate"`
	EndDate             *time.Time          `json:"endDate"`
	Status              MissionStatus       `json:"status"`
	ClassificationLevel ClassificationLevel `json:"classificationLevel"`
	EncryptedData       string              `json:"encryptedData"`
	AgentID             string              `json:"agentId"`
	Title               string              `json:"title"`
}

// MissionPatch carries a partial mission update. Nil fields are left unchanged.
type MissionPatch struct {
	CodeName            *string              `json:"codeName"`
	Description         *string              `json:"description"`
	Location            *string              `json:"location"`
	StartDate           *time.Time           `json:"startDate"`
	EndDate             *time.Time           `json:"endDate"`
	Status              *MissionStatus       `json:"status"`
	ClassificationLevel *ClassificationLevel `json:"classificationLevel"`
	EncryptedData       *string              `json:"encryptedData"`
	AgentID             *string              `json:"agentId"`
	Title               *string              `json:"title"`
}

// Step is an ordered sub-task of a mission.
type Step struct {
	ID                    string     `json:"id"`
	MissionID             string     `json:"missionId"`
	Title                 string     `json:"title,omitempty"`
	Description           string     `json:"description,omitempty"`
	AssignedAgent         string     `json:"assignedAgent,omitempty"`
	Location              string     `json:"location,omitempty"`
	StartDate             *time.Time `json:"startDate,omitempty"`
	EndDate               *time.Time `json:"endDate,omitempty"`
	Status                string     `json:"status"`
	Order                 int        `json:"order"`
	EncryptedInstructions string     `json:"encryptedInstructions,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// StepInput is the payload accepted when creating a step.
type StepInput struct {
	MissionID             string     `json:"missionId"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	AssignedAgent         string     `json:"assignedAgent"`
	Location              string     `json:"location"`
	StartDate             *time.Time `json:"startDate"`
	EndDate               *time.Time `json:"endDate"`
	Status                string     `json:"status"`
	Order                 int        `json:"order"`
	EncryptedInstructions string     `json:"encryptedInstructions"`
}

// StepPatch carries a partial step update. Nil fields are left unchanged.
type StepPatch struct {
	Title                 *string    `json:"title"`
	Description           *string    `json:"description"`
	AssignedAgent         *string    `json:"assignedAgent"`
	Location              *string    `json:"location"`
	StartDate             *time.Time `json:"startDate"`
	EndDate               *time.Time `json:"endDate"`
	Status                *string    `json:"status"`
	Order                 *int       `json:"order"`
	EncryptedInstructions *string    `json:"encryptedInstructions"`
}

// FieldReport is an encrypted report sent by an agent from the field.
type FieldReport struct {
	ID               string       `json:"id"`
	MissionID        string       `json:"missionId"`
	EncryptedContent string       `json:"encryptedContent"`
	Location         string       `json:"location,omitempty"`
	Latitude         *float64     `json:"latitude,omitempty"`
	Longitude        *float64     `json:"longitude,omitempty"`
	Status           ReportStatus `json:"status"`
	Attachments      []string     `json:"attachments"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// FieldReportInput is the payload accepted when creating a field report.
type FieldReportInput struct {
	MissionID        string       `json:"missionId"`
	EncryptedContent string       `json:"encryptedContent"`
	Location         string       `json:"location"`
	Latitude         *float64     `json:"latitude"`
	Longitude        *float64     `json:"longitude"`
	Status           ReportStatus `json:"status"`
	Attachments      []string     `json:"attachments"`
}

// FieldReportPatch carries a partial report update. Nil fields are left unchanged.
type FieldReportPatch struct {
	EncryptedContent *string       `json:"encryptedContent"`
	Location         *string       `json:"location"`
	Latitude         *float64      `json:"latitude"`
	Longitude        *float64      `json:"longitude"`
	Status           *ReportStatus `json:"status"`
	Attachments      *[]string     `json:"attachments"`
}

// MissionStore persists missions. Get and List return missions with their
// steps and reports attached.
type MissionStore interface {
	CreateMission(ctx context.Context, m *Mission) error
	GetMission(ctx context.Context, id string) (*Mission, error)
	ListMissions(ctx context.Context) ([]Mission, error)
	UpdateMission(ctx context.Context, m *Mission) error
	// DeleteMission removes the mission and every step and report it owns.
	DeleteMission(ctx context.Context, id string) error
}

// StepStore persists mission steps.
type StepStore interface {
	CreateStep(ctx context.Context, s *Step) error
	GetStep(ctx context.Context, id string) (*Step, error)
	// ListSteps returns the steps of one mission, or every step when missionID is empty.
	ListSteps(ctx context.Context, missionID string) ([]Step, error)
	UpdateStep(ctx context.Context, s *Step) error
	DeleteStep(ctx context.Context, id string) error
}

// FieldReportStore persists field reports.
type FieldReportStore interface {
	CreateReport(ctx context.Context, r *FieldReport) error
	GetReport(ctx context.Context, id string) (*FieldReport, error)
	// ListReports returns the reports of one mission, or every report when missionID is empty.
	ListReports(ctx context.Context, missionID string) ([]FieldReport, error)
	UpdateReport(ctx context.Context, r *FieldReport) error
	DeleteReport(ctx context.Context, id string) error
}

// Store is the full persistence contract.
type Store interface {
	MissionStore
	StepStore
	FieldReportStore
	Ping(ctx context.Context) error
	Close() error
}
