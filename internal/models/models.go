package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// FindingSeverity classifies how serious a compliance finding is.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityHigh     FindingSeverity = "high"
	SeverityMedium   FindingSeverity = "medium"
	SeverityLow      FindingSeverity = "low"
)

type FindingStatus string

const (
	FindingStatusOpen       FindingStatus = "open"
	FindingStatusInProgress FindingStatus = "in_progress"
	FindingStatusResolved   FindingStatus = "resolved"
	FindingStatusAccepted   FindingStatus = "accepted"
)

// IsActionable reports whether the finding still needs remediation work.
func (s FindingStatus) IsActionable() bool {
	return s == FindingStatusOpen || s == FindingStatusInProgress
}

type AssessmentStatus string

const (
	AssessmentStatusDraft      AssessmentStatus = "draft"
	AssessmentStatusInProgress AssessmentStatus = "in_progress"
	AssessmentStatusCompleted  AssessmentStatus = "completed"
)

// LifecycleStatus tracks where a tech-stack component sits in its support
// lifecycle. Unknown is distinct from active: an unregistered status must not
// count as healthy or as at-risk.
type LifecycleStatus string

const (
	LifecycleLTS        LifecycleStatus = "lts"
	LifecycleActive     LifecycleStatus = "active"
	LifecycleDeprecated LifecycleStatus = "deprecated"
	LifecycleEOL        LifecycleStatus = "eol"
	LifecycleUnknown    LifecycleStatus = "unknown"
)

// JSONB wraps a generic JSON object column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, j)
}

// ScoreMap is a JSONB column holding per-domain control scores (0-5 scale).
type ScoreMap map[string]float64

func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *ScoreMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}

// Organization is the tenant-level record everything else hangs off.
// The regulatory flags feed forecast applicability checks.
type Organization struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Industry string    `json:"industry" db:"industry"`
	Status   string    `json:"status" db:"status"`

	ProcessesEUData     bool `json:"processes_eu_data" db:"processes_eu_data"`
	UsesAIModels        bool `json:"uses_ai_models" db:"uses_ai_models"`
	HandlesHealthData   bool `json:"handles_health_data" db:"handles_health_data"`
	AcceptsCardPayments bool `json:"accepts_card_payments" db:"accepts_card_payments"`
	FinancialServices   bool `json:"financial_services" db:"financial_services"`
	USPubliclyTraded    bool `json:"us_publicly_traded" db:"us_publicly_traded"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RegulatoryFlags returns the named applicability flags used by forecast
// matching.
func (o *Organization) RegulatoryFlags() map[string]bool {
	return map[string]bool{
		"processes_eu_data":     o.ProcessesEUData,
		"uses_ai_models":        o.UsesAIModels,
		"handles_health_data":   o.HandlesHealthData,
		"accepts_card_payments": o.AcceptsCardPayments,
		"financial_services":    o.FinancialServices,
		"us_publicly_traded":    o.USPubliclyTraded,
	}
}

// Assessment is one run of a control framework questionnaire. DomainScores
// holds per-domain results on a 0-5 scale; OverallScore is set on completion.
type Assessment struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	OrganizationID uuid.UUID        `json:"organization_id" db:"organization_id"`
	Name           string           `json:"name" db:"name"`
	Framework      string           `json:"framework" db:"framework"`
	Status         AssessmentStatus `json:"status" db:"status"`
	OverallScore   *float64         `json:"overall_score,omitempty" db:"overall_score"`
	DomainScores   ScoreMap         `json:"domain_scores" db:"domain_scores"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

type Finding struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	AssessmentID   *uuid.UUID      `json:"assessment_id,omitempty" db:"assessment_id"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description" db:"description"`
	Severity       FindingSeverity `json:"severity" db:"severity"`
	Status         FindingStatus   `json:"status" db:"status"`
	Remediation    string          `json:"remediation" db:"remediation"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// TechStackItem is one component in the organization's technology inventory.
// Notes carries free-text governance metadata; AI-model entries encode
// data_sensitivity and ai_model_tier there (JSON or key=value pairs).
type TechStackItem struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	OrganizationID  uuid.UUID       `json:"organization_id" db:"organization_id"`
	Name            string          `json:"name" db:"name"`
	Category        string          `json:"category" db:"category"`
	Vendor          string          `json:"vendor" db:"vendor"`
	Version         string          `json:"version" db:"version"`
	LifecycleStatus LifecycleStatus `json:"lifecycle_status" db:"lifecycle_status"`
	ApprovalStatus  string          `json:"approval_status" db:"approval_status"`
	Notes           string          `json:"notes" db:"notes"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type AuditCalendarEntry struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Framework      string    `json:"framework" db:"framework"`
	Auditor        string    `json:"auditor" db:"auditor"`
	AuditDate      time.Time `json:"audit_date" db:"audit_date"`
	Notes          string    `json:"notes" db:"notes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
