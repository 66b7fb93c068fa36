package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/trustrail/grc/internal/models"
)

type Store struct {
	db *sqlx.DB
}

type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			id, name, industry, status,
			processes_eu_data, uses_ai_models, handles_health_data,
			accepts_card_payments, financial_services, us_publicly_traded,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	org.ID = uuid.New()
	org.CreatedAt = time.Now().UTC()
	org.UpdatedAt = org.CreatedAt
	if org.Status == "" {
		org.Status = "active"
	}

	_, err := s.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Industry,
		org.Status,
		org.ProcessesEUData,
		org.UsesAIModels,
		org.HandlesHealthData,
		org.AcceptsCardPayments,
		org.FinancialServices,
		org.USPubliclyTraded,
		org.CreatedAt,
		org.UpdatedAt,
	)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	query := `SELECT * FROM organizations WHERE id = $1`
	err := s.db.GetContext(ctx, &org, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &org, err
}

func (s *Store) ListOrganizations(ctx context.Context, status *string) ([]models.Organization, error) {
	query := `SELECT * FROM organizations`
	args := make([]interface{}, 0, 1)

	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}

	query += ` ORDER BY created_at DESC`

	var orgs []models.Organization
	err := s.db.SelectContext(ctx, &orgs, query, args...)
	return orgs, err
}

// DeleteOrganization removes the organization and, via FK cascade, its
// assessments, findings, tech stack, and audit calendar.
func (s *Store) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM organizations WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

func (s *Store) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	query := `
		INSERT INTO assessments (
			id, organization_id, name, framework, status,
			overall_score, domain_scores, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	if a.Status == "" {
		a.Status = models.AssessmentStatusDraft
	}

	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		a.OrganizationID,
		a.Name,
		a.Framework,
		a.Status,
		a.OverallScore,
		a.DomainScores,
		a.CompletedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (s *Store) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	var a models.Assessment
	query := `SELECT * FROM assessments WHERE id = $1`
	err := s.db.GetContext(ctx, &a, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

func (s *Store) ListAssessments(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Assessment, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT * FROM assessments
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var assessments []models.Assessment
	err := s.db.SelectContext(ctx, &assessments, query, orgID, limit)
	return assessments, err
}

// LatestCompletedAssessment returns the most recently completed assessment
// for the organization, or nil if none has been completed.
func (s *Store) LatestCompletedAssessment(ctx context.Context, orgID uuid.UUID) (*models.Assessment, error) {
	var a models.Assessment
	query := `
		SELECT * FROM assessments
		WHERE organization_id = $1 AND status = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`
	err := s.db.GetContext(ctx, &a, query, orgID, models.AssessmentStatusCompleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

func (s *Store) CompleteAssessment(ctx context.Context, id uuid.UUID, overallScore float64, domainScores models.ScoreMap) error {
	query := `
		UPDATE assessments
		SET status = $1, overall_score = $2, domain_scores = $3, completed_at = $4, updated_at = $4
		WHERE id = $5
	`
	_, err := s.db.ExecContext(ctx, query,
		models.AssessmentStatusCompleted, overallScore, domainScores, time.Now().UTC(), id)
	return err
}

func (s *Store) CreateFinding(ctx context.Context, f *models.Finding) error {
	query := `
		INSERT INTO findings (
			id, organization_id, assessment_id, title, description,
			severity, status, remediation, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	f.ID = uuid.New()
	f.CreatedAt = time.Now().UTC()
	f.UpdatedAt = f.CreatedAt
	if f.Status == "" {
		f.Status = models.FindingStatusOpen
	}

	_, err := s.db.ExecContext(ctx, query,
		f.ID,
		f.OrganizationID,
		f.AssessmentID,
		f.Title,
		f.Description,
		f.Severity,
		f.Status,
		f.Remediation,
		f.ResolvedAt,
		f.CreatedAt,
		f.UpdatedAt,
	)
	return err
}

func (s *Store) GetFinding(ctx context.Context, id uuid.UUID) (*models.Finding, error) {
	var f models.Finding
	query := `SELECT * FROM findings WHERE id = $1`
	err := s.db.GetContext(ctx, &f, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &f, err
}

func (s *Store) ListFindings(ctx context.Context, orgID uuid.UUID) ([]models.Finding, error) {
	query := `
		SELECT * FROM findings
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`
	var findings []models.Finding
	err := s.db.SelectContext(ctx, &findings, query, orgID)
	return findings, err
}

func (s *Store) UpdateFindingStatus(ctx context.Context, id uuid.UUID, status models.FindingStatus) error {
	now := time.Now().UTC()
	var resolvedAt *time.Time
	if status == models.FindingStatusResolved || status == models.FindingStatusAccepted {
		resolvedAt = &now
	}

	query := `UPDATE findings SET status = $1, resolved_at = $2, updated_at = $3 WHERE id = $4`
	_, err := s.db.ExecContext(ctx, query, status, resolvedAt, now, id)
	return err
}

func (s *Store) CreateTechStackItem(ctx context.Context, item *models.TechStackItem) error {
	query := `
		INSERT INTO tech_stack_items (
			id, organization_id, name, category, vendor, version,
			lifecycle_status, approval_status, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	item.ID = uuid.New()
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	if item.LifecycleStatus == "" {
		item.LifecycleStatus = models.LifecycleUnknown
	}

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.OrganizationID,
		item.Name,
		item.Category,
		item.Vendor,
		item.Version,
		item.LifecycleStatus,
		item.ApprovalStatus,
		item.Notes,
		item.CreatedAt,
		item.UpdatedAt,
	)
	return err
}

func (s *Store) ListTechStackItems(ctx context.Context, orgID uuid.UUID) ([]models.TechStackItem, error) {
	query := `
		SELECT * FROM tech_stack_items
		WHERE organization_id = $1
		ORDER BY name
	`
	var items []models.TechStackItem
	err := s.db.SelectContext(ctx, &items, query, orgID)
	return items, err
}

func (s *Store) DeleteTechStackItem(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM tech_stack_items WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

func (s *Store) CreateAuditCalendarEntry(ctx context.Context, entry *models.AuditCalendarEntry) error {
	query := `
		INSERT INTO audit_calendar (id, organization_id, framework, auditor, audit_date, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.OrganizationID,
		entry.Framework,
		entry.Auditor,
		entry.AuditDate,
		entry.Notes,
		entry.CreatedAt,
	)
	return err
}

func (s *Store) ListAuditCalendar(ctx context.Context, orgID uuid.UUID) ([]models.AuditCalendarEntry, error) {
	query := `
		SELECT * FROM audit_calendar
		WHERE organization_id = $1
		ORDER BY audit_date
	`
	var entries []models.AuditCalendarEntry
	err := s.db.SelectContext(ctx, &entries, query, orgID)
	return entries, err
}

// ListUpcomingAudits returns calendar entries dated between now and the given
// cutoff, nearest first.
func (s *Store) ListUpcomingAudits(ctx context.Context, orgID uuid.UUID, until time.Time) ([]models.AuditCalendarEntry, error) {
	query := `
		SELECT * FROM audit_calendar
		WHERE organization_id = $1 AND audit_date >= $2 AND audit_date <= $3
		ORDER BY audit_date
	`
	var entries []models.AuditCalendarEntry
	err := s.db.SelectContext(ctx, &entries, query, orgID, time.Now().UTC(), until)
	return entries, err
}

func (s *Store) DeleteAuditCalendarEntry(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM audit_calendar WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}
