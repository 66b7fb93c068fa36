// Package validation computes the point-in-time Governance Health Index
// snapshot consumed by the drift engine. The engine treats this package as an
// opaque collaborator: the sub-score formulas here are owned by validation
// and may evolve independently of the drift math.
package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/models"
)

// Snapshot is the current governance posture view: the GHI, its letter grade,
// four dimension sub-scores, and the raw counts backing them. All scores are
// bounded [0,100].
type Snapshot struct {
	GHI   float64 `json:"ghi"`
	Grade string  `json:"ghi_grade"`

	AuditReadiness float64 `json:"audit_readiness_score"`
	Lifecycle      float64 `json:"lifecycle_score"`
	SLA            float64 `json:"sla_score"`
	Compliance     float64 `json:"compliance_score"`

	OpenFindingsTotal int `json:"open_findings_total"`
	CriticalCount     int `json:"critical_count"`
	HighCount         int `json:"high_count"`

	EOLCount        int `json:"eol_count"`
	DeprecatedCount int `json:"deprecated_count"`
	TotalComponents int `json:"total_components"`

	RiskBreakdown map[string]int `json:"risk_breakdown"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Provider is what the drift engine depends on.
type Provider interface {
	Snapshot(ctx context.Context, orgID uuid.UUID) (*Snapshot, error)
}

// Directory is the slice of the relational store the calculator reads from.
type Directory interface {
	ListFindings(ctx context.Context, orgID uuid.UUID) ([]models.Finding, error)
	ListTechStackItems(ctx context.Context, orgID uuid.UUID) ([]models.TechStackItem, error)
	LatestCompletedAssessment(ctx context.Context, orgID uuid.UUID) (*models.Assessment, error)
}

// Calculator derives a Snapshot from current relational state. It is a pure
// function of that state: two calls with no intervening writes produce
// identical scores.
type Calculator struct {
	dir Directory
}

func NewCalculator(dir Directory) *Calculator {
	return &Calculator{dir: dir}
}

// Remediation SLAs in days, by finding severity. Findings older than the
// window count against the SLA sub-score.
var slaWindows = map[models.FindingSeverity]int{
	models.SeverityCritical: 7,
	models.SeverityHigh:     14,
	models.SeverityMedium:   30,
	models.SeverityLow:      90,
}

func (c *Calculator) Snapshot(ctx context.Context, orgID uuid.UUID) (*Snapshot, error) {
	findings, err := c.dir.ListFindings(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}

	items, err := c.dir.ListTechStackItems(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing tech stack: %w", err)
	}

	latest, err := c.dir.LatestCompletedAssessment(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading latest assessment: %w", err)
	}

	now := time.Now().UTC()

	snap := &Snapshot{
		RiskBreakdown: make(map[string]int),
		GeneratedAt:   now,
	}

	var otherOpen, overdue int
	for _, f := range findings {
		if !f.Status.IsActionable() {
			continue
		}
		snap.OpenFindingsTotal++
		snap.RiskBreakdown[string(f.Severity)]++

		switch f.Severity {
		case models.SeverityCritical:
			snap.CriticalCount++
		case models.SeverityHigh:
			snap.HighCount++
		default:
			otherOpen++
		}

		window, ok := slaWindows[f.Severity]
		if !ok {
			window = 30
		}
		if int(now.Sub(f.CreatedAt.UTC()).Hours()/24) > window {
			overdue++
		}
	}

	for _, item := range items {
		snap.TotalComponents++
		switch item.LifecycleStatus {
		case models.LifecycleEOL:
			snap.EOLCount++
		case models.LifecycleDeprecated:
			snap.DeprecatedCount++
		}
	}

	snap.AuditReadiness = clampScore(100 - float64(snap.CriticalCount*15+snap.HighCount*8+otherOpen*3))

	if snap.TotalComponents == 0 {
		snap.Lifecycle = 100
	} else {
		total := float64(snap.TotalComponents)
		penalty := float64(snap.EOLCount)/total*100 + float64(snap.DeprecatedCount)/total*50
		snap.Lifecycle = clampScore(100 - penalty)
	}

	if snap.OpenFindingsTotal == 0 {
		snap.SLA = 100
	} else {
		snap.SLA = clampScore(100 - float64(overdue)/float64(snap.OpenFindingsTotal)*100)
	}

	if latest != nil && latest.OverallScore != nil {
		snap.Compliance = clampScore(*latest.OverallScore / 5 * 100)
	} else {
		// No completed assessment: posture is unproven, not failed.
		snap.Compliance = 40
	}

	ghi := 0.30*snap.AuditReadiness + 0.20*snap.Lifecycle + 0.20*snap.SLA + 0.30*snap.Compliance
	snap.GHI = math.Round(ghi*10) / 10
	snap.Grade = gradeFor(snap.GHI)

	return snap, nil
}

func gradeFor(ghi float64) string {
	switch {
	case ghi >= 90:
		return "A"
	case ghi >= 80:
		return "B"
	case ghi >= 70:
		return "C"
	case ghi >= 60:
		return "D"
	case ghi >= 50:
		return "E"
	default:
		return "F"
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
