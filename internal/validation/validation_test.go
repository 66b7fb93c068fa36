package validation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/models"
)

type stubDirectory struct {
	findings []models.Finding
	items    []models.TechStackItem
	latest   *models.Assessment
}

func (s *stubDirectory) ListFindings(_ context.Context, _ uuid.UUID) ([]models.Finding, error) {
	return s.findings, nil
}

func (s *stubDirectory) ListTechStackItems(_ context.Context, _ uuid.UUID) ([]models.TechStackItem, error) {
	return s.items, nil
}

func (s *stubDirectory) LatestCompletedAssessment(_ context.Context, _ uuid.UUID) (*models.Assessment, error) {
	return s.latest, nil
}

func TestSnapshotEmptyOrganization(t *testing.T) {
	calc := NewCalculator(&stubDirectory{})

	snap, err := calc.Snapshot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.AuditReadiness != 100 {
		t.Errorf("audit readiness = %.1f, want 100", snap.AuditReadiness)
	}
	if snap.Lifecycle != 100 {
		t.Errorf("lifecycle = %.1f, want 100", snap.Lifecycle)
	}
	if snap.SLA != 100 {
		t.Errorf("sla = %.1f, want 100", snap.SLA)
	}
	if snap.Compliance != 40 {
		t.Errorf("compliance = %.1f, want 40 without a completed assessment", snap.Compliance)
	}
	// 0.30*100 + 0.20*100 + 0.20*100 + 0.30*40
	if snap.GHI != 82.0 {
		t.Errorf("ghi = %.1f, want 82.0", snap.GHI)
	}
	if snap.Grade != "B" {
		t.Errorf("grade = %s, want B", snap.Grade)
	}
}

func TestSnapshotSubScores(t *testing.T) {
	now := time.Now().UTC()
	overall := 4.0
	completed := now.Add(-24 * time.Hour)

	dir := &stubDirectory{
		findings: []models.Finding{
			{Severity: models.SeverityCritical, Status: models.FindingStatusOpen, CreatedAt: now.Add(-48 * time.Hour)},
			{Severity: models.SeverityHigh, Status: models.FindingStatusInProgress, CreatedAt: now.Add(-30 * 24 * time.Hour)},
			{Severity: models.SeverityMedium, Status: models.FindingStatusOpen, CreatedAt: now.Add(-24 * time.Hour)},
			{Severity: models.SeverityLow, Status: models.FindingStatusResolved, CreatedAt: now.Add(-200 * 24 * time.Hour)},
		},
		items: []models.TechStackItem{
			{LifecycleStatus: models.LifecycleActive},
			{LifecycleStatus: models.LifecycleLTS},
			{LifecycleStatus: models.LifecycleEOL},
			{LifecycleStatus: models.LifecycleDeprecated},
		},
		latest: &models.Assessment{
			ID:           uuid.New(),
			OverallScore: &overall,
			CompletedAt:  &completed,
		},
	}
	calc := NewCalculator(dir)

	snap, err := calc.Snapshot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.OpenFindingsTotal != 3 {
		t.Errorf("open findings = %d, want 3 (resolved excluded)", snap.OpenFindingsTotal)
	}
	if snap.CriticalCount != 1 || snap.HighCount != 1 {
		t.Errorf("critical/high = %d/%d, want 1/1", snap.CriticalCount, snap.HighCount)
	}

	// 100 - (1*15 + 1*8 + 1*3)
	if snap.AuditReadiness != 74 {
		t.Errorf("audit readiness = %.1f, want 74", snap.AuditReadiness)
	}
	// 100 - (1/4*100 + 1/4*50)
	if snap.Lifecycle != 62.5 {
		t.Errorf("lifecycle = %.1f, want 62.5", snap.Lifecycle)
	}
	// One of three open findings (the 30 day old high) is past its window.
	wantSLA := 100 - 1.0/3.0*100
	if diff := snap.SLA - wantSLA; diff > 0.01 || diff < -0.01 {
		t.Errorf("sla = %.2f, want %.2f", snap.SLA, wantSLA)
	}
	// 4.0 / 5 * 100
	if snap.Compliance != 80 {
		t.Errorf("compliance = %.1f, want 80", snap.Compliance)
	}

	if snap.EOLCount != 1 || snap.DeprecatedCount != 1 || snap.TotalComponents != 4 {
		t.Errorf("tech counts = %d/%d/%d, want 1/1/4", snap.EOLCount, snap.DeprecatedCount, snap.TotalComponents)
	}
	if snap.RiskBreakdown["critical"] != 1 || snap.RiskBreakdown["high"] != 1 || snap.RiskBreakdown["medium"] != 1 {
		t.Errorf("risk breakdown = %v", snap.RiskBreakdown)
	}
}

func TestSnapshotScoreFloors(t *testing.T) {
	now := time.Now().UTC()
	findings := make([]models.Finding, 0, 10)
	for i := 0; i < 10; i++ {
		findings = append(findings, models.Finding{
			Severity:  models.SeverityCritical,
			Status:    models.FindingStatusOpen,
			CreatedAt: now.Add(-100 * 24 * time.Hour),
		})
	}
	dir := &stubDirectory{
		findings: findings,
		items: []models.TechStackItem{
			{LifecycleStatus: models.LifecycleEOL},
			{LifecycleStatus: models.LifecycleEOL},
		},
	}
	calc := NewCalculator(dir)

	snap, err := calc.Snapshot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.AuditReadiness != 0 {
		t.Errorf("audit readiness = %.1f, want floored 0", snap.AuditReadiness)
	}
	if snap.Lifecycle != 0 {
		t.Errorf("lifecycle = %.1f, want floored 0", snap.Lifecycle)
	}
	if snap.SLA != 0 {
		t.Errorf("sla = %.1f, want 0 with every finding overdue", snap.SLA)
	}
	if snap.Grade != "F" {
		t.Errorf("grade = %s, want F", snap.Grade)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		ghi  float64
		want string
	}{
		{95, "A"}, {90, "A"},
		{89.9, "B"}, {80, "B"},
		{79.9, "C"}, {70, "C"},
		{69.9, "D"}, {60, "D"},
		{59.9, "E"}, {50, "E"},
		{49.9, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := gradeFor(tt.ghi); got != tt.want {
			t.Errorf("gradeFor(%.1f) = %s, want %s", tt.ghi, got, tt.want)
		}
	}
}
