package drift

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/models"
)

var testTime = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectControlRegression(t *testing.T) {
	baseline := &BaselineSnapshot{
		ControlScores: map[string]float64{
			"access_control": 4.0,
			"encryption":     3.5,
			"logging":        2.0,
		},
	}

	tests := []struct {
		name         string
		current      map[string]float64
		wantCount    int
		wantSeverity Severity
	}{
		{
			name:      "no movement",
			current:   map[string]float64{"access_control": 4.0, "encryption": 3.5, "logging": 2.0},
			wantCount: 0,
		},
		{
			name:      "drop below threshold",
			current:   map[string]float64{"access_control": 3.1, "encryption": 3.5, "logging": 2.0},
			wantCount: 0,
		},
		{
			name:         "one point drop is medium",
			current:      map[string]float64{"access_control": 3.0, "encryption": 3.5, "logging": 2.0},
			wantCount:    1,
			wantSeverity: SeverityMedium,
		},
		{
			name:         "one and a half point drop is high",
			current:      map[string]float64{"access_control": 2.5, "encryption": 3.5, "logging": 2.0},
			wantCount:    1,
			wantSeverity: SeverityHigh,
		},
		{
			name:         "two point drop is critical",
			current:      map[string]float64{"access_control": 2.0, "encryption": 3.5, "logging": 2.0},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "missing domain counts as zero",
			current:      map[string]float64{"access_control": 4.0, "encryption": 3.5},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name:      "improvement never signals",
			current:   map[string]float64{"access_control": 5.0, "encryption": 4.5, "logging": 3.0},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := detectControlRegression(baseline, tt.current, testTime)
			if len(signals) != tt.wantCount {
				t.Fatalf("got %d signals, want %d", len(signals), tt.wantCount)
			}
			if tt.wantCount == 1 && signals[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", signals[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestDetectControlRegressionDeterministicOrder(t *testing.T) {
	baseline := &BaselineSnapshot{
		ControlScores: map[string]float64{"b_domain": 4.0, "a_domain": 4.0, "c_domain": 4.0},
	}
	current := map[string]float64{"b_domain": 2.0, "a_domain": 2.0, "c_domain": 2.0}

	first := detectControlRegression(baseline, current, testTime)
	for i := 0; i < 10; i++ {
		again := detectControlRegression(baseline, current, testTime)
		for j := range first {
			if first[j].Title != again[j].Title {
				t.Fatalf("signal order changed between runs: %q vs %q", first[j].Title, again[j].Title)
			}
		}
	}
	if first[0].Metadata["domain_id"] != "a_domain" {
		t.Errorf("first signal domain = %v, want a_domain", first[0].Metadata["domain_id"])
	}
}

func TestDetectRiskEscalation(t *testing.T) {
	tests := []struct {
		name         string
		baseline     float64
		current      float64
		wantCount    int
		wantSeverity Severity
	}{
		{name: "zero baseline never signals", baseline: 0, current: 0, wantCount: 0},
		{name: "small decline ignored", baseline: 80, current: 73, wantCount: 0},
		{name: "ten percent is medium", baseline: 80, current: 72, wantCount: 1, wantSeverity: SeverityMedium},
		{name: "fifteen percent is high", baseline: 80, current: 68, wantCount: 1, wantSeverity: SeverityHigh},
		{name: "twenty five percent is critical", baseline: 80, current: 60, wantCount: 1, wantSeverity: SeverityCritical},
		{name: "improvement ignored", baseline: 60, current: 80, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := detectRiskEscalation(tt.baseline, tt.current, testTime)
			if len(signals) != tt.wantCount {
				t.Fatalf("got %d signals, want %d", len(signals), tt.wantCount)
			}
			if tt.wantCount == 1 && signals[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", signals[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func finding(severity models.FindingSeverity, status models.FindingStatus, ageDays int) models.Finding {
	return models.Finding{
		ID:        uuid.New(),
		Severity:  severity,
		Status:    status,
		CreatedAt: testTime.AddDate(0, 0, -ageDays),
	}
}

func TestDetectSLABreaches(t *testing.T) {
	tests := []struct {
		name         string
		findings     []models.Finding
		wantCount    int
		wantSeverity Severity
		wantOverdue  float64
	}{
		{
			name:      "no findings",
			findings:  nil,
			wantCount: 0,
		},
		{
			name: "critical at exactly seven days is within window",
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 7),
			},
			wantCount: 0,
		},
		{
			name: "critical at eight days is overdue",
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 8),
			},
			wantCount:    1,
			wantSeverity: SeverityMedium,
			wantOverdue:  1,
		},
		{
			name: "resolved findings never count",
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusResolved, 100),
				finding(models.SeverityHigh, models.FindingStatusAccepted, 100),
			},
			wantCount: 0,
		},
		{
			name: "three overdue is high",
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 10),
				finding(models.SeverityHigh, models.FindingStatusInProgress, 20),
				finding(models.SeverityMedium, models.FindingStatusOpen, 40),
			},
			wantCount:    1,
			wantSeverity: SeverityHigh,
			wantOverdue:  3,
		},
		{
			name: "five overdue is critical",
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 10),
				finding(models.SeverityCritical, models.FindingStatusOpen, 12),
				finding(models.SeverityHigh, models.FindingStatusOpen, 20),
				finding(models.SeverityMedium, models.FindingStatusOpen, 40),
				finding(models.SeverityLow, models.FindingStatusOpen, 100),
			},
			wantCount:    1,
			wantSeverity: SeverityCritical,
			wantOverdue:  5,
		},
		{
			name: "unknown severity uses default window",
			findings: []models.Finding{
				finding(models.FindingSeverity("informational"), models.FindingStatusOpen, 31),
			},
			wantCount:    1,
			wantSeverity: SeverityMedium,
			wantOverdue:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := detectSLABreaches(tt.findings, testTime)
			if len(signals) != tt.wantCount {
				t.Fatalf("got %d signals, want %d", len(signals), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if signals[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", signals[0].Severity, tt.wantSeverity)
			}
			if signals[0].Delta == nil || *signals[0].Delta != tt.wantOverdue {
				t.Errorf("delta = %v, want %v", signals[0].Delta, tt.wantOverdue)
			}
		})
	}
}

func TestDetectTechRiskDrift(t *testing.T) {
	baseline := &BaselineSnapshot{EOLComponents: 2, DeprecatedComponents: 3}

	t.Run("both checks fire independently", func(t *testing.T) {
		signals := detectTechRiskDrift(baseline, 4, 5, testTime)
		if len(signals) != 2 {
			t.Fatalf("got %d signals, want 2", len(signals))
		}
		if signals[0].Severity != SeverityCritical {
			t.Errorf("eol severity = %s, want critical", signals[0].Severity)
		}
		if signals[1].Severity != SeverityHigh {
			t.Errorf("deprecated severity = %s, want high", signals[1].Severity)
		}
	})

	t.Run("improvement never signals", func(t *testing.T) {
		if signals := detectTechRiskDrift(baseline, 1, 2, testTime); len(signals) != 0 {
			t.Fatalf("got %d signals, want 0", len(signals))
		}
	})

	t.Run("no change", func(t *testing.T) {
		if signals := detectTechRiskDrift(baseline, 2, 3, testTime); len(signals) != 0 {
			t.Fatalf("got %d signals, want 0", len(signals))
		}
	})
}

func TestDetectEvidenceExpiry(t *testing.T) {
	completed := func(ageDays int) *models.Assessment {
		at := testTime.AddDate(0, 0, -ageDays)
		return &models.Assessment{ID: uuid.New(), Status: models.AssessmentStatusCompleted, CompletedAt: &at}
	}

	tests := []struct {
		name         string
		latest       *models.Assessment
		wantCount    int
		wantSeverity Severity
	}{
		{name: "never assessed", latest: nil, wantCount: 1, wantSeverity: SeverityHigh},
		{name: "completed without timestamp", latest: &models.Assessment{ID: uuid.New()}, wantCount: 1, wantSeverity: SeverityHigh},
		{name: "fresh evidence", latest: completed(30), wantCount: 0},
		{name: "exactly ninety days", latest: completed(90), wantCount: 0},
		{name: "ninety one days is medium", latest: completed(91), wantCount: 1, wantSeverity: SeverityMedium},
		{name: "over one eighty is high", latest: completed(181), wantCount: 1, wantSeverity: SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := detectEvidenceExpiry(tt.latest, testTime)
			if len(signals) != tt.wantCount {
				t.Fatalf("got %d signals, want %d", len(signals), tt.wantCount)
			}
			if tt.wantCount == 1 && signals[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", signals[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestDetectAuditProximity(t *testing.T) {
	entry := func(daysOut int) models.AuditCalendarEntry {
		return models.AuditCalendarEntry{
			ID:        uuid.New(),
			Framework: "SOC 2",
			AuditDate: testTime.AddDate(0, 0, daysOut),
		}
	}

	t.Run("no open high or critical findings means no signal", func(t *testing.T) {
		signals := detectAuditProximity([]models.AuditCalendarEntry{entry(5)}, 0, testTime, discardLogger())
		if len(signals) != 0 {
			t.Fatalf("got %d signals, want 0", len(signals))
		}
	})

	t.Run("audit under fourteen days is critical", func(t *testing.T) {
		signals := detectAuditProximity([]models.AuditCalendarEntry{entry(13)}, 2, testTime, discardLogger())
		if len(signals) != 1 {
			t.Fatalf("got %d signals, want 1", len(signals))
		}
		if signals[0].Severity != SeverityCritical {
			t.Errorf("severity = %s, want critical", signals[0].Severity)
		}
	})

	t.Run("audit beyond fourteen days is high", func(t *testing.T) {
		signals := detectAuditProximity([]models.AuditCalendarEntry{entry(20)}, 2, testTime, discardLogger())
		if len(signals) != 1 {
			t.Fatalf("got %d signals, want 1", len(signals))
		}
		if signals[0].Severity != SeverityHigh {
			t.Errorf("severity = %s, want high", signals[0].Severity)
		}
	})

	t.Run("one signal per upcoming audit", func(t *testing.T) {
		entries := []models.AuditCalendarEntry{entry(5), entry(25)}
		signals := detectAuditProximity(entries, 1, testTime, discardLogger())
		if len(signals) != 2 {
			t.Fatalf("got %d signals, want 2", len(signals))
		}
	})

	t.Run("zero date entries are skipped", func(t *testing.T) {
		entries := []models.AuditCalendarEntry{{ID: uuid.New(), Framework: "ISO 27001"}}
		signals := detectAuditProximity(entries, 3, testTime, discardLogger())
		if len(signals) != 0 {
			t.Fatalf("got %d signals, want 0", len(signals))
		}
	})
}
