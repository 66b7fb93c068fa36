package drift

import (
	"testing"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/models"
	"github.com/trustrail/grc/internal/validation"
)

func signalsOf(types ...SignalType) []DriftSignal {
	signals := make([]DriftSignal, 0, len(types))
	for _, st := range types {
		signals = append(signals, DriftSignal{Type: st, Severity: SeverityMedium, DetectedAt: testTime})
	}
	return signals
}

func TestCalculateImpactScore(t *testing.T) {
	tests := []struct {
		name      string
		signals   []DriftSignal
		wantScore float64
		wantBand  Band
	}{
		{
			name:      "no signals",
			signals:   nil,
			wantScore: 0,
			wantBand:  BandStable,
		},
		{
			name:      "two regressions sit on the stable boundary",
			signals:   signalsOf(SignalControlRegression, SignalControlRegression),
			wantScore: 20.0,
			wantBand:  BandStable,
		},
		{
			name:      "mixed load lands in mild drift",
			signals:   signalsOf(SignalControlRegression, SignalControlRegression, SignalControlRegression, SignalSLABreach),
			wantScore: 38.0,
			wantBand:  BandMildDrift,
		},
		{
			name: "heavy tech drift is elevated",
			signals: signalsOf(SignalTechRisk, SignalTechRisk, SignalTechRisk,
				SignalTechRisk, SignalTechRisk, SignalTechRisk),
			wantScore: 72.0,
			wantBand:  BandElevatedRisk,
		},
		{
			name: "raw weight at reference load caps at one hundred",
			signals: signalsOf(SignalTechRisk, SignalTechRisk, SignalTechRisk, SignalTechRisk,
				SignalTechRisk, SignalTechRisk, SignalTechRisk, SignalTechRisk,
				SignalControlRegression, SignalControlRegression),
			wantScore: 100.0,
			wantBand:  BandCriticalDrift,
		},
		{
			name:      "shadow ai signals carry no weight",
			signals:   signalsOf(SignalShadowAI, SignalShadowAI, SignalShadowAI),
			wantScore: 0,
			wantBand:  BandStable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, band := CalculateImpactScore(tt.signals)
			if score != tt.wantScore {
				t.Errorf("score = %.1f, want %.1f", score, tt.wantScore)
			}
			if band != tt.wantBand {
				t.Errorf("band = %s, want %s", band, tt.wantBand)
			}
		})
	}
}

func TestBandBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Band
	}{
		{0, BandStable},
		{20.0, BandStable},
		{20.1, BandMildDrift},
		{50.0, BandMildDrift},
		{50.1, BandElevatedRisk},
		{75.0, BandElevatedRisk},
		{75.1, BandCriticalDrift},
		{100, BandCriticalDrift},
	}

	for _, tt := range tests {
		if got := bandFor(tt.score); got != tt.want {
			t.Errorf("bandFor(%.1f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestBandColor(t *testing.T) {
	tests := []struct {
		band Band
		want string
	}{
		{BandStable, "green"},
		{BandMildDrift, "yellow"},
		{BandElevatedRisk, "orange"},
		{BandCriticalDrift, "red"},
		{BandNoBaseline, "gray"},
	}
	for _, tt := range tests {
		if got := tt.band.Color(); got != tt.want {
			t.Errorf("%s color = %s, want %s", tt.band, got, tt.want)
		}
	}
}

func TestSustainabilityIndex(t *testing.T) {
	assessment := models.Assessment{ID: uuid.New()}
	supported := models.TechStackItem{LifecycleStatus: models.LifecycleActive}
	lts := models.TechStackItem{LifecycleStatus: models.LifecycleLTS}
	eol := models.TechStackItem{LifecycleStatus: models.LifecycleEOL}
	deprecated := models.TechStackItem{LifecycleStatus: models.LifecycleDeprecated}

	tests := []struct {
		name        string
		assessments []models.Assessment
		findings    []models.Finding
		items       []models.TechStackItem
		want        float64
	}{
		{
			name: "empty organization",
			// cadence 0, velocity 25 (vacuous), composition 25, tech 12.5
			want: 62.5,
		},
		{
			name:        "regular cadence with clean posture",
			assessments: []models.Assessment{assessment, assessment, assessment},
			items:       []models.TechStackItem{supported, lts},
			want:        100.0,
		},
		{
			name:        "mixed posture",
			assessments: []models.Assessment{assessment},
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 1),
				finding(models.SeverityHigh, models.FindingStatusOpen, 1),
				finding(models.SeverityMedium, models.FindingStatusResolved, 1),
				finding(models.SeverityLow, models.FindingStatusAccepted, 1),
			},
			items: []models.TechStackItem{supported, lts, eol, deprecated},
			// cadence 8, velocity 12.5, composition 25-(6.25+2.5)=16.25, tech 12.5
			want: 49.3,
		},
		{
			name:        "two assessments",
			assessments: []models.Assessment{assessment, assessment},
			// cadence 15, velocity 25, composition 25, tech 12.5
			want: 77.5,
		},
		{
			name:        "all critical open findings floor the composition",
			assessments: []models.Assessment{assessment, assessment, assessment},
			findings: []models.Finding{
				finding(models.SeverityCritical, models.FindingStatusOpen, 1),
				finding(models.SeverityCritical, models.FindingStatusOpen, 1),
			},
			items: []models.TechStackItem{supported},
			// cadence 25, velocity 0, composition 0, tech 25
			want: 50.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SustainabilityIndex(tt.assessments, tt.findings, tt.items)
			if got != tt.want {
				t.Errorf("index = %.1f, want %.1f", got, tt.want)
			}
		})
	}
}

func TestFailureProbability(t *testing.T) {
	completedAt := func(ageDays int) *models.Assessment {
		at := testTime.AddDate(0, 0, -ageDays)
		return &models.Assessment{ID: uuid.New(), CompletedAt: &at}
	}

	tests := []struct {
		name   string
		snap   *validation.Snapshot
		latest *models.Assessment
		want   float64
	}{
		{
			name: "healthy organization",
			snap: &validation.Snapshot{
				GHI: 80, AuditReadiness: 70,
				TotalComponents: 10, EOLCount: 1, DeprecatedCount: 1,
			},
			latest: completedAt(45),
			// 6 + 9 + 10 + 2.4
			want: 27.4,
		},
		{
			name: "never assessed uses the stale default",
			snap: &validation.Snapshot{
				GHI: 80, AuditReadiness: 70,
				TotalComponents: 10, EOLCount: 1, DeprecatedCount: 1,
			},
			latest: nil,
			// 6 + 9 + 16 + 2.4
			want: 33.4,
		},
		{
			name:   "no inventory uses the unknown tech default",
			snap:   &validation.Snapshot{GHI: 80, AuditReadiness: 70},
			latest: completedAt(45),
			// 6 + 9 + 10 + 4
			want: 29.0,
		},
		{
			name: "ancient evidence staleness caps at one hundred",
			snap: &validation.Snapshot{
				GHI: 50, AuditReadiness: 50,
				TotalComponents: 4, EOLCount: 4,
			},
			latest: completedAt(900),
			// 15 + 15 + 20 + 16
			want: 66.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FailureProbability(tt.snap, tt.latest, testTime)
			if got != tt.want {
				t.Errorf("probability = %.1f, want %.1f", got, tt.want)
			}
		})
	}
}

func TestCountByType(t *testing.T) {
	signals := signalsOf(SignalTechRisk, SignalTechRisk, SignalSLABreach)
	counts := countByType(signals)
	if counts[SignalTechRisk] != 2 || counts[SignalSLABreach] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if _, ok := counts[SignalControlRegression]; ok {
		t.Error("absent types must not appear in the count map")
	}
}
