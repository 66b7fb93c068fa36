// Package drift implements continuous control integrity monitoring: baseline
// snapshots of compliance posture, multi-signal deviation detection against
// the latest baseline, and the derived scores (drift impact, sustainability,
// audit failure probability, regulatory forecast).
package drift

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrOrganizationNotFound is returned when an operation references an
// organization that does not exist. The API layer maps it to 404.
var ErrOrganizationNotFound = errors.New("organization not found")

// SignalType identifies the category of a detected deviation.
type SignalType string

const (
	SignalControlRegression SignalType = "control_regression"
	SignalRiskEscalation    SignalType = "risk_escalation"
	SignalSLABreach         SignalType = "sla_breach"
	SignalEvidenceExpiry    SignalType = "evidence_expiry"
	SignalTechRisk          SignalType = "tech_risk"
	SignalAuditProximity    SignalType = "audit_proximity"
	SignalShadowAI          SignalType = "shadow_ai"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Band buckets a drift impact score for display. BandNoBaseline is the
// sentinel used when no baseline exists and the score cannot be computed.
type Band string

const (
	BandStable        Band = "Stable"
	BandMildDrift     Band = "Mild Drift"
	BandElevatedRisk  Band = "Elevated Risk"
	BandCriticalDrift Band = "Critical Drift"
	BandNoBaseline    Band = "No Baseline"
)

func (b Band) Color() string {
	switch b {
	case BandStable:
		return "green"
	case BandMildDrift:
		return "yellow"
	case BandElevatedRisk:
		return "orange"
	case BandCriticalDrift:
		return "red"
	default:
		return "gray"
	}
}

// BaselineSnapshot is an immutable capture of compliance posture at a point
// in time. Versions are monotonically increasing per organization, starting
// at 1; baselines are never mutated or deduplicated after creation.
type BaselineSnapshot struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Version        int       `json:"version"`

	GHI            float64 `json:"ghi"`
	GHIGrade       string  `json:"ghi_grade"`
	AuditReadiness float64 `json:"audit_readiness_score"`
	Lifecycle      float64 `json:"lifecycle_score"`
	SLA            float64 `json:"sla_score"`
	Compliance     float64 `json:"compliance_score"`

	ControlScores map[string]float64 `json:"control_scores"`
	OverallScore  *float64           `json:"overall_score,omitempty"`

	RiskCategories    map[string]int `json:"risk_categories"`
	OpenFindingsCount int            `json:"open_findings_count"`
	CriticalFindings  int            `json:"critical_findings"`
	HighFindings      int            `json:"high_findings"`

	EOLComponents        int `json:"eol_components"`
	DeprecatedComponents int `json:"deprecated_components"`
	TotalTechComponents  int `json:"total_tech_components"`

	CreatedAt time.Time `json:"created_at"`

	// StorageWarning is set when the backing document-store write failed.
	// The snapshot was still computed and returned, but is not durable.
	StorageWarning string `json:"storage_warning,omitempty"`
}

// DriftSignal is a single detected deviation from baseline or an absolute
// threshold. Signals are transient; they exist only embedded in a DriftResult.
// Delta is negative for score degradations; count-based detectors store the
// count and note the convention in metadata.
type DriftSignal struct {
	Type        SignalType             `json:"signal_type"`
	Severity    Severity               `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Delta       *float64               `json:"delta,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	DetectedAt  time.Time              `json:"detected_at"`
}

// DriftResult is the output of one analysis run, persisted as an append-only
// history entry. Baseline-relative fields are nil when no baseline exists.
type DriftResult struct {
	OrganizationID uuid.UUID `json:"organization_id"`

	BaselineID   *uuid.UUID `json:"baseline_id,omitempty"`
	BaselineDate *time.Time `json:"baseline_date,omitempty"`

	CurrentGHI  float64  `json:"current_ghi"`
	BaselineGHI *float64 `json:"baseline_ghi,omitempty"`
	GHIDelta    *float64 `json:"ghi_delta,omitempty"`

	ImpactScore *float64 `json:"drift_impact_score,omitempty"`
	Band        Band     `json:"drift_band"`
	BandColor   string   `json:"drift_band_color"`

	Signals      []DriftSignal      `json:"signals"`
	SignalCounts map[SignalType]int `json:"signal_counts"`

	SustainabilityIndex     float64 `json:"compliance_sustainability_index"`
	AuditFailureProbability float64 `json:"audit_failure_probability"`

	Forecast *ForecastReport `json:"forecast_summary,omitempty"`

	// Guidance is set instead of a score when no baseline exists.
	Guidance string `json:"guidance,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// DriftTimelineEntry is a reduced per-baseline view for charting, derived
// from baseline history alone. Never persisted.
type DriftTimelineEntry struct {
	Date         time.Time `json:"date"`
	GHI          float64   `json:"ghi"`
	DriftScore   float64   `json:"drift_score"`
	SignalsCount int       `json:"signals_count"`
	Band         Band      `json:"band"`
	BandColor    string    `json:"band_color"`
}

// ForecastReport projects GHI erosion from upcoming regulatory events over a
// horizon. Regulations are sorted by proximity, with per-event weighted
// impact for explainability.
type ForecastReport struct {
	OrganizationID uuid.UUID          `json:"organization_id"`
	HorizonDays    int                `json:"horizon_days"`
	CurrentGHI     float64            `json:"current_ghi"`
	TotalImpact    float64            `json:"total_impact"`
	PredictedDrop  float64            `json:"predicted_drop"`
	PredictedGHI   float64            `json:"predicted_ghi"`
	Regulations    []RegulationImpact `json:"regulations"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

type RegulationImpact struct {
	Name           string    `json:"name"`
	EffectiveDate  time.Time `json:"effective_date"`
	DaysUntil      int       `json:"days_until"`
	ImpactWeight   float64   `json:"impact_weight"`
	WeightedImpact float64   `json:"weighted_impact"`
}
