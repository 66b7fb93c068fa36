package drift

import (
	"math"
	"time"

	"github.com/trustrail/grc/internal/models"
	"github.com/trustrail/grc/internal/validation"
)

// signalWeights are the per-type weights for the drift impact score. Counts
// are tallied by signal type, not by individual signal severity. Types absent
// from the table (shadow_ai) carry no weight.
var signalWeights = map[SignalType]float64{
	SignalControlRegression: 5,
	SignalRiskEscalation:    3,
	SignalSLABreach:         4,
	SignalTechRisk:          6,
	SignalEvidenceExpiry:    2,
	SignalAuditProximity:    3,
}

func countByType(signals []DriftSignal) map[SignalType]int {
	counts := make(map[SignalType]int)
	for _, sig := range signals {
		counts[sig.Type]++
	}
	return counts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CalculateImpactScore aggregates detected signals into the 0-100 drift
// impact score and its display band. The raw weighted sum is normalized
// against a reference load of 50 and capped at 100.
func CalculateImpactScore(signals []DriftSignal) (float64, Band) {
	var raw float64
	for signalType, count := range countByType(signals) {
		raw += signalWeights[signalType] * float64(count)
	}

	score := round1(math.Min(100, raw/50*100))
	return score, bandFor(score)
}

func bandFor(score float64) Band {
	switch {
	case score <= 20:
		return BandStable
	case score <= 50:
		return BandMildDrift
	case score <= 75:
		return BandElevatedRisk
	default:
		return BandCriticalDrift
	}
}

// SustainabilityIndex scores how maintainable the posture trajectory is:
// four independent 0-25 sub-scores (assessment cadence, remediation velocity,
// finding severity composition, tech-stack health) summed to 0-100.
// assessments should be the organization's most recent assessments (up to 10).
func SustainabilityIndex(assessments []models.Assessment, findings []models.Finding, items []models.TechStackItem) float64 {
	var cadence float64
	switch n := len(assessments); {
	case n >= 3:
		cadence = 25
	case n >= 2:
		cadence = 15
	case n >= 1:
		cadence = 8
	}

	// Zero findings is vacuously sustainable.
	velocity := 25.0
	if total := len(findings); total > 0 {
		var done, critical, high int
		for _, f := range findings {
			switch f.Status {
			case models.FindingStatusResolved, models.FindingStatusAccepted:
				done++
			}
			switch f.Severity {
			case models.SeverityCritical:
				critical++
			case models.SeverityHigh:
				high++
			}
		}
		velocity = float64(done) / float64(total) * 25

		criticalFraction := float64(critical) / float64(total)
		highFraction := float64(high) / float64(total)
		composition := 25 - (criticalFraction*25 + highFraction*10)
		if composition < 0 {
			composition = 0
		}

		techHealth := techHealthScore(items)
		return round1(math.Min(100, cadence+velocity+composition+techHealth))
	}

	return round1(math.Min(100, cadence+velocity+25+techHealthScore(items)))
}

// techHealthScore is the 0-25 tech sub-score: the supported (lts + active)
// share of the inventory. An empty inventory is unknown, not unhealthy.
func techHealthScore(items []models.TechStackItem) float64 {
	if len(items) == 0 {
		return 12.5
	}

	var supported int
	for _, item := range items {
		if item.LifecycleStatus == models.LifecycleLTS || item.LifecycleStatus == models.LifecycleActive {
			supported++
		}
	}
	return float64(supported) / float64(len(items)) * 25
}

// FailureProbability estimates the likelihood (0-100) of failing a compliance
// audit as a weighted blend of GHI inversion, findings risk, evidence
// staleness, and tech risk.
func FailureProbability(snap *validation.Snapshot, latest *models.Assessment, now time.Time) float64 {
	ghiRisk := (100 - snap.GHI) * 0.30
	findingsRisk := (100 - snap.AuditReadiness) * 0.30

	// Never assessed is treated as badly stale, not maximally stale.
	staleness := 80.0
	if latest != nil && latest.CompletedAt != nil {
		ageDays := daysBetween(*latest.CompletedAt, now)
		staleness = math.Min(100, float64(ageDays)/90*100)
	}
	evidenceRisk := staleness * 0.20

	techExposure := 20.0
	if snap.TotalComponents > 0 {
		total := float64(snap.TotalComponents)
		eolRatio := float64(snap.EOLCount) / total
		deprecatedRatio := float64(snap.DeprecatedCount) / total
		techExposure = eolRatio*80 + deprecatedRatio*40
	}
	techRisk := techExposure * 0.20

	probability := ghiRisk + findingsRisk + evidenceRisk + techRisk
	if probability < 0 {
		probability = 0
	}
	if probability > 100 {
		probability = 100
	}
	return round1(probability)
}
