package drift

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trustrail/grc/internal/models"
)

// The detectors are stateless pure functions over an already-fetched view of
// current state. All data access happens in the Service before detection
// starts, so these are trivially safe to run in any order.

// slaThresholdDays maps finding severity to its remediation window. A finding
// is overdue only once its age strictly exceeds the window.
var slaThresholdDays = map[models.FindingSeverity]int{
	models.SeverityCritical: 7,
	models.SeverityHigh:     14,
	models.SeverityMedium:   30,
	models.SeverityLow:      90,
}

const defaultSLAThresholdDays = 30

func daysBetween(from, to time.Time) int {
	return int(to.UTC().Sub(from.UTC()).Hours() / 24)
}

func floatPtr(v float64) *float64 { return &v }

// detectControlRegression flags assessment domains whose score dropped at
// least a full point from the baseline on the 0-5 scale. A domain missing
// from the current assessment counts as having dropped to zero.
func detectControlRegression(baseline *BaselineSnapshot, current map[string]float64, now time.Time) []DriftSignal {
	domains := make([]string, 0, len(baseline.ControlScores))
	for d := range baseline.ControlScores {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	var signals []DriftSignal
	for _, domain := range domains {
		baseScore := baseline.ControlScores[domain]
		curScore := current[domain]
		drop := baseScore - curScore
		if drop < 1.0 {
			continue
		}

		severity := SeverityMedium
		switch {
		case drop >= 2.0:
			severity = SeverityCritical
		case drop >= 1.5:
			severity = SeverityHigh
		}

		signals = append(signals, DriftSignal{
			Type:        SignalControlRegression,
			Severity:    severity,
			Title:       fmt.Sprintf("Control Regression: %s", domain),
			Description: fmt.Sprintf("Domain score dropped from %.1f to %.1f since the baseline", baseScore, curScore),
			Delta:       floatPtr(curScore - baseScore),
			Metadata: map[string]interface{}{
				"domain_id":      domain,
				"baseline_score": baseScore,
				"current_score":  curScore,
			},
			DetectedAt: now,
		})
	}
	return signals
}

// detectRiskEscalation flags a relative GHI decline of 10% or more against
// the baseline. A zero baseline GHI never signals.
func detectRiskEscalation(baselineGHI, currentGHI float64, now time.Time) []DriftSignal {
	if baselineGHI <= 0 {
		return nil
	}

	pctChange := (baselineGHI - currentGHI) / baselineGHI * 100
	if pctChange < 10 {
		return nil
	}

	severity := SeverityMedium
	switch {
	case pctChange >= 25:
		severity = SeverityCritical
	case pctChange >= 15:
		severity = SeverityHigh
	}

	return []DriftSignal{{
		Type:        SignalRiskEscalation,
		Severity:    severity,
		Title:       "Governance Health Index Decline",
		Description: fmt.Sprintf("GHI dropped %.1f%% from the baseline (%.1f to %.1f)", pctChange, baselineGHI, currentGHI),
		Delta:       floatPtr(currentGHI - baselineGHI),
		Metadata: map[string]interface{}{
			"baseline_ghi": baselineGHI,
			"current_ghi":  currentGHI,
			"pct_change":   pctChange,
		},
		DetectedAt: now,
	}}
}

// detectSLABreaches emits one aggregate signal when any open or in-progress
// finding has outlived its severity's remediation window.
func detectSLABreaches(findings []models.Finding, now time.Time) []DriftSignal {
	var overdue int
	overdueBySeverity := make(map[string]int)

	for _, f := range findings {
		if !f.Status.IsActionable() {
			continue
		}

		threshold, ok := slaThresholdDays[f.Severity]
		if !ok {
			threshold = defaultSLAThresholdDays
		}

		if daysBetween(f.CreatedAt, now) > threshold {
			overdue++
			overdueBySeverity[string(f.Severity)]++
		}
	}

	if overdue == 0 {
		return nil
	}

	severity := SeverityMedium
	switch {
	case overdue >= 5:
		severity = SeverityCritical
	case overdue >= 3:
		severity = SeverityHigh
	}

	return []DriftSignal{{
		Type:        SignalSLABreach,
		Severity:    severity,
		Title:       "Findings Past Remediation SLA",
		Description: fmt.Sprintf("%d open findings have exceeded their remediation window", overdue),
		Delta:       floatPtr(float64(overdue)),
		Metadata: map[string]interface{}{
			"overdue_count":       overdue,
			"overdue_by_severity": overdueBySeverity,
		},
		DetectedAt: now,
	}}
}

// detectTechRiskDrift compares current EOL/deprecated component counts to the
// baseline's. The two checks are independent and may both fire in one run;
// improvements never signal.
func detectTechRiskDrift(baseline *BaselineSnapshot, currentEOL, currentDeprecated int, now time.Time) []DriftSignal {
	var signals []DriftSignal

	if newEOL := currentEOL - baseline.EOLComponents; newEOL > 0 {
		signals = append(signals, DriftSignal{
			Type:        SignalTechRisk,
			Severity:    SeverityCritical,
			Title:       "New End-of-Life Components",
			Description: fmt.Sprintf("%d components reached end-of-life since the baseline", newEOL),
			Delta:       floatPtr(float64(newEOL)),
			Metadata: map[string]interface{}{
				"baseline_eol": baseline.EOLComponents,
				"current_eol":  currentEOL,
				"new_eol":      newEOL,
			},
			DetectedAt: now,
		})
	}

	if newDeprecated := currentDeprecated - baseline.DeprecatedComponents; newDeprecated > 0 {
		signals = append(signals, DriftSignal{
			Type:        SignalTechRisk,
			Severity:    SeverityHigh,
			Title:       "New Deprecated Components",
			Description: fmt.Sprintf("%d components became deprecated since the baseline", newDeprecated),
			Delta:       floatPtr(float64(newDeprecated)),
			Metadata: map[string]interface{}{
				"baseline_deprecated": baseline.DeprecatedComponents,
				"current_deprecated":  currentDeprecated,
				"new_deprecated":      newDeprecated,
			},
			DetectedAt: now,
		})
	}

	return signals
}

// detectEvidenceExpiry checks how stale the latest completed assessment is.
// Assessment evidence older than 90 days signals; no completed assessment at
// all is itself a high-severity gap.
func detectEvidenceExpiry(latest *models.Assessment, now time.Time) []DriftSignal {
	if latest == nil || latest.CompletedAt == nil {
		return []DriftSignal{{
			Type:        SignalEvidenceExpiry,
			Severity:    SeverityHigh,
			Title:       "No Completed Assessment",
			Description: "The organization has never completed a control assessment",
			Metadata: map[string]interface{}{
				"completed_assessments": 0,
			},
			DetectedAt: now,
		}}
	}

	ageDays := daysBetween(*latest.CompletedAt, now)
	if ageDays <= 90 {
		return nil
	}

	severity := SeverityMedium
	if ageDays > 180 {
		severity = SeverityHigh
	}

	return []DriftSignal{{
		Type:        SignalEvidenceExpiry,
		Severity:    severity,
		Title:       "Assessment Evidence Expiring",
		Description: fmt.Sprintf("The latest completed assessment is %d days old", ageDays),
		Delta:       floatPtr(float64(ageDays - 90)),
		Metadata: map[string]interface{}{
			"assessment_id": latest.ID.String(),
			"age_days":      ageDays,
			"completed_at":  latest.CompletedAt.UTC().Format(time.RFC3339),
		},
		DetectedAt: now,
	}}
}

// detectAuditProximity signals per upcoming audit when open high or critical
// findings would be exposed to it. No open high/critical findings means no
// signal regardless of how close an audit is. Entries with a missing audit
// date are skipped and logged rather than assumed to be 30 days out.
func detectAuditProximity(entries []models.AuditCalendarEntry, openHighCritical int, now time.Time, logger *slog.Logger) []DriftSignal {
	if openHighCritical == 0 {
		return nil
	}

	var signals []DriftSignal
	for _, entry := range entries {
		if entry.AuditDate.IsZero() {
			logger.Warn("audit calendar entry has no date, skipping proximity check",
				"entry_id", entry.ID,
				"framework", entry.Framework)
			continue
		}

		daysUntil := daysBetween(now, entry.AuditDate)
		severity := SeverityHigh
		if daysUntil < 14 {
			severity = SeverityCritical
		}

		signals = append(signals, DriftSignal{
			Type:        SignalAuditProximity,
			Severity:    severity,
			Title:       fmt.Sprintf("Upcoming %s Audit With Open Findings", entry.Framework),
			Description: fmt.Sprintf("%s audit in %d days while %d high or critical findings remain open", entry.Framework, daysUntil, openHighCritical),
			Metadata: map[string]interface{}{
				"framework":          entry.Framework,
				"audit_date":         entry.AuditDate.UTC().Format(time.RFC3339),
				"days_until":         daysUntil,
				"open_high_findings": openHighCritical,
			},
			DetectedAt: now,
		})
	}
	return signals
}
