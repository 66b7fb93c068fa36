package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/docstore"
	"github.com/trustrail/grc/internal/models"
	"github.com/trustrail/grc/internal/validation"
)

const auditProximityWindowDays = 30

// Directory is the relational query surface the engine reads domain records
// from. Implemented by the store package.
type Directory interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	ListAssessments(ctx context.Context, orgID uuid.UUID, limit int) ([]models.Assessment, error)
	LatestCompletedAssessment(ctx context.Context, orgID uuid.UUID) (*models.Assessment, error)
	ListFindings(ctx context.Context, orgID uuid.UUID) ([]models.Finding, error)
	ListTechStackItems(ctx context.Context, orgID uuid.UUID) ([]models.TechStackItem, error)
	ListUpcomingAudits(ctx context.Context, orgID uuid.UUID, until time.Time) ([]models.AuditCalendarEntry, error)
}

// DocumentStore holds the engine's own output: per-organization ordered
// collections of baselines and drift results. The engine owns the document
// schema; the store only guarantees atomic appends and consistent
// latest-N reads.
type DocumentStore interface {
	Append(ctx context.Context, collection string, orgID uuid.UUID, createdAt time.Time, doc interface{}) error
	Latest(ctx context.Context, collection string, orgID uuid.UUID, limit int) ([][]byte, error)
	Count(ctx context.Context, collection string, orgID uuid.UUID) (int64, error)
}

// Service orchestrates the drift engine: it fetches an immutable view of
// current state up front, then runs the stateless detectors and calculators
// over it. The service itself holds no per-request state.
type Service struct {
	dir       Directory
	docs      DocumentStore
	snapshots validation.Provider
	logger    *slog.Logger

	historyLimit int
}

func NewService(dir Directory, docs DocumentStore, snapshots validation.Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		dir:          dir,
		docs:         docs,
		snapshots:    snapshots,
		logger:       logger,
		historyLimit: 50,
	}
}

// CreateBaseline captures the organization's current posture as a new
// immutable baseline version. Baselines are never deduplicated: two calls
// with no intervening changes produce identical content under distinct
// id/version/created_at.
//
// A failed document-store write does not fail the call: the computed snapshot
// is returned with StorageWarning set so the caller can distinguish a durable
// baseline from a best-effort one.
func (s *Service) CreateBaseline(ctx context.Context, orgID uuid.UUID) (*BaselineSnapshot, error) {
	org, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	snap, err := s.snapshots.Snapshot(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("fetching validation snapshot: %w", err)
	}

	latest, err := s.dir.LatestCompletedAssessment(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading latest assessment: %w", err)
	}

	controlScores := make(map[string]float64)
	var overallScore *float64
	if latest != nil {
		for domain, score := range latest.DomainScores {
			controlScores[domain] = score
		}
		overallScore = latest.OverallScore
	}

	version := 1
	if count, err := s.docs.Count(ctx, docstore.CollectionBaselines, orgID); err != nil {
		s.logger.Warn("baseline count unavailable, defaulting version",
			"organization_id", orgID, "error", err)
	} else {
		version = int(count) + 1
	}

	baseline := &BaselineSnapshot{
		ID:                   uuid.New(),
		OrganizationID:       orgID,
		Version:              version,
		GHI:                  snap.GHI,
		GHIGrade:             snap.Grade,
		AuditReadiness:       snap.AuditReadiness,
		Lifecycle:            snap.Lifecycle,
		SLA:                  snap.SLA,
		Compliance:           snap.Compliance,
		ControlScores:        controlScores,
		OverallScore:         overallScore,
		RiskCategories:       snap.RiskBreakdown,
		OpenFindingsCount:    snap.OpenFindingsTotal,
		CriticalFindings:     snap.CriticalCount,
		HighFindings:         snap.HighCount,
		EOLComponents:        snap.EOLCount,
		DeprecatedComponents: snap.DeprecatedCount,
		TotalTechComponents:  snap.TotalComponents,
		CreatedAt:            time.Now().UTC(),
	}

	if err := s.docs.Append(ctx, docstore.CollectionBaselines, orgID, baseline.CreatedAt, baseline); err != nil {
		s.logger.Error("baseline write failed, returning unpersisted snapshot",
			"organization_id", orgID, "version", version, "error", err)
		baseline.StorageWarning = fmt.Sprintf("baseline write failed: %v", err)
		return baseline, nil
	}

	s.logger.Info("baseline created",
		"organization_id", orgID,
		"version", version,
		"ghi", baseline.GHI)

	return baseline, nil
}

// CalculateDrift runs one full analysis: current snapshot, latest baseline,
// the six detectors, the impact score, and the independent sustainability,
// failure-probability, and forecast calculators. The result is appended to
// the drift history; a history write failure is logged, never fatal.
//
// Without a baseline the result carries the No Baseline band, an empty signal
// list, and guidance instead of a score; the baseline-independent scores are
// still computed.
func (s *Service) CalculateDrift(ctx context.Context, orgID uuid.UUID) (*DriftResult, error) {
	org, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	now := time.Now().UTC()

	snap, err := s.snapshots.Snapshot(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("fetching validation snapshot: %w", err)
	}

	findings, err := s.dir.ListFindings(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}

	items, err := s.dir.ListTechStackItems(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing tech stack: %w", err)
	}

	latest, err := s.dir.LatestCompletedAssessment(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading latest assessment: %w", err)
	}

	assessments, err := s.dir.ListAssessments(ctx, orgID, 10)
	if err != nil {
		return nil, fmt.Errorf("listing assessments: %w", err)
	}

	upcomingAudits, err := s.dir.ListUpcomingAudits(ctx, orgID, now.AddDate(0, 0, auditProximityWindowDays))
	if err != nil {
		return nil, fmt.Errorf("listing upcoming audits: %w", err)
	}

	result := &DriftResult{
		OrganizationID:          orgID,
		CurrentGHI:              snap.GHI,
		Signals:                 []DriftSignal{},
		SignalCounts:            map[SignalType]int{},
		SustainabilityIndex:     SustainabilityIndex(assessments, findings, items),
		AuditFailureProbability: FailureProbability(snap, latest, now),
		Forecast:                forecastRegulatoryLag(org, snap.GHI, defaultHorizonDays, now),
		AnalyzedAt:              now,
	}

	baseline := s.latestBaseline(ctx, orgID)
	if baseline == nil {
		result.Band = BandNoBaseline
		result.BandColor = result.Band.Color()
		result.Guidance = "No baseline exists for this organization. Create a baseline to enable drift detection."
	} else {
		currentScores := map[string]float64{}
		if latest != nil && latest.DomainScores != nil {
			currentScores = latest.DomainScores
		}

		var currentEOL, currentDeprecated, openHighCritical int
		for _, item := range items {
			switch item.LifecycleStatus {
			case models.LifecycleEOL:
				currentEOL++
			case models.LifecycleDeprecated:
				currentDeprecated++
			}
		}
		for _, f := range findings {
			if f.Status.IsActionable() &&
				(f.Severity == models.SeverityCritical || f.Severity == models.SeverityHigh) {
				openHighCritical++
			}
		}

		var signals []DriftSignal
		signals = append(signals, detectControlRegression(baseline, currentScores, now)...)
		signals = append(signals, detectRiskEscalation(baseline.GHI, snap.GHI, now)...)
		signals = append(signals, detectSLABreaches(findings, now)...)
		signals = append(signals, detectTechRiskDrift(baseline, currentEOL, currentDeprecated, now)...)
		signals = append(signals, detectEvidenceExpiry(latest, now)...)
		signals = append(signals, detectAuditProximity(upcomingAudits, openHighCritical, now, s.logger)...)

		score, band := CalculateImpactScore(signals)

		result.BaselineID = &baseline.ID
		result.BaselineDate = &baseline.CreatedAt
		result.BaselineGHI = floatPtr(baseline.GHI)
		result.GHIDelta = floatPtr(round1(snap.GHI - baseline.GHI))
		result.ImpactScore = &score
		result.Band = band
		result.BandColor = band.Color()
		if signals != nil {
			result.Signals = signals
		}
		result.SignalCounts = countByType(signals)
	}

	if err := s.docs.Append(ctx, docstore.CollectionDriftResults, orgID, now, result); err != nil {
		s.logger.Warn("drift result history write failed",
			"organization_id", orgID, "error", err)
	}

	s.logger.Info("drift analysis complete",
		"organization_id", orgID,
		"band", result.Band,
		"signal_count", len(result.Signals))

	return result, nil
}

// DriftTimeline derives a charting series from baseline history alone: each
// entry scores one baseline against its predecessor using the
// baseline-comparable detectors. The oldest baseline anchors the series at
// zero drift.
func (s *Service) DriftTimeline(ctx context.Context, orgID uuid.UUID, limit int) ([]DriftTimelineEntry, error) {
	if limit <= 0 {
		limit = 30
	}

	baselines := s.loadBaselines(ctx, orgID, limit)

	sort.Slice(baselines, func(i, j int) bool {
		return baselines[i].CreatedAt.Before(baselines[j].CreatedAt)
	})

	entries := make([]DriftTimelineEntry, 0, len(baselines))
	for i := range baselines {
		current := &baselines[i]

		var score float64
		var band Band = BandStable
		var signalCount int

		if i > 0 {
			previous := &baselines[i-1]
			var signals []DriftSignal
			signals = append(signals, detectControlRegression(previous, current.ControlScores, current.CreatedAt)...)
			signals = append(signals, detectRiskEscalation(previous.GHI, current.GHI, current.CreatedAt)...)
			signals = append(signals, detectTechRiskDrift(previous, current.EOLComponents, current.DeprecatedComponents, current.CreatedAt)...)

			score, band = CalculateImpactScore(signals)
			signalCount = len(signals)
		}

		entries = append(entries, DriftTimelineEntry{
			Date:         current.CreatedAt,
			GHI:          current.GHI,
			DriftScore:   score,
			SignalsCount: signalCount,
			Band:         band,
			BandColor:    band.Color(),
		})
	}

	return entries, nil
}

// CheckShadowAIRisk evaluates the provided inventory items directly.
func (s *Service) CheckShadowAIRisk(items []models.TechStackItem) []DriftSignal {
	return CheckShadowAIRisk(items, time.Now().UTC())
}

// OrganizationShadowAIRisk runs the shadow AI check over the organization's
// registered tech stack.
func (s *Service) OrganizationShadowAIRisk(ctx context.Context, orgID uuid.UUID) ([]DriftSignal, error) {
	org, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	items, err := s.dir.ListTechStackItems(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing tech stack: %w", err)
	}

	return CheckShadowAIRisk(items, time.Now().UTC()), nil
}

// SustainabilityIndex computes the organization's compliance sustainability
// index from its recent assessments, findings, and tech inventory.
func (s *Service) SustainabilityIndex(ctx context.Context, orgID uuid.UUID) (float64, error) {
	assessments, err := s.dir.ListAssessments(ctx, orgID, 10)
	if err != nil {
		return 0, fmt.Errorf("listing assessments: %w", err)
	}

	findings, err := s.dir.ListFindings(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("listing findings: %w", err)
	}

	items, err := s.dir.ListTechStackItems(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("listing tech stack: %w", err)
	}

	return SustainabilityIndex(assessments, findings, items), nil
}

// AuditFailureProbability estimates the likelihood of failing an audit. An
// unresolvable organization yields the 50.0 maximal-uncertainty sentinel
// rather than an error.
func (s *Service) AuditFailureProbability(ctx context.Context, orgID uuid.UUID) (float64, error) {
	org, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil || org == nil {
		if err != nil {
			s.logger.Warn("organization lookup failed for failure probability",
				"organization_id", orgID, "error", err)
		}
		return 50.0, nil
	}

	snap, err := s.snapshots.Snapshot(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("fetching validation snapshot: %w", err)
	}

	latest, err := s.dir.LatestCompletedAssessment(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("loading latest assessment: %w", err)
	}

	return FailureProbability(snap, latest, time.Now().UTC()), nil
}

// RegulatoryLag forecasts GHI erosion from upcoming regulatory events over
// the horizon (default 180 days).
func (s *Service) RegulatoryLag(ctx context.Context, orgID uuid.UUID, horizonDays int) (*ForecastReport, error) {
	org, err := s.dir.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	snap, err := s.snapshots.Snapshot(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("fetching validation snapshot: %w", err)
	}

	return forecastRegulatoryLag(org, snap.GHI, horizonDays, time.Now().UTC()), nil
}

// DriftHistory returns the most recent persisted drift results, newest first.
func (s *Service) DriftHistory(ctx context.Context, orgID uuid.UUID, limit int) ([]DriftResult, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	docs, err := s.docs.Latest(ctx, docstore.CollectionDriftResults, orgID, limit)
	if err != nil {
		s.logger.Warn("drift history unavailable", "organization_id", orgID, "error", err)
		return []DriftResult{}, nil
	}

	results := make([]DriftResult, 0, len(docs))
	for _, doc := range docs {
		var r DriftResult
		if err := json.Unmarshal(doc, &r); err != nil {
			s.logger.Warn("skipping malformed drift result document",
				"organization_id", orgID, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// latestBaseline returns the most recent baseline or nil. Document-store
// failures degrade to "no baseline" rather than aborting the analysis.
func (s *Service) latestBaseline(ctx context.Context, orgID uuid.UUID) *BaselineSnapshot {
	baselines := s.loadBaselines(ctx, orgID, 1)
	if len(baselines) == 0 {
		return nil
	}
	return &baselines[0]
}

// loadBaselines reads up to limit baselines, newest first. Failures and
// malformed documents degrade to an empty or shorter list.
func (s *Service) loadBaselines(ctx context.Context, orgID uuid.UUID, limit int) []BaselineSnapshot {
	docs, err := s.docs.Latest(ctx, docstore.CollectionBaselines, orgID, limit)
	if err != nil {
		s.logger.Warn("baseline history unavailable", "organization_id", orgID, "error", err)
		return nil
	}

	baselines := make([]BaselineSnapshot, 0, len(docs))
	for _, doc := range docs {
		var b BaselineSnapshot
		if err := json.Unmarshal(doc, &b); err != nil {
			s.logger.Warn("skipping malformed baseline document",
				"organization_id", orgID, "error", err)
			continue
		}
		baselines = append(baselines, b)
	}
	return baselines
}
