package api

import (
	"errors"
	"net/http"

	"github.com/trustrail/grc/internal/drift"
)

func (s *Server) createBaseline(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return
	}

	baseline, err := s.drift.CreateBaseline(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, drift.ErrOrganizationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Organization not found")
			return
		}
		s.logger.Error("failed to create baseline", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create baseline")
		return
	}

	respondJSON(w, http.StatusCreated, baseline)
}

func (s *Server) calculateDrift(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return
	}

	result, err := s.drift.CalculateDrift(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, drift.ErrOrganizationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Organization not found")
			return
		}
		s.logger.Error("drift analysis failed", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Drift analysis failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) getDriftTimeline(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", "0")
	if limit <= 0 {
		limit = s.cfg.Drift.TimelineLimit
	}

	entries, err := s.drift.DriftTimeline(r.Context(), org.ID, limit)
	if err != nil {
		s.logger.Error("failed to build drift timeline", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to build drift timeline")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, entries, &apiMeta{Total: len(entries), Limit: limit})
}

func (s *Server) getDriftHistory(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", "0")
	if limit <= 0 {
		limit = s.cfg.Drift.HistoryLimit
	}

	results, err := s.drift.DriftHistory(r.Context(), org.ID, limit)
	if err != nil {
		s.logger.Error("failed to load drift history", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load drift history")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, results, &apiMeta{Total: len(results), Limit: limit})
}

func (s *Server) getSustainabilityIndex(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	index, err := s.drift.SustainabilityIndex(r.Context(), org.ID)
	if err != nil {
		s.logger.Error("failed to compute sustainability index", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to compute sustainability index")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id":                 org.ID,
		"compliance_sustainability_index": index,
	})
}

func (s *Server) getFailureProbability(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return
	}

	probability, err := s.drift.AuditFailureProbability(r.Context(), orgID)
	if err != nil {
		s.logger.Error("failed to compute failure probability", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to compute failure probability")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"organization_id":           orgID,
		"audit_failure_probability": probability,
	})
}

func (s *Server) getRegulatoryForecast(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return
	}

	horizonDays := queryInt(r, "horizon_days", "0")
	if horizonDays <= 0 {
		horizonDays = s.cfg.Drift.ForecastHorizonDays
	}

	report, err := s.drift.RegulatoryLag(r.Context(), orgID, horizonDays)
	if err != nil {
		if errors.Is(err, drift.ErrOrganizationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Organization not found")
			return
		}
		s.logger.Error("failed to compute regulatory forecast", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to compute regulatory forecast")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) getShadowAIRisk(w http.ResponseWriter, r *http.Request) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return
	}

	signals, err := s.drift.OrganizationShadowAIRisk(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, drift.ErrOrganizationNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Organization not found")
			return
		}
		s.logger.Error("shadow ai check failed", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Shadow AI check failed")
		return
	}

	if signals == nil {
		signals = []drift.DriftSignal{}
	}
	respondJSONWithMeta(w, http.StatusOK, signals, &apiMeta{Total: len(signals)})
}
