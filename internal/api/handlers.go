package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/docstore"
	"github.com/trustrail/grc/internal/models"
)

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func queryInt(r *http.Request, name, fallback string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		raw = fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// requireOrganization resolves the orgID path parameter to an existing
// organization, writing the error response itself on failure.
func (s *Server) requireOrganization(w http.ResponseWriter, r *http.Request) (*models.Organization, bool) {
	orgID, ok := parseUUIDParam(r, "orgID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid organization ID")
		return nil, false
	}

	org, err := s.store.GetOrganization(r.Context(), orgID)
	if err != nil {
		s.logger.Error("failed to load organization", "organization_id", orgID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load organization")
		return nil, false
	}
	if org == nil {
		respondError(w, http.StatusNotFound, "not_found", "Organization not found")
		return nil, false
	}
	return org, true
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	orgs, err := s.store.ListOrganizations(r.Context(), status)
	if err != nil {
		s.logger.Error("failed to list organizations", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list organizations")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, orgs, &apiMeta{Total: len(orgs)})
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var org models.Organization
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if org.Name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "Organization name is required")
		return
	}

	if err := s.store.CreateOrganization(r.Context(), &org); err != nil {
		s.logger.Error("failed to create organization", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create organization")
		return
	}

	respondJSON(w, http.StatusCreated, org)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteOrganization(r.Context(), org.ID); err != nil {
		s.logger.Error("failed to delete organization", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete organization")
		return
	}

	// Baseline and drift history go with the tenant.
	for _, collection := range []string{docstore.CollectionBaselines, docstore.CollectionDriftResults} {
		if err := s.docs.Drop(r.Context(), collection, org.ID); err != nil {
			s.logger.Warn("failed to drop document collection",
				"organization_id", org.ID, "collection", collection, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) getValidationSnapshot(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	snap, err := s.validator.Snapshot(r.Context(), org.ID)
	if err != nil {
		s.logger.Error("failed to compute snapshot", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to compute validation snapshot")
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) listAssessments(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", "10")
	assessments, err := s.store.ListAssessments(r.Context(), org.ID, limit)
	if err != nil {
		s.logger.Error("failed to list assessments", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list assessments")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, assessments, &apiMeta{Total: len(assessments), Limit: limit})
}

func (s *Server) createAssessment(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	var a models.Assessment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	a.OrganizationID = org.ID

	if err := s.store.CreateAssessment(r.Context(), &a); err != nil {
		s.logger.Error("failed to create assessment", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create assessment")
		return
	}

	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "assessmentID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid assessment ID")
		return
	}

	a, err := s.store.GetAssessment(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load assessment", "assessment_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load assessment")
		return
	}
	if a == nil {
		respondError(w, http.StatusNotFound, "not_found", "Assessment not found")
		return
	}

	respondJSON(w, http.StatusOK, a)
}

type completeAssessmentRequest struct {
	OverallScore float64         `json:"overall_score"`
	DomainScores models.ScoreMap `json:"domain_scores"`
}

func (s *Server) completeAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "assessmentID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid assessment ID")
		return
	}

	var req completeAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if req.OverallScore < 0 || req.OverallScore > 5 {
		respondError(w, http.StatusBadRequest, "invalid_score", "Overall score must be between 0 and 5")
		return
	}

	a, err := s.store.GetAssessment(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load assessment", "assessment_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load assessment")
		return
	}
	if a == nil {
		respondError(w, http.StatusNotFound, "not_found", "Assessment not found")
		return
	}

	if err := s.store.CompleteAssessment(r.Context(), id, req.OverallScore, req.DomainScores); err != nil {
		s.logger.Error("failed to complete assessment", "assessment_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to complete assessment")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) listFindings(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	findings, err := s.store.ListFindings(r.Context(), org.ID)
	if err != nil {
		s.logger.Error("failed to list findings", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list findings")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, findings, &apiMeta{Total: len(findings)})
}

func (s *Server) createFinding(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	var f models.Finding
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	f.OrganizationID = org.ID

	switch f.Severity {
	case models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
	default:
		respondError(w, http.StatusBadRequest, "invalid_severity", "Severity must be critical, high, medium, or low")
		return
	}

	if err := s.store.CreateFinding(r.Context(), &f); err != nil {
		s.logger.Error("failed to create finding", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create finding")
		return
	}

	respondJSON(w, http.StatusCreated, f)
}

func (s *Server) getFinding(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "findingID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid finding ID")
		return
	}

	f, err := s.store.GetFinding(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load finding", "finding_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load finding")
		return
	}
	if f == nil {
		respondError(w, http.StatusNotFound, "not_found", "Finding not found")
		return
	}

	respondJSON(w, http.StatusOK, f)
}

type updateFindingStatusRequest struct {
	Status models.FindingStatus `json:"status"`
}

func (s *Server) updateFindingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "findingID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid finding ID")
		return
	}

	var req updateFindingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	switch req.Status {
	case models.FindingStatusOpen, models.FindingStatusInProgress,
		models.FindingStatusResolved, models.FindingStatusAccepted:
	default:
		respondError(w, http.StatusBadRequest, "invalid_status", "Status must be open, in_progress, resolved, or accepted")
		return
	}

	f, err := s.store.GetFinding(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load finding", "finding_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load finding")
		return
	}
	if f == nil {
		respondError(w, http.StatusNotFound, "not_found", "Finding not found")
		return
	}

	if err := s.store.UpdateFindingStatus(r.Context(), id, req.Status); err != nil {
		s.logger.Error("failed to update finding status", "finding_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to update finding status")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (s *Server) listTechStack(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	items, err := s.store.ListTechStackItems(r.Context(), org.ID)
	if err != nil {
		s.logger.Error("failed to list tech stack", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list tech stack")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, items, &apiMeta{Total: len(items)})
}

func (s *Server) createTechStackItem(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	var item models.TechStackItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if item.Name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "Component name is required")
		return
	}
	item.OrganizationID = org.ID

	if err := s.store.CreateTechStackItem(r.Context(), &item); err != nil {
		s.logger.Error("failed to create tech stack item", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create tech stack item")
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) deleteTechStackItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "itemID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid item ID")
		return
	}

	if err := s.store.DeleteTechStackItem(r.Context(), id); err != nil {
		s.logger.Error("failed to delete tech stack item", "item_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete tech stack item")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) listAuditCalendar(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	entries, err := s.store.ListAuditCalendar(r.Context(), org.ID)
	if err != nil {
		s.logger.Error("failed to list audit calendar", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list audit calendar")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, entries, &apiMeta{Total: len(entries)})
}

func (s *Server) createAuditCalendarEntry(w http.ResponseWriter, r *http.Request) {
	org, ok := s.requireOrganization(w, r)
	if !ok {
		return
	}

	var entry models.AuditCalendarEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if entry.Framework == "" {
		respondError(w, http.StatusBadRequest, "missing_framework", "Audit framework is required")
		return
	}
	if entry.AuditDate.IsZero() || entry.AuditDate.Before(time.Now().UTC()) {
		respondError(w, http.StatusBadRequest, "invalid_date", "Audit date must be in the future")
		return
	}
	entry.OrganizationID = org.ID

	if err := s.store.CreateAuditCalendarEntry(r.Context(), &entry); err != nil {
		s.logger.Error("failed to create audit calendar entry", "organization_id", org.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create audit calendar entry")
		return
	}

	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) deleteAuditCalendarEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(r, "entryID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
		return
	}

	if err := s.store.DeleteAuditCalendarEntry(r.Context(), id); err != nil {
		s.logger.Error("failed to delete audit calendar entry", "entry_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete audit calendar entry")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
