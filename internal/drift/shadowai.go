package drift

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trustrail/grc/internal/models"
)

// Shadow AI governance: AI-model inventory entries are checked against the
// governance metadata recorded in their free-text notes. Absent or
// unparseable metadata produces no signal; governance gaps are flagged only
// when the metadata actively asserts a risky state.

const aiModelCategory = "ai model"

type DataSensitivity string

const (
	SensitivityDataHigh   DataSensitivity = "HIGH"
	SensitivityDataMedium DataSensitivity = "MEDIUM"
	SensitivityDataLow    DataSensitivity = "LOW"
)

type ModelTier string

const (
	TierSanctioned   ModelTier = "sanctioned"
	TierUnsanctioned ModelTier = "unsanctioned"
	TierBanned       ModelTier = "banned"
)

// GovernanceMetadata is the parsed governance state of an AI model entry.
// A nil GovernanceMetadata means "no metadata", which is deliberately
// distinct from a zero-valued struct: no metadata never signals.
type GovernanceMetadata struct {
	DataSensitivity DataSensitivity
	ModelTier       ModelTier
	ApprovalStatus  string
}

// parseGovernanceNotes extracts governance metadata from a notes field,
// trying JSON first and falling back to comma-separated key=value pairs.
// Returns nil when nothing recognizable is present.
func parseGovernanceNotes(notes string) *GovernanceMetadata {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil
	}

	fields := make(map[string]string)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(notes), &raw); err == nil {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(s)
			}
		}
	} else {
		for _, pair := range strings.Split(notes, ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}

	meta := &GovernanceMetadata{
		DataSensitivity: DataSensitivity(strings.ToUpper(fields["data_sensitivity"])),
		ModelTier:       ModelTier(strings.ToLower(fields["ai_model_tier"])),
		ApprovalStatus:  fields["approval_status"],
	}
	if meta.DataSensitivity == "" && meta.ModelTier == "" && meta.ApprovalStatus == "" {
		return nil
	}
	return meta
}

// CheckShadowAIRisk evaluates AI-model inventory entries in layered order;
// the first matching rule wins, so an item is never double-flagged:
//  1. an explicit non-approved approval status
//  2. high-sensitivity data flowing through an unsanctioned model
//  3. an unsanctioned model
//  4. a banned model
func CheckShadowAIRisk(items []models.TechStackItem, now time.Time) []DriftSignal {
	var signals []DriftSignal

	for _, item := range items {
		if !strings.EqualFold(strings.TrimSpace(item.Category), aiModelCategory) {
			continue
		}

		meta := parseGovernanceNotes(item.Notes)

		approval := strings.ToUpper(strings.TrimSpace(item.ApprovalStatus))
		if approval == "" && meta != nil {
			approval = strings.ToUpper(meta.ApprovalStatus)
		}

		if approval != "" && approval != "APPROVED" && approval != "SANCTIONED" {
			severity := SeverityHigh
			if meta != nil && (meta.DataSensitivity == SensitivityDataHigh || meta.ModelTier == TierBanned) {
				severity = SeverityCritical
			}
			signals = append(signals, shadowAISignal(item, severity,
				fmt.Sprintf("AI model %q has approval status %q", item.Name, approval),
				map[string]interface{}{"approval_status": approval}, now))
			continue
		}

		if meta == nil {
			continue
		}

		switch {
		case meta.DataSensitivity == SensitivityDataHigh && meta.ModelTier == TierUnsanctioned:
			signals = append(signals, shadowAISignal(item, SeverityCritical,
				fmt.Sprintf("Unsanctioned AI model %q processes high-sensitivity data", item.Name),
				map[string]interface{}{
					"data_sensitivity": string(meta.DataSensitivity),
					"ai_model_tier":    string(meta.ModelTier),
				}, now))
		case meta.ModelTier == TierUnsanctioned:
			signals = append(signals, shadowAISignal(item, SeverityHigh,
				fmt.Sprintf("AI model %q is not sanctioned for use", item.Name),
				map[string]interface{}{"ai_model_tier": string(meta.ModelTier)}, now))
		case meta.ModelTier == TierBanned:
			signals = append(signals, shadowAISignal(item, SeverityCritical,
				fmt.Sprintf("AI model %q is on the banned tier", item.Name),
				map[string]interface{}{"ai_model_tier": string(meta.ModelTier)}, now))
		}
	}

	return signals
}

func shadowAISignal(item models.TechStackItem, severity Severity, description string, metadata map[string]interface{}, now time.Time) DriftSignal {
	metadata["item_id"] = item.ID.String()
	metadata["item_name"] = item.Name
	return DriftSignal{
		Type:        SignalShadowAI,
		Severity:    severity,
		Title:       "Shadow AI Governance Risk",
		Description: description,
		Metadata:    metadata,
		DetectedAt:  now,
	}
}
