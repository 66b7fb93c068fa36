package drift

import (
	"testing"

	"github.com/google/uuid"

	"github.com/trustrail/grc/internal/models"
)

func aiItem(name, approval, notes string) models.TechStackItem {
	return models.TechStackItem{
		ID:             uuid.New(),
		Name:           name,
		Category:       "AI Model",
		ApprovalStatus: approval,
		Notes:          notes,
	}
}

func TestParseGovernanceNotes(t *testing.T) {
	tests := []struct {
		name  string
		notes string
		want  *GovernanceMetadata
	}{
		{name: "empty", notes: "", want: nil},
		{name: "whitespace only", notes: "   ", want: nil},
		{
			name:  "json",
			notes: `{"data_sensitivity":"high","ai_model_tier":"UNSANCTIONED"}`,
			want:  &GovernanceMetadata{DataSensitivity: SensitivityDataHigh, ModelTier: TierUnsanctioned},
		},
		{
			name:  "key value fallback",
			notes: "data_sensitivity=MEDIUM, ai_model_tier=sanctioned",
			want:  &GovernanceMetadata{DataSensitivity: SensitivityDataMedium, ModelTier: TierSanctioned},
		},
		{
			name:  "approval only",
			notes: "approval_status=pending",
			want:  &GovernanceMetadata{ApprovalStatus: "pending"},
		},
		{name: "free text yields nothing", notes: "the ML team uses this for triage", want: nil},
		{name: "json without governance keys", notes: `{"owner":"platform-team"}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseGovernanceNotes(tt.notes)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got == nil {
				return
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestCheckShadowAIRisk(t *testing.T) {
	tests := []struct {
		name         string
		items        []models.TechStackItem
		wantCount    int
		wantSeverity Severity
	}{
		{
			name:      "non ai categories are ignored",
			items:     []models.TechStackItem{{Category: "database", Notes: "ai_model_tier=banned"}},
			wantCount: 0,
		},
		{
			name:      "missing metadata never signals",
			items:     []models.TechStackItem{aiItem("triage-bot", "approved", "")},
			wantCount: 0,
		},
		{
			name:      "unparseable notes never signal",
			items:     []models.TechStackItem{aiItem("triage-bot", "approved", "rolled out last quarter")},
			wantCount: 0,
		},
		{
			name: "high sensitivity through unsanctioned model is critical",
			items: []models.TechStackItem{
				aiItem("summarizer", "approved", `{"data_sensitivity":"HIGH","ai_model_tier":"unsanctioned"}`),
			},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name: "unsanctioned alone is high",
			items: []models.TechStackItem{
				aiItem("summarizer", "approved", "ai_model_tier=unsanctioned"),
			},
			wantCount:    1,
			wantSeverity: SeverityHigh,
		},
		{
			name: "banned tier is critical",
			items: []models.TechStackItem{
				aiItem("scraper-llm", "approved", "ai_model_tier=banned"),
			},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name:         "non approved status is high",
			items:        []models.TechStackItem{aiItem("copilot", "pending", "")},
			wantCount:    1,
			wantSeverity: SeverityHigh,
		},
		{
			name: "non approved status with high sensitivity escalates to critical",
			items: []models.TechStackItem{
				aiItem("copilot", "rejected", "data_sensitivity=HIGH"),
			},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name: "approval rule wins and the item is flagged exactly once",
			items: []models.TechStackItem{
				aiItem("copilot", "pending", `{"data_sensitivity":"HIGH","ai_model_tier":"unsanctioned"}`),
			},
			wantCount:    1,
			wantSeverity: SeverityCritical,
		},
		{
			name:      "sanctioned approval passes",
			items:     []models.TechStackItem{aiItem("copilot", "SANCTIONED", "ai_model_tier=sanctioned")},
			wantCount: 0,
		},
		{
			name: "approval status read from notes when column is empty",
			items: []models.TechStackItem{
				aiItem("copilot", "", "approval_status=denied"),
			},
			wantCount:    1,
			wantSeverity: SeverityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := CheckShadowAIRisk(tt.items, testTime)
			if len(signals) != tt.wantCount {
				t.Fatalf("got %d signals, want %d", len(signals), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			sig := signals[0]
			if sig.Type != SignalShadowAI {
				t.Errorf("type = %s, want %s", sig.Type, SignalShadowAI)
			}
			if sig.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", sig.Severity, tt.wantSeverity)
			}
			if sig.Metadata["item_name"] != tt.items[0].Name {
				t.Errorf("item_name metadata = %v, want %s", sig.Metadata["item_name"], tt.items[0].Name)
			}
		})
	}
}
