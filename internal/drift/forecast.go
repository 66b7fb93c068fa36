package drift

import (
	"math"
	"sort"
	"time"

	"github.com/trustrail/grc/internal/models"
)

// maxForecastImpact caps the summed regulatory impact so the projection never
// predicts a total collapse of the GHI.
const maxForecastImpact = 0.40

const defaultHorizonDays = 180

// regulatoryEvent is one row of the fixed upcoming-regulation table. Flags
// name organization attributes that make the event applicable; an empty list
// applies to every organization.
type regulatoryEvent struct {
	Name          string
	EffectiveDate time.Time
	ImpactWeight  float64
	Flags         []string
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

var regulatoryEvents = []regulatoryEvent{
	{
		Name:          "NIS2 member-state enforcement wave",
		EffectiveDate: date(2026, time.October, 18),
		ImpactWeight:  0.12,
		Flags:         []string{"processes_eu_data"},
	},
	{
		Name:          "ISO 27001:2022 certification transition deadline",
		EffectiveDate: date(2026, time.October, 31),
		ImpactWeight:  0.08,
		Flags:         nil,
	},
	{
		Name:          "SEC cybersecurity disclosure amendments",
		EffectiveDate: date(2026, time.December, 15),
		ImpactWeight:  0.10,
		Flags:         []string{"us_publicly_traded"},
	},
	{
		Name:          "HIPAA Security Rule modernization",
		EffectiveDate: date(2027, time.January, 6),
		ImpactWeight:  0.18,
		Flags:         []string{"handles_health_data"},
	},
	{
		Name:          "DORA threat-led penetration testing cycle",
		EffectiveDate: date(2027, time.January, 17),
		ImpactWeight:  0.15,
		Flags:         []string{"financial_services"},
	},
	{
		Name:          "PCI DSS 4.0 future-dated requirements",
		EffectiveDate: date(2027, time.March, 31),
		ImpactWeight:  0.15,
		Flags:         []string{"accepts_card_payments"},
	},
	{
		Name:          "EU AI Act high-risk system obligations",
		EffectiveDate: date(2027, time.August, 2),
		ImpactWeight:  0.20,
		Flags:         []string{"uses_ai_models", "processes_eu_data"},
	},
}

func eventApplies(event regulatoryEvent, flags map[string]bool) bool {
	if len(event.Flags) == 0 {
		return true
	}
	for _, flag := range event.Flags {
		if flags[flag] {
			return true
		}
	}
	return false
}

// forecastRegulatoryLag projects GHI erosion from applicable regulatory
// events inside the horizon. Closer events weigh more: each event's impact is
// scaled by 1 - days_until/horizon, and the summed impact is capped at
// maxForecastImpact before being applied to the current GHI.
func forecastRegulatoryLag(org *models.Organization, currentGHI float64, horizonDays int, now time.Time) *ForecastReport {
	if horizonDays <= 0 {
		horizonDays = defaultHorizonDays
	}

	flags := org.RegulatoryFlags()
	horizon := now.AddDate(0, 0, horizonDays)

	var affected []RegulationImpact
	var totalImpact float64

	for _, event := range regulatoryEvents {
		if event.EffectiveDate.After(horizon) || event.EffectiveDate.Before(now) {
			continue
		}
		if !eventApplies(event, flags) {
			continue
		}

		daysUntil := daysBetween(now, event.EffectiveDate)
		timeFactor := 1 - float64(daysUntil)/float64(horizonDays)
		weighted := event.ImpactWeight * timeFactor

		affected = append(affected, RegulationImpact{
			Name:           event.Name,
			EffectiveDate:  event.EffectiveDate,
			DaysUntil:      daysUntil,
			ImpactWeight:   event.ImpactWeight,
			WeightedImpact: math.Round(weighted*1000) / 1000,
		})
		totalImpact += weighted
	}

	sort.Slice(affected, func(i, j int) bool {
		return affected[i].DaysUntil < affected[j].DaysUntil
	})

	totalImpact = math.Min(maxForecastImpact, totalImpact)

	predictedDrop := currentGHI * totalImpact
	predictedGHI := math.Max(0, currentGHI-predictedDrop)

	return &ForecastReport{
		OrganizationID: org.ID,
		HorizonDays:    horizonDays,
		CurrentGHI:     currentGHI,
		TotalImpact:    math.Round(totalImpact*1000) / 1000,
		PredictedDrop:  round1(predictedDrop),
		PredictedGHI:   round1(predictedGHI),
		Regulations:    affected,
		GeneratedAt:    now,
	}
}
