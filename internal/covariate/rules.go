package covariate

import (
	"fmt"

	"github.com/pkddi-mcp-server/internal/domain"
)

// Rule codes shared by the built-in tables
const (
	RuleAge        = "AGE"
	RuleCYP2D6     = "CYP2D6"
	RuleCYP3A4     = "CYP3A4"
	RuleBMI        = "BMI"
	RuleCYP2D6Poor = "CYP2D6_POOR"
	RuleRenal      = "RENAL_IMPAIRMENT"
	RuleHepatic    = "HEPATIC_IMPAIRMENT"
	RulePriorAE    = "PRIOR_AE"
)

const chronicKidneyName = "Chronic Kidney Disease"

// ageBracket applies only the highest matching age bracket: >75 -> 1.5, >65 -> 1.3
func ageBracket(s Subject) (float64, string, bool) {
	age := s.Patient.Age
	reason := fmt.Sprintf("Advanced age (%d years)", age)
	switch {
	case age > 75:
		return 1.5, reason, true
	case age > 65:
		return 1.3, reason, true
	default:
		return 1, "", false
	}
}

// ClearanceRules adjust PK clearance for a patient-drug combination
var ClearanceRules = RuleTable{
	Name: "clearance",
	Rules: []Rule{
		{
			Code:        RuleAge,
			Description: "Age bracket: >65 x1.3, >75 x1.5",
			Evaluate:    ageBracket,
		},
		{
			Code:        RuleCYP2D6,
			Description: "CYP2D6 substrate: Poor x0.5, Ultra-rapid x2.0",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Drug == nil || !s.Drug.HasPathway(domain.PathwayCYP2D6) {
					return 1, "", false
				}
				switch s.Patient.Genomics.CYP2D6Status {
				case domain.CYP2D6Poor:
					return 0.5, "Poor CYP2D6 metabolizer", true
				case domain.CYP2D6UltraRapid:
					return 2.0, "Ultra-rapid CYP2D6 metabolizer", true
				}
				return 1, "", false
			},
		},
		{
			Code:        RuleCYP3A4,
			Description: "CYP3A4 substrate: Low x0.7, High x1.5",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Drug == nil || !s.Drug.HasPathway(domain.PathwayCYP3A4) {
					return 1, "", false
				}
				switch s.Patient.Genomics.CYP3A4Activity {
				case domain.CYP3A4Low:
					return 0.7, "Low CYP3A4 activity", true
				case domain.CYP3A4High:
					return 1.5, "High CYP3A4 activity", true
				}
				return 1, "", false
			},
		},
		{
			Code:        RuleBMI,
			Description: "BMI > 30 x1.1",
			Evaluate: func(s Subject) (float64, string, bool) {
				bmi := s.Patient.Vitals.BMI()
				if bmi > 30 {
					return 1.1, fmt.Sprintf("Obesity (BMI %.1f)", bmi), true
				}
				return 1, "", false
			},
		},
	},
}

// RiskRules scale a known adverse event's base incidence for a patient
var RiskRules = RuleTable{
	Name: "adverse_event_risk",
	Rules: []Rule{
		{
			Code:        RuleAge,
			Description: "Age bracket: >65 x1.3, >75 x1.5",
			Evaluate:    ageBracket,
		},
		{
			Code:        RuleCYP2D6Poor,
			Description: "Poor CYP2D6 metabolizer x1.4",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Patient.Genomics.CYP2D6Status == domain.CYP2D6Poor {
					return 1.4, "Poor CYP2D6 metabolizer", true
				}
				return 1, "", false
			},
		},
		{
			Code:        RuleRenal,
			Description: "Chronic kidney disease x1.5",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Patient.History.HasCondition(chronicKidneyName) {
					return 1.5, "Renal impairment", true
				}
				return 1, "", false
			},
		},
		{
			Code:        RuleHepatic,
			Description: "Hepatic condition and hepatic event x2.0",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Event == nil || s.Event.Category != domain.AEHepatic {
					return 1, "", false
				}
				if s.Patient.History.HasConditionContaining("hepat", "liver") {
					return 2.0, "Hepatic impairment", true
				}
				return 1, "", false
			},
		},
		{
			Code:        RulePriorAE,
			Description: "Event previously experienced x3.0",
			Evaluate: func(s Subject) (float64, string, bool) {
				if s.Event != nil && s.Patient.History.HadAdverseEvent(s.Event.Name) {
					return 3.0, "History of adverse drug reactions", true
				}
				return 1, "", false
			},
		},
	},
}

// RiskFactorRules are the risk rules reported as patient risk factors on predicted events.
// Renal and hepatic terms raise the probability without being listed.
var RiskFactorRules = []string{RuleAge, RuleCYP2D6Poor, RulePriorAE}

var (
	clearanceEngine = MustNewEngine(ClearanceRules)
	riskEngine      = MustNewEngine(RiskRules)
)

// AdjustmentFactor returns the clearance adjustment for a patient-drug combination
func AdjustmentFactor(patient *domain.PatientProfile, drug *domain.DrugProperties) float64 {
	return ClearanceAdjustment(patient, drug).Factor
}

// ClearanceAdjustment evaluates the clearance table with its contributions
func ClearanceAdjustment(patient *domain.PatientProfile, drug *domain.DrugProperties) Adjustment {
	return clearanceEngine.Evaluate(Subject{Patient: patient, Drug: drug})
}

// RiskAdjustment evaluates the adverse-event risk table for one known event
func RiskAdjustment(patient *domain.PatientProfile, event *domain.KnownAdverseEvent) Adjustment {
	return riskEngine.Evaluate(Subject{Patient: patient, Event: event})
}
