package oracle

import (
	"fmt"
	"strings"

	"github.com/pkddi-mcp-server/internal/domain"
)

// DrugPropertiesResponse is the JSON object requested by DrugPropertiesPrompt
type DrugPropertiesResponse struct {
	HalfLifeHours        float64  `json:"half_life_hours"`
	Bioavailability      float64  `json:"bioavailability"`
	VolumeOfDistribution float64  `json:"volume_of_distribution"`
	ProteinBinding       float64  `json:"protein_binding"`
	PrimaryMetabolism    []string `json:"primary_metabolism"`
	DrugClass            string   `json:"drug_class"`
}

// InteractionResponse is the JSON object requested by InteractionPrompt
type InteractionResponse struct {
	Severity       string `json:"severity"`
	Mechanism      string `json:"mechanism"`
	ClinicalEffect string `json:"clinical_effect"`
	Recommendation string `json:"recommendation"`
	EvidenceLevel  string `json:"evidence_level"`
}

// AdverseEventItem is one element of the JSON array requested by AdverseEventPrompt.
// Probability and Severity are pointers so absent values can be told apart from zero.
type AdverseEventItem struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Probability *float64 `json:"probability"`
	Severity    *int     `json:"severity"`
	Rationale   string   `json:"rationale"`
}

// DrugPropertiesPrompt asks for the PK reference properties of a drug
func DrugPropertiesPrompt(drugName string) string {
	return fmt.Sprintf(`Provide pharmacological properties for %s as a single JSON object with:
- half_life_hours (number)
- bioavailability (0-1)
- volume_of_distribution (L)
- protein_binding (0-1)
- primary_metabolism (array of: CYP1A2, CYP2C9, CYP2C19, CYP2D6, CYP3A4, UGT, Renal)
- drug_class (string)
Respond with JSON only.`, drugName)
}

// InteractionPrompt asks for the interaction between two drugs in a patient context
func InteractionPrompt(drugA, drugB string, patient *domain.PatientProfile) string {
	age, cyp2d6, cyp3a4, conditions := "Unknown", string(domain.CYP2D6Normal), string(domain.CYP3A4Normal), "none"
	if patient != nil {
		age = fmt.Sprintf("%d", patient.Age)
		if patient.Genomics.CYP2D6Status != "" {
			cyp2d6 = string(patient.Genomics.CYP2D6Status)
		}
		if patient.Genomics.CYP3A4Activity != "" {
			cyp3a4 = string(patient.Genomics.CYP3A4Activity)
		}
		conditions = listOrNone(patient.History.Conditions)
	}

	return fmt.Sprintf(`Analyze the drug-drug interaction between %s and %s.

Patient context:
- Age: %s
- CYP2D6 status: %s
- CYP3A4 activity: %s
- Current conditions: %s

Provide a JSON response with:
- severity: none/minor/moderate/major/contraindicated
- mechanism: pharmacological mechanism of interaction
- clinical_effect: what happens clinically
- recommendation: clinical recommendation
- evidence_level: High/Moderate/Low`, drugA, drugB, age, cyp2d6, cyp3a4, conditions)
}

// AdverseEventPrompt asks for adverse events not covered by the known-event table
func AdverseEventPrompt(patient *domain.PatientProfile, drugName string, doseMg float64) string {
	gender := string(patient.Gender)
	if gender == "" {
		gender = "unknown"
	}
	cyp2d6 := patient.Genomics.CYP2D6Status
	if cyp2d6 == "" {
		cyp2d6 = domain.CYP2D6Normal
	}

	return fmt.Sprintf(`Analyze adverse event risk for this patient:

Patient: Age %d, %s gender
Genomics: CYP2D6 %s
Conditions: %s
Current meds: %s

Drug: %s at %gmg daily

Identify any additional adverse events not covered by standard databases.
Consider pharmacogenomic interactions and drug-disease interactions.

Return JSON array with: name, category, probability (0-1), severity (1-5), rationale`,
		patient.Age, gender, cyp2d6,
		listOrNone(patient.History.Conditions), listOrNone(patient.History.CurrentMedications),
		drugName, doseMg)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
