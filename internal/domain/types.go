// Package domain contains the core records, closed enumerations and error taxonomy for
// covariate-adjusted pharmacokinetic (PK) and drug-drug interaction (DDI) simulation.
//
// Every enumeration here is closed: values arriving from untrusted sources (catalog tables,
// oracle responses, tool inputs) are parsed through the Parse* functions, which fail with
// ErrSchemaViolation instead of silently mapping to a zero value.
package domain

import (
	"fmt"
	"strings"
)

// MetabolismPathway represents a major drug elimination/metabolism route
type MetabolismPathway string

const (
	PathwayCYP1A2  MetabolismPathway = "CYP1A2"
	PathwayCYP2C9  MetabolismPathway = "CYP2C9"
	PathwayCYP2C19 MetabolismPathway = "CYP2C19"
	PathwayCYP2D6  MetabolismPathway = "CYP2D6"
	PathwayCYP3A4  MetabolismPathway = "CYP3A4"
	PathwayUGT     MetabolismPathway = "UGT"
	PathwayRenal   MetabolismPathway = "Renal"
)

var allPathways = []MetabolismPathway{
	PathwayCYP1A2, PathwayCYP2C9, PathwayCYP2C19, PathwayCYP2D6, PathwayCYP3A4, PathwayUGT, PathwayRenal,
}

// ParseMetabolismPathway parses a pathway name case-insensitively
func ParseMetabolismPathway(s string) (MetabolismPathway, error) {
	v := strings.TrimSpace(s)
	for _, p := range allPathways {
		if strings.EqualFold(v, string(p)) {
			return p, nil
		}
	}
	return "", NewSchemaError("metabolism_pathway", fmt.Sprintf("unknown metabolism pathway %q", s))
}

// CYP2D6Status is the patient's CYP2D6 metabolizer phenotype
type CYP2D6Status string

const (
	CYP2D6Poor         CYP2D6Status = "Poor"
	CYP2D6Intermediate CYP2D6Status = "Intermediate"
	CYP2D6Normal       CYP2D6Status = "Normal"
	CYP2D6UltraRapid   CYP2D6Status = "Ultra-rapid"
)

// ParseCYP2D6Status maps a phenotype label to a status. Missing or unrecognised labels are
// treated as Normal, which is how population data without genotyping is interpreted.
func ParseCYP2D6Status(s string) CYP2D6Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poor":
		return CYP2D6Poor
	case "intermediate":
		return CYP2D6Intermediate
	case "ultra-rapid", "ultrarapid", "ultra_rapid":
		return CYP2D6UltraRapid
	default:
		return CYP2D6Normal
	}
}

// CYP3A4Activity is the patient's CYP3A4 enzyme activity level
type CYP3A4Activity string

const (
	CYP3A4Low    CYP3A4Activity = "Low"
	CYP3A4Normal CYP3A4Activity = "Normal"
	CYP3A4High   CYP3A4Activity = "High"
)

// ParseCYP3A4Activity maps an activity label; unknown labels are Normal.
func ParseCYP3A4Activity(s string) CYP3A4Activity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return CYP3A4Low
	case "high":
		return CYP3A4High
	default:
		return CYP3A4Normal
	}
}

// Gender of a synthetic patient
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Ethnicity of a synthetic patient
type Ethnicity string

const (
	EthnicityCaucasian       Ethnicity = "caucasian"
	EthnicityAfricanAmerican Ethnicity = "african_american"
	EthnicityHispanic        Ethnicity = "hispanic"
	EthnicityAsian           Ethnicity = "asian"
	EthnicityOther           Ethnicity = "other"
)

// InteractionSeverity grades a drug-drug interaction
type InteractionSeverity string

const (
	SeverityNone            InteractionSeverity = "none"
	SeverityMinor           InteractionSeverity = "minor"
	SeverityModerate        InteractionSeverity = "moderate"
	SeverityMajor           InteractionSeverity = "major"
	SeverityContraindicated InteractionSeverity = "contraindicated"
)

// ParseInteractionSeverity parses a severity label. Values outside the closed set are
// reported as SeverityNone.
func ParseInteractionSeverity(s string) InteractionSeverity {
	switch sev := InteractionSeverity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityNone, SeverityMinor, SeverityModerate, SeverityMajor, SeverityContraindicated:
		return sev
	default:
		return SeverityNone
	}
}

// Rank orders severities from none (0) to contraindicated (4)
func (s InteractionSeverity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeverityMajor:
		return 3
	case SeverityContraindicated:
		return 4
	default:
		return 0
	}
}

// AECategory is an adverse-event system organ class
type AECategory string

const (
	AECardiac          AECategory = "Cardiac disorders"
	AEGastrointestinal AECategory = "Gastrointestinal disorders"
	AEHepatic          AECategory = "Hepatobiliary disorders"
	AERenal            AECategory = "Renal disorders"
	AENeurological     AECategory = "Nervous system disorders"
	AEDermatological   AECategory = "Skin disorders"
	AEHematological    AECategory = "Blood disorders"
	AEMetabolic        AECategory = "Metabolism disorders"
	AEMusculoskeletal  AECategory = "Musculoskeletal disorders"
	AERespiratory      AECategory = "Respiratory disorders"
	AEOther            AECategory = "Other"
)

var aeCategoryCodes = map[string]AECategory{
	"CARDIAC":          AECardiac,
	"GASTROINTESTINAL": AEGastrointestinal,
	"HEPATIC":          AEHepatic,
	"RENAL":            AERenal,
	"NEUROLOGICAL":     AENeurological,
	"DERMATOLOGICAL":   AEDermatological,
	"HEMATOLOGICAL":    AEHematological,
	"METABOLIC":        AEMetabolic,
	"MUSCULOSKELETAL":  AEMusculoskeletal,
	"RESPIRATORY":      AERespiratory,
	"OTHER":            AEOther,
}

// ParseAECategory accepts either the upper-case category code (e.g. "HEPATIC") or the
// organ-class label (e.g. "Hepatobiliary disorders").
func ParseAECategory(s string) (AECategory, error) {
	v := strings.TrimSpace(s)
	if c, ok := aeCategoryCodes[strings.ToUpper(v)]; ok {
		return c, nil
	}
	for _, c := range aeCategoryCodes {
		if strings.EqualFold(v, string(c)) {
			return c, nil
		}
	}
	return "", NewSchemaError("category", fmt.Sprintf("unknown adverse event category %q", s))
}

// AESeverity is a CTCAE grade from 1 (mild) to 5 (death)
type AESeverity int

const (
	AEMild            AESeverity = 1
	AEModerate        AESeverity = 2
	AESevere          AESeverity = 3
	AELifeThreatening AESeverity = 4
	AEDeath           AESeverity = 5
)

// ParseAESeverity validates a CTCAE grade
func ParseAESeverity(grade int) (AESeverity, error) {
	if grade < int(AEMild) || grade > int(AEDeath) {
		return 0, NewSchemaError("severity", fmt.Sprintf("CTCAE grade %d outside 1-5", grade))
	}
	return AESeverity(grade), nil
}

// IsSerious reports grade >= 3
func (s AESeverity) IsSerious() bool { return s >= AESevere }

// RequiresDiscontinuation reports grade >= 4
func (s AESeverity) RequiresDiscontinuation() bool { return s >= AELifeThreatening }

// Causality is the relationship of an adverse event to the study drug
type Causality string

const (
	CausalityDefinite  Causality = "Definite"
	CausalityProbable  Causality = "Probable"
	CausalityPossible  Causality = "Possible"
	CausalityUnlikely  Causality = "Unlikely"
	CausalityUnrelated Causality = "Unrelated"
)
