package domain

import (
	"math"
	"strings"
	"time"
)

// TherapeuticRange is the (min, max) therapeutic window in ng/mL
type TherapeuticRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// IsSet reports whether a range was provided
func (r TherapeuticRange) IsSet() bool { return r.Max > 0 && r.Max >= r.Min }

// DrugProperties holds the pharmacological reference properties of a drug.
// Values are immutable once loaded into a catalog.
type DrugProperties struct {
	Name                 string              `json:"name"`
	GenericName          string              `json:"generic_name"`
	DrugClass            string              `json:"drug_class"`
	HalfLifeHours        float64             `json:"half_life_hours"`
	Bioavailability      float64             `json:"bioavailability"`
	VolumeOfDistribution float64             `json:"volume_of_distribution"`
	ProteinBinding       float64             `json:"protein_binding"`
	Metabolism           []MetabolismPathway `json:"primary_metabolism"`
	ActiveMetabolites    []string            `json:"active_metabolites,omitempty"`
	TherapeuticRange     TherapeuticRange    `json:"therapeutic_range"`
}

// HasPathway reports whether the drug is metabolised through p
func (d *DrugProperties) HasPathway(p MetabolismPathway) bool {
	for _, m := range d.Metabolism {
		if m == p {
			return true
		}
	}
	return false
}

// Validate checks the numeric preconditions of the PK model
func (d *DrugProperties) Validate() error {
	if !(d.HalfLifeHours > 0) || math.IsInf(d.HalfLifeHours, 0) {
		return NewParameterError("half_life_hours", d.HalfLifeHours, "must be positive and finite")
	}
	if !(d.Bioavailability > 0 && d.Bioavailability <= 1) {
		return NewParameterError("bioavailability", d.Bioavailability, "must be in (0, 1]")
	}
	if !(d.VolumeOfDistribution > 0) || math.IsInf(d.VolumeOfDistribution, 0) {
		return NewParameterError("volume_of_distribution", d.VolumeOfDistribution, "must be positive and finite")
	}
	if !(d.ProteinBinding >= 0 && d.ProteinBinding <= 1) {
		return NewParameterError("protein_binding", d.ProteinBinding, "must be in [0, 1]")
	}
	return nil
}

// DefaultDrugProperties returns the placeholder properties used when a drug is neither in
// the catalog nor resolvable through the oracle.
func DefaultDrugProperties(name string) DrugProperties {
	return DrugProperties{
		Name:                 name,
		GenericName:          NormalizeDrugName(name),
		DrugClass:            "Unknown",
		HalfLifeHours:        12,
		Bioavailability:      0.5,
		VolumeOfDistribution: 100,
		ProteinBinding:       0.5,
		Metabolism:           []MetabolismPathway{PathwayCYP3A4},
	}
}

// NormalizeDrugName returns the catalog key form of a drug name
func NormalizeDrugName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GenomicProfile holds pharmacogenomic markers relevant to drug metabolism
type GenomicProfile struct {
	CYP2D6Status   CYP2D6Status      `json:"cyp2d6_status"`
	CYP3A4Activity CYP3A4Activity    `json:"cyp3a4_activity"`
	HLAMarkers     []string          `json:"hla_markers,omitempty"`
	Variants       map[string]string `json:"pharmacogenomic_variants,omitempty"`
}

// MedicalHistory holds the patient's conditions and medication history
type MedicalHistory struct {
	Conditions            []string `json:"conditions,omitempty"`
	Allergies             []string `json:"allergies,omitempty"`
	CurrentMedications    []string `json:"current_medications,omitempty"`
	PreviousAdverseEvents []string `json:"previous_adverse_events,omitempty"`
	Surgeries             []string `json:"surgeries,omitempty"`
}

// HasCondition reports an exact (case-insensitive) condition match
func (h *MedicalHistory) HasCondition(name string) bool {
	for _, c := range h.Conditions {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return true
		}
	}
	return false
}

// HasConditionContaining reports whether any condition contains one of the substrings
func (h *MedicalHistory) HasConditionContaining(substrings ...string) bool {
	for _, c := range h.Conditions {
		lc := strings.ToLower(c)
		for _, s := range substrings {
			if strings.Contains(lc, strings.ToLower(s)) {
				return true
			}
		}
	}
	return false
}

// HadAdverseEvent reports whether the named event was experienced before
func (h *MedicalHistory) HadAdverseEvent(name string) bool {
	for _, e := range h.PreviousAdverseEvents {
		if strings.EqualFold(strings.TrimSpace(e), name) {
			return true
		}
	}
	return false
}

// VitalSigns holds baseline vitals. BMI is derived from weight and height.
type VitalSigns struct {
	SystolicBP  float64 `json:"systolic_bp"`
	DiastolicBP float64 `json:"diastolic_bp"`
	HeartRate   float64 `json:"heart_rate"`
	WeightKg    float64 `json:"weight_kg"`
	HeightCm    float64 `json:"height_cm"`
	BMIValue    float64 `json:"bmi"`
}

// NewVitalSigns builds vitals with BMI computed from weight and height
func NewVitalSigns(systolic, diastolic, heartRate, weightKg, heightCm float64) VitalSigns {
	v := VitalSigns{
		SystolicBP:  systolic,
		DiastolicBP: diastolic,
		HeartRate:   heartRate,
		WeightKg:    weightKg,
		HeightCm:    heightCm,
	}
	v.BMIValue = v.BMI()
	return v
}

// BMI returns weight / (height in metres)^2, or 0 when height is unknown
func (v VitalSigns) BMI() float64 {
	if v.HeightCm <= 0 {
		return 0
	}
	m := v.HeightCm / 100
	return v.WeightKg / (m * m)
}

// PatientProfile is a synthetic trial patient
type PatientProfile struct {
	PatientID      string             `json:"patient_id"`
	Age            int                `json:"age"`
	Gender         Gender             `json:"gender"`
	Ethnicity      Ethnicity          `json:"ethnicity"`
	Genomics       GenomicProfile     `json:"genomic_profile"`
	History        MedicalHistory     `json:"medical_history"`
	Vitals         VitalSigns         `json:"vital_signs"`
	EnrollmentDate time.Time          `json:"enrollment_date,omitempty"`
	ArmAssignment  string             `json:"arm_assignment,omitempty"`
	Biomarkers     map[string]float64 `json:"baseline_biomarkers,omitempty"`
}

// Validate checks patient-level preconditions
func (p *PatientProfile) Validate() error {
	if p.Age < 0 {
		return NewParameterError("age", p.Age, "must be >= 0")
	}
	if p.Vitals.WeightKg < 0 || p.Vitals.HeightCm < 0 {
		return NewParameterError("vital_signs", p.Vitals, "weight and height must be >= 0")
	}
	return nil
}

// PKParameters are the concentration-time parameters for one patient-drug-dose-frequency tuple
type PKParameters struct {
	Cmax                     float64 `json:"cmax"`
	Tmax                     float64 `json:"tmax"`
	AUC                      float64 `json:"auc"`
	// Clearance is normalised per mg of dose: F / (half-life x adjustment factor).
	// Multiply by the dose for the absolute value; AUC = dose x F / Clearance.
	Clearance                float64 `json:"clearance"`
	HalfLife                 float64 `json:"half_life"`
	SteadyStateConcentration float64 `json:"steady_state_concentration"`
}

// PKResult wraps PKParameters with the inputs that produced them
type PKResult struct {
	Parameters       PKParameters   `json:"pk_parameters"`
	Drug             DrugProperties `json:"drug"`
	DoseMg           float64        `json:"dose_mg"`
	FrequencyHours   float64        `json:"frequency_hours"`
	AdjustmentFactor float64        `json:"adjustment_factor"`
	Degraded         bool           `json:"degraded"`
}

// DrugInteraction is the resolved interaction between two drugs
type DrugInteraction struct {
	DrugA          string              `json:"drug_a"`
	DrugB          string              `json:"drug_b"`
	Severity       InteractionSeverity `json:"severity"`
	Mechanism      string              `json:"mechanism"`
	ClinicalEffect string              `json:"clinical_effect"`
	Recommendation string              `json:"recommendation"`
	EvidenceLevel  string              `json:"evidence_level"`
}

// DrugPair is an unordered pair of drug names in the caller's iteration order
type DrugPair struct {
	DrugA string `json:"drug_a"`
	DrugB string `json:"drug_b"`
}

// Key returns the order-independent cache key of the pair
func (p DrugPair) Key() string { return PairKey(p.DrugA, p.DrugB) }

// PairKey returns lower(a)+"_"+lower(b) with the two names sorted, so that
// PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	la, lb := NormalizeDrugName(a), NormalizeDrugName(b)
	if lb < la {
		la, lb = lb, la
	}
	return la + "_" + lb
}

// InteractionReport is the result of resolving all pairs of a drug list
type InteractionReport struct {
	Interactions   []DrugInteraction `json:"interactions"`
	Unchecked      []DrugPair        `json:"unchecked,omitempty"`
	PairsEvaluated int               `json:"pairs_evaluated"`
	Degraded       bool              `json:"degraded"`
}

// DoseRecommendation is the dose optimizer output
type DoseRecommendation struct {
	Drug             string  `json:"drug"`
	CalculatedDose   float64 `json:"calculated_dose"`
	RecommendedDose  float64 `json:"recommended_dose"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
	DosingInterval   string  `json:"dosing_interval"`
	Rationale        string  `json:"rationale"`
}

// KnownAdverseEvent is a reference entry of the known adverse-event table
type KnownAdverseEvent struct {
	Name      string     `json:"name"`
	Category  AECategory `json:"category"`
	Incidence float64    `json:"incidence"`
	Severity  AESeverity `json:"severity"`
}

// AdverseEvent is a predicted adverse event for one patient-drug-event triple
type AdverseEvent struct {
	EventID                 string     `json:"event_id"`
	PatientID               string     `json:"patient_id"`
	EventName               string     `json:"event_name"`
	Category                AECategory `json:"category"`
	Severity                AESeverity `json:"severity"`
	Probability             float64    `json:"probability"`
	OnsetDay                int        `json:"onset_day"`
	DurationDays            int        `json:"duration_days"`
	Causality               Causality  `json:"causality"`
	RiskFactors             []string   `json:"risk_factors"`
	MitigationStrategies    []string   `json:"mitigation_strategies"`
	IsSerious               bool       `json:"is_serious"`
	RequiresDiscontinuation bool       `json:"requires_discontinuation"`
}

// AEPrediction is the adverse-event model output for one patient
type AEPrediction struct {
	PatientID string         `json:"patient_id"`
	Drug      string         `json:"drug"`
	Events    []AdverseEvent `json:"events"`
	Degraded  bool           `json:"degraded"`
}

// SafetySignal is a pattern indicating a potential safety concern
type SafetySignal struct {
	SignalName       string         `json:"signal_name"`
	AffectedPatients int            `json:"affected_patients"`
	TotalPatients    int            `json:"total_patients"`
	IncidenceRate    float64        `json:"incidence_rate"`
	ExpectedRate     float64        `json:"expected_rate"`
	SignalStrength   float64        `json:"signal_strength"`
	Events           []AdverseEvent `json:"events"`
	Recommendation   string         `json:"recommendation"`
}

// SafetyAssessment is the qualitative overall safety tier
type SafetyAssessment string

const (
	SafetyFavorable  SafetyAssessment = "favorable"
	SafetyAcceptable SafetyAssessment = "acceptable"
	SafetyConcerns   SafetyAssessment = "concerns"
)

// SafetyReport aggregates adverse events across a trial population
type SafetyReport struct {
	ReportID         string             `json:"report_id"`
	TrialName        string             `json:"trial_name"`
	ReportDate       time.Time          `json:"report_date"`
	TotalPatients    int                `json:"total_patients"`
	PatientsWithAE   int                `json:"patients_with_ae"`
	AEIncidence      float64            `json:"ae_incidence"`
	TotalEvents      int                `json:"total_events"`
	SeriousEvents    int                `json:"serious_events"`
	EventsByCategory map[AECategory]int `json:"events_by_category"`
	EventsBySeverity map[AESeverity]int `json:"events_by_severity"`
	SafetySignals    []SafetySignal     `json:"safety_signals"`
	Assessment       SafetyAssessment   `json:"assessment"`
	AssessmentText   string             `json:"overall_safety_assessment"`
}

// SimulationResult combines PK, interactions and dosing advice for a single patient-drug run
type SimulationResult struct {
	PatientID            string            `json:"patient_id"`
	DrugName             string            `json:"drug_name"`
	PK                   PKParameters      `json:"pk_parameters"`
	AdjustmentFactor     float64           `json:"adjustment_factor"`
	Interactions         []DrugInteraction `json:"interactions"`
	DoseAdjustmentNeeded bool              `json:"dose_adjustment_needed"`
	RecommendedDose      *float64          `json:"recommended_dose,omitempty"`
	Warnings             []string          `json:"warnings"`
	Timestamp            time.Time         `json:"timestamp"`
	Degraded             bool              `json:"degraded"`
}

// AgeStats summarises ages in a population
type AgeStats struct {
	Mean float64 `json:"mean"`
	Min  int     `json:"min"`
	Max  int     `json:"max"`
}

// PopulationSummary summarises a synthetic patient population
type PopulationSummary struct {
	TotalPatients      int                  `json:"total_patients"`
	AgeStats           AgeStats             `json:"age_stats"`
	GenderDistribution map[Gender]int       `json:"gender_distribution"`
	CYP2D6Distribution map[CYP2D6Status]int `json:"cyp2d6_distribution"`
}
