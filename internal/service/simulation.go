package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
)

// AdjustmentTolerance is the deviation of the adjustment factor from 1 above which a
// dose change is recommended
const AdjustmentTolerance = 0.2

// Simulator runs the composite per-patient simulation: PK, interaction check and dosing advice
type Simulator struct {
	pk           *PKSimulator
	interactions *InteractionResolver
	logger       *logrus.Logger
	now          func() time.Time
}

// NewSimulator creates a new composite simulator
func NewSimulator(pk *PKSimulator, interactions *InteractionResolver, logger *logrus.Logger) *Simulator {
	return &Simulator{pk: pk, interactions: interactions, logger: logger, now: time.Now}
}

// SimulatePatient simulates drugName for patient together with concomitant drugs and the
// patient's current medications
func (s *Simulator) SimulatePatient(ctx context.Context, patient *domain.PatientProfile, drugName string, doseMg, frequencyHours float64, concomitant []string) (*domain.SimulationResult, error) {
	if patient == nil {
		return nil, domain.NewParameterError("patient", nil, "is required")
	}

	pk, err := s.pk.Simulate(ctx, patient, drugName, doseMg, frequencyHours)
	if err != nil {
		return nil, fmt.Errorf("pk simulation failed: %w", err)
	}

	drugs := append([]string{drugName}, concomitant...)
	drugs = append(drugs, patient.History.CurrentMedications...)
	report, err := s.interactions.Resolve(ctx, drugs, patient)
	if err != nil {
		return nil, fmt.Errorf("interaction check failed: %w", err)
	}

	result := &domain.SimulationResult{
		PatientID:        patient.PatientID,
		DrugName:         drugName,
		PK:               pk.Parameters,
		AdjustmentFactor: pk.AdjustmentFactor,
		Interactions:     report.Interactions,
		Warnings:         []string{},
		Timestamp:        s.now(),
		Degraded:         pk.Degraded || report.Degraded,
	}

	if math.Abs(pk.AdjustmentFactor-1) > AdjustmentTolerance {
		result.DoseAdjustmentNeeded = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Covariate adjustment factor %.2f deviates from standard dosing", pk.AdjustmentFactor))
	}
	for _, ix := range report.Interactions {
		switch ix.Severity {
		case domain.SeverityContraindicated:
			result.DoseAdjustmentNeeded = true
			result.Warnings = append(result.Warnings, fmt.Sprintf("Contraindicated combination: %s + %s", ix.DrugA, ix.DrugB))
		case domain.SeverityMajor:
			result.DoseAdjustmentNeeded = true
			result.Warnings = append(result.Warnings, fmt.Sprintf("Major interaction: %s + %s", ix.DrugA, ix.DrugB))
		}
	}
	if pk.Degraded {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Properties for %s unavailable; default values used", drugName))
	}
	if len(report.Unchecked) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Interaction check incomplete for %d pair(s)", len(report.Unchecked)))
	}

	if result.DoseAdjustmentNeeded {
		dose := RoundToPracticalDose(doseMg / pk.AdjustmentFactor)
		result.RecommendedDose = &dose
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":             patient.PatientID,
		"drug":                   drugName,
		"adjustment_factor":      pk.AdjustmentFactor,
		"interactions":           len(result.Interactions),
		"dose_adjustment_needed": result.DoseAdjustmentNeeded,
		"degraded":               result.Degraded,
	}).Info("Patient simulation completed")
	metrics.RecordSimulation("simulate_patient", result.Degraded)

	return result, nil
}
