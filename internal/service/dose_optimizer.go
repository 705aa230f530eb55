package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/covariate"
	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
)

// PracticalDoseStrengths are the tablet/capsule strengths in mg, ascending
var PracticalDoseStrengths = []float64{5, 10, 15, 20, 25, 40, 50, 75, 100, 150, 200, 250, 500}

// DefaultDosingInterval is the interval reported with every recommendation
const DefaultDosingInterval = "24 hours"

// DoseOptimizer inverts the Cmax relation to recommend a dose for a target concentration
type DoseOptimizer struct {
	catalog domain.DrugCatalog
	logger  *logrus.Logger
}

// NewDoseOptimizer creates a new dose optimizer
func NewDoseOptimizer(catalog domain.DrugCatalog, logger *logrus.Logger) *DoseOptimizer {
	return &DoseOptimizer{catalog: catalog, logger: logger}
}

// Optimize returns the dose that reaches targetConcentration for patient. Only catalog
// drugs are supported.
func (o *DoseOptimizer) Optimize(patient *domain.PatientProfile, drugName string, targetConcentration float64) (*domain.DoseRecommendation, error) {
	if !(targetConcentration > 0) || math.IsInf(targetConcentration, 0) {
		return nil, domain.NewParameterError("target_concentration", targetConcentration, "must be positive and finite")
	}
	if patient != nil {
		if err := patient.Validate(); err != nil {
			return nil, err
		}
	}

	drug, err := o.catalog.Lookup(drugName)
	if err != nil {
		return nil, err
	}

	adj := covariate.ClearanceAdjustment(patient, &drug)
	baseDose := targetConcentration * drug.VolumeOfDistribution / drug.Bioavailability
	adjustedDose := baseDose / adj.Factor

	rec := &domain.DoseRecommendation{
		Drug:             drugName,
		CalculatedDose:   adjustedDose,
		RecommendedDose:  RoundToPracticalDose(adjustedDose),
		AdjustmentFactor: adj.Factor,
		DosingInterval:   DefaultDosingInterval,
		Rationale:        doseRationale(adj),
	}

	o.logger.WithFields(logrus.Fields{
		"drug":             drug.GenericName,
		"target":           targetConcentration,
		"calculated_dose":  adjustedDose,
		"recommended_dose": rec.RecommendedDose,
	}).Info("Dose optimized")
	metrics.RecordSimulation("optimize_dose", false)

	return rec, nil
}

// RoundToPracticalDose returns the strength nearest to dose. An exact tie resolves to
// the lower strength.
func RoundToPracticalDose(dose float64) float64 {
	best := PracticalDoseStrengths[0]
	bestDist := math.Abs(best - dose)
	for _, s := range PracticalDoseStrengths[1:] {
		if d := math.Abs(s - dose); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func doseRationale(adj covariate.Adjustment) string {
	if len(adj.Contributions) == 0 {
		return "Standard dosing; no covariate adjustment applied"
	}
	reasons := make([]string, 0, len(adj.Contributions))
	for _, c := range adj.Contributions {
		reasons = append(reasons, c.Reason)
	}
	return fmt.Sprintf("Adjusted for patient's metabolizer status and demographics (factor %.2f: %s)",
		adj.Factor, strings.Join(reasons, "; "))
}
