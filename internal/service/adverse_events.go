package service

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pkddi-mcp-server/internal/covariate"
	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
	"github.com/pkddi-mcp-server/internal/oracle"
)

// ProbabilityFloor is the exclusive lower bound for retaining rule-based predictions
const ProbabilityFloor = 0.01

const (
	noRiskFactors      = "No specific risk factors identified"
	genericMitigation  = "Clinical monitoring"
	oracleRiskFactor   = "AI-identified risk"
	oracleDefaultProb  = 0.05
	oracleOnsetDay     = 14
	oracleDurationDays = 7
	defaultOnsetDay    = 14
)

var onsetDays = map[domain.AECategory]int{
	domain.AEGastrointestinal: 3,
	domain.AEHepatic:          30,
	domain.AEDermatological:   7,
}

var mitigationStrategies = map[domain.AECategory][]string{
	domain.AEGastrointestinal: {"Take with food", "Start with low dose", "Consider antiemetics"},
	domain.AEHepatic:          {"Monitor LFTs regularly", "Avoid alcohol", "Review hepatotoxic meds"},
	domain.AEMusculoskeletal:  {"Monitor CK levels", "Report muscle pain", "Consider dose reduction"},
	domain.AEMetabolic:        {"Regular metabolic panels", "Dietary counseling"},
	domain.AERespiratory:      {"Consider alternative agent if persistent", "Monitor symptoms"},
}

// AdverseEventModel predicts patient-specific adverse events from known base rates,
// supplemented by oracle-discovered events
type AdverseEventModel struct {
	catalog        domain.AdverseEventCatalog
	oracle         domain.Oracle
	maxConcurrency int
	logger         *logrus.Logger
}

// NewAdverseEventModel creates a new adverse-event model
func NewAdverseEventModel(catalog domain.AdverseEventCatalog, oracle domain.Oracle, config domain.SimulationConfig, logger *logrus.Logger) *AdverseEventModel {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	return &AdverseEventModel{
		catalog:        catalog,
		oracle:         oracle,
		maxConcurrency: config.MaxConcurrency,
		logger:         logger,
	}
}

// Predict returns the adverse events expected for patient on drugName. The oracle
// supplement is best effort; its failure only marks the prediction degraded.
func (m *AdverseEventModel) Predict(ctx context.Context, patient *domain.PatientProfile, drugName string, doseMg float64, durationDays int) (*domain.AEPrediction, error) {
	if patient == nil {
		return nil, domain.NewParameterError("patient", nil, "is required")
	}
	if err := patient.Validate(); err != nil {
		return nil, err
	}
	if !(doseMg > 0) || math.IsInf(doseMg, 0) {
		return nil, domain.NewParameterError("dose_mg", doseMg, "must be positive and finite")
	}
	if durationDays < 0 {
		return nil, domain.NewParameterError("duration_days", durationDays, "must be >= 0")
	}

	prediction := &domain.AEPrediction{
		PatientID: patient.PatientID,
		Drug:      drugName,
		Events:    m.predictKnown(patient, drugName),
	}

	discovered, err := m.discover(ctx, patient, drugName, doseMg)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"patient_id": patient.PatientID,
			"drug":       drugName,
		}).WithError(err).Warn("Adverse-event discovery unavailable")
		prediction.Degraded = true
	}
	prediction.Events = append(prediction.Events, discovered...)

	m.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"drug":       drugName,
		"events":     len(prediction.Events),
	}).Debug("Adverse events predicted")
	metrics.RecordSimulation("predict_adverse_events", prediction.Degraded)

	return prediction, nil
}

// PredictPopulation runs Predict for every patient with bounded concurrency. The
// returned slice is in patient order.
func (m *AdverseEventModel) PredictPopulation(ctx context.Context, patients []domain.PatientProfile, drugName string, doseMg float64, durationDays int) ([]domain.AEPrediction, error) {
	out := make([]domain.AEPrediction, len(patients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrency)
	for i := range patients {
		g.Go(func() error {
			p, err := m.Predict(gctx, &patients[i], drugName, doseMg, durationDays)
			if err != nil {
				return fmt.Errorf("patient %s: %w", patients[i].PatientID, err)
			}
			out[i] = *p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// predictKnown applies the risk rule table to each known event of the drug
func (m *AdverseEventModel) predictKnown(patient *domain.PatientProfile, drugName string) []domain.AdverseEvent {
	events := []domain.AdverseEvent{}
	for _, known := range m.catalog.KnownEvents(drugName) {
		adj := covariate.RiskAdjustment(patient, &known)
		probability := math.Min(known.Incidence*adj.Factor, 1)
		if !(probability > ProbabilityFloor) {
			continue
		}

		riskFactors := adj.ReasonsFor(covariate.RiskFactorRules...)
		if len(riskFactors) == 0 {
			riskFactors = []string{noRiskFactors}
		}

		events = append(events, domain.AdverseEvent{
			EventID:                 fmt.Sprintf("AE-%s-%d", patient.PatientID, len(events)+1),
			PatientID:               patient.PatientID,
			EventName:               known.Name,
			Category:                known.Category,
			Severity:                known.Severity,
			Probability:             probability,
			OnsetDay:                OnsetDay(known.Category),
			DurationDays:            DurationDays(known.Severity),
			Causality:               domain.CausalityProbable,
			RiskFactors:             riskFactors,
			MitigationStrategies:    MitigationStrategies(known.Category),
			IsSerious:               known.Severity.IsSerious(),
			RequiresDiscontinuation: known.Severity.RequiresDiscontinuation(),
		})
	}
	return events
}

// discover asks the oracle for events beyond the known table. Items with an invalid
// severity are skipped; a malformed response fails the whole discovery.
func (m *AdverseEventModel) discover(ctx context.Context, patient *domain.PatientProfile, drugName string, doseMg float64) ([]domain.AdverseEvent, error) {
	text, err := m.oracle.Complete(ctx, oracle.AdverseEventPrompt(patient, drugName, doseMg))
	if err != nil {
		return nil, err
	}

	items, err := oracle.DecodeArray[oracle.AdverseEventItem](text)
	if err != nil {
		return nil, err
	}

	var events []domain.AdverseEvent
	for _, item := range items {
		grade := 1
		if item.Severity != nil {
			grade = *item.Severity
		}
		severity, err := domain.ParseAESeverity(grade)
		if err != nil {
			m.logger.WithField("event", item.Name).WithError(err).Debug("Skipping discovered event")
			continue
		}

		category, err := domain.ParseAECategory(item.Category)
		if err != nil {
			category = domain.AEOther
		}

		probability := oracleDefaultProb
		if item.Probability != nil {
			probability = math.Max(0, math.Min(*item.Probability, 1))
		}

		events = append(events, domain.AdverseEvent{
			EventID:                 fmt.Sprintf("AE-%s-G%d", patient.PatientID, len(events)+1),
			PatientID:               patient.PatientID,
			EventName:               orDefault(item.Name, "Unknown"),
			Category:                category,
			Severity:                severity,
			Probability:             probability,
			OnsetDay:                oracleOnsetDay,
			DurationDays:            oracleDurationDays,
			Causality:               domain.CausalityPossible,
			RiskFactors:             []string{orDefault(item.Rationale, oracleRiskFactor)},
			MitigationStrategies:    []string{genericMitigation},
			IsSerious:               severity.IsSerious(),
			RequiresDiscontinuation: severity.RequiresDiscontinuation(),
		})
	}
	return events, nil
}

// OnsetDay returns the expected onset day of an event category
func OnsetDay(category domain.AECategory) int {
	if d, ok := onsetDays[category]; ok {
		return d
	}
	return defaultOnsetDay
}

// DurationDays returns the expected event duration for a severity grade
func DurationDays(severity domain.AESeverity) int {
	switch {
	case severity <= domain.AEModerate:
		return 7
	case severity == domain.AESevere:
		return 21
	default:
		return 60
	}
}

// MitigationStrategies returns the mitigation strings of an event category
func MitigationStrategies(category domain.AECategory) []string {
	if s, ok := mitigationStrategies[category]; ok {
		out := make([]string, len(s))
		copy(out, s)
		return out
	}
	return []string{genericMitigation}
}
