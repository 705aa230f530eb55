package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/covariate"
	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
	"github.com/pkddi-mcp-server/internal/oracle"
)

// FixedTmaxHours is the time to peak concentration; absorption is not patient-adjusted
const FixedTmaxHours = 1.5

const drugMemoSize = 256

// PKSimulator computes one-compartment PK parameters for a patient-drug-dose combination
type PKSimulator struct {
	catalog          domain.DrugCatalog
	oracle           domain.Oracle
	drugMemo         *lru.Cache[string, domain.DrugProperties]
	defaultFrequency float64
	logger           *logrus.Logger
}

// NewPKSimulator creates a new PK simulator. Drugs resolved through the oracle are
// memoized for the lifetime of the simulator.
func NewPKSimulator(catalog domain.DrugCatalog, oracle domain.Oracle, config domain.SimulationConfig, logger *logrus.Logger) (*PKSimulator, error) {
	if config.DefaultFrequencyHours <= 0 {
		config.DefaultFrequencyHours = 24
	}

	memo, err := lru.New[string, domain.DrugProperties](drugMemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create drug memo: %w", err)
	}

	return &PKSimulator{
		catalog:          catalog,
		oracle:           oracle,
		drugMemo:         memo,
		defaultFrequency: config.DefaultFrequencyHours,
		logger:           logger,
	}, nil
}

// Simulate returns PK parameters for patient taking doseMg of drugName every frequencyHours.
// A non-positive frequency uses the configured default. Unknown drugs never fail the
// simulation: the oracle is consulted and, failing that, default properties are used
// and the result is marked degraded.
func (s *PKSimulator) Simulate(ctx context.Context, patient *domain.PatientProfile, drugName string, doseMg, frequencyHours float64) (*domain.PKResult, error) {
	if patient != nil {
		if err := patient.Validate(); err != nil {
			return nil, err
		}
	}
	if math.IsNaN(frequencyHours) || math.IsInf(frequencyHours, 0) {
		return nil, domain.NewParameterError("frequency_hours", frequencyHours, "must be finite")
	}
	if frequencyHours <= 0 {
		frequencyHours = s.defaultFrequency
	}
	if !(doseMg > 0) || math.IsInf(doseMg, 0) {
		return nil, domain.NewParameterError("dose_mg", doseMg, "must be positive and finite")
	}

	drug, degraded := s.ResolveDrug(ctx, drugName)
	factor := covariate.AdjustmentFactor(patient, &drug)

	params, err := ComputePK(drug, factor, doseMg, frequencyHours)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"drug":              drug.GenericName,
		"dose_mg":           doseMg,
		"frequency_hours":   frequencyHours,
		"adjustment_factor": factor,
		"degraded":          degraded,
	}).Debug("PK simulation completed")
	metrics.RecordSimulation("simulate_pk", degraded)

	return &domain.PKResult{
		Parameters:       params,
		Drug:             drug,
		DoseMg:           doseMg,
		FrequencyHours:   frequencyHours,
		AdjustmentFactor: factor,
		Degraded:         degraded,
	}, nil
}

// ResolveDrug returns the properties of drugName from the catalog, the memo or the oracle,
// in that order. The second result reports that default properties were substituted.
func (s *PKSimulator) ResolveDrug(ctx context.Context, drugName string) (domain.DrugProperties, bool) {
	drug, err := s.catalog.Lookup(drugName)
	if err == nil {
		return drug, false
	}

	key := domain.NormalizeDrugName(drugName)
	if cached, ok := s.drugMemo.Get(key); ok {
		metrics.RecordCacheLookup("drug_properties", true)
		return cached, false
	}
	metrics.RecordCacheLookup("drug_properties", false)

	drug, err = s.lookupFromOracle(ctx, drugName)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"drug":        drugName,
			"recoverable": domain.IsRecoverable(err),
		}).WithError(err).Warn("Drug properties unavailable, using defaults")
		return domain.DefaultDrugProperties(drugName), true
	}

	s.drugMemo.Add(key, drug)
	s.logger.WithField("drug", drugName).Info("Resolved drug properties from oracle")
	return drug, false
}

func (s *PKSimulator) lookupFromOracle(ctx context.Context, drugName string) (domain.DrugProperties, error) {
	text, err := s.oracle.Complete(ctx, oracle.DrugPropertiesPrompt(drugName))
	if err != nil {
		return domain.DrugProperties{}, err
	}

	resp, err := oracle.DecodeObject[oracle.DrugPropertiesResponse](text)
	if err != nil {
		return domain.DrugProperties{}, err
	}

	if len(resp.PrimaryMetabolism) == 0 {
		return domain.DrugProperties{}, domain.NewSchemaError("primary_metabolism", "at least one pathway is required")
	}
	pathways := make([]domain.MetabolismPathway, 0, len(resp.PrimaryMetabolism))
	for _, raw := range resp.PrimaryMetabolism {
		p, err := domain.ParseMetabolismPathway(raw)
		if err != nil {
			return domain.DrugProperties{}, err
		}
		pathways = append(pathways, p)
	}

	drugClass := resp.DrugClass
	if drugClass == "" {
		drugClass = "Unknown"
	}

	drug := domain.DrugProperties{
		Name:                 drugName,
		GenericName:          domain.NormalizeDrugName(drugName),
		DrugClass:            drugClass,
		HalfLifeHours:        resp.HalfLifeHours,
		Bioavailability:      resp.Bioavailability,
		VolumeOfDistribution: resp.VolumeOfDistribution,
		ProteinBinding:       resp.ProteinBinding,
		Metabolism:           pathways,
	}
	if err := drug.Validate(); err != nil {
		var pe *domain.ParameterError
		if errors.As(err, &pe) {
			return domain.DrugProperties{}, domain.NewSchemaError(pe.Field, pe.Message)
		}
		return domain.DrugProperties{}, err
	}
	return drug, nil
}

// ComputePK evaluates the one-compartment model. Clearance is expressed per mg of
// administered dose, so AUC and steady-state concentration scale linearly with dose.
func ComputePK(drug domain.DrugProperties, factor, doseMg, frequencyHours float64) (domain.PKParameters, error) {
	if err := drug.Validate(); err != nil {
		return domain.PKParameters{}, err
	}
	if !(doseMg > 0) || math.IsInf(doseMg, 0) {
		return domain.PKParameters{}, domain.NewParameterError("dose_mg", doseMg, "must be positive and finite")
	}
	if !(frequencyHours > 0) || math.IsInf(frequencyHours, 0) {
		return domain.PKParameters{}, domain.NewParameterError("frequency_hours", frequencyHours, "must be positive and finite")
	}
	if !(factor > 0) || math.IsInf(factor, 0) {
		return domain.PKParameters{}, domain.NewParameterError("adjustment_factor", factor, "must be positive and finite")
	}

	absorbed := doseMg * drug.Bioavailability
	clearance := drug.Bioavailability / (drug.HalfLifeHours * factor)
	auc := absorbed / clearance

	return domain.PKParameters{
		Cmax:                     absorbed / drug.VolumeOfDistribution * factor,
		Tmax:                     FixedTmaxHours,
		AUC:                      auc,
		Clearance:                clearance,
		HalfLife:                 drug.HalfLifeHours / factor,
		SteadyStateConcentration: auc / frequencyHours,
	}, nil
}
