package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pkddi-mcp-server/internal/catalog"
	"github.com/pkddi-mcp-server/internal/domain"
)

func newTestPKSimulator(t *testing.T, o domain.Oracle) *PKSimulator {
	t.Helper()
	sim, err := NewPKSimulator(catalog.NewDrugCatalog(), o, testSimulationConfig(), testLogger())
	require.NoError(t, err)
	return sim
}

func TestPKSimulator_Simulate(t *testing.T) {
	ctx := context.Background()

	t.Run("Elderly_Poor_Obese_Metformin", func(t *testing.T) {
		o := new(MockOracle)
		sim := newTestPKSimulator(t, o)

		result, err := sim.Simulate(ctx, elderlyPoorObesePatient("PT-1"), "Metformin", 500, 12)
		require.NoError(t, err)

		assert.InDelta(t, 1.43, result.AdjustmentFactor, 1e-9)
		assert.InDelta(t, 500*0.55/654*1.43, result.Parameters.Cmax, 1e-9)
		assert.Equal(t, FixedTmaxHours, result.Parameters.Tmax)
		assert.InDelta(t, 6.2/1.43, result.Parameters.HalfLife, 1e-9)
		assert.InDelta(t, 500*6.2*1.43, result.Parameters.AUC, 1e-6)
		assert.InDelta(t, 500*6.2*1.43/12, result.Parameters.SteadyStateConcentration, 1e-6)
		assert.Equal(t, 12.0, result.FrequencyHours)
		assert.False(t, result.Degraded)
		o.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("Dose_Linearity", func(t *testing.T) {
		sim := newTestPKSimulator(t, new(MockOracle))
		p := testPatient("PT-2")

		single, err := sim.Simulate(ctx, p, "atorvastatin", 20, 24)
		require.NoError(t, err)
		double, err := sim.Simulate(ctx, p, "atorvastatin", 40, 24)
		require.NoError(t, err)

		assert.InDelta(t, 2*single.Parameters.Cmax, double.Parameters.Cmax, 1e-9)
		assert.InDelta(t, 2*single.Parameters.AUC, double.Parameters.AUC, 1e-9)
		assert.InDelta(t, 2*single.Parameters.SteadyStateConcentration, double.Parameters.SteadyStateConcentration, 1e-9)
		assert.Equal(t, single.Parameters.Clearance, double.Parameters.Clearance)
		assert.Equal(t, single.Parameters.HalfLife, double.Parameters.HalfLife)
	})

	t.Run("Default_Frequency", func(t *testing.T) {
		sim := newTestPKSimulator(t, new(MockOracle))
		result, err := sim.Simulate(ctx, testPatient("PT-3"), "lisinopril", 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 24.0, result.FrequencyHours)
	})

	t.Run("Invalid_Dose", func(t *testing.T) {
		sim := newTestPKSimulator(t, new(MockOracle))
		for _, dose := range []float64{0, -10, math.NaN(), math.Inf(1)} {
			_, err := sim.Simulate(ctx, testPatient("PT-4"), "metformin", dose, 24)
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		}
	})

	t.Run("Invalid_Patient", func(t *testing.T) {
		sim := newTestPKSimulator(t, new(MockOracle))
		p := testPatient("PT-5")
		p.Age = -1
		_, err := sim.Simulate(ctx, p, "metformin", 500, 24)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	})
}

func TestPKSimulator_UnknownDrug(t *testing.T) {
	ctx := context.Background()

	t.Run("Oracle_Properties_Are_Memoized", func(t *testing.T) {
		o := new(MockOracle)
		o.On("Complete", mock.Anything, promptContaining("Sertraline")).Return(
			"```json\n{\"half_life_hours\": 26, \"bioavailability\": 0.44, \"volume_of_distribution\": 20, \"protein_binding\": 0.98, \"primary_metabolism\": [\"CYP2C19\", \"CYP2D6\"], \"drug_class\": \"SSRI\"}\n```", nil).Once()
		sim := newTestPKSimulator(t, o)

		p := testPatient("PT-6")
		p.Genomics.CYP2D6Status = domain.CYP2D6Poor

		first, err := sim.Simulate(ctx, p, "Sertraline", 50, 24)
		require.NoError(t, err)
		assert.False(t, first.Degraded)
		assert.Equal(t, "SSRI", first.Drug.DrugClass)
		assert.InDelta(t, 0.5, first.AdjustmentFactor, 1e-9)

		second, err := sim.Simulate(ctx, p, "sertraline", 100, 24)
		require.NoError(t, err)
		assert.Equal(t, first.Drug.HalfLifeHours, second.Drug.HalfLifeHours)

		o.AssertNumberOfCalls(t, "Complete", 1)
	})

	t.Run("Oracle_Unavailable_Uses_Defaults", func(t *testing.T) {
		o := new(MockOracle)
		o.On("Complete", mock.Anything, mock.Anything).Return("", domain.ErrOracleUnavailable)
		sim := newTestPKSimulator(t, o)

		result, err := sim.Simulate(ctx, testPatient("PT-7"), "Zolpidem", 10, 24)
		require.NoError(t, err)
		assert.True(t, result.Degraded)
		assert.Equal(t, 12.0, result.Drug.HalfLifeHours)
		assert.Equal(t, 0.5, result.Drug.Bioavailability)
		assert.Equal(t, 100.0, result.Drug.VolumeOfDistribution)
		assert.Equal(t, []domain.MetabolismPathway{domain.PathwayCYP3A4}, result.Drug.Metabolism)
	})

	t.Run("Schema_Violations_Use_Defaults", func(t *testing.T) {
		responses := map[string]string{
			"No_JSON":         "I don't know this drug.",
			"Unknown_Pathway": `{"half_life_hours": 5, "bioavailability": 0.5, "volume_of_distribution": 50, "protein_binding": 0.1, "primary_metabolism": ["CYP9Z9"]}`,
			"No_Pathway":      `{"half_life_hours": 5, "bioavailability": 0.5, "volume_of_distribution": 50, "protein_binding": 0.1, "primary_metabolism": []}`,
			"Bad_Bioavail":    `{"half_life_hours": 5, "bioavailability": 1.5, "volume_of_distribution": 50, "protein_binding": 0.1, "primary_metabolism": ["UGT"]}`,
			"Zero_Volume":     `{"half_life_hours": 5, "bioavailability": 0.5, "volume_of_distribution": 0, "protein_binding": 0.1, "primary_metabolism": ["UGT"]}`,
		}
		for name, text := range responses {
			t.Run(name, func(t *testing.T) {
				o := new(MockOracle)
				o.On("Complete", mock.Anything, mock.Anything).Return(text, nil)
				sim := newTestPKSimulator(t, o)

				result, err := sim.Simulate(ctx, testPatient("PT-8"), "Mysterol", 10, 24)
				require.NoError(t, err)
				assert.True(t, result.Degraded)
				assert.Equal(t, "Unknown", result.Drug.DrugClass)
			})
		}
	})

	t.Run("Failures_Are_Not_Memoized", func(t *testing.T) {
		o := new(MockOracle)
		o.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()
		o.On("Complete", mock.Anything, mock.Anything).Return(`{"half_life_hours": 8, "bioavailability": 0.9, "volume_of_distribution": 40, "protein_binding": 0.2, "primary_metabolism": ["CYP1A2"]}`, nil).Once()
		sim := newTestPKSimulator(t, o)

		_, degraded := sim.ResolveDrug(ctx, "Newdrug")
		assert.True(t, degraded)

		drug, degraded := sim.ResolveDrug(ctx, "Newdrug")
		assert.False(t, degraded)
		assert.Equal(t, 8.0, drug.HalfLifeHours)
	})
}

func TestComputePK(t *testing.T) {
	drug := domain.DefaultDrugProperties("x")

	t.Run("Positive_And_Finite", func(t *testing.T) {
		for _, factor := range []float64{0.35, 0.5, 1, 1.43, 3} {
			params, err := ComputePK(drug, factor, 100, 24)
			require.NoError(t, err)
			for _, v := range []float64{params.Cmax, params.AUC, params.SteadyStateConcentration, params.Clearance, params.HalfLife} {
				assert.Greater(t, v, 0.0)
				assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
			}
		}
	})

	t.Run("Clearance_Is_Per_Mg", func(t *testing.T) {
		for _, dose := range []float64{10, 250, 1000} {
			params, err := ComputePK(drug, 1.3, dose, 24)
			require.NoError(t, err)
			assert.InDelta(t, drug.Bioavailability/(drug.HalfLifeHours*1.3), params.Clearance, 1e-12)
			assert.InDelta(t, dose*drug.Bioavailability/params.Clearance, params.AUC, 1e-9)
		}
	})

	t.Run("Precondition_Violations", func(t *testing.T) {
		zeroVd := drug
		zeroVd.VolumeOfDistribution = 0
		_, err := ComputePK(zeroVd, 1, 100, 24)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)

		_, err = ComputePK(drug, 0, 100, 24)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)

		_, err = ComputePK(drug, 1, 100, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	})
}
