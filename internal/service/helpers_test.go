package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/pkddi-mcp-server/internal/domain"
)

// MockOracle is a mock implementation of the domain.Oracle interface
type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// promptContaining matches prompts that mention every fragment
func promptContaining(fragments ...string) interface{} {
	return mock.MatchedBy(func(prompt string) bool {
		for _, f := range fragments {
			if !strings.Contains(prompt, f) {
				return false
			}
		}
		return true
	})
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testSimulationConfig() domain.SimulationConfig {
	return domain.SimulationConfig{
		MaxConcurrency:        4,
		DefaultFrequencyHours: 24,
		InteractionCacheSize:  128,
	}
}

// testPatient returns a 45-year-old with normal metabolism and BMI 22.9
func testPatient(id string) *domain.PatientProfile {
	return &domain.PatientProfile{
		PatientID: id,
		Age:       45,
		Gender:    domain.GenderFemale,
		Ethnicity: domain.EthnicityCaucasian,
		Genomics: domain.GenomicProfile{
			CYP2D6Status:   domain.CYP2D6Normal,
			CYP3A4Activity: domain.CYP3A4Normal,
		},
		Vitals: domain.NewVitalSigns(120, 80, 70, 70, 175),
	}
}

// elderlyPoorObesePatient is 70 years old, a poor CYP2D6 metabolizer with BMI 32
func elderlyPoorObesePatient(id string) *domain.PatientProfile {
	p := testPatient(id)
	p.Age = 70
	p.Genomics.CYP2D6Status = domain.CYP2D6Poor
	p.Vitals = domain.NewVitalSigns(135, 85, 72, 81.92, 160)
	return p
}
