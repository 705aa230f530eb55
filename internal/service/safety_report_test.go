package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkddi-mcp-server/internal/catalog"
	"github.com/pkddi-mcp-server/internal/domain"
)

func makePatients(n int) []domain.PatientProfile {
	patients := make([]domain.PatientProfile, n)
	for i := range patients {
		patients[i] = *testPatient(fmt.Sprintf("PT-%03d", i+1))
	}
	return patients
}

func makeEvents(n int, severity domain.AESeverity, name string, category domain.AECategory) []domain.AdverseEvent {
	events := make([]domain.AdverseEvent, n)
	for i := range events {
		events[i] = domain.AdverseEvent{
			EventID:   fmt.Sprintf("AE-PT-%03d-1", i+1),
			PatientID: fmt.Sprintf("PT-%03d", i+1),
			EventName: name,
			Category:  category,
			Severity:  severity,
			IsSerious: severity.IsSerious(),
		}
	}
	return events
}

func TestAssessOverallSafety(t *testing.T) {
	tests := []struct {
		name     string
		events   []domain.AdverseEvent
		patients int
		expected domain.SafetyAssessment
	}{
		{"No_Events", nil, 100, domain.SafetyFavorable},
		{"Nineteen_Mild_Events", makeEvents(19, domain.AEMild, "Nausea", domain.AEGastrointestinal), 100, domain.SafetyFavorable},
		{"Twenty_Mild_Events", makeEvents(20, domain.AEMild, "Nausea", domain.AEGastrointestinal), 100, domain.SafetyAcceptable},
		{"Thirty_Mild_No_Serious", makeEvents(30, domain.AEMild, "Nausea", domain.AEGastrointestinal), 100, domain.SafetyAcceptable},
		{"Four_Serious_Events", makeEvents(4, domain.AESevere, "Hepatotoxicity", domain.AEHepatic), 100, domain.SafetyAcceptable},
		{"Five_Serious_Events", makeEvents(5, domain.AESevere, "Hepatotoxicity", domain.AEHepatic), 100, domain.SafetyConcerns},
		{"Six_Serious_Events", makeEvents(6, domain.AESevere, "Hepatotoxicity", domain.AEHepatic), 100, domain.SafetyConcerns},
		{"Zero_Patients_Uses_One", makeEvents(1, domain.AEMild, "Nausea", domain.AEGastrointestinal), 0, domain.SafetyAcceptable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment, text := AssessOverallSafety(tt.events, tt.patients)
			assert.Equal(t, tt.expected, assessment)
			assert.NotEmpty(t, text)
		})
	}
}

func TestSafetyReporter_Generate(t *testing.T) {
	reporter := NewSafetyReporter(catalog.NewAdverseEventCatalog(), testLogger())
	reporter.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC) }

	t.Run("Aggregates", func(t *testing.T) {
		patients := makePatients(10)
		events := append(makeEvents(3, domain.AEMild, "Nausea", domain.AEGastrointestinal),
			makeEvents(1, domain.AELifeThreatening, "Lactic acidosis", domain.AEMetabolic)...)

		report, err := reporter.Generate("METFORMIN-PH2", "", patients, events)
		require.NoError(t, err)

		assert.Equal(t, "SR-202603140926", report.ReportID)
		assert.Equal(t, 10, report.TotalPatients)
		assert.Equal(t, 3, report.PatientsWithAE)
		assert.InDelta(t, 0.3, report.AEIncidence, 1e-12)
		assert.Equal(t, 4, report.TotalEvents)
		assert.Equal(t, 1, report.SeriousEvents)
		assert.Equal(t, 3, report.EventsByCategory[domain.AEGastrointestinal])
		assert.Equal(t, 1, report.EventsByCategory[domain.AEMetabolic])
		assert.Equal(t, 3, report.EventsBySeverity[domain.AEMild])
		assert.Equal(t, 1, report.EventsBySeverity[domain.AELifeThreatening])
		assert.Equal(t, domain.SafetyConcerns, report.Assessment)
		assert.Empty(t, report.SafetySignals)
	})

	t.Run("Signal_Detection", func(t *testing.T) {
		patients := makePatients(20)
		// Elevated LFTs: 3/20 = 0.15 observed against 0.02 expected
		events := append(makeEvents(3, domain.AEModerate, "Elevated LFTs", domain.AEHepatic),
			makeEvents(1, domain.AEMild, "Myalgia", domain.AEMusculoskeletal)...)

		report, err := reporter.Generate("STATIN-PH3", "atorvastatin", patients, events)
		require.NoError(t, err)
		require.Len(t, report.SafetySignals, 1)

		signal := report.SafetySignals[0]
		assert.Equal(t, "Elevated LFTs", signal.SignalName)
		assert.Equal(t, 3, signal.AffectedPatients)
		assert.InDelta(t, 0.15, signal.IncidenceRate, 1e-12)
		assert.InDelta(t, 0.02, signal.ExpectedRate, 1e-12)
		assert.InDelta(t, 7.5, signal.SignalStrength, 1e-9)
		assert.Len(t, signal.Events, 3)
	})

	t.Run("Missing_Trial_Name", func(t *testing.T) {
		_, err := reporter.Generate(" ", "", nil, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter)
	})
}
