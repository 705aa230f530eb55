package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pkddi-mcp-server/internal/domain"
	"github.com/pkddi-mcp-server/internal/metrics"
)

// Signal detection thresholds
const (
	signalStrengthThreshold = 2.0
	signalMinPatients       = 2
)

// Assessment thresholds
const (
	favorableAERate       = 0.2
	acceptableSeriousRate = 0.05
)

// SafetyReporter aggregates adverse events across a trial population
type SafetyReporter struct {
	catalog domain.AdverseEventCatalog
	logger  *logrus.Logger
	now     func() time.Time
}

// NewSafetyReporter creates a new safety reporter. catalog provides the expected
// rates used for signal detection and may be nil.
func NewSafetyReporter(catalog domain.AdverseEventCatalog, logger *logrus.Logger) *SafetyReporter {
	return &SafetyReporter{catalog: catalog, logger: logger, now: time.Now}
}

// Generate builds the safety report of a trial. drugName selects the expected rates for
// signal detection; an empty name disables it.
func (r *SafetyReporter) Generate(trialName, drugName string, patients []domain.PatientProfile, events []domain.AdverseEvent) (*domain.SafetyReport, error) {
	if strings.TrimSpace(trialName) == "" {
		return nil, domain.NewParameterError("trial_name", trialName, "is required")
	}

	now := r.now()
	report := &domain.SafetyReport{
		ReportID:         "SR-" + now.Format("200601021504"),
		TrialName:        trialName,
		ReportDate:       now,
		TotalPatients:    len(patients),
		TotalEvents:      len(events),
		EventsByCategory: make(map[domain.AECategory]int),
		EventsBySeverity: make(map[domain.AESeverity]int),
		SafetySignals:    []domain.SafetySignal{},
	}

	withAE := make(map[string]bool)
	for _, e := range events {
		withAE[e.PatientID] = true
		report.EventsByCategory[e.Category]++
		report.EventsBySeverity[e.Severity]++
		if e.IsSerious {
			report.SeriousEvents++
		}
	}
	report.PatientsWithAE = len(withAE)
	if report.TotalPatients > 0 {
		report.AEIncidence = float64(report.PatientsWithAE) / float64(report.TotalPatients)
	}

	report.SafetySignals = r.detectSignals(drugName, report.TotalPatients, events)
	report.Assessment, report.AssessmentText = AssessOverallSafety(events, report.TotalPatients)

	r.logger.WithFields(logrus.Fields{
		"report_id":      report.ReportID,
		"trial":          trialName,
		"patients":       report.TotalPatients,
		"events":         report.TotalEvents,
		"serious_events": report.SeriousEvents,
		"signals":        len(report.SafetySignals),
		"assessment":     report.Assessment,
	}).Info("Safety report generated")
	metrics.RecordSimulation("generate_safety_report", false)

	return report, nil
}

// AssessOverallSafety classifies a set of events observed in totalPatients patients.
// Favorable needs no serious events and an event rate under 0.2. Otherwise the
// serious-event rate alone decides: under 0.05 is acceptable, so a population with
// many mild events and no serious ones rates acceptable, not concerns.
func AssessOverallSafety(events []domain.AdverseEvent, totalPatients int) (domain.SafetyAssessment, string) {
	if len(events) == 0 {
		return domain.SafetyFavorable, "No adverse events observed. Safety profile appears favorable."
	}

	n := float64(max(totalPatients, 1))
	serious := 0
	for _, e := range events {
		if e.IsSerious {
			serious++
		}
	}
	aeRate := float64(len(events)) / n

	switch {
	case serious == 0 && aeRate < favorableAERate:
		return domain.SafetyFavorable, "Favorable safety profile with mild adverse events only."
	case float64(serious)/n < acceptableSeriousRate:
		return domain.SafetyAcceptable, "Generally acceptable safety with rare serious events requiring monitoring."
	default:
		return domain.SafetyConcerns, "Safety concerns identified. Close monitoring and possible protocol amendment recommended."
	}
}

// detectSignals flags events whose observed incidence is at least twice the known base rate
func (r *SafetyReporter) detectSignals(drugName string, totalPatients int, events []domain.AdverseEvent) []domain.SafetySignal {
	signals := []domain.SafetySignal{}
	if r.catalog == nil || drugName == "" || totalPatients == 0 {
		return signals
	}

	expected := make(map[string]float64)
	for _, k := range r.catalog.KnownEvents(drugName) {
		expected[strings.ToLower(k.Name)] = k.Incidence
	}

	byName := make(map[string][]domain.AdverseEvent)
	for _, e := range events {
		key := strings.ToLower(e.EventName)
		if _, ok := expected[key]; ok {
			byName[key] = append(byName[key], e)
		}
	}

	for key, group := range byName {
		patients := make(map[string]bool)
		for _, e := range group {
			patients[e.PatientID] = true
		}
		if len(patients) < signalMinPatients {
			continue
		}

		rate := float64(len(patients)) / float64(totalPatients)
		strength := rate / expected[key]
		if strength < signalStrengthThreshold {
			continue
		}

		signals = append(signals, domain.SafetySignal{
			SignalName:       group[0].EventName,
			AffectedPatients: len(patients),
			TotalPatients:    totalPatients,
			IncidenceRate:    rate,
			ExpectedRate:     expected[key],
			SignalStrength:   strength,
			Events:           group,
			Recommendation:   fmt.Sprintf("Observed %s incidence is %.1fx the expected rate; review cases and consider enhanced monitoring", group[0].EventName, strength),
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].SignalStrength > signals[j].SignalStrength
	})
	return signals
}
