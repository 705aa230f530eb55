package catalog

import (
	"slices"

	"github.com/pkddi-mcp-server/internal/domain"
)

type knownEventRow struct {
	name      string
	category  string
	incidence float64
	severity  int
}

// knownEventRows is the known adverse-event table, keyed by lowercase generic name.
// Categories are ingested through domain.ParseAECategory.
var knownEventRows = map[string][]knownEventRow{
	"metformin": {
		{"Nausea", "GASTROINTESTINAL", 0.25, 1},
		{"Diarrhea", "GASTROINTESTINAL", 0.15, 1},
		{"Lactic acidosis", "METABOLIC", 0.001, 4},
	},
	"atorvastatin": {
		{"Myalgia", "MUSCULOSKELETAL", 0.05, 1},
		{"Elevated LFTs", "HEPATIC", 0.02, 2},
		{"Rhabdomyolysis", "MUSCULOSKELETAL", 0.0001, 4},
	},
	"lisinopril": {
		{"Dry cough", "RESPIRATORY", 0.10, 1},
		{"Hyperkalemia", "METABOLIC", 0.03, 2},
		{"Angioedema", "OTHER", 0.001, 4},
	},
	"metoprolol": {
		{"Fatigue", "NEUROLOGICAL", 0.10, 1},
		{"Bradycardia", "CARDIAC", 0.03, 2},
		{"Dizziness", "NEUROLOGICAL", 0.05, 1},
	},
}

// AdverseEventCatalog is an immutable table of known per-drug adverse events
type AdverseEventCatalog struct {
	events map[string][]domain.KnownAdverseEvent
}

// NewAdverseEventCatalog builds the catalog from the built-in table
func NewAdverseEventCatalog() *AdverseEventCatalog {
	c, err := buildAdverseEventCatalog(knownEventRows)
	if err != nil {
		panic(err)
	}
	return c
}

// NewAdverseEventCatalogFrom builds a catalog from already-typed entries
func NewAdverseEventCatalogFrom(entries map[string][]domain.KnownAdverseEvent) (*AdverseEventCatalog, error) {
	c := &AdverseEventCatalog{events: make(map[string][]domain.KnownAdverseEvent, len(entries))}
	for drug, list := range entries {
		for _, e := range list {
			if _, err := domain.ParseAESeverity(int(e.Severity)); err != nil {
				return nil, err
			}
			if e.Incidence < 0 || e.Incidence > 1 {
				return nil, domain.NewSchemaError("incidence", "must be within [0, 1]")
			}
		}
		c.events[domain.NormalizeDrugName(drug)] = slices.Clone(list)
	}
	return c, nil
}

func buildAdverseEventCatalog(rows map[string][]knownEventRow) (*AdverseEventCatalog, error) {
	typed := make(map[string][]domain.KnownAdverseEvent, len(rows))
	for drug, list := range rows {
		for _, r := range list {
			category, err := domain.ParseAECategory(r.category)
			if err != nil {
				return nil, err
			}
			severity, err := domain.ParseAESeverity(r.severity)
			if err != nil {
				return nil, err
			}
			typed[drug] = append(typed[drug], domain.KnownAdverseEvent{
				Name:      r.name,
				Category:  category,
				Incidence: r.incidence,
				Severity:  severity,
			})
		}
	}
	return NewAdverseEventCatalogFrom(typed)
}

// KnownEvents returns the known events for a drug (case-insensitive); nil when none are known
func (c *AdverseEventCatalog) KnownEvents(drugName string) []domain.KnownAdverseEvent {
	return slices.Clone(c.events[domain.NormalizeDrugName(drugName)])
}
