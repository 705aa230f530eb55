// Package catalog holds the immutable drug reference table and the table of known
// per-drug adverse events. Both are built once at startup and shared read-only.
package catalog

import (
	"slices"
	"sort"

	"github.com/pkddi-mcp-server/internal/domain"
)

// referenceDrugs is the static reference table, keyed by lowercase generic name
var referenceDrugs = []domain.DrugProperties{
	{
		Name:                 "Metformin",
		GenericName:          "metformin",
		DrugClass:            "Biguanide",
		HalfLifeHours:        6.2,
		Bioavailability:      0.55,
		VolumeOfDistribution: 654,
		ProteinBinding:       0.0,
		Metabolism:           []domain.MetabolismPathway{domain.PathwayRenal},
		TherapeuticRange:     domain.TherapeuticRange{Min: 1000, Max: 2000},
	},
	{
		Name:                 "Atorvastatin",
		GenericName:          "atorvastatin",
		DrugClass:            "Statin",
		HalfLifeHours:        14,
		Bioavailability:      0.14,
		VolumeOfDistribution: 381,
		ProteinBinding:       0.98,
		Metabolism:           []domain.MetabolismPathway{domain.PathwayCYP3A4},
		ActiveMetabolites:    []string{"ortho-hydroxyatorvastatin", "para-hydroxyatorvastatin"},
		TherapeuticRange:     domain.TherapeuticRange{Min: 5, Max: 80},
	},
	{
		Name:                 "Lisinopril",
		GenericName:          "lisinopril",
		DrugClass:            "ACE Inhibitor",
		HalfLifeHours:        12,
		Bioavailability:      0.25,
		VolumeOfDistribution: 124,
		ProteinBinding:       0.0,
		Metabolism:           []domain.MetabolismPathway{domain.PathwayRenal},
		TherapeuticRange:     domain.TherapeuticRange{Min: 10, Max: 40},
	},
	{
		Name:                 "Metoprolol",
		GenericName:          "metoprolol",
		DrugClass:            "Beta Blocker",
		HalfLifeHours:        3.5,
		Bioavailability:      0.5,
		VolumeOfDistribution: 290,
		ProteinBinding:       0.12,
		Metabolism:           []domain.MetabolismPathway{domain.PathwayCYP2D6},
		ActiveMetabolites:    []string{"alpha-hydroxymetoprolol"},
		TherapeuticRange:     domain.TherapeuticRange{Min: 20, Max: 340},
	},
}

// DrugCatalog is an immutable drug reference lookup
type DrugCatalog struct {
	drugs map[string]domain.DrugProperties
	names []string
}

// NewDrugCatalog builds a catalog from the built-in reference table
func NewDrugCatalog() *DrugCatalog {
	c, err := NewDrugCatalogFrom(referenceDrugs)
	if err != nil {
		// the built-in table is validated by tests
		panic(err)
	}
	return c
}

// NewDrugCatalogFrom builds a catalog from the given entries, validating each one
func NewDrugCatalogFrom(entries []domain.DrugProperties) (*DrugCatalog, error) {
	c := &DrugCatalog{drugs: make(map[string]domain.DrugProperties, len(entries))}
	for _, d := range entries {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		key := domain.NormalizeDrugName(d.GenericName)
		if key == "" {
			key = domain.NormalizeDrugName(d.Name)
		}
		d.GenericName = key
		c.drugs[key] = cloneDrug(d)
		c.names = append(c.names, key)
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup returns the properties for a drug name (case-insensitive)
func (c *DrugCatalog) Lookup(name string) (domain.DrugProperties, error) {
	d, ok := c.drugs[domain.NormalizeDrugName(name)]
	if !ok {
		return domain.DrugProperties{}, &domain.DrugNotFoundError{Name: name}
	}
	return cloneDrug(d), nil
}

// Names lists catalog keys in sorted order
func (c *DrugCatalog) Names() []string {
	return slices.Clone(c.names)
}

// cloneDrug copies the slice fields so callers cannot mutate the shared table
func cloneDrug(d domain.DrugProperties) domain.DrugProperties {
	d.Metabolism = slices.Clone(d.Metabolism)
	d.ActiveMetabolites = slices.Clone(d.ActiveMetabolites)
	return d
}
