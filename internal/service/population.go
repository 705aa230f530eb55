package service

import (
	"github.com/pkddi-mcp-server/internal/domain"
)

// Summarize returns demographic and pharmacogenomic statistics of a population
func Summarize(patients []domain.PatientProfile) domain.PopulationSummary {
	summary := domain.PopulationSummary{
		TotalPatients:      len(patients),
		GenderDistribution: make(map[domain.Gender]int),
		CYP2D6Distribution: make(map[domain.CYP2D6Status]int),
	}
	if len(patients) == 0 {
		return summary
	}

	total := 0
	summary.AgeStats.Min = patients[0].Age
	summary.AgeStats.Max = patients[0].Age
	for _, p := range patients {
		total += p.Age
		summary.AgeStats.Min = min(summary.AgeStats.Min, p.Age)
		summary.AgeStats.Max = max(summary.AgeStats.Max, p.Age)

		gender := p.Gender
		if gender == "" {
			gender = domain.GenderOther
		}
		summary.GenderDistribution[gender]++

		status := p.Genomics.CYP2D6Status
		if status == "" {
			status = domain.CYP2D6Normal
		}
		summary.CYP2D6Distribution[status]++
	}
	summary.AgeStats.Mean = float64(total) / float64(len(patients))

	return summary
}
