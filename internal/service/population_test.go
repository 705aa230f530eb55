package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkddi-mcp-server/internal/domain"
)

func TestSummarize(t *testing.T) {
	t.Run("Empty_Population", func(t *testing.T) {
		summary := Summarize(nil)
		assert.Equal(t, 0, summary.TotalPatients)
		assert.Equal(t, 0.0, summary.AgeStats.Mean)
		assert.Empty(t, summary.GenderDistribution)
	})

	t.Run("Mixed_Population", func(t *testing.T) {
		patients := []domain.PatientProfile{
			{PatientID: "P1", Age: 30, Gender: domain.GenderFemale, Genomics: domain.GenomicProfile{CYP2D6Status: domain.CYP2D6Poor}},
			{PatientID: "P2", Age: 70, Gender: domain.GenderMale},
			{PatientID: "P3", Age: 50},
		}

		summary := Summarize(patients)
		assert.Equal(t, 3, summary.TotalPatients)
		assert.Equal(t, 30, summary.AgeStats.Min)
		assert.Equal(t, 70, summary.AgeStats.Max)
		assert.InDelta(t, 50.0, summary.AgeStats.Mean, 1e-9)
		assert.Equal(t, 1, summary.GenderDistribution[domain.GenderOther])
		assert.Equal(t, 2, summary.CYP2D6Distribution[domain.CYP2D6Normal])
		assert.Equal(t, 1, summary.CYP2D6Distribution[domain.CYP2D6Poor])
	})

	t.Run("Distributions", func(t *testing.T) {
		a := testPatient("PT-1")
		a.Age = 30
		b := elderlyPoorObesePatient("PT-2")
		b.Gender = domain.GenderMale
		c := testPatient("PT-3")
		c.Age = 62
		c.Genomics.CYP2D6Status = ""

		s := Summarize([]domain.PatientProfile{*a, *b, *c})
		assert.Equal(t, 3, s.TotalPatients)
		assert.InDelta(t, (30+70+62)/3.0, s.AgeStats.Mean, 1e-12)
		assert.Equal(t, 30, s.AgeStats.Min)
		assert.Equal(t, 70, s.AgeStats.Max)
		assert.Equal(t, map[domain.Gender]int{domain.GenderFemale: 2, domain.GenderMale: 1}, s.GenderDistribution)
		assert.Equal(t, map[domain.CYP2D6Status]int{domain.CYP2D6Normal: 2, domain.CYP2D6Poor: 1}, s.CYP2D6Distribution)
	})
}
