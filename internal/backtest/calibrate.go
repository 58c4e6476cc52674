package backtest

import (
	"sort"

	"github.com/alanyoungcy/weatherbot/internal/domain"
	"github.com/alanyoungcy/weatherbot/internal/strategy"
)

// Calibrate derives a confidence table from replayed results: each cell is
// the consensus hit rate at that lead and agreement. Agreement at or above
// maxAgreement shares the last column. Cells with fewer than minSamples
// snapshots stay at zero so the live classifier never trades them.
func Calibrate(version string, byCity map[string][]domain.BacktestResult, maxLead, maxAgreement, minSamples int) strategy.ConfidenceTable {
	table := strategy.ConfidenceTable{
		Version:      version,
		MaxLead:      maxLead,
		MaxAgreement: maxAgreement,
		Cities:       make(map[string][][]float64, len(byCity)),
	}

	cities := make([]string, 0, len(byCity))
	for c := range byCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	for _, city := range cities {
		counts := make([][]domain.RateCount, maxLead+1)
		for i := range counts {
			counts[i] = make([]domain.RateCount, maxAgreement)
		}
		for _, r := range byCity[city] {
			if r.LeadDays < 0 || r.LeadDays > maxLead || r.ConsensusCount < 1 {
				continue
			}
			a := min(r.ConsensusCount, maxAgreement)
			tally(&counts[r.LeadDays][a-1], r.ConsensusCorrect)
		}

		rows := make([][]float64, maxLead+1)
		for lead, cells := range counts {
			rows[lead] = make([]float64, maxAgreement)
			for i, rc := range cells {
				if rc.Total >= minSamples && rc.Total > 0 {
					rows[lead][i] = strategy.Round2(rc.Rate())
				}
			}
		}
		table.Cities[city] = rows
	}
	return table
}
