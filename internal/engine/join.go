package engine

import (
	"log/slog"

	"github.com/grantline/grantline/internal/model"
)

// JoinStats counts per-capita rows that were skipped rather than computed.
// A skipped division is a data-quality signal, never an interruption.
type JoinStats struct {
	SkippedNoPopulation   int // (state, year) absent from the population table
	SkippedZeroPopulation int // population present but not > 0
}

// JoinPopulation inner-joins state-keyed aggregates with population rows on
// (state, year) and derives funding per capita.
//
// For model.YearAll aggregate rows the joined population is the arithmetic
// mean of that state's per-year populations: an all-years per-capita value
// must stay a per-person-per-period rate, not a multi-year total divided by
// one year's headcount.
//
// The join drops aggregate rows without a positive population instead of
// fabricating a ratio, so every output row satisfies Population > 0 and the
// output (state, year) pairs are a subset of the input's.
func JoinPopulation(aggregates []model.AggregateRow, populations []model.PopulationRecord) ([]model.PerCapitaRow, JoinStats) {
	byStateYear := make(map[groupKey]float64, len(populations))
	sums := make(map[string]*accumulator)
	for _, p := range populations {
		byStateYear[groupKey{entity: p.State, year: p.Year}] = p.Population
		acc := sums[p.State]
		if acc == nil {
			acc = &accumulator{}
			sums[p.State] = acc
		}
		acc.count++
		acc.total += p.Population
	}

	meanByState := make(map[string]float64, len(sums))
	for state, acc := range sums {
		meanByState[state] = acc.total / float64(acc.count)
	}

	var stats JoinStats
	rows := make([]model.PerCapitaRow, 0, len(aggregates))
	for _, agg := range aggregates {
		var pop float64
		var ok bool
		if agg.Year == model.YearAll {
			pop, ok = meanByState[agg.EntityKey]
		} else {
			pop, ok = byStateYear[groupKey{entity: agg.EntityKey, year: agg.Year}]
		}
		if !ok {
			stats.SkippedNoPopulation++
			continue
		}
		if pop <= 0 {
			stats.SkippedZeroPopulation++
			continue
		}

		rows = append(rows, model.PerCapitaRow{
			State:            agg.EntityKey,
			Year:             agg.Year,
			Population:       pop,
			TotalAmount:      agg.TotalAmount,
			FundingPerCapita: agg.TotalAmount / pop,
		})
	}

	if stats.SkippedNoPopulation > 0 || stats.SkippedZeroPopulation > 0 {
		slog.Warn("per-capita join skipped rows",
			"no_population", stats.SkippedNoPopulation,
			"zero_population", stats.SkippedZeroPopulation,
		)
	}
	return rows, stats
}

// NationalAverage groups per-capita rows by year (or model.YearAll) and
// takes the unweighted arithmetic mean of FundingPerCapita across the
// states present in each group. It is deliberately a mean of ratios (every
// state counts equally regardless of population), matching the behavior
// this engine replaces.
func NationalAverage(perCapita []model.PerCapitaRow) []model.NationalAverageRow {
	byYear := make(map[int]*accumulator)
	for _, pc := range perCapita {
		acc := byYear[pc.Year]
		if acc == nil {
			acc = &accumulator{}
			byYear[pc.Year] = acc
		}
		acc.count++
		acc.total += pc.FundingPerCapita
	}

	rows := make([]model.NationalAverageRow, 0, len(byYear))
	for year, acc := range byYear {
		rows = append(rows, model.NationalAverageRow{
			Year:             year,
			AveragePerCapita: acc.total / float64(acc.count),
			StateCount:       acc.count,
		})
	}
	return rows
}
