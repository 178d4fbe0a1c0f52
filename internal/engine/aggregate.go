// Package engine computes the grouped aggregates and derived ratio tables
// for one refresh cycle. All functions are pure batch transforms: slices in,
// slices out, no I/O and no retained state.
package engine

import (
	"github.com/grantline/grantline/internal/model"
)

type groupKey struct {
	entity string
	year   int
}

type accumulator struct {
	count int
	total float64
}

// Aggregate groups records by (entity, year), summing award amounts and
// counting records, and additionally emits one model.YearAll rollup row per
// entity covering every record for that entity.
//
// The rollup is produced by its own summation over the same records, never
// by re-adding the yearly rows, so for entities whose records all carry real
// years the rollup equals the sum of its parts exactly. Records already in
// the 0 bucket (unknown year) contribute to the rollup only: they have no
// real year to appear under.
//
// Entities with zero records never appear, and records with an empty entity
// key are not an entity. Consumers must treat "row absent" as "no data",
// not zero. Output order is unspecified; the query facade orders for
// presentation.
func Aggregate(records []model.GrantRecord, selector model.Selector) []model.AggregateRow {
	yearly := make(map[groupKey]*accumulator)
	rollup := make(map[string]*accumulator)

	for _, rec := range records {
		entity := selector(rec)
		if entity == "" {
			continue
		}

		if rec.Year != model.YearAll {
			k := groupKey{entity: entity, year: rec.Year}
			acc := yearly[k]
			if acc == nil {
				acc = &accumulator{}
				yearly[k] = acc
			}
			acc.count++
			acc.total += rec.AwardAmount
		}

		acc := rollup[entity]
		if acc == nil {
			acc = &accumulator{}
			rollup[entity] = acc
		}
		acc.count++
		acc.total += rec.AwardAmount
	}

	rows := make([]model.AggregateRow, 0, len(yearly)+len(rollup))
	for k, acc := range yearly {
		rows = append(rows, model.AggregateRow{
			EntityKey:   k.entity,
			Year:        k.year,
			Count:       acc.count,
			TotalAmount: acc.total,
		})
	}
	for entity, acc := range rollup {
		rows = append(rows, model.AggregateRow{
			EntityKey:   entity,
			Year:        model.YearAll,
			Count:       acc.count,
			TotalAmount: acc.total,
		})
	}
	return rows
}

// Years returns the distinct real years present in an aggregate table,
// unordered. Used by the facade to enumerate filter options.
func Years(rows []model.AggregateRow) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range rows {
		if r.Year == model.YearAll || seen[r.Year] {
			continue
		}
		seen[r.Year] = true
		years = append(years, r.Year)
	}
	return years
}
