package engine

import (
	"github.com/grantline/grantline/internal/model"
)

// CancellationImpact compares cancellation volume against baseline grant
// volume per directorate. The comparison is a full outer merge: a
// directorate appears if it has baseline grants, cancellations, or both,
// with the missing side zero-filled.
//
// Rate is CancelCount / BaseCount with a zero base substituted by 1. That
// substitution makes the rate for cancellation-only directorates equal the
// raw cancellation count; it is kept for compatibility with the system this
// replaces rather than as a statistical claim.
func CancellationImpact(base, cancellations []model.GrantRecord) []model.CancellationImpactRow {
	baseCounts := make(map[string]int)
	for _, rec := range base {
		if rec.Directorate == "" {
			continue
		}
		baseCounts[rec.Directorate]++
	}

	cancelled := make(map[string]*accumulator)
	for _, rec := range cancellations {
		if rec.Directorate == "" {
			continue
		}
		acc := cancelled[rec.Directorate]
		if acc == nil {
			acc = &accumulator{}
			cancelled[rec.Directorate] = acc
		}
		acc.count++
		acc.total += rec.AwardAmount
	}

	seen := make(map[string]bool, len(baseCounts)+len(cancelled))
	rows := make([]model.CancellationImpactRow, 0, len(baseCounts)+len(cancelled))
	emit := func(directorate string) {
		if seen[directorate] {
			return
		}
		seen[directorate] = true

		row := model.CancellationImpactRow{
			Directorate: directorate,
			BaseCount:   baseCounts[directorate],
		}
		if acc := cancelled[directorate]; acc != nil {
			row.CancelCount = acc.count
			row.LostAmount = acc.total
		}
		denom := row.BaseCount
		if denom == 0 {
			denom = 1
		}
		row.Rate = float64(row.CancelCount) / float64(denom)
		rows = append(rows, row)
	}

	for directorate := range baseCounts {
		emit(directorate)
	}
	for directorate := range cancelled {
		emit(directorate)
	}
	return rows
}
