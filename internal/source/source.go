// Package source loads the four logical input tables (grants,
// cancellations, population, and the state crosswalk) from a storage
// collaborator and produces validated record slices.
//
// Loading is tolerant where the domain demands it (non-numeric years land in
// the 0 bucket, unmatched population states are dropped) and every such
// accommodation is counted so the refresh quality report can surface it.
package source

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grantline/grantline/internal/crosswalk"
	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/tabular"
)

// Opener is the storage collaborator. File storage mechanics (layout,
// caching, remoting) live behind it; the loader only reads.
type Opener interface {
	Open(name string) (io.ReadCloser, error)
}

// Dir is the plain-filesystem Opener: names resolve relative to a root
// directory.
type Dir string

func (d Dir) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), name))
}

// Read opens and parses one CSV table. An unreadable file comes back as a
// wrapped error for the pipeline to classify as a fatal source failure.
func Read(o Opener, name string) (*tabular.Table, error) {
	rc, err := o.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	t, err := tabular.ReadCSV(name, rc)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// grantColumns is the fixed column contract shared by the grants and
// cancellations tables.
type grantColumns struct {
	awardID, state, directorate, year, amount int
}

func resolveGrantColumns(t *tabular.Table) (grantColumns, error) {
	var cols grantColumns
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{"award_id", &cols.awardID},
		{"state", &cols.state},
		{"directorate", &cols.directorate},
		{"year", &cols.year},
		{"award_amount", &cols.amount},
	} {
		idx, ok := t.Column(c.name)
		if !ok {
			return grantColumns{}, &tabular.SchemaError{Table: t.Name, Missing: c.name}
		}
		*c.dst = idx
	}
	return cols, nil
}

// GrantStats counts the loader's non-fatal accommodations for one grant or
// cancellation table.
type GrantStats struct {
	Loaded        int
	CoercedYears  int // non-numeric year, coerced to the 0 bucket
	DroppedAmount int // non-numeric or empty award_amount, row dropped
}

// LoadGrants reads a grants-shaped table into GrantRecords. Rows whose year
// is non-numeric are kept with Year = model.YearAll, an explicit "unknown
// year" bucket rather than silent loss, and counted. Rows without a usable amount
// cannot contribute to any sum and are dropped, also counted.
func LoadGrants(t *tabular.Table) ([]model.GrantRecord, GrantStats, error) {
	cols, err := resolveGrantColumns(t)
	if err != nil {
		return nil, GrantStats{}, err
	}

	var stats GrantStats
	records := make([]model.GrantRecord, 0, len(t.Rows))
	for i := range t.Rows {
		amount, ok := parseAmount(t.Cell(i, cols.amount))
		if !ok || amount < 0 {
			stats.DroppedAmount++
			continue
		}

		year, ok := parseYear(t.Cell(i, cols.year))
		if !ok {
			year = model.YearAll
			stats.CoercedYears++
		}

		records = append(records, model.GrantRecord{
			AwardID:     t.Cell(i, cols.awardID),
			State:       t.Cell(i, cols.state),
			Directorate: t.Cell(i, cols.directorate),
			Year:        year,
			AwardAmount: amount,
		})
	}
	stats.Loaded = len(records)

	if stats.CoercedYears > 0 || stats.DroppedAmount > 0 {
		slog.Warn("grant table loaded with accommodations",
			"table", t.Name,
			"loaded", stats.Loaded,
			"coerced_years", stats.CoercedYears,
			"dropped_amount", stats.DroppedAmount,
		)
	}
	return records, stats, nil
}

// PopulationStats counts rows the population reshape discarded.
type PopulationStats struct {
	Loaded          int
	DroppedNumeric  int // non-numeric population cell
	DroppedUnmatched int // state name with no crosswalk match
	DroppedYear     int // pop_ column outside the valid year domain
}

// LoadPopulation reshapes the wide population table, one `state` column
// plus one `pop_YYYY` column per year, into long (state, year, population)
// rows. State names are resolved to canonical codes via the crosswalk;
// unmatched names are dropped and counted. Years outside the valid domain
// are dropped entirely: they must not participate in per-capita math.
func LoadPopulation(t *tabular.Table, r *crosswalk.Resolver) ([]model.PopulationRecord, PopulationStats, error) {
	stateIdx, ok := t.Column("state")
	if !ok {
		return nil, PopulationStats{}, &tabular.SchemaError{Table: t.Name, Missing: "state"}
	}

	type popCol struct {
		idx  int
		year int
	}
	var popCols []popCol
	for i, h := range t.Headers {
		rest, found := strings.CutPrefix(strings.ToLower(h), "pop_")
		if !found {
			continue
		}
		year, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		popCols = append(popCols, popCol{idx: i, year: year})
	}
	if len(popCols) == 0 {
		return nil, PopulationStats{}, &tabular.SchemaError{Table: t.Name, Missing: `pattern "pop_YYYY"`}
	}

	var stats PopulationStats
	var records []model.PopulationRecord
	for i := range t.Rows {
		name := t.Cell(i, stateIdx)
		code, matched := r.Normalize(name)

		for _, pc := range popCols {
			if pc.year < model.PopulationYearMin || pc.year > model.PopulationYearMax {
				stats.DroppedYear++
				continue
			}
			pop, ok := parseAmount(t.Cell(i, pc.idx))
			if !ok {
				stats.DroppedNumeric++
				continue
			}
			if !matched {
				stats.DroppedUnmatched++
				continue
			}
			records = append(records, model.PopulationRecord{
				State:      code,
				Year:       pc.year,
				Population: pop,
			})
		}
	}
	stats.Loaded = len(records)

	if stats.DroppedNumeric > 0 || stats.DroppedUnmatched > 0 {
		slog.Warn("population table loaded with drops",
			"table", t.Name,
			"loaded", stats.Loaded,
			"dropped_non_numeric", stats.DroppedNumeric,
			"dropped_unmatched_state", stats.DroppedUnmatched,
		)
	}
	return records, stats, nil
}

// LoadCancellations reads the cancellations table. Cancellation sources
// carry the same column contract as grants (a disjoint, time-shifted
// dataset of the same shape), so loading is identical.
func LoadCancellations(t *tabular.Table) ([]model.GrantRecord, GrantStats, error) {
	return LoadGrants(t)
}

// LoadCrosswalk builds the state-name resolver from the crosswalk table.
func LoadCrosswalk(t *tabular.Table) (*crosswalk.Resolver, error) {
	return crosswalk.New(t)
}

// parseYear accepts integer years, tolerating a float rendering ("2021.0")
// the way the upstream exports sometimes produce them.
func parseYear(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

// parseAmount parses a currency or count cell, tolerating thousands commas
// and a leading dollar sign.
func parseAmount(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
