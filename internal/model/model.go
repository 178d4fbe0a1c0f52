// Package model defines the row types shared by the loading, aggregation,
// and query layers.
//
// All types are plain value structs. A refresh cycle builds complete slices
// of them, the snapshot freezes those slices, and readers only ever receive
// copies. There is no mutation after publication.
package model

// YearAll is the sentinel year meaning "aggregated across all real years".
// It is reserved: no calendar year in any source maps to 0, and loaders also
// coerce rows with a non-numeric year into this bucket (a deliberate
// compatibility choice, counted in the quality report).
const YearAll = 0

// Population year domain. Rows outside this range never participate in
// per-capita computation.
const (
	PopulationYearMin = 2020
	PopulationYearMax = 2024
)

// GrantRecord is one funded award. Cancellation sources produce the same
// shape from a disjoint, time-shifted dataset; the source kind is carried by
// the table that holds the records, not by the record itself.
type GrantRecord struct {
	AwardID     string
	State       string // canonical 2-letter code, or raw name before resolution
	Directorate string
	Year        int // calendar year, or YearAll when the source value was not numeric
	AwardAmount float64
}

// PopulationRecord is one (state, year, population) row produced by
// reshaping the wide population table.
type PopulationRecord struct {
	State      string // canonical 2-letter code
	Year       int
	Population float64
}

// AggregateRow is the unit produced by the aggregation engine.
//
// EntityKey is a state code or a directorate name depending on the grouping.
// Year is a calendar year or YearAll. For any entity, the YearAll row's
// Count and TotalAmount equal the sums over that entity's real-year rows:
// both come from the same summation pass, never a re-derivation.
type AggregateRow struct {
	EntityKey   string
	Year        int
	Count       int
	TotalAmount float64
}

// PerCapitaRow exists only where a positive population joined. States with
// no resolvable population are excluded rather than zero-filled, so no
// fabricated ratio ever appears.
type PerCapitaRow struct {
	State            string
	Year             int // calendar year or YearAll
	Population       float64
	TotalAmount      float64
	FundingPerCapita float64
}

// NationalAverageRow is the unweighted arithmetic mean of FundingPerCapita
// across the states present for a year. It is a mean of ratios, not a ratio
// of sums.
type NationalAverageRow struct {
	Year             int // calendar year or YearAll
	AveragePerCapita float64
	StateCount       int
}

// CancellationImpactRow compares a directorate's cancellation load against
// its baseline grant volume.
//
// Rate divides CancelCount by BaseCount, substituting 1 for a zero base,
// matching the observed behavior of the system this replaces.
type CancellationImpactRow struct {
	Directorate string
	BaseCount   int
	CancelCount int
	LostAmount  float64
	Rate        float64
}

// EntityKind selects which grouping a facade query targets.
type EntityKind string

const (
	EntityState       EntityKind = "state"
	EntityDirectorate EntityKind = "directorate"
)

// Selector extracts the grouping entity from a record. The aggregation
// engine is parameterized by it instead of duplicating per-entity code.
type Selector func(GrantRecord) string

// ByState groups records by their canonical state code.
func ByState(r GrantRecord) string { return r.State }

// ByDirectorate groups records by directorate name.
func ByDirectorate(r GrantRecord) string { return r.Directorate }
