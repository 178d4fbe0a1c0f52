package refresh

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/grantline/grantline/internal/model"
)

// TokenGenerator produces the token identifying one refresh cycle.
// Implemented by UUIDv7Generator (production) and fixed funcs in tests.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues time-sortable UUIDv7 snapshot tokens, so archived
// snapshots order by creation time.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// QualityReport aggregates every non-fatal accommodation made during one
// refresh cycle. Nothing here interrupts the pipeline, but nothing is
// discarded without trace either.
type QualityReport struct {
	GrantsLoaded        int `json:"grants_loaded"`
	CancellationsLoaded int `json:"cancellations_loaded"`
	PopulationLoaded    int `json:"population_loaded"`

	CoercedYears          int `json:"coerced_years"`           // non-numeric year → 0 bucket
	DroppedAmountRows     int `json:"dropped_amount_rows"`     // unusable award_amount
	UnresolvedStates      int `json:"unresolved_states"`       // excluded from state-keyed aggregates
	DroppedPopulationRows int `json:"dropped_population_rows"` // non-numeric or unmatched population
	SkippedPerCapita      int `json:"skipped_per_capita"`      // zero or missing denominator
}

// Clean reports whether the cycle made no accommodations at all.
func (q QualityReport) Clean() bool {
	return q.CoercedYears == 0 &&
		q.DroppedAmountRows == 0 &&
		q.UnresolvedStates == 0 &&
		q.DroppedPopulationRows == 0 &&
		q.SkippedPerCapita == 0
}

// Snapshot is the complete, immutable result set of one refresh cycle.
// Nothing mutates a snapshot after Pipeline.Run returns it; consumers share
// it freely for concurrent reads until the next publish.
type Snapshot struct {
	Token   string
	BuiltAt time.Time
	Quality QualityReport

	// Grant aggregates at both granularities.
	GrantsByState       []model.AggregateRow
	GrantsByDirectorate []model.AggregateRow

	// Cancellation aggregates, same shapes, disjoint time-shifted source.
	CancellationsByState       []model.AggregateRow
	CancellationsByDirectorate []model.AggregateRow

	// Derived tables.
	PerCapita          []model.PerCapitaRow
	NationalAverages   []model.NationalAverageRow
	CancellationImpact []model.CancellationImpactRow
}

// Publisher holds the currently published snapshot. Publish swaps whole
// snapshots atomically: readers observe either the complete previous result
// set or the complete new one, never a mix. There is no writer after
// publication, so the read path takes no locks.
type Publisher struct {
	current atomic.Pointer[Snapshot]
}

// Publish makes snap the current snapshot.
func (p *Publisher) Publish(snap *Snapshot) {
	p.current.Store(snap)
}

// Current returns the published snapshot, or nil before the first
// successful refresh, the explicit "no data" state.
func (p *Publisher) Current() *Snapshot {
	return p.current.Load()
}
