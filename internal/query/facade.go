// Package query is the read-only surface the presentation layer consumes.
// Every call serves filtered copies of the currently published snapshot.
// Nothing here ever triggers recomputation, and callers may mutate what they
// receive without affecting other readers.
package query

import (
	"errors"
	"sort"

	"github.com/grantline/grantline/internal/engine"
	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/refresh"
)

// ErrNoData is returned before the first successful refresh. Consumers
// should render an explicit error state, not treat it as empty data.
var ErrNoData = errors.New("no published snapshot")

// Dataset selects which source's aggregates a query reads.
type Dataset string

const (
	DatasetGrants        Dataset = "grants"
	DatasetCancellations Dataset = "cancellations"
)

// Filter narrows a query. Zero value means "all". Year 0 is a real filter
// value (the all-years rollup), so year filtering is carried on a pointer.
type Filter struct {
	year   *int
	entity string
}

// FilterOption configures a query filter.
type FilterOption func(*Filter)

// WithYear restricts rows to one year. model.YearAll selects the rollup.
func WithYear(year int) FilterOption {
	return func(f *Filter) { f.year = &year }
}

// WithEntity restricts rows to one entity key (state code or directorate).
func WithEntity(entity string) FilterOption {
	return func(f *Filter) { f.entity = entity }
}

func (f Filter) matchYear(year int) bool   { return f.year == nil || *f.year == year }
func (f Filter) matchEntity(key string) bool { return f.entity == "" || f.entity == key }

// Facade answers queries from the publisher's current snapshot.
type Facade struct {
	pub *refresh.Publisher
}

// New creates a Facade reading from pub.
func New(pub *refresh.Publisher) *Facade {
	return &Facade{pub: pub}
}

func (f *Facade) snapshot() (*refresh.Snapshot, error) {
	snap := f.pub.Current()
	if snap == nil {
		return nil, ErrNoData
	}
	return snap, nil
}

// Aggregates returns aggregate rows for one dataset and grouping, filtered
// by the optional year and entity. Rows are sorted by entity then year for
// stable presentation; the aggregation engine itself promises no order.
func (f *Facade) Aggregates(dataset Dataset, kind model.EntityKind, opts ...FilterOption) ([]model.AggregateRow, error) {
	snap, err := f.snapshot()
	if err != nil {
		return nil, err
	}

	var rows []model.AggregateRow
	switch {
	case dataset == DatasetGrants && kind == model.EntityState:
		rows = snap.GrantsByState
	case dataset == DatasetGrants && kind == model.EntityDirectorate:
		rows = snap.GrantsByDirectorate
	case dataset == DatasetCancellations && kind == model.EntityState:
		rows = snap.CancellationsByState
	case dataset == DatasetCancellations && kind == model.EntityDirectorate:
		rows = snap.CancellationsByDirectorate
	default:
		return nil, errors.New("unknown dataset or entity kind")
	}

	filter := buildFilter(opts)
	out := make([]model.AggregateRow, 0, len(rows))
	for _, r := range rows {
		if filter.matchYear(r.Year) && filter.matchEntity(r.EntityKey) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityKey != out[j].EntityKey {
			return out[i].EntityKey < out[j].EntityKey
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

// Years lists the distinct real years present in one aggregate table,
// ascending. The rollup year is omitted: it is always available.
func (f *Facade) Years(dataset Dataset, kind model.EntityKind) ([]int, error) {
	rows, err := f.Aggregates(dataset, kind)
	if err != nil {
		return nil, err
	}
	years := engine.Years(rows)
	sort.Ints(years)
	return years, nil
}

// PerCapita returns per-capita rows filtered by the optional year and state.
func (f *Facade) PerCapita(opts ...FilterOption) ([]model.PerCapitaRow, error) {
	snap, err := f.snapshot()
	if err != nil {
		return nil, err
	}

	filter := buildFilter(opts)
	out := make([]model.PerCapitaRow, 0, len(snap.PerCapita))
	for _, r := range snap.PerCapita {
		if filter.matchYear(r.Year) && filter.matchEntity(r.State) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

// NationalAverages returns the per-year national averages, optionally
// restricted to one year.
func (f *Facade) NationalAverages(opts ...FilterOption) ([]model.NationalAverageRow, error) {
	snap, err := f.snapshot()
	if err != nil {
		return nil, err
	}

	filter := buildFilter(opts)
	out := make([]model.NationalAverageRow, 0, len(snap.NationalAverages))
	for _, r := range snap.NationalAverages {
		if filter.matchYear(r.Year) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

// CancellationImpact returns the per-directorate cancellation comparison,
// optionally restricted to one directorate.
func (f *Facade) CancellationImpact(opts ...FilterOption) ([]model.CancellationImpactRow, error) {
	snap, err := f.snapshot()
	if err != nil {
		return nil, err
	}

	filter := buildFilter(opts)
	out := make([]model.CancellationImpactRow, 0, len(snap.CancellationImpact))
	for _, r := range snap.CancellationImpact {
		if filter.matchEntity(r.Directorate) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Directorate < out[j].Directorate })
	return out, nil
}

// Quality returns the published snapshot's quality report.
func (f *Facade) Quality() (refresh.QualityReport, error) {
	snap, err := f.snapshot()
	if err != nil {
		return refresh.QualityReport{}, err
	}
	return snap.Quality, nil
}

func buildFilter(opts []FilterOption) Filter {
	var f Filter
	for _, opt := range opts {
		opt(&f)
	}
	return f
}
