// Package refresh orchestrates one full data-refresh cycle (load, resolve,
// aggregate, join, derive) and owns the atomically published snapshot the
// query facade reads from.
package refresh

import (
	"errors"
	"log/slog"
	"time"

	"github.com/grantline/grantline/internal/crosswalk"
	"github.com/grantline/grantline/internal/engine"
	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/source"
	"github.com/grantline/grantline/internal/tabular"
)

// Sources names the four input tables within the storage collaborator.
type Sources struct {
	Grants        string
	Cancellations string
	Population    string
	Crosswalk     string
}

// Pipeline runs refresh cycles against one storage collaborator. It holds
// no result state itself; every Run builds a fresh snapshot and the caller
// decides when to publish it.
type Pipeline struct {
	opener  source.Opener
	sources Sources
	tokens  TokenGenerator
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTokenGenerator overrides the snapshot token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(p *Pipeline) { p.tokens = g }
}

// WithNow overrides the build-timestamp clock.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline reading the named sources from opener.
func NewPipeline(opener source.Opener, sources Sources, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:  opener,
		sources: sources,
		tokens:  UUIDv7Generator{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one complete refresh cycle and returns the finished
// snapshot. On a fatal error (*RefreshError) no snapshot is returned: the
// caller keeps whatever was previously published.
//
// The pipeline is a bounded synchronous batch: all inputs are materialized
// before aggregation begins, and nothing here blocks on external events.
func (p *Pipeline) Run() (*Snapshot, error) {
	started := p.now()
	slog.Info("refresh starting",
		"grants", p.sources.Grants,
		"cancellations", p.sources.Cancellations,
		"population", p.sources.Population,
		"crosswalk", p.sources.Crosswalk,
	)

	var quality QualityReport

	// Crosswalk first: every state-keyed stage depends on the resolver.
	crosswalkTable, err := source.Read(p.opener, p.sources.Crosswalk)
	if err != nil {
		return nil, classify("crosswalk", err)
	}
	resolver, err := source.LoadCrosswalk(crosswalkTable)
	if err != nil {
		return nil, classify("crosswalk", err)
	}
	slog.Debug("crosswalk loaded", "keys", resolver.Len())

	grants, grantStats, err := p.loadGrantSource("grants", p.sources.Grants, source.LoadGrants)
	if err != nil {
		return nil, err
	}
	cancellations, cancelStats, err := p.loadGrantSource("cancellations", p.sources.Cancellations, source.LoadCancellations)
	if err != nil {
		return nil, err
	}
	quality.GrantsLoaded = grantStats.Loaded
	quality.CancellationsLoaded = cancelStats.Loaded
	quality.CoercedYears = grantStats.CoercedYears + cancelStats.CoercedYears
	quality.DroppedAmountRows = grantStats.DroppedAmount + cancelStats.DroppedAmount

	populationTable, err := source.Read(p.opener, p.sources.Population)
	if err != nil {
		return nil, classify("population", err)
	}
	population, popStats, err := source.LoadPopulation(populationTable, resolver)
	if err != nil {
		return nil, classify("population", err)
	}
	quality.PopulationLoaded = popStats.Loaded
	quality.DroppedPopulationRows = popStats.DroppedNumeric + popStats.DroppedUnmatched

	// State keys must be canonical before state-keyed grouping. Records whose
	// state has no crosswalk match stay in directorate-keyed aggregates but
	// are excluded from state-keyed ones, with the exclusions counted.
	grantsByStateInput, unresolvedGrants := resolveStates(grants, resolver)
	cancelByStateInput, unresolvedCancel := resolveStates(cancellations, resolver)
	quality.UnresolvedStates = unresolvedGrants + unresolvedCancel

	snap := &Snapshot{
		Token:   p.tokens.Generate(),
		BuiltAt: started,

		GrantsByState:              engine.Aggregate(grantsByStateInput, model.ByState),
		GrantsByDirectorate:        engine.Aggregate(grants, model.ByDirectorate),
		CancellationsByState:       engine.Aggregate(cancelByStateInput, model.ByState),
		CancellationsByDirectorate: engine.Aggregate(cancellations, model.ByDirectorate),
		CancellationImpact:         engine.CancellationImpact(grants, cancellations),
	}

	perCapita, joinStats := engine.JoinPopulation(snap.GrantsByState, population)
	quality.SkippedPerCapita = joinStats.SkippedNoPopulation + joinStats.SkippedZeroPopulation
	snap.PerCapita = perCapita
	snap.NationalAverages = engine.NationalAverage(perCapita)
	snap.Quality = quality

	slog.Info("refresh finished",
		"token", snap.Token,
		"elapsed", p.now().Sub(started),
		"grants", quality.GrantsLoaded,
		"cancellations", quality.CancellationsLoaded,
		"population", quality.PopulationLoaded,
		"clean", quality.Clean(),
	)
	return snap, nil
}

func (p *Pipeline) loadGrantSource(logical, name string, load func(*tabular.Table) ([]model.GrantRecord, source.GrantStats, error)) ([]model.GrantRecord, source.GrantStats, error) {
	t, err := source.Read(p.opener, name)
	if err != nil {
		return nil, source.GrantStats{}, classify(logical, err)
	}
	records, stats, err := load(t)
	if err != nil {
		return nil, source.GrantStats{}, classify(logical, err)
	}
	return records, stats, nil
}

// resolveStates rewrites record state fields to canonical codes, dropping
// records with no crosswalk match. Normalization is idempotent, so sources
// that already carry 2-letter codes pass through unchanged.
func resolveStates(records []model.GrantRecord, r *crosswalk.Resolver) ([]model.GrantRecord, int) {
	resolved := make([]model.GrantRecord, 0, len(records))
	unresolved := 0
	for _, rec := range records {
		code, ok := r.Normalize(rec.State)
		if !ok {
			unresolved++
			continue
		}
		rec.State = code
		resolved = append(resolved, rec)
	}
	return resolved, unresolved
}

// classify wraps a load failure into the fatal refresh taxonomy: schema
// errors stay schema errors, everything else is an unavailable source.
func classify(logical string, err error) *RefreshError {
	var se *tabular.SchemaError
	if errors.As(err, &se) {
		return &RefreshError{Code: ErrCodeSchema, Source: logical, Err: err}
	}
	return &RefreshError{Code: ErrCodeSourceUnavailable, Source: logical, Err: err}
}
