package refresh

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/source"
	"github.com/grantline/grantline/internal/testutil"
)

var testSources = Sources{
	Grants:        "grants.csv",
	Cancellations: "cancellations.csv",
	Population:    "population.csv",
	Crosswalk:     "crosswalk.csv",
}

// writeDataset lays out a complete four-file dataset in a temp dir.
func writeDataset(t *testing.T, files map[string]string) source.Dir {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return source.Dir(dir)
}

func defaultDataset(t *testing.T) source.Dir {
	return writeDataset(t, map[string]string{
		"crosswalk.csv": "name,abbr\nCalifornia,CA\nNew York,NY\n",
		"grants.csv": "award_id,state,directorate,year,award_amount\n" +
			"a1,CA,BIO,2020,1000\n" +
			"a2,California,CSE,2021,2000\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n" +
			"c1,CA,BIO,2025,500\n",
		"population.csv": "state,pop_2020,pop_2021\n" +
			"California,100,200\n",
	})
}

func newTestPipeline(opener source.Opener) *Pipeline {
	clock := testutil.NewFixedClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	return NewPipeline(opener, testSources,
		WithTokenGenerator(testutil.FixedTokenGenerator{Token: "tok-1"}),
		WithNow(clock.Now),
	)
}

func findAgg(t *testing.T, rows []model.AggregateRow, entity string, year int) model.AggregateRow {
	t.Helper()
	for _, r := range rows {
		if r.EntityKey == entity && r.Year == year {
			return r
		}
	}
	t.Fatalf("no aggregate row for entity=%q year=%d", entity, year)
	return model.AggregateRow{}
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	snap, err := newTestPipeline(defaultDataset(t)).Run()
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "tok-1", snap.Token)
	assert.Equal(t, 2026, snap.BuiltAt.Year())

	// Mixed code/name state spellings collapse onto the canonical code.
	ca2020 := findAgg(t, snap.GrantsByState, "CA", 2020)
	assert.Equal(t, 1, ca2020.Count)
	assert.Equal(t, 1000.0, ca2020.TotalAmount)

	ca2021 := findAgg(t, snap.GrantsByState, "CA", 2021)
	assert.Equal(t, 2000.0, ca2021.TotalAmount)

	rollup := findAgg(t, snap.GrantsByState, "CA", model.YearAll)
	assert.Equal(t, 2, rollup.Count)
	assert.Equal(t, 3000.0, rollup.TotalAmount)

	// Per capita: 1000/100, 2000/200, and the rollup over mean population
	// 3000/150.
	byYear := make(map[int]float64)
	for _, r := range snap.PerCapita {
		require.Equal(t, "CA", r.State)
		byYear[r.Year] = r.FundingPerCapita
	}
	assert.Equal(t, 10.0, byYear[2020])
	assert.Equal(t, 10.0, byYear[2021])
	assert.Equal(t, 20.0, byYear[model.YearAll])

	// One state means the national average equals that state's value.
	for _, r := range snap.NationalAverages {
		assert.Equal(t, 1, r.StateCount)
	}

	// Cancellations feed the impact table against the grant baseline.
	var bio model.CancellationImpactRow
	for _, r := range snap.CancellationImpact {
		if r.Directorate == "BIO" {
			bio = r
		}
	}
	assert.Equal(t, 1, bio.BaseCount)
	assert.Equal(t, 1, bio.CancelCount)
	assert.Equal(t, 1.0, bio.Rate)

	assert.True(t, snap.Quality.Clean())
	assert.Equal(t, 2, snap.Quality.GrantsLoaded)
	assert.Equal(t, 1, snap.Quality.CancellationsLoaded)
	assert.Equal(t, 2, snap.Quality.PopulationLoaded)
}

func TestPipeline_Run_UnresolvedStatesExcludedFromStateAggregates(t *testing.T) {
	opener := writeDataset(t, map[string]string{
		"crosswalk.csv": "name,abbr\nCalifornia,CA\n",
		"grants.csv": "award_id,state,directorate,year,award_amount\n" +
			"a1,California,BIO,2020,100\n" +
			"a2,Atlantis,BIO,2020,900\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n",
		"population.csv":    "state,pop_2020\nCalifornia,10\n",
	})

	snap, err := newTestPipeline(opener).Run()
	require.NoError(t, err)

	// Atlantis is gone from the state table but still counts toward the
	// directorate table.
	for _, r := range snap.GrantsByState {
		assert.Equal(t, "CA", r.EntityKey)
	}
	bio := findAgg(t, snap.GrantsByDirectorate, "BIO", 2020)
	assert.Equal(t, 2, bio.Count)
	assert.Equal(t, 1000.0, bio.TotalAmount)

	assert.Equal(t, 1, snap.Quality.UnresolvedStates)
	assert.False(t, snap.Quality.Clean())
}

func TestPipeline_Run_CoercedYearsCounted(t *testing.T) {
	opener := writeDataset(t, map[string]string{
		"crosswalk.csv": "name,abbr\nCalifornia,CA\n",
		"grants.csv": "award_id,state,directorate,year,award_amount\n" +
			"a1,CA,BIO,garbage,100\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n",
		"population.csv":    "state,pop_2020\nCalifornia,10\n",
	})

	snap, err := newTestPipeline(opener).Run()
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Quality.CoercedYears)
	rollup := findAgg(t, snap.GrantsByState, "CA", model.YearAll)
	assert.Equal(t, 1, rollup.Count)
}

func TestPipeline_Run_MissingSourceFails(t *testing.T) {
	opener := writeDataset(t, map[string]string{
		"crosswalk.csv":     "name,abbr\nCalifornia,CA\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n",
		"population.csv":    "state,pop_2020\nCalifornia,10\n",
	})

	snap, err := newTestPipeline(opener).Run()
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))

	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "grants", re.Source)
}

func TestPipeline_Run_MissingColumnIsSchemaError(t *testing.T) {
	opener := writeDataset(t, map[string]string{
		"crosswalk.csv": "name,abbr\nCalifornia,CA\n",
		"grants.csv":    "award_id,state,year,award_amount\na1,CA,2020,100\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n",
		"population.csv":    "state,pop_2020\nCalifornia,10\n",
	})

	snap, err := newTestPipeline(opener).Run()
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.False(t, IsSourceUnavailable(err))
}

func TestPipeline_Run_BadCrosswalkIsFatal(t *testing.T) {
	opener := writeDataset(t, map[string]string{
		"crosswalk.csv": "region,abbr\nCalifornia,CA\n",
		"grants.csv":    "award_id,state,directorate,year,award_amount\n",
		"cancellations.csv": "award_id,state,directorate,year,award_amount\n",
		"population.csv":    "state,pop_2020\nCalifornia,10\n",
	})

	_, err := newTestPipeline(opener).Run()
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))

	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "crosswalk", re.Source)
}

func TestPublisher_FailedRefreshKeepsPriorSnapshot(t *testing.T) {
	var pub Publisher

	good, err := newTestPipeline(defaultDataset(t)).Run()
	require.NoError(t, err)
	pub.Publish(good)

	broken := writeDataset(t, map[string]string{
		"crosswalk.csv": "name,abbr\nCalifornia,CA\n",
	})
	snap, err := newTestPipeline(broken).Run()
	require.Error(t, err)
	require.Nil(t, snap)

	// The caller never publishes on error, so readers still see the last
	// good snapshot.
	assert.Same(t, good, pub.Current())
}
