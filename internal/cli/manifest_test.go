package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validManifest = `data_dir: data
sources:
  grants: grants.csv
  cancellations: cancellations.csv
  population: population.csv
  crosswalk: crosswalk.csv
`

func TestLoadManifest_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), m.DataDir, "relative data_dir resolves against the manifest location")
	assert.Equal(t, "grants.csv", m.Sources.Grants)
	assert.Equal(t, "crosswalk.csv", m.Sources.Crosswalk)
}

func TestLoadManifest_AbsoluteDataDirKept(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `data_dir: /srv/data
sources:
  grants: g.csv
  cancellations: c.csv
  population: p.csv
  crosswalk: x.csv
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/data", m.DataDir)
}

func TestLoadManifest_UnknownFieldRejected(t *testing.T) {
	path := writeManifest(t, t.TempDir(), validManifest+"extra: nope\n")

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing manifest")
}

func TestLoadManifest_MissingSourceRejected(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `data_dir: data
sources:
  grants: grants.csv
  cancellations: cancellations.csv
  population: population.csv
`)

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest")
}

func TestLoadManifest_EmptyValueRejected(t *testing.T) {
	path := writeManifest(t, t.TempDir(), `data_dir: ""
sources:
  grants: grants.csv
  cancellations: cancellations.csv
  population: population.csv
  crosswalk: crosswalk.csv
`)

	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifest_FileMissing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading manifest")
}
