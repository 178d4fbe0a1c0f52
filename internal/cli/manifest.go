package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/grantline/grantline/internal/refresh"
	"github.com/grantline/grantline/internal/source"
)

// Manifest names the data directory and the four source tables a refresh
// cycle reads. Commands take it as a YAML file so the same dataset wiring
// can be shared between refresh, query, and export.
type Manifest struct {
	DataDir string          `yaml:"data_dir" json:"data_dir"`
	Sources ManifestSources `yaml:"sources" json:"sources"`
}

// ManifestSources lists the table file names, relative to DataDir.
type ManifestSources struct {
	Grants        string `yaml:"grants" json:"grants"`
	Cancellations string `yaml:"cancellations" json:"cancellations"`
	Population    string `yaml:"population" json:"population"`
	Crosswalk     string `yaml:"crosswalk" json:"crosswalk"`
}

// manifestSchema is the CUE contract a manifest must satisfy. Every field
// is required and non-empty; unknown fields are rejected by the closed
// struct.
const manifestSchema = `
#Manifest: close({
	data_dir: string & !=""
	sources: close({
		grants:        string & !=""
		cancellations: string & !=""
		population:    string & !=""
		crosswalk:     string & !=""
	})
})
`

// LoadManifest reads, decodes, and validates a manifest file. The data
// directory is resolved relative to the manifest's own location so a
// manifest can travel with its dataset.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := validateManifest(&m); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(m.DataDir) {
		m.DataDir = filepath.Join(filepath.Dir(path), m.DataDir)
	}
	return &m, nil
}

// validateManifest checks the decoded manifest against the CUE schema.
func validateManifest(m *Manifest) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(manifestSchema).LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling manifest schema: %w", err)
	}

	unified := schema.Unify(ctx.Encode(m))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}

// pipelineFromManifest builds the refresh pipeline the manifest describes.
func pipelineFromManifest(m *Manifest) *refresh.Pipeline {
	return refresh.NewPipeline(source.Dir(m.DataDir), refresh.Sources{
		Grants:        m.Sources.Grants,
		Cancellations: m.Sources.Cancellations,
		Population:    m.Sources.Population,
		Crosswalk:     m.Sources.Crosswalk,
	})
}
