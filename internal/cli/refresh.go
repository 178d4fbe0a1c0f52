package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantline/grantline/internal/refresh"
)

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <manifest>",
		Short: "Run one refresh cycle and report the snapshot",
		Long: `Run one complete refresh cycle over the manifest's sources.

Loads the crosswalk, grants, cancellations, and population tables, builds
every aggregate table, and prints the snapshot token with its quality
report. A fatal source or schema failure produces no snapshot.

Example:
  grantline refresh ./dataset.yaml
  grantline refresh ./dataset.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

// refreshResult is the JSON payload for a successful refresh.
type refreshResult struct {
	Token   string                `json:"token"`
	BuiltAt time.Time             `json:"built_at"`
	Clean   bool                  `json:"clean"`
	Quality refresh.QualityReport `json:"quality"`
}

func runRefresh(opts *RootOptions, manifestPath string, cmd *cobra.Command) error {
	configureLogging(opts)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	m, err := LoadManifest(manifestPath)
	if err != nil {
		_ = formatter.Error(ErrCodeManifestInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid manifest", err)
	}

	snap, err := pipelineFromManifest(m).Run()
	if err != nil {
		var re *refresh.RefreshError
		if errors.As(err, &re) {
			_ = formatter.Error(ErrCodeRefreshFailed, re.Error(), map[string]string{
				"code":   string(re.Code),
				"source": re.Source,
			})
		} else {
			_ = formatter.Error(ErrCodeRefreshFailed, err.Error(), nil)
		}
		return WrapExitError(ExitFailure, "refresh failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(refreshResult{
			Token:   snap.Token,
			BuiltAt: snap.BuiltAt,
			Clean:   snap.Quality.Clean(),
			Quality: snap.Quality,
		})
	}

	fmt.Fprintln(formatter.Writer, renderRefresh(snap))
	return nil
}

func renderRefresh(snap *refresh.Snapshot) string {
	q := snap.Quality
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot %s built at %s\n", snap.Token, snap.BuiltAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "  grants loaded:        %d\n", q.GrantsLoaded)
	fmt.Fprintf(&b, "  cancellations loaded: %d\n", q.CancellationsLoaded)
	fmt.Fprintf(&b, "  population rows:      %d\n", q.PopulationLoaded)
	if q.Clean() {
		b.WriteString("  quality: clean")
		return b.String()
	}
	b.WriteString("  quality accommodations:\n")
	for _, line := range []struct {
		label string
		n     int
	}{
		{"years coerced to all-years", q.CoercedYears},
		{"rows dropped for bad amounts", q.DroppedAmountRows},
		{"records with unresolved states", q.UnresolvedStates},
		{"population rows dropped", q.DroppedPopulationRows},
		{"per-capita rows skipped", q.SkippedPerCapita},
	} {
		if line.n > 0 {
			fmt.Fprintf(&b, "    %s: %d\n", line.label, line.n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
