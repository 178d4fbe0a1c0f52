package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantline/grantline/internal/crosswalk"
	"github.com/grantline/grantline/internal/source"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest and its sources without refreshing",
		Long: `Validate a dataset manifest without running a refresh cycle.

Checks the manifest against its schema, then opens each named source and
verifies the crosswalk's columns can be resolved. Faster than a refresh
for checking dataset wiring.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

// sourceCheck is one source's validation outcome.
type sourceCheck struct {
	Source string `json:"source"`
	File   string `json:"file"`
	Error  string `json:"error,omitempty"`
}

// validateResult holds manifest validation results.
type validateResult struct {
	Valid   bool          `json:"valid"`
	Sources []sourceCheck `json:"sources"`
}

func runValidate(opts *RootOptions, manifestPath string, cmd *cobra.Command) error {
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
	formatter.VerboseLog("Manifest OK, data_dir=%s", m.DataDir)

	opener := source.Dir(m.DataDir)
	result := validateResult{Valid: true}
	for _, s := range []struct{ logical, file string }{
		{"crosswalk", m.Sources.Crosswalk},
		{"grants", m.Sources.Grants},
		{"cancellations", m.Sources.Cancellations},
		{"population", m.Sources.Population},
	} {
		check := sourceCheck{Source: s.logical, File: s.file}
		if err := checkSource(opener, s.logical, s.file); err != nil {
			check.Error = err.Error()
			result.Valid = false
		}
		formatter.VerboseLog("Checked %s (%s)", s.logical, s.file)
		result.Sources = append(result.Sources, check)
	}

	if !result.Valid {
		if formatter.Format == "json" {
			_ = formatter.Success(result)
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Validation failed")
			for _, c := range result.Sources {
				if c.Error != "" {
					fmt.Fprintf(formatter.Writer, "  %s (%s): %s\n", c.Source, c.File, c.Error)
				}
			}
		}
		return NewExitError(ExitFailure, "manifest sources failed validation")
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, "✓ Manifest and sources valid")
	return nil
}

// checkSource reads one source table far enough to prove it is usable: the
// file opens, the CSV parses, and the crosswalk's columns resolve.
func checkSource(opener source.Opener, logical, file string) error {
	t, err := source.Read(opener, file)
	if err != nil {
		return err
	}
	if logical == "crosswalk" {
		if _, err := crosswalk.New(t); err != nil {
			return err
		}
	}
	return nil
}
