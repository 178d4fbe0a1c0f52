package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/query"
	"github.com/grantline/grantline/internal/refresh"
)

// yearUnset marks the --year flag as not provided. Year 0 is a real value
// (the all-years rollup), so the sentinel has to live outside the domain.
const yearUnset = -1

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Manifest string
	Dataset  string
	Entity   string
	Year     int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Refresh once and query an aggregate table",
		Long: `Run one refresh cycle over the manifest's sources and query the
resulting snapshot.

Tables:
  state             aggregates keyed by state code
  directorate       aggregates keyed by directorate
  per-capita        per-state funding per capita
  national-average  unweighted per-year national average
  impact            per-directorate cancellation impact

Year 0 selects the all-years rollup rows. The --dataset flag switches the
state and directorate tables between grants and cancellations.

Example:
  grantline query state --manifest ./dataset.yaml --year 2023
  grantline query impact --manifest ./dataset.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Manifest, "manifest", "", "path to dataset manifest (required)")
	cmd.Flags().StringVar(&opts.Dataset, "dataset", "grants", "dataset for aggregate tables (grants|cancellations)")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "restrict to one state code or directorate")
	cmd.Flags().IntVar(&opts.Year, "year", yearUnset, "restrict to one year (0 = all-years rollup)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runQuery(opts *QueryOptions, table string, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dataset := query.Dataset(opts.Dataset)
	if dataset != query.DatasetGrants && dataset != query.DatasetCancellations {
		msg := fmt.Sprintf("invalid dataset %q: must be grants or cancellations", opts.Dataset)
		_ = formatter.Error(ErrCodeBadQuery, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	m, err := LoadManifest(opts.Manifest)
	if err != nil {
		_ = formatter.Error(ErrCodeManifestInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid manifest", err)
	}

	snap, err := pipelineFromManifest(m).Run()
	if err != nil {
		_ = formatter.Error(ErrCodeRefreshFailed, err.Error(), nil)
		return WrapExitError(ExitFailure, "refresh failed", err)
	}

	pub := &refresh.Publisher{}
	pub.Publish(snap)
	facade := query.New(pub)

	var filters []query.FilterOption
	if opts.Year != yearUnset {
		filters = append(filters, query.WithYear(opts.Year))
	}
	if opts.Entity != "" {
		filters = append(filters, query.WithEntity(opts.Entity))
	}

	switch table {
	case "state", "directorate":
		kind := model.EntityState
		if table == "directorate" {
			kind = model.EntityDirectorate
		}
		rows, err := facade.Aggregates(dataset, kind, filters...)
		if err != nil {
			return queryFailed(formatter, err)
		}
		return output(formatter, rows, renderAggregates(table, rows))

	case "per-capita":
		rows, err := facade.PerCapita(filters...)
		if err != nil {
			return queryFailed(formatter, err)
		}
		return output(formatter, rows, renderPerCapita(rows))

	case "national-average":
		rows, err := facade.NationalAverages(filters...)
		if err != nil {
			return queryFailed(formatter, err)
		}
		return output(formatter, rows, renderNationalAverages(rows))

	case "impact":
		rows, err := facade.CancellationImpact(filters...)
		if err != nil {
			return queryFailed(formatter, err)
		}
		return output(formatter, rows, renderImpact(rows))

	default:
		msg := fmt.Sprintf("unknown table %q: must be state, directorate, per-capita, national-average, or impact", table)
		_ = formatter.Error(ErrCodeBadQuery, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
}

func queryFailed(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeBadQuery, err.Error(), nil)
	return WrapExitError(ExitFailure, "query failed", err)
}

func output(formatter *OutputFormatter, rows interface{}, text string) error {
	if formatter.Format == "json" {
		return formatter.Success(rows)
	}
	return formatter.Success(text)
}

// yearLabel renders the rollup year readably in text tables.
func yearLabel(year int) string {
	if year == model.YearAll {
		return "all"
	}
	return fmt.Sprintf("%d", year)
}

func renderAggregates(table string, rows []model.AggregateRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tYEAR\tCOUNT\tTOTAL\n", strings.ToUpper(table))
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", r.EntityKey, yearLabel(r.Year), r.Count, r.TotalAmount)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func renderPerCapita(rows []model.PerCapitaRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tYEAR\tPOPULATION\tTOTAL\tPER CAPITA")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%.2f\t%.4f\n", r.State, yearLabel(r.Year), r.Population, r.TotalAmount, r.FundingPerCapita)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func renderNationalAverages(rows []model.NationalAverageRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "YEAR\tAVG PER CAPITA\tSTATES")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%.4f\t%d\n", yearLabel(r.Year), r.AveragePerCapita, r.StateCount)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func renderImpact(rows []model.CancellationImpactRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DIRECTORATE\tBASE\tCANCELLED\tLOST\tRATE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.4f\n", r.Directorate, r.BaseCount, r.CancelCount, r.LostAmount, r.Rate)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}
