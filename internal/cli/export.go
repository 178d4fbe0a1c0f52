package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantline/grantline/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	List     bool
	Show     string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [manifest]",
		Short: "Archive refresh snapshots to a SQLite database",
		Long: `Archive refresh snapshots to a SQLite database.

With a manifest argument, runs one refresh cycle and archives the result.
With --list, prints the archived snapshots. With --show, prints one
archived snapshot by token.

Example:
  grantline export ./dataset.yaml --db ./archive.db
  grantline export --db ./archive.db --list
  grantline export --db ./archive.db --show 0190a6e2-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list archived snapshots")
	cmd.Flags().StringVar(&opts.Show, "show", "", "print one archived snapshot by token")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExport(opts *ExportOptions, args []string, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeArchiveFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	switch {
	case opts.List:
		infos, err := st.ListSnapshots(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeArchiveFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to list snapshots", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(infos)
		}
		var b strings.Builder
		for _, info := range infos {
			fmt.Fprintf(&b, "%s  %s\n", info.Token, info.BuiltAt.Format(time.RFC3339))
		}
		if len(infos) == 0 {
			b.WriteString("no archived snapshots")
		}
		return formatter.Success(strings.TrimRight(b.String(), "\n"))

	case opts.Show != "":
		snap, err := st.ReadSnapshot(ctx, opts.Show)
		if err != nil {
			_ = formatter.Error(ErrCodeArchiveFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to read snapshot", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(snap)
		}
		return formatter.Success(renderRefresh(snap))

	default:
		if len(args) != 1 {
			msg := "manifest argument required unless --list or --show is given"
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		m, err := LoadManifest(args[0])
		if err != nil {
			_ = formatter.Error(ErrCodeManifestInvalid, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid manifest", err)
		}

		snap, err := pipelineFromManifest(m).Run()
		if err != nil {
			_ = formatter.Error(ErrCodeRefreshFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "refresh failed", err)
		}
		if err := st.WriteSnapshot(ctx, snap); err != nil {
			_ = formatter.Error(ErrCodeArchiveFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to archive snapshot", err)
		}

		if formatter.Format == "json" {
			return formatter.Success(map[string]string{"token": snap.Token, "archived": opts.Database})
		}
		return formatter.Success(fmt.Sprintf("Archived snapshot %s to %s", snap.Token, opts.Database))
	}
}
