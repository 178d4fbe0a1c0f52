package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/grantline/grantline/internal/model"
	"github.com/grantline/grantline/internal/refresh"
)

// WriteSnapshot archives one snapshot in a single transaction: the header
// row, every aggregate table, and the derived tables all land together or
// not at all. Re-archiving the same token is a no-op (ON CONFLICT DO
// NOTHING on the header short-circuits the table writes).
func (s *Store) WriteSnapshot(ctx context.Context, snap *refresh.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	q := snap.Quality
	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(token, built_at, grants_loaded, cancellations_loaded, population_loaded,
		 coerced_years, dropped_amount_rows, unresolved_states,
		 dropped_population_rows, skipped_per_capita)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		snap.Token,
		snap.BuiltAt.UTC().Format(time.RFC3339Nano),
		q.GrantsLoaded,
		q.CancellationsLoaded,
		q.PopulationLoaded,
		q.CoercedYears,
		q.DroppedAmountRows,
		q.UnresolvedStates,
		q.DroppedPopulationRows,
		q.SkippedPerCapita,
	)
	if err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Token already archived; the tables are immutable, nothing to redo.
		return nil
	}

	for _, set := range []struct {
		dataset string
		kind    string
		rows    []model.AggregateRow
	}{
		{"grants", "state", snap.GrantsByState},
		{"grants", "directorate", snap.GrantsByDirectorate},
		{"cancellations", "state", snap.CancellationsByState},
		{"cancellations", "directorate", snap.CancellationsByDirectorate},
	} {
		for _, r := range set.rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO aggregate_rows
				(snapshot_token, dataset, entity_kind, entity_key, year, record_count, total_amount)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, snap.Token, set.dataset, set.kind, r.EntityKey, r.Year, r.Count, r.TotalAmount)
			if err != nil {
				return fmt.Errorf("write aggregate row (%s/%s): %w", set.dataset, set.kind, err)
			}
		}
	}

	for _, r := range snap.PerCapita {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO per_capita_rows
			(snapshot_token, state, year, population, total_amount, funding_per_capita)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.Token, r.State, r.Year, r.Population, r.TotalAmount, r.FundingPerCapita)
		if err != nil {
			return fmt.Errorf("write per-capita row: %w", err)
		}
	}

	for _, r := range snap.NationalAverages {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO national_average_rows
			(snapshot_token, year, average_per_capita, state_count)
			VALUES (?, ?, ?, ?)
		`, snap.Token, r.Year, r.AveragePerCapita, r.StateCount)
		if err != nil {
			return fmt.Errorf("write national average row: %w", err)
		}
	}

	for _, r := range snap.CancellationImpact {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cancellation_impact_rows
			(snapshot_token, directorate, base_count, cancel_count, lost_amount, rate)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.Token, r.Directorate, r.BaseCount, r.CancelCount, r.LostAmount, r.Rate)
		if err != nil {
			return fmt.Errorf("write cancellation impact row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}
	return nil
}

// SnapshotInfo is one archive listing entry.
type SnapshotInfo struct {
	Token   string
	BuiltAt time.Time
}

// ListSnapshots returns the archived snapshots ordered by token. Tokens are
// UUIDv7, so token order is creation order.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token, built_at FROM snapshots ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var builtAt string
		if err := rows.Scan(&info.Token, &builtAt); err != nil {
			return nil, fmt.Errorf("list snapshots: scan: %w", err)
		}
		info.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: parse built_at: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// ReadSnapshot reconstructs an archived snapshot by token. Returns
// sql.ErrNoRows wrapped when the token is not archived.
func (s *Store) ReadSnapshot(ctx context.Context, token string) (*refresh.Snapshot, error) {
	snap := &refresh.Snapshot{Token: token}

	var builtAt string
	q := &snap.Quality
	err := s.db.QueryRowContext(ctx, `
		SELECT built_at, grants_loaded, cancellations_loaded, population_loaded,
		       coerced_years, dropped_amount_rows, unresolved_states,
		       dropped_population_rows, skipped_per_capita
		FROM snapshots WHERE token = ?
	`, token).Scan(
		&builtAt,
		&q.GrantsLoaded,
		&q.CancellationsLoaded,
		&q.PopulationLoaded,
		&q.CoercedYears,
		&q.DroppedAmountRows,
		&q.UnresolvedStates,
		&q.DroppedPopulationRows,
		&q.SkippedPerCapita,
	)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", token, err)
	}
	snap.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: parse built_at: %w", token, err)
	}

	if err := s.readAggregates(ctx, token, snap); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT state, year, population, total_amount, funding_per_capita
		FROM per_capita_rows WHERE snapshot_token = ?
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read per-capita rows: %w", err)
	}
	if err := scanRows(rows, func(scan func(...any) error) error {
		var r model.PerCapitaRow
		if err := scan(&r.State, &r.Year, &r.Population, &r.TotalAmount, &r.FundingPerCapita); err != nil {
			return err
		}
		snap.PerCapita = append(snap.PerCapita, r)
		return nil
	}); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT year, average_per_capita, state_count
		FROM national_average_rows WHERE snapshot_token = ?
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read national average rows: %w", err)
	}
	if err := scanRows(rows, func(scan func(...any) error) error {
		var r model.NationalAverageRow
		if err := scan(&r.Year, &r.AveragePerCapita, &r.StateCount); err != nil {
			return err
		}
		snap.NationalAverages = append(snap.NationalAverages, r)
		return nil
	}); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT directorate, base_count, cancel_count, lost_amount, rate
		FROM cancellation_impact_rows WHERE snapshot_token = ?
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read cancellation impact rows: %w", err)
	}
	if err := scanRows(rows, func(scan func(...any) error) error {
		var r model.CancellationImpactRow
		if err := scan(&r.Directorate, &r.BaseCount, &r.CancelCount, &r.LostAmount, &r.Rate); err != nil {
			return err
		}
		snap.CancellationImpact = append(snap.CancellationImpact, r)
		return nil
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) readAggregates(ctx context.Context, token string, snap *refresh.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset, entity_kind, entity_key, year, record_count, total_amount
		FROM aggregate_rows WHERE snapshot_token = ?
	`, token)
	if err != nil {
		return fmt.Errorf("read aggregate rows: %w", err)
	}
	return scanRows(rows, func(scan func(...any) error) error {
		var dataset, kind string
		var r model.AggregateRow
		if err := scan(&dataset, &kind, &r.EntityKey, &r.Year, &r.Count, &r.TotalAmount); err != nil {
			return err
		}
		switch {
		case dataset == "grants" && kind == "state":
			snap.GrantsByState = append(snap.GrantsByState, r)
		case dataset == "grants" && kind == "directorate":
			snap.GrantsByDirectorate = append(snap.GrantsByDirectorate, r)
		case dataset == "cancellations" && kind == "state":
			snap.CancellationsByState = append(snap.CancellationsByState, r)
		case dataset == "cancellations" && kind == "directorate":
			snap.CancellationsByDirectorate = append(snap.CancellationsByDirectorate, r)
		default:
			return fmt.Errorf("unknown aggregate row kind %s/%s", dataset, kind)
		}
		return nil
	})
}

// scanRows drains a result set, closing it regardless of outcome.
func scanRows(rows *sql.Rows, each func(scan func(...any) error) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := each(rows.Scan); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}
	return rows.Err()
}
