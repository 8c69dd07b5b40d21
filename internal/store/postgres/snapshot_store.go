package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshots
// are append-only; a run's series is keyed by run id.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a snapshot store backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Append inserts one snapshot for the run.
func (s *SnapshotStore) Append(ctx context.Context, runID string, snap domain.Snapshot) error {
	const query = `
		INSERT INTO snapshots (
			run_id, taken_at, cash, realized_pnl, unrealized_pnl,
			total_value, open_positions, peak, drawdown
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		runID, snap.Timestamp, snap.Cash, snap.RealizedPnL, snap.UnrealizedPnL,
		snap.TotalValue, snap.OpenPositions, snap.Peak, snap.Drawdown,
	)
	if err != nil {
		return fmt.Errorf("postgres: append snapshot: %w", err)
	}
	return nil
}

// List returns the run's snapshot series in time order.
func (s *SnapshotStore) List(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.Snapshot, error) {
	query := `
		SELECT taken_at, cash, realized_pnl, unrealized_pnl,
		       total_value, open_positions, peak, drawdown
		FROM snapshots WHERE run_id = $1`
	args := []any{runID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND taken_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND taken_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY taken_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(
			&snap.Timestamp, &snap.Cash, &snap.RealizedPnL, &snap.UnrealizedPnL,
			&snap.TotalValue, &snap.OpenPositions, &snap.Peak, &snap.Drawdown,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	return snaps, nil
}
