package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// PositionJournal implements domain.PositionJournal using PostgreSQL.
type PositionJournal struct {
	pool *pgxpool.Pool
}

var _ domain.PositionJournal = (*PositionJournal)(nil)

// NewPositionJournal creates a journal backed by the given pool.
func NewPositionJournal(pool *pgxpool.Pool) *PositionJournal {
	return &PositionJournal{pool: pool}
}

const positionSelectCols = `id, market_id, side, entry_price, quantity, mark_price,
	status, source, reasoning, opened_at, exit_price, closed_at, close_reason, realized_pnl`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, status, closeReason string

		if err := rows.Scan(
			&p.ID, &p.MarketID, &side,
			&p.EntryPrice, &p.Quantity, &p.MarkPrice,
			&status, &p.Source, &p.Reasoning,
			&p.OpenedAt, &p.ExitPrice, &p.ClosedAt, &closeReason, &p.RealizedPnL,
		); err != nil {
			return nil, err
		}
		p.Side = domain.Side(side)
		p.Status = domain.PositionStatus(status)
		p.CloseReason = domain.CloseReason(closeReason)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecordOpen inserts the position at open time.
func (j *PositionJournal) RecordOpen(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, market_id, side, entry_price, quantity, mark_price,
			status, source, reasoning, opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, NOW()
		)`

	_, err := j.pool.Exec(ctx, query,
		p.ID, p.MarketID, string(p.Side),
		p.EntryPrice, p.Quantity, p.MarkPrice,
		string(p.Status), p.Source, p.Reasoning, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record open %s: %w", p.ID, err)
	}
	return nil
}

// RecordClose writes the exit fields of an already-journaled position.
func (j *PositionJournal) RecordClose(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			status       = $2,
			mark_price   = $3,
			exit_price   = $4,
			closed_at    = $5,
			close_reason = $6,
			realized_pnl = $7,
			updated_at   = NOW()
		WHERE id = $1`

	tag, err := j.pool.Exec(ctx, query,
		p.ID, string(p.Status), p.MarkPrice,
		p.ExitPrice, p.ClosedAt, string(p.CloseReason), p.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: record close %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: record close %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// ListClosed returns closed positions, newest first, with optional time
// filtering on the close timestamp.
func (j *PositionJournal) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE status = 'closed'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}
