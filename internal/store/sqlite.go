package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS grid_results (
	run_id           TEXT NOT NULL,
	label            TEXT NOT NULL,
	granularity      TEXT NOT NULL,
	lookback         TEXT NOT NULL,
	policy           TEXT NOT NULL,
	multiplier       REAL NOT NULL,
	trailing_pct     REAL NOT NULL,
	signal_count     INTEGER NOT NULL,
	signal_win_rate  REAL NOT NULL,
	trade_count      INTEGER NOT NULL,
	win_rate         REAL NOT NULL,
	expectancy       REAL NOT NULL,
	profit_factor    REAL NOT NULL,
	final_capital    REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	score            REAL NOT NULL,
	ranked           INTEGER NOT NULL,
	halted           INTEGER NOT NULL,
	halt_reason      TEXT NOT NULL,
	created_at       TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, label)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id         TEXT NOT NULL,
	label          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	entry_date     TEXT NOT NULL,
	entry_price    REAL NOT NULL,
	exit_date      TEXT NOT NULL,
	exit_price     REAL NOT NULL,
	exit_reason    TEXT NOT NULL,
	shares         INTEGER NOT NULL,
	net_return_pct REAL NOT NULL,
	commission     REAL NOT NULL,
	pnl            REAL NOT NULL,
	cash_after     REAL NOT NULL,
	equity_after   REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades (run_id, label, entry_date);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResults inserts the per-combination rows of a run in one transaction.
// Re-saving a (run_id, label) pair replaces the previous row.
func (s *SQLiteStore) SaveResults(ctx context.Context, rows []GridResultRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO grid_results (
			run_id, label, granularity, lookback, policy, multiplier,
			trailing_pct, signal_count, signal_win_rate, trade_count, win_rate,
			expectancy, profit_factor, final_capital, max_drawdown_pct, score,
			ranked, halted, halt_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.RunID, r.Label, r.Granularity, r.Lookback, r.Policy, r.Multiplier,
			r.TrailingPct, r.SignalCount, r.SignalWinRate, r.TradeCount, r.WinRate,
			r.Expectancy, r.ProfitFactor, r.FinalCapital, r.MaxDrawdownPct, r.Score,
			boolToInt(r.Ranked), boolToInt(r.Halted), r.HaltReason,
		)
		if err != nil {
			return fmt.Errorf("inserting result %s/%s: %w", r.RunID, r.Label, err)
		}
	}
	return tx.Commit()
}

// SaveTrades inserts the realized trade log of a run in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, rows []TradeRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (
			run_id, label, symbol, entry_date, entry_price, exit_date,
			exit_price, exit_reason, shares, net_return_pct, commission, pnl,
			cash_after, equity_after
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.RunID, r.Label, r.Symbol, r.EntryDate, r.EntryPrice, r.ExitDate,
			r.ExitPrice, r.ExitReason, r.Shares, r.NetReturnPct, r.Commission, r.PnL,
			r.CashAfter, r.EquityAfter,
		)
		if err != nil {
			return fmt.Errorf("inserting trade %s/%s: %w", r.RunID, r.Symbol, err)
		}
	}
	return tx.Commit()
}

// TopResults returns the highest-scoring ranked rows of a run, best first.
func (s *SQLiteStore) TopResults(ctx context.Context, runID string, limit int) ([]GridResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, label, granularity, lookback, policy, multiplier,
		       trailing_pct, signal_count, signal_win_rate, trade_count,
		       win_rate, expectancy, profit_factor, final_capital,
		       max_drawdown_pct, score, ranked, halted, halt_reason
		FROM grid_results
		WHERE run_id = ? AND ranked = 1
		ORDER BY score DESC, label ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GridResultRow
	for rows.Next() {
		var r GridResultRow
		var ranked, halted int
		err := rows.Scan(
			&r.RunID, &r.Label, &r.Granularity, &r.Lookback, &r.Policy,
			&r.Multiplier, &r.TrailingPct, &r.SignalCount, &r.SignalWinRate,
			&r.TradeCount, &r.WinRate, &r.Expectancy, &r.ProfitFactor,
			&r.FinalCapital, &r.MaxDrawdownPct, &r.Score, &ranked, &halted,
			&r.HaltReason,
		)
		if err != nil {
			return nil, err
		}
		r.Ranked = ranked != 0
		r.Halted = halted != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
