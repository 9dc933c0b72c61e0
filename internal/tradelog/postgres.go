package tradelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	coin            TEXT NOT NULL,
	timeframe       TEXT NOT NULL,
	candle_interval TEXT NOT NULL,
	entry_price     DOUBLE PRECISION NOT NULL,
	exit_price      DOUBLE PRECISION NOT NULL,
	amount          DOUBLE PRECISION NOT NULL,
	quantity        DOUBLE PRECISION NOT NULL,
	pnl             DOUBLE PRECISION NOT NULL,
	pnl_pct         DOUBLE PRECISION NOT NULL,
	fee             DOUBLE PRECISION NOT NULL,
	reasoning       TEXT NOT NULL DEFAULT '',
	entry_time      TIMESTAMPTZ NOT NULL,
	exit_time       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_exit_time_idx ON trades (exit_time DESC);
`

const selectColumns = `id, coin, timeframe, candle_interval, entry_price, exit_price, amount,
	quantity, pnl, pnl_pct, fee, reasoning, entry_time, exit_time`

// PostgresStore keeps the trade history in a trades table.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ interfaces.TradeStore = (*PostgresStore)(nil)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresStore creates the table if it does not exist.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to migrate trades table: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (ps *PostgresStore) SaveTrade(ctx context.Context, rec types.TradeRecord) error {
	_, err := ps.pool.Exec(ctx, `
		INSERT INTO trades (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Coin, rec.Timeframe, rec.CandleInterval, rec.EntryPrice, rec.ExitPrice, rec.Amount,
		rec.Quantity, rec.PnL, rec.PnLPct, rec.Fee, rec.Reasoning, rec.EntryTime, rec.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (ps *PostgresStore) GetTrades(ctx context.Context, limit int, coin string) ([]types.TradeRecord, error) {
	if limit <= 0 {
		limit = maxTrades
	}
	rows, err := ps.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM trades
		WHERE ($1 = '' OR coin = $1)
		ORDER BY exit_time DESC
		LIMIT $2`, coin, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return collectTrades(rows)
}

func (ps *PostgresStore) GetTodayTrades(ctx context.Context) ([]types.TradeRecord, error) {
	start := StartOfDay(ps.now())
	rows, err := ps.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM trades
		WHERE exit_time >= $1 AND exit_time < $2
		ORDER BY exit_time DESC`, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query today's trades: %w", err)
	}
	return collectTrades(rows)
}

func collectTrades(rows pgx.Rows) ([]types.TradeRecord, error) {
	trades, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TradeRecord, error) {
		var t types.TradeRecord
		err := row.Scan(&t.ID, &t.Coin, &t.Timeframe, &t.CandleInterval, &t.EntryPrice, &t.ExitPrice, &t.Amount,
			&t.Quantity, &t.PnL, &t.PnLPct, &t.Fee, &t.Reasoning, &t.EntryTime, &t.ExitTime)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trades: %w", err)
	}
	return trades, nil
}
