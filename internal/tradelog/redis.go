package tradelog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/types"
)

const (
	// TradesKey holds the history as a list, newest at the head.
	TradesKey = "trader:trades"
	maxTrades = 10000
)

// RedisStore keeps the trade list in Redis. While Redis is unreachable,
// reads and writes go to an in-memory copy so trading continues.
type RedisStore struct {
	client         *redis.Client
	mem            *MemoryStore
	redisAvailable atomic.Bool
}

var _ interfaces.TradeStore = (*RedisStore)(nil)

// NewRedisStore pings the server once. A nil client runs memory-only.
func NewRedisStore(ctx context.Context, client *redis.Client) *RedisStore {
	rs := &RedisStore{client: client, mem: NewMemoryStore()}
	if client == nil {
		logger.Warn(ctx, "No Redis client provided, trade history kept in memory only")
		return rs
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn(ctx, "Redis unavailable at startup, using in-memory trade history", "error", err)
		return rs
	}
	rs.redisAvailable.Store(true)
	logger.Info(ctx, "Redis trade store connected")

	if trades, err := rs.readAll(ctx); err == nil {
		rs.mem.replace(trades)
	}
	return rs
}

// Available reports whether the last Redis call succeeded.
func (rs *RedisStore) Available() bool {
	return rs.redisAvailable.Load()
}

func (rs *RedisStore) SaveTrade(ctx context.Context, rec types.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	_ = rs.mem.SaveTrade(ctx, rec)

	if rs.client == nil || !rs.redisAvailable.Load() {
		logger.Debug(ctx, "Redis unavailable, trade saved to memory", "id", rec.ID)
		return nil
	}

	pipe := rs.client.TxPipeline()
	pipe.LPush(ctx, TradesKey, data)
	pipe.LTrim(ctx, TradesKey, 0, maxTrades-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn(ctx, "Failed to save trade to Redis, using in-memory history", "error", err)
		rs.redisAvailable.Store(false)
	}
	return nil
}

func (rs *RedisStore) GetTrades(ctx context.Context, limit int, coin string) ([]types.TradeRecord, error) {
	trades, ok := rs.fromRedis(ctx)
	if !ok {
		return rs.mem.GetTrades(ctx, limit, coin)
	}
	return filterTrades(trades, limit, coin), nil
}

func (rs *RedisStore) GetTodayTrades(ctx context.Context) ([]types.TradeRecord, error) {
	trades, ok := rs.fromRedis(ctx)
	if !ok {
		return rs.mem.GetTodayTrades(ctx)
	}
	return todayTrades(trades, rs.mem.now()), nil
}

func (rs *RedisStore) fromRedis(ctx context.Context) ([]types.TradeRecord, bool) {
	if rs.client == nil {
		return nil, false
	}
	trades, err := rs.readAll(ctx)
	if err != nil {
		if rs.redisAvailable.Swap(false) {
			logger.Warn(ctx, "Redis read error, using in-memory trade history", "error", err)
		}
		return nil, false
	}
	rs.redisAvailable.Store(true)
	return trades, true
}

func (rs *RedisStore) readAll(ctx context.Context) ([]types.TradeRecord, error) {
	raw, err := rs.client.LRange(ctx, TradesKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	trades := make([]types.TradeRecord, 0, len(raw))
	for _, item := range raw {
		var t types.TradeRecord
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			logger.Warn(ctx, "Skipping unreadable trade in Redis", "error", err)
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}
