package tradelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

// FileStore persists the trade history as one JSON array, newest first.
// Writes go to a temp file and are renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
	mem  *MemoryStore
}

var _ interfaces.TradeStore = (*FileStore)(nil)

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemoryStore()}
	trades, err := fs.load()
	if err != nil {
		return nil, err
	}
	fs.mem.replace(trades)
	return fs, nil
}

func (fs *FileStore) load() ([]types.TradeRecord, error) {
	b, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trade history: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var trades []types.TradeRecord
	if err := json.Unmarshal(b, &trades); err != nil {
		return nil, fmt.Errorf("parse trade history %s: %w", fs.path, err)
	}
	return trades, nil
}

func (fs *FileStore) SaveTrade(ctx context.Context, rec types.TradeRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.mem.mu.RLock()
	next := prepend(fs.mem.trades, rec)
	fs.mem.mu.RUnlock()

	if err := fs.write(next); err != nil {
		return err
	}
	fs.mem.replace(next)
	return nil
}

func (fs *FileStore) write(trades []types.TradeRecord) error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return fmt.Errorf("create trade dir: %w", err)
	}
	b, err := json.MarshalIndent(trades, "", "  ")
	if err != nil {
		return fmt.Errorf("encode trades: %w", err)
	}
	tmp := fmt.Sprintf("%s.%d.tmp", fs.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace trade file: %w", err)
	}
	return nil
}

func (fs *FileStore) GetTrades(ctx context.Context, limit int, coin string) ([]types.TradeRecord, error) {
	return fs.mem.GetTrades(ctx, limit, coin)
}

func (fs *FileStore) GetTodayTrades(ctx context.Context) ([]types.TradeRecord, error) {
	return fs.mem.GetTodayTrades(ctx)
}
