package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"llm-crypto-trader/internal/types"
)

// DecisionEntry is one line of the daily decision journal.
type DecisionEntry struct {
	Time       string           `json:"time"`
	Coin       string           `json:"coin"`
	Strategy   string           `json:"strategy"`
	Action     types.Action     `json:"action"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Price      float64          `json:"price"`
	HTFTrend   types.Trend      `json:"htf_trend"`
	Executed   bool             `json:"executed"`
	Note       string           `json:"note,omitempty"`
	Indicators types.Indicators `json:"indicators"`
}

// Journal appends decisions to <dir>/decisions/YYYY-MM-DD.jsonl in local time.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func NewJournal(dir string) *Journal {
	if dir == "" {
		dir = "logs"
	}
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) decisionsFilepath(t time.Time) string {
	return filepath.Join(j.dir, "decisions", t.Local().Format("2006-01-02")+".jsonl")
}

func (j *Journal) AppendDecision(e DecisionEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	e.Time = now.Local().Format("2006-01-02 15:04:05")
	p := j.decisionsFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal and report files last modified more than
// retentionDays ago. Files that fail to compress are left in place.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".jsonl" && ext != ".csv" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			_ = os.Remove(gz)
			return nil
		}
		_ = os.Remove(p)
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	gw.Name = strings.TrimSuffix(filepath.Base(dst), ".gz")
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
