package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"llm-crypto-trader/internal/types"
)

var errNoJSON = errors.New("no JSON object in response")

// llmDecision accepts the field spellings models tend to produce.
type llmDecision struct {
	Action          string  `json:"action"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	Reason          string  `json:"reason"`
	ExpectedMovePct float64 `json:"expected_move_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
}

// ParseDecision extracts the first JSON object from a model reply. Code
// fences and surrounding prose are ignored.
func ParseDecision(text string) (types.Decision, error) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	t = strings.TrimSpace(t)

	start := strings.Index(t, "{")
	if start < 0 {
		return types.Decision{}, errNoJSON
	}

	// the decoder stops after the first complete value, so trailing prose
	// may contain braces
	var raw llmDecision
	var err error
	for {
		raw = llmDecision{}
		if err = json.NewDecoder(strings.NewReader(t[start:])).Decode(&raw); err == nil {
			break
		}
		next := strings.Index(t[start+1:], "{")
		if next < 0 {
			return types.Decision{}, fmt.Errorf("decode decision: %w", err)
		}
		start += next + 1
	}
	return normalizeDecision(raw), nil
}

func normalizeDecision(raw llmDecision) types.Decision {
	d := types.Decision{
		Action:          types.Action(strings.ToUpper(strings.TrimSpace(raw.Action))),
		Confidence:      raw.Confidence,
		Reasoning:       raw.Reasoning,
		ExpectedMovePct: raw.ExpectedMovePct,
		StopLossPct:     raw.StopLossPct,
		TakeProfitPct:   raw.TakeProfitPct,
	}
	if d.Reasoning == "" {
		d.Reasoning = raw.Reason
	}
	if !d.Action.Valid() {
		d.Action = types.ActionHold
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		d.Confidence = 0
	}
	return d
}
