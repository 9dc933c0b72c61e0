package strategy

import (
	"fmt"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

// Deps carries what strategy constructors may need.
type Deps struct {
	Completer interfaces.Completer
	Model     string
}

type constructor func(Deps) (interfaces.Strategy, error)

var constructors = map[types.StrategyKind]constructor{
	types.StrategyRule: func(Deps) (interfaces.Strategy, error) {
		return NewRuleStrategy(), nil
	},
	types.StrategyLLM: func(d Deps) (interfaces.Strategy, error) {
		if d.Completer == nil {
			return nil, fmt.Errorf("llm strategy needs a completion provider")
		}
		return NewLLMStrategy(d.Completer, d.Model), nil
	},
}

// New builds the strategy registered for kind.
func New(kind types.StrategyKind, deps Deps) (interfaces.Strategy, error) {
	c, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
	return c(deps)
}

// MinConfidence is the base execution threshold for a strategy kind.
func MinConfidence(kind types.StrategyKind) float64 {
	if kind == types.StrategyLLM {
		return 0.7
	}
	return 0.5
}
