package engine

import (
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

// New builds a stopped engine for cfg.
func New(cfg types.EngineConfig, deps Deps) (interfaces.Engine, error) {
	return newEngine(cfg, deps)
}
