package engine

import (
	"context"
	"sync"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/types"
)

// Builder creates an engine for a configuration. The registry calls it only
// when no engine is running.
type Builder func(cfg types.EngineConfig) (interfaces.Engine, error)

// Registry owns the process's single active engine.
type Registry struct {
	mu      sync.Mutex
	build   Builder
	current interfaces.Engine
}

func NewRegistry(build Builder) *Registry {
	return &Registry{build: build}
}

// Start builds and starts a new engine. It fails with ErrAlreadyRunning while
// the current one is running.
func (r *Registry) Start(ctx context.Context, cfg types.EngineConfig) (interfaces.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.IsRunning() {
		return nil, ErrAlreadyRunning
	}
	eng, err := r.build(cfg)
	if err != nil {
		return nil, err
	}
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}
	r.current = eng
	return eng, nil
}

// Stop stops the current engine. It keeps the engine so its final status
// stays readable.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	eng := r.current
	r.mu.Unlock()

	if eng == nil {
		return ErrNotRunning
	}
	return eng.Stop(ctx)
}

// Current returns the last started engine, or nil.
func (r *Registry) Current() interfaces.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Registry) IsRunning() bool {
	eng := r.Current()
	return eng != nil && eng.IsRunning()
}

// Status reports the current engine, or an all-zero snapshot when none was started.
func (r *Registry) Status(ctx context.Context) types.Status {
	eng := r.Current()
	if eng == nil {
		return types.Status{}
	}
	return eng.Status(ctx)
}
