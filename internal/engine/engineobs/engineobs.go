package engineobs

import (
	"context"
	"time"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{
		engine: eng,
	}
}

func (oe *observableEngine) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "engine.Start")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting trading engine")

	if err := oe.engine.Start(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine start failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Trading engine running",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (oe *observableEngine) Stop(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "engine.Stop")
	defer span.End()

	start := time.Now()
	if err := oe.engine.Stop(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Engine stop failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	logger.InfoSkip(ctx, 1, "Trading engine stopped",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (oe *observableEngine) IsRunning() bool {
	return oe.engine.IsRunning()
}

func (oe *observableEngine) Status(ctx context.Context) types.Status {
	s := oe.engine.Status(ctx)
	logger.DebugSkip(ctx, 1, "Engine status requested",
		"running", s.Running,
		"ticks", s.Ticks,
		"in_position", s.InPosition,
	)
	return s
}
