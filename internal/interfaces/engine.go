package interfaces

import (
	"context"

	"llm-crypto-trader/internal/types"
)

type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	Status(ctx context.Context) types.Status
}
