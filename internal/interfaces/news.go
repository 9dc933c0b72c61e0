package interfaces

import "context"

// NewsSource supplies recent headlines for a coin.
type NewsSource interface {
	Headlines(ctx context.Context, coin string, limit int) ([]string, error)
}
