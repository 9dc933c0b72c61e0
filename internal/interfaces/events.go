package interfaces

import "llm-crypto-trader/internal/types"

// EventSink receives engine events in emission order. Publish must not block.
type EventSink interface {
	Publish(ev types.Event)
}
