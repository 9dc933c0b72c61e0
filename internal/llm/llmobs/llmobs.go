package llmobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/types"
)

// observableCompleter wraps a Completer with logging & tracing
type observableCompleter struct {
	completer interfaces.Completer
	provider  string
}

var _ interfaces.Completer = (*observableCompleter)(nil)

func Wrap(completer interfaces.Completer, provider string) interfaces.Completer {
	return &observableCompleter{
		completer: completer,
		provider:  provider,
	}
}

func (oc *observableCompleter) Complete(ctx context.Context, messages []types.Message, model string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", oc.provider),
		attribute.String("llm.model", model),
	)

	promptChars := 0
	for _, m := range messages {
		promptChars += len(m.Content)
	}
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", oc.provider,
		"model", model,
		"prompt_chars", promptChars,
	)

	op := logger.StartOperation(ctx, "llm_complete", "provider", oc.provider)
	text, err := oc.completer.Complete(op.Context(), messages, model)
	if err != nil {
		span.RecordError(err)
		op.EndWithError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", oc.provider,
			"model", model,
		)
		return "", err
	}
	op.End("reply_chars", len(text))

	logger.InfoSkip(ctx, 1, "Completion received",
		"provider", oc.provider,
		"model", model,
		"reply_chars", len(text),
	)
	return text, nil
}
