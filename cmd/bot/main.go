package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"

	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = trace.Shutdown(context.Background())
	}()

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			loadConfig,
			provideBus,
			provideTradeStore,
			provideJournal,
			provideNews,
			provideRegistry,
			provideSummarizer,
			provideServer,
		),
		fx.Invoke(
			compressOldLogs,
			runServer,
			runTelegram,
			runEOD,
			autoStartEngine,
		),
	)

	ctx := context.Background()
	if err := app.Err(); err != nil {
		logger.ErrorWithErr(ctx, "Failed to assemble application", err)
		os.Exit(1)
	}
	app.Run()
	logger.Info(ctx, "Bot stopped")
}
