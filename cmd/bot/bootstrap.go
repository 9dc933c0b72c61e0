package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"llm-crypto-trader/internal/engine"
	"llm-crypto-trader/internal/engine/engineobs"
	"llm-crypto-trader/internal/eod"
	"llm-crypto-trader/internal/eod/eodobs"
	"llm-crypto-trader/internal/events"
	"llm-crypto-trader/internal/exchange"
	"llm-crypto-trader/internal/interfaces"
	"llm-crypto-trader/internal/llm"
	"llm-crypto-trader/internal/logger"
	"llm-crypto-trader/internal/news"
	"llm-crypto-trader/internal/notify"
	"llm-crypto-trader/internal/server"
	"llm-crypto-trader/internal/store"
	"llm-crypto-trader/internal/strategy"
	"llm-crypto-trader/internal/strategy/strategyobs"
	"llm-crypto-trader/internal/trace"
	"llm-crypto-trader/internal/tradelog"
	"llm-crypto-trader/internal/types"
)

const (
	eodCheckInterval = time.Minute
	shutdownTimeout  = 30 * time.Second
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

func loadConfig() (*store.Config, error) {
	ctx := context.Background()
	cfg, err := store.LoadConfig(configPath())
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath())
		return nil, err
	}
	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated", "paper_balance", cfg.Exchange.PaperBalance)
	}
	return cfg, nil
}

func provideBus(lc fx.Lifecycle) *events.Bus {
	bus := events.NewBus(events.DefaultBuffer)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			bus.Close()
			return nil
		},
	})
	return bus
}

func provideTradeStore(lc fx.Lifecycle, cfg *store.Config) (interfaces.TradeStore, error) {
	ctx := context.Background()
	ts, closeFn, err := tradelog.Open(ctx, tradelog.Options{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		RedisURL:    cfg.Secrets.RedisURL,
		DatabaseURL: cfg.Secrets.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("open trade store: %w", err)
	}
	logger.Info(ctx, "Trade store ready", "backend", cfg.Storage.Backend)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return ts, nil
}

func provideJournal(cfg *store.Config) *tradelog.Journal {
	return tradelog.NewJournal(cfg.Logs.Dir)
}

// provideNews returns nil when headlines are disabled.
func provideNews(cfg *store.Config) interfaces.NewsSource {
	if !cfg.News.Enabled {
		return nil
	}
	nc := news.DefaultServiceConfig()
	nc.MaxArticles = cfg.News.MaxArticles
	nc.CacheDuration = time.Duration(cfg.News.CacheMinutes) * time.Minute
	return news.NewService(nc)
}

// provideRegistry wires the per-start engine builder. Each start gets a
// fresh exchange client and strategy for the requested configuration.
func provideRegistry(cfg *store.Config, ts interfaces.TradeStore, bus *events.Bus, journal *tradelog.Journal, headlines interfaces.NewsSource) *engine.Registry {
	return engine.NewRegistry(func(ec types.EngineConfig) (interfaces.Engine, error) {
		ex, err := exchange.New(exchange.Options{
			Name:              ec.Exchange,
			APIKey:            cfg.Secrets.BinanceAPIKey,
			SecretKey:         cfg.Secrets.BinanceSecretKey,
			RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
			DryRun:            cfg.DryRun(),
			Quote:             ec.Quote,
			PaperBalance:      cfg.Exchange.PaperBalance,
			FeeRate:           ec.FeeRate,
		})
		if err != nil {
			return nil, err
		}

		var completer interfaces.Completer
		if ec.Strategy == types.StrategyLLM {
			completer, err = llm.New(llm.Options{
				Provider:    cfg.LLM.Provider,
				APIKey:      cfg.LLMAPIKey(),
				BaseURL:     cfg.LLM.BaseURL,
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
				Timeout:     cfg.LLMTimeout(),
			})
			if err != nil {
				return nil, err
			}
		}
		strat, err := strategy.New(ec.Strategy, strategy.Deps{Completer: completer, Model: ec.Model})
		if err != nil {
			return nil, err
		}

		eng, err := engine.New(ec, engine.Deps{
			Exchange: ex,
			Strategy: strategyobs.Wrap(strat),
			Store:    ts,
			Events:   bus,
			Journal:  journal,
			News:     headlines,
		})
		if err != nil {
			return nil, err
		}
		return engineobs.Wrap(eng), nil
	})
}

func provideSummarizer(cfg *store.Config, ts interfaces.TradeStore) (interfaces.EodSummarizer, error) {
	cutoff, err := eod.ParseCutoff(cfg.EOD.Cutoff)
	if err != nil {
		return nil, err
	}
	return eodobs.Wrap(eod.NewSummarizer(ts, eod.Options{Dir: cfg.Logs.Dir, Cutoff: cutoff})), nil
}

func provideServer(cfg *store.Config, registry *engine.Registry, ts interfaces.TradeStore, bus *events.Bus) (*server.Server, error) {
	return server.NewServer(server.Config{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		Release:     os.Getenv("GIN_MODE") != "debug",
	}, server.Deps{
		Engines:  registry,
		Store:    ts,
		Bus:      bus,
		Defaults: cfg.EngineConfig(),
		Validate: store.ValidateEngineConfig,
	})
}

// compressOldLogs gzips journal and EOD files past the retention window.
func compressOldLogs(cfg *store.Config, journal *tradelog.Journal) {
	if err := journal.CompressOlder(cfg.Logs.RetentionDays); err != nil {
		logger.Warn(context.Background(), "Failed to compress old logs", "error", err)
	}
}

func runServer(lc fx.Lifecycle, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.ErrorWithErr(context.Background(), "HTTP server failed", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func runTelegram(lc fx.Lifecycle, cfg *store.Config, bus *events.Bus) {
	if !cfg.Telegram.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			tg, err := notify.NewTelegram(cfg.Secrets.TelegramToken, cfg.Secrets.TelegramChatID, "")
			if err != nil {
				logger.Warn(ctx, "Telegram notifications disabled", "error", err)
				return nil
			}
			notify.Forward(ctx, bus, tg)
			logger.Info(ctx, "Telegram notifications enabled", "chat_id", cfg.Secrets.TelegramChatID)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// runEOD writes the daily summary once the cutoff passes and again on shutdown.
func runEOD(lc fx.Lifecycle, cfg *store.Config, summarizer interfaces.EodSummarizer, bus *events.Bus) {
	if !cfg.EOD.Enabled {
		return
	}
	scheduler := eod.NewScheduler(summarizer, bus, eodCheckInterval)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				scheduler.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-done
			_, err := scheduler.Flush(stopCtx)
			return err
		},
	})
}

// autoStartEngine starts the configured engine with the process when
// engine.auto_start is set. Any running engine is stopped on shutdown.
func autoStartEngine(lc fx.Lifecycle, cfg *store.Config, registry *engine.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Engine.AutoStart {
				return nil
			}
			if _, err := registry.Start(ctx, cfg.EngineConfig()); err != nil {
				return fmt.Errorf("auto start engine: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if !registry.IsRunning() {
				return nil
			}
			stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return registry.Stop(stopCtx)
		},
	})
}
