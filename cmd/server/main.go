package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentinel/internal/alert"
	"sentinel/internal/api"
	"sentinel/internal/config"
	"sentinel/internal/engine"
	"sentinel/internal/exchange"
	"sentinel/internal/models"
	"sentinel/internal/repository"
	"sentinel/internal/scoring"
	"sentinel/internal/telemetry"
	"sentinel/pkg/crypto"
	"sentinel/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	zlog.Info("Connected to database",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	settingsRepo := repository.NewSettingsRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	signalRepo := repository.NewSignalRepository(db)

	// Биржевой клиент: live или simulate, выбирается один раз при старте
	mode, err := exchangeMode(cfg)
	if err != nil {
		zlog.Fatal("Invalid run mode", zap.Error(err))
	}
	client, err := buildExchange(cfg, mode)
	if err != nil {
		zlog.Fatal("Failed to init exchange client", zap.Error(err))
	}
	defer client.Close()

	zlog.Info("Exchange client ready",
		zap.String("exchange", client.Name()),
		zap.String("mode", mode.String()))

	// Диспетчер оповещений и телеметрия
	sender := alert.NewWebhookSender(cfg.Alerts.WebhookURL, 15*time.Second)
	dispatcher := alert.NewDispatcher(sender, alert.DispatcherConfig{
		HistorySize: cfg.Alerts.HistorySize,
		QueueSize:   cfg.Alerts.QueueSize,
	}, zlog)

	hub := telemetry.NewHub(zlog)

	// Каждый алерт уходит и во внешний webhook, и ws-подписчикам
	notifier := &fanoutNotifier{dispatcher: dispatcher, hub: hub}

	// Ядро движка
	state := engine.NewStateMachine(zlog)
	state.Subscribe(func(from, to, reason string) {
		hub.BroadcastStateChange(from, to, reason)
	})

	book := engine.NewPositionBook(tradeRepo, zlog)

	eng := engine.NewEngine(client, mode, state, book, tradeRepo, notifier, engine.Config{
		MaxRetries:        cfg.Engine.MaxRetries,
		RetryBase:         cfg.Engine.RetryBase,
		OrderTimeout:      cfg.Engine.OrderTimeout,
		PollInterval:      cfg.Engine.PollInterval,
		SlippageThreshold: cfg.Engine.SlippageThreshold,
		MinPartialFill:    cfg.Engine.MinPartialFill,
		MaxDailyLoss:      cfg.Engine.MaxDailyLoss,
	}, zlog)
	eng.OnOrderUpdate(func(o models.Order) {
		hub.BroadcastOrderUpdate(&o)
	})

	pool := engine.NewResonancePool(engine.PoolConfig{
		TTL:           cfg.Pool.TTL,
		Capacity:      cfg.Pool.Capacity,
		SweepInterval: cfg.Pool.SweepInterval,
	}, signalRepo, zlog)

	macro := engine.NewMacroMachine(engine.MacroConfig{
		ConfirmThreshold: cfg.Macro.ConfirmThreshold,
		BullScore:        cfg.Macro.BullScore,
		BearScore:        cfg.Macro.BearScore,
	}, settingsRepo, notifier, zlog)
	macro.OnSeasonFlip(func(ctx context.Context, from, to, directive string) {
		hub.BroadcastMacroUpdate(from, to, directive)

		var filter func(models.Position) bool
		switch directive {
		case models.DirectiveLiquidateShorts:
			filter = func(p models.Position) bool { return p.IsShort() }
		case models.DirectiveLiquidateLongs:
			filter = func(p models.Position) bool { return p.IsLong() }
		default:
			return
		}
		if err := eng.Liquidate(ctx, filter, fmt.Sprintf("macro season flip %s -> %s", from, to)); err != nil {
			zlog.Error("season flip liquidation failed",
				zap.String("directive", directive), zap.Error(err))
		}
	})

	breaker := engine.NewBreaker(engine.BreakerConfig{
		PriceDrop4h:      cfg.Breaker.PriceDrop4h,
		VolumeSpike1h:    cfg.Breaker.VolumeSpike1h,
		FundingLimit:     cfg.Breaker.FundingLimit,
		SentimentLimit:   cfg.Breaker.SentimentLimit,
		WhaleInflowLimit: cfg.Breaker.WhaleInflowLimit,
		HeadlineWindow:   cfg.Breaker.HeadlineWindow,
		CheckInterval:    cfg.Breaker.CheckInterval,
	}, settingsRepo, notifier, func(reason string) error {
		hub.BroadcastBreakerUpdate(true, "BREAKER", reason)
		return eng.Halt(reason)
	}, zlog)

	scorer := scoring.NewClient(cfg.Scoring.URL, cfg.Scoring.Timeout, notifier, zlog)
	executor := engine.NewExecutor(pool, eng, scorer, macro, zlog)

	// Восстановление после перезапуска. Порядок важен: в ACTIVE переходим
	// до breaker.Restore, т.к. восстановленный trip снова глушит торговлю
	// (переход ACTIVE -> HALTED), а из STARTING глушить нечего.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := book.Restore(startupCtx); err != nil {
		zlog.Fatal("Failed to restore position book", zap.Error(err))
	}
	if err := pool.Restore(startupCtx); err != nil {
		zlog.Warn("Failed to restore signal pool", zap.Error(err))
	}
	if err := macro.Restore(startupCtx); err != nil {
		zlog.Warn("Failed to restore macro state", zap.Error(err))
	}
	if err := state.Transition(models.StateActive, "startup complete"); err != nil {
		zlog.Fatal("Failed to activate", zap.Error(err))
	}
	if err := breaker.Restore(startupCtx); err != nil {
		zlog.Warn("Failed to restore breaker state", zap.Error(err))
	}
	cancelStartup()

	// Фоновые воркеры
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go hub.Run()
	go dispatcher.Run(runCtx)
	go pool.Run(runCtx)
	go breaker.Run(runCtx, marketSnapshotProvider(settingsRepo))
	go executor.Run(runCtx, cfg.Engine.ExecInterval)
	go eng.RunHealthCheck(runCtx, time.Minute)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		Mode:             mode.String(),
		Engine:           eng,
		State:            state,
		Pool:             pool,
		Executor:         executor,
		PoolSize:         pool,
		Breaker:          breaker,
		Macro:            macro,
		Alerts:           dispatcher,
		Book:             book,
		Scoring:          scorer,
		Settings:         settingsRepo,
		Hub:              hub,
		WebhookTokenHash: cfg.Security.WebhookTokenHash,
		Logger:           zlog,
	}

	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		zlog.Info("Starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("Server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Fatal("Server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")

	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	// Дожидаемся супервизоров активных ордеров, затем гасим телеметрию
	eng.Wait()
	hub.Stop()

	zlog.Info("Server exited")
}

// fanoutNotifier дублирует каждое оповещение: асинхронная доставка
// во внешний webhook через диспетчер и немедленный broadcast ws-клиентам.
type fanoutNotifier struct {
	dispatcher *alert.Dispatcher
	hub        *telemetry.Hub
}

func (n *fanoutNotifier) Trigger(alertType, severity, message string, meta map[string]interface{}) {
	n.dispatcher.Trigger(alertType, severity, message, meta)
	n.hub.BroadcastAlert(&models.Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
	})
}

func exchangeMode(cfg *config.Config) (exchange.RunMode, error) {
	return exchange.ParseRunMode(cfg.Engine.RunMode)
}

// buildExchange собирает биржевой клиент под выбранный режим.
//
// В simulate поднимается биржа в памяти с предзаполненными тикерами
// основных пар, в live - REST клиент с ключами из конфигурации.
func buildExchange(cfg *config.Config, mode exchange.RunMode) (exchange.Client, error) {
	if mode == exchange.ModeLive {
		// Ключи биржи хранятся зашифрованными (AES-256-GCM, base64)
		key := []byte(cfg.Security.EncryptionKey)
		apiKey, err := crypto.Decrypt(cfg.Exchange.APIKey, key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt exchange API key: %w", err)
		}
		apiSecret, err := crypto.Decrypt(cfg.Exchange.APISecret, key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt exchange API secret: %w", err)
		}
		return exchange.NewLive(exchange.LiveConfig{
			Name:      cfg.Exchange.Name,
			BaseURL:   cfg.Exchange.BaseURL,
			APIKey:    apiKey,
			APISecret: apiSecret,
			RateLimit: cfg.Exchange.RateLimit,
			Burst:     cfg.Exchange.Burst,
			HTTP:      exchange.DefaultHTTPClientConfig(),
		})
	}

	sim := exchange.NewSimulator(exchange.SimulatorConfig{
		Balance:  cfg.Exchange.SimBalance,
		Slippage: cfg.Exchange.SimSlippage,
	})

	// Стартовые цены, чтобы движок мог торговать до первого SetPrice
	seed := map[string]float64{
		"BTCUSDT": 65000,
		"ETHUSDT": 3200,
		"SOLUSDT": 150,
	}
	now := time.Now()
	for symbol, price := range seed {
		sim.SetTicker(symbol, exchange.Ticker{
			BidPrice:  price * 0.9995,
			AskPrice:  price * 1.0005,
			LastPrice: price,
			Timestamp: now,
		})
	}
	return sim, nil
}

// marketSnapshotProvider строит рыночный снимок для предохранителя из
// хранилища настроек. Индикаторы пишет внешний аналитический пайплайн
// через PUT /api/v1/settings/{key}; отсутствующий ключ читается как 0,
// то есть не триггерит ни один предохранитель.
func marketSnapshotProvider(settings *repository.SettingsRepository) engine.SnapshotProvider {
	return func(ctx context.Context) (engine.MarketSnapshot, error) {
		snap := engine.MarketSnapshot{Symbol: "BTCUSDT"}

		fields := []struct {
			key string
			dst *float64
		}{
			{"market_change_4h", &snap.Change4h},
			{"market_volume_1h", &snap.Volume1h},
			{"market_avg_volume_1h", &snap.AvgVolume1h},
			{"market_funding_3d", &snap.FundingRate},
			{"market_sentiment_3d", &snap.Sentiment},
			{"market_whale_inflow_3d", &snap.WhaleInflow},
		}
		for _, f := range fields {
			raw, err := settings.Get(ctx, f.key, "0")
			if err != nil {
				return snap, fmt.Errorf("failed to read %s: %w", f.key, err)
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return snap, fmt.Errorf("malformed %s=%q: %w", f.key, raw, err)
			}
			*f.dst = v
		}
		return snap, nil
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
