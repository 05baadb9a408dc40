// Package integration contains integration tests for the sentinel trading engine.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repositories, concurrent access
//
// Tests require a reachable Postgres instance and skip themselves otherwise.
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"sentinel/internal/alert"
	"sentinel/internal/api"
	"sentinel/internal/engine"
	"sentinel/internal/exchange"
	"sentinel/internal/models"
	"sentinel/internal/repository"
	"sentinel/internal/scoring"
	"sentinel/internal/telemetry"
)

// TestConfig contains database configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates the full stack needed for integration testing
type TestServer struct {
	DB         *sql.DB
	Router     *mux.Router
	Server     *httptest.Server
	Hub        *telemetry.Hub
	Sim        *exchange.Simulator
	State      *engine.StateMachine
	Engine     *engine.Engine
	Pool       *engine.ResonancePool
	Macro      *engine.MacroMachine
	Breaker    *engine.Breaker
	Dispatcher *alert.Dispatcher
	Repos      *TestRepositories
	Cleanup    func()
}

// TestRepositories contains repository instances for testing
type TestRepositories struct {
	Settings *repository.SettingsRepository
	Trade    *repository.TradeRepository
	Signal   *repository.SignalRepository
}

// stubSender swallows alert embeds so tests never call external webhooks
type stubSender struct{}

func (stubSender) Send(ctx context.Context, embed alert.Embed) error { return nil }

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "sentinel_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components wired
// the way cmd/server does: simulator exchange, live dispatcher with a stub
// sender, real repositories against the test database.
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}
	cleanupTestTables(db)

	logger := zap.NewNop()

	repos := &TestRepositories{
		Settings: repository.NewSettingsRepository(db),
		Trade:    repository.NewTradeRepository(db),
		Signal:   repository.NewSignalRepository(db),
	}

	sim := exchange.NewSimulator(exchange.SimulatorConfig{Balance: 100_000, Slippage: 0})
	sim.SetTicker("BTCUSDT", exchange.Ticker{LastPrice: 50_000, BidPrice: 49_990, AskPrice: 50_010, Timestamp: time.Now()})
	sim.SetTicker("ETHUSDT", exchange.Ticker{LastPrice: 3_000, BidPrice: 2_999, AskPrice: 3_001, Timestamp: time.Now()})

	dispatcher := alert.NewDispatcher(stubSender{}, alert.DispatcherConfig{HistorySize: 64, QueueSize: 64}, logger)

	hub := telemetry.NewHub(logger)

	state := engine.NewStateMachine(logger)
	state.Subscribe(func(from, to, reason string) {
		hub.BroadcastStateChange(from, to, reason)
	})

	book := engine.NewPositionBook(repos.Trade, logger)

	eng := engine.NewEngine(sim, exchange.ModeSimulate, state, book, repos.Trade, dispatcher, engine.Config{
		MaxRetries:        2,
		RetryBase:         10 * time.Millisecond,
		OrderTimeout:      5 * time.Second,
		PollInterval:      20 * time.Millisecond,
		SlippageThreshold: 1.0,
		MinPartialFill:    0.05,
		MaxDailyLoss:      10.0,
	}, logger)
	eng.OnOrderUpdate(func(o models.Order) {
		hub.BroadcastOrderUpdate(&o)
	})

	pool := engine.NewResonancePool(engine.PoolConfig{
		TTL:           5 * time.Minute,
		Capacity:      128,
		SweepInterval: time.Second,
	}, repos.Signal, logger)

	macro := engine.NewMacroMachine(engine.MacroConfig{
		ConfirmThreshold: 3,
		BullScore:        0.7,
		BearScore:        0.3,
	}, repos.Settings, dispatcher, logger)

	breaker := engine.NewBreaker(engine.BreakerConfig{
		PriceDrop4h:      0.15,
		VolumeSpike1h:    5,
		FundingLimit:     0.01,
		SentimentLimit:   0.8,
		WhaleInflowLimit: 1e9,
		HeadlineWindow:   30 * time.Minute,
		CheckInterval:    time.Hour,
	}, repos.Settings, dispatcher, eng.Halt, logger)

	scoreSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"confidence":0.82}`))
	}))
	scorer := scoring.NewClient(scoreSrv.URL, time.Second, dispatcher, logger)

	executor := engine.NewExecutor(pool, eng, scorer, macro, logger)

	if err := state.Transition(models.StateActive, "integration test startup"); err != nil {
		t.Fatalf("failed to activate state machine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run()
	go dispatcher.Run(ctx)
	go pool.Run(ctx)

	deps := &api.Dependencies{
		Mode:     exchange.ModeSimulate.String(),
		Engine:   eng,
		State:    state,
		Pool:     pool,
		PoolSize: pool,
		Executor: executor,
		Breaker:  breaker,
		Macro:    macro,
		Alerts:   dispatcher,
		Book:     book,
		Scoring:  scorer,
		Settings: repos.Settings,
		Hub:      hub,
		Logger:   logger,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		scoreSrv.Close()
		cancel()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:         db,
		Router:     router,
		Server:     server,
		Hub:        hub,
		Sim:        sim,
		State:      state,
		Engine:     eng,
		Pool:       pool,
		Macro:      macro,
		Breaker:    breaker,
		Dispatcher: dispatcher,
		Repos:      repos,
		Cleanup:    cleanup,
	}
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key VARCHAR(100) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			strategy VARCHAR(50) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			strategy VARCHAR(50) DEFAULT '',
			quantity DECIMAL(20, 8) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8),
			pnl DECIMAL(20, 2),
			status VARCHAR(20) NOT NULL,
			opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	for _, table := range []string{"trades", "signals", "settings"} {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
