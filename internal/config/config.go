package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Engine   EngineConfig
	Alerts   AlertsConfig
	Pool     PoolConfig
	Macro    MacroConfig
	Breaker  BreakerConfig
	Scoring  ScoringConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// Ключ AES-256 для шифрования API ключей биржи в хранилище настроек
	EncryptionKey string

	// bcrypt-хеш токена для входящего webhook сигналов.
	// Пустое значение = проверка токена отключена (только для разработки).
	WebhookTokenHash string
}

// ExchangeConfig - доступ к бирже (live) и параметры симулятора
type ExchangeConfig struct {
	Name    string
	BaseURL string

	// API ключи хранятся зашифрованными AES-256-GCM (base64),
	// расшифровываются ключом SecurityConfig.EncryptionKey при старте
	APIKey    string
	APISecret string

	// Лимит REST запросов к бирже
	RateLimit float64
	Burst     float64

	// Параметры симулятора для RUN_MODE=simulate
	SimBalance  float64
	SimSlippage float64
}

// EngineConfig - параметры жизненного цикла ордеров и позиций
type EngineConfig struct {
	// Режим исполнения: "simulate" или "live". Выбирается один раз при старте.
	RunMode string

	// Подача ордера: линейный backoff delay = RetryBase * attempt
	MaxRetries int
	RetryBase  time.Duration

	// Надзор за ордером
	OrderTimeout time.Duration // жёсткий дедлайн от момента подачи
	PollInterval time.Duration // период опроса статуса

	// Пороги уведомлений
	SlippageThreshold float64 // % отклонения цены исполнения
	MinPartialFill    float64 // доля исполнения для PARTIAL_FILL

	// Дневной лимит убытка в % от капитала
	MaxDailyLoss float64

	// Период фонового прохода исполнителя по пулу сигналов
	ExecInterval time.Duration
}

// AlertsConfig - настройки диспетчера оповещений
type AlertsConfig struct {
	WebhookURL  string
	HistorySize int // ёмкость кольцевого буфера истории
	QueueSize   int // буфер канала доставки (Trigger никогда не блокирует)
}

// PoolConfig - настройки пула резонансных сигналов
type PoolConfig struct {
	TTL           time.Duration // время жизни PENDING сигнала
	Capacity      int           // максимум сигналов в пуле
	SweepInterval time.Duration // период фоновой очистки
}

// MacroConfig - настройки подтверждения макро-сезона
type MacroConfig struct {
	ConfirmThreshold int     // одинаковых классификаций подряд для смены сезона
	BullScore        float64 // композитная оценка >= порога -> BULL
	BearScore        float64 // композитная оценка <= порога -> BEAR
}

// BreakerConfig - пороги аварийного предохранителя
type BreakerConfig struct {
	// Fuse A: обвал цены ИЛИ всплеск объёма
	PriceDrop4h   float64 // падение за 4 часа (доля, 0.15 = 15%)
	VolumeSpike1h float64 // объём за час против среднего за 24ч (множитель)

	// Fuse B: перегрев - все три должны превысить пороги
	FundingLimit     float64 // средний funding rate за 3 дня
	SentimentLimit   float64 // средний sentiment за 3 дня
	WhaleInflowLimit float64 // чистый приток на биржи за 3 дня, USD

	// Новостной предохранитель: 2 CRITICAL заголовка в скользящем окне
	HeadlineWindow time.Duration

	CheckInterval time.Duration // период фоновой проверки
}

// ScoringConfig - настройки клиента сервиса оценки уверенности
type ScoringConfig struct {
	URL     string
	Timeout time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "sentinel"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
			WebhookTokenHash: getEnv("WEBHOOK_TOKEN_HASH", ""),
		},
		Exchange: ExchangeConfig{
			Name:        getEnv("EXCHANGE_NAME", "bybit"),
			BaseURL:     getEnv("EXCHANGE_BASE_URL", ""),
			APIKey:      getEnv("EXCHANGE_API_KEY", ""),
			APISecret:   getEnv("EXCHANGE_API_SECRET", ""),
			RateLimit:   getEnvAsFloat("EXCHANGE_RATE_LIMIT", 10),
			Burst:       getEnvAsFloat("EXCHANGE_RATE_BURST", 20),
			SimBalance:  getEnvAsFloat("SIM_BALANCE", 100_000),
			SimSlippage: getEnvAsFloat("SIM_SLIPPAGE", 0.0005),
		},
		Engine: EngineConfig{
			RunMode:           getEnv("RUN_MODE", "simulate"),
			MaxRetries:        getEnvAsInt("API_RETRY_COUNT", 3),
			RetryBase:         getEnvAsDuration("API_RETRY_BASE", 1*time.Second),
			OrderTimeout:      getEnvAsDuration("ORDER_TIMEOUT", 30*time.Second),
			PollInterval:      getEnvAsDuration("ORDER_CHECK_INTERVAL", 1*time.Second),
			SlippageThreshold: getEnvAsFloat("SLIPPAGE_THRESHOLD", 0.5),
			MinPartialFill:    getEnvAsFloat("MIN_PARTIAL_FILL", 0.2),
			MaxDailyLoss:      getEnvAsFloat("MAX_DAILY_LOSS", 5.0),
			ExecInterval:      getEnvAsDuration("SIGNAL_EXEC_INTERVAL", 15*time.Second),
		},
		Alerts: AlertsConfig{
			WebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
			HistorySize: getEnvAsInt("ALERT_HISTORY_SIZE", 256),
			QueueSize:   getEnvAsInt("ALERT_QUEUE_SIZE", 128),
		},
		Pool: PoolConfig{
			TTL:           getEnvAsDuration("SIGNAL_TTL", 300*time.Second),
			Capacity:      getEnvAsInt("SIGNAL_POOL_CAPACITY", 128),
			SweepInterval: getEnvAsDuration("SIGNAL_SWEEP_INTERVAL", 30*time.Second),
		},
		Macro: MacroConfig{
			ConfirmThreshold: getEnvAsInt("MACRO_CONFIRM_THRESHOLD", 3),
			BullScore:        getEnvAsFloat("MACRO_BULL_SCORE", 0.7),
			BearScore:        getEnvAsFloat("MACRO_BEAR_SCORE", 0.3),
		},
		Breaker: BreakerConfig{
			PriceDrop4h:      getEnvAsFloat("BREAKER_PRICE_DROP_4H", 0.15),
			VolumeSpike1h:    getEnvAsFloat("BREAKER_VOLUME_SPIKE_1H", 5.0),
			FundingLimit:     getEnvAsFloat("BREAKER_FUNDING_LIMIT", 0.1),
			SentimentLimit:   getEnvAsFloat("BREAKER_SENTIMENT_LIMIT", 85.0),
			WhaleInflowLimit: getEnvAsFloat("BREAKER_WHALE_INFLOW_LIMIT", 500_000_000),
			HeadlineWindow:   getEnvAsDuration("BREAKER_HEADLINE_WINDOW", 30*time.Minute),
			CheckInterval:    getEnvAsDuration("BREAKER_CHECK_INTERVAL", 1*time.Minute),
		},
		Scoring: ScoringConfig{
			URL:     getEnv("SCORING_URL", ""),
			Timeout: getEnvAsDuration("SCORING_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей биржи
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// В live режиме webhook обязан быть защищён токеном
	if c.Engine.RunMode == "live" && c.Security.WebhookTokenHash == "" {
		return fmt.Errorf("WEBHOOK_TOKEN_HASH is required in live mode")
	}

	if c.Engine.RunMode == "live" {
		if c.Exchange.BaseURL == "" || c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("EXCHANGE_BASE_URL, EXCHANGE_API_KEY and EXCHANGE_API_SECRET are required in live mode")
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	mode := strings.ToLower(c.Engine.RunMode)
	if mode != "simulate" && mode != "live" {
		return fmt.Errorf("RUN_MODE must be 'simulate' or 'live', got %q", c.Engine.RunMode)
	}

	if c.Engine.MaxRetries < 1 || c.Engine.MaxRetries > 10 {
		return fmt.Errorf("API_RETRY_COUNT must be between 1 and 10, got %d", c.Engine.MaxRetries)
	}

	if c.Engine.OrderTimeout < 10*time.Second || c.Engine.OrderTimeout > 300*time.Second {
		return fmt.Errorf("ORDER_TIMEOUT must be between 10s and 300s, got %v", c.Engine.OrderTimeout)
	}

	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("ORDER_CHECK_INTERVAL must be positive, got %v", c.Engine.PollInterval)
	}

	if c.Engine.SlippageThreshold < 0.1 || c.Engine.SlippageThreshold > 2.0 {
		return fmt.Errorf("SLIPPAGE_THRESHOLD must be between 0.1 and 2.0, got %v", c.Engine.SlippageThreshold)
	}

	if c.Engine.MinPartialFill < 0.1 || c.Engine.MinPartialFill > 0.9 {
		return fmt.Errorf("MIN_PARTIAL_FILL must be between 0.1 and 0.9, got %v", c.Engine.MinPartialFill)
	}

	if c.Engine.MaxDailyLoss <= 0 {
		return fmt.Errorf("MAX_DAILY_LOSS must be positive, got %v", c.Engine.MaxDailyLoss)
	}

	if c.Pool.TTL < 60*time.Second || c.Pool.TTL > 3600*time.Second {
		return fmt.Errorf("SIGNAL_TTL must be between 60s and 3600s, got %v", c.Pool.TTL)
	}

	if c.Pool.Capacity < 1 {
		return fmt.Errorf("SIGNAL_POOL_CAPACITY must be at least 1, got %d", c.Pool.Capacity)
	}

	if c.Macro.ConfirmThreshold < 1 {
		return fmt.Errorf("MACRO_CONFIRM_THRESHOLD must be at least 1, got %d", c.Macro.ConfirmThreshold)
	}

	if c.Macro.BearScore >= c.Macro.BullScore {
		return fmt.Errorf("MACRO_BEAR_SCORE (%v) must be below MACRO_BULL_SCORE (%v)",
			c.Macro.BearScore, c.Macro.BullScore)
	}

	if c.Breaker.PriceDrop4h <= 0 || c.Breaker.PriceDrop4h >= 1 {
		return fmt.Errorf("BREAKER_PRICE_DROP_4H must be in (0, 1), got %v", c.Breaker.PriceDrop4h)
	}

	if c.Breaker.VolumeSpike1h <= 1 {
		return fmt.Errorf("BREAKER_VOLUME_SPIKE_1H must exceed 1, got %v", c.Breaker.VolumeSpike1h)
	}

	if c.Breaker.HeadlineWindow <= 0 {
		return fmt.Errorf("BREAKER_HEADLINE_WINDOW must be positive, got %v", c.Breaker.HeadlineWindow)
	}

	if c.Alerts.HistorySize < 1 {
		return fmt.Errorf("ALERT_HISTORY_SIZE must be at least 1, got %d", c.Alerts.HistorySize)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
