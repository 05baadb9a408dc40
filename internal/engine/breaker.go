package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

// Ключи персистентного состояния предохранителя
const (
	settingBreakerTripped = "breaker_tripped"
	settingBreakerReason  = "breaker_reason"
)

// Причины срабатывания предохранителя
const (
	FuseFlashCrash = "FLASH_CRASH" // обвал цены или всплеск объёма
	FuseOverheat   = "OVERHEAT"    // перегрев рынка по трём метрикам сразу
	FuseHeadline   = "HEADLINE"    // серия критических новостей
	FuseManual     = "MANUAL"      // ручная остановка оператором
)

// Уровни новостных событий
const (
	HeadlineCritical = "CRITICAL"
	HeadlineWarning  = "WARNING"
)

// MarketSnapshot - срез рыночных метрик для проверки предохранителей
type MarketSnapshot struct {
	Symbol string

	// Fuse A: резкие движения
	Change4h    float64 // относительное изменение цены за 4 часа
	Volume1h    float64 // объём за последний час
	AvgVolume1h float64 // средний часовой объём за 24 часа

	// Fuse B: перегрев (средние за 3 дня)
	FundingRate float64 // средняя ставка финансирования
	Sentiment   float64 // индекс настроений
	WhaleInflow float64 // чистый приток на биржи от крупных кошельков
}

// BreakerConfig - пороги срабатывания
type BreakerConfig struct {
	// Fuse A: падение цены за 4 часа (положительное значение, доля)
	PriceDrop4h float64

	// Fuse A: множитель всплеска часового объёма к среднему
	VolumeSpike1h float64

	// Fuse B: пороги перегрева (срабатывает только совпадение всех трёх)
	FundingLimit     float64
	SentimentLimit   float64
	WhaleInflowLimit float64

	// Окно подсчёта критических новостей
	HeadlineWindow time.Duration

	// Интервал фоновой проверки
	CheckInterval time.Duration
}

// HaltFunc останавливает торговлю при срабатывании
type HaltFunc func(reason string) error

// Breaker - предохранитель от рыночного обвала.
//
// Три независимых предохранителя: FLASH_CRASH (обвал цены ИЛИ всплеск
// объёма), OVERHEAT (перегрев по ставке финансирования И настроениям
// И притоку китов одновременно), HEADLINE (две критические новости
// в скользящем окне). Срабатывание останавливает торговлю до ручного
// сброса и переживает перезапуск через хранилище настроек.
type Breaker struct {
	mu        sync.Mutex
	tripped   bool
	reason    string
	trippedAt time.Time
	headlines []time.Time // времена критических новостей в окне

	cfg      BreakerConfig
	settings SettingsStore
	notifier Notifier
	halt     HaltFunc
	logger   *zap.Logger
}

// NewBreaker создает предохранитель в рабочем состоянии
func NewBreaker(cfg BreakerConfig, settings SettingsStore, notifier Notifier, halt HaltFunc, logger *zap.Logger) *Breaker {
	return &Breaker{
		cfg:      cfg,
		settings: settings,
		notifier: notifier,
		halt:     halt,
		logger:   logger,
	}
}

// Restore загружает состояние после перезапуска. Сработавший до
// остановки предохранитель остаётся сработавшим: после сбоя посреди
// обвала торговля не возобновляется молча.
func (b *Breaker) Restore(ctx context.Context) error {
	tripped, err := b.settings.Get(ctx, settingBreakerTripped, "false")
	if err != nil {
		return fmt.Errorf("failed to restore breaker state: %w", err)
	}
	if tripped != "true" {
		return nil
	}
	reason, err := b.settings.Get(ctx, settingBreakerReason, "")
	if err != nil {
		return fmt.Errorf("failed to restore breaker state: %w", err)
	}

	b.mu.Lock()
	b.tripped = true
	b.reason = reason
	b.trippedAt = time.Now()
	b.mu.Unlock()

	BreakerState.Set(1)
	b.logger.Warn("breaker restored in tripped state, trading stays halted",
		zap.String("reason", reason))
	if err := b.halt("breaker tripped before restart: " + reason); err != nil {
		b.logger.Error("failed to halt on restored trip", zap.Error(err))
	}
	return nil
}

// Tripped возвращает true если предохранитель сработал
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Reason возвращает причину последнего срабатывания
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// CheckFuses проверяет рыночный срез по предохранителям A и B.
// Срабатывание останавливает торговлю.
func (b *Breaker) CheckFuses(ctx context.Context, snap MarketSnapshot) (bool, string) {
	if b.Tripped() {
		return true, b.Reason()
	}

	// Fuse A: достаточно одного из условий
	if -snap.Change4h >= b.cfg.PriceDrop4h {
		reason := fmt.Sprintf("%s: цена %s упала на %.1f%% за 4 часа",
			FuseFlashCrash, snap.Symbol, -snap.Change4h*100)
		b.Trip(ctx, FuseFlashCrash, reason)
		return true, reason
	}
	if snap.AvgVolume1h > 0 && snap.Volume1h >= b.cfg.VolumeSpike1h*snap.AvgVolume1h {
		reason := fmt.Sprintf("%s: часовой объём %s превысил средний в %.1f раза",
			FuseFlashCrash, snap.Symbol, snap.Volume1h/snap.AvgVolume1h)
		b.Trip(ctx, FuseFlashCrash, reason)
		return true, reason
	}

	// Fuse B: только совпадение всех трёх признаков перегрева
	if snap.FundingRate >= b.cfg.FundingLimit &&
		snap.Sentiment >= b.cfg.SentimentLimit &&
		snap.WhaleInflow >= b.cfg.WhaleInflowLimit {
		reason := fmt.Sprintf("%s: funding %.3f, sentiment %.0f, whale inflow %.0f",
			FuseOverheat, snap.FundingRate, snap.Sentiment, snap.WhaleInflow)
		b.Trip(ctx, FuseOverheat, reason)
		return true, reason
	}

	return false, ""
}

// ReportHeadline регистрирует новостное событие. Две критические
// новости в скользящем окне срабатывают предохранитель; одиночная
// только логируется.
func (b *Breaker) ReportHeadline(ctx context.Context, level, summary string) {
	if level != HeadlineCritical {
		return
	}

	now := time.Now()
	b.mu.Lock()
	// Окно подрезается при каждом событии
	kept := b.headlines[:0]
	for _, t := range b.headlines {
		if now.Sub(t) <= b.cfg.HeadlineWindow {
			kept = append(kept, t)
		}
	}
	b.headlines = append(kept, now)
	count := len(b.headlines)
	b.mu.Unlock()

	if count >= 2 {
		b.Trip(ctx, FuseHeadline, fmt.Sprintf("%s: %d критических новости за %s (последняя: %s)",
			FuseHeadline, count, b.cfg.HeadlineWindow, summary))
		return
	}
	b.logger.Warn("critical headline registered",
		zap.String("summary", summary),
		zap.Int("in_window", count))
}

// Trip срабатывает предохранитель: останавливает торговлю, персистит
// состояние и поднимает алерт. Повторное срабатывание - no-op.
func (b *Breaker) Trip(ctx context.Context, cause, reason string) {
	b.mu.Lock()
	if b.tripped {
		b.mu.Unlock()
		return
	}
	b.tripped = true
	b.reason = reason
	b.trippedAt = time.Now()
	b.mu.Unlock()

	BreakerTrips.WithLabelValues(cause).Inc()
	BreakerState.Set(1)
	b.logger.Error("circuit breaker tripped",
		zap.String("cause", cause),
		zap.String("reason", reason))

	if err := b.halt(reason); err != nil {
		b.logger.Error("failed to halt trading on trip", zap.Error(err))
	}
	if err := b.settings.Set(ctx, settingBreakerTripped, "true"); err != nil {
		b.logger.Error("failed to persist breaker trip", zap.Error(err))
	}
	if err := b.settings.Set(ctx, settingBreakerReason, reason); err != nil {
		b.logger.Error("failed to persist breaker reason", zap.Error(err))
	}

	b.notifier.Trigger(models.AlertTypeCircuitBreaker, models.SeverityEmergency,
		"🚨 Сработал предохранитель: "+reason,
		map[string]interface{}{"cause": cause})
}

// Reset возвращает предохранитель в рабочее состояние. Только вручную.
func (b *Breaker) Reset(ctx context.Context) error {
	b.mu.Lock()
	if !b.tripped {
		b.mu.Unlock()
		return ErrBreakerNotTripped
	}
	b.tripped = false
	b.reason = ""
	b.headlines = nil
	b.mu.Unlock()

	BreakerState.Set(0)
	if err := b.settings.Set(ctx, settingBreakerTripped, "false"); err != nil {
		return fmt.Errorf("failed to persist breaker reset: %w", err)
	}
	if err := b.settings.Set(ctx, settingBreakerReason, ""); err != nil {
		return fmt.Errorf("failed to persist breaker reset: %w", err)
	}
	b.logger.Info("circuit breaker manually reset")
	return nil
}

// SnapshotProvider отдает свежий рыночный срез для фоновой проверки
type SnapshotProvider func(ctx context.Context) (MarketSnapshot, error)

// Run запускает фоновую проверку предохранителей
func (b *Breaker) Run(ctx context.Context, provider SnapshotProvider) {
	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.Tripped() {
				continue
			}
			snap, err := provider(ctx)
			if err != nil {
				b.logger.Warn("breaker snapshot unavailable", zap.Error(err))
				continue
			}
			b.CheckFuses(ctx, snap)
		}
	}
}
