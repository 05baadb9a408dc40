package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
	"sentinel/pkg/utils"
)

// Ключи персистентного состояния макро-машины в хранилище настроек
const (
	settingMacroPriorRaw    = "macro_prior_raw"
	settingMacroConsecutive = "macro_consecutive_count"
	settingMacroConfirmed   = "macro_confirmed_season"
)

// SettingsStore - персистентное key/value хранилище (PostgreSQL)
type SettingsStore interface {
	Get(ctx context.Context, key, defaultValue string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MacroIndicators - нормализованные входы взвешенной оценки сезона.
// Каждый индикатор приводится к [0, 1], где 1 - максимально бычье значение.
type MacroIndicators struct {
	PriceTrend float64 // положение цены относительно долгосрочного тренда
	OnChain    float64 // он-чейн активность (аккумуляция/дистрибуция)
	Funding    float64 // нормализованная ставка финансирования
}

// Веса индикаторов композитной оценки
const (
	weightPriceTrend = 0.4
	weightOnChain    = 0.3
	weightFunding    = 0.3
)

// MacroConfig - параметры подтверждения макро-сезона
type MacroConfig struct {
	// Количество одинаковых сырых оценок подряд для подтверждения
	ConfirmThreshold int

	// Композитная оценка >= BullScore даёт сырой BULL
	BullScore float64

	// Композитная оценка <= BearScore даёт сырой BEAR
	BearScore float64
}

// SeasonFlipHandler вызывается при смене подтвержденного сезона
type SeasonFlipHandler func(ctx context.Context, from, to, directive string)

// MacroMachine - машина подтверждения макро-сезона.
//
// Одиночная сырая оценка не меняет подтвержденный сезон: нужно
// ConfirmThreshold одинаковых оценок подряд. Любая оценка, отличная
// от предыдущей, сбрасывает счётчик. Пока подтверждения нет, машина
// держит NEUTRAL. Состояние переживает перезапуск через хранилище
// настроек.
type MacroMachine struct {
	mu        sync.Mutex
	state     models.MacroState
	confirmed string

	cfg      MacroConfig
	settings SettingsStore
	notifier Notifier
	onFlip   SeasonFlipHandler
	logger   *zap.Logger
}

// NewMacroMachine создает машину в состоянии NEUTRAL
func NewMacroMachine(cfg MacroConfig, settings SettingsStore, notifier Notifier, logger *zap.Logger) *MacroMachine {
	return &MacroMachine{
		state: models.MacroState{
			Raw:       models.SeasonNeutral,
			Confirmed: models.SeasonNeutral,
		},
		confirmed: models.SeasonNeutral,
		cfg:       cfg,
		settings:  settings,
		notifier:  notifier,
		logger:    logger,
	}
}

// OnSeasonFlip регистрирует обработчик смены подтвержденного сезона
func (m *MacroMachine) OnSeasonFlip(h SeasonFlipHandler) {
	m.mu.Lock()
	m.onFlip = h
	m.mu.Unlock()
}

// Restore загружает состояние подтверждения из хранилища настроек
func (m *MacroMachine) Restore(ctx context.Context) error {
	raw, err := m.settings.Get(ctx, settingMacroPriorRaw, models.SeasonNeutral)
	if err != nil {
		return fmt.Errorf("failed to restore macro state: %w", err)
	}
	countStr, err := m.settings.Get(ctx, settingMacroConsecutive, "0")
	if err != nil {
		return fmt.Errorf("failed to restore macro state: %w", err)
	}
	confirmed, err := m.settings.Get(ctx, settingMacroConfirmed, models.SeasonNeutral)
	if err != nil {
		return fmt.Errorf("failed to restore macro state: %w", err)
	}

	count, convErr := strconv.Atoi(countStr)
	if convErr != nil || count < 0 {
		count = 0
	}
	if !models.ValidSeason(raw) {
		raw = models.SeasonNeutral
	}
	if !models.ValidSeason(confirmed) {
		confirmed = models.SeasonNeutral
	}

	m.mu.Lock()
	m.state = models.MacroState{
		Raw:              raw,
		Confirmed:        confirmed,
		ConsecutiveCount: count,
		UpdatedAt:        time.Now(),
	}
	m.confirmed = confirmed
	m.mu.Unlock()

	m.logger.Info("macro state restored",
		zap.String("raw", raw),
		zap.String("confirmed", confirmed),
		zap.Int("consecutive", count))
	return nil
}

// Classify превращает индикаторы в сырую оценку сезона
func (m *MacroMachine) Classify(ind MacroIndicators) string {
	score := weightPriceTrend*utils.Clamp(ind.PriceTrend, 0, 1) +
		weightOnChain*utils.Clamp(ind.OnChain, 0, 1) +
		weightFunding*utils.Clamp(ind.Funding, 0, 1)

	switch {
	case score >= m.cfg.BullScore:
		return models.SeasonBull
	case score <= m.cfg.BearScore:
		return models.SeasonBear
	default:
		return models.SeasonNeutral
	}
}

// Evaluate принимает сырую оценку и возвращает подтвержденный сезон.
//
// Оценка, совпадающая с предыдущей, наращивает счётчик; отличная -
// сбрасывает его в 1. Подтверждение наступает на ConfirmThreshold-й
// одинаковой оценке подряд; пока порог не набран, подтвержденный
// сезон - NEUTRAL, прежнее подтверждение не удерживается. Смена
// подтвержденного сезона поднимает директиву ликвидации: в BULL
// закрываются шорты, в BEAR - лонги.
func (m *MacroMachine) Evaluate(ctx context.Context, raw string) (string, error) {
	if !models.ValidSeason(raw) {
		return "", fmt.Errorf("unknown season classification: %q", raw)
	}

	m.mu.Lock()
	if raw == m.state.Raw {
		m.state.ConsecutiveCount++
	} else {
		m.state.Raw = raw
		m.state.ConsecutiveCount = 1
	}
	m.state.UpdatedAt = time.Now()

	prev := m.confirmed
	if m.state.ConsecutiveCount >= m.cfg.ConfirmThreshold {
		m.confirmed = raw
	} else {
		// Порог не набран: прежний подтвержденный сезон не удерживается
		m.confirmed = models.SeasonNeutral
	}
	m.state.Confirmed = m.confirmed
	flipped := m.confirmed != prev
	confirmed := m.confirmed
	onFlip := m.onFlip
	state := m.state
	m.mu.Unlock()

	if err := m.persist(ctx, state); err != nil {
		m.logger.Warn("failed to persist macro state", zap.Error(err))
	}

	if flipped {
		MacroSeason.Set(seasonGauge(confirmed))
		directive := flipDirective(confirmed)
		m.logger.Info("macro season flip",
			zap.String("from", prev),
			zap.String("to", confirmed),
			zap.String("directive", directive))
		if directive != "" {
			m.notifier.Trigger(models.AlertTypeLiquidation, models.SeverityEmergency,
				fmt.Sprintf("Смена макро-сезона %s → %s: директива %s", prev, confirmed, directive),
				map[string]interface{}{"from": prev, "to": confirmed, "directive": directive})
		}
		if onFlip != nil {
			onFlip(ctx, prev, confirmed, directive)
		}
	}
	return confirmed, nil
}

// State возвращает копию текущего состояния машины
func (m *MacroMachine) State() models.MacroState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Confirmed возвращает подтвержденный сезон
func (m *MacroMachine) Confirmed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmed
}

func (m *MacroMachine) persist(ctx context.Context, s models.MacroState) error {
	if err := m.settings.Set(ctx, settingMacroPriorRaw, s.Raw); err != nil {
		return err
	}
	if err := m.settings.Set(ctx, settingMacroConsecutive, strconv.Itoa(s.ConsecutiveCount)); err != nil {
		return err
	}
	return m.settings.Set(ctx, settingMacroConfirmed, s.Confirmed)
}

// flipDirective возвращает директиву ликвидации для нового сезона
func flipDirective(season string) string {
	switch season {
	case models.SeasonBull:
		return models.DirectiveLiquidateShorts
	case models.SeasonBear:
		return models.DirectiveLiquidateLongs
	default:
		return ""
	}
}

func seasonGauge(season string) float64 {
	switch season {
	case models.SeasonBull:
		return 1
	case models.SeasonBear:
		return -1
	default:
		return 0
	}
}
