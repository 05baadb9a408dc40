package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

// SignalStore - хранилище сигналов. Реализуется репозиторием поверх
// PostgreSQL, пул использует его для переживания перезапусков.
type SignalStore interface {
	SaveSignal(ctx context.Context, s *models.Signal) (int, error)
	DeleteSignal(ctx context.Context, id int) error
	UpdateSignalStatus(ctx context.Context, id int, status string) error
	LoadPendingSignals(ctx context.Context) ([]*models.Signal, error)
}

// PoolConfig - параметры пула сигналов
type PoolConfig struct {
	// Время жизни сигнала с момента приёма
	TTL time.Duration

	// Максимальное количество ожидающих сигналов
	Capacity int

	// Интервал фоновой зачистки просроченных сигналов
	SweepInterval time.Duration
}

// ResonancePool - пул ожидающих торговых сигналов.
//
// Держит не более одного PENDING-сигнала на пару символ+стратегия:
// повторный сигнал по тому же ключу перезаписывает предыдущий.
// Сигналы живут TTL с момента приёма; просроченные убираются фоновой
// зачисткой и лениво при чтении. При переполнении вытесняется самый
// старый сигнал.
type ResonancePool struct {
	mu      sync.Mutex
	signals map[string]*models.Signal // ключ - Signal.Key()
	closed  bool

	cfg    PoolConfig
	store  SignalStore
	logger *zap.Logger
}

// NewResonancePool создает пустой пул
func NewResonancePool(cfg PoolConfig, store SignalStore, logger *zap.Logger) *ResonancePool {
	return &ResonancePool{
		signals: make(map[string]*models.Signal),
		cfg:     cfg,
		store:   store,
		logger:  logger,
	}
}

// Restore загружает ожидающие сигналы из хранилища после перезапуска.
// Просроченные за время простоя сигналы сразу помечаются EXPIRED.
func (p *ResonancePool) Restore(ctx context.Context) error {
	pending, err := p.store.LoadPendingSignals(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	restored := 0
	p.mu.Lock()
	for _, s := range pending {
		if s.Expired(now) {
			p.expireLocked(ctx, s)
			continue
		}
		p.signals[s.Key()] = s
		restored++
	}
	p.mu.Unlock()

	SignalPoolSize.Set(float64(restored))
	p.logger.Info("signal pool restored",
		zap.Int("restored", restored),
		zap.Int("expired", len(pending)-restored))
	return nil
}

// Add принимает сигнал в пул.
//
// Сигнал по уже занятому ключу перезаписывает предыдущий (старый
// удаляется из хранилища). При переполнении вытесняется самый старый.
func (p *ResonancePool) Add(ctx context.Context, s *models.Signal) error {
	now := time.Now()
	s.Status = models.SignalStatusPending
	s.CreatedAt = now
	s.ExpiresAt = now.Add(p.cfg.TTL)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	if prev, ok := p.signals[s.Key()]; ok {
		p.logger.Debug("signal overwritten",
			zap.String("key", s.Key()),
			zap.Int("prev_id", prev.ID))
		if err := p.store.DeleteSignal(ctx, prev.ID); err != nil {
			p.logger.Warn("failed to delete overwritten signal", zap.Error(err))
		}
	} else if len(p.signals) >= p.cfg.Capacity {
		p.evictOldestLocked(ctx)
	}

	id, err := p.store.SaveSignal(ctx, s)
	if err != nil {
		return err
	}
	s.ID = id
	p.signals[s.Key()] = s

	SignalsReceived.WithLabelValues(s.Strategy).Inc()
	SignalPoolSize.Set(float64(len(p.signals)))
	return nil
}

// Take извлекает сигнал по ключу для исполнения и помечает его EXECUTED.
// Просроченный сигнал не выдаётся.
func (p *ResonancePool) Take(ctx context.Context, symbol, strategy string) (*models.Signal, bool) {
	key := symbol + ":" + strategy

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.signals[key]
	if !ok {
		return nil, false
	}
	delete(p.signals, key)
	SignalPoolSize.Set(float64(len(p.signals)))

	if s.Expired(time.Now()) {
		p.expireLocked(ctx, s)
		return nil, false
	}

	s.Status = models.SignalStatusExecuted
	if err := p.store.UpdateSignalStatus(ctx, s.ID, models.SignalStatusExecuted); err != nil {
		p.logger.Warn("failed to mark signal executed", zap.Error(err))
	}
	return s, true
}

// Peek возвращает копию живого сигнала без извлечения из пула
func (p *ResonancePool) Peek(symbol, strategy string) (*models.Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.signals[symbol+":"+strategy]
	if !ok || s.Expired(time.Now()) {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Pending возвращает копии всех живых сигналов
func (p *ResonancePool) Pending() []models.Signal {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Signal, 0, len(p.signals))
	for _, s := range p.signals {
		if !s.Expired(now) {
			out = append(out, *s)
		}
	}
	return out
}

// Snapshot возвращает живые сигналы и их количество для статусного API.
// Просроченные записи вычищаются как побочный эффект чтения, не дожидаясь
// фоновой зачистки.
func (p *ResonancePool) Snapshot() ([]models.Signal, int) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Signal, 0, len(p.signals))
	for key, s := range p.signals {
		if s.Expired(now) {
			delete(p.signals, key)
			p.expireLocked(context.Background(), s)
			continue
		}
		out = append(out, *s)
	}
	SignalPoolSize.Set(float64(len(p.signals)))
	return out, len(out)
}

// Remove убирает сигнал по ключу без исполнения (отмена стратегией)
func (p *ResonancePool) Remove(ctx context.Context, symbol, strategy string) bool {
	key := symbol + ":" + strategy
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.signals[key]
	if !ok {
		return false
	}
	delete(p.signals, key)
	SignalPoolSize.Set(float64(len(p.signals)))
	if err := p.store.DeleteSignal(ctx, s.ID); err != nil {
		p.logger.Warn("failed to delete removed signal", zap.Error(err))
	}
	return true
}

// Resonance возвращает количество живых сигналов по символу.
// Несколько стратегий, указывающих на один актив, усиливают друг друга.
func (p *ResonancePool) Resonance(symbol string) int {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.signals {
		if s.Symbol == symbol && !s.Expired(now) {
			n++
		}
	}
	return n
}

// Size возвращает текущее количество сигналов в пуле
func (p *ResonancePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

// Run запускает фоновую зачистку просроченных сигналов
func (p *ResonancePool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.closed = true
			p.mu.Unlock()
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep убирает просроченные сигналы
func (p *ResonancePool) sweep(ctx context.Context) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, s := range p.signals {
		if s.Expired(now) {
			delete(p.signals, key)
			p.expireLocked(ctx, s)
		}
	}
	SignalPoolSize.Set(float64(len(p.signals)))
}

func (p *ResonancePool) evictOldestLocked(ctx context.Context) {
	var oldestKey string
	var oldest *models.Signal
	for key, s := range p.signals {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldestKey, oldest = key, s
		}
	}
	if oldest == nil {
		return
	}
	delete(p.signals, oldestKey)
	p.expireLocked(ctx, oldest)
	p.logger.Warn("signal pool full, oldest evicted",
		zap.String("key", oldestKey),
		zap.Int("capacity", p.cfg.Capacity))
}

func (p *ResonancePool) expireLocked(ctx context.Context, s *models.Signal) {
	SignalsExpired.Inc()
	if err := p.store.UpdateSignalStatus(ctx, s.ID, models.SignalStatusExpired); err != nil {
		p.logger.Warn("failed to mark signal expired", zap.Error(err))
	}
}
