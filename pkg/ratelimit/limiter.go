package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - token bucket для ограничения частоты запросов к API биржи.
//
// Ведро пополняется со скоростью rate токенов в секунду до ёмкости
// burst, каждый запрос потребляет один токен. Burst покрывает всплеск
// параллельных подач (ордер + опрос статуса + баланс), постоянный
// поток сглаживается до rate.
type RateLimiter struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter создаёт limiter с полным ведром.
// rate <= 0 трактуется как 10 req/sec, burst <= 0 - как 2x rate.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 10
	}
	if burst < rate {
		burst = rate * 2
	}
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// refill начисляет токены за прошедшее время. Вызывается под mu.
func (l *RateLimiter) refill() {
	now := time.Now()
	l.tokens += now.Sub(l.lastRefill).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста.
// Каждый исходящий запрос к бирже проходит через Wait: при исчерпании
// лимита запрос ждёт, а не улетает в HTTP 429.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow потребляет токен без блокировки. false - лимит исчерпан.
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return true
	}
	return false
}

// Tokens возвращает текущий остаток токенов (для мониторинга)
func (l *RateLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Rate возвращает скорость пополнения, токенов в секунду
func (l *RateLimiter) Rate() float64 { return l.rate }

// Burst возвращает ёмкость ведра
func (l *RateLimiter) Burst() float64 { return l.burst }
