package ratelimit

import (
	"context"
	"testing"
	"time"
)

// ============ RateLimiter Tests ============

func TestRateLimiterBurst(t *testing.T) {
	l := NewRateLimiter(1, 5)

	// Полное ведро: burst запросов проходит без ожидания
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("request %d denied within burst capacity", i+1)
		}
	}
	if l.Allow() {
		t.Error("request beyond burst must be denied")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	l := NewRateLimiter(100, 100)
	for l.Allow() {
	}

	// 100 токенов/сек: за 50мс накапливается несколько токенов
	time.Sleep(50 * time.Millisecond)
	if !l.Allow() {
		t.Error("token not refilled after waiting")
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	l := NewRateLimiter(0.1, 1)
	if !l.Allow() {
		t.Fatal("first token must be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Следующий токен через ~10 секунд: Wait обязан выйти по контексту
	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait = %v, want context.DeadlineExceeded", err)
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)
	if l.Rate() != 10 {
		t.Errorf("rate = %v, want default 10", l.Rate())
	}
	if l.Burst() != 20 {
		t.Errorf("burst = %v, want 2x rate", l.Burst())
	}
}
