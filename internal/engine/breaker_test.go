package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

type haltRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (h *haltRecorder) halt(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
	return nil
}

func (h *haltRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reasons)
}

func testBreaker(settings SettingsStore, notifier Notifier, halt HaltFunc) *Breaker {
	return NewBreaker(BreakerConfig{
		PriceDrop4h:      0.15,
		VolumeSpike1h:    5.0,
		FundingLimit:     0.1,
		SentimentLimit:   85.0,
		WhaleInflowLimit: 500_000_000,
		HeadlineWindow:   30 * time.Minute,
		CheckInterval:    time.Minute,
	}, settings, notifier, halt, zap.NewNop())
}

func TestBreakerFlashCrashEitherCondition(t *testing.T) {
	tests := []struct {
		name string
		snap MarketSnapshot
		trip bool
	}{
		{
			"price drop alone trips",
			MarketSnapshot{Symbol: "BTC/USDT", Change4h: -0.16, Volume1h: 100, AvgVolume1h: 100},
			true,
		},
		{
			"volume spike alone trips",
			MarketSnapshot{Symbol: "BTC/USDT", Change4h: -0.01, Volume1h: 600, AvgVolume1h: 100},
			true,
		},
		{
			"both below thresholds",
			MarketSnapshot{Symbol: "BTC/USDT", Change4h: -0.10, Volume1h: 400, AvgVolume1h: 100},
			false,
		},
		{
			"price rise never trips",
			MarketSnapshot{Symbol: "BTC/USDT", Change4h: 0.20, Volume1h: 100, AvgVolume1h: 100},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &haltRecorder{}
			b := testBreaker(newFakeSettings(), &fakeNotifier{}, rec.halt)

			tripped, _ := b.CheckFuses(context.Background(), tt.snap)
			if tripped != tt.trip {
				t.Errorf("tripped = %v, want %v", tripped, tt.trip)
			}
			wantHalts := 0
			if tt.trip {
				wantHalts = 1
			}
			if rec.count() != wantHalts {
				t.Errorf("halt calls = %d, want %d", rec.count(), wantHalts)
			}
		})
	}
}

func TestBreakerOverheatAllThreeRequired(t *testing.T) {
	tests := []struct {
		name string
		snap MarketSnapshot
		trip bool
	}{
		{
			"all three above",
			MarketSnapshot{FundingRate: 0.12, Sentiment: 90, WhaleInflow: 600_000_000},
			true,
		},
		{
			"funding only",
			MarketSnapshot{FundingRate: 0.12, Sentiment: 50, WhaleInflow: 0},
			false,
		},
		{
			"funding and sentiment without whales",
			MarketSnapshot{FundingRate: 0.12, Sentiment: 90, WhaleInflow: 100_000_000},
			false,
		},
		{
			"sentiment and whales without funding",
			MarketSnapshot{FundingRate: 0.05, Sentiment: 90, WhaleInflow: 600_000_000},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBreaker(newFakeSettings(), &fakeNotifier{}, (&haltRecorder{}).halt)
			tripped, _ := b.CheckFuses(context.Background(), tt.snap)
			if tripped != tt.trip {
				t.Errorf("tripped = %v, want %v", tripped, tt.trip)
			}
		})
	}
}

func TestBreakerHeadlineTwoInWindow(t *testing.T) {
	b := testBreaker(newFakeSettings(), &fakeNotifier{}, (&haltRecorder{}).halt)
	ctx := context.Background()

	// Одиночная критическая новость не срабатывает
	b.ReportHeadline(ctx, HeadlineCritical, "exchange hack rumor")
	if b.Tripped() {
		t.Fatal("tripped on a single critical headline")
	}

	// Некритические события не считаются
	b.ReportHeadline(ctx, HeadlineWarning, "minor outage")
	if b.Tripped() {
		t.Fatal("tripped on a warning headline")
	}

	b.ReportHeadline(ctx, HeadlineCritical, "regulator ban confirmed")
	if !b.Tripped() {
		t.Fatal("two critical headlines in window must trip")
	}
}

func TestBreakerTripPersistsAndRestores(t *testing.T) {
	settings := newFakeSettings()
	notifier := &fakeNotifier{}
	ctx := context.Background()

	first := testBreaker(settings, notifier, (&haltRecorder{}).halt)
	first.Trip(ctx, FuseFlashCrash, "test crash")

	if notifier.count(models.AlertTypeCircuitBreaker) != 1 {
		t.Error("CIRCUIT_BREAKER alert not raised")
	}

	// После перезапуска торговля остаётся остановленной
	rec := &haltRecorder{}
	second := testBreaker(settings, &fakeNotifier{}, rec.halt)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !second.Tripped() {
		t.Error("tripped state lost across restart")
	}
	if rec.count() != 1 {
		t.Error("restored trip did not halt trading")
	}
}

func TestBreakerDoubleTripNoop(t *testing.T) {
	rec := &haltRecorder{}
	notifier := &fakeNotifier{}
	b := testBreaker(newFakeSettings(), notifier, rec.halt)
	ctx := context.Background()

	b.Trip(ctx, FuseFlashCrash, "first")
	b.Trip(ctx, FuseOverheat, "second")

	if rec.count() != 1 {
		t.Errorf("halt calls = %d, want 1", rec.count())
	}
	if b.Reason() != "first" {
		t.Errorf("reason = %q, want the first trip preserved", b.Reason())
	}
}

func TestBreakerManualReset(t *testing.T) {
	settings := newFakeSettings()
	b := testBreaker(settings, &fakeNotifier{}, (&haltRecorder{}).halt)
	ctx := context.Background()

	if err := b.Reset(ctx); !errors.Is(err, ErrBreakerNotTripped) {
		t.Errorf("reset of armed breaker: %v, want ErrBreakerNotTripped", err)
	}

	b.Trip(ctx, FuseHeadline, "news storm")
	if err := b.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.Tripped() {
		t.Error("breaker still tripped after reset")
	}

	// Сброс персистится: рестарт не возвращает срабатывание
	fresh := testBreaker(settings, &fakeNotifier{}, (&haltRecorder{}).halt)
	if err := fresh.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if fresh.Tripped() {
		t.Error("reset breaker restored as tripped")
	}
}

func TestBreakerSkipsChecksWhileTripped(t *testing.T) {
	b := testBreaker(newFakeSettings(), &fakeNotifier{}, (&haltRecorder{}).halt)
	ctx := context.Background()

	b.Trip(ctx, FuseManual, "operator stop")

	tripped, reason := b.CheckFuses(ctx, MarketSnapshot{Change4h: -0.5})
	if !tripped {
		t.Error("CheckFuses must report tripped state")
	}
	if reason != "operator stop" {
		t.Errorf("reason = %q, want original trip reason", reason)
	}
}
