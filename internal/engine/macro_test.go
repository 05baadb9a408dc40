package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

func testMacro(settings SettingsStore, notifier Notifier) *MacroMachine {
	return NewMacroMachine(MacroConfig{
		ConfirmThreshold: 3,
		BullScore:        0.7,
		BearScore:        0.3,
	}, settings, notifier, zap.NewNop())
}

func TestMacroThreeConsecutiveConfirm(t *testing.T) {
	m := testMacro(newFakeSettings(), &fakeNotifier{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		confirmed, err := m.Evaluate(ctx, models.SeasonBull)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if confirmed != models.SeasonNeutral {
			t.Fatalf("confirmed after %d evaluations = %s, want NEUTRAL", i+1, confirmed)
		}
	}

	confirmed, err := m.Evaluate(ctx, models.SeasonBull)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if confirmed != models.SeasonBull {
		t.Errorf("confirmed = %s, want BULL after three consecutive", confirmed)
	}
}

func TestMacroInterruptedSequenceResets(t *testing.T) {
	m := testMacro(newFakeSettings(), &fakeNotifier{})
	ctx := context.Background()

	// BULL, BEAR, BULL: счётчик сбрасывается, подтверждения нет
	for _, raw := range []string{models.SeasonBull, models.SeasonBear, models.SeasonBull} {
		confirmed, err := m.Evaluate(ctx, raw)
		if err != nil {
			t.Fatalf("Evaluate(%s): %v", raw, err)
		}
		if confirmed != models.SeasonNeutral {
			t.Errorf("confirmed = %s after %s, want NEUTRAL", confirmed, raw)
		}
	}
	if m.State().ConsecutiveCount != 1 {
		t.Errorf("consecutive = %d, want 1", m.State().ConsecutiveCount)
	}
}

func TestMacroConfirmedDropsWhenRawMovesAway(t *testing.T) {
	m := testMacro(newFakeSettings(), &fakeNotifier{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Evaluate(ctx, models.SeasonBull)
	}
	if m.Confirmed() != models.SeasonBull {
		t.Fatalf("confirmed = %s, want BULL", m.Confirmed())
	}

	// Одиночный BEAR после подтвержденного BULL: прежний сезон
	// не удерживается, размер позиций стробируется как NEUTRAL
	confirmed, err := m.Evaluate(ctx, models.SeasonBear)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if confirmed != models.SeasonNeutral {
		t.Errorf("confirmed after raw moved away = %s, want NEUTRAL", confirmed)
	}
	if m.State().Confirmed != models.SeasonNeutral {
		t.Errorf("state.Confirmed = %s, want NEUTRAL", m.State().Confirmed)
	}
}

func TestMacroFlipDirective(t *testing.T) {
	notifier := &fakeNotifier{}
	m := testMacro(newFakeSettings(), notifier)
	ctx := context.Background()

	var gotFrom, gotTo, gotDirective string
	m.OnSeasonFlip(func(ctx context.Context, from, to, directive string) {
		gotFrom, gotTo, gotDirective = from, to, directive
	})

	for i := 0; i < 3; i++ {
		m.Evaluate(ctx, models.SeasonBull)
	}

	if gotFrom != models.SeasonNeutral || gotTo != models.SeasonBull {
		t.Errorf("flip %s -> %s, want NEUTRAL -> BULL", gotFrom, gotTo)
	}
	if gotDirective != models.DirectiveLiquidateShorts {
		t.Errorf("directive = %s, want LIQUIDATE_ALL_SHORTS", gotDirective)
	}
	if notifier.count(models.AlertTypeLiquidation) != 1 {
		t.Error("LIQUIDATION alert not raised on flip")
	}

	// Переход в BEAR требует трёх новых оценок и закрывает лонги
	for i := 0; i < 3; i++ {
		m.Evaluate(ctx, models.SeasonBear)
	}
	if gotDirective != models.DirectiveLiquidateLongs {
		t.Errorf("directive = %s, want LIQUIDATE_ALL_LONGS", gotDirective)
	}
}

func TestMacroNoFlipNoDirective(t *testing.T) {
	notifier := &fakeNotifier{}
	m := testMacro(newFakeSettings(), notifier)
	ctx := context.Background()

	// Подтверждение того же сезона директивы не поднимает
	for i := 0; i < 6; i++ {
		m.Evaluate(ctx, models.SeasonNeutral)
	}
	if notifier.count(models.AlertTypeLiquidation) != 0 {
		t.Error("directive raised without a season flip")
	}
}

func TestMacroUnknownClassification(t *testing.T) {
	m := testMacro(newFakeSettings(), &fakeNotifier{})
	if _, err := m.Evaluate(context.Background(), "SIDEWAYS"); err == nil {
		t.Error("expected error for unknown classification")
	}
}

func TestMacroPersistenceSurvivesRestart(t *testing.T) {
	settings := newFakeSettings()
	ctx := context.Background()

	first := testMacro(settings, &fakeNotifier{})
	first.Evaluate(ctx, models.SeasonBull)
	first.Evaluate(ctx, models.SeasonBull)

	second := testMacro(settings, &fakeNotifier{})
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	// Третья одинаковая оценка после перезапуска подтверждает сезон
	confirmed, err := second.Evaluate(ctx, models.SeasonBull)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if confirmed != models.SeasonBull {
		t.Errorf("confirmed = %s, want BULL (count restored)", confirmed)
	}
}

func TestMacroClassify(t *testing.T) {
	m := testMacro(newFakeSettings(), &fakeNotifier{})

	tests := []struct {
		name     string
		ind      MacroIndicators
		expected string
	}{
		{"all bullish", MacroIndicators{PriceTrend: 1, OnChain: 1, Funding: 1}, models.SeasonBull},
		{"all bearish", MacroIndicators{PriceTrend: 0, OnChain: 0, Funding: 0}, models.SeasonBear},
		{"mixed", MacroIndicators{PriceTrend: 0.5, OnChain: 0.5, Funding: 0.5}, models.SeasonNeutral},
		{"just above bull gate", MacroIndicators{PriceTrend: 0.75, OnChain: 0.75, Funding: 0.75}, models.SeasonBull},
		{"just below bear gate", MacroIndicators{PriceTrend: 0.25, OnChain: 0.25, Funding: 0.25}, models.SeasonBear},
		{"clamped above", MacroIndicators{PriceTrend: 5, OnChain: 5, Funding: 5}, models.SeasonBull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Classify(tt.ind); got != tt.expected {
				t.Errorf("Classify(%+v) = %s, want %s", tt.ind, got, tt.expected)
			}
		})
	}
}
