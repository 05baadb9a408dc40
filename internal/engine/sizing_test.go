package engine

import (
	"math"
	"testing"

	"sentinel/internal/models"
)

func TestConfidenceWeight(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		expected   float64
	}{
		{"max conviction boost", 0.95, 1.05},
		{"boundary 0.90", 0.90, 1.05},
		{"full weight", 0.80, 1.0},
		{"boundary 0.75", 0.75, 1.0},
		{"reduced weight", 0.65, 0.6},
		{"boundary 0.60", 0.60, 0.6},
		{"veto below 0.60", 0.59, 0},
		{"neutral fallback vetoes", 0.5, 0},
		{"clamped above one", 1.5, 1.05},
		{"clamped below zero", -0.2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfidenceWeight(tt.confidence); got != tt.expected {
				t.Errorf("ConfidenceWeight(%v) = %v, want %v", tt.confidence, got, tt.expected)
			}
		})
	}
}

func TestRiskCoefficient(t *testing.T) {
	tests := []struct {
		name     string
		drawdown float64
		expected float64
	}{
		{"no drawdown", 0, 1.0},
		{"negative drawdown treated as none", -0.02, 1.0},
		{"half of limit", 0.075, 0.5},
		{"at limit floors", 0.15, 0.1},
		{"beyond limit floors", 0.30, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RiskCoefficient(tt.drawdown)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RiskCoefficient(%v) = %v, want %v", tt.drawdown, got, tt.expected)
			}
		})
	}
}

func TestResonanceMultiplier(t *testing.T) {
	tests := []struct {
		signals  int
		expected float64
	}{
		{0, 0},
		{1, 1.0},
		{2, 1.3},
		{3, 1.5},
		{5, 1.5}, // выше трёх отдача не растёт
	}

	for _, tt := range tests {
		if got := ResonanceMultiplier(tt.signals); got != tt.expected {
			t.Errorf("ResonanceMultiplier(%d) = %v, want %v", tt.signals, got, tt.expected)
		}
	}
}

func TestTargetValue(t *testing.T) {
	// BULL BTC: 10000 × 0.40 × 1.2 × 1.0 × 1.0 × 1.0 × 2.0 = 9600
	got := TargetValue(SizingInput{
		Equity:     10_000,
		Symbol:     "BTC/USDT",
		Season:     models.SeasonBull,
		Confidence: 0.80,
		Drawdown:   0,
		Resonance:  1,
	})
	if math.Abs(got-9_600) > 1e-6 {
		t.Errorf("TargetValue = %v, want 9600", got)
	}
}

func TestTargetValueVetoes(t *testing.T) {
	tests := []struct {
		name string
		in   SizingInput
	}{
		{
			"symbol outside season allocation",
			SizingInput{Equity: 10_000, Symbol: "SOL/USDT", Season: models.SeasonBear, Confidence: 0.9, Resonance: 1},
		},
		{
			"low confidence",
			SizingInput{Equity: 10_000, Symbol: "BTC/USDT", Season: models.SeasonBull, Confidence: 0.5, Resonance: 1},
		},
		{
			"no signals",
			SizingInput{Equity: 10_000, Symbol: "BTC/USDT", Season: models.SeasonBull, Confidence: 0.9, Resonance: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetValue(tt.in); got != 0 {
				t.Errorf("TargetValue = %v, want 0 (veto)", got)
			}
		})
	}
}

func TestTargetValueDrawdownReduces(t *testing.T) {
	base := SizingInput{
		Equity: 10_000, Symbol: "BTC/USDT", Season: models.SeasonBull,
		Confidence: 0.80, Resonance: 1,
	}
	healthy := TargetValue(base)

	base.Drawdown = 0.075
	reduced := TargetValue(base)

	if math.Abs(reduced-healthy*0.5) > 1e-6 {
		t.Errorf("drawdown sizing = %v, want %v", reduced, healthy*0.5)
	}
}
