package engine

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		allowed bool
	}{
		{"starting to active", models.StateStarting, models.StateActive, true},
		{"starting to emergency", models.StateStarting, models.StateEmergency, true},
		{"starting to paused", models.StateStarting, models.StatePaused, false},
		{"active to paused", models.StateActive, models.StatePaused, true},
		{"active to halted", models.StateActive, models.StateHalted, true},
		{"paused to active", models.StatePaused, models.StateActive, true},
		{"halted to active", models.StateHalted, models.StateActive, true},
		{"halted to paused", models.StateHalted, models.StatePaused, false},
		{"emergency is terminal", models.StateEmergency, models.StateActive, false},
		{"unknown state", "UNKNOWN", models.StateActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestStateMachineTransition(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())

	if sm.Current() != models.StateStarting {
		t.Fatalf("initial state = %s, want STARTING", sm.Current())
	}
	if sm.IsTradingAllowed() {
		t.Error("trading must not be allowed in STARTING")
	}

	if err := sm.Transition(models.StateActive, "startup complete"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !sm.IsTradingAllowed() {
		t.Error("trading must be allowed in ACTIVE")
	}

	err := sm.Transition(models.StateStarting, "backwards")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if sm.Current() != models.StateActive {
		t.Errorf("state changed after rejected transition: %s", sm.Current())
	}
}

func TestStateMachineSameStateNoop(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())
	calls := 0
	sm.Subscribe(func(from, to, reason string) { calls++ })

	if err := sm.Transition(models.StateStarting, "noop"); err != nil {
		t.Fatalf("same-state transition must not error: %v", err)
	}
	if calls != 0 {
		t.Errorf("listeners notified on no-op transition: %d", calls)
	}
}

func TestStateMachineListeners(t *testing.T) {
	sm := NewStateMachine(zap.NewNop())

	type event struct{ from, to, reason string }
	var events []event
	sm.Subscribe(func(from, to, reason string) {
		events = append(events, event{from, to, reason})
	})
	sm.Subscribe(func(from, to, reason string) {
		events = append(events, event{from, to, reason})
	})

	if err := sm.Transition(models.StateActive, "go"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d listener calls, want 2", len(events))
	}
	if events[0].from != models.StateStarting || events[0].to != models.StateActive || events[0].reason != "go" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}
