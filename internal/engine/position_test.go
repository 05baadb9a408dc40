package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/models"
)

func TestPositionBookOpenAndAdd(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	realized, err := pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.0, 50_000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if realized != 0 {
		t.Errorf("realized = %v on open, want 0", realized)
	}

	// Добор: вход усредняется по объёму
	if _, err := pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.0, 60_000); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	pos := pb.Get("BTC/USDT")
	if pos.Amount != 2.0 {
		t.Errorf("amount = %v, want 2.0", pos.Amount)
	}
	if pos.EntryPrice != 55_000 {
		t.Errorf("entry = %v, want 55000", pos.EntryPrice)
	}
}

func TestPositionBookPartialReduce(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 2.0, 50_000)

	realized, err := pb.Apply(ctx, "BTC/USDT", models.SideSell, "trend", 1.0, 55_000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if realized != 5_000 {
		t.Errorf("realized = %v, want 5000", realized)
	}

	pos := pb.Get("BTC/USDT")
	if pos.Amount != 1.0 {
		t.Errorf("amount = %v, want 1.0", pos.Amount)
	}
	// Вход сокращённой позиции не меняется
	if pos.EntryPrice != 50_000 {
		t.Errorf("entry = %v, want 50000", pos.EntryPrice)
	}

	// Журнал: объём открытой записи уменьшен, PnL зафиксирован
	open, _ := trades.OpenTrades(ctx)
	if len(open) != 1 {
		t.Fatalf("%d open trades after partial reduce, want 1", len(open))
	}
	if open[0].Quantity != 1.0 {
		t.Errorf("open trade quantity = %v, want 1.0", open[0].Quantity)
	}
	pnl, _ := trades.DailyPnl(ctx, time.Now())
	if pnl != 5_000 {
		t.Errorf("daily pnl = %v, want 5000", pnl)
	}
}

func TestPositionBookFullClose(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.0, 50_000)

	realized, err := pb.Apply(ctx, "BTC/USDT", models.SideSell, "trend", 1.0, 48_000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if realized != -2_000 {
		t.Errorf("realized = %v, want -2000", realized)
	}

	pos := pb.Get("BTC/USDT")
	if !pos.IsFlat() {
		t.Errorf("position not flat after full close: %+v", pos)
	}

	open, _ := trades.OpenTrades(ctx)
	if len(open) != 0 {
		t.Errorf("%d open trades after full close, want 0", len(open))
	}
}

func TestPositionBookFlip(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.0, 50_000)

	// Продажа 3.0 против лонга 1.0: закрытие + разворот в шорт 2.0
	realized, err := pb.Apply(ctx, "BTC/USDT", models.SideSell, "trend", 3.0, 52_000)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if realized != 2_000 {
		t.Errorf("realized = %v, want 2000", realized)
	}

	pos := pb.Get("BTC/USDT")
	if !pos.IsShort() {
		t.Fatalf("position not short after flip: %+v", pos)
	}
	if pos.Amount != -2.0 {
		t.Errorf("amount = %v, want -2.0", pos.Amount)
	}
	// Разворотная позиция открывается по цене исполнения
	if pos.EntryPrice != 52_000 {
		t.Errorf("entry = %v, want 52000", pos.EntryPrice)
	}
}

func TestPositionBookShortPnl(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	pb.Apply(ctx, "ETH/USDT", models.SideSell, "meanrev", 2.0, 3_000)

	realized, err := pb.Apply(ctx, "ETH/USDT", models.SideBuy, "meanrev", 2.0, 2_800)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if realized != 400 {
		t.Errorf("realized = %v, want 400 (short profit)", realized)
	}
}

func TestPositionBookRestore(t *testing.T) {
	trades := newFakeTradeLog()
	ctx := context.Background()

	first := NewPositionBook(trades, zap.NewNop())
	first.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.5, 45_000)
	first.Apply(ctx, "ETH/USDT", models.SideSell, "meanrev", 2.0, 3_000)

	second := NewPositionBook(trades, zap.NewNop())
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	btc := second.Get("BTC/USDT")
	if btc.Amount != 1.5 || btc.EntryPrice != 45_000 {
		t.Errorf("btc position = %+v", btc)
	}
	eth := second.Get("ETH/USDT")
	if eth.Amount != -2.0 {
		t.Errorf("eth amount = %v, want -2.0", eth.Amount)
	}

	// Восстановленная позиция закрывается штатно
	realized, err := second.Apply(ctx, "BTC/USDT", models.SideSell, "trend", 1.5, 46_000)
	if err != nil {
		t.Fatalf("Apply after restore: %v", err)
	}
	if math.Abs(realized-1_500) > 1e-9 {
		t.Errorf("realized = %v, want 1500", realized)
	}
}

func TestPositionBookMatching(t *testing.T) {
	trades := newFakeTradeLog()
	pb := NewPositionBook(trades, zap.NewNop())
	ctx := context.Background()

	pb.Apply(ctx, "BTC/USDT", models.SideBuy, "trend", 1.0, 50_000)
	pb.Apply(ctx, "ETH/USDT", models.SideSell, "meanrev", 2.0, 3_000)
	pb.Apply(ctx, "SOL/USDT", models.SideSell, "trend", 10, 150)

	shorts := pb.Matching(func(p models.Position) bool { return p.IsShort() })
	if len(shorts) != 2 {
		t.Errorf("got %d shorts, want 2", len(shorts))
	}
}
