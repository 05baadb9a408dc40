package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sentinel/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - журнал сделок (append-only).
//
// Открытие позиции добавляет запись OPEN, закрытие проставляет цену
// выхода и реализованный PnL. Записи не удаляются: журнал - источник
// для восстановления позиций после перезапуска и для дневного PnL.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// LogTrade добавляет запись об открытой сделке и возвращает её id
func (r *TradeRepository) LogTrade(ctx context.Context, trade *models.Trade) (int, error) {
	query := `
		INSERT INTO trades (symbol, side, strategy, quantity, entry_price, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if trade.OpenedAt.IsZero() {
		trade.OpenedAt = time.Now()
	}
	trade.Status = models.TradeStatusOpen

	var id int
	err := r.db.QueryRowContext(ctx, query,
		trade.Symbol,
		trade.Side,
		trade.Strategy,
		trade.Quantity,
		trade.EntryPrice,
		trade.Status,
		trade.OpenedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	trade.ID = id
	return id, nil
}

// CloseTrade закрывает сделку: цена выхода, PnL, время закрытия
func (r *TradeRepository) CloseTrade(ctx context.Context, id int, exitPrice, pnl float64) error {
	query := `
		UPDATE trades
		SET status = $1, exit_price = $2, pnl = $3, closed_at = $4
		WHERE id = $5 AND status = $6`

	result, err := r.db.ExecContext(ctx, query,
		models.TradeStatusClosed, exitPrice, pnl, time.Now(), id, models.TradeStatusOpen)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}

// ReduceTrade фиксирует частичное закрытие: объём открытой записи
// уменьшается на qty, а реализованная часть пишется отдельной закрытой
// записью, чтобы дневной PnL учитывал частичные фиксации.
func (r *TradeRepository) ReduceTrade(ctx context.Context, id int, qty, exitPrice, pnl float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		symbol, side, strategy string
		entryPrice             float64
		openedAt               time.Time
	)
	reduce := `
		UPDATE trades
		SET quantity = quantity - $1
		WHERE id = $2 AND status = $3 AND quantity > $1
		RETURNING symbol, side, strategy, entry_price, opened_at`

	err = tx.QueryRowContext(ctx, reduce, qty, id, models.TradeStatusOpen).
		Scan(&symbol, &side, &strategy, &entryPrice, &openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTradeNotFound
	}
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO trades (symbol, side, strategy, quantity, entry_price, exit_price, pnl, status, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	if _, err := tx.ExecContext(ctx, insert,
		symbol, side, strategy, qty, entryPrice, exitPrice, pnl,
		models.TradeStatusClosed, openedAt, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// OpenTrades возвращает все открытые сделки (восстановление позиций)
func (r *TradeRepository) OpenTrades(ctx context.Context) ([]*models.Trade, error) {
	query := `
		SELECT id, symbol, side, strategy, quantity, entry_price, status, opened_at
		FROM trades
		WHERE status = $1
		ORDER BY opened_at`

	rows, err := r.db.QueryContext(ctx, query, models.TradeStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		if err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&trade.Side,
			&trade.Strategy,
			&trade.Quantity,
			&trade.EntryPrice,
			&trade.Status,
			&trade.OpenedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// DailyPnl возвращает суммарный реализованный PnL за календарный день
func (r *TradeRepository) DailyPnl(ctx context.Context, day time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(pnl), 0)
		FROM trades
		WHERE status = $1 AND closed_at >= $2 AND closed_at < $3`

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var pnl float64
	err := r.db.QueryRowContext(ctx, query, models.TradeStatusClosed, start, end).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl, nil
}

// History возвращает последние закрытые сделки, новые первыми
func (r *TradeRepository) History(ctx context.Context, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	query := `
		SELECT id, symbol, side, strategy, quantity, entry_price, exit_price, pnl, status, opened_at, closed_at
		FROM trades
		WHERE status = $1
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, models.TradeStatusClosed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		if err := rows.Scan(
			&trade.ID,
			&trade.Symbol,
			&trade.Side,
			&trade.Strategy,
			&trade.Quantity,
			&trade.EntryPrice,
			&trade.ExitPrice,
			&trade.Pnl,
			&trade.Status,
			&trade.OpenedAt,
			&trade.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
