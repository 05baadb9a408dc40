package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sentinel/internal/models"
)

// Ошибки репозитория сигналов
var (
	ErrSignalNotFound = errors.New("signal not found")
)

// SignalRepository - персистентность пула сигналов.
// Пул живёт в памяти, репозиторий нужен для восстановления
// ожидающих сигналов после перезапуска.
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// SaveSignal сохраняет сигнал и возвращает его id
func (r *SignalRepository) SaveSignal(ctx context.Context, s *models.Signal) (int, error) {
	query := `
		INSERT INTO signals (symbol, side, strategy, price, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int
	err := r.db.QueryRowContext(ctx, query,
		s.Symbol,
		s.Side,
		s.Strategy,
		s.Price,
		s.Status,
		s.CreatedAt,
		s.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

// DeleteSignal удаляет сигнал (перезапись или снятие стратегией)
func (r *SignalRepository) DeleteSignal(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM signals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSignalNotFound
	}
	return nil
}

// UpdateSignalStatus переводит сигнал в новый статус
func (r *SignalRepository) UpdateSignalStatus(ctx context.Context, id int, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE signals SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSignalNotFound
	}
	return nil
}

// LoadPendingSignals возвращает ожидающие сигналы для прогрева пула
func (r *SignalRepository) LoadPendingSignals(ctx context.Context) ([]*models.Signal, error) {
	query := `
		SELECT id, symbol, side, strategy, price, status, created_at, expires_at
		FROM signals
		WHERE status = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, models.SignalStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		s := &models.Signal{}
		if err := rows.Scan(
			&s.ID,
			&s.Symbol,
			&s.Side,
			&s.Strategy,
			&s.Price,
			&s.Status,
			&s.CreatedAt,
			&s.ExpiresAt,
		); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// PurgeExpiredBefore удаляет завершённые сигналы старше отметки
// (фоновая уборка таблицы)
func (r *SignalRepository) PurgeExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM signals WHERE status != $1 AND created_at < $2`,
		models.SignalStatusPending, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
