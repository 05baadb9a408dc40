package repository

import (
	"context"
	"database/sql"
	"errors"
)

// SettingsRepository - персистентное key/value хранилище настроек.
//
// Хранит runtime-состояние, переживающее перезапуск: состояние
// предохранителя, счётчики макро-подтверждения, зашифрованные ключи
// биржи. Get с отсутствующим ключом записывает дефолт и возвращает его,
// чтобы каждое используемое значение было видно в таблице.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает значение ключа; отсутствующий ключ инициализируется дефолтом
func (r *SettingsRepository) Get(ctx context.Context, key, defaultValue string) (string, error) {
	query := `SELECT value FROM settings WHERE key = $1`

	var value string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := r.Set(ctx, key, defaultValue); err != nil {
				return "", err
			}
			return defaultValue, nil
		}
		return "", err
	}
	return value, nil
}

// Set записывает значение ключа (UPSERT)
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = $2, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}

// Delete убирает ключ из хранилища
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = $1`, key)
	return err
}
