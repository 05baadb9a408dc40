package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// ============================================================
// SettingsRepository Tests
// ============================================================

func TestNewSettingsRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewSettingsRepository(db)
	if repo == nil {
		t.Fatal("NewSettingsRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestSettingsRepositoryGet(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expected    string
		expectError bool
	}{
		{
			name: "existing key",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"value"}).AddRow("true")
				mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
					WithArgs("breaker_tripped").
					WillReturnRows(rows)
			},
			expected: "true",
		},
		{
			name: "query error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
					WithArgs("breaker_tripped").
					WillReturnError(errors.New("connection refused"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)
			repo := NewSettingsRepository(db)

			got, err := repo.Get(context.Background(), "breaker_tripped", "false")
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Get = %q, want %q", got, tt.expected)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestSettingsRepositoryGetWritesDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("macro_prior_raw").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("macro_prior_raw", "NEUTRAL").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSettingsRepository(db)
	got, err := repo.Get(context.Background(), "macro_prior_raw", "NEUTRAL")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "NEUTRAL" {
		t.Errorf("Get = %q, want default", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSettingsRepositorySet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("breaker_tripped", "true").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSettingsRepository(db)
	if err := repo.Set(context.Background(), "breaker_tripped", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSettingsRepositoryDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM settings WHERE key = \$1`).
		WithArgs("stale_key").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSettingsRepository(db)
	if err := repo.Delete(context.Background(), "stale_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
