package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// ConfigRepository persists remote configuration values.
type ConfigRepository interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

// ConfigRepo is the sqlx implementation of ConfigRepository.
type ConfigRepo struct {
	db *sqlx.DB
}

// NewConfigRepo constructs ConfigRepo.
func NewConfigRepo(db *sqlx.DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

func (r *ConfigRepo) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, r.db.Rebind(`SELECT value FROM remote_config WHERE key=?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrConfigNotFound
	}
	return value, err
}

func (r *ConfigRepo) SetValue(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO remote_config (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`), key, value, time.Now().UTC())
	return err
}
