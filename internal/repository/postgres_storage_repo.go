package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStorageRepo はPostgreSQLを使用したクライアント状態リポジトリ。
// 複数端末で認可情報を共有する運用向けのtoken.Backend実装として利用する。
type PostgresStorageRepo struct {
	db *sql.DB
}

// NewPostgresStorageRepo はPostgresStorageRepoを生成する。
func NewPostgresStorageRepo(db *sql.DB) *PostgresStorageRepo {
	return &PostgresStorageRepo{db: db}
}

// Find は指定キーの値を取得する。
func (r *PostgresStorageRepo) Find(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE storage_key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find storage value: %w", err)
	}

	return value, true, nil
}

// Upsert は指定キーに値を保存する。
func (r *PostgresStorageRepo) Upsert(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_storage (storage_key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (storage_key) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert storage value: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *PostgresStorageRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE storage_key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete storage value: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StorageRepository = (*PostgresStorageRepo)(nil)
