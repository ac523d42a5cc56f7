// Package token は認可トークンの永続化を提供する。
//
// Storeは固定キーの下に単一のトークンを保存するキーバリュー層で、
// バックエンド（ファイル、メモリ、PostgreSQL）を差し替えて利用する。
// 値の内容は検証せず、そのまま保存・返却する。
package token

import (
	"fmt"
	"log/slog"
)

const (
	// DefaultKey はトークンを保存する既定のキー。
	DefaultKey = "token_key"
	// refreshKeyPrefix はリフレッシュトークンのキーに付与する接頭辞。
	refreshKeyPrefix = "refresh_"
)

// Backend はキーバリュー形式の永続ストレージのインターフェース。
type Backend interface {
	// Get はキーに対応する値を返す。存在しない場合はfalseを返す。
	Get(key string) (string, bool, error)
	// Set はキーに値を保存する。既存の値は上書きされる。
	Set(key, value string) error
	// Delete はキーを削除する。存在しない場合もエラーにしない。
	Delete(key string) error
}

// Store は認可トークンの保存・取得・破棄を行う。
// プロセス全体で有効な認可情報は高々1つで、値が存在しないことは未認証を意味する。
type Store struct {
	backend    Backend
	key        string
	refreshKey string
	logger     *slog.Logger
}

// NewStore はStoreを生成する。keyが空の場合はDefaultKeyを使用する。
func NewStore(backend Backend, key string, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		backend:    backend,
		key:        key,
		refreshKey: refreshKeyPrefix + key,
		logger:     logger,
	}
}

// Save はトークンを保存する。
func (s *Store) Save(token string) error {
	if err := s.backend.Set(s.key, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// SaveRefreshToken はリフレッシュトークンを保存する。
func (s *Store) SaveRefreshToken(token string) error {
	if token == "" {
		return nil
	}
	if err := s.backend.Set(s.refreshKey, token); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// Read は保存されたトークンを返す。
// 未保存・空文字列・バックエンドの読み取り失敗はいずれも「存在しない」として扱う。
func (s *Store) Read() (string, bool) {
	return s.get(s.key)
}

// RefreshToken は保存されたリフレッシュトークンを返す。
func (s *Store) RefreshToken() (string, bool) {
	return s.get(s.refreshKey)
}

// Clear はトークンとリフレッシュトークンを破棄する。
func (s *Store) Clear() error {
	if err := s.backend.Delete(s.key); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	if err := s.backend.Delete(s.refreshKey); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

func (s *Store) get(key string) (string, bool) {
	v, ok, err := s.backend.Get(key)
	if err != nil {
		s.logger.Warn("token_store_read_failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
