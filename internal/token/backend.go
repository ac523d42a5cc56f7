package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptStorage は保存ファイルをJSONとして解釈できないことを示す。
var ErrCorruptStorage = errors.New("failed to parse storage file")

// MemoryBackend はプロセス内のみで有効なBackend実装。
// テストと一時的な実行で使用する。
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBackend はMemoryBackendを生成する。
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

// Get はキーに対応する値を返す。
func (b *MemoryBackend) Get(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok, nil
}

// Set はキーに値を保存する。
func (b *MemoryBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

// Delete はキーを削除する。
func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

// FileBackend はJSONファイルにキーバリューを保存するBackend実装。
// プロセス再起動後も値が残る。書き込みは一時ファイルとrenameで原子的に行う。
// 壊れたファイルは読み取り時にはErrCorruptStorageを返し、次の書き込みで上書きされる。
type FileBackend struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// NewFileBackend はFileBackendを生成する。ファイルは最初の書き込み時に作成される。
func NewFileBackend(path string, logger *slog.Logger) *FileBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileBackend{path: path, logger: logger}
}

// Path は保存先のファイルパスを返す。
func (b *FileBackend) Path() string {
	return b.path
}

// Get はキーに対応する値を返す。ファイルが存在しない場合は未保存として扱う。
func (b *FileBackend) Get(key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, err := b.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set はキーに値を保存する。
func (b *FileBackend) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, _, err := b.loadForWrite()
	if err != nil {
		return err
	}
	values[key] = value
	return b.write(values)
}

// Delete はキーを削除する。
func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	values, corrupt, err := b.loadForWrite()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok && !corrupt {
		return nil
	}
	delete(values, key)
	return b.write(values)
}

func (b *FileBackend) load() (map[string]string, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorruptStorage, b.path, err)
	}
	return values, nil
}

// loadForWrite は書き込み用に現在の内容を読み込む。
// 壊れたファイルは空として扱い、corruptにtrueを返す。
func (b *FileBackend) loadForWrite() (values map[string]string, corrupt bool, err error) {
	values, err = b.load()
	if errors.Is(err, ErrCorruptStorage) {
		b.logger.Warn("storage_file_corrupt_overwritten",
			slog.String("path", b.path),
			slog.String("error", err.Error()),
		)
		return make(map[string]string), true, nil
	}
	return values, false, err
}

func (b *FileBackend) write(values map[string]string) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".storage-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// KeyValueRepository はコンテキスト付きのキーバリュー永続化インターフェース。
// repository.PostgresStorageRepo が実装する。
type KeyValueRepository interface {
	Find(ctx context.Context, key string) (string, bool, error)
	Upsert(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RepositoryBackend はKeyValueRepositoryをBackendとして利用するアダプタ。
// 各操作はtimeoutで打ち切られる。
type RepositoryBackend struct {
	repo    KeyValueRepository
	timeout time.Duration
}

// NewRepositoryBackend はRepositoryBackendを生成する。
func NewRepositoryBackend(repo KeyValueRepository, timeout time.Duration) *RepositoryBackend {
	return &RepositoryBackend{repo: repo, timeout: timeout}
}

// Get はキーに対応する値を返す。
func (b *RepositoryBackend) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.repo.Find(ctx, key)
}

// Set はキーに値を保存する。
func (b *RepositoryBackend) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.repo.Upsert(ctx, key, value)
}

// Delete はキーを削除する。
func (b *RepositoryBackend) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.repo.Delete(ctx, key)
}

// compile-time interface check
var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*FileBackend)(nil)
	_ Backend = (*RepositoryBackend)(nil)
)
