// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// StorageRepository はクライアント状態（認可トークン等）のキーバリュー永続化インターフェース。
// ブラウザのlocalStorageに相当する単純なモデルで、キーごとに1つの文字列値を保持する。
type StorageRepository interface {
	// Find は指定キーの値を取得する。見つからない場合はfalseを返す。
	Find(ctx context.Context, key string) (string, bool, error)
	// Upsert は指定キーに値を保存する。既存の値は上書きされる。
	Upsert(ctx context.Context, key, value string) error
	// Delete は指定キーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}
