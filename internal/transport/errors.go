package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/geekcms/internal/model"
)

// Kind はリクエスト失敗の分類。
type Kind int

const (
	// KindNetwork は応答を得られなかった失敗（接続エラー、タイムアウト）。
	KindNetwork Kind = iota + 1
	// KindUnauthorized は401応答。トークン破棄と強制ログアウトの副作用を伴う。
	KindUnauthorized
	// KindStatus は401以外の非2xx応答。
	KindStatus
	// KindMalformed は応答ボディが不正、またはペイロードが存在しない。
	KindMalformed
)

// String はKindの名前を返す。
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindStatus:
		return "status"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error はトランスポート層のエラー。呼び出し元はerrors.Asで分類を判定する。
type Error struct {
	Kind       Kind
	Op         string
	Method     string
	Path       string
	StatusCode int             // 応答を得られた場合のみ
	APIError   *model.APIError // サーバーがエラー詳細を返した場合のみ
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s %s: %s", e.Op, e.Method, e.Path, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.APIError != nil {
		msg += ": " + e.APIError.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はエラーチェーンからトランスポートエラーの分類を取り出す。
func KindOf(err error) (Kind, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind, true
	}
	return 0, false
}

// IsUnauthorized はエラーが401応答によるものかを返す。
func IsUnauthorized(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindUnauthorized
}

// ClassifyStatus はHTTPステータスコードを失敗分類に変換する。
// 2xxの場合はfalseを返す。
func ClassifyStatus(statusCode int) (Kind, bool) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return 0, false
	case statusCode == http.StatusUnauthorized:
		return KindUnauthorized, true
	default:
		return KindStatus, true
	}
}
