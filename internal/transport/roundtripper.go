package transport

import (
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader はリクエスト追跡用のヘッダー名。
const RequestIDHeader = "X-Request-ID"

// TokenReader は送信時に認可トークンを読み取るためのインターフェース。
type TokenReader interface {
	Read() (string, bool)
}

// authRoundTripper は送信前に認可ヘッダーを付与するhttp.RoundTripper。
// トークンはリクエストごとにストアから読み直すため、ログアウトや401による破棄が即座に反映される。
type authRoundTripper struct {
	base    http.RoundTripper
	tokens  TokenReader
	limiter *rate.Limiter
}

// NewAuthRoundTripper は認可ヘッダー付与を行うRoundTripperを生成する。
// baseがnilの場合はhttp.DefaultTransportを使用する。limiterがnilの場合は送信間隔を制限しない。
func NewAuthRoundTripper(base http.RoundTripper, tokens TokenReader, limiter *rate.Limiter) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authRoundTripper{base: base, tokens: tokens, limiter: limiter}
}

// RoundTrip はトークンが存在する場合にBearer認可ヘッダーを設定して送信する。
// 既存のAuthorizationヘッダーは置き換え、その他のヘッダーは保持する。
// 元のリクエストは変更しない。
func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	r := req.Clone(req.Context())
	if token, ok := t.tokens.Read(); ok {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}

	return t.base.RoundTrip(r)
}
