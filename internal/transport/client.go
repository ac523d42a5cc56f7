// Package transport はCMSプラットフォームAPIへの全リクエストが通過する認可付きHTTPクライアントを提供する。
//
// 送信時は認可トークンをBearerヘッダーとして付与し、受信時はレスポンスのエンベロープ
// （{"message": ..., "data": ...}）を外してペイロードのみを呼び出し元に返す。
// 401応答を受けた場合はトークンを破棄し、購読者にUnauthorizedEventを通知した上で
// エラーを呼び出し元に伝播する。画面遷移や状態リセットはこの層では行わない。
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/geekcms/internal/metrics"
	"github.com/hitoshi/geekcms/internal/model"
)

const (
	// DefaultTimeout はリクエスト全体のタイムアウト。
	DefaultTimeout = 5 * time.Second
	// maxResponseSize は読み取る応答ボディの上限（10MiB）。
	maxResponseSize = 10 << 20
)

// TokenSource はトークンの読み取りと破棄を行うインターフェース。
// token.Storeが実装する。
type TokenSource interface {
	TokenReader
	Clear() error
}

// UnauthorizedEvent は401応答を受けたことを表すイベント。
type UnauthorizedEvent struct {
	Op        string
	Method    string
	Path      string
	RequestID string
	At        time.Time
}

// Config はClientの設定。
type Config struct {
	BaseURL   string
	Timeout   time.Duration // 0の場合はDefaultTimeout
	RateLimit float64       // 1秒あたりの送信数。0以下の場合は制限しない
	RateBurst int
}

// Option はClientの生成オプション。
type Option func(*options)

type options struct {
	base http.RoundTripper
}

// WithBaseTransport は実際の送信に使うRoundTripperを差し替える。
// テストでhttptest.Serverのクライアントを使う場合などに指定する。
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// Request はAPI呼び出し1件分の指定。
type Request struct {
	Op     string // メトリクスとログに使う操作名（例: "fetch_articles"）
	Method string
	Path   string // ベースURLからの相対パス
	Query  url.Values
	Body   any // nilでなければJSONとして送信する
}

// Client は認可付きHTTPクライアント。
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu       sync.RWMutex
	handlers map[int]func(UnauthorizedEvent)
	nextID   int
}

// New はClientを生成する。
func New(cfg Config, tokens TokenSource, logger *slog.Logger, m metrics.MetricsCollector, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https: %s", cfg.BaseURL)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if m == nil {
		m = metrics.Nop{}
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   timeout,
			Transport: NewAuthRoundTripper(o.base, tokens, limiter),
		},
		tokens:   tokens,
		logger:   logger,
		metrics:  m,
		handlers: make(map[int]func(UnauthorizedEvent)),
	}, nil
}

// OnUnauthorized は401応答時に呼ばれるハンドラーを登録し、登録解除関数を返す。
// ハンドラーはトークン破棄の後、呼び出し元へのエラー返却の前に同期的に呼ばれる。
func (c *Client) OnUnauthorized(fn func(UnauthorizedEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.handlers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// envelope はAPI応答の外側の形式。
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Do はリクエストを送信し、エンベロープを外したペイロードをoutにデコードする。
// outがnilの場合はペイロードの存在のみを確認する。
// 失敗時は*Errorを返す。
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	reqID := uuid.NewString()
	httpReq, err := c.newRequest(ctx, req, reqID)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	c.metrics.RecordRequestLatency(req.Op, duration)

	if err != nil {
		c.metrics.RecordRequest(req.Op, 0)
		c.logger.Error("api_request_failed",
			slog.String("op", req.Op),
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		return c.newError(req, KindNetwork, 0, nil, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordRequest(req.Op, resp.StatusCode)
	c.logger.Debug("api_request",
		slog.String("op", req.Op),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
		slog.String("request_id", reqID),
	)

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	if kind, failed := ClassifyStatus(resp.StatusCode); failed {
		apiErr := decodeAPIError(body)
		if kind == KindUnauthorized {
			c.handleUnauthorized(req, reqID)
		}
		return c.newError(req, kind, resp.StatusCode, apiErr, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if readErr != nil {
		return c.newError(req, KindNetwork, resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", readErr))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.newError(req, KindMalformed, resp.StatusCode, nil, fmt.Errorf("failed to decode envelope: %w", err))
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return c.newError(req, KindMalformed, resp.StatusCode, nil, fmt.Errorf("response payload is absent"))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return c.newError(req, KindMalformed, resp.StatusCode, nil, fmt.Errorf("failed to decode payload: %w", err))
	}

	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request, reqID string) (*http.Request, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "geekctl/1.0")
	httpReq.Header.Set(RequestIDHeader, reqID)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// handleUnauthorized は401応答時の副作用を実行する。
// トークンを破棄してから購読者に通知する。
func (c *Client) handleUnauthorized(req Request, reqID string) {
	c.metrics.RecordUnauthorized()

	if err := c.tokens.Clear(); err != nil {
		c.logger.Error("token_clear_failed", slog.String("error", err.Error()))
	}

	c.logger.Warn("unauthorized_response",
		slog.String("op", req.Op),
		slog.String("path", req.Path),
		slog.String("request_id", reqID),
	)

	c.mu.RLock()
	handlers := make([]func(UnauthorizedEvent), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	ev := UnauthorizedEvent{
		Op:        req.Op,
		Method:    req.Method,
		Path:      req.Path,
		RequestID: reqID,
		At:        time.Now(),
	}
	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) newError(req Request, kind Kind, status int, apiErr *model.APIError, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         req.Op,
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: status,
		APIError:   apiErr,
		Err:        err,
	}
}

// decodeAPIError はエラー応答のボディからエラー詳細を取り出す。
// 統一エラーフォーマットとエンベロープのmessageのどちらにも対応する。
func decodeAPIError(body []byte) *model.APIError {
	if len(body) == 0 {
		return nil
	}
	var apiErr model.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		return nil
	}
	return &apiErr
}
