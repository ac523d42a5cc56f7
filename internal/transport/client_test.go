package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/geekcms/internal/metrics"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeTokens はテスト用のTokenSource。
type fakeTokens struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeTokens) Read() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.token != ""
}

func (f *fakeTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
	return nil
}

// countingMetrics はテスト用のMetricsCollector。
type countingMetrics struct {
	metrics.Nop
	mu           sync.Mutex
	statuses     []int
	unauthorized int
}

func (m *countingMetrics) RecordRequest(_ string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *countingMetrics) RecordUnauthorized() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unauthorized++
}

func newTestClient(t *testing.T, server *httptest.Server, tokens TokenSource, m metrics.MetricsCollector) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c, err := New(Config{BaseURL: server.URL, Timeout: time.Second}, tokens, newTestLogger(&buf), m,
		WithBaseTransport(server.Client().Transport))
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	return c, &buf
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	var buf bytes.Buffer
	tests := []string{"", "ftp://example.com", "://bad"}
	for _, u := range tests {
		if _, err := New(Config{BaseURL: u}, &fakeTokens{}, newTestLogger(&buf), nil); err == nil {
			t.Errorf("BaseURL %q でエラーが返されなかった", u)
		}
	}
}

func TestDo_AttachesBearerWhenTokenPresent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer tok-123")
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("X-Request-ID が付与されていない")
		}
		w.Write([]byte(`{"message":"OK","data":{"name":"editor"}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &fakeTokens{token: "tok-123"}, nil)

	var out struct {
		Name string `json:"name"`
	}
	if err := c.Do(context.Background(), Request{Op: "test", Method: http.MethodGet, Path: "/user/profile"}, &out); err != nil {
		t.Fatalf("Do がエラーを返した: %v", err)
	}
	if out.Name != "editor" {
		t.Errorf("Name = %q, want editor", out.Name)
	}
}

func TestDo_NoAuthorizationHeaderWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Errorf("トークン未保存時にAuthorizationヘッダーが付与された: %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"message":"OK","data":{}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &fakeTokens{}, nil)
	if err := c.Do(context.Background(), Request{Op: "test", Method: http.MethodGet, Path: "/channels"}, nil); err != nil {
		t.Fatalf("Do がエラーを返した: %v", err)
	}
}

func TestAuthRoundTripper_ReplacesOnlyAuthorization(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	rt := NewAuthRoundTripper(server.Client().Transport, &fakeTokens{token: "fresh"}, nil)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer stale")
	req.Header.Set("X-Custom", "kept")
	req.Header.Set(RequestIDHeader, "req-1")

	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip がエラーを返した: %v", err)
	}
	resp.Body.Close()

	if got.Get("Authorization") != "Bearer fresh" {
		t.Errorf("Authorization = %q, want Bearer fresh", got.Get("Authorization"))
	}
	if got.Get("X-Custom") != "kept" {
		t.Errorf("X-Custom = %q, want kept", got.Get("X-Custom"))
	}
	if got.Get(RequestIDHeader) != "req-1" {
		t.Errorf("X-Request-ID = %q, want req-1", got.Get(RequestIDHeader))
	}
	if req.Header.Get("Authorization") != "Bearer stale" {
		t.Error("元のリクエストが変更された")
	}
}

func TestDo_ReadsTokenPerRequest(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.Write([]byte(`{"message":"OK","data":{}}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "first"}
	c, _ := newTestClient(t, server, tokens, nil)

	req := Request{Op: "test", Method: http.MethodGet, Path: "/user/profile"}
	_ = c.Do(context.Background(), req, nil)
	tokens.Clear()
	_ = c.Do(context.Background(), req, nil)

	if len(seen) != 2 || seen[0] != "Bearer first" || seen[1] != "" {
		t.Errorf("送信されたAuthorization = %v, want [Bearer first, \"\"]", seen)
	}
}

func TestDo_Unauthorized_ClearsStoreEmitsEventAndReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"UNAUTHORIZED","message":"認証が必要です。","category":"auth","action":"ログインしてください。"}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "expired"}
	m := &countingMetrics{}
	c, logs := newTestClient(t, server, tokens, m)

	var order []string
	var events []UnauthorizedEvent
	c.OnUnauthorized(func(ev UnauthorizedEvent) {
		if _, ok := tokens.Read(); ok {
			t.Error("イベント通知時点でトークンが破棄されていない")
		}
		order = append(order, "handler")
		events = append(events, ev)
	})

	err := c.Do(context.Background(), Request{Op: "fetch_profile", Method: http.MethodGet, Path: "/user/profile"}, nil)
	order = append(order, "returned")

	if !IsUnauthorized(err) {
		t.Fatalf("エラー種別がunauthorizedでない: %v", err)
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.APIError == nil || terr.APIError.Code != "UNAUTHORIZED" {
		t.Errorf("APIErrorがデコードされていない: %+v", terr)
	}
	if tokens.cleared != 1 {
		t.Errorf("Clear 呼び出し回数 = %d, want 1", tokens.cleared)
	}
	if len(events) != 1 {
		t.Fatalf("イベント数 = %d, want 1", len(events))
	}
	if events[0].Path != "/user/profile" || events[0].Method != http.MethodGet || events[0].RequestID == "" {
		t.Errorf("イベント内容が不正: %+v", events[0])
	}
	if strings.Join(order, ",") != "handler,returned" {
		t.Errorf("実行順序 = %v", order)
	}
	if m.unauthorized != 1 {
		t.Errorf("unauthorized メトリクス = %d, want 1", m.unauthorized)
	}
	if !strings.Contains(logs.String(), "unauthorized_response") {
		t.Error("401応答のログが出力されていない")
	}
	if strings.Contains(logs.String(), "expired") {
		t.Error("トークンがログに出力されている")
	}
}

func TestOnUnauthorized_Unsubscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &fakeTokens{token: "x"}, nil)

	calls := 0
	unsubscribe := c.OnUnauthorized(func(UnauthorizedEvent) { calls++ })
	unsubscribe()

	_ = c.Do(context.Background(), Request{Op: "test", Method: http.MethodGet, Path: "/"}, nil)
	if calls != 0 {
		t.Errorf("登録解除後にハンドラーが呼ばれた: %d", calls)
	}
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"サーバーエラー", http.StatusInternalServerError, `{"code":"INTERNAL_ERROR","message":"boom"}`, KindStatus},
		{"Not Found", http.StatusNotFound, ``, KindStatus},
		{"非JSONボディ", http.StatusOK, `<html>oops</html>`, KindMalformed},
		{"data欠落", http.StatusOK, `{"message":"OK"}`, KindMalformed},
		{"data null", http.StatusOK, `{"message":"OK","data":null}`, KindMalformed},
		{"data型不一致", http.StatusOK, `{"message":"OK","data":"text"}`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tokens := &fakeTokens{token: "tok"}
			c, _ := newTestClient(t, server, tokens, nil)

			var out struct {
				Name string `json:"name"`
			}
			err := c.Do(context.Background(), Request{Op: "test", Method: http.MethodGet, Path: "/x"}, &out)
			kind, ok := KindOf(err)
			if !ok || kind != tt.want {
				t.Errorf("Kind = %v (ok=%v), want %v: err=%v", kind, ok, tt.want, err)
			}
			if tokens.cleared != 0 {
				t.Error("401以外でトークンが破棄された")
			}
		})
	}
}

func TestDo_TimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	var buf bytes.Buffer
	m := &countingMetrics{}
	c, err := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, &fakeTokens{}, newTestLogger(&buf), m,
		WithBaseTransport(server.Client().Transport))
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}

	err = c.Do(context.Background(), Request{Op: "slow", Method: http.MethodGet, Path: "/slow"}, nil)
	if k, _ := KindOf(err); k != KindNetwork {
		t.Errorf("Kind = %v, want network: %v", k, err)
	}
	if len(m.statuses) != 1 || m.statuses[0] != 0 {
		t.Errorf("記録されたステータス = %v, want [0]", m.statuses)
	}
}

func TestDo_SendsJSONBodyAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/mp/articles" {
			t.Errorf("Path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("draft") != "false" {
			t.Errorf("Query = %s", r.URL.RawQuery)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		if !strings.Contains(buf.String(), `"title":"hello"`) {
			t.Errorf("Body = %s", buf.String())
		}
		w.Write([]byte(`{"message":"OK","data":{"id":"a1"}}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	c, err := New(Config{BaseURL: server.URL + "/api/v1"}, &fakeTokens{}, newTestLogger(&logs), nil,
		WithBaseTransport(server.Client().Transport))
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		ID string `json:"id"`
	}
	err = c.Do(context.Background(), Request{
		Op:     "publish_article",
		Method: http.MethodPost,
		Path:   "/mp/articles",
		Query:  map[string][]string{"draft": {"false"}},
		Body:   map[string]string{"title": "hello"},
	}, &out)
	if err != nil {
		t.Fatalf("Do がエラーを返した: %v", err)
	}
	if out.ID != "a1" {
		t.Errorf("ID = %q, want a1", out.ID)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
		failed bool
	}{
		{200, 0, false},
		{201, 0, false},
		{401, KindUnauthorized, true},
		{403, KindStatus, true},
		{500, KindStatus, true},
	}
	for _, tt := range tests {
		kind, failed := ClassifyStatus(tt.status)
		if kind != tt.kind || failed != tt.failed {
			t.Errorf("ClassifyStatus(%d) = %v, %v; want %v, %v", tt.status, kind, failed, tt.kind, tt.failed)
		}
	}
}
