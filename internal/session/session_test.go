package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/transport"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type fakeAPI struct {
	loginResult  *model.AuthorizationResult
	loginErr     error
	profile      *model.UserProfile
	profileErr   error
	loginCalls   int
	profileCalls int
	block        chan struct{}
}

func (f *fakeAPI) Login(ctx context.Context, form model.LoginForm) (*model.AuthorizationResult, error) {
	f.loginCalls++
	if f.block != nil {
		<-f.block
	}
	return f.loginResult, f.loginErr
}

func (f *fakeAPI) FetchProfile(ctx context.Context) (*model.UserProfile, error) {
	f.profileCalls++
	return f.profile, f.profileErr
}

type memTokens struct {
	mu      sync.Mutex
	token   string
	refresh string
	saveErr error
}

func (m *memTokens) Save(t string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token = t
	return nil
}

func (m *memTokens) SaveRefreshToken(t string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = t
	return nil
}

func (m *memTokens) Read() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *memTokens) RefreshToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh, m.refresh != ""
}

func (m *memTokens) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.refresh = "", ""
	return nil
}

type fakeNav struct {
	redirects int
}

func (n *fakeNav) RedirectToLogin() { n.redirects++ }

var validForm = model.LoginForm{Mobile: "13911111111", Code: "246810"}

func newTestContainer(api API, tokens TokenStore, nav Navigator) *Container {
	var buf bytes.Buffer
	return New(api, tokens, nav, newTestLogger(&buf))
}

// --- Reduce ---

func TestReduce_LoginLifecycle(t *testing.T) {
	s := Initial(model.Credential{})
	if s.Loading() {
		t.Fatal("初期状態はloadingであってはならない")
	}

	s = Reduce(s, LoginRejected{Reason: "前回の失敗"})
	s = Reduce(s, LoginPending{})
	if !s.Loading() {
		t.Error("Pending後はloadingであるべき")
	}
	if _, ok := s.Error(); ok {
		t.Error("Pending開始時に前回のエラーがクリアされていない")
	}

	cred := model.Credential{Token: "tok"}
	s = Reduce(s, LoginFulfilled{Credential: cred})
	if s.Loading() || !s.Authenticated() || s.Credential != cred {
		t.Errorf("Fulfilled後の状態が不正: %+v", s)
	}
}

func TestReduce_ProfileRejectedKeepsPriorProfile(t *testing.T) {
	prior := &model.UserProfile{Name: "editor"}
	s := Initial(model.Credential{Token: "tok"})
	s = Reduce(s, ProfileFulfilled{Profile: prior})
	s = Reduce(s, ProfilePending{})
	s = Reduce(s, ProfileRejected{Reason: "boom"})

	if s.Profile != prior {
		t.Error("失敗時に取得済みのプロフィールが破棄された")
	}
	if r, ok := s.Error(); !ok || r != "boom" {
		t.Errorf("Error = %q, %v", r, ok)
	}
}

func TestReduce_LoggedOutAndRehydrated(t *testing.T) {
	s := Initial(model.Credential{Token: "tok"})
	s = Reduce(s, ProfileFulfilled{Profile: &model.UserProfile{Name: "x"}})
	s = Reduce(s, LoggedOut{})
	if s.Authenticated() || s.Profile != nil {
		t.Errorf("LoggedOut後の状態が不正: %+v", s)
	}

	s = Reduce(s, ProfilePending{})
	s = Reduce(s, Rehydrated{Credential: model.Credential{Token: "again"}})
	if s.Credential.Token != "again" || s.Loading() || s.Profile != nil {
		t.Errorf("Rehydrated後の状態が不正: %+v", s)
	}
}

func TestState_ErrorPrefersLogin(t *testing.T) {
	s := Initial(model.Credential{})
	s = Reduce(s, ProfileRejected{Reason: "profile"})
	s = Reduce(s, LoginRejected{Reason: "login"})
	if r, _ := s.Error(); r != "login" {
		t.Errorf("Error = %q, want login", r)
	}
}

// --- Container ---

func TestNew_RehydratesFromTokenStore(t *testing.T) {
	tokens := &memTokens{token: "persisted", refresh: "r"}
	c := newTestContainer(&fakeAPI{}, tokens, nil)

	s := c.State()
	if s.Credential.Token != "persisted" || s.Credential.RefreshToken != "r" {
		t.Errorf("Credential = %+v", s.Credential)
	}
	if s.Profile != nil {
		t.Error("プロフィールは明示的に取得するまで存在しないべき")
	}
}

func TestLogin_Success_TransitionsAndPersists(t *testing.T) {
	api := &fakeAPI{loginResult: &model.AuthorizationResult{Token: "new-token", RefreshToken: "new-refresh"}}
	tokens := &memTokens{}
	c := newTestContainer(api, tokens, nil)

	var seen []State
	c.Subscribe(func(s State) { seen = append(seen, s) })

	if err := c.Login(context.Background(), validForm); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("状態通知数 = %d, want 2", len(seen))
	}
	if !seen[0].Loading() {
		t.Error("最初の通知はloadingであるべき")
	}
	final := seen[1]
	if final.Loading() || !final.Authenticated() {
		t.Errorf("最終状態が不正: %+v", final)
	}
	if _, ok := final.Error(); ok {
		t.Error("成功時にエラーが設定されている")
	}
	if tok, _ := tokens.Read(); tok != "new-token" {
		t.Errorf("トークンストア = %q, want new-token", tok)
	}
	if ref, _ := tokens.RefreshToken(); ref != "new-refresh" {
		t.Errorf("リフレッシュトークン = %q", ref)
	}
}

func TestLogin_Failure_LeavesCredentialAndStoreUnchanged(t *testing.T) {
	apiErr := &transport.Error{
		Kind:       transport.KindStatus,
		StatusCode: 400,
		APIError:   model.NewInvalidLoginError(),
	}
	api := &fakeAPI{loginErr: apiErr}
	tokens := &memTokens{token: "prior-token", refresh: "prior-refresh"}
	c := newTestContainer(api, tokens, nil)

	err := c.Login(context.Background(), validForm)
	if !errors.Is(err, apiErr) {
		t.Errorf("呼び出し元にエラーが返されていない: %v", err)
	}

	s := c.State()
	if s.Loading() {
		t.Errorf("失敗後もloadingになっている: %+v", s)
	}
	if s.Credential.Token != "prior-token" || s.Credential.RefreshToken != "prior-refresh" {
		t.Errorf("失敗時に認可情報が変更された: %+v", s.Credential)
	}
	reason, ok := s.Error()
	if !ok {
		t.Fatal("エラー理由が設定されていない")
	}
	if !strings.Contains(reason, "通信エラー") || !strings.Contains(reason, "携帯電話番号または認証コードが正しくありません") {
		t.Errorf("Reason = %q", reason)
	}
	if tok, _ := tokens.Read(); tok != "prior-token" {
		t.Errorf("失敗時にトークンストアが変更された: token = %q", tok)
	}
	if ref, _ := tokens.RefreshToken(); ref != "prior-refresh" {
		t.Errorf("失敗時にトークンストアが変更された: refresh = %q", ref)
	}
}

func TestLogin_ReasonDistinguishesTransportFromOther(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		notWant string
	}{
		{"通信失敗", &transport.Error{Kind: transport.KindNetwork, Err: errors.New("refused")}, "（通信エラー）", "その他"},
		{"応答不正", &transport.Error{Kind: transport.KindMalformed}, "（通信エラー）", "その他"},
		{"その他", errors.New("unexpected"), "（その他のエラー）", "通信エラー"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContainer(&fakeAPI{loginErr: tt.err}, &memTokens{}, nil)
			_ = c.Login(context.Background(), validForm)

			reason, _ := c.State().Error()
			if !strings.Contains(reason, tt.want) || strings.Contains(reason, tt.notWant) {
				t.Errorf("Reason = %q", reason)
			}
		})
	}
}

func TestLogin_InvalidFormNotSent(t *testing.T) {
	api := &fakeAPI{}
	c := newTestContainer(api, &memTokens{}, nil)

	err := c.Login(context.Background(), model.LoginForm{Mobile: "123", Code: ""})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidationError が返されていない: %v", err)
	}
	if api.loginCalls != 0 {
		t.Error("入力エラー時にAPIが呼ばれた")
	}
	if reason, _ := c.State().Error(); !strings.Contains(reason, "入力エラー") {
		t.Errorf("Reason = %q", reason)
	}
}

func TestLogin_TokenSaveFailureRejects(t *testing.T) {
	api := &fakeAPI{loginResult: &model.AuthorizationResult{Token: "tok"}}
	c := newTestContainer(api, &memTokens{saveErr: errors.New("read-only")}, nil)

	if err := c.Login(context.Background(), validForm); err == nil {
		t.Fatal("保存失敗時はエラーを返すべき")
	}
	if c.State().Authenticated() {
		t.Error("保存失敗時に認可情報が設定された")
	}
}

func TestLogin_RejectsConcurrentLogin(t *testing.T) {
	api := &fakeAPI{
		loginResult: &model.AuthorizationResult{Token: "tok"},
		block:       make(chan struct{}),
	}
	c := newTestContainer(api, &memTokens{}, nil)

	started := make(chan struct{})
	c.Subscribe(func(s State) {
		if IsPending(s.Login) {
			close(started)
		}
	})

	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background(), validForm) }()
	<-started

	if err := c.Login(context.Background(), validForm); !errors.Is(err, ErrInFlight) {
		t.Errorf("実行中の2回目のLoginは ErrInFlight を返すべき: %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("最初のLoginが失敗した: %v", err)
	}
	if api.loginCalls != 1 {
		t.Errorf("API呼び出し回数 = %d, want 1", api.loginCalls)
	}
}

func TestFetchProfile_ReplacesProfileOnSuccess(t *testing.T) {
	api := &fakeAPI{profile: &model.UserProfile{Name: "editor"}}
	c := newTestContainer(api, &memTokens{token: "tok"}, nil)

	if err := c.FetchProfile(context.Background()); err != nil {
		t.Fatalf("FetchProfile がエラーを返した: %v", err)
	}
	s := c.State()
	if s.Profile == nil || s.Profile.Name != "editor" {
		t.Errorf("Profile = %+v", s.Profile)
	}
	if _, ok := s.ProfileFetch.(Fulfilled); !ok {
		t.Errorf("ProfileFetch = %T, want Fulfilled", s.ProfileFetch)
	}
}

func TestFetchProfile_FailureKeepsPriorProfile(t *testing.T) {
	api := &fakeAPI{profile: &model.UserProfile{Name: "editor"}}
	c := newTestContainer(api, &memTokens{token: "tok"}, nil)
	_ = c.FetchProfile(context.Background())

	api.profile = nil
	api.profileErr = &transport.Error{Kind: transport.KindStatus, StatusCode: 500}
	if err := c.FetchProfile(context.Background()); err == nil {
		t.Fatal("失敗時はエラーを返すべき")
	}

	s := c.State()
	if s.Profile == nil || s.Profile.Name != "editor" {
		t.Error("取得済みのプロフィールが破棄された")
	}
	if reason, ok := s.Error(); !ok || !strings.Contains(reason, "ステータス 500") {
		t.Errorf("Reason = %q", reason)
	}
}

func TestLogout_ClearsEverythingAndNavigates(t *testing.T) {
	api := &fakeAPI{profile: &model.UserProfile{Name: "editor"}}
	tokens := &memTokens{token: "tok", refresh: "r"}
	nav := &fakeNav{}
	c := newTestContainer(api, tokens, nav)
	_ = c.FetchProfile(context.Background())

	c.Logout()

	s := c.State()
	if s.Authenticated() || s.Profile != nil {
		t.Errorf("ログアウト後の状態が不正: %+v", s)
	}
	if _, ok := tokens.Read(); ok {
		t.Error("トークンストアが破棄されていない")
	}
	if nav.redirects != 1 {
		t.Errorf("ログイン画面への遷移回数 = %d, want 1", nav.redirects)
	}
}

func TestReset_RehydratesFromStore(t *testing.T) {
	api := &fakeAPI{profile: &model.UserProfile{Name: "editor"}}
	tokens := &memTokens{token: "tok"}
	c := newTestContainer(api, tokens, nil)
	_ = c.FetchProfile(context.Background())

	// 401応答でトークンが破棄された状況
	tokens.Clear()
	c.Reset()

	s := c.State()
	if s.Authenticated() || s.Profile != nil || s.Loading() {
		t.Errorf("Reset後の状態が不正: %+v", s)
	}
	if _, ok := s.Error(); ok {
		t.Error("Reset後にエラーが残っている")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := newTestContainer(&fakeAPI{}, &memTokens{}, nil)
	calls := 0
	unsubscribe := c.Subscribe(func(State) { calls++ })
	c.Dispatch(LoginPending{})
	unsubscribe()
	c.Dispatch(LoginRejected{Reason: "x"})

	if calls != 1 {
		t.Errorf("通知回数 = %d, want 1", calls)
	}
}

func TestMaskMobile(t *testing.T) {
	if got := maskMobile("13911112222"); got != "*******2222" {
		t.Errorf("maskMobile = %q", got)
	}
	if got := maskMobile("12"); got != "****" {
		t.Errorf("maskMobile = %q", got)
	}
}
