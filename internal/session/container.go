package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/transport"
)

// ErrInFlight は同じ種類の操作が実行中であることを示す。
var ErrInFlight = errors.New("operation already in flight")

// API はセッションが利用するドメインAPIのインターフェース。
type API interface {
	Login(ctx context.Context, form model.LoginForm) (*model.AuthorizationResult, error)
	FetchProfile(ctx context.Context) (*model.UserProfile, error)
}

// TokenStore は認可情報の永続化インターフェース。token.Storeが実装する。
type TokenStore interface {
	Save(token string) error
	SaveRefreshToken(token string) error
	Read() (string, bool)
	RefreshToken() (string, bool)
	Clear() error
}

// Navigator はログイン画面への遷移を行うインターフェース。nav.Routerが実装する。
type Navigator interface {
	RedirectToLogin()
}

// Container はセッション状態を保持し、意図を直列に適用する。
type Container struct {
	api    API
	tokens TokenStore
	nav    Navigator
	logger *slog.Logger

	// dispatchMu は意図の適用と購読者への通知を1件ずつに直列化する。
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

// New はContainerを生成する。認可情報はトークンストアから復元する。
// navがnilの場合、ログアウト時の画面遷移は行わない。
func New(api API, tokens TokenStore, nav Navigator, logger *slog.Logger) *Container {
	c := &Container{
		api:    api,
		tokens: tokens,
		nav:    nav,
		logger: logger,
		subs:   make(map[int]func(State)),
	}
	c.state = Initial(c.readCredential())
	return c
}

// State は現在の状態を返す。
func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe は状態変化の通知先を登録し、登録解除関数を返す。
// 通知はDispatchの中で同期的に行われるため、fnからDispatchを呼んではならない。
func (c *Container) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Dispatch は意図を適用して新しい状態を返す。
func (c *Container) Dispatch(a Action) State {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	next, _ := c.apply(a, nil)
	return next
}

// apply は状態を遷移させ購読者に通知する。dispatchMuを保持した状態で呼ぶ。
// guardがfalseを返した場合は遷移しない。
func (c *Container) apply(a Action, guard func(State) bool) (State, bool) {
	c.mu.Lock()
	if guard != nil && !guard(c.state) {
		s := c.state
		c.mu.Unlock()
		return s, false
	}
	c.state = Reduce(c.state, a)
	next := c.state
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, true
}

// begin は同じ種類の操作が実行中でなければ開始の意図を適用する。
func (c *Container) begin(a Action, pending func(State) bool) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	_, ok := c.apply(a, func(s State) bool { return !pending(s) })
	return ok
}

// Login はログインを行い、成功時は認可情報をトークンストアとセッションに保存する。
// 失敗時は理由を状態に記録した上でエラーを返す。認可情報とトークンストアは変更しない。
func (c *Container) Login(ctx context.Context, form model.LoginForm) error {
	if !c.begin(LoginPending{}, func(s State) bool { return IsPending(s.Login) }) {
		return ErrInFlight
	}

	if err := form.Validate(); err != nil {
		c.Dispatch(LoginRejected{Reason: reasonFor("ログイン", err)})
		return err
	}

	result, err := c.api.Login(ctx, form)
	if err != nil {
		c.logger.Warn("login_failed", slog.String("error", err.Error()))
		c.Dispatch(LoginRejected{Reason: reasonFor("ログイン", err)})
		return err
	}

	cred := result.Credential()
	if err := c.tokens.Save(cred.Token); err != nil {
		c.Dispatch(LoginRejected{Reason: reasonFor("ログイン", err)})
		return err
	}
	if err := c.tokens.SaveRefreshToken(cred.RefreshToken); err != nil {
		c.logger.Warn("refresh_token_save_failed", slog.String("error", err.Error()))
	}

	c.Dispatch(LoginFulfilled{Credential: cred})
	c.logger.Info("login_succeeded", slog.String("mobile", maskMobile(form.Mobile)))
	return nil
}

// FetchProfile はプロフィールを取得して状態に反映する。
// 失敗時は理由を記録し、取得済みのプロフィールは保持する。
func (c *Container) FetchProfile(ctx context.Context) error {
	if !c.begin(ProfilePending{}, func(s State) bool { return IsPending(s.ProfileFetch) }) {
		return ErrInFlight
	}

	profile, err := c.api.FetchProfile(ctx)
	if err != nil {
		c.logger.Warn("profile_fetch_failed", slog.String("error", err.Error()))
		c.Dispatch(ProfileRejected{Reason: reasonFor("プロフィールの取得", err)})
		return err
	}

	c.Dispatch(ProfileFulfilled{Profile: profile})
	return nil
}

// Logout はトークンストア、認可情報、プロフィールを破棄し、ログイン画面へ遷移する。
func (c *Container) Logout() {
	if err := c.tokens.Clear(); err != nil {
		c.logger.Error("token_clear_failed", slog.String("error", err.Error()))
	}
	c.Dispatch(LoggedOut{})
	c.logger.Info("logged_out")

	if c.nav != nil {
		c.nav.RedirectToLogin()
	}
}

// Reset はトークンストアから認可情報を再読み込みし、プロフィールと操作状態を破棄する。
// 401応答による強制ログアウトの後に呼ばれる。
func (c *Container) Reset() {
	c.Dispatch(Rehydrated{Credential: c.readCredential()})
	c.logger.Info("session_reset")
}

func (c *Container) readCredential() model.Credential {
	token, ok := c.tokens.Read()
	if !ok {
		return model.Credential{}
	}
	refresh, _ := c.tokens.RefreshToken()
	return model.Credential{Token: token, RefreshToken: refresh}
}

// reasonFor はエラーから画面表示用の理由を生成する。
// 通信層の失敗とそれ以外の失敗を区別する。
func reasonFor(op string, err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("%sに失敗しました（入力エラー）: %s", op, joinFieldMessages(verr))
	}

	var terr *transport.Error
	if !errors.As(err, &terr) {
		return fmt.Sprintf("%sに失敗しました（その他のエラー）: %s", op, err.Error())
	}

	var detail string
	switch terr.Kind {
	case transport.KindNetwork:
		detail = "サーバーに接続できませんでした。"
	case transport.KindUnauthorized:
		detail = "認証の有効期限が切れました。再度ログインしてください。"
	case transport.KindMalformed:
		detail = "サーバーの応答を解釈できませんでした。"
	default:
		if terr.APIError != nil && terr.APIError.Message != "" {
			detail = terr.APIError.Message
		} else {
			detail = fmt.Sprintf("サーバーエラーが発生しました（ステータス %d）。", terr.StatusCode)
		}
	}
	return fmt.Sprintf("%sに失敗しました（通信エラー）: %s", op, detail)
}

func joinFieldMessages(verr *model.ValidationError) string {
	msg := ""
	for i, f := range verr.Fields {
		if i > 0 {
			msg += " "
		}
		msg += f.Message
	}
	return msg
}

// maskMobile はログ出力用に携帯電話番号の末尾4桁以外を伏せる。
func maskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return "****"
	}
	return "*******" + mobile[len(mobile)-4:]
}
