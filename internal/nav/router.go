package nav

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ルート名
const (
	RouteHome          = "home"
	RouteArticles      = "article"
	RouteArticleDetail = "article_detail"
	RoutePublish       = "publish"
	RouteLogin         = "login"
	RouteNotFound      = "not_found"
)

// LoginPath はログイン画面のパス。
const LoginPath = "/login"

// Route は画面1つ分のルート定義。
type Route struct {
	Name      string
	Pattern   string
	Protected bool
}

// Routes は画面のルート表。Protectedなルートはガードの許可が必要。
var Routes = []Route{
	{Name: RouteHome, Pattern: "/", Protected: true},
	{Name: RouteArticles, Pattern: "/article", Protected: true},
	{Name: RouteArticleDetail, Pattern: "/article/{id}", Protected: true},
	{Name: RoutePublish, Pattern: "/publish", Protected: true},
	{Name: RouteLogin, Pattern: LoginPath},
}

// Location は遷移先の解決結果。
type Location struct {
	Path       string
	Route      string
	Pattern    string
	Params     map[string]string
	Redirected bool   // ガードによりログイン画面へ差し替えられた
	From       string // Redirected の場合の元のパス
}

// Param はURLパラメータの値を返す。
func (l Location) Param(name string) string {
	return l.Params[name]
}

// Options は遷移のオプション。
type Options struct {
	// Replace が true の場合は履歴の現在位置を置き換える。
	Replace bool
}

// Router はルート表に基づいてパスを解決し、遷移履歴を管理する。
type Router struct {
	guard  *Guard
	logger *slog.Logger
	mux    *chi.Mux
	routes map[string]Route // パターン別

	mu        sync.Mutex
	history   []Location
	listeners map[int]func(Location)
	nextID    int
}

// NewRouter はRouterを生成する。
func NewRouter(guard *Guard, logger *slog.Logger) *Router {
	r := &Router{
		guard:     guard,
		logger:    logger,
		mux:       chi.NewRouter(),
		routes:    make(map[string]Route, len(Routes)),
		listeners: make(map[int]func(Location)),
	}

	// ハンドラーは実行しない。パターンの照合にのみ使う
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for _, rt := range Routes {
		r.mux.Get(rt.Pattern, noop)
		r.routes[rt.Pattern] = rt
	}

	return r
}

// Resolve はパスをルート表と照合する。一致しない場合は not_found のLocationを返す。
func (r *Router) Resolve(path string) (Location, Route) {
	path = normalize(path)

	rctx := chi.NewRouteContext()
	pattern := r.mux.Find(rctx, http.MethodGet, path)
	rt, ok := r.routes[pattern]
	if !ok {
		return Location{Path: path, Route: RouteNotFound}, Route{Name: RouteNotFound}
	}

	var params map[string]string
	if n := len(rctx.URLParams.Keys); n > 0 {
		params = make(map[string]string, n)
		for i, k := range rctx.URLParams.Keys {
			params[k] = rctx.URLParams.Values[i]
		}
	}

	return Location{Path: path, Route: rt.Name, Pattern: pattern, Params: params}, rt
}

// Navigate はパスへ遷移し、最終的な遷移先を返す。
// 保護されたルートでガードが拒否した場合はログイン画面へ遷移し、履歴を置き換える。
func (r *Router) Navigate(path string, opts Options) Location {
	loc := r.guarded(path)
	if loc.Redirected {
		opts.Replace = true
	}

	r.mu.Lock()
	if opts.Replace && len(r.history) > 0 {
		r.history[len(r.history)-1] = loc
	} else {
		r.history = append(r.history, loc)
	}
	r.mu.Unlock()

	r.logger.Debug("navigate",
		slog.String("path", loc.Path),
		slog.String("route", loc.Route),
		slog.Bool("replace", opts.Replace),
		slog.Bool("redirected", loc.Redirected),
	)
	r.notify(loc)
	return loc
}

// Back は履歴を1つ戻り、戻った先を返す。戻れない場合はfalseを返す。
// 戻った先の保護ルートも再度ガードで判定するため、認可情報が破棄された後に保護画面へ戻ることはない。
func (r *Router) Back() (Location, bool) {
	r.mu.Lock()
	if len(r.history) < 2 {
		r.mu.Unlock()
		return r.Current(), false
	}
	r.history = r.history[:len(r.history)-1]
	top := r.history[len(r.history)-1]
	r.mu.Unlock()

	loc := r.guarded(top.Path)

	r.mu.Lock()
	r.history[len(r.history)-1] = loc
	r.mu.Unlock()

	r.notify(loc)
	return loc, true
}

// RedirectToLogin はログイン画面へ遷移し、履歴の現在位置を置き換える。
func (r *Router) RedirectToLogin() {
	r.Navigate(LoginPath, Options{Replace: true})
}

// Current は現在の遷移先を返す。一度も遷移していない場合はゼロ値を返す。
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Location{}
	}
	return r.history[len(r.history)-1]
}

// History は遷移履歴のコピーを返す。
func (r *Router) History() []Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Location, len(r.history))
	copy(out, r.history)
	return out
}

// OnChange は遷移の通知先を登録し、登録解除関数を返す。
func (r *Router) OnChange(fn func(Location)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// guarded はパスを解決し、ガードが拒否した場合はログイン画面のLocationを返す。
func (r *Router) guarded(path string) Location {
	loc, rt := r.Resolve(path)
	if !rt.Protected || r.guard.Allow() {
		return loc
	}

	login, _ := r.Resolve(LoginPath)
	login.Redirected = true
	login.From = loc.Path
	r.logger.Info("navigation_guard_redirect", slog.String("from", loc.Path))
	return login
}

func (r *Router) notify(loc Location) {
	r.mu.Lock()
	listeners := make([]func(Location), 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(loc)
	}
}

// normalize はクエリ文字列を除き、先頭のスラッシュを補う。
func normalize(path string) string {
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
