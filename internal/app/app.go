// Package app はgeekctlの依存関係を組み立てるコンポジションルート。
package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/geekcms/internal/api"
	"github.com/hitoshi/geekcms/internal/articles"
	"github.com/hitoshi/geekcms/internal/config"
	"github.com/hitoshi/geekcms/internal/database"
	"github.com/hitoshi/geekcms/internal/importer"
	"github.com/hitoshi/geekcms/internal/metrics"
	"github.com/hitoshi/geekcms/internal/nav"
	"github.com/hitoshi/geekcms/internal/publish"
	"github.com/hitoshi/geekcms/internal/repository"
	"github.com/hitoshi/geekcms/internal/security"
	"github.com/hitoshi/geekcms/internal/session"
	"github.com/hitoshi/geekcms/internal/token"
	"github.com/hitoshi/geekcms/internal/transport"
)

// storageTimeout はPostgreSQLバックエンドの1操作あたりのタイムアウト。
const storageTimeout = 3 * time.Second

// Notifier は利用者への一時的な通知を表示するインターフェース。output.Printerが実装する。
type Notifier interface {
	Success(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Options はAppの生成オプション。
type Options struct {
	Notifier Notifier
	// Backend を指定した場合は設定のトークン保存先より優先する。
	Backend token.Backend
	// HTTPTransport はAPI呼び出しに使うRoundTripper。nilの場合はhttp.DefaultTransport。
	HTTPTransport http.RoundTripper
}

// App はgeekctlのコンポーネント一式を保持する。
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Tokens    *token.Store
	Transport *transport.Client
	API       *api.Client
	Session   *session.Container
	Router    *nav.Router
	Articles  *articles.Controller
	Publisher *publish.Publisher
	Importer  *importer.Importer

	db          *sql.DB
	unsubscribe func()
}

// New は設定からAppを組み立てる。
//
// 401応答を受けた場合は、ログイン画面へ履歴を置き換えて遷移し、
// セッションをトークンストアから再構築し、記事キャッシュを破棄する。
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	backend := opts.Backend
	if backend == nil {
		b, err := a.openBackend(cfg.Token)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	a.Tokens = token.NewStore(backend, cfg.Token.Key, logger)

	collector := metrics.NewCollector(a.Registry)

	var topts []transport.Option
	if opts.HTTPTransport != nil {
		topts = append(topts, transport.WithBaseTransport(opts.HTTPTransport))
	}
	tc, err := transport.New(transport.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, a.Tokens, logger, collector, topts...)
	if err != nil {
		a.closeDB()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	a.Transport = tc

	var notifier Notifier = silentNotifier{}
	if opts.Notifier != nil {
		notifier = opts.Notifier
	}

	a.API = api.NewClient(tc, notifier, logger, collector, api.CacheConfig{
		Size: cfg.Cache.ArticleSize,
		TTL:  cfg.Cache.ArticleTTL,
	})
	a.Router = nav.NewRouter(nav.NewGuard(a.Tokens), logger)
	a.Session = session.New(a.API, a.Tokens, a.Router, logger)
	a.Articles = articles.NewController(a.API, a.API, cfg.Articles.PageSize, logger, collector)
	a.Publisher = publish.NewPublisher(a.API, security.NewEditorSanitizer(), notifier, logger)
	a.Importer = importer.New(security.NewURLGuard(), cfg.Import.Timeout, cfg.Import.MaxSize, logger)

	// ログアウトと401による強制ログアウトのどちらでも、前のセッションの一覧と応答キャッシュを残さない。
	authed := a.Session.State().Authenticated()
	stopSession := a.Session.Subscribe(func(s session.State) {
		if authed && !s.Authenticated() {
			a.Articles.Reset()
			a.API.Purge()
			logger.Debug("session_ended_state_cleared")
		}
		authed = s.Authenticated()
	})
	stopUnauthorized := tc.OnUnauthorized(func(ev transport.UnauthorizedEvent) {
		a.Router.Navigate(nav.LoginPath, nav.Options{Replace: true})
		a.Session.Reset()
		logger.Info("forced_logout",
			slog.String("op", ev.Op),
			slog.String("request_id", ev.RequestID),
		)
	})
	a.unsubscribe = func() {
		stopUnauthorized()
		stopSession()
	}

	return a, nil
}

// openBackend は設定に応じたトークンの保存先を開く。
func (a *App) openBackend(cfg config.TokenConfig) (token.Backend, error) {
	switch cfg.Backend {
	case config.TokenBackendMemory:
		return token.NewMemoryBackend(), nil
	case config.TokenBackendPostgres:
		if _, err := database.MigrateStorage(cfg.DatabaseURL, a.Logger); err != nil {
			return nil, fmt.Errorf("failed to migrate token database: %w", err)
		}
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open token database: %w", err)
		}
		a.db = db
		return token.NewRepositoryBackend(repository.NewPostgresStorageRepo(db), storageTimeout), nil
	default:
		path := cfg.Path
		if path == "" {
			path = config.DefaultTokenPath()
		}
		return token.NewFileBackend(path, a.Logger), nil
	}
}

// Close はメトリクスのtextfileを書き出し、データベース接続を閉じる。
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	var firstErr error
	if path := a.Config.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path, a.Registry); err != nil {
			firstErr = fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}
	if err := a.closeDB(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeDB() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// silentNotifier は通知先が指定されない場合に使う。
type silentNotifier struct{}

func (silentNotifier) Success(string, ...interface{}) {}
func (silentNotifier) Error(string, ...interface{})   {}
