package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/geekcms/internal/metrics"
	"github.com/hitoshi/geekcms/internal/middleware"
)

// Config はスタブサーバーの設定。
type Config struct {
	Port          string
	RateLimit     float64 // クライアントごとのreq/sec。0以下は既定値
	AllowedOrigin string
	TokenTTL      time.Duration
}

// Server はスタブAPIサーバー。
type Server struct {
	Store   *Store
	Auth    *AuthService
	handler http.Handler
	limiter *middleware.RateLimiter
	cfg     Config
	logger  *slog.Logger
}

// NewServer は初期データ入りのスタブサーバーを生成する。
// gathererがnilの場合は/metricsを公開しない。
func NewServer(cfg Config, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	store := NewSeededStore()
	auth := NewAuthService(store, cfg.TokenTTL, logger)

	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimit > 0 {
		rlCfg.Rate = rate.Limit(cfg.RateLimit)
		rlCfg.Burst = max(1, int(cfg.RateLimit*2))
	}
	limiter := middleware.NewRateLimiter(rlCfg, logger)

	s := &Server{
		Store:   store,
		Auth:    auth,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
	s.handler = NewRouter(&RouterDeps{
		Handler:       NewHandler(auth, store, logger),
		Resolver:      auth,
		RateLimiter:   limiter,
		AllowedOrigin: cfg.AllowedOrigin,
		Gatherer:      gatherer,
		Logger:        logger,
	})
	return s
}

// Handler はルーティング済みのhttp.Handlerを返す。httptestで利用する。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	s.limiter.Stop()
}

// Run はサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	server := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock_server_starting",
			slog.String("addr", server.Addr),
			slog.String("login_code", TestCode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mock server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("mock_server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock server shutdown failed: %w", err)
	}

	s.logger.Info("mock_server_stopped")
	return nil
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Handler       *Handler
	Resolver      middleware.TokenResolver
	RateLimiter   *middleware.RateLimiter
	AllowedOrigin string
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Bearer) → RateLimit
//
// ログインとチャンネル一覧はBearerの外に配置し、リモートIP単位でレート制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigin))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	h := deps.Handler

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())
		r.Post("/authorization", h.Login)
		r.Get("/channels", h.Channels)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.Resolver, deps.Logger))
		r.Use(deps.RateLimiter.Middleware())

		r.Get("/user/profile", h.Profile)

		r.Route("/mp/articles", func(r chi.Router) {
			r.Get("/", h.ListArticles)
			r.Post("/", h.CreateArticle)
			r.Get("/{id}", h.GetArticle)
		})
	})

	return r
}
