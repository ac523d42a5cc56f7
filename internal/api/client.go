// Package api はCMSプラットフォームAPIの型付きリクエストビルダーを提供する。
//
// 各操作は1つのエンドポイントに対応し、応答ペイロードの形のみを確認する。
// 意味的な検証はサーバーの責務とする。
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hitoshi/geekcms/internal/metrics"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/transport"
)

// ChannelFetchFailedMessage はチャンネル取得失敗時にユーザーへ通知するメッセージ。
const ChannelFetchFailedMessage = "チャンネル一覧の取得に失敗しました。"

const (
	defaultCacheSize = 128
	defaultCacheTTL  = time.Minute
)

// Doer は認可付きリクエストを送信するインターフェース。
// transport.Clientが実装する。
type Doer interface {
	Do(ctx context.Context, req transport.Request, out any) error
}

// Notifier はユーザー向けの一時的な通知を表示するインターフェース。
type Notifier interface {
	Error(format string, args ...interface{})
}

// CacheConfig は記事詳細キャッシュの設定。
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// Client はドメインAPIクライアント。
type Client struct {
	doer     Doer
	notifier Notifier
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	articles *expirable.LRU[string, model.Article]
}

// NewClient はClientを生成する。
func NewClient(doer Doer, notifier Notifier, logger *slog.Logger, m metrics.MetricsCollector, cache CacheConfig) *Client {
	if cache.Size <= 0 {
		cache.Size = defaultCacheSize
	}
	if cache.TTL <= 0 {
		cache.TTL = defaultCacheTTL
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		doer:     doer,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		articles: expirable.NewLRU[string, model.Article](cache.Size, nil, cache.TTL),
	}
}

// Login は携帯電話番号と認証コードで認可情報を取得する。
func (c *Client) Login(ctx context.Context, form model.LoginForm) (*model.AuthorizationResult, error) {
	var result model.AuthorizationResult
	err := c.doer.Do(ctx, transport.Request{
		Op:     "login",
		Method: http.MethodPost,
		Path:   "/authorization",
		Body:   form,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if result.Token == "" {
		return nil, malformed("login", http.MethodPost, "/authorization", "token is missing")
	}
	return &result, nil
}

// FetchProfile はログイン中ユーザーのプロフィールを取得する。
func (c *Client) FetchProfile(ctx context.Context) (*model.UserProfile, error) {
	var profile model.UserProfile
	err := c.doer.Do(ctx, transport.Request{
		Op:     "fetch_profile",
		Method: http.MethodGet,
		Path:   "/user/profile",
	}, &profile)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &profile, nil
}

// FetchChannels はチャンネル一覧を取得する。
// チャンネルは補助データのため、失敗時はエラーを返さずに通知を出して空のスライスを返す。
func (c *Client) FetchChannels(ctx context.Context) []model.Channel {
	var payload struct {
		Channels *[]model.Channel `json:"channels"`
	}
	err := c.doer.Do(ctx, transport.Request{
		Op:     "fetch_channels",
		Method: http.MethodGet,
		Path:   "/channels",
	}, &payload)
	if err == nil && payload.Channels == nil {
		err = malformed("fetch_channels", http.MethodGet, "/channels", "channels field is missing")
	}
	if err != nil {
		c.logger.Warn("channel_fetch_failed", slog.String("error", err.Error()))
		c.metrics.RecordChannelFallback()
		if c.notifier != nil {
			c.notifier.Error(ChannelFetchFailedMessage)
		}
		return []model.Channel{}
	}
	return *payload.Channels
}

// articleListPayload は GET /mp/articles のレスポンスペイロード。
type articleListPayload struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	Results    *[]model.Article `json:"results"`
	TotalCount int              `json:"total_count"`
}

// FetchArticles は条件に一致する記事一覧を取得する。
// 空の一覧と取得失敗を区別するため、失敗時はエラーを返す。
func (c *Client) FetchArticles(ctx context.Context, query model.ArticleListQuery) (*model.ArticleListResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}

	var payload articleListPayload
	err := c.doer.Do(ctx, transport.Request{
		Op:     "fetch_articles",
		Method: http.MethodGet,
		Path:   "/mp/articles",
		Query:  query.Values(),
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch articles: %w", err)
	}
	if payload.Results == nil {
		return nil, malformed("fetch_articles", http.MethodGet, "/mp/articles", "results field is missing")
	}

	for _, a := range *payload.Results {
		c.articles.Add(a.ID, a)
	}

	return &model.ArticleListResult{
		Page:       payload.Page,
		PerPage:    payload.PerPage,
		Items:      *payload.Results,
		TotalCount: payload.TotalCount,
	}, nil
}

// FetchArticle は記事1件を取得する。取得済みの記事はキャッシュから返す。
func (c *Client) FetchArticle(ctx context.Context, id string) (*model.Article, error) {
	if id == "" {
		return nil, fmt.Errorf("fetch article: id is required")
	}
	if a, ok := c.articles.Get(id); ok {
		c.logger.Debug("article_cache_hit", slog.String("article_id", id))
		return &a, nil
	}

	var article model.Article
	path := "/mp/articles/" + url.PathEscape(id)
	err := c.doer.Do(ctx, transport.Request{
		Op:     "fetch_article",
		Method: http.MethodGet,
		Path:   path,
	}, &article)
	if err != nil {
		return nil, fmt.Errorf("fetch article: %w", err)
	}

	c.articles.Add(article.ID, article)
	return &article, nil
}

// PublishArticle は記事を公開し、作成された記事を返す。
func (c *Client) PublishArticle(ctx context.Context, draft model.ArticleDraft) (*model.Article, error) {
	var result model.PublishResult
	err := c.doer.Do(ctx, transport.Request{
		Op:     "publish_article",
		Method: http.MethodPost,
		Path:   "/mp/articles",
		Body:   draft,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("publish article: %w", err)
	}
	if result.Article == nil {
		return nil, malformed("publish_article", http.MethodPost, "/mp/articles", "article field is missing")
	}

	c.articles.Add(result.Article.ID, *result.Article)
	return result.Article, nil
}

// Purge は記事詳細キャッシュを破棄する。セッションのリセット時に呼ばれる。
func (c *Client) Purge() {
	c.articles.Purge()
}

func malformed(op, method, path, reason string) error {
	return &transport.Error{
		Kind:       transport.KindMalformed,
		Op:         op,
		Method:     method,
		Path:       path,
		StatusCode: http.StatusOK,
		Err:        errors.New(reason),
	}
}

// compile-time interface check
var _ Doer = (*transport.Client)(nil)
