// Package importer はRSS/Atomフィードの記事を公開フォームの下書きとして取り込む。
package importer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/geekcms/internal/model"
)

const (
	// DefaultTimeout はフィード取得のタイムアウト。
	DefaultTimeout = 10 * time.Second
	// DefaultMaxSize はフィード本文の最大サイズ（5MiB）。
	DefaultMaxSize = 5 << 20
	// maxTitleRunes は下書きタイトルの最大文字数。公開フォームの入力規則に合わせる。
	maxTitleRunes = 100
)

// ErrEntryNotFound は指定した番号の記事がフィードに存在しないことを示す。
var ErrEntryNotFound = errors.New("feed entry not found")

// URLChecker は取得前にURLを検証するインターフェース。security.URLGuardが実装する。
type URLChecker interface {
	Check(rawURL string) error
}

// SafeClientFactory はSSRF対策済みのHTTPクライアントを生成するインターフェース。
type SafeClientFactory interface {
	URLChecker
	Client(timeout time.Duration) *http.Client
}

// Entry はフィード内の記事1件の概要。
type Entry struct {
	Index     int
	Title     string
	Link      string
	Published *time.Time
}

// Option はImporterの生成オプション。
type Option func(*Importer)

// WithHTTPClient はフィード取得に使うHTTPクライアントを差し替える。
func WithHTTPClient(c *http.Client) Option {
	return func(i *Importer) {
		i.client = c
	}
}

// WithURLChecker は取得前のURL検証を差し替える。
func WithURLChecker(c URLChecker) Option {
	return func(i *Importer) {
		i.checker = c
	}
}

// Importer はフィードを取得して下書きを生成する。
type Importer struct {
	client  *http.Client
	checker URLChecker
	maxSize int64
	parser  *gofeed.Parser
	logger  *slog.Logger
}

// New はImporterを生成する。HTTPクライアントはguardが生成するSSRF対策済みのものを使う。
func New(guard SafeClientFactory, timeout time.Duration, maxSize int64, logger *slog.Logger, opts ...Option) *Importer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	i := &Importer{
		checker: guard,
		maxSize: maxSize,
		parser:  gofeed.NewParser(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.client == nil {
		i.client = guard.Client(timeout)
	}
	return i
}

// Entries はフィードの記事一覧を返す。
func (i *Importer) Entries(ctx context.Context, feedURL string) ([]Entry, error) {
	feed, err := i.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(feed.Items))
	for idx, item := range feed.Items {
		entries = append(entries, Entry{
			Index:     idx,
			Title:     strings.TrimSpace(item.Title),
			Link:      item.Link,
			Published: item.PublishedParsed,
		})
	}
	return entries, nil
}

// Draft はフィードのindex番目（0始まり）の記事から下書きを生成する。
// チャンネルは設定しないため、公開前に利用者が選択する必要がある。
func (i *Importer) Draft(ctx context.Context, feedURL string, index int) (*model.ArticleDraft, error) {
	feed, err := i.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(feed.Items) {
		return nil, fmt.Errorf("%w: index %d (feed has %d entries)", ErrEntryNotFound, index, len(feed.Items))
	}

	item := feed.Items[index]
	content := item.Content
	if strings.TrimSpace(content) == "" {
		content = item.Description
	}
	if strings.TrimSpace(content) == "" {
		content = "<p></p>"
	}
	if item.Link != "" {
		content += fmt.Sprintf(`<p><a href="%s">原文を読む</a></p>`, html.EscapeString(item.Link))
	}

	i.logger.Info("feed_entry_imported",
		slog.String("feed_url", feedURL),
		slog.Int("index", index),
	)

	return &model.ArticleDraft{
		Title:   truncateRunes(strings.TrimSpace(item.Title), maxTitleRunes),
		Content: content,
	}, nil
}

func (i *Importer) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if err := i.checker.Check(feedURL); err != nil {
		return nil, fmt.Errorf("feed URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "geekctl/1.0 (+feed import)")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("feed_fetch_failed",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch feed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if int64(len(body)) > i.maxSize {
		return nil, fmt.Errorf("feed exceeds maximum size of %d bytes", i.maxSize)
	}

	feed, err := i.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
