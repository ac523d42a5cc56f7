// Package articles は記事一覧の絞り込み条件とページングを管理する。
//
// 条件の変更は常にクエリ全体の置き換えとして扱い、1回の変更につき1回だけ取得を行う。
// 発行したクエリには単調増加する連番を付け、最新の連番の応答のみを反映する。
package articles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/geekcms/internal/metrics"
	"github.com/hitoshi/geekcms/internal/model"
)

// DefaultPageSize は1ページあたりの既定の件数。
const DefaultPageSize = 10

// ErrSuperseded は応答が届く前に新しいクエリが発行されたため、応答を破棄したことを示す。
var ErrSuperseded = errors.New("article query superseded by a newer query")

// Fetcher は記事一覧を取得するインターフェース。api.Clientが実装する。
type Fetcher interface {
	FetchArticles(ctx context.Context, query model.ArticleListQuery) (*model.ArticleListResult, error)
}

// ChannelSource は絞り込みフォーム用のチャンネル一覧を取得するインターフェース。
// 失敗時も空のスライスを返す。
type ChannelSource interface {
	FetchChannels(ctx context.Context) []model.Channel
}

// FilterForm は絞り込みフォームの入力値。
// BeginとEndはともにゼロ値（期間指定なし）か、ともに指定されている必要がある。
type FilterForm struct {
	Status    model.ArticleStatus
	ChannelID int
	Begin     time.Time
	End       time.Time
}

// dateRange は期間指定をYYYY-MM-DD形式に正規化する。
func (f FilterForm) dateRange() (*model.DateRange, error) {
	switch {
	case f.Begin.IsZero() && f.End.IsZero():
		return nil, nil
	case f.Begin.IsZero() || f.End.IsZero():
		return nil, fmt.Errorf("date range requires both begin and end")
	default:
		return model.NewDateRange(f.Begin, f.End)
	}
}

// Snapshot は一覧画面の表示用の状態。
type Snapshot struct {
	Query      model.ArticleListQuery
	Items      []model.Article
	TotalCount int
	Loaded     bool // 一度でも取得に成功したか
	Loading    bool
}

// Controller は記事一覧のクエリと取得結果を保持する。
type Controller struct {
	fetcher  Fetcher
	channels ChannelSource
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	mu       sync.Mutex
	query    model.ArticleListQuery
	seq      uint64
	items    []model.Article
	total    int
	loaded   bool
	inFlight int
}

// NewController はControllerを生成する。初期クエリは1ページ目、pageSize件。
func NewController(fetcher Fetcher, channels ChannelSource, pageSize int, logger *slog.Logger, m metrics.MetricsCollector) *Controller {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Controller{
		fetcher:  fetcher,
		channels: channels,
		logger:   logger,
		metrics:  m,
		query:    model.ArticleListQuery{Page: 1, PerPage: pageSize},
	}
}

// Submit は絞り込みフォームの内容でクエリを置き換え、1ページ目を取得する。
// 1ページあたりの件数は現在の値を引き継ぐ。
func (c *Controller) Submit(ctx context.Context, form FilterForm) (Snapshot, error) {
	dr, err := form.dateRange()
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	q := model.ArticleListQuery{
		Page:      1,
		PerPage:   c.query.PerPage,
		Status:    form.Status,
		ChannelID: form.ChannelID,
		DateRange: dr,
	}
	c.mu.Unlock()

	if err := q.Validate(); err != nil {
		return c.Snapshot(), err
	}
	return c.issue(ctx, q)
}

// ChangePage はページ番号のみを置き換えて取得する。絞り込み条件は保持する。
func (c *Controller) ChangePage(ctx context.Context, page int) (Snapshot, error) {
	if page < 1 {
		return c.Snapshot(), fmt.Errorf("page must be >= 1, got %d", page)
	}

	c.mu.Lock()
	q := c.query.WithPage(page)
	c.mu.Unlock()

	return c.issue(ctx, q)
}

// Refresh は現在のクエリで再取得する。
func (c *Controller) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	q := c.query
	c.mu.Unlock()

	return c.issue(ctx, q)
}

// Reset はクエリを初期状態に戻し、取得済みの結果を破棄する。
// 取得中の応答は到着しても反映されない。
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = model.ArticleListQuery{Page: 1, PerPage: c.query.PerPage}
	c.items = nil
	c.total = 0
	c.loaded = false
	c.seq++
}

// Channels は絞り込みフォーム用のチャンネル一覧を返す。
func (c *Controller) Channels(ctx context.Context) []model.Channel {
	return c.channels.FetchChannels(ctx)
}

// Snapshot は現在の状態のコピーを返す。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	items := make([]model.Article, len(c.items))
	copy(items, c.items)
	return Snapshot{
		Query:      c.query,
		Items:      items,
		TotalCount: c.total,
		Loaded:     c.loaded,
		Loading:    c.inFlight > 0,
	}
}

// issue はクエリを現在のクエリとして記録し、1回だけ取得する。
// 取得中に新しいクエリが発行された場合は応答を破棄してErrSupersededを返す。
// 破棄された取得が失敗していた場合はそのエラーを返す。
// 取得に失敗した場合は前回の結果を保持したままエラーを返す。
func (c *Controller) issue(ctx context.Context, q model.ArticleListQuery) (Snapshot, error) {
	c.mu.Lock()
	c.query = q
	c.seq++
	seq := c.seq
	c.inFlight++
	c.mu.Unlock()

	result, err := c.fetcher.FetchArticles(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if seq != c.seq {
		if err != nil {
			return c.snapshotLocked(), err
		}
		c.metrics.RecordStaleDiscard()
		c.logger.Debug("stale_article_response_discarded",
			slog.Uint64("seq", seq),
			slog.Uint64("latest_seq", c.seq),
		)
		return c.snapshotLocked(), ErrSuperseded
	}

	if err != nil {
		c.logger.Warn("article_fetch_failed",
			slog.Int("page", q.Page),
			slog.String("error", err.Error()),
		)
		return c.snapshotLocked(), err
	}

	c.items = result.Items
	c.total = result.TotalCount
	c.loaded = true
	return c.snapshotLocked(), nil
}
