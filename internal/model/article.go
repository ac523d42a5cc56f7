// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DateLayout は記事一覧の期間指定に使う日付フォーマット（YYYY-MM-DD）。
const DateLayout = "2006-01-02"

// Channel は記事の配信チャンネルを表す。参照専用データ。
type Channel struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ArticleStatus は記事の審査状態を表す。
type ArticleStatus int

const (
	// ArticleStatusAll は状態で絞り込まないことを示す（クエリでは省略される）。
	ArticleStatusAll ArticleStatus = 0
	// ArticleStatusPending は審査待ち。
	ArticleStatusPending ArticleStatus = 1
	// ArticleStatusApproved は審査通過。
	ArticleStatusApproved ArticleStatus = 2
)

// Known は定義済みの状態かを返す。
func (s ArticleStatus) Known() bool {
	return s == ArticleStatusPending || s == ArticleStatusApproved
}

// Label は画面表示用の状態名を返す。未定義の値は「不明」となる。
func (s ArticleStatus) Label() string {
	switch s {
	case ArticleStatusPending:
		return "審査待ち"
	case ArticleStatusApproved:
		return "審査通過"
	default:
		return "不明"
	}
}

// ParseArticleStatus はCLI入力などの文字列を状態に変換する。
// 空文字列と"all"はArticleStatusAllとして扱う。
func ParseArticleStatus(s string) (ArticleStatus, error) {
	switch s {
	case "", "all", "0":
		return ArticleStatusAll, nil
	case "pending", "1":
		return ArticleStatusPending, nil
	case "approved", "2":
		return ArticleStatusApproved, nil
	default:
		return ArticleStatusAll, fmt.Errorf("unknown article status: %q", s)
	}
}

// ArticleCover は記事のカバー画像設定。
type ArticleCover struct {
	Type   int      `json:"type"`
	Images []string `json:"images"`
}

// FirstImage は先頭のカバー画像URLを返す。画像がない場合は空文字列。
func (c ArticleCover) FirstImage() string {
	if len(c.Images) == 0 {
		return ""
	}
	return c.Images[0]
}

// Article はサーバー側の記事の読み取り専用射影。
// クライアント側では変更せず、再取得によってのみ更新する。
type Article struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Status       ArticleStatus `json:"status"`
	CommentCount int           `json:"comment_count"`
	PubDate      string        `json:"pubdate"`
	Cover        ArticleCover  `json:"cover"`
	LikeCount    int           `json:"like_count"`
	ReadCount    int           `json:"read_count"`
}

// DateRange は記事一覧の公開日による絞り込み期間。
// 開始日と終了日は常に組で存在する。
type DateRange struct {
	Begin string
	End   string
}

// NewDateRange は2つの日付から期間を生成する。beginがendより後の場合はエラーを返す。
func NewDateRange(begin, end time.Time) (*DateRange, error) {
	b := begin.Format(DateLayout)
	e := end.Format(DateLayout)
	if b > e {
		return nil, fmt.Errorf("invalid date range: %s is after %s", b, e)
	}
	return &DateRange{Begin: b, End: e}, nil
}

// ArticleListQuery は記事一覧の取得条件。
// 変更時は部分更新せず、常に新しい値として置き換える。
type ArticleListQuery struct {
	Page      int
	PerPage   int
	Status    ArticleStatus // ArticleStatusAll の場合は省略
	ChannelID int           // 0 の場合は省略
	DateRange *DateRange    // nil の場合は開始日・終了日ともに省略
}

// Validate はクエリの不変条件を検証する。
func (q ArticleListQuery) Validate() error {
	if q.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", q.Page)
	}
	if q.PerPage < 1 {
		return fmt.Errorf("per_page must be >= 1, got %d", q.PerPage)
	}
	if q.ChannelID < 0 {
		return fmt.Errorf("channel_id must not be negative, got %d", q.ChannelID)
	}
	if q.DateRange != nil {
		if _, err := time.Parse(DateLayout, q.DateRange.Begin); err != nil {
			return fmt.Errorf("invalid begin_pubdate %q: %w", q.DateRange.Begin, err)
		}
		if _, err := time.Parse(DateLayout, q.DateRange.End); err != nil {
			return fmt.Errorf("invalid end_pubdate %q: %w", q.DateRange.End, err)
		}
	}
	return nil
}

// WithPage はページ番号のみを差し替えたクエリのコピーを返す。
func (q ArticleListQuery) WithPage(page int) ArticleListQuery {
	q.Page = page
	return q
}

// Values は GET /mp/articles のクエリパラメータを生成する。
// 未指定のフィルタ項目はパラメータに含めない。
func (q ArticleListQuery) Values() url.Values {
	v := url.Values{}
	if q.Status != ArticleStatusAll {
		v.Set("status", strconv.Itoa(int(q.Status)))
	}
	if q.ChannelID != 0 {
		v.Set("channel_id", strconv.Itoa(q.ChannelID))
	}
	if q.DateRange != nil {
		v.Set("begin_pubdate", q.DateRange.Begin)
		v.Set("end_pubdate", q.DateRange.End)
	}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("per_page", strconv.Itoa(q.PerPage))
	return v
}

// ArticleListResult は記事一覧の取得結果。クエリ変更ごとに再計算され、前回結果とは統合しない。
type ArticleListResult struct {
	Page       int
	PerPage    int
	Items      []Article
	TotalCount int
}

// ArticleDraft は公開前の記事の入力値。Contentはエディタが出力したHTML。
type ArticleDraft struct {
	Title     string `json:"title" validate:"required,max=100"`
	ChannelID int    `json:"channel_id" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required"`
}

// Validate は公開フォームの入力規則を検証する。
func (d ArticleDraft) Validate() error {
	return validateStruct(d)
}

// PublishResult は POST /mp/articles のレスポンスペイロード。
type PublishResult struct {
	Article *Article `json:"article"`
}
