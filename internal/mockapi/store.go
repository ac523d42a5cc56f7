package mockapi

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/geekcms/internal/model"
)

// pubDateLayout は記事の公開日時の形式。
const pubDateLayout = "2006-01-02 15:04:05"

// ArticleFilter は記事一覧の絞り込み条件。
type ArticleFilter struct {
	Status    model.ArticleStatus
	ChannelID int
	Begin     string // YYYY-MM-DD。空の場合は無制限
	End       string
	Page      int
	PerPage   int
}

// storedArticle は記事と所属チャンネル・本文を保持する。
type storedArticle struct {
	model.Article
	ChannelID int
	Content   string
}

// Store はスタブサーバーのインメモリデータストア。
type Store struct {
	mu       sync.RWMutex
	users    map[string]model.UserProfile // mobile -> profile
	byID     map[string]model.UserProfile
	channels []model.Channel
	articles []storedArticle // 公開日時の降順
	now      func() time.Time
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users: make(map[string]model.UserProfile),
		byID:  make(map[string]model.UserProfile),
		now:   time.Now,
	}
}

// NewSeededStore は開発用の初期データを投入したStoreを生成する。
func NewSeededStore() *Store {
	s := NewStore()

	intro := "フロントエンドエンジニア"
	s.AddUser(model.UserProfile{
		ID:       "1",
		Photo:    "https://example.com/avatar/1.png",
		Name:     "geek",
		Mobile:   "13911111111",
		Gender:   1,
		Birthday: "1990-01-01",
		Intro:    &intro,
	})

	s.channels = []model.Channel{
		{ID: 0, Name: "推奨"},
		{ID: 1, Name: "html"},
		{ID: 2, Name: "開発者情報"},
		{ID: 3, Name: "c++"},
		{ID: 4, Name: "css"},
		{ID: 5, Name: "データベース"},
		{ID: 6, Name: "go"},
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		status := model.ArticleStatusApproved
		if i%3 == 0 {
			status = model.ArticleStatusPending
		}
		s.insert(storedArticle{
			Article: model.Article{
				ID:           uuid.NewString(),
				Title:        fmt.Sprintf("サンプル記事 %02d", i+1),
				Status:       status,
				CommentCount: i % 5,
				PubDate:      base.AddDate(0, 0, i*3).Format(pubDateLayout),
				Cover:        model.ArticleCover{Type: 0, Images: []string{}},
				LikeCount:    i * 2,
				ReadCount:    i * 10,
			},
			ChannelID: 1 + i%6,
			Content:   fmt.Sprintf("<p>サンプル本文 %d</p>", i+1),
		})
	}

	return s
}

// AddUser はユーザーを追加する。
func (s *Store) AddUser(u model.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Mobile] = u
	s.byID[u.ID] = u
}

// UserByMobile は携帯電話番号からユーザーを返す。
func (s *Store) UserByMobile(mobile string) (*model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[mobile]
	if !ok {
		return nil, false
	}
	return &u, true
}

// UserByID はユーザーIDからユーザーを返す。
func (s *Store) UserByID(id string) (*model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

// Channels はチャンネル一覧を返す。
func (s *Store) Channels() []model.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// HasChannel はチャンネルが存在するかを返す。
func (s *Store) HasChannel(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.channels {
		if c.ID == id {
			return true
		}
	}
	return false
}

// ListArticles は条件に一致する記事の指定ページと総件数を返す。
func (s *Store) ListArticles(f ArticleFilter) ([]model.Article, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.Article, 0, len(s.articles))
	for _, a := range s.articles {
		if f.Status != model.ArticleStatusAll && a.Status != f.Status {
			continue
		}
		if f.ChannelID != 0 && a.ChannelID != f.ChannelID {
			continue
		}
		day := a.PubDate
		if len(day) >= len(model.DateLayout) {
			day = day[:len(model.DateLayout)]
		}
		if f.Begin != "" && day < f.Begin {
			continue
		}
		if f.End != "" && day > f.End {
			continue
		}
		matched = append(matched, a.Article)
	}

	total := len(matched)
	start := (f.Page - 1) * f.PerPage
	if start >= total {
		return []model.Article{}, total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// Article はIDに対応する記事を返す。
func (s *Store) Article(id string) (*model.Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.ID == id {
			article := a.Article
			return &article, true
		}
	}
	return nil, false
}

// CreateArticle は下書きから審査待ちの記事を作成する。
func (s *Store) CreateArticle(d model.ArticleDraft) model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := storedArticle{
		Article: model.Article{
			ID:      uuid.NewString(),
			Title:   d.Title,
			Status:  model.ArticleStatusPending,
			PubDate: s.now().UTC().Format(pubDateLayout),
			Cover:   model.ArticleCover{Type: 0, Images: []string{}},
		},
		ChannelID: d.ChannelID,
		Content:   d.Content,
	}
	s.insertLocked(a)
	return a.Article
}

func (s *Store) insert(a storedArticle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(a)
}

func (s *Store) insertLocked(a storedArticle) {
	s.articles = append(s.articles, a)
	sort.SliceStable(s.articles, func(i, j int) bool {
		return s.articles[i].PubDate > s.articles[j].PubDate
	})
}

// compile-time interface check
var _ UserFinder = (*Store)(nil)
