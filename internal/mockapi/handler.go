package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/geekcms/internal/middleware"
	"github.com/hitoshi/geekcms/internal/model"
)

// maxRequestBody はリクエストボディの最大サイズ。
const maxRequestBody = 1 << 20

// Authenticator はログイン処理のインターフェース。AuthServiceが実装する。
type Authenticator interface {
	Login(ctx context.Context, mobile, code string) (*model.AuthorizationResult, error)
}

// Handler はスタブAPIのHTTPハンドラー。
type Handler struct {
	auth   Authenticator
	store  *Store
	logger *slog.Logger
}

// NewHandler はHandlerを生成する。
func NewHandler(auth Authenticator, store *Store, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, store: store, logger: logger}
}

// Login はログインを処理する。
// POST /authorization
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var form model.LoginForm
	if err := decodeBody(w, r, &form); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの形式が正しくありません"))
		return
	}

	result, err := h.auth.Login(r.Context(), form.Mobile, form.Code)
	if errors.Is(err, ErrInvalidLogin) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidLoginError())
		return
	}
	if err != nil {
		h.logger.Error("login_failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteEnvelope(w, http.StatusCreated, result)
}

// Profile はログインユーザーのプロフィールを返す。
// GET /user/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, ok := h.store.UserByID(userID)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	middleware.WriteEnvelope(w, http.StatusOK, profile)
}

// Channels はチャンネル一覧を返す。
// GET /channels
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	middleware.WriteEnvelope(w, http.StatusOK, map[string]any{
		"channels": h.store.Channels(),
	})
}

// articleListResponse は記事一覧のレスポンスペイロード。
type articleListResponse struct {
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	Results    []model.Article `json:"results"`
	TotalCount int             `json:"total_count"`
}

// ListArticles は条件に一致する記事一覧を返す。
// GET /mp/articles
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	filter, apiErr := parseArticleFilter(r)
	if apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	items, total := h.store.ListArticles(filter)
	middleware.WriteEnvelope(w, http.StatusOK, articleListResponse{
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Results:    items,
		TotalCount: total,
	})
}

// GetArticle は記事1件を返す。
// GET /mp/articles/{id}
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, ok := h.store.Article(id)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(id))
		return
	}
	middleware.WriteEnvelope(w, http.StatusOK, article)
}

// CreateArticle は記事を作成する。作成された記事は審査待ちになる。
// POST /mp/articles
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var draft model.ArticleDraft
	if err := decodeBody(w, r, &draft); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONの形式が正しくありません"))
		return
	}
	if draft.Title == "" || draft.Content == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("タイトルと本文は必須です"))
		return
	}
	if !h.store.HasChannel(draft.ChannelID) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewChannelNotFoundError(draft.ChannelID))
		return
	}

	article := h.store.CreateArticle(draft)
	h.logger.Info("article_created",
		slog.String("article_id", article.ID),
		slog.Int("channel_id", draft.ChannelID),
	)

	middleware.WriteEnvelope(w, http.StatusCreated, model.PublishResult{Article: &article})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	return dec.Decode(v)
}

// parseArticleFilter はクエリパラメータから絞り込み条件を組み立てる。
// 開始日と終了日は組で指定する必要がある。
func parseArticleFilter(r *http.Request) (ArticleFilter, *model.APIError) {
	q := r.URL.Query()
	f := ArticleFilter{Page: 1, PerPage: 10}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, model.NewInvalidRequestError("page は1以上の整数で指定してください")
		}
		f.Page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return f, model.NewInvalidRequestError("per_page は1から100の整数で指定してください")
		}
		f.PerPage = n
	}
	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !model.ArticleStatus(n).Known() {
			return f, model.NewInvalidRequestError("status が不正です")
		}
		f.Status = model.ArticleStatus(n)
	}
	if v := q.Get("channel_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, model.NewInvalidRequestError("channel_id が不正です")
		}
		f.ChannelID = n
	}

	begin, end := q.Get("begin_pubdate"), q.Get("end_pubdate")
	if (begin == "") != (end == "") {
		return f, model.NewInvalidRequestError("begin_pubdate と end_pubdate は同時に指定してください")
	}
	if begin != "" {
		if _, err := time.Parse(model.DateLayout, begin); err != nil {
			return f, model.NewInvalidRequestError("begin_pubdate の形式が正しくありません")
		}
		if _, err := time.Parse(model.DateLayout, end); err != nil {
			return f, model.NewInvalidRequestError("end_pubdate の形式が正しくありません")
		}
		f.Begin, f.End = begin, end
	}

	return f, nil
}
