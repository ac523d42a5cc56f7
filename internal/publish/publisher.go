// Package publish は記事公開の手順（入力検証、サニタイズ、送信、通知）をまとめる。
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/render"
	"github.com/hitoshi/geekcms/internal/transport"
)

// ErrInFlight は公開処理が実行中であることを示す。
var ErrInFlight = errors.New("publish already in flight")

// API は記事を公開するインターフェース。api.Clientが実装する。
type API interface {
	PublishArticle(ctx context.Context, draft model.ArticleDraft) (*model.Article, error)
}

// Sanitizer はエディタのHTMLをサニタイズするインターフェース。security.EditorSanitizerが実装する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Notifier は公開結果を利用者に通知するインターフェース。
type Notifier interface {
	Success(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Publisher は記事の公開を行う。
type Publisher struct {
	api       API
	sanitizer Sanitizer
	notifier  Notifier
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewPublisher はPublisherを生成する。
func NewPublisher(api API, sanitizer Sanitizer, notifier Notifier, logger *slog.Logger) *Publisher {
	return &Publisher{
		api:       api,
		sanitizer: sanitizer,
		notifier:  notifier,
		logger:    logger,
	}
}

// Loading は公開処理が実行中かを返す。
func (p *Publisher) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// Publish は下書きを検証・サニタイズして公開し、結果を通知する。
// 入力エラーの場合は*model.ValidationErrorを返し、APIは呼ばない。
// 本文はサニタイズ後に表示されるテキストが残らない場合も未入力として扱う。
func (p *Publisher) Publish(ctx context.Context, draft model.ArticleDraft) (*model.Article, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, ErrInFlight
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	if err := draft.Validate(); err != nil {
		p.notifyValidation(err)
		return nil, err
	}

	draft.Content = p.sanitizer.Sanitize(draft.Content)
	if render.IsBlank(draft.Content) {
		draft.Content = ""
		err := draft.Validate()
		p.notifyValidation(err)
		return nil, err
	}

	article, err := p.api.PublishArticle(ctx, draft)
	if err != nil {
		p.logger.Warn("publish_failed",
			slog.Int("channel_id", draft.ChannelID),
			slog.String("error", err.Error()),
		)
		p.notifier.Error("記事の公開に失敗しました: %s", describe(err))
		return nil, err
	}

	p.logger.Info("article_published",
		slog.String("article_id", article.ID),
		slog.Int("channel_id", draft.ChannelID),
	)
	p.notifier.Success("記事を公開しました: %s", article.Title)
	return article, nil
}

func (p *Publisher) notifyValidation(err error) {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		p.notifier.Error("%s", err.Error())
		return
	}
	for _, f := range verr.Fields {
		p.notifier.Error("%s", f.Message)
	}
}

// describe は通知用にエラーの説明を返す。サーバーがエラー詳細を返した場合はそのメッセージを使う。
func describe(err error) string {
	var terr *transport.Error
	if errors.As(err, &terr) {
		if terr.APIError != nil && terr.APIError.Message != "" {
			return terr.APIError.Message
		}
		switch terr.Kind {
		case transport.KindNetwork:
			return "サーバーに接続できませんでした。"
		case transport.KindUnauthorized:
			return "認証の有効期限が切れました。"
		case transport.KindMalformed:
			return "サーバーの応答を解釈できませんでした。"
		default:
			return fmt.Sprintf("サーバーエラー（ステータス %d）", terr.StatusCode)
		}
	}
	return err.Error()
}
