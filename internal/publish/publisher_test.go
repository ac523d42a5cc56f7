package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/security"
	"github.com/hitoshi/geekcms/internal/transport"
)

type fakeAPI struct {
	mu     sync.Mutex
	drafts []model.ArticleDraft
	err    error
	block  chan struct{}
}

func (f *fakeAPI) PublishArticle(_ context.Context, d model.ArticleDraft) (*model.Article, error) {
	f.mu.Lock()
	f.drafts = append(f.drafts, d)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.Article{ID: "new-1", Title: d.Title, Status: model.ArticleStatusPending}, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, fmt.Sprintf(format, args...))
}

func (n *recordingNotifier) Error(format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, fmt.Sprintf(format, args...))
}

func newTestPublisher(api API, n Notifier) *Publisher {
	var buf bytes.Buffer
	return NewPublisher(api, security.NewEditorSanitizer(), n, slog.New(slog.NewJSONHandler(&buf, nil)))
}

func TestPublish_SanitizesAndNotifiesSuccess(t *testing.T) {
	api := &fakeAPI{}
	n := &recordingNotifier{}
	p := newTestPublisher(api, n)

	draft := model.ArticleDraft{
		Title:     "Hello",
		ChannelID: 3,
		Content:   `<p onclick="x()">body</p><script>alert(1)</script>`,
	}
	article, err := p.Publish(context.Background(), draft)
	if err != nil {
		t.Fatalf("Publish がエラーを返した: %v", err)
	}
	if article.ID != "new-1" {
		t.Errorf("Article = %+v", article)
	}

	sent := api.drafts[0].Content
	if strings.Contains(sent, "script") || strings.Contains(sent, "onclick") {
		t.Errorf("サニタイズされていない本文が送信された: %q", sent)
	}
	if !strings.Contains(sent, "<p>body</p>") {
		t.Errorf("本文 = %q", sent)
	}
	if len(n.successes) != 1 || !strings.Contains(n.successes[0], "Hello") {
		t.Errorf("成功通知 = %v", n.successes)
	}
	if p.Loading() {
		t.Error("完了後もLoadingがtrue")
	}
}

func TestPublish_ValidationFailureDoesNotCallAPI(t *testing.T) {
	api := &fakeAPI{}
	n := &recordingNotifier{}
	p := newTestPublisher(api, n)

	_, err := p.Publish(context.Background(), model.ArticleDraft{})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidationError が返されていない: %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Errorf("エラー項目数 = %d, want 3", len(verr.Fields))
	}
	if len(api.drafts) != 0 {
		t.Error("入力エラー時にAPIが呼ばれた")
	}
	if len(n.errors) != 3 {
		t.Errorf("エラー通知 = %v", n.errors)
	}
}

func TestPublish_BlankContentAfterSanitizeIsRejected(t *testing.T) {
	api := &fakeAPI{}
	n := &recordingNotifier{}
	p := newTestPublisher(api, n)

	_, err := p.Publish(context.Background(), model.ArticleDraft{
		Title: "t", ChannelID: 1, Content: "<p><br></p><script>only()</script>",
	})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidationError が返されていない: %v", err)
	}
	if _, ok := verr.Field("content"); !ok {
		t.Errorf("content のエラーがない: %+v", verr.Fields)
	}
	if len(api.drafts) != 0 {
		t.Error("空の本文でAPIが呼ばれた")
	}
}

func TestPublish_APIFailureNotifiesAndReturnsError(t *testing.T) {
	apiErr := &transport.Error{
		Kind:       transport.KindStatus,
		StatusCode: 404,
		APIError:   model.NewChannelNotFoundError(9),
	}
	api := &fakeAPI{err: apiErr}
	n := &recordingNotifier{}
	p := newTestPublisher(api, n)

	_, err := p.Publish(context.Background(), model.ArticleDraft{Title: "t", ChannelID: 9, Content: "<p>x</p>"})
	if !errors.Is(err, apiErr) {
		t.Fatalf("エラーが伝播されていない: %v", err)
	}
	if len(n.errors) != 1 || !strings.Contains(n.errors[0], "チャンネルが見つかりません") {
		t.Errorf("エラー通知 = %v", n.errors)
	}
}

func TestPublish_RejectsConcurrentPublish(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	p := newTestPublisher(api, &recordingNotifier{})
	draft := model.ArticleDraft{Title: "t", ChannelID: 1, Content: "<p>x</p>"}

	done := make(chan error, 1)
	go func() {
		_, err := p.Publish(context.Background(), draft)
		done <- err
	}()

	// 1件目がAPI呼び出しに到達するまで待つ
	for {
		api.mu.Lock()
		n := len(api.drafts)
		api.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if !p.Loading() {
		t.Error("実行中にLoadingがfalse")
	}
	if _, err := p.Publish(context.Background(), draft); !errors.Is(err, ErrInFlight) {
		t.Errorf("実行中の2回目は ErrInFlight を返すべき: %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&transport.Error{Kind: transport.KindNetwork}, "接続できません"},
		{&transport.Error{Kind: transport.KindStatus, StatusCode: 500}, "500"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := describe(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("describe(%v) = %q, want to contain %q", tt.err, got, tt.want)
		}
	}
}
