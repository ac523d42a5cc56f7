package app

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/geekcms/internal/articles"
	"github.com/hitoshi/geekcms/internal/config"
	"github.com/hitoshi/geekcms/internal/mockapi"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/nav"
	"github.com/hitoshi/geekcms/internal/token"
	"github.com/hitoshi/geekcms/internal/transport"
)

const testMobile = "13911111111"

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(format string, _ ...interface{}) {
	n.successes = append(n.successes, format)
}

func (n *recordingNotifier) Error(format string, _ ...interface{}) {
	n.errors = append(n.errors, format)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API:      config.APIConfig{BaseURL: baseURL, Timeout: 2 * time.Second, RateBurst: 1},
		Token:    config.TokenConfig{Backend: config.TokenBackendMemory, Key: token.DefaultKey},
		Articles: config.ArticlesConfig{PageSize: 10},
		Cache:    config.CacheConfig{ArticleTTL: time.Minute, ArticleSize: 16},
		Import:   config.ImportConfig{Timeout: time.Second, MaxSize: 1 << 20},
	}
}

func newMockServer(t *testing.T) string {
	t.Helper()
	srv := mockapi.NewServer(mockapi.Config{RateLimit: 1000}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts.URL
}

func newTestApp(t *testing.T, notifier Notifier) *App {
	t.Helper()
	a, err := New(testConfig(newMockServer(t)), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Notifier: notifier})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_WiresComponents(t *testing.T) {
	a := newTestApp(t, nil)

	assert.NotNil(t, a.Tokens)
	assert.NotNil(t, a.Transport)
	assert.NotNil(t, a.API)
	assert.NotNil(t, a.Session)
	assert.NotNil(t, a.Router)
	assert.NotNil(t, a.Articles)
	assert.NotNil(t, a.Publisher)
	assert.NotNil(t, a.Importer)
	assert.False(t, a.Session.State().Authenticated())
}

func TestNew_InvalidBaseURL(t *testing.T) {
	cfg := testConfig("ftp://example.com")
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create transport")
}

func TestNew_FileBackendPersistsToken(t *testing.T) {
	cfg := testConfig(newMockServer(t))
	cfg.Token.Backend = config.TokenBackendFile
	cfg.Token.Path = filepath.Join(t.TempDir(), "storage.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(cfg, logger, Options{})
	require.NoError(t, err)
	require.NoError(t, a.Session.Login(context.Background(), model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	require.NoError(t, a.Close())

	b, err := New(cfg, logger, Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Session.State().Authenticated(), "credential should be rehydrated from the file")
	loc := b.Router.Navigate("/article", nav.Options{})
	assert.Equal(t, nav.RouteArticles, loc.Route)
}

func TestLoginThenBrowse(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	loc := a.Router.Navigate("/", nav.Options{})
	assert.Equal(t, nav.RouteLogin, loc.Route)
	assert.True(t, loc.Redirected)

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	require.NoError(t, a.Session.FetchProfile(ctx))
	require.NotNil(t, a.Session.State().Profile)
	assert.Equal(t, testMobile, a.Session.State().Profile.Mobile)

	loc = a.Router.Navigate("/article", nav.Options{})
	assert.Equal(t, nav.RouteArticles, loc.Route)

	snap, err := a.Articles.Submit(ctx, articles.FilterForm{Status: model.ArticleStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 8, snap.TotalCount)
	assert.Len(t, snap.Items, 8)
}

func TestUnauthorized_ForcesLogout(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	a.Router.Navigate("/article", nav.Options{})
	before := len(a.Router.History())

	// サーバー側で失効したトークンを模擬する
	require.NoError(t, a.Tokens.Save("revoked"))

	_, err := a.Articles.Refresh(ctx)
	require.Error(t, err)

	_, ok := a.Tokens.Read()
	assert.False(t, ok, "token store should be cleared")
	assert.False(t, a.Session.State().Authenticated(), "session should be reset")
	assert.Nil(t, a.Session.State().Profile)

	cur := a.Router.Current()
	assert.Equal(t, nav.RouteLogin, cur.Route)
	assert.Len(t, a.Router.History(), before, "login should replace the current entry")

	_, back := a.Router.Back()
	if back {
		assert.NotEqual(t, nav.RouteArticles, a.Router.Current().Route)
	}
}

func TestUnauthorized_ResetsArticleQuery(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	snap, err := a.Articles.Submit(ctx, articles.FilterForm{Status: model.ArticleStatusPending, ChannelID: 1})
	require.NoError(t, err)
	require.True(t, snap.Loaded)

	require.NoError(t, a.Tokens.Save("revoked"))
	_, err = a.Articles.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, transport.IsUnauthorized(err), "the 401 should reach the caller: %v", err)

	snap = a.Articles.Snapshot()
	assert.Equal(t, model.ArticleListQuery{Page: 1, PerPage: 10}, snap.Query)
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.TotalCount)

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	snap, err = a.Articles.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, snap.TotalCount, "the next session should start from the unfiltered list")
}

func TestLogout_ResetsArticleQuery(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))
	_, err := a.Articles.Submit(ctx, articles.FilterForm{Status: model.ArticleStatusPending})
	require.NoError(t, err)

	a.Session.Logout()

	snap := a.Articles.Snapshot()
	assert.Equal(t, model.ArticleListQuery{Page: 1, PerPage: 10}, snap.Query)
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.Items)
}

func TestPublish_NotifiesSuccess(t *testing.T) {
	n := &recordingNotifier{}
	a := newTestApp(t, n)
	ctx := context.Background()

	require.NoError(t, a.Session.Login(ctx, model.LoginForm{Mobile: testMobile, Code: mockapi.TestCode}))

	article, err := a.Publisher.Publish(ctx, model.ArticleDraft{Title: "hello", ChannelID: 3, Content: "<p>body</p><script>x</script>"})
	require.NoError(t, err)
	assert.Equal(t, model.ArticleStatusPending, article.Status)
	assert.Len(t, n.successes, 1)
	assert.Empty(t, n.errors)
}

func TestClose_WritesMetricsTextfile(t *testing.T) {
	cfg := testConfig(newMockServer(t))
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "geekctl.prom")

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.NoError(t, err)

	a.API.FetchChannels(context.Background())
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "geekcms_api_requests_total")
}
