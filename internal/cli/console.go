package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/app"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/nav"
	"github.com/hitoshi/geekcms/internal/output"
	"github.com/hitoshi/geekcms/internal/session"
)

const consoleHelp = `コマンド:
  go <path>                     画面に遷移する（/, /article, /article/<id>, /publish, /login）
  back                          前の画面に戻る
  login <携帯電話番号> <認証コード>  ログインする
  logout                        ログアウトする
  whoami                        プロフィールを再取得する
  filter [status=<s>] [channel=<id>] [begin=<date> end=<date>]
                                記事一覧を絞り込む
  page <n>                      記事一覧のページを切り替える
  refresh                       記事一覧を再取得する
  publish <チャンネルID> <タイトル>  本文を入力して公開する（"." のみの行で終了）
  help                          このヘルプを表示する
  quit                          終了する`

func newConsoleCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "対話モードで操作する",
		Long: `1行に1つの操作を入力する対話モードを開始します。
画面の表示は常に最新の状態から描画されます。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(a *app.App) error {
				c := &console{
					a:  a,
					p:  rt.printer,
					in: bufio.NewScanner(cmd.InOrStdin()),
				}
				return c.run(cmd.Context())
			})
		},
	}
}

// console は対話モードのイベントループ。
type console struct {
	a        *app.App
	p        *output.Printer
	in       *bufio.Scanner
	channels []model.Channel
}

func (c *console) run(ctx context.Context) error {
	stop := c.a.Session.Subscribe(func(s session.State) {
		if !s.Authenticated() {
			c.channels = nil
		}
	})
	defer stop()

	c.p.Info("geekctl console（help でコマンド一覧、quit で終了）")
	c.render(ctx, c.a.Router.Navigate("/", nav.Options{}))

	for {
		fmt.Fprint(c.p.Out(), "geekctl> ")
		if !c.in.Scan() {
			fmt.Fprintln(c.p.Out())
			return c.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		fields := strings.Fields(c.in.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := c.dispatch(ctx, fields[0], fields[1:]); err != nil {
			c.report(err)
		}
	}
}

// dispatch は1行分の操作を実行する。
func (c *console) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "help":
		c.p.Print("%s", consoleHelp)
	case "go":
		if len(args) != 1 {
			return usageError("go には遷移先のパスを1つ指定してください", "例: go /article")
		}
		c.render(ctx, c.a.Router.Navigate(args[0], nav.Options{}))
	case "back":
		loc, ok := c.a.Router.Back()
		if !ok {
			c.p.Info("戻れる画面がありません")
			return nil
		}
		c.render(ctx, loc)
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.a.Session.Logout()
		c.p.Success("ログアウトしました")
		c.render(ctx, c.a.Router.Current())
	case "whoami":
		if !c.enter(ctx, "/") {
			return nil
		}
		if err := c.a.Session.FetchProfile(ctx); err != nil {
			return c.sessionError(ctx, "プロフィールの取得", err)
		}
		printProfileState(c.p, c.a.Session.State())
	case "filter":
		return c.filter(ctx, args)
	case "page":
		if len(args) != 1 {
			return usageError("page にはページ番号を1つ指定してください", "例: page 2")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return usageError("ページ番号が不正です", "1以上の整数を指定してください")
		}
		if !c.enter(ctx, "/article") {
			return nil
		}
		if _, err := c.a.Articles.ChangePage(ctx, n); err != nil {
			return c.listError(ctx, err)
		}
		c.renderList(ctx)
	case "refresh":
		if !c.enter(ctx, "/article") {
			return nil
		}
		if _, err := c.a.Articles.Refresh(ctx); err != nil {
			return c.listError(ctx, err)
		}
		c.renderList(ctx)
	case "publish":
		return c.publish(ctx, args)
	default:
		return usageError(fmt.Sprintf("不明なコマンドです: %s", name), "help でコマンド一覧を表示します")
	}
	return nil
}

func (c *console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("login には携帯電話番号と認証コードを指定してください", "例: login 13911111111 246810")
	}
	c.a.Router.Navigate(nav.LoginPath, nav.Options{})

	if err := c.a.Session.Login(ctx, model.LoginForm{Mobile: args[0], Code: args[1]}); err != nil {
		return c.sessionError(ctx, "ログイン", err)
	}
	c.p.Success("ログインしました")
	c.render(ctx, c.a.Router.Navigate("/", nav.Options{Replace: true}))
	return nil
}

func (c *console) filter(ctx context.Context, args []string) error {
	opts := articlesOptions{status: "all", page: 1}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return usageError(fmt.Sprintf("絞り込み条件の形式が不正です: %s", arg), "key=value の形式で指定してください")
		}
		switch key {
		case "status":
			opts.status = value
		case "channel":
			n, err := strconv.Atoi(value)
			if err != nil {
				return usageError("channel の値が不正です", "チャンネルIDを整数で指定してください")
			}
			opts.channel = n
		case "begin":
			opts.begin = value
		case "end":
			opts.end = value
		default:
			return usageError(fmt.Sprintf("不明な絞り込み条件です: %s", key), "status、channel、begin、end が使えます")
		}
	}

	form, err := opts.form()
	if err != nil {
		return err
	}
	if !c.enter(ctx, "/article") {
		return nil
	}
	if _, err := c.a.Articles.Submit(ctx, form); err != nil {
		return c.listError(ctx, err)
	}
	c.renderList(ctx)
	return nil
}

func (c *console) publish(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("publish にはチャンネルIDとタイトルを指定してください", "例: publish 1 はじめての記事")
	}
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return usageError("チャンネルIDが不正です", "channels でチャンネルIDを確認してください")
	}
	if !c.enter(ctx, "/publish") {
		return nil
	}

	c.p.Info("本文を入力してください（\".\" のみの行で終了）")
	var body strings.Builder
	for {
		if !c.in.Scan() {
			return errors.New("本文の入力中に入力が終了しました")
		}
		line := c.in.Text()
		if line == "." {
			break
		}
		body.WriteString(line)
		body.WriteString("\n")
	}

	draft := model.ArticleDraft{
		Title:     strings.Join(args[1:], " "),
		ChannelID: channel,
		Content:   body.String(),
	}
	printPreview(c.p, draft)

	if _, err := c.a.Publisher.Publish(ctx, draft); err != nil {
		return c.afterError(ctx, describeError("記事の公開", err))
	}
	return nil
}

// enter は画面に遷移する。ガードにより拒否された場合はログイン画面を描画してfalseを返す。
// 既に同じ画面にいる場合も履歴を増やさずにガードを通す。
func (c *console) enter(ctx context.Context, path string) bool {
	cur := c.a.Router.Current()
	loc := c.a.Router.Navigate(path, nav.Options{Replace: cur.Path == path})
	if loc.Redirected {
		c.render(ctx, loc)
		return false
	}
	return true
}

// render は遷移先の画面を現在の状態から描画する。
func (c *console) render(ctx context.Context, loc nav.Location) {
	switch loc.Route {
	case nav.RouteLogin:
		if loc.Redirected {
			c.p.Warning("ログインが必要です（%s）", loc.From)
		}
		c.p.Header("ログイン")
		c.p.Print("login <携帯電話番号> <認証コード> でログインします")
	case nav.RouteHome:
		printProfileState(c.p, c.a.Session.State())
	case nav.RouteArticles:
		if !c.a.Articles.Snapshot().Loaded {
			if _, err := c.a.Articles.Refresh(ctx); err != nil {
				c.report(c.listError(ctx, err))
				return
			}
		}
		c.renderList(ctx)
	case nav.RouteArticleDetail:
		article, err := c.a.API.FetchArticle(ctx, loc.Param("id"))
		if err != nil {
			c.report(c.afterError(ctx, describeError("記事の取得", err)))
			return
		}
		printArticle(c.p, article)
	case nav.RoutePublish:
		c.p.Header("記事の公開")
		c.p.Print("publish <チャンネルID> <タイトル> で本文の入力を開始します")
	default:
		c.p.Warning("画面が見つかりません: %s", loc.Path)
	}
}

func (c *console) renderList(ctx context.Context) {
	if c.channels == nil {
		c.channels = c.a.Articles.Channels(ctx)
	}
	printArticleList(c.p, c.a.Articles.Snapshot(), c.channels)
}

// sessionError はセッション状態に記録された理由を利用者向けのエラーにする。
func (c *console) sessionError(ctx context.Context, op string, err error) error {
	e := describeError(op, err)
	if reason, ok := c.a.Session.State().Error(); ok {
		var cliErr *output.CLIError
		if errors.As(e, &cliErr) {
			cliErr.Detail = reason
		}
	}
	return c.afterError(ctx, e)
}

func (c *console) listError(ctx context.Context, err error) error {
	return c.afterError(ctx, describeError("記事一覧の取得", err))
}

// afterError は401による強制ログアウトの後であればログイン画面を描画する。
func (c *console) afterError(ctx context.Context, err error) error {
	if ExitCode(err) == output.ExitAuthRequired {
		c.report(err)
		c.render(ctx, c.a.Router.Current())
		return nil
	}
	return err
}

func (c *console) report(err error) {
	if err == nil {
		return
	}
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		c.p.FormatError(cliErr)
		return
	}
	c.p.Error("%s", err.Error())
}

func printProfileState(p *output.Printer, s session.State) {
	if s.Profile == nil {
		p.Header("ホーム")
		p.Print("whoami でプロフィールを表示します")
		return
	}
	printProfile(p, s.Profile)
}
