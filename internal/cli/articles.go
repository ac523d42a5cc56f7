package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/geekcms/internal/app"
	"github.com/hitoshi/geekcms/internal/articles"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/output"
)

func newChannelsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "チャンネル一覧を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(a *app.App) error {
				channels := a.API.FetchChannels(cmd.Context())
				t := rt.printer.Table([]string{"ID", "NAME"}).Empty("チャンネルがありません")
				for _, c := range channels {
					t.AddRow([]string{strconv.Itoa(c.ID), c.Name})
				}
				t.Render()
				rt.printer.PrintHints("channels")
				return nil
			})
		},
	}
}

// articlesOptions は articles コマンドのフラグ。
type articlesOptions struct {
	status  string
	channel int
	begin   string
	end     string
	page    int
}

// form はフラグから絞り込みフォームを組み立てる。
func (o articlesOptions) form() (articles.FilterForm, error) {
	var f articles.FilterForm

	status, err := model.ParseArticleStatus(o.status)
	if err != nil {
		return f, usageError("--status の値が不正です", "all、pending、approved のいずれかを指定してください")
	}
	f.Status = status

	if o.channel < 0 {
		return f, usageError("--channel の値が不正です", "0以上のチャンネルIDを指定してください")
	}
	f.ChannelID = o.channel

	if (o.begin == "") != (o.end == "") {
		return f, usageError("--begin と --end は同時に指定してください", "例: --begin 2024-01-01 --end 2024-01-31")
	}
	if o.begin != "" {
		if f.Begin, err = time.Parse(model.DateLayout, o.begin); err != nil {
			return f, usageError("--begin の形式が正しくありません", "YYYY-MM-DD 形式で指定してください")
		}
		if f.End, err = time.Parse(model.DateLayout, o.end); err != nil {
			return f, usageError("--end の形式が正しくありません", "YYYY-MM-DD 形式で指定してください")
		}
		if f.Begin.After(f.End) {
			return f, usageError("--begin が --end より後の日付です", "期間の開始日と終了日を確認してください")
		}
	}

	if o.page < 1 {
		return f, usageError("--page の値が不正です", "1以上のページ番号を指定してください")
	}
	return f, nil
}

func newArticlesCmd(rt *runtime) *cobra.Command {
	var opts articlesOptions

	cmd := &cobra.Command{
		Use:   "articles",
		Short: "記事一覧を表示する",
		Long: `条件で絞り込んだ記事一覧を表示します。

Examples:
  geekctl articles
  geekctl articles --status pending --channel 1
  geekctl articles --begin 2024-01-01 --end 2024-01-31 --page 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := opts.form()
			if err != nil {
				return err
			}

			return rt.withApp(func(a *app.App) error {
				if _, err := rt.enter(a, "/article"); err != nil {
					return err
				}

				var (
					channels []model.Channel
					snap     articles.Snapshot
				)
				g, ctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error {
					channels = a.Articles.Channels(ctx)
					return nil
				})
				g.Go(func() error {
					var err error
					snap, err = a.Articles.Submit(ctx, form)
					if err == nil && opts.page > 1 {
						snap, err = a.Articles.ChangePage(ctx, opts.page)
					}
					return err
				})
				if err := g.Wait(); err != nil {
					return describeError("記事一覧の取得", err)
				}

				printArticleList(rt.printer, snap, channels)
				rt.printer.PrintHints("articles")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.status, "status", "all", "filter by status: all, pending, approved")
	cmd.Flags().IntVar(&opts.channel, "channel", 0, "filter by channel ID (0 for all)")
	cmd.Flags().StringVar(&opts.begin, "begin", "", "published on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.end, "end", "", "published on or before (YYYY-MM-DD)")
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number")

	return cmd
}

// printArticleList は記事一覧のスナップショットを表示する。
func printArticleList(p *output.Printer, snap articles.Snapshot, channels []model.Channel) {
	q := snap.Query
	p.Header(fmt.Sprintf("記事一覧（%d件）", snap.TotalCount))

	filters := []string{"状態: " + statusFilterLabel(q.Status)}
	if q.ChannelID != 0 {
		filters = append(filters, "チャンネル: "+channelName(channels, q.ChannelID))
	}
	if q.DateRange != nil {
		filters = append(filters, fmt.Sprintf("期間: %s 〜 %s", q.DateRange.Begin, q.DateRange.End))
	}
	p.Info("%s", strings.Join(filters, " / "))

	t := p.Table([]string{"ID", "TITLE", "STATUS", "PUBDATE", "COMMENTS", "LIKES", "READS"}).
		Empty("条件に一致する記事はありません")
	for _, a := range snap.Items {
		t.AddRow([]string{
			a.ID,
			output.Truncate(a.Title, 32),
			p.StatusBadge(a.Status),
			a.PubDate,
			strconv.Itoa(a.CommentCount),
			strconv.Itoa(a.LikeCount),
			strconv.Itoa(a.ReadCount),
		})
	}
	t.Render()

	p.Print("ページ %d / %d", q.Page, pageCount(snap.TotalCount, q.PerPage))
}

func statusFilterLabel(s model.ArticleStatus) string {
	if s == model.ArticleStatusAll {
		return "すべて"
	}
	return s.Label()
}

func channelName(channels []model.Channel, id int) string {
	for _, c := range channels {
		if c.ID == id {
			return c.Name
		}
	}
	return "#" + strconv.Itoa(id)
}

func pageCount(total, perPage int) int {
	if perPage < 1 || total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func newArticleCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "article <id>",
		Short: "記事の詳細を表示する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return rt.withApp(func(a *app.App) error {
				loc, err := rt.enter(a, "/article/"+url.PathEscape(id))
				if err != nil {
					return err
				}

				article, err := a.API.FetchArticle(cmd.Context(), loc.Param("id"))
				if err != nil {
					return describeError("記事の取得", err)
				}

				printArticle(rt.printer, article)
				rt.printer.PrintHints("article")
				return nil
			})
		},
	}
}

// printArticle は記事1件の詳細を表示する。
func printArticle(p *output.Printer, a *model.Article) {
	p.Header(a.Title)
	t := p.Table([]string{"KEY", "VALUE"})
	t.AddRow([]string{"ID", a.ID})
	t.AddRow([]string{"状態", p.StatusBadge(a.Status)})
	t.AddRow([]string{"公開日時", a.PubDate})
	t.AddRow([]string{"コメント数", strconv.Itoa(a.CommentCount)})
	t.AddRow([]string{"いいね数", strconv.Itoa(a.LikeCount)})
	t.AddRow([]string{"閲覧数", strconv.Itoa(a.ReadCount)})
	if img := a.Cover.FirstImage(); img != "" {
		t.AddRow([]string{"カバー画像", img})
	}
	t.Render()
}
