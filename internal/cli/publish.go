package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/app"
	"github.com/hitoshi/geekcms/internal/importer"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/output"
	"github.com/hitoshi/geekcms/internal/render"
)

// previewRunes はプレビューに表示する本文の最大文字数。
const previewRunes = 200

// publishOptions は publish コマンドのフラグ。
type publishOptions struct {
	title       string
	channel     int
	content     string
	contentFile string
	fromFeed    string
	entry       int
	listEntries bool
	dryRun      bool
}

// sources は指定された本文の入力元の数を返す。
func (o publishOptions) sources() int {
	n := 0
	for _, s := range []string{o.content, o.contentFile, o.fromFeed} {
		if s != "" {
			n++
		}
	}
	return n
}

func newPublishCmd(rt *runtime) *cobra.Command {
	var opts publishOptions

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "記事を公開する",
		Long: `記事を公開します。公開した記事は審査待ちになります。

本文は --content、--content-file、--from-feed のいずれか1つで指定します。
--from-feed はRSS/Atomフィードの記事から下書きを作成します。

Examples:
  geekctl publish --title "はじめての記事" --channel 1 --content "<p>本文</p>"
  geekctl publish --title "週報" --channel 2 --content-file report.html
  geekctl publish --from-feed https://example.com/feed.xml --list-entries
  geekctl publish --from-feed https://example.com/feed.xml --entry 2 --channel 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.listEntries && opts.fromFeed == "" {
				return usageError("--list-entries には --from-feed が必要です", "例: --from-feed https://example.com/feed.xml --list-entries")
			}
			if !opts.listEntries && opts.sources() != 1 {
				return usageError("本文の入力元を1つ指定してください", "--content、--content-file、--from-feed のいずれか1つを指定してください")
			}

			return rt.withApp(func(a *app.App) error {
				if _, err := rt.enter(a, "/publish"); err != nil {
					return err
				}

				if opts.listEntries {
					return listFeedEntries(cmd, rt, a, opts.fromFeed)
				}

				draft, err := buildDraft(cmd, a, opts)
				if err != nil {
					return err
				}

				printPreview(rt.printer, draft)
				if opts.dryRun {
					rt.printer.Info("--dry-run のため公開しませんでした")
					return nil
				}

				article, err := a.Publisher.Publish(cmd.Context(), draft)
				if err != nil {
					return describeError("記事の公開", err)
				}

				rt.printer.Print("ID: %s  状態: %s", article.ID, rt.printer.StatusBadge(article.Status))
				rt.printer.PrintHints("publish")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "article title (overrides the feed entry title)")
	cmd.Flags().IntVar(&opts.channel, "channel", 0, "channel ID")
	cmd.Flags().StringVar(&opts.content, "content", "", "article body HTML")
	cmd.Flags().StringVar(&opts.contentFile, "content-file", "", "read article body HTML from a file")
	cmd.Flags().StringVar(&opts.fromFeed, "from-feed", "", "import the draft from an RSS/Atom feed URL")
	cmd.Flags().IntVar(&opts.entry, "entry", 0, "feed entry number to import (0 is the first)")
	cmd.Flags().BoolVar(&opts.listEntries, "list-entries", false, "list the entries of --from-feed and exit")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the preview without publishing")

	return cmd
}

// buildDraft はフラグと入力元から下書きを組み立てる。
func buildDraft(cmd *cobra.Command, a *app.App, opts publishOptions) (model.ArticleDraft, error) {
	draft := model.ArticleDraft{Title: opts.title, ChannelID: opts.channel}

	switch {
	case opts.content != "":
		draft.Content = opts.content
	case opts.contentFile != "":
		b, err := os.ReadFile(opts.contentFile)
		if err != nil {
			return draft, &output.CLIError{
				Summary:    "本文ファイルを読み込めませんでした",
				Detail:     err.Error(),
				Suggestion: "--content-file のパスを確認してください",
				ExitCode:   output.ExitUsageError,
				Err:        err,
			}
		}
		draft.Content = string(b)
	default:
		imported, err := a.Importer.Draft(cmd.Context(), opts.fromFeed, opts.entry)
		if err != nil {
			return draft, importError(err)
		}
		draft.Content = imported.Content
		if draft.Title == "" {
			draft.Title = imported.Title
		}
	}
	return draft, nil
}

func listFeedEntries(cmd *cobra.Command, rt *runtime, a *app.App, feedURL string) error {
	entries, err := a.Importer.Entries(cmd.Context(), feedURL)
	if err != nil {
		return importError(err)
	}
	t := rt.printer.Table([]string{"ENTRY", "TITLE", "PUBLISHED", "LINK"}).Empty("フィードに記事がありません")
	for _, e := range entries {
		published := ""
		if e.Published != nil {
			published = e.Published.Format(model.DateLayout)
		}
		t.AddRow([]string{strconv.Itoa(e.Index), output.Truncate(e.Title, 40), published, e.Link})
	}
	t.Render()
	return nil
}

func importError(err error) error {
	e := &output.CLIError{
		Summary:    "フィードの取り込みに失敗しました",
		Detail:     err.Error(),
		Suggestion: "フィードのURLを確認してください",
		ExitCode:   output.ExitGeneral,
		Err:        err,
	}
	if errors.Is(err, importer.ErrEntryNotFound) {
		e.Suggestion = "--list-entries で記事番号を確認してください"
		e.ExitCode = output.ExitUsageError
	}
	return e
}

// printPreview は公開前の下書きを表示する。
func printPreview(p *output.Printer, d model.ArticleDraft) {
	p.Header("プレビュー")
	p.Print("タイトル: %s", d.Title)
	p.Print("チャンネル: %s", channelLabel(d.ChannelID))
	p.Print("")
	p.Print("%s", p.Dim(render.Excerpt(d.Content, previewRunes)))
	p.Print("")
}

func channelLabel(id int) string {
	if id == 0 {
		return "（未選択）"
	}
	return fmt.Sprintf("#%d", id)
}
