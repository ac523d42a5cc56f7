// Package cli はgeekctlのコマンドを提供する。
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/app"
	"github.com/hitoshi/geekcms/internal/config"
	"github.com/hitoshi/geekcms/internal/logger"
	"github.com/hitoshi/geekcms/internal/nav"
	"github.com/hitoshi/geekcms/internal/output"
)

// skipAPIAnnotation が付いたコマンドはapi.*の設定を要求しない。
const skipAPIAnnotation = "geekctl/skip-api"

var version = "dev"

// SetVersion はバージョン文字列を設定する。
func SetVersion(v string) {
	version = v
}

// runtime はコマンド実行中に共有する状態。
type runtime struct {
	cfgFile   string
	verbose   bool
	quiet     bool
	colorMode string

	cfg     *config.Config
	logger  *slog.Logger
	printer *output.Printer
	app     *app.App
}

// NewRootCmd はgeekctlのルートコマンドを生成する。
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:   "geekctl",
		Short: "CMS管理画面のコマンドラインクライアント",
		Long: `geekctl はCMSプラットフォームの記事を管理するCLIです。

ログイン、記事一覧の絞り込み、記事の公開を行います。

Example usage:
  geekctl login --mobile 13911111111 --code 246810
  geekctl articles --status pending
  geekctl publish --title "タイトル" --channel 1 --content-file body.html
  geekctl console
  geekctl mock-server --port 8080`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.initConfig(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&rt.cfgFile, "config", "", "config file (default is .geekctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&rt.quiet, "quiet", "q", false, "suppress informational output")
	rootCmd.PersistentFlags().StringVar(&rt.colorMode, "color", "auto", "color output: auto, always, never")

	rootCmd.AddCommand(
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newWhoamiCmd(rt),
		newChannelsCmd(rt),
		newArticlesCmd(rt),
		newArticleCmd(rt),
		newPublishCmd(rt),
		newConsoleCmd(rt),
		newMockServerCmd(rt),
		newConfigCmd(rt),
	)

	return rootCmd
}

// Execute はルートコマンドを実行し、終了コードを返す。
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return output.ExitSuccess
	}
	reportError(cmd.ErrOrStderr(), err)
	return ExitCode(err)
}

// ExitCode はエラーに対応する終了コードを返す。
func ExitCode(err error) int {
	if err == nil {
		return output.ExitSuccess
	}
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.ExitCode
	}
	return output.ExitGeneral
}

func reportError(w io.Writer, err error) {
	p := output.NewPrinterWithOptions(output.PrinterOptions{
		ColorMode:    output.ColorAuto,
		ConfigColors: true,
		Out:          w,
		Err:          w,
	})
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		p.FormatError(cliErr)
		return
	}
	p.Error("%s", err.Error())
}

// initConfig は設定を読み込み、ロガーとPrinterを初期化する。
func (rt *runtime) initConfig(cmd *cobra.Command) error {
	mode, err := output.ParseColorMode(rt.colorMode)
	if err != nil {
		return &output.CLIError{
			Summary:    "--color の値が不正です",
			Detail:     err.Error(),
			Suggestion: "auto、always、never のいずれかを指定してください",
			ExitCode:   output.ExitUsageError,
			Err:        err,
		}
	}

	var opts []config.LoadOption
	if cmd.Annotations[skipAPIAnnotation] == "true" {
		opts = append(opts, config.SkipAPIValidation())
	}

	cfg, err := config.Load(rt.cfgFile, opts...)
	if err != nil {
		return &output.CLIError{
			Summary:    "設定の読み込みに失敗しました",
			Detail:     err.Error(),
			Suggestion: fmt.Sprintf("%s_API_BASE_URL または .geekctl.yaml の api.base_url を設定してください", config.EnvPrefix),
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}
	rt.cfg = cfg

	level := cfg.Logging.Level
	if rt.verbose {
		level = "debug"
	}
	rt.logger = logger.SetupDefault(cmd.ErrOrStderr(), level, cfg.Logging.Format)

	rt.printer = output.NewPrinterWithOptions(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: cfg.Output.Colors,
		Quiet:        rt.quiet,
		Out:          cmd.OutOrStdout(),
		Err:          cmd.ErrOrStderr(),
	})

	rt.logger.Debug("configuration loaded",
		slog.String("config_file", cfg.File),
		slog.String("base_url", cfg.API.BaseURL),
		slog.String("token_backend", cfg.Token.Backend),
	)
	return nil
}

// withApp はAppを生成してfnを実行し、終了後にAppを閉じる。
func (rt *runtime) withApp(fn func(a *app.App) error) error {
	a, err := rt.open()
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(a)
}

// open はAppを生成する。同じコマンド内では1つのAppを使い回す。
func (rt *runtime) open() (*app.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	a, err := app.New(rt.cfg, rt.logger, app.Options{Notifier: rt.printer})
	if err != nil {
		return nil, &output.CLIError{
			Summary:    "クライアントの初期化に失敗しました",
			Detail:     err.Error(),
			Suggestion: "geekctl config で設定を確認してください",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}
	rt.app = a
	return a, nil
}

// close はAppを閉じる。
func (rt *runtime) close() {
	if rt.app == nil {
		return
	}
	if err := rt.app.Close(); err != nil {
		rt.logger.Warn("app_close_failed", slog.String("error", err.Error()))
	}
	rt.app = nil
}

// enter は画面に遷移する。ガードによりログイン画面へ差し替えられた場合はエラーを返す。
func (rt *runtime) enter(a *app.App, path string) (nav.Location, error) {
	loc := a.Router.Navigate(path, nav.Options{})
	if loc.Redirected {
		return loc, errLoginRequired()
	}
	return loc, nil
}

func errLoginRequired() error {
	return &output.CLIError{
		Summary:    "ログインが必要です",
		Detail:     "保存された認可トークンがありません",
		Suggestion: "geekctl login --mobile <携帯電話番号> --code <認証コード> を実行してください",
		ExitCode:   output.ExitAuthRequired,
	}
}
