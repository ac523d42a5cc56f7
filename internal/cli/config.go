package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/config"
)

// maskedValue は秘匿値の代わりに表示する文字列。
const maskedValue = "********"

func newConfigCmd(rt *runtime) *cobra.Command {
	var showPath, jsonOutput bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "現在の設定を表示する",
		Long: `既定値、設定ファイル、環境変数を反映した現在の設定を表示します。

Examples:
  geekctl config           # すべての設定を表示
  geekctl config --path    # 設定ファイルのパスを表示
  geekctl config --json    # JSONで出力`,
		Annotations: map[string]string{skipAPIAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := masked(*rt.cfg)

			if showPath {
				if cfg.File == "" {
					rt.printer.Info("設定ファイルなし（既定値と環境変数を使用）")
				} else {
					rt.printer.Print("%s", cfg.File)
				}
				return nil
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			rt.printer.Header("現在の設定")
			t := rt.printer.Table([]string{"KEY", "VALUE"})
			for _, row := range configRows(cfg) {
				t.AddRow(row)
			}
			t.Render()
			rt.printer.PrintHints("config")
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPath, "path", false, "show config file path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// masked はデータベース接続文字列を伏せた設定のコピーを返す。
func masked(cfg config.Config) config.Config {
	if cfg.Token.DatabaseURL != "" {
		cfg.Token.DatabaseURL = maskedValue
	}
	return cfg
}

func configRows(cfg config.Config) [][]string {
	return [][]string{
		{"api.base_url", cfg.API.BaseURL},
		{"api.timeout", cfg.API.Timeout.String()},
		{"api.rate_limit", fmt.Sprintf("%v", cfg.API.RateLimit)},
		{"api.rate_burst", fmt.Sprintf("%d", cfg.API.RateBurst)},
		{"token.backend", cfg.Token.Backend},
		{"token.path", cfg.Token.Path},
		{"token.key", cfg.Token.Key},
		{"token.database_url", cfg.Token.DatabaseURL},
		{"articles.page_size", fmt.Sprintf("%d", cfg.Articles.PageSize)},
		{"cache.article_ttl", cfg.Cache.ArticleTTL.String()},
		{"cache.article_size", fmt.Sprintf("%d", cfg.Cache.ArticleSize)},
		{"import.timeout", cfg.Import.Timeout.String()},
		{"import.max_size", fmt.Sprintf("%d", cfg.Import.MaxSize)},
		{"logging.level", cfg.Logging.Level},
		{"logging.format", cfg.Logging.Format},
		{"output.colors", fmt.Sprintf("%v", cfg.Output.Colors)},
		{"metrics.textfile", cfg.Metrics.Textfile},
		{"mock.port", cfg.Mock.Port},
		{"mock.rate_limit", fmt.Sprintf("%v", cfg.Mock.RateLimit)},
		{"mock.allowed_origin", cfg.Mock.AllowedOrigin},
	}
}
