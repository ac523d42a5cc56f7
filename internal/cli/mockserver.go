package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/mockapi"
	"github.com/hitoshi/geekcms/internal/output"
)

func newMockServerCmd(rt *runtime) *cobra.Command {
	var (
		port      string
		rateLimit float64
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "開発用のスタブAPIサーバーを起動する",
		Long: `ログイン、プロフィール、チャンネル、記事のAPIを模したスタブサーバーを起動します。
データはメモリ上にのみ保持され、停止すると破棄されます。
ログインには任意の11桁の携帯電話番号と認証コード ` + mockapi.TestCode + ` を使います。

Examples:
  geekctl mock-server
  geekctl mock-server --port 9090
  GEEKCTL_API_BASE_URL=http://localhost:8080 geekctl login --mobile 13911111111 --code ` + mockapi.TestCode,
		Annotations: map[string]string{skipAPIAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rt.cfg.Mock
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("rate-limit") {
				cfg.RateLimit = rateLimit
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			rt.printer.Info("スタブAPIサーバーを起動します: http://localhost:%s（Ctrl+C で停止）", cfg.Port)
			srv := mockapi.NewServer(mockapi.Config{
				Port:          cfg.Port,
				RateLimit:     cfg.RateLimit,
				AllowedOrigin: cfg.AllowedOrigin,
			}, reg, rt.logger)

			if err := srv.Run(cmd.Context()); err != nil {
				return &output.CLIError{
					Summary:    "スタブAPIサーバーを起動できませんでした",
					Detail:     err.Error(),
					Suggestion: "--port で別のポートを指定してください",
					ExitCode:   output.ExitGeneral,
					Err:        err,
				}
			}
			rt.printer.Success("スタブAPIサーバーを停止しました")
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides mock.port)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "requests per second per client (overrides mock.rate_limit)")

	return cmd
}
