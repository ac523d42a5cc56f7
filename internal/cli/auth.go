package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hitoshi/geekcms/internal/app"
	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/nav"
	"github.com/hitoshi/geekcms/internal/output"
)

func newLoginCmd(rt *runtime) *cobra.Command {
	var form model.LoginForm

	cmd := &cobra.Command{
		Use:   "login",
		Short: "携帯電話番号と認証コードでログインする",
		Long: `携帯電話番号と認証コードでログインし、認可トークンを保存します。

Examples:
  geekctl login --mobile 13911111111 --code 246810`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(a *app.App) error {
				a.Router.Navigate(nav.LoginPath, nav.Options{})

				if err := a.Session.Login(cmd.Context(), form); err != nil {
					return describeError("ログイン", err)
				}

				rt.printer.Success("ログインしました")
				a.Router.Navigate("/", nav.Options{Replace: true})
				rt.printer.PrintHints("login")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&form.Mobile, "mobile", "", "mobile number (11 digits)")
	cmd.Flags().StringVar(&form.Code, "code", "", "verification code")

	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "保存された認可トークンを破棄する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(a *app.App) error {
				a.Session.Logout()
				rt.printer.Success("ログアウトしました")
				rt.printer.PrintHints("logout")
				return nil
			})
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "ログイン中のユーザーのプロフィールを表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(a *app.App) error {
				if _, err := rt.enter(a, "/"); err != nil {
					return err
				}
				if err := a.Session.FetchProfile(cmd.Context()); err != nil {
					return describeError("プロフィールの取得", err)
				}

				printProfile(rt.printer, a.Session.State().Profile)
				rt.printer.PrintHints("whoami")
				return nil
			})
		},
	}
}

func printProfile(pr *output.Printer, p *model.UserProfile) {
	if p == nil {
		pr.Warning("プロフィールがまだ読み込まれていません")
		return
	}

	pr.Header("プロフィール")
	t := pr.Table([]string{"KEY", "VALUE"})
	t.AddRow([]string{"ID", p.ID})
	t.AddRow([]string{"名前", p.Name})
	t.AddRow([]string{"携帯電話番号", p.Mobile})
	t.AddRow([]string{"性別", genderLabel(p.Gender)})
	t.AddRow([]string{"誕生日", p.Birthday})
	intro := ""
	if p.Intro != nil {
		intro = *p.Intro
	}
	t.AddRow([]string{"自己紹介", intro})
	if p.Photo != "" {
		t.AddRow([]string{"アイコン", p.Photo})
	}
	t.Render()
}

func genderLabel(g int) string {
	switch g {
	case 0:
		return "男性"
	case 1:
		return "女性"
	default:
		return fmt.Sprintf("不明 (%d)", g)
	}
}
