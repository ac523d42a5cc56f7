// Package output はgeekctlの端末出力（メッセージ、表、エラー表示）を提供する。
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/hitoshi/geekcms/internal/model"
)

// ColorMode は色付き出力のモード。
type ColorMode int

const (
	// ColorAuto は環境に応じて色を使う（既定）。
	ColorAuto ColorMode = iota
	// ColorAlways は常に色を使う。
	ColorAlways
	// ColorNever は色を使わない。
	ColorNever
)

// PrinterOptions はPrinterの生成オプション。
type PrinterOptions struct {
	ColorMode    ColorMode
	ConfigColors bool // .geekctl.yaml の output.colors
	Quiet        bool
	Out          io.Writer // nilの場合はos.Stdout
	Err          io.Writer // nilの場合はos.Stderr
}

// Printer は端末への整形出力を行う。
// Success/Error はapi.Notifierとpublish.Notifierを満たし、利用者への通知に使われる。
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
	quiet     bool
}

// ParseColorMode は文字列をColorModeに変換する。
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("invalid color mode %q: must be auto, always, or never", s)
	}
}

// ResolveColors はモードと環境変数から色を使うかを決める。
func ResolveColors(mode ColorMode, configColors bool) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			return false
		}
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		return configColors
	}
}

// NewPrinter は標準出力・標準エラー出力に書き込むPrinterを生成する。
func NewPrinter(useColors bool) *Printer {
	return &Printer{
		out:       os.Stdout,
		err:       os.Stderr,
		useColors: useColors,
	}
}

// NewPrinterWithOptions はオプションを指定してPrinterを生成する。
func NewPrinterWithOptions(opts PrinterOptions) *Printer {
	p := &Printer{
		out:       opts.Out,
		err:       opts.Err,
		useColors: ResolveColors(opts.ColorMode, opts.ConfigColors),
		quiet:     opts.Quiet,
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.err == nil {
		p.err = os.Stderr
	}
	return p
}

// Out は通常出力の書き込み先を返す。
func (p *Printer) Out() io.Writer {
	return p.out
}

// IsQuiet はquietモードかを返す。
func (p *Printer) IsQuiet() bool {
	return p.quiet
}

// Info は情報メッセージを出力する。
func (p *Printer) Info(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

// Success は成功メッセージを出力する。
func (p *Printer) Success(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
	}
}

// Warning は警告を標準エラー出力に出力する。
func (p *Printer) Warning(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	if p.useColors {
		color.New(color.FgYellow).Fprintf(p.err, "⚠ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.err, "[WARN] "+format+"\n", args...)
	}
}

// Error はエラーを標準エラー出力に出力する。quietモードでも出力する。
func (p *Printer) Error(format string, args ...interface{}) {
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
	} else {
		fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
	}
}

// Print は装飾なしで出力する。
func (p *Printer) Print(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Header は見出しを出力する。下線は全角文字の表示幅に合わせる。
func (p *Printer) Header(title string) {
	if p.quiet {
		return
	}
	width := runewidth.StringWidth(title)
	if p.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(p.out, "\n%s\n", title)
		color.New(color.FgWhite).Fprintf(p.out, "%s\n", strings.Repeat("─", width))
	} else {
		fmt.Fprintf(p.out, "\n%s\n%s\n", title, strings.Repeat("-", width))
	}
}

// StatusBadge は記事の審査状態を表示用の文字列にする。
func (p *Printer) StatusBadge(status model.ArticleStatus) string {
	label := status.Label()
	if !p.useColors {
		return fmt.Sprintf("[%s]", label)
	}

	switch status {
	case model.ArticleStatusApproved:
		return color.GreenString("● ") + label
	case model.ArticleStatusPending:
		return color.YellowString("● ") + label
	default:
		return color.WhiteString("○ ") + label
	}
}

// Bold は太字の文字列を返す。
func (p *Printer) Bold(text string) string {
	if p.useColors {
		return color.New(color.Bold).Sprint(text)
	}
	return text
}

// Dim は淡色の文字列を返す。
func (p *Printer) Dim(text string) string {
	if p.useColors {
		return color.New(color.Faint).Sprint(text)
	}
	return text
}

// Truncate は表示幅がwidthを超える文字列を末尾を省略して切り詰める。
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
