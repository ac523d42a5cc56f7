package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// 終了コード
const (
	ExitSuccess      = 0
	ExitGeneral      = 1
	ExitUsageError   = 2
	ExitAPIError     = 3
	ExitConfigError  = 4
	ExitTimeout      = 5
	ExitAuthRequired = 6
)

// CLIError は利用者向けの文脈を持つエラー。
type CLIError struct {
	Summary    string
	Detail     string
	Suggestion string
	ExitCode   int
	Err        error
}

// Error はerrorインターフェースを実装し、概要を返す。
func (e *CLIError) Error() string {
	return e.Summary
}

// Unwrap は元のエラーを返す。
func (e *CLIError) Unwrap() error {
	return e.Err
}

// FormatError は構造化されたエラーを標準エラー出力に出力する。
// 色を使わない場合は行頭の [ERROR] で機械的に判別できる形式にする。
func (p *Printer) FormatError(e *CLIError) {
	summary, suggest := fmt.Sprintf, fmt.Sprintf
	head := "[ERROR] %s"
	if p.useColors {
		summary = color.New(color.FgRed, color.Bold).Sprintf
		suggest = color.New(color.FgCyan).Sprintf
		head = "エラー: %s"
	}

	lines := []string{summary(head, e.Summary)}
	if e.Detail != "" {
		lines = append(lines, "  原因: "+e.Detail)
	}
	if e.Suggestion != "" {
		lines = append(lines, suggest("  対処: %s", e.Suggestion))
	}
	fmt.Fprintln(p.err, strings.Join(lines, "\n"))
}
