package output

import (
	"fmt"
	"strings"
)

// CommandHints はコマンド名から次に実行しそうなコマンドへの対応表。
var CommandHints = map[string][]string{
	"login":    {"whoami", "articles"},
	"logout":   {"login"},
	"whoami":   {"articles", "channels"},
	"channels": {"articles --channel <id>"},
	"articles": {"article <id>", "articles --page <n>"},
	"article":  {"articles"},
	"publish":  {"articles --status pending"},
	"config":   {"login"},
}

// PrintHints はコマンドの関連コマンドを出力する。quietモードまたは対応がない場合は何もしない。
func (p *Printer) PrintHints(command string) {
	if p.quiet {
		return
	}
	hints, ok := CommandHints[command]
	if !ok || len(hints) == 0 {
		return
	}

	cmds := make([]string, len(hints))
	for i, h := range hints {
		cmds[i] = "geekctl " + h
	}
	fmt.Fprintf(p.out, "\n関連コマンド: %s\n", strings.Join(cmds, ", "))
}
