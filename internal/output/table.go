package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// leftAligned は罫線なし・左寄せの表の設定。見出しは大文字に整形する。
var leftAligned = tablewriter.Config{
	Header: tw.CellConfig{
		Formatting: tw.CellFormatting{AutoFormat: tw.On},
		Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
	},
	Row: tw.CellConfig{
		Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
		Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
	},
}

var borderless = tw.Rendition{
	Borders:  tw.BorderNone,
	Settings: tw.Settings{Separators: tw.Separators{ShowHeader: tw.Off}},
}

// Table はPrinterに描画する一覧表。行が1つもない場合は表の代わりに空の旨を表示する。
type Table struct {
	p      *Printer
	header []string
	rows   [][]string
	empty  string
}

// Table はPrinterの出力先に描画する表を生成する。quietモードでは描画しない。
func (p *Printer) Table(headers []string) *Table {
	return &Table{p: p, header: headers}
}

// Empty は行がない場合に表示するメッセージを設定する。
func (t *Table) Empty(msg string) *Table {
	t.empty = msg
	return t
}

// AddRow は行を追加する。
func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

// Render は表を描画する。
func (t *Table) Render() {
	if t.p.quiet {
		return
	}
	if len(t.rows) == 0 {
		if t.empty != "" {
			t.p.Info("%s", t.empty)
		}
		return
	}
	render(t.p.out, t.header, t.rows)
}

func render(w io.Writer, header []string, rows [][]string) {
	tbl := tablewriter.NewTable(w,
		tablewriter.WithConfig(leftAligned),
		tablewriter.WithRendition(borderless),
	)
	tbl.Header(header)
	tbl.Bulk(rows)
	tbl.Render()
}
