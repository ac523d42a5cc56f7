// Package render はエディタのHTMLを端末表示用のプレーンテキストに変換する。
package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// blockTags は前後で改行するブロック要素。
var blockTags = map[string]bool{
	"p": true, "div": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "hr": true,
}

// PlainText はHTMLからタグを除いたテキストを返す。
// ブロック要素は改行で区切り、リスト項目には "- " を付ける。
// script と style の中身は出力しない。連続する空行は1つにまとめる。
func PlainText(rawHTML string) string {
	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	skip := 0
	inPre := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return tidy(b.String())

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(tokenizer.Text())
			if !inPre {
				text = collapseSpaces(text)
			}
			b.WriteString(text)

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			switch {
			case name == "script" || name == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case name == "br":
				b.WriteByte('\n')
			case name == "li":
				b.WriteString("\n- ")
			case name == "hr":
				b.WriteString("\n----\n")
			case blockTags[name]:
				if name == "pre" {
					inPre = true
				}
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			name := string(tn)
			switch {
			case name == "script" || name == "style":
				if skip > 0 {
					skip--
				}
			case name == "li":
			case blockTags[name]:
				if name == "pre" {
					inPre = false
				}
				b.WriteByte('\n')
			}
		}
	}
}

// Excerpt はプレーンテキストの先頭maxRunes文字を1行で返す。切り詰めた場合は末尾に "…" を付ける。
func Excerpt(rawHTML string, maxRunes int) string {
	text := strings.Join(strings.Fields(PlainText(rawHTML)), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// IsBlank はHTMLに表示されるテキストがないかを返す。
// エディタの空段落（<p><br></p>）を未入力として扱うために使う。
func IsBlank(rawHTML string) bool {
	return strings.TrimSpace(PlainText(rawHTML)) == ""
}

func collapseSpaces(s string) string {
	if strings.TrimSpace(s) == "" {
		if s == "" {
			return ""
		}
		return " "
	}
	lead := s[0] == ' ' || s[0] == '\n' || s[0] == '\t'
	trail := s[len(s)-1] == ' ' || s[len(s)-1] == '\n' || s[len(s)-1] == '\t'
	out := strings.Join(strings.Fields(s), " ")
	if lead {
		out = " " + out
	}
	if trail {
		out += " "
	}
	return out
}

// tidy は各行の前後の空白を除き、連続する空行をまとめる。
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if !strings.HasPrefix(l, "- ") {
			l = strings.TrimLeft(l, " \t")
		}
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
