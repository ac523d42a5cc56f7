// Package security はエディタ出力のサニタイズと外部URLアクセスの制限を提供する。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// EditorSanitizer はリッチテキストエディタが出力したHTMLを公開前にサニタイズする。
// エディタのツールバーで作成できる要素のみを許可し、それ以外は除去する。
type EditorSanitizer struct {
	policy *bluemonday.Policy
}

// NewEditorSanitizer はEditorSanitizerを生成する。
//
// 許可する要素:
//   - 段落と見出し: p, h1-h6, br, hr
//   - 装飾: strong, em, s, u, code, pre, blockquote
//   - リスト: ul, ol, li
//   - リンク: a（httpsとhttpのhrefのみ、rel="noopener noreferrer"を付与）
//   - 画像: img（httpsのsrcとaltのみ）
func NewEditorSanitizer() *EditorSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "h1", "h2", "h3", "h4", "h5", "h6", "br", "hr",
		"strong", "em", "s", "u", "code", "pre", "blockquote",
		"ul", "ol", "li",
	)

	// エディタのコードブロックは言語名をclassで持つ
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[a-zA-Z0-9+#-]+$`)).OnElements("code")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "http")
	p.AllowRelativeURLs(false)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(regexp.MustCompile(`^https://`)).OnElements("img")

	return &EditorSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズして返す。
func (s *EditorSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
