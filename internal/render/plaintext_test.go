package render

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"段落", "<p>Hello <strong>world</strong></p><p>Second</p>", "Hello world\n\nSecond"},
		{"リスト", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"実体参照", "<p>a &amp; b &lt;c&gt;</p>", "a & b <c>"},
		{"script除去", "<p>x</p><script>evil()</script><style>p{}</style>", "x"},
		{"改行", "<p>line1<br>line2</p>", "line1\nline2"},
		{"見出し", "<h1>Title</h1><p>body</p>", "Title\n\nbody"},
		{"空白の圧縮", "<p>  many\n   spaces  </p>", "many spaces"},
		{"プレーンテキスト", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("<p>こんにちは世界</p>", 5); got != "こんにちは…" {
		t.Errorf("Excerpt = %q", got)
	}
	if got := Excerpt("<p>short</p><p>text</p>", 50); got != "short text" {
		t.Errorf("Excerpt = %q", got)
	}
	if got := Excerpt("<p>abc</p>", 0); got != "abc" {
		t.Errorf("Excerpt = %q", got)
	}
}

func TestIsBlank(t *testing.T) {
	tests := map[string]bool{
		"":                  true,
		"<p><br></p>":       true,
		"<p>   </p><p></p>": true,
		"<p>本文</p>":         false,
		"<hr>":              false,
	}
	for input, want := range tests {
		if got := IsBlank(input); got != want {
			t.Errorf("IsBlank(%q) = %v, want %v", input, got, want)
		}
	}
}
