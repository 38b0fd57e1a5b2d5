// Package security は投稿本文のサニタイズと外部URL取得時のSSRF対策を提供する。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は投稿・リソース本文のHTMLを無害化する。
type Sanitizer interface {
	// Sanitize は許可リストにないタグと属性を取り除いたHTMLを返す。
	Sanitize(rawHTML string) string
	// PlainText はタグを全て取り除いたテキストを返す。分類サービスへの送信に使う。
	PlainText(rawHTML string) string
}

type sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// 投稿で使える装飾（段落、改行、リンク、リスト、引用、コード、強調、https画像）のみ許可する。
// リンクにはtarget="_blank"とrel="noopener noreferrer"を付与する。
func NewSanitizer() Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	// http、javascript、dataスキームは拒否
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &sanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

func (s *sanitizer) Sanitize(rawHTML string) string {
	return s.rich.Sanitize(rawHTML)
}

func (s *sanitizer) PlainText(rawHTML string) string {
	// StrictPolicyは実体参照をエスケープしたまま返すため戻す
	text := html.UnescapeString(s.plain.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}
