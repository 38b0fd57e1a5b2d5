package importer

import (
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// thumbnailURL は記事のサムネイル画像URLを返す。
// フィードの画像指定、画像のエンクロージャ、本文中の最初のimgの順に探す。
func thumbnailURL(item *gofeed.Item, base *url.URL) string {
	if item.Image != nil && item.Image.URL != "" {
		return resolveURL(base, item.Image.URL)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return resolveURL(base, enc.URL)
		}
	}
	body := item.Content
	if body == "" {
		body = item.Description
	}
	if src := firstImageSrc(body); src != "" {
		return resolveURL(base, src)
	}
	return ""
}

// firstImageSrc はHTML断片の最初のimg要素のsrcを返す。
func firstImageSrc(fragment string) string {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.EqualFold(string(key), "src") && len(val) > 0 {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
// http/https以外は空文字列を返す。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(strings.TrimSpace(rawRef))
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
