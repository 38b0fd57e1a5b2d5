package importer

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLink はページのheadから見つかったフィードへのリンク。
type feedLink struct {
	URL  string
	Atom bool
}

// isFeedResponse はContent-Typeとボディの先頭からRSS/Atomフィードかどうかを判定する。
// 汎用のXMLや種別不明の応答はルート要素で判断する。
func isFeedResponse(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}

	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/html", "application/xhtml+xml":
		return false
	}
	return looksLikeFeed(body)
}

func looksLikeFeed(body []byte) bool {
	prefix := strings.ToLower(string(body[:min(len(body), 4096)]))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// parseFeedLinks はHTMLのheadにある rel="alternate" のRSS/Atomリンクを列挙する。
func parseFeedLinks(page []byte, pageURL string) []feedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(page))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links

		case html.EndTagToken:
			if tn, _ := z.TagName(); string(tn) == "head" {
				return links
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, typ, href string
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "rel":
					rel = strings.ToLower(string(v))
				case "type":
					typ = strings.ToLower(string(v))
				case "href":
					href = string(v)
				}
			}
			if !hasToken(rel, "alternate") || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}
			if u := resolveURL(base, href); u != "" {
				links = append(links, feedLink{URL: u, Atom: typ == "application/atom+xml"})
			}
		}
	}
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// discoverFeedURL はページ内のフィードから1つを選ぶ。
// 同一ホストを優先し、その中ではAtomを、さらに同点なら先に現れたものを選ぶ。
func discoverFeedURL(page []byte, pageURL string) (string, bool) {
	links := parseFeedLinks(page, pageURL)
	if len(links) == 0 {
		return "", false
	}

	host := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == host {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].URL, true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
