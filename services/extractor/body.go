package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/customeros/codewatch/internal/utils"
)

var (
	htmlMarkerPattern = regexp.MustCompile(`(?i)<(html|body|div|p|a|table|td|br|span|img)[\s>/]`)
	bareURLPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
	trailingJunk      = regexp.MustCompile(`[)\]}>"'\s]+$`)
)

type anchor struct {
	href string
	text string
}

// parsedBody holds the visible text and every outbound URL in document order.
// Anchors carry their link text; bare URLs found in the text do not.
type parsedBody struct {
	text  string
	links []anchor
}

func parseBody(body string) parsedBody {
	if !htmlMarkerPattern.MatchString(body) {
		return parsedBody{text: body, links: bareLinks(body, nil)}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return parsedBody{text: body, links: bareLinks(body, nil)}
	}

	var links []anchor
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = cleanURL(href)
		if !isHTTPURL(href) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, anchor{href: href, text: utils.CollapseWhitespace(s.Text())})
	})

	text := visibleText(doc)
	return parsedBody{text: text, links: append(links, bareLinks(text, seen)...)}
}

// visibleText separates adjacent text nodes so block boundaries do not glue
// words to digits.
func visibleText(doc *goquery.Document) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return utils.CollapseWhitespace(b.String())
}

func bareLinks(text string, seen map[string]struct{}) []anchor {
	if seen == nil {
		seen = make(map[string]struct{})
	}
	var links []anchor
	for _, raw := range bareURLPattern.FindAllString(text, -1) {
		href := cleanURL(raw)
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		links = append(links, anchor{href: href})
	}
	return links
}

func cleanURL(raw string) string {
	return trailingJunk.ReplaceAllString(strings.TrimSpace(raw), "")
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
