package article

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	canonicalSelector = `link[rel="canonical"]`
	ogTitleSelector   = `meta[property="og:title"]`
	bylineSelector    = `meta[name="byl"]`
	authorSelector    = `[rel="author"], [itemprop="name"]`
	textBlockSelector = `[data-component="text-block"]`
)

// Result holds the fields extracted from one article page. Any field may be
// empty when no strategy matched.
type Result struct {
	Canonical string
	Title     string
	Authors   []string
	HTML      string
	Text      string
}

// Empty reports whether nothing at all was extracted.
func (r Result) Empty() bool {
	return r.Canonical == "" && r.Title == "" && len(r.Authors) == 0 && r.HTML == "" && r.Text == ""
}

type textStrategy func(doc *goquery.Document) string

type bodyStrategy func(doc *goquery.Document) (htmlPart, text string)

var (
	titleStrategies = []textStrategy{ogTitle, firstHeading}
	bodyStrategies  = []bodyStrategy{textBlocks, region("main"), region("body"), wholeDocument}
)

// Parse extracts canonical URL, title, authors and body from raw HTML.
// It never fails: malformed or empty input produces an empty Result.
func Parse(raw string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
		}
	}()

	if strings.TrimSpace(raw) == "" {
		return Result{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Result{}
	}

	return ParseDocument(doc)
}

// ParseDocument runs the extraction strategies over an already parsed document.
func ParseDocument(doc *goquery.Document) Result {
	res := Result{
		Canonical: canonical(doc),
		Title:     firstText(doc, titleStrategies),
		Authors:   authors(doc),
	}

	for _, strategy := range bodyStrategies {
		htmlPart, text := strategy(doc)
		if text != "" {
			res.HTML = htmlPart
			res.Text = text
			break
		}
	}

	return res
}

func firstText(doc *goquery.Document, strategies []textStrategy) string {
	for _, strategy := range strategies {
		if v := strategy(doc); v != "" {
			return v
		}
	}
	return ""
}

func canonical(doc *goquery.Document) string {
	href, _ := doc.Find(canonicalSelector).First().Attr("href")
	return strings.TrimSpace(href)
}

func ogTitle(doc *goquery.Document) string {
	content, _ := doc.Find(ogTitleSelector).First().Attr("content")
	return normalizeSpace(content)
}

func firstHeading(doc *goquery.Document) string {
	return normalizeSpace(doc.Find("h1").First().Text())
}

// authors collects every byline marker, deduplicated and sorted.
func authors(doc *goquery.Document) []string {
	set := make(map[string]struct{})

	doc.Find(authorSelector).Each(func(_ int, s *goquery.Selection) {
		if name := normalizeSpace(s.Text()); name != "" {
			set[name] = struct{}{}
		}
	})

	doc.Find(bylineSelector).Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if name := normalizeSpace(content); name != "" {
			set[name] = struct{}{}
		}
	})

	if len(set) == 0 {
		return nil
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func textBlocks(doc *goquery.Document) (string, string) {
	var htmlParts strings.Builder
	var texts []string

	doc.Find(textBlockSelector).Each(func(_ int, s *goquery.Selection) {
		if outer, err := goquery.OuterHtml(s); err == nil {
			htmlParts.WriteString(outer)
		}
		if t := visibleText(s); t != "" {
			texts = append(texts, t)
		}
	})

	return htmlParts.String(), strings.Join(texts, " ")
}

func region(selector string) bodyStrategy {
	return func(doc *goquery.Document) (string, string) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", ""
		}
		outer, err := goquery.OuterHtml(sel)
		if err != nil {
			return "", ""
		}
		return outer, visibleText(sel)
	}
}

func wholeDocument(doc *goquery.Document) (string, string) {
	outer, err := doc.Html()
	if err != nil {
		return "", ""
	}
	return outer, visibleText(doc.Selection)
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// visibleText joins the trimmed text nodes under sel with single spaces,
// ignoring script-like elements.
func visibleText(sel *goquery.Selection) string {
	var parts []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := normalizeSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}

	return strings.Join(parts, " ")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
