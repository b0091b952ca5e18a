// Package parser extracts indexable fields from fetched page bytes.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/intellsearch/intell/internal/search"
	"github.com/intellsearch/intell/internal/search/urlutil"
)

// ErrUnsupportedContent marks bodies the parser will not extract
// (non-HTML content types). These URLs are skipped, never retried.
var ErrUnsupportedContent = fmt.Errorf("unsupported content type")

// defaultUnsafeTerms flags pages for the safe-search filter.
var defaultUnsafeTerms = []string{
	"offensive", "profane", "explicit content", "adult content",
}

// HTMLParser is a deterministic extractor: the same bytes always yield
// the same fields, which the content-hash skip logic depends on.
type HTMLParser struct {
	maxContentLen int
	unsafeTerms   []string
}

// Option configures an HTMLParser.
type Option func(*HTMLParser)

// WithMaxContentLength caps extracted text length in bytes.
func WithMaxContentLength(n int) Option {
	return func(p *HTMLParser) { p.maxContentLen = n }
}

// WithUnsafeTerms overrides the safe-search term list.
func WithUnsafeTerms(terms []string) Option {
	return func(p *HTMLParser) { p.unsafeTerms = terms }
}

// New builds an HTMLParser.
func New(opts ...Option) *HTMLParser {
	p := &HTMLParser{
		maxContentLen: 50000,
		unsafeTerms:   defaultUnsafeTerms,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse implements search.Parser.
func (p *HTMLParser) Parse(baseURL string, contentType string, body []byte) (search.ParsedPage, error) {
	if !isHTML(contentType) {
		return search.ParsedPage{}, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return search.ParsedPage{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return search.ParsedPage{}, fmt.Errorf("parse html: %w", err)
	}

	title := collapseWhitespace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript").Remove()
	contentRoot := doc.Find("body")
	var content string
	if contentRoot.Length() > 0 {
		content = contentRoot.Text()
	} else {
		content = doc.Text()
	}
	content = collapseWhitespace(content)
	if len(content) > p.maxContentLen {
		// Back up to a rune boundary so the cap never stores a split
		// multi-byte character.
		cut := p.maxContentLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}

	links := p.extractLinks(base, doc)

	page := search.ParsedPage{
		Title:         title,
		Content:       content,
		ContentHash:   hashContent(title, content),
		OutboundLinks: links,
		Safe:          p.isSafe(title, content),
	}
	return page, nil
}

func (p *HTMLParser) extractLinks(base *url.URL, doc *goquery.Document) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		normalized, followable := urlutil.ResolveLink(base, href)
		if !followable {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links
}

func (p *HTMLParser) isSafe(title, content string) bool {
	haystack := strings.ToLower(title + " " + content)
	for _, term := range p.unsafeTerms {
		if strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hashContent(title, content string) string {
	sum := sha256.Sum256([]byte(title + "\n" + content))
	return hex.EncodeToString(sum[:])
}
