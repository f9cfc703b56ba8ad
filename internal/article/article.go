// Package article turns a raw archived page into a dataset record: the
// original URL and snapshot date from the archive identifier, the body text
// from readability, and the summary from the page's description metadata.
package article

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/dataset"
)

// MinParagraphWords drops captions, bylines and ads from the body text.
const MinParagraphWords = 5

// ErrEmptyPage is returned for pages without content.
var ErrEmptyPage = errors.New("no page content")

var (
	whitespace = regexp.MustCompile(`\s+`)

	summaryPriority = []string{"og:description", "twitter:description", "description"}
)

// Article is the parsed form of one archived page.
type Article struct {
	Archive string
	URL     string
	Date    string
	Title   string
	Text    string
	// Summary is nil when the page has no description metadata.
	Summary *string
}

// Parse extracts an Article from an archive identifier and its HTML.
func Parse(archive, html string) (*Article, error) {
	date, original, err := dataset.ParseArchive(archive)
	if err != nil {
		return nil, fmt.Errorf("parse archive identifier: %w", err)
	}
	if strings.TrimSpace(html) == "" {
		return nil, ErrEmptyPage
	}

	a := &Article{Archive: archive, Date: date, URL: NormalizeURL(original)}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	a.URL = canonicalURL(doc, a.URL)

	pageURL, err := url.Parse(a.URL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	parsed, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	a.Title = strings.TrimSpace(parsed.Title)
	if a.Text, err = bodyText(parsed.Content); err != nil {
		return nil, err
	}
	a.Summary = summary(doc)
	return a, nil
}

// Record converts the article to a dataset record.
func (a *Article) Record() *dataset.Record {
	return &dataset.Record{
		URL:     a.URL,
		Archive: a.Archive,
		Date:    a.Date,
		Title:   a.Title,
		Text:    dataset.StringPtr(a.Text),
		Summary: a.Summary,
	}
}

// canonicalURL returns the page's canonical link when it resolves onto the
// same host as current.
func canonicalURL(doc *goquery.Document, current string) string {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return current
	}
	base, err := url.Parse(current)
	if err != nil {
		return current
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return current
	}
	canonical := NormalizeURL(base.ResolveReference(ref).String())
	if !SameDomain(current, canonical) {
		return current
	}
	return canonical
}

func bodyText(content string) (string, error) {
	body, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse readability content: %w", err)
	}
	var paragraphs []string
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := p.Text()
		if len(strings.Fields(text)) < MinParagraphWords {
			return
		}
		paragraphs = append(paragraphs, strings.TrimSpace(whitespace.ReplaceAllString(text, " ")))
	})
	return strings.Join(paragraphs, "\n\n"), nil
}

// summary picks the description meta tag by priority, falling back to the
// alphabetically first tag whose name mentions "description".
func summary(doc *goquery.Document) *string {
	found := make(map[string]string)
	doc.Find("meta").Each(func(_ int, meta *goquery.Selection) {
		content, hasContent := meta.Attr("content")
		if !hasContent {
			return
		}
		for _, attr := range []string{"name", "property"} {
			if value, ok := meta.Attr(attr); ok && strings.Contains(value, "description") {
				found[value] = strings.TrimSpace(content)
			}
		}
	})
	if len(found) == 0 {
		return nil
	}
	for _, kind := range summaryPriority {
		if s, ok := found[kind]; ok {
			return &s
		}
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := found[keys[0]]
	return &s
}

// Extractor implements dataset.Extractor.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor builds an Extractor. A nil logger discards output.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Process parses page and returns nil on any failure.
func (e *Extractor) Process(page dataset.ArchiveRecord) (rec *dataset.Record) {
	id := page.Identifier()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Extraction panicked", zap.String("archive", id), zap.Any("panic", r))
			rec = nil
		}
	}()
	a, err := Parse(id, page.HTML)
	if err != nil {
		e.logger.Debug("Extraction failed", zap.String("archive", id), zap.Error(err))
		return nil
	}
	return a.Record()
}
