package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const (
	defaultExcerptLength = 280
	defaultUserAgent     = "Mozilla/5.0 (compatible; cloudbench-scraper/1.0)"
	maxPageBytes         = 8 << 20

	defaultBodySelector = "article p, main p, p"
	defaultDateSelector = "time[datetime]"
)

// SourceFetchError reports a single source that could not be fetched or parsed.
type SourceFetchError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *SourceFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (%s): status %d: %v", e.Source, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// Result is the outcome of a scrape: one record per successful source plus the
// per-source failures that were skipped.
type Result struct {
	Records  []Record
	Failures []*SourceFetchError
}

// Options configures a Scraper.
type Options struct {
	Client        *http.Client
	UserAgent     string
	ExcerptLength int
	Logger        zerolog.Logger
}

// Scraper fetches source pages and extracts one Record from each.
type Scraper struct {
	client        *http.Client
	userAgent     string
	excerptLength int
	logger        zerolog.Logger
}

// New returns a Scraper with defaults applied to opts.
func New(opts Options) *Scraper {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = defaultExcerptLength
	}
	return &Scraper{
		client:        opts.Client,
		userAgent:     opts.UserAgent,
		excerptLength: opts.ExcerptLength,
		logger:        opts.Logger,
	}
}

// Scrape visits every source in order. Failing sources are logged and skipped; an error
// is returned only when every source fails or ctx is cancelled.
func (s *Scraper) Scrape(ctx context.Context, sources []Source) (*Result, error) {
	result := &Result{Records: make([]Record, 0, len(sources))}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rec, err := s.scrapeSource(ctx, src)
		if err != nil {
			var fetchErr *SourceFetchError
			if !errors.As(err, &fetchErr) {
				fetchErr = &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
			}
			s.logger.Warn().Err(fetchErr).Str("source", src.Name).Msg("source failed, skipping")
			result.Failures = append(result.Failures, fetchErr)
			continue
		}

		s.logger.Debug().Str("source", src.Name).Str("title", rec.Title).Msg("source scraped")
		result.Records = append(result.Records, rec)
	}

	if len(sources) > 0 && len(result.Failures) == len(sources) {
		errs := make([]error, 0, len(result.Failures))
		for _, f := range result.Failures {
			errs = append(errs, f)
		}
		return result, fmt.Errorf("all %d sources failed: %w", len(sources), errors.Join(errs...))
	}

	s.logger.Info().
		Int("sources", len(sources)).
		Int("records", len(result.Records)).
		Int("failures", len(result.Failures)).
		Msg("scrape complete")
	return result, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, src Source) (Record, error) {
	if err := src.normalize(); err != nil {
		return Record{}, &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Record{}, &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return Record{}, &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Record{}, &SourceFetchError{
			Source:     src.Name,
			URL:        src.URL,
			StatusCode: resp.StatusCode,
			Err:        errors.New("unexpected status"),
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Record{}, &SourceFetchError{Source: src.Name, URL: src.URL, Err: fmt.Errorf("parse html: %w", err)}
	}

	pageURL := resp.Request.URL
	rec, err := s.extract(doc, src, pageURL)
	if err != nil {
		return Record{}, &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
	}
	return rec, nil
}

func (s *Scraper) extract(doc *goquery.Document, src Source, pageURL *url.URL) (Record, error) {
	title := extractTitle(doc, src.TitleSelector)
	if title == "" {
		return Record{}, errors.New("no title found")
	}

	return Record{
		Source:      src.Name,
		Title:       title,
		URL:         extractURL(doc, pageURL),
		PublishedAt: extractPublished(doc, src.DateSelector, src.DateAttribute),
		BodyExcerpt: extractExcerpt(doc, src.BodySelector, s.excerptLength),
	}, nil
}

func extractTitle(doc *goquery.Document, selector string) string {
	if selector != "" {
		if t := cleanText(doc.Find(selector).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return cleanText(t)
	}
	if t := cleanText(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return cleanText(doc.Find("title").First().Text())
}

func extractURL(doc *goquery.Document, pageURL *url.URL) string {
	candidates := []string{}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		candidates = append(candidates, href)
	}
	if og, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		candidates = append(candidates, og)
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		ref, err := url.Parse(c)
		if err != nil {
			continue
		}
		if pageURL != nil {
			return pageURL.ResolveReference(ref).String()
		}
		return ref.String()
	}
	if pageURL == nil {
		return ""
	}
	return pageURL.String()
}

func extractPublished(doc *goquery.Document, selector, attribute string) *time.Time {
	if selector == "" {
		selector = defaultDateSelector
	}
	if attribute == "" {
		attribute = "datetime"
	}

	var raw string
	if v, ok := doc.Find(selector).First().Attr(attribute); ok {
		raw = v
	}
	if strings.TrimSpace(raw) == "" {
		if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
			raw = v
		}
	}
	return parseTimestamp(raw)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 variants and unix seconds or milliseconds.
// Unparseable input yields nil.
func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		var t time.Time
		if n >= 1e12 {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
		return &t
	}
	return nil
}

func extractExcerpt(doc *goquery.Document, selector string, limit int) string {
	if selector == "" {
		selector = defaultBodySelector
	}

	var b strings.Builder
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := cleanText(sel.Text())
		if text == "" {
			return true
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		return utf8.RuneCountInString(b.String()) < limit
	})

	excerpt := b.String()
	if excerpt == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			excerpt = cleanText(desc)
		}
	}
	return truncateRunes(excerpt, limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
