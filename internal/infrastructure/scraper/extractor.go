package scraper

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxBody   = 5 << 20
)

// ErrNoTitle is returned when a page yields no usable title.
var ErrNoTitle = errors.New("title not found")

// Options tune the extractor. Zero values fall back to defaults.
type Options struct {
	UserAgent    string
	MaxBodyBytes int64
	Limiter      *rate.Limiter
}

// Extractor fetches recipe pages and reads Open Graph / Twitter card / <title> metadata.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	policy    *bluemonday.Policy
	logger    *slog.Logger
}

var _ ports.MetadataExtractor = (*Extractor)(nil)

// NewExtractor wires an HTTP client; a nil client gets a plain 20s-timeout client.
func NewExtractor(client *http.Client, opts Options, log *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	return &Extractor{
		client:    client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		limiter:   opts.Limiter,
		policy:    bluemonday.StrictPolicy(),
		logger:    log,
	}
}

// Scrape returns the page metadata or ok == false on any failure.
func (e *Extractor) Scrape(ctx context.Context, link string) (domain.ScrapedMetadata, bool) {
	meta, err := e.scrape(ctx, link)
	if err != nil {
		e.warn("scrape failed", "link", link, "error", err)
		return domain.ScrapedMetadata{}, false
	}
	return meta, true
}

func (e *Extractor) scrape(ctx context.Context, link string) (domain.ScrapedMetadata, error) {
	base, err := url.Parse(link)
	if err != nil {
		return domain.ScrapedMetadata{}, fmt.Errorf("invalid link: %w", err)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return domain.ScrapedMetadata{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	doc, err := e.fetchDocument(ctx, link)
	if err != nil {
		return domain.ScrapedMetadata{}, err
	}

	meta := e.parseMetadata(doc, base)
	if meta.Title == "" {
		return domain.ScrapedMetadata{}, ErrNoTitle
	}
	return meta, nil
}

func (e *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// parseMetadata applies the precedence og:* > twitter:* > plain HTML.
func (e *Extractor) parseMetadata(doc *goquery.Document, base *url.URL) domain.ScrapedMetadata {
	metas := collectMeta(doc)

	title := firstNonEmpty(metas["og:title"], metas["twitter:title"])
	if title == "" {
		title = doc.Find("title").First().Text()
	}

	image := firstNonEmpty(metas["og:image"], metas["twitter:image"])
	description := firstNonEmpty(metas["og:description"], metas["description"])

	return domain.ScrapedMetadata{
		Title:       e.clean(title),
		ImageURL:    resolveURL(strings.TrimSpace(image), base),
		Description: e.clean(description),
	}
}

// collectMeta maps lower-cased property/name keys to the first non-empty content.
func collectMeta(doc *goquery.Document) map[string]string {
	metas := map[string]string{}
	doc.Find("meta[content]").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		for _, attr := range []string{"property", "name"} {
			key := strings.ToLower(strings.TrimSpace(s.AttrOr(attr, "")))
			if key == "" {
				continue
			}
			if _, ok := metas[key]; !ok {
				metas[key] = content
			}
		}
	})
	return metas
}

// clean strips any markup that slipped into metadata and normalises whitespace.
func (e *Extractor) clean(s string) string {
	s = html.UnescapeString(e.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func resolveURL(ref string, base *url.URL) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (e *Extractor) warn(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
