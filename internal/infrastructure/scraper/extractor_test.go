package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestParseMetadataPrefersOpenGraph(t *testing.T) {
	t.Parallel()

	page := `<html><head>
	  <title>Fallback title</title>
	  <meta name="twitter:title" content="Twitter title">
	  <meta property="og:title" content="鶏の照り焼き &amp; ご飯">
	  <meta name="twitter:image" content="https://img.test/tw.jpg">
	  <meta content="/images/teriyaki.jpg" property="OG:IMAGE">
	  <meta name="description" content="plain description">
	  <meta property="og:description" content="甘辛い  <b>照り焼き</b>">
	</head></html>`

	base, _ := url.Parse("https://recipes.test/r/42")
	meta := NewExtractor(nil, Options{}, nil).parseMetadata(parse(t, page), base)

	assert.Equal(t, "鶏の照り焼き & ご飯", meta.Title)
	assert.Equal(t, "https://recipes.test/images/teriyaki.jpg", meta.ImageURL)
	assert.Equal(t, "甘辛い 照り焼き", meta.Description)
}

func TestParseMetadataFallbacks(t *testing.T) {
	t.Parallel()

	page := `<html><head>
	  <title>
	    Miso soup | Kitchen
	  </title>
	  <meta name="description" content="Simple miso soup.">
	</head></html>`

	meta := NewExtractor(nil, Options{}, nil).parseMetadata(parse(t, page), nil)

	assert.Equal(t, "Miso soup | Kitchen", meta.Title)
	assert.Empty(t, meta.ImageURL)
	assert.Equal(t, "Simple miso soup.", meta.Description)
}

func TestExtractorScrape(t *testing.T) {
	t.Parallel()

	var (
		mu             sync.Mutex
		gotUA, gotLang string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		mu.Unlock()
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Curry"><meta property="og:image" content="/c.png"></head></html>`))
		case "/untitled":
			_, _ = w.Write([]byte(`<html><body>nothing</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ex := NewExtractor(server.Client(), Options{UserAgent: "RecipeCollector/test"}, nil)

	meta, ok := ex.Scrape(context.Background(), server.URL+"/ok")
	require.True(t, ok)
	assert.Equal(t, "Curry", meta.Title)
	assert.Equal(t, server.URL+"/c.png", meta.ImageURL)
	mu.Lock()
	assert.Equal(t, "RecipeCollector/test", gotUA)
	assert.Equal(t, "ja,en;q=0.9", gotLang)
	mu.Unlock()

	_, ok = ex.Scrape(context.Background(), server.URL+"/untitled")
	assert.False(t, ok)

	_, ok = ex.Scrape(context.Background(), server.URL+"/missing")
	assert.False(t, ok)

	_, ok = ex.Scrape(context.Background(), "http://[::1")
	assert.False(t, ok)
}

func TestExtractorScrapeTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ex := NewExtractor(server.Client(), Options{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := ex.Scrape(ctx, server.URL)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExtractorRateLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	require.True(t, limiter.Allow())

	ex := NewExtractor(nil, Options{Limiter: limiter}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := ex.Scrape(ctx, "https://recipes.test/r/1")
	assert.False(t, ok)
}

func TestNewSafeClientRejectsLoopback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<title>internal</title>`))
	}))
	defer server.Close()

	ex := NewExtractor(NewSafeClient(2*time.Second), Options{}, nil)
	_, ok := ex.Scrape(context.Background(), server.URL)
	assert.False(t, ok)
}
