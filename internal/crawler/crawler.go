// Package crawler fetches a website's pages breadth-first and extracts
// their readable text for knowledge ingestion. Crawls stay on the start
// URL's host and respect depth, page, and politeness limits.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	colly "github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

const defaultUserAgent = "convoflow-crawler/1.0"

// Config bounds a crawl. Zero values fall back to conservative defaults.
type Config struct {
	MaxDepth int
	MaxPages int
	Delay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.Delay <= 0 {
		c.Delay = 500 * time.Millisecond
	}
	return c
}

// PageFunc receives each successfully extracted page along with the raw
// HTML it was extracted from. Returning an error stops the crawl.
type PageFunc func(page service.CrawledPage, rawHTML []byte) error

type Crawler struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg.withDefaults(), logger: logger}
}

// Crawl walks the site rooted at startURL breadth-first and invokes fn
// for every page whose text could be extracted. A positive maxDepth
// overrides the configured depth. Pages that fail to fetch or parse are
// logged and skipped; a callback error aborts the crawl.
func (c *Crawler) Crawl(ctx context.Context, startURL string, maxDepth int, fn PageFunc) error {
	root, err := url.Parse(startURL)
	if err != nil || !root.IsAbs() || (root.Scheme != "http" && root.Scheme != "https") {
		return domain.ErrInvalidCrawlURL
	}
	if maxDepth <= 0 || maxDepth > c.cfg.MaxDepth {
		maxDepth = c.cfg.MaxDepth
	}

	collector := colly.NewCollector(
		colly.MaxDepth(maxDepth),
		colly.AllowedDomains(root.Hostname()),
		colly.UserAgent(defaultUserAgent),
	)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      c.cfg.Delay,
	}); err != nil {
		return fmt.Errorf("crawl limit rule: %w", err)
	}

	var (
		mu       sync.Mutex
		pages    int
		callback error
	)

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		stop := ctx.Err() != nil || callback != nil || pages >= c.cfg.MaxPages
		mu.Unlock()
		if stop {
			r.Abort()
		}
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		// colly enforces the domain and depth limits on Visit.
		_ = e.Request.Visit(link)
	})

	collector.OnResponse(func(r *colly.Response) {
		if !strings.Contains(r.Headers.Get("Content-Type"), "text/html") {
			return
		}

		page, err := ExtractPage(r.Request.URL, r.Body)
		if err != nil {
			c.logger.Warn("page extraction failed",
				zap.String("url", r.Request.URL.String()), zap.Error(err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if callback != nil || pages >= c.cfg.MaxPages {
			return
		}
		pages++
		if err := fn(page, r.Body); err != nil {
			callback = err
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	if err := collector.Visit(root.String()); err != nil {
		return fmt.Errorf("crawl %s: %w", root.String(), err)
	}
	collector.Wait()

	if callback != nil {
		return callback
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("crawl finished",
		zap.String("start_url", root.String()), zap.Int("pages", pages))
	return nil
}

// ExtractPage pulls the readable title and body text out of one HTML
// document. It tries readability extraction first and falls back to
// stripping boilerplate elements from the full document.
func ExtractPage(pageURL *url.URL, body []byte) (service.CrawledPage, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return service.CrawledPage{
			URL:   pageURL.String(),
			Title: pageTitle(article.Title, pageURL),
			Text:  normalizeWhitespace(article.TextContent),
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return service.CrawledPage{}, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	text := normalizeWhitespace(doc.Find("body").Text())
	return service.CrawledPage{
		URL:   pageURL.String(),
		Title: pageTitle(title, pageURL),
		Text:  text,
	}, nil
}

func pageTitle(title string, pageURL *url.URL) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	return pageURL.Hostname() + pageURL.Path
}

// normalizeWhitespace collapses runs of blank space while keeping the
// paragraph breaks the chunker splits on.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
