// Package scraper collects the raw catalog from the demo target. It visits
// every product detail page so the raw artifact carries category and stock,
// which the listing pages do not expose.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-books-pipeline/config"
	"github.com/aluiziolira/go-books-pipeline/models"
	"github.com/aluiziolira/go-books-pipeline/parser"
)

// visitedCacheSize bounds the dedupe cache; the demo catalog has 1000
// products, so evictions only matter for much larger targets, where a
// duplicate visit is cheaper than unbounded memory.
const visitedCacheSize = 4096

// Scraper wraps the colly collector and retry logic for the demo target.
type Scraper struct {
	cfg       config.ScraperConfig
	collector *colly.Collector
	retry     *retryManager
	visited   *lru.Cache[string, struct{}]
	Metrics   *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	books        []models.RawBook
	failedURLs   []string
	errorsByType map[string]int

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg config.ScraperConfig) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	visited, err := lru.New[string, struct{}](visitedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		visited:      visited,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics)
	return s, nil
}

// Run starts the crawl and returns the captured raw catalog. Books are
// ordered by product page URL so repeated scrapes of an unchanged catalog
// produce an identical raw artifact.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.retry.SetContext(ctx)
	s.configureHandlers(ctx)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	if err := s.collector.Visit(s.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("initial visit: %w", err)
	}

	s.collector.Wait()
	s.retry.Stop()

	s.mu.Lock()
	books := make([]models.RawBook, len(s.books))
	copy(books, s.books)
	s.mu.Unlock()
	sort.Slice(books, func(i, j int) bool { return books[i].ProductPage < books[j].ProductPage })

	return &models.ScrapeResult{
		Books:        books,
		StartTime:    start,
		EndTime:      time.Now(),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		FailedURLs:   s.snapshotFailedURLs(),
		ErrorsByType: s.snapshotErrors(),
		RetryCount:   s.retry.TotalRetries(),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		PageCount:    int(atomic.LoadInt64(&s.pageCount)),
	}, nil
}

func (s *Scraper) configureHandlers(ctx context.Context) {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest("started")
			if current%50 == 0 {
				zap.L().Debug("scraper request progress",
					zap.Int64("requests", current),
					zap.Int64("pages", atomic.LoadInt64(&s.pageCount)),
					zap.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if r.StatusCode >= http.StatusBadRequest {
				zap.L().Error("non-200 response",
					zap.Int("status", r.StatusCode),
					zap.String("url", r.Request.URL.String()),
				)
			}
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&s.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)

			s.mu.Lock()
			s.errorsByType[category]++
			s.mu.Unlock()

			failedURL := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				failedURL = r.Request.URL.String()
			}
			zap.L().Error("request error",
				zap.String("url", failedURL),
				zap.String("category", category),
				zap.Error(err),
			)
			s.Metrics.IncError(category)

			if !s.retry.Schedule(failedURL) {
				s.mu.Lock()
				s.failedURLs = append(s.failedURLs, failedURL)
				s.mu.Unlock()
			}
		})

		// Listing pages: follow each product link once.
		s.collector.OnHTML("article.product_pod h3 a", func(e *colly.HTMLElement) {
			href := e.Attr("href")
			if href == "" {
				return
			}
			abs := e.Request.AbsoluteURL(href)
			if found, _ := s.visited.ContainsOrAdd(abs, struct{}{}); found {
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.collector.Visit(abs)
		})

		// Detail pages: capture the full raw record.
		s.collector.OnHTML("body", func(e *colly.HTMLElement) {
			book := extractBook(e)
			if book == nil {
				return
			}
			// Incomplete captures are kept; the cleaning stage judges them.
			if err := parser.ValidateRaw(book); err != nil {
				zap.L().Warn("incomplete capture",
					zap.String("url", book.ProductPage),
					zap.Error(err),
				)
			}
			s.Metrics.IncItems()
			s.mu.Lock()
			s.books = append(s.books, *book)
			s.mu.Unlock()
		})

		s.collector.OnHTML("li.next a", func(e *colly.HTMLElement) {
			currentPage := atomic.AddInt64(&s.pageCount, 1)
			if currentPage >= int64(s.cfg.MaxPages) {
				return
			}
			if ctx.Err() != nil {
				return
			}
			link := e.Attr("href")
			abs := e.Request.AbsoluteURL(link)
			s.collector.Visit(abs)
		})
	})
}

// extractBook reads a product detail page. It returns nil on listing pages,
// which have no div.product_main.
func extractBook(e *colly.HTMLElement) *models.RawBook {
	title := strings.TrimSpace(e.ChildText("div.product_main h1"))
	if title == "" {
		return nil
	}

	priceText := strings.TrimSpace(e.ChildText("div.product_main p.price_color"))

	ratingClass := e.ChildAttr("div.product_main p.star-rating", "class")
	ratingText := ""
	if parts := strings.Fields(ratingClass); len(parts) > 1 {
		ratingText = parts[1]
	}

	// "In stock (22 available)" arrives with layout whitespace.
	availability := strings.Join(strings.Fields(e.ChildText("div.product_main p.instock.availability")), " ")
	if availability == "" {
		availability = strings.Join(strings.Fields(e.ChildText("div.product_main p.availability")), " ")
	}

	// Breadcrumb: Home / Books / <category> / <title>.
	category := strings.TrimSpace(e.ChildText("ul.breadcrumb li:nth-child(3) a"))

	image := e.Request.AbsoluteURL(e.ChildAttr("div#product_gallery img", "src"))
	if image == e.Request.URL.String() {
		image = ""
	}

	return &models.RawBook{
		Title:        title,
		Price:        priceText,
		Rating:       ratingText,
		Category:     category,
		Availability: availability,
		Stock:        availability,
		Image:        image,
		ProductPage:  e.Request.URL.String(),
	}
}

func (s *Scraper) snapshotFailedURLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedURLs))
	copy(out, s.failedURLs)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
