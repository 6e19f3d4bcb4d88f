package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ScraperConfig configures a crawl for PDF links.
type ScraperConfig struct {
	BaseURL        string
	MaxDepth       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	Timeout        time.Duration
	OnProgress     func(url string)
}

// Scraper walks HTML pages on one host and collects the PDF documents they
// link to.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
}

// pageExtensions lists the extensions of pages the crawler follows; a path
// without an extension (including "/") is followed too.
var pageExtensions = []string{"", ".html", ".htm"}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func isPDF(u *url.URL) bool {
	return strings.EqualFold(path.Ext(u.Path), ".pdf")
}

func (s *Scraper) sameHost(u *url.URL) bool {
	return u.Host == s.baseHost
}

func (s *Scraper) ignored(urlStr string) bool {
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return true
		}
	}
	return false
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if !s.sameHost(parsedURL) {
		return false
	}

	// Check extensions
	ext := strings.ToLower(path.Ext(parsedURL.Path))
	validExt := false
	for _, allowedExt := range pageExtensions {
		if ext == allowedExt {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	return !s.ignored(urlStr)
}

// FindPDFLinks crawls from the base URL and returns the sorted, de-duplicated
// PDF URLs found on the same host. Pages that fail below the start page are
// logged and skipped.
func (s *Scraper) FindPDFLinks(ctx context.Context) ([]string, error) {
	start, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return nil, err
	}
	if isPDF(start) {
		return []string{start.String()}, nil
	}

	found := make(map[string]bool)
	if err := s.crawl(ctx, start.String(), 0, found); err != nil {
		return nil, err
	}

	links := make([]string, 0, len(found))
	for link := range found {
		links = append(links, link)
	}
	sort.Strings(links)
	return links, nil
}

func (s *Scraper) crawl(ctx context.Context, urlStr string, depth int, found map[string]bool) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}

	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, err := s.fetchPage(ctx, urlStr)
	if err != nil {
		return err
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	var next []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			log.Printf("Error parsing URL: %v", err)
			return
		}

		// Make sure the URL is absolute
		link = base.ResolveReference(link)
		link.Fragment = ""

		if isPDF(link) {
			if s.sameHost(link) && !s.ignored(link.String()) {
				found[link.String()] = true
			}
			return
		}
		next = append(next, link.String())
	})

	for _, link := range next {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.crawl(ctx, link, depth+1, found); err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Printf("Error scraping URL: %v", err)
		}
	}

	return nil
}

func (s *Scraper) get(ctx context.Context, urlStr string) (*http.Response, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	return resp, nil
}

func (s *Scraper) fetchPage(ctx context.Context, urlStr string) (*goquery.Document, error) {
	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return goquery.NewDocumentFromReader(resp.Body)
}

// Download stores each PDF URL in destDir and returns the written paths in
// the order of urls. Files with clashing names get a numeric suffix. The
// first failed download aborts.
func (s *Scraper) Download(ctx context.Context, urls []string, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	used := make(map[string]int)
	paths := make([]string, 0, len(urls))
	for _, u := range urls {
		if s.config.OnProgress != nil {
			s.config.OnProgress(u)
		}

		name, err := fileName(u)
		if err != nil {
			return paths, err
		}
		used[name]++
		if n := used[name]; n > 1 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
		}

		dest := filepath.Join(destDir, name)
		if err := s.downloadFile(ctx, u, dest); err != nil {
			return paths, fmt.Errorf("failed to download %s: %w", u, err)
		}
		paths = append(paths, dest)
	}

	return paths, nil
}

func fileName(urlStr string) (string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("no file name in URL: %s", urlStr)
	}
	return name, nil
}

func (s *Scraper) downloadFile(ctx context.Context, urlStr, dest string) error {
	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}
