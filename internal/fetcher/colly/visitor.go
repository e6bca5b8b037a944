// Package collyfetcher renders candidate websites over plain HTTP using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/leadgen-pipeline/internal/extract"
	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// waiter paces requests per host.
type waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Visitor implements lead.Visitor without a browser. Script-rendered sites
// come back with whatever the server sends before hydration.
type Visitor struct {
	cfg           Config
	limiter       waiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Visitor. limiter may be nil.
func New(cfg Config, limiter waiter) *Visitor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Visitor{
		cfg:           cfg,
		limiter:       limiter,
		baseCollector: c,
	}
}

// Visit fetches rawURL and returns its markup and visible text.
func (v *Visitor) Visit(ctx context.Context, rawURL string) (lead.Page, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx, rawURL); err != nil {
			return lead.Page{}, err
		}
	}
	var (
		page     lead.Page
		fetchErr error
	)
	collector := v.buildCollector()
	configureCollectorHooks(collector, &page, &fetchErr)

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return lead.Page{}, err
	}
	if page.HTML == "" {
		return lead.Page{}, fmt.Errorf("visit %q: empty response body", rawURL)
	}
	text, err := extract.VisibleText(page.HTML)
	if err != nil {
		return lead.Page{}, fmt.Errorf("visit %q: %w", rawURL, err)
	}
	page.Text = text
	return page, nil
}

func (v *Visitor) buildCollector() *colly.Collector {
	collector := v.baseCollector.Clone()
	if v.cfg.UserAgent != "" {
		collector.UserAgent = v.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !v.cfg.RespectRobots
	collector.SetRequestTimeout(v.cfg.Timeout)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, page *lead.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "html") {
			*fetchErr = fmt.Errorf("unexpected content type %q", contentType)
			return
		}
		*page = lead.Page{
			URL:  r.Request.URL.String(),
			HTML: string(r.Body),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}
