package headless

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

// Config controls the chromedp launcher.
type Config struct {
	Profile Profile
	// SearchURL is a format string with a single %s for the escaped query.
	SearchURL   string
	SettleDelay time.Duration
	MaxStalls   int
}

// Launcher starts chromedp-backed page sessions.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher validates cfg and returns a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) (*Launcher, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if !strings.Contains(cfg.SearchURL, "%s") {
		return nil, fmt.Errorf("search url must contain a %%s placeholder")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 1500 * time.Millisecond
	}
	if cfg.MaxStalls <= 0 {
		cfg.MaxStalls = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}, nil
}

// Launch starts a browser and opens one tab. The caller must Close the session.
func (l *Launcher) Launch(ctx context.Context) (lead.PageSession, error) {
	allocCtx, allocCancel := l.cfg.Profile.allocator(ctx)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := l.cfg.Profile.UserAgent; ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
	if err := chromedp.Run(tabCtx, setup); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.logger.Debug("browser session started", zap.String("mode", string(l.cfg.Profile.Mode)))
	return &Session{
		cfg:         l.cfg,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      l.logger,
	}, nil
}

// Session is one live browser tab shared by harvest and deep visits.
type Session struct {
	cfg         Config
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// Search loads the results surface for query and scrolls until limit unique
// listings are collected or the feed stops growing.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]lead.Listing, error) {
	target := searchURLFor(s.cfg.SearchURL, query)

	navCtx, cancel := s.opContext(ctx, s.cfg.Profile.NavTimeout)
	err := chromedp.Run(navCtx,
		s.slowMo(),
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("navigate search %q: %w", target, err)
	}

	loopCtx, cancel := s.opContext(ctx, 0)
	defer cancel()
	driver := &chromeDriver{session: s}
	listings, err := collectListings(loopCtx, driver, scrollConfig{
		Limit:     limit,
		MaxStalls: s.cfg.MaxStalls,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// Visit renders url in the session tab. The caller bounds it with ctx.
func (s *Session) Visit(ctx context.Context, rawURL string) (lead.Page, error) {
	opCtx, cancel := s.opContext(ctx, 0)
	defer cancel()

	var (
		html     string
		text     string
		finalURL string
	)
	err := chromedp.Run(opCtx,
		s.slowMo(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)
	if err != nil {
		return lead.Page{}, fmt.Errorf("visit %q: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	return lead.Page{URL: finalURL, HTML: html, Text: text}, nil
}

// Close shuts the tab and the browser process.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if err != nil && s.tabCtx.Err() == nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// opContext derives a context from the tab so chromedp can find the browser,
// cancelled when the caller's ctx ends or timeout elapses.
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(s.tabCtx)
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		opCtx, timeoutCancel = context.WithTimeout(opCtx, timeout)
		inner := cancel
		cancel = func() {
			timeoutCancel()
			inner()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) slowMo() chromedp.Action {
	if s.cfg.Profile.SlowMo <= 0 {
		return chromedp.ActionFunc(func(context.Context) error { return nil })
	}
	return chromedp.Sleep(s.cfg.Profile.SlowMo)
}

func searchURLFor(format, query string) string {
	return fmt.Sprintf(format, url.QueryEscape(strings.TrimSpace(query)))
}

const (
	scrollJS = `(() => {
		const el = document.querySelector('div[role="feed"]') || document.scrollingElement || document.body;
		el.scrollTo(0, el.scrollHeight);
		return true;
	})()`
	heightJS = `(() => {
		const el = document.querySelector('div[role="feed"]') || document.scrollingElement || document.body;
		return el.scrollHeight;
	})()`
	loadMoreJS = `(() => {
		const re = /(load|show|see|view)\s+more|more results/i;
		const nodes = Array.from(document.querySelectorAll('button, a[role="button"], [role="button"]'));
		const btn = nodes.find(n => re.test(n.innerText || n.getAttribute('aria-label') || '') && n.offsetParent !== null);
		if (!btn) { return false; }
		btn.click();
		return true;
	})()`
)

// chromeDriver implements pageDriver on a live session tab.
type chromeDriver struct {
	session *Session
}

func (d *chromeDriver) ResultsHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("body", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read results html: %w", err)
	}
	return html, nil
}

func (d *chromeDriver) ScrollToBottom(ctx context.Context) error {
	var ok bool
	if err := chromedp.Run(ctx, d.session.slowMo(), chromedp.Evaluate(scrollJS, &ok)); err != nil {
		return fmt.Errorf("scroll results: %w", err)
	}
	return nil
}

func (d *chromeDriver) Height(ctx context.Context) (int64, error) {
	var h int64
	if err := chromedp.Run(ctx, chromedp.Evaluate(heightJS, &h)); err != nil {
		return 0, fmt.Errorf("measure results: %w", err)
	}
	return h, nil
}

func (d *chromeDriver) ClickLoadMore(ctx context.Context) (bool, error) {
	var clicked bool
	if err := chromedp.Run(ctx, d.session.slowMo(), chromedp.Evaluate(loadMoreJS, &clicked)); err != nil {
		return false, fmt.Errorf("click load more: %w", err)
	}
	return clicked, nil
}

func (d *chromeDriver) Settle(ctx context.Context) error {
	return sleepCtx(ctx, d.session.cfg.SettleDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle canceled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
