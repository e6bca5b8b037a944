// Package headless drives a Chrome browser through chromedp to harvest search
// listings and render candidate websites.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Mode selects how the browser process is provisioned.
type Mode string

// Runtime modes.
const (
	ModeLocal  Mode = "local"
	ModeHosted Mode = "hosted"
)

// Profile is the explicit runtime description handed to the launcher.
// Nothing in this package reads the environment to decide how to launch.
type Profile struct {
	Mode Mode
	// ExecPath is the browser binary for local runs.
	ExecPath string
	// RemoteURL, when set in hosted mode, attaches to an existing DevTools endpoint.
	RemoteURL string
	Headless  bool
	// SlowMo is slept before every browser action.
	SlowMo time.Duration
	// NavTimeout bounds the search navigation; zero means unbounded.
	NavTimeout time.Duration
	UserAgent  string
}

// LocalProfile launches a visible browser from an explicit executable with a
// slow-motion delay and no navigation bound.
func LocalProfile(execPath string, slowMo time.Duration, userAgent string) Profile {
	return Profile{
		Mode:      ModeLocal,
		ExecPath:  execPath,
		Headless:  false,
		SlowMo:    slowMo,
		UserAgent: userAgent,
	}
}

// HostedProfile launches (or attaches to) a sandbox-hardened headless browser
// with a bounded navigation timeout.
func HostedProfile(remoteURL string, navTimeout time.Duration, userAgent string) Profile {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return Profile{
		Mode:       ModeHosted,
		RemoteURL:  remoteURL,
		Headless:   true,
		NavTimeout: navTimeout,
		UserAgent:  userAgent,
	}
}

// Validate checks the profile is internally consistent.
func (p Profile) Validate() error {
	switch p.Mode {
	case ModeLocal:
		if p.ExecPath == "" {
			return fmt.Errorf("local profile requires an executable path")
		}
	case ModeHosted:
	default:
		return fmt.Errorf("unknown browser mode %q", p.Mode)
	}
	if p.SlowMo < 0 || p.NavTimeout < 0 {
		return fmt.Errorf("profile durations must be >= 0")
	}
	return nil
}

func (p Profile) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1366, 900),
	)
	if p.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.UserAgent))
	}
	if p.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.ExecPath))
	}
	if p.Headless {
		opts = append(opts,
			chromedp.Flag("headless", "new"),
			chromedp.Flag("hide-scrollbars", true),
		)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if p.Mode == ModeHosted {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// allocator returns the context that owns the browser process.
func (p Profile) allocator(parent context.Context) (context.Context, context.CancelFunc) {
	if p.Mode == ModeHosted && p.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(parent, p.RemoteURL)
	}
	return chromedp.NewExecAllocator(parent, p.allocatorOptions()...)
}
