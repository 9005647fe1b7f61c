// internal/browser/allocator.go
package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/tistorylab/autopub/internal/config"
)

// DefaultAllocatorOptions builds the exec allocator options for a local
// Chrome. The editor rejects automated browsers, so the automation banner
// flags are stripped and a desktop window size is forced.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened container hosts.
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	width, height := 1920, 1080
	if w, ok := cfg.Viewport["width"]; ok && w > 0 {
		width = w
	}
	if h, ok := cfg.Viewport["height"]; ok && h > 0 {
		height = h
	}
	opts = append(opts, chromedp.WindowSize(width, height))

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(arg, "=")
		key = strings.TrimPrefix(key, "--")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}

	return opts
}
