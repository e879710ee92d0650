package browser

import (
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/hexhaunt/promptq-cli/internal/config"
)

// DefaultAllocatorOptions translates browser configuration into chromedp
// allocator options. The instance carries the operator's own profile, so the
// defaults keep it usable for an interactive login: visible window unless
// headless is requested, and no flags that advertise automation.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// chromedp defaults to a headless, muted browser; follow the config
		// instead. False-valued flags are omitted from the command line.
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("hide-scrollbars", cfg.Headless),
		chromedp.Flag("mute-audio", cfg.Headless),
		// Keep navigator.webdriver and the automation infobar out of sight.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.DisableGPU)
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	if dir := expandUserDataDir(cfg.UserDataDir); dir != "" {
		opts = append(opts, chromedp.UserDataDir(dir))
	}

	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	// Pass through any extra flags from the config file.
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}

	// Containerized Linux environments need the sandbox relaxed.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}

	return opts
}

// splitArg parses one extra command-line flag from the config into the name
// and value chromedp.Flag expects. Bare flags become boolean switches.
func splitArg(raw string) (string, any) {
	parts := strings.SplitN(raw, "=", 2)
	name := strings.TrimPrefix(parts[0], "--")
	if name == "" {
		return "", nil
	}
	if len(parts) == 2 {
		return name, parts[1]
	}
	return name, true
}

// expandUserDataDir resolves a leading ~ in the configured profile directory.
// An unexpandable path is returned verbatim and left for Chrome to reject.
func expandUserDataDir(path string) string {
	if path == "" {
		return ""
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
