package browser

import (
	"path/filepath"
	"strings"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexhaunt/promptq-cli/internal/config"
)

// Allocator options are opaque closures, so the tests pin down the
// conditional logic through option counts and the pure helpers.
func TestDefaultAllocatorOptions(t *testing.T) {
	base := DefaultAllocatorOptions(config.BrowserConfig{})

	t.Run("HeadlessAddsGPUFlag", func(t *testing.T) {
		headless := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		assert.Len(t, headless, len(base)+1)
	})

	t.Run("ExecPath", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"})
		assert.Len(t, opts, len(base)+1)
	})

	t.Run("WindowSizeRequiresBothDimensions", func(t *testing.T) {
		both := DefaultAllocatorOptions(config.BrowserConfig{WindowWidth: 1440, WindowHeight: 960})
		assert.Len(t, both, len(base)+1)

		widthOnly := DefaultAllocatorOptions(config.BrowserConfig{WindowWidth: 1440})
		assert.Len(t, widthOnly, len(base))
	})

	t.Run("ExtraArgs", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{
			Args: []string{"--lang=en-US", "--disable-sync", "--"},
		})
		// The bare "--" carries no flag name and is dropped.
		assert.Len(t, opts, len(base)+2)
	})
}

func TestSplitArg(t *testing.T) {
	tests := []struct {
		raw   string
		name  string
		value any
	}{
		{"--disable-sync", "disable-sync", true},
		{"--lang=en-US", "lang", "en-US"},
		{"proxy-server=socks5://127.0.0.1:9050", "proxy-server", "socks5://127.0.0.1:9050"},
		{"--force-color-profile=srgb=extra", "force-color-profile", "srgb=extra"},
		{"--", "", nil},
		{"", "", nil},
	}
	for _, tc := range tests {
		name, value := splitArg(tc.raw)
		assert.Equal(t, tc.name, name, "raw=%q", tc.raw)
		assert.Equal(t, tc.value, value, "raw=%q", tc.raw)
	}
}

func TestExpandUserDataDir(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	assert.Equal(t, "", expandUserDataDir(""))
	assert.Equal(t, "/var/lib/promptq", expandUserDataDir("/var/lib/promptq"))

	expanded := expandUserDataDir("~/.promptq/chrome")
	assert.False(t, strings.HasPrefix(expanded, "~"),
		"home directory must be resolved before Chrome sees the path")
	assert.Equal(t, filepath.Join(home, ".promptq", "chrome"), expanded)
}
