package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/internal/config"
	"golang.org/x/exp/slog"
)

func TestDefaults(t *testing.T) {
	c, err := config.Parse("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), c)

	level, err := c.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)

	require.Equal(t, gbm.DefaultResolver{}, c.Resolver())
	require.Equal(t, gbm.CreateOptions{}, c.CreateOptions())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbmtool.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "dumb"
device = "/dev/dri/card1"
log_level = "debug"
externally_synchronized = true
implementation_defined_fallback = "AB24"
dumb_quirks = ["Dumb32bpp"]
`), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.BackendDumb, c.Backend)
	require.Equal(t, "/dev/dri/card1", c.Device)

	level, err := c.Level()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)

	require.Equal(t, format.ABGR8888, c.Resolver().ImplementationDefinedFallback)
	require.Equal(t, gbm.DeviceCreateExternallySynchronized, c.CreateOptions().Flags)

	quirks, err := c.Quirks()
	require.NoError(t, err)
	require.Equal(t, format.QuirkDumb32bpp, quirks)
}

func TestInvalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		err  string
	}{
		{"unknown key", `backnd = "memfd"`, "unknown config keys: backnd"},
		{"unknown backend", `backend = "amdgpu"`, `unknown backend "amdgpu"`},
		{"missing device", "backend = \"vc4\"\ndevice = \"\"", "needs a device"},
		{"bad level", `log_level = "loud"`, "invalid log level"},
		{"fallback without layout", `implementation_defined_fallback = "9998"`, "has no layout"},
		{"bad quirk", `dumb_quirks = ["tiled"]`, "unknown dumb buffer quirk"},
		{"not toml", `backend = `, "failed to parse config"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := config.Parse(testCase.doc)
			require.ErrorContains(t, err, testCase.err)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
