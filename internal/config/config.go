// Package config loads the settings gbmtool opens a device with
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"golang.org/x/exp/slog"
)

const (
	BackendMemfd = "memfd"
	BackendDumb  = "dumb"
	BackendVC4   = "vc4"
)

// Config is the TOML configuration of a device
type Config struct {
	// Backend names the backend to allocate with: memfd, dumb or vc4
	Backend string `toml:"backend"`
	// Device is the DRM node kernel backends open
	Device string `toml:"device"`
	// LogLevel is one of debug, info, warn or error
	LogLevel string `toml:"log_level"`
	// ExternallySynchronized drops the locking around the capability table
	ExternallySynchronized bool `toml:"externally_synchronized"`
	// ImplementationDefinedFallback is the fourcc flexible buffers resolve to outside camera usage
	ImplementationDefinedFallback string `toml:"implementation_defined_fallback"`
	// DumbQuirks lists the quirks of the dumb buffer ioctl; only "dumb32bpp" is known
	DumbQuirks []string `toml:"dumb_quirks"`
}

func Default() *Config {
	return &Config{
		Backend:  BackendMemfd,
		Device:   "/dev/dri/card0",
		LogLevel: "info",
	}
}

// Load reads a TOML file over the defaults. Keys the configuration does not know are an error.
func Load(path string) (*Config, error) {
	c := Default()

	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", path)
	}

	return c, c.check(meta)
}

// Parse reads a TOML document over the defaults
func Parse(doc string) (*Config, error) {
	c := Default()

	meta, err := toml.Decode(doc, c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}

	return c, c.check(meta)
}

func (c *Config) check(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return errors.Newf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemfd, BackendDumb, BackendVC4:
	default:
		return errors.Newf("unknown backend %q", c.Backend)
	}

	if c.Backend != BackendMemfd && c.Device == "" {
		return errors.Newf("backend %s needs a device", c.Backend)
	}

	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Fallback(); err != nil {
		return err
	}
	if _, err := c.Quirks(); err != nil {
		return err
	}

	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// Fallback returns the configured implementation defined fallback, or 0 to use the default
func (c *Config) Fallback() (format.FourCC, error) {
	if c.ImplementationDefinedFallback == "" {
		return 0, nil
	}

	f, err := format.ParseFourCC(c.ImplementationDefinedFallback)
	if err != nil {
		return 0, err
	}
	if format.NumPlanes(f) == 0 {
		return 0, errors.Newf("fallback format %s has no layout", f)
	}
	return f, nil
}

func (c *Config) Quirks() (format.Quirks, error) {
	quirks := format.QuirkNone
	for _, name := range c.DumbQuirks {
		switch strings.ToLower(name) {
		case "dumb32bpp":
			quirks |= format.QuirkDumb32bpp
		default:
			return format.QuirkNone, errors.Newf("unknown dumb buffer quirk %q", name)
		}
	}
	return quirks, nil
}

// Resolver returns the format resolution backends are built with
func (c *Config) Resolver() gbm.DefaultResolver {
	fallback, _ := c.Fallback()
	return gbm.DefaultResolver{ImplementationDefinedFallback: fallback}
}

func (c *Config) CreateOptions() gbm.CreateOptions {
	var options gbm.CreateOptions
	if c.ExternallySynchronized {
		options.Flags |= gbm.DeviceCreateExternallySynchronized
	}
	return options
}
