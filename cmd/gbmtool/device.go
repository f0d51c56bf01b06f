//go:build linux

package main

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/backends/dumb"
	"github.com/vkngwrapper/bufalloc/backends/memfd"
	"github.com/vkngwrapper/bufalloc/backends/vc4"
	"github.com/vkngwrapper/bufalloc/gbm"
	"github.com/vkngwrapper/bufalloc/internal/config"
	"golang.org/x/exp/slog"
)

func openBackend(logger *slog.Logger, c *config.Config) (gbm.Backend, error) {
	switch c.Backend {
	case config.BackendMemfd:
		return memfd.New(logger, memfd.Options{DefaultResolver: c.Resolver()}), nil
	case config.BackendDumb:
		quirks, err := c.Quirks()
		if err != nil {
			return nil, err
		}
		return dumb.Open(logger, c.Device, dumb.Options{DefaultResolver: c.Resolver(), Quirks: quirks})
	case config.BackendVC4:
		return vc4.Open(logger, c.Device, c.Resolver())
	}

	return nil, errors.Newf("unknown backend %q", c.Backend)
}

// openDevice loads the configuration and creates a device on the configured backend
func openDevice() (*gbm.Device, *slog.Logger, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(c)

	backend, err := openBackend(logger, c)
	if err != nil {
		return nil, nil, err
	}

	device, err := gbm.New(logger, backend, c.CreateOptions())
	if err != nil {
		return nil, nil, errors.CombineErrors(err, backend.Close())
	}

	return device, logger, nil
}
