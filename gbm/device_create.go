package gbm

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/internal/registry"
	"github.com/vkngwrapper/bufalloc/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific device behaviors to activate or deactivate
type CreateFlags int32

var deviceCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	deviceCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return deviceCreateFlagsMapping.FlagsToString(f)
}

const (
	// DeviceCreateExternallySynchronized ensures that this device and all buffer objects created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// thread at a time or are synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used.
	DeviceCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	DeviceCreateExternallySynchronized.Register("DeviceCreateExternallySynchronized")
}

// CreateOptions contains optional settings when creating a device
type CreateOptions struct {
	// Flags indicates specific device behaviors to activate or deactivate
	Flags CreateFlags
}

// New creates a new Device on top of a backend. The backend's Init is called to fill in the
// device's capability table.
//
// logger - Receives trace output at debug level and failures at warn and error level
//
// backend - Performs the physical allocation, import, and mapping operations
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, backend Backend, options CreateOptions) (*Device, error) {
	if backend == nil {
		return nil, errors.New("gbm.New requires a backend")
	}

	useMutex := options.Flags&DeviceCreateExternallySynchronized == 0

	device := &Device{
		logger:      logger,
		backend:     backend,
		createFlags: options.Flags,
		table:       caps.NewTable(useMutex),
		registryMutex: utils.OptionalMutex{
			UseMutex: useMutex,
		},
		refCounts: registry.NewRefCounts[Handle](),
		mappings:  registry.NewMappings[vmaKey, *VMA](),
	}

	if device.logger == nil {
		device.logger = slog.Default()
	}

	err := backend.Init(device.table)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize backend %s", backend.Name())
	}

	device.logger.Debug("Device::New", slog.String("backend", backend.Name()), slog.Int("combinations", device.table.Len()), slog.String("flags", options.Flags.String()))

	return device, nil
}
