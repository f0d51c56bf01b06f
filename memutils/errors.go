package memutils

import "github.com/pkg/errors"

var (
	// ErrPowerOfTwo is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	ErrPowerOfTwo error = errors.New("number must be a power of two")
	// ErrUnsupportedFormat is returned when a pixel format has no planar layout, or a backend cannot produce it
	ErrUnsupportedFormat error = errors.New("unsupported format")
	// ErrUnsupportedCombination is returned when no registered combination covers a requested format and usage
	ErrUnsupportedCombination error = errors.New("unsupported combination")
	// ErrAllocationFailed marks errors returned by a backend while allocating a buffer. The backend's
	// own error remains in the chain.
	ErrAllocationFailed error = errors.New("buffer allocation failed")
	// ErrImportFailed marks errors returned while importing a buffer from file descriptors
	ErrImportFailed error = errors.New("buffer import failed")
	// ErrMapFailed marks errors returned by a backend while mapping a buffer plane
	ErrMapFailed error = errors.New("buffer mapping failed")
	// ErrLeakedBuffers is returned from device teardown when handles are still referenced
	ErrLeakedBuffers error = errors.New("buffers were still alive at device teardown")
)
