//go:build linux

package drmutil

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/gbm"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// Node is an open DRM device node. It implements the parts of gbm.Backend that every GEM based
// driver shares, so driver backends embed it and supply allocation and mapping.
type Node struct {
	fd     int
	owned  bool
	logger *slog.Logger
}

// Open opens a DRM device node such as /dev/dri/card0 or /dev/dri/renderD128. The node is closed
// by Close.
func Open(logger *slog.Logger, path string) (*Node, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open DRM node %s", path)
	}

	node := NewNode(logger, fd)
	node.owned = true
	return node, nil
}

// NewNode wraps a DRM device file descriptor owned by the caller
func NewNode(logger *slog.Logger, fd int) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		fd:     fd,
		logger: logger,
	}
}

func (n *Node) FD() int              { return n.fd }
func (n *Node) Logger() *slog.Logger { return n.logger }

func (n *Node) Close() error {
	if !n.owned || n.fd < 0 {
		return nil
	}

	fd := n.fd
	n.fd = -1
	return unix.Close(fd)
}

// ImportPlane converts the dma-buf file descriptor of one plane into a GEM handle
func (n *Node) ImportPlane(meta *gbm.Metadata, plane int, fd int) (gbm.Handle, error) {
	handle, err := PrimeFDToHandle(n.fd, fd)
	if err != nil {
		n.logger.Error("failed to import plane", slog.Int("plane", plane), slog.Int("fd", fd), slog.Any("error", err))
		return 0, err
	}
	return gbm.Handle(handle), nil
}

func (n *Node) ExportHandle(handle gbm.Handle) (int, error) {
	return PrimeHandleToFD(n.fd, uint32(handle))
}

// GemDestroy closes every handle once, attempting all of them even if some fail
func (n *Node) GemDestroy(handles []gbm.Handle) error {
	var err error
	var closed []gbm.Handle

	for _, handle := range handles {
		if slices.Contains(closed, handle) {
			continue
		}
		closed = append(closed, handle)

		closeErr := GemCloseHandle(n.fd, uint32(handle))
		if closeErr != nil {
			n.logger.Error("failed to close GEM handle", slog.Int("handle", int(handle)), slog.Any("error", closeErr))
			err = errors.CombineErrors(err, closeErr)
		}
	}

	return err
}

// MapAt mmaps length bytes of the node at a fake offset returned by a driver's map ioctl
func (n *Node) MapAt(offset uint64, length int, flags gbm.MapFlags) ([]byte, error) {
	data, err := unix.Mmap(n.fd, int64(offset), length, Prot(flags), unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %d bytes at offset 0x%x", length, offset)
	}
	return data, nil
}

// Unmap releases a mapping created by MapAt
func (n *Node) Unmap(vma *gbm.VMA) error {
	if vma.Data == nil {
		return nil
	}
	return unix.Munmap(vma.Data)
}

// Prot converts map flags into mmap protection. Write access implies read access.
func Prot(flags gbm.MapFlags) int {
	if flags&gbm.MapWrite != 0 {
		return unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.PROT_READ
}

// PlaneSpan returns the number of bytes that the planes sharing a plane's handle cover
func PlaneSpan(bo *gbm.BufferObject, plane int) int {
	handle := bo.PlaneHandle(plane)

	length := 0
	for p := 0; p < bo.NumPlanes(); p++ {
		if bo.PlaneHandle(p) == handle {
			length += int(bo.PlaneSize(p))
		}
	}
	return length
}
