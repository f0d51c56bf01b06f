package share

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
	"golang.org/x/sys/unix"
)

const (
	headerSize = 4
	// MaxDocumentSize bounds the descriptor a peer may announce
	MaxDocumentSize = 1 << 16
)

// Send writes the descriptor of data to conn and passes its plane file descriptors with
// SCM_RIGHTS. The file descriptors remain owned by the caller.
func Send(conn *net.UnixConn, data gbm.ImportData) error {
	doc, err := Encode(data)
	if err != nil {
		return err
	}

	message := make([]byte, headerSize+len(doc))
	binary.LittleEndian.PutUint32(message, uint32(len(doc)))
	copy(message[headerSize:], doc)

	rights := unix.UnixRights(data.FDs[:NumPlanes(&data)]...)

	n, _, err := conn.WriteMsgUnix(message, rights, nil)
	if err != nil {
		return errors.Wrap(err, "failed to send buffer descriptor")
	}

	// The rights travelled with the first byte; the rest of a short write goes without them
	if n < len(message) {
		_, err = conn.Write(message[n:])
		if err != nil {
			return errors.Wrap(err, "failed to send buffer descriptor")
		}
	}

	return nil
}

// Receive reads a buffer sent with Send. The caller owns the file descriptors of the returned
// data and must close them once the buffer is imported.
func Receive(conn *net.UnixConn) (gbm.ImportData, error) {
	header := make([]byte, headerSize)
	oob := make([]byte, unix.CmsgSpace(format.MaxPlanes*4))

	n, oobn, flags, _, err := conn.ReadMsgUnix(header, oob)
	if err != nil {
		return gbm.ImportData{}, errors.Wrap(err, "failed to receive buffer descriptor")
	}

	fds, err := parseRights(oob[:oobn])
	if err != nil {
		return gbm.ImportData{}, err
	}

	data, err := receiveDocument(conn, header, n, fds)
	if err == nil && flags&unix.MSG_CTRUNC != 0 {
		err = errors.New("file descriptors were truncated")
	}
	if err != nil {
		closeAll(fds)
		return gbm.ImportData{}, err
	}

	return data, nil
}

func receiveDocument(conn *net.UnixConn, header []byte, n int, fds []int) (gbm.ImportData, error) {
	if n == 0 {
		return gbm.ImportData{}, errors.Wrap(io.EOF, "connection closed before a buffer descriptor arrived")
	}

	if n < headerSize {
		_, err := io.ReadFull(conn, header[n:])
		if err != nil {
			return gbm.ImportData{}, errors.Wrap(err, "failed to read buffer descriptor header")
		}
	}

	length := binary.LittleEndian.Uint32(header)
	if length > MaxDocumentSize {
		return gbm.ImportData{}, errors.Newf("buffer descriptor of %d bytes exceeds %d", length, MaxDocumentSize)
	}

	doc := make([]byte, length)
	_, err := io.ReadFull(conn, doc)
	if err != nil {
		return gbm.ImportData{}, errors.Wrap(err, "failed to read buffer descriptor")
	}

	data, numPlanes, err := Decode(doc)
	if err != nil {
		return gbm.ImportData{}, err
	}

	if len(fds) != numPlanes {
		return gbm.ImportData{}, errors.Newf("buffer descriptor has %d planes but %d file descriptors arrived", numPlanes, len(fds))
	}

	copy(data.FDs[:], fds)
	return data, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}

	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse control message")
	}

	var fds []int
	for i := range messages {
		if messages[i].Header.Level != unix.SOL_SOCKET || messages[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}

		rights, err := unix.ParseUnixRights(&messages[i])
		if err != nil {
			closeAll(fds)
			return nil, errors.Wrap(err, "failed to parse unix rights")
		}
		fds = append(fds, rights...)
	}

	return fds, nil
}

func closeAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}
