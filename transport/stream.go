package transport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"mini-ipc/message"
)

// BasePath is the well-known directory stream-transport sockets live
// under (§4.3, §6).
const BasePath = "/tmp/.minipc"

// StreamServer binds a Unix-domain stream socket at BasePath/name and
// accepts clients into it.
type StreamServer struct {
	fd   int
	path string
}

// NewStreamServer creates BasePath (mode 0777, ignoring "already
// exists"), removes any stale socket file, binds, and listens with a
// backlog of 5 (§4.3).
func NewStreamServer(name string) (*StreamServer, error) {
	if err := os.MkdirAll(BasePath, 0o777); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("transport: mkdir %s: %w", BasePath, err)
	}
	path := BasePath + "/" + name

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}

	_ = unix.Unlink(path)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, 5); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	return &StreamServer{fd: fd, path: path}, nil
}

func (s *StreamServer) ListenFD() int { return s.fd }

func (s *StreamServer) SinglePeerConn() ClientConn { return nil }

// Accept completes one pending connection. The free-slot bookkeeping
// (MINIPC_MAX_CLIENTS, REFUSED on exhaustion) lives in the server
// package, which calls Accept only once it knows a slot is free.
func (s *StreamServer) Accept() (ClientConn, error) {
	nfd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return &streamConn{fd: nfd}, nil
}

func (s *StreamServer) Close() error {
	err := unix.Close(s.fd)
	_ = unix.Unlink(s.path)
	return err
}

// streamConn is one accepted client connection.
type streamConn struct {
	fd int
}

func (c *streamConn) FD() int { return c.fd }

// ReadRequest performs a single recv of up to a full request frame, the
// same "one read == one frame" assumption the original minipc-client.c
// and minipc-mem-server.c make: mini-ipc trades stream-framing
// robustness for simplicity, consistent with its Non-goal of reliable
// delivery under adverse conditions.
func (c *streamConn) ReadRequest() (message.Request, error) {
	req := message.NewRequest()
	n, err := unix.Read(c.fd, req.Bytes())
	if err != nil {
		return message.Request{}, err
	}
	if n == 0 {
		return message.Request{}, fmt.Errorf("transport: peer closed")
	}
	return req, nil
}

// ReplyBuffer returns a freshly owned reply frame for the dispatcher to
// fill in; the stream transport has nowhere to keep it in place.
func (c *streamConn) ReplyBuffer() message.Reply { return message.NewReply() }

func (c *streamConn) WriteReply(reply message.Reply) error {
	n := reply.WireLen()
	_, err := writeAllNoSignal(c.fd, reply.Bytes()[:n])
	return err
}

func (c *streamConn) Close() error { return unix.Close(c.fd) }

// StreamClient connects to an existing stream-transport socket.
type StreamClient struct {
	fd int
}

func NewStreamClient(name string) (*StreamClient, error) {
	path := BasePath + "/" + name

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", path, err)
	}
	return &StreamClient{fd: fd}, nil
}

func (c *StreamClient) FD() int { return c.fd }

func (c *StreamClient) WriteRequest(req message.Request, usedWords int) error {
	n := req.WireLen(usedWords)
	_, err := writeAllNoSignal(c.fd, req.Bytes()[:n])
	return err
}

func (c *StreamClient) ReadReply() (message.Reply, int, error) {
	rep := message.NewReply()
	n, err := unix.Read(c.fd, rep.Bytes())
	if err != nil {
		return message.Reply{}, 0, err
	}
	return rep, n, nil
}

func (c *StreamClient) Close() error { return unix.Close(c.fd) }

// writeAllNoSignal writes b fully. unix.Write to a socket whose peer has
// closed raises SIGPIPE like send(2) with no flags, but the Go runtime
// does not terminate the process for SIGPIPE on descriptors other than
// stdout and stderr: the write fails with EPIPE instead. That gives the
// same protection minipc-server.c gets from send(..., MSG_NOSIGNAL).
func writeAllNoSignal(fd int, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := unix.Write(fd, b[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("transport: short write")
		}
		total += n
	}
	return total, nil
}
