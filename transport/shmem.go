package transport

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"mini-ipc/errs"
	"mini-ipc/message"
)

// DefaultPollInterval is the default interval a memory-transport poller
// samples its watched counter at (§4.4).
const DefaultPollInterval = 10 * time.Millisecond

var pollInterval atomic.Int64 // nanoseconds

func init() { pollInterval.Store(int64(DefaultPollInterval)) }

// SetPollInterval adjusts the memory-transport polling period
// process-wide (§6's set_poll_interval). An interval <= 0 is INVALID.
func SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return errs.New(errs.Invalid, "set_poll_interval", "poll interval must be positive")
	}
	pollInterval.Store(int64(d))
	return nil
}

// PollInterval returns the current memory-transport polling period.
func PollInterval() time.Duration { return time.Duration(pollInterval.Load()) }

// memKind distinguishes the two memory-transport name syntaxes of §4.4/§6.
type memKind int

const (
	memSysV memKind = iota
	memDev
)

// parseMemName recognizes "shm:<key>" (decimal or hex) and "mem:<hex>".
func parseMemName(name string) (kind memKind, key int64, ok bool) {
	if rest, found := strings.CutPrefix(name, "shm:"); found {
		v, err := strconv.ParseInt(rest, 0, 64)
		if err != nil {
			return 0, 0, false
		}
		return memSysV, v, true
	}
	if rest, found := strings.CutPrefix(name, "mem:"); found {
		v, err := strconv.ParseInt(rest, 16, 64)
		if err != nil {
			return 0, 0, false
		}
		return memDev, v, true
	}
	return 0, 0, false
}

// IsMemName reports whether name selects a memory transport rather than a
// stream-socket one (§6 name syntax).
func IsMemName(name string) bool {
	_, _, ok := parseMemName(name)
	return ok
}

// regionSize rounds n up to a whole number of pages, "one page above
// sizeof(shared-memory-layout)" per §4.4.
func regionSize(n int) int {
	pagesize := os.Getpagesize()
	return ((n + pagesize - 1) / pagesize) * pagesize
}

// mapMemory attaches (shm:) or maps (mem:) the region for name.
func mapMemory(name string) (region []byte, detach func() error, err error) {
	kind, key, ok := parseMemName(name)
	if !ok {
		return nil, nil, fmt.Errorf("transport: %q is not a memory-transport name", name)
	}
	size := regionSize(message.SharedMemSize)

	switch kind {
	case memSysV:
		id, err := unix.SysvShmGet(int(key), size, unix.IPC_CREAT|0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: shmget: %w", err)
		}
		data, err := unix.SysvShmAttach(id, 0, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: shmat: %w", err)
		}
		return data, func() error { return unix.SysvShmDetach(data) }, nil

	case memDev:
		f, err := os.OpenFile("/dev/mem", os.O_RDWR|unix.O_SYNC, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: open /dev/mem: %w", err)
		}
		defer f.Close()
		addr, err := unix.Mmap(int(f.Fd()), key, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: mmap /dev/mem: %w", err)
		}
		return addr, func() error { return unix.Munmap(addr) }, nil
	}
	panic("unreachable")
}

// poller watches a 32-bit sequence counter and writes one byte to a pipe
// each time it changes, giving both transports a single readable
// descriptor a select/poll loop can wait on (§4.4, §9).
//
// The original C library forks a child process for this; a goroutine is
// the idiomatic Go equivalent the design notes call out explicitly (§9):
// it dies with the owning process exactly as the forked child's
// parent-death check would make it do, with no extra bookkeeping needed.
type poller struct {
	stop chan struct{}
	done chan struct{}
}

func startPoller(watch func() uint32, wake func() error) *poller {
	p := &poller{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		prev := watch()
		for {
			select {
			case <-p.stop:
				return
			case <-time.After(PollInterval()):
			}
			if cur := watch(); cur != prev {
				prev = cur
				if wake() != nil {
					return
				}
			}
		}
	}()
	return p
}

func (p *poller) Close() {
	close(p.stop)
	<-p.done
}

// ShmemServer is the server side of a memory transport: a single
// already-connected peer, per I5 (one poller, one channel lifetime).
type ShmemServer struct {
	shm    message.SharedMemory
	detach func() error
	pipeR  *os.File
	pipeW  *os.File
	poller *poller
	conn   *shmemConn
}

func NewShmemServer(name string) (*ShmemServer, error) {
	region, detach, err := mapMemory(name)
	if err != nil {
		return nil, err
	}
	shm := message.NewSharedMemory(region)
	shm.Zero()

	r, w, err := os.Pipe()
	if err != nil {
		detach()
		return nil, fmt.Errorf("transport: pipe: %w", err)
	}

	s := &ShmemServer{shm: shm, detach: detach, pipeR: r, pipeW: w}
	s.poller = startPoller(shm.NRequest, s.wake)
	s.conn = &shmemConn{fd: int(r.Fd()), shm: shm, pipeR: r}
	return s, nil
}

func (s *ShmemServer) wake() error {
	_, err := s.pipeW.Write([]byte{0})
	return err
}

func (s *ShmemServer) ListenFD() int { return -1 }

func (s *ShmemServer) Accept() (ClientConn, error) {
	return nil, fmt.Errorf("transport: memory transports have no accept step")
}

func (s *ShmemServer) SinglePeerConn() ClientConn { return s.conn }

func (s *ShmemServer) Close() error {
	s.poller.Close()
	s.pipeW.Close()
	s.pipeR.Close()
	return s.detach()
}

// shmemConn adapts the shared-memory region to the ClientConn contract:
// reading a request means draining one signal byte and reading the
// region in place; writing a reply means writing in place and bumping
// nreply (§4.6).
type shmemConn struct {
	fd    int
	shm   message.SharedMemory
	pipeR *os.File
}

func (c *shmemConn) FD() int { return c.fd }

func (c *shmemConn) ReadRequest() (message.Request, error) {
	var b [1]byte
	if _, err := c.pipeR.Read(b[:]); err != nil {
		return message.Request{}, err
	}
	return c.shm.Request(), nil
}

// ReplyBuffer returns the in-place shared-memory reply view: the
// dispatcher writes the reply directly into the region.
func (c *shmemConn) ReplyBuffer() message.Reply { return c.shm.Reply() }

func (c *shmemConn) WriteReply(reply message.Reply) error {
	// reply is already the in-place view returned alongside the request;
	// nothing left to copy. Bump the counter so the poller observes it.
	c.shm.BumpNReply()
	return nil
}

func (c *shmemConn) Close() error { return nil }

// ShmemClient is the client side of a memory transport.
type ShmemClient struct {
	shm    message.SharedMemory
	detach func() error
	pipeR  *os.File
	pipeW  *os.File
	poller *poller
}

func NewShmemClient(name string) (*ShmemClient, error) {
	region, detach, err := mapMemory(name)
	if err != nil {
		return nil, err
	}
	shm := message.NewSharedMemory(region)

	r, w, err := os.Pipe()
	if err != nil {
		detach()
		return nil, fmt.Errorf("transport: pipe: %w", err)
	}

	c := &ShmemClient{shm: shm, detach: detach, pipeR: r, pipeW: w}
	c.poller = startPoller(shm.NReply, c.wake)
	return c, nil
}

func (c *ShmemClient) wake() error {
	_, err := c.pipeW.Write([]byte{0})
	return err
}

func (c *ShmemClient) FD() int { return int(c.pipeR.Fd()) }

func (c *ShmemClient) WriteRequest(req message.Request, usedWords int) error {
	dst := c.shm.Request()
	copy(dst.Bytes(), req.Bytes())
	c.shm.BumpNRequest()
	return nil
}

func (c *ShmemClient) ReadReply() (message.Reply, int, error) {
	var b [1]byte
	if _, err := c.pipeR.Read(b[:]); err != nil {
		return message.Reply{}, 0, err
	}
	rep := c.shm.Reply()
	return rep, rep.WireLen(), nil
}

func (c *ShmemClient) Close() error {
	c.poller.Close()
	c.pipeW.Close()
	c.pipeR.Close()
	return c.detach()
}
