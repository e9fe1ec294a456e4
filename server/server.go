// Package server implements the single-threaded, cooperative dispatch
// loop a mini-ipc server channel drives: accept new clients, read one
// pending request per ready client, look up the exported procedure, run
// it, and write back exactly one reply (§4.6, §5).
//
// Unlike a conventional RPC server, there is no worker pool and no
// goroutine per connection: a mini-ipc server is meant to be driven from
// one cooperative loop the caller already owns (a control-system main
// loop, typically), so Action only ever does the work strictly needed to
// answer what's ready right now and returns.
package server

import (
	"encoding/binary"
	"errors"
	"syscall"

	"mini-ipc/channel"
	"mini-ipc/errs"
	"mini-ipc/message"
	"mini-ipc/transport"
	"mini-ipc/wire"
)

// Server wraps a server-side Channel with the client-slot bookkeeping
// the original library keeps inline in struct mpc_link (link->fd[],
// link->fdset): a bounded set of connected clients and the file
// descriptor each is waiting to be polled on.
type Server struct {
	ch    *channel.Channel
	conns map[int]transport.ClientConn // fd -> client, len <= wire.MaxClients
}

// New wraps ch, which must have been created with channel.CreateServer.
// For a memory-transport channel, the implicit single peer is connected
// immediately, matching the fact that memory transports have no accept
// step (§4.4).
func New(ch *channel.Channel) (*Server, error) {
	if ch.Role() != channel.RoleServer {
		return nil, errs.New(errs.Invalid, "server.New", "channel is not a server channel")
	}
	s := &Server{ch: ch, conns: make(map[int]transport.ClientConn)}
	if peer := ch.Server().SinglePeerConn(); peer != nil {
		s.conns[peer.FD()] = peer
	}
	return s, nil
}

// GetReadySet returns the descriptors Action would currently poll: every
// connected client plus, for stream channels, the listening socket. It
// mirrors minipc_server_get_fdset for callers that want to drive their
// own select/poll loop instead of calling Action (§6).
func (s *Server) GetReadySet() []int {
	fds := make([]int, 0, len(s.conns)+1)
	for fd := range s.conns {
		fds = append(fds, fd)
	}
	if lfd := s.ch.Server().ListenFD(); lfd >= 0 {
		fds = append(fds, lfd)
	}
	return fds
}

// Action waits up to timeoutMs milliseconds for something to do, then
// services every ready client and, for stream channels, accepts at most
// one new connection, the same single pass minipc_server_action makes.
// A timeout or an interrupted wait is not an error (§4.6: "On EINTR
// returns 0").
func (s *Server) Action(timeoutMs int) error {
	fds := s.GetReadySet()
	if len(fds) == 0 {
		return nil
	}
	ready, err := transport.WaitReadable(fds, timeoutMs)
	if err != nil {
		if errors.Is(err, transport.ErrInterrupted) {
			return nil
		}
		return errs.Wrap(errs.Protocol, "server_action", err)
	}

	listenFD := s.ch.Server().ListenFD()
	for _, fd := range ready {
		if fd == listenFD {
			continue // handled after existing clients, as the original does
		}
		s.handleClient(fd)
	}
	for _, fd := range ready {
		if fd == listenFD {
			s.handleAccept()
		}
	}
	return nil
}

// handleAccept completes one pending connection, refusing it if no
// client slot is free (§4.6, I guarantee on MaxClients).
func (s *Server) handleAccept() {
	if len(s.conns) >= wire.MaxClients {
		s.ch.Diag().Printf("server: refused new client: %d slots full", wire.MaxClients)
		// Drain and drop the pending connection so it doesn't spin the
		// ready set forever.
		if conn, err := s.ch.Server().Accept(); err == nil {
			conn.Close()
		}
		return
	}
	conn, err := s.ch.Server().Accept()
	if err != nil {
		s.ch.Diag().Printf("server: accept: %v", err)
		return
	}
	s.conns[conn.FD()] = conn
	s.ch.Diag().Printf("server: accepted client fd %d", conn.FD())
}

// handleClient reads and answers one pending request from fd, the
// equivalent of mpc_handle_client / minipc-mem-server.c's
// minipc_server_action body.
func (s *Server) handleClient(fd int) {
	conn, ok := s.conns[fd]
	if !ok {
		return
	}
	req, err := conn.ReadRequest()
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return
		}
		s.ch.Diag().Printf("server: client fd %d gone: %v", fd, err)
		delete(s.conns, fd)
		conn.Close()
		return
	}

	reply := conn.ReplyBuffer()
	s.dispatch(req, reply)

	if err := conn.WriteReply(reply); err != nil {
		s.ch.Diag().Printf("server: write reply to fd %d: %v", fd, err)
	}
}

// dispatch looks up the requested procedure and runs it, filling reply
// in place. A procedure not found is reported as a remote EOPNOTSUPP,
// exactly as minipc-mem-server.c's minipc_server_action does; any other
// handler failure is reported the same way with the handler's errno.
func (s *Server) dispatch(req message.Request, reply message.Reply) {
	name := req.Name()
	pd, handler, ok := s.ch.Lookup(name)
	if !ok {
		s.ch.Diag().Printf("server: unknown procedure %q", name)
		writeRemoteError(reply, errnoOpNotSupp)
		return
	}

	args, err := argWords(req, pd.Args)
	if err != nil {
		s.ch.Diag().Printf("server: %q: %v", name, err)
		writeRemoteError(reply, errnoEIO)
		return
	}

	if err := handler(args, reply.Value()); err != nil {
		errno := errnoOf(err)
		s.ch.Diag().Printf("server: %q failed: %v", name, err)
		writeRemoteError(reply, errno)
		return
	}

	if wire.KindOf(pd.Retval) == wire.KindString {
		n := indexNUL(reply.Value())
		if n < 0 {
			n = len(reply.Value())
		}
		size := wire.WordCount(n+1) * 4
		reply.SetType(wire.Encode(wire.KindString, size))
	} else {
		reply.SetType(pd.Retval)
	}
}

// errnoOpNotSupp is the stand-in for EOPNOTSUPP used when a requested
// procedure isn't exported, matching minipc-mem-server.c.
const errnoOpNotSupp = 95

func writeRemoteError(reply message.Reply, errno int) {
	reply.SetType(wire.Encode(wire.KindError, 4))
	// The value area's first word carries the errno, matching
	// "*(int *)(&p_out->val) = errno" in the original.
	binary.LittleEndian.PutUint32(reply.Value(), uint32(errno))
}

// errnoOf extracts the errno a Handler wants reported to the caller. A
// Handler that cares which errno crosses the wire returns an
// *errs.Error built with errs.Remotef; any other error maps to EIO.
func errnoOf(err error) int {
	if e, ok := err.(*errs.Error); ok && e.Kind == errs.Remote {
		return e.Errno
	}
	return errnoEIO
}

const errnoEIO = 5

// argWords returns the full argument-word view a Handler expects: every
// word actually occupied by argTypes in req's argument area, not one
// word per descriptor entry. This matters for any argument wider than
// one word (INT64, DOUBLE, STRUCT, or a STRING longer than 3 bytes),
// matching the C library's "uint32_t *args" whole-area contract that
// handlers index into with MINIPC_GET_AT-style offsets.
func argWords(req message.Request, argTypes []uint32) ([]uint32, error) {
	area := req.ArgArea()
	narg := 0
	for _, word := range argTypes {
		n, err := wire.NextArgWords(wire.KindOf(word), word, area[4*narg:])
		if err != nil {
			return nil, errs.Wrap(errs.Protocol, "dispatch", err)
		}
		narg += n
	}
	args := make([]uint32, narg)
	for i := range args {
		args[i] = req.ArgWord(i)
	}
	return args, nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
