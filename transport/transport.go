// Package transport implements the two wire transports mini-ipc channels
// can run over (§4.3, §4.4): a Unix-domain stream socket with a fan-in
// server, and a shared-memory region bridged to the same poll-based
// select loop by a background poller.
//
// Both transports expose raw file descriptors so that a server's "ready
// set" (§4.6, §6) can be multiplexed with a single poll(2) call — the
// direct analogue of the C library's select()/poll() loop — regardless
// of which transport backs a given channel.
package transport

import "mini-ipc/message"

// Server is the server-side half of a transport: something that can
// accept new clients (stream) or that is already connected to its one
// peer (shared memory, which is single-peer by construction per I5/§5).
type Server interface {
	// ListenFD returns the descriptor to poll for new client activity:
	// the listening socket for the stream transport, or -1 for memory
	// transports, which have no separate accept step.
	ListenFD() int

	// Accept completes a pending connection on ListenFD and returns the
	// new client slot, or an error if none was pending. It does not track
	// client slots: the server package refuses a client when no slot is
	// free (REFUSED, §4.6).
	Accept() (ClientConn, error)

	// SinglePeerConn returns the implicit, already-connected peer for
	// transports with no accept step (memory transports), or nil for the
	// stream transport.
	SinglePeerConn() ClientConn

	Close() error
}

// ClientConn is one accepted connection on the server side.
type ClientConn interface {
	// FD is the descriptor to add to the server's ready set.
	FD() int

	// ReadRequest reads exactly one request frame. An EINTR from the
	// underlying read is returned so that errors.Is(err, syscall.EINTR)
	// holds, letting the per-client handler distinguish "try again" from
	// "close".
	ReadRequest() (message.Request, error)

	// ReplyBuffer returns the buffer the dispatcher should fill in for
	// the reply to the request just read: a freshly owned buffer for the
	// stream transport, or the in-place shared-memory reply view for
	// memory transports, where "sending" a reply means nothing more than
	// bumping the reply counter (§4.4, §4.6).
	ReplyBuffer() message.Reply

	// WriteReply commits a reply built in the buffer ReplyBuffer
	// returned: it writes exactly WireLen() bytes over the stream
	// transport, or signals the reply counter for memory transports.
	WriteReply(reply message.Reply) error

	Close() error
}

// Client is the client-side half of a transport.
type Client interface {
	// FD is the descriptor to poll for the reply becoming ready.
	FD() int

	// WriteRequest emits a request built with usedWords words of
	// argument data.
	WriteRequest(req message.Request, usedWords int) error

	// ReadReply consumes exactly one signal/readability event and
	// returns the reply frame along with how many bytes actually
	// arrived (stream transport only; memory transport reads the reply
	// in place and reports its WireLen()).
	ReadReply() (reply message.Reply, n int, err error)

	Close() error
}
