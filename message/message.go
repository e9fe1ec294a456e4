// Package message defines the request and reply frame layouts shared by
// every mini-ipc transport, and the procedure descriptor that both the
// client and the server marshal against.
//
// The frames are fixed-layout byte buffers rather than Go structs so that
// the exact same bytes can be backed either by a local buffer (stream
// transport) or by a window into a shared-memory mapping (§3, §4.4):
// keeping one layout for both transports is the point of this package.
package message

import (
	"encoding/binary"

	"mini-ipc/wire"
)

// Byte layout constants, mirroring spec §3.
const (
	NameSize    = wire.MaxName           // 20, zero-padded
	ArgWords    = wire.MaxArguments       // 256 32-bit words
	ReplyBytes  = wire.MaxReply           // 1024
	RequestSize = NameSize + 4*ArgWords   // fixed capacity of a request frame
	ReplySize   = 4 + ReplyBytes          // type word + value area
)

// Descriptor is the immutable wire description of a procedure: its name,
// its return type word, and its argument type word list.
// It is the "procedure definition" of spec §3/§4.2.
//
// Descriptor carries no handler: per the ownership split recommended in
// spec §9, the server-side binding (descriptor + handler) lives in the
// channel package's export table, while Descriptor itself is shared by
// both client and server call paths.
type Descriptor struct {
	Name   string
	Retval uint32
	Args   []uint32 // argument type words, in order; no NONE terminator needed in a Go slice
}

// Handler is the server-side procedure implementation. It receives the
// raw argument words for the call and a reply value buffer to fill in; a
// negative return follows the C convention of "failed, consult errno" but
// is expressed here as a Go error for idiomatic callers.
type Handler func(args []uint32, ret []byte) error

// Request is a fixed-capacity view over a request frame: a zero-padded
// name field followed by a packed argument area addressed in 32-bit
// words (I4). It can wrap either an owned buffer or a slice into a
// shared-memory region.
type Request struct {
	b []byte // len(b) == RequestSize
}

// NewRequest allocates a zeroed, owned request frame.
func NewRequest() Request {
	return Request{b: make([]byte, RequestSize)}
}

// RequestView wraps an existing RequestSize-byte buffer without copying,
// used to address a request frame embedded in a shared-memory region.
func RequestView(b []byte) Request {
	if len(b) < RequestSize {
		panic("message: buffer too small for a request frame")
	}
	return Request{b: b[:RequestSize]}
}

// Bytes returns the full underlying buffer.
func (r Request) Bytes() []byte { return r.b }

// SetName copies name into the name field, truncated to fit and NUL
// padded, per "Copy descriptor.name into the name field (truncated to
// MINIPC_MAX_NAME)" (§4.5).
func (r Request) SetName(name string) {
	clear(r.b[:NameSize])
	n := len(name)
	if n > NameSize-1 {
		n = NameSize - 1
	}
	copy(r.b[:NameSize], name[:n])
}

// Name reads the NUL-terminated name field back out.
func (r Request) Name() string {
	i := indexNUL(r.b[:NameSize])
	if i < 0 {
		i = NameSize
	}
	return string(r.b[:i])
}

// ArgArea returns the raw byte slice backing the argument area.
func (r Request) ArgArea() []byte { return r.b[NameSize:] }

// ArgWord reads the i'th 32-bit word of the argument area.
func (r Request) ArgWord(i int) uint32 {
	return binary.LittleEndian.Uint32(r.b[NameSize+4*i:])
}

// SetArgWord writes the i'th 32-bit word of the argument area.
func (r Request) SetArgWord(i int, v uint32) {
	binary.LittleEndian.PutUint32(r.b[NameSize+4*i:], v)
}

// WireLen returns the serialized length for usedWords words of argument
// data: sizeof(name) + 4*argument-word-count (§3).
func (r Request) WireLen(usedWords int) int {
	return NameSize + 4*usedWords
}

// Reply is a fixed-capacity view over a reply frame: a type word followed
// by up to MaxReply bytes of value area.
type Reply struct {
	b []byte // len(b) == ReplySize
}

// NewReply allocates a zeroed, owned reply frame.
func NewReply() Reply {
	return Reply{b: make([]byte, ReplySize)}
}

// ReplyView wraps an existing ReplySize-byte buffer without copying.
func ReplyView(b []byte) Reply {
	if len(b) < ReplySize {
		panic("message: buffer too small for a reply frame")
	}
	return Reply{b: b[:ReplySize]}
}

func (r Reply) Bytes() []byte { return r.b }

func (r Reply) Type() uint32 { return binary.LittleEndian.Uint32(r.b[:4]) }

func (r Reply) SetType(word uint32) { binary.LittleEndian.PutUint32(r.b[:4], word) }

// Value returns the value area, sized to hold MaxReply bytes; callers
// should only read/write the prefix implied by Type()'s size field.
func (r Reply) Value() []byte { return r.b[4:] }

// WireLen returns the serialized length for the current type word:
// 4 + size(type) (§3).
func (r Reply) WireLen() int {
	return 4 + wire.SizeOf(r.Type())
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
