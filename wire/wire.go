// Package wire implements the mini-ipc argument type codec: the 32-bit
// "argument type word" that combines a kind tag with a byte size, and the
// cursor arithmetic needed to walk a packed argument area.
//
// This is the one piece of the protocol shared verbatim by every transport
// (stream socket and shared memory alike) and by every procedure descriptor.
package wire

import "fmt"

// Kind is the high half of an argument type word.
type Kind uint32

// Argument kinds. ERROR is only ever used in a reply's type word.
const (
	KindNone   Kind = 0
	KindInt    Kind = 1
	KindInt64  Kind = 2
	KindDouble Kind = 3
	KindString Kind = 4
	KindStruct Kind = 5
	KindError  Kind = 0xffff
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindInt:
		return "INT"
	case KindInt64:
		return "INT64"
	case KindDouble:
		return "DOUBLE"
	case KindString:
		return "STRING"
	case KindStruct:
		return "STRUCT"
	case KindError:
		return "ERROR"
	default:
		return fmt.Sprintf("Kind(%#x)", uint32(k))
	}
}

// Hard limits from §3/§6 of the wire format.
const (
	MaxName      = 20  // MINIPC_MAX_NAME, zero-padded, includes the terminator
	MaxArguments = 256 // MINIPC_MAX_ARGUMENTS, 32-bit words
	MaxReply     = 1024
	MaxClients   = 64
)

// FixedSize reports the byte size of a fixed-size kind: 0 for NONE, 4 for
// INT and for ERROR (which stores a plain int), 8 for INT64 and DOUBLE.
// It returns -1 for STRING, STRUCT and unknown kinds, whose size is
// carried in the word itself.
func (k Kind) FixedSize() int {
	switch k {
	case KindNone:
		return 0
	case KindInt:
		return 4
	case KindInt64, KindDouble:
		return 8
	case KindError:
		return 4
	default:
		return -1
	}
}

// Encode packs a kind and a byte size into a single 32-bit argument type
// word: high 16 bits are the kind, low 16 bits are the size.
func Encode(kind Kind, size int) uint32 {
	return (uint32(kind) << 16) | (uint32(size) & 0xffff)
}

// KindOf returns the kind tag of an argument type word.
func KindOf(word uint32) Kind {
	return Kind(word >> 16)
}

// SizeOf returns the size field of an argument type word.
func SizeOf(word uint32) int {
	return int(word & 0xffff)
}

// WordCount returns the number of 32-bit words a value of the given byte
// size occupies in the argument area: ceil(size/4).
func WordCount(size int) int {
	return (size + 3) >> 2
}

// NextArgWords returns the number of words the argument described by word
// occupies, given the bytes that follow it in the argument area (needed
// only for STRING, whose runtime length isn't in the word itself).
//
// For STRING, area is expected to start at the argument's first byte and
// contain a NUL terminator within bounds; the returned count already
// accounts for the terminator and the 4-byte rounding described in I4.
func NextArgWords(kind Kind, word uint32, area []byte) (int, error) {
	if kind == KindString {
		n := indexNUL(area)
		if n < 0 {
			return 0, fmt.Errorf("wire: unterminated string argument")
		}
		return WordCount(n + 1), nil
	}
	return WordCount(SizeOf(word)), nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
