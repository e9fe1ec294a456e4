// Package client implements the client side of a mini-ipc call: marshal
// a variadic argument list against a procedure descriptor, send the
// request, wait for the reply with a timeout, and unmarshal the result
// (§4.5, §4.6). It is the direct port of minipc_call.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"mini-ipc/channel"
	"mini-ipc/errs"
	"mini-ipc/message"
	"mini-ipc/transport"
	"mini-ipc/wire"
)

// Call issues one RPC over ch, which must have been created with
// channel.CreateClient: it marshals args against pd, sends the request,
// waits up to timeoutMs milliseconds for a reply, and decodes the result
// into ret.
//
// ret must point to storage large enough for pd.Retval's type: an *int32
// for KindInt, a *int64 for KindInt64, a *float64 for KindDouble, a
// *string for KindString, or a *[]byte for KindStruct, which receives
// as many bytes as the reply's type word declares.
func Call(ch *channel.Channel, timeoutMs int, pd message.Descriptor, ret any, args ...any) error {
	if ch.Role() != channel.RoleClient {
		return errs.New(errs.Invalid, "call", "channel is not a client channel")
	}
	cli := ch.Client()

	req := message.NewRequest()
	req.SetName(pd.Name)

	usedWords, err := marshalArgs(req, pd.Args, args)
	if err != nil {
		return err
	}

	ch.Diag().Printf("client: calling %q", pd.Name)
	if err := cli.WriteRequest(req, usedWords); err != nil {
		return errs.Wrap(errs.Protocol, "call", err)
	}

	fd := cli.FD()
	readyFDs, err := transport.WaitReadable([]int{fd}, timeoutMs)
	if err != nil {
		if errors.Is(err, transport.ErrInterrupted) {
			return errs.New(errs.TimedOut, "call", "interrupted while waiting for reply")
		}
		return errs.Wrap(errs.Protocol, "call", err)
	}
	if len(readyFDs) == 0 {
		return errs.New(errs.TimedOut, "call", fmt.Sprintf("no reply for %q within %dms", pd.Name, timeoutMs))
	}

	reply, n, err := cli.ReadReply()
	if err != nil {
		return errs.Wrap(errs.Protocol, "call", err)
	}
	if n < 4+4 {
		return errs.New(errs.Protocol, "call", "short reply")
	}

	if wire.KindOf(reply.Type()) == wire.KindError {
		errno := int(int32(binary.LittleEndian.Uint32(reply.Value())))
		ch.Diag().Printf("client: %q: remote error %d", pd.Name, errno)
		writeErrno(pd, ret, errno)
		return errs.Remotef("call", errno)
	}

	if wire.KindOf(reply.Type()) != wire.KindOf(pd.Retval) {
		return errs.New(errs.Protocol, "call",
			fmt.Sprintf("wrong reply kind %s (want %s)", wire.KindOf(reply.Type()), wire.KindOf(pd.Retval)))
	}
	if reply.WireLen() > n {
		return errs.New(errs.Protocol, "call", "short reply")
	}

	return unmarshalRet(reply, ret)
}

// marshalArgs packs args into req's argument area according to argTypes,
// returning the number of 32-bit words used. It mirrors the switch over
// MINIPC_GET_ATYPE in minipc_call.
func marshalArgs(req message.Request, argTypes []uint32, args []any) (int, error) {
	if len(args) != len(argTypes) {
		return 0, errs.New(errs.Invalid, "call",
			fmt.Sprintf("got %d arguments, descriptor wants %d", len(args), len(argTypes)))
	}

	narg := 0
	area := req.ArgArea()
	for i, word := range argTypes {
		kind := wire.KindOf(word)
		if narg >= wire.MaxArguments {
			return 0, errs.New(errs.Protocol, "call", "argument list won't fit")
		}
		switch kind {
		case wire.KindInt:
			v, ok := args[i].(int32)
			if !ok {
				return 0, errs.New(errs.Invalid, "call", fmt.Sprintf("argument %d: want int32", i))
			}
			binary.LittleEndian.PutUint32(area[4*narg:], uint32(v))
			narg++
		case wire.KindInt64:
			v, ok := args[i].(int64)
			if !ok {
				return 0, errs.New(errs.Invalid, "call", fmt.Sprintf("argument %d: want int64", i))
			}
			binary.LittleEndian.PutUint64(area[4*narg:], uint64(v))
			narg += 2
		case wire.KindDouble:
			v, ok := args[i].(float64)
			if !ok {
				return 0, errs.New(errs.Invalid, "call", fmt.Sprintf("argument %d: want float64", i))
			}
			binary.LittleEndian.PutUint64(area[4*narg:], math.Float64bits(v))
			narg += 2
		case wire.KindString:
			s, ok := args[i].(string)
			if !ok {
				return 0, errs.New(errs.Invalid, "call", fmt.Sprintf("argument %d: want string", i))
			}
			words := wire.WordCount(len(s) + 1)
			if narg+words >= wire.MaxArguments {
				return 0, errs.New(errs.Protocol, "call", "argument list won't fit")
			}
			dst := area[4*narg:]
			clear(dst[:4*words])
			copy(dst, s)
			narg += words
		case wire.KindStruct:
			b, ok := args[i].([]byte)
			if !ok {
				return 0, errs.New(errs.Invalid, "call", fmt.Sprintf("argument %d: want []byte", i))
			}
			size := wire.SizeOf(word)
			if len(b) != size {
				return 0, errs.New(errs.Invalid, "call",
					fmt.Sprintf("argument %d: struct is %d bytes, descriptor wants %d", i, len(b), size))
			}
			copy(area[4*narg:], b)
			narg += wire.WordCount(size)
		default:
			return 0, errs.New(errs.Protocol, "call", fmt.Sprintf("unknown argument kind %s", kind))
		}
	}
	return narg, nil
}

// unmarshalRet decodes reply's value area into ret according to the
// reply's own type word (which, for strings, carries the actual
// returned size, not the descriptor's).
func unmarshalRet(reply message.Reply, ret any) error {
	kind := wire.KindOf(reply.Type())
	val := reply.Value()
	switch kind {
	case wire.KindInt:
		p, ok := ret.(*int32)
		if !ok {
			return errs.New(errs.Invalid, "call", "ret: want *int32")
		}
		*p = int32(binary.LittleEndian.Uint32(val))
	case wire.KindInt64:
		p, ok := ret.(*int64)
		if !ok {
			return errs.New(errs.Invalid, "call", "ret: want *int64")
		}
		*p = int64(binary.LittleEndian.Uint64(val))
	case wire.KindDouble:
		p, ok := ret.(*float64)
		if !ok {
			return errs.New(errs.Invalid, "call", "ret: want *float64")
		}
		*p = math.Float64frombits(binary.LittleEndian.Uint64(val))
	case wire.KindString:
		p, ok := ret.(*string)
		if !ok {
			return errs.New(errs.Invalid, "call", "ret: want *string")
		}
		n := indexNUL(val)
		if n < 0 {
			n = len(val)
		}
		*p = string(val[:n])
	case wire.KindStruct:
		p, ok := ret.(*[]byte)
		if !ok {
			return errs.New(errs.Invalid, "call", "ret: want *[]byte")
		}
		size := wire.SizeOf(reply.Type())
		*p = append([]byte(nil), val[:size]...)
	default:
		return errs.New(errs.Protocol, "call", fmt.Sprintf("unsupported reply kind %s", kind))
	}
	return nil
}

// writeErrno writes a remote error's errno into ret, mirroring
// minipc_call's "*(int *)ret = remoteerr" (§4.5, §7, P7): the caller's
// out-parameter carries the errno instead of a normal result whenever
// the reply reports REMOTE. Go's ret is typed per pd.Retval rather than
// a bare int pointer, so this writes the errno as whichever numeric
// type the descriptor's return kind calls for; a STRING or STRUCT
// return has no numeric slot to carry it and is left untouched.
func writeErrno(pd message.Descriptor, ret any, errno int) {
	switch wire.KindOf(pd.Retval) {
	case wire.KindInt:
		if p, ok := ret.(*int32); ok {
			*p = int32(errno)
		}
	case wire.KindInt64:
		if p, ok := ret.(*int64); ok {
			*p = int64(errno)
		}
	case wire.KindDouble:
		if p, ok := ret.(*float64); ok {
			*p = float64(errno)
		}
	}
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
