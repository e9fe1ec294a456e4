package message

import (
	"sync/atomic"
	"unsafe"
)

// SharedMemSize is the byte size of the shared-memory region layout from
// spec §3: { nrequest, nreply, request, reply }.
const SharedMemSize = 4 + 4 + RequestSize + ReplySize

// SharedMemory is a view over a shared-memory region (either a System V
// segment or a /dev/mem mapping) laid out as nrequest/nreply sequence
// counters followed by the request and reply frames, in place. There is
// no lock: the counters establish happens-before per I invariant in
// spec §3 — the writer touches its frame, then bumps its counter; the
// reader observes the counter change, then reads the frame.
type SharedMemory struct {
	b []byte // len(b) >= SharedMemSize
}

// NewSharedMemory wraps a region obtained from a shared-memory transport.
func NewSharedMemory(b []byte) SharedMemory {
	if len(b) < SharedMemSize {
		panic("message: shared memory region smaller than SharedMemSize")
	}
	return SharedMemory{b: b[:SharedMemSize]}
}

func (s SharedMemory) nrequestPtr() *uint32 { return (*uint32)(unsafe.Pointer(&s.b[0])) }
func (s SharedMemory) nreplyPtr() *uint32   { return (*uint32)(unsafe.Pointer(&s.b[4])) }

// NRequest performs an acquire-style load of the request sequence counter.
func (s SharedMemory) NRequest() uint32 { return atomic.LoadUint32(s.nrequestPtr()) }

// BumpNRequest performs a release-style increment of the request sequence
// counter; callers must have finished writing Request() before calling
// this.
func (s SharedMemory) BumpNRequest() { atomic.AddUint32(s.nrequestPtr(), 1) }

// NReply performs an acquire-style load of the reply sequence counter.
func (s SharedMemory) NReply() uint32 { return atomic.LoadUint32(s.nreplyPtr()) }

// BumpNReply performs a release-style increment of the reply sequence
// counter; callers must have finished writing Reply() before calling
// this.
func (s SharedMemory) BumpNReply() { atomic.AddUint32(s.nreplyPtr(), 1) }

// Request returns the request frame embedded in the region.
func (s SharedMemory) Request() Request { return RequestView(s.b[8 : 8+RequestSize]) }

// Reply returns the reply frame embedded in the region.
func (s SharedMemory) Reply() Reply { return ReplyView(s.b[8+RequestSize:]) }

// Zero clears the entire region; servers zero the region on attach (§4.4).
func (s SharedMemory) Zero() {
	for i := range s.b {
		s.b[i] = 0
	}
}
