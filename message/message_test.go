package message

import (
	"testing"

	"mini-ipc/wire"
)

func TestRequestNameRoundTrip(t *testing.T) {
	req := NewRequest()
	req.SetName("sum")
	if got := req.Name(); got != "sum" {
		t.Fatalf("Name() = %q, want %q", got, "sum")
	}
}

func TestRequestNameTruncates(t *testing.T) {
	req := NewRequest()
	long := "this-name-is-way-too-long-for-the-field"
	req.SetName(long)
	if got := req.Name(); got != long[:NameSize-1] {
		t.Fatalf("Name() = %q, want %q", got, long[:NameSize-1])
	}
}

func TestRequestArgWords(t *testing.T) {
	req := NewRequest()
	req.SetArgWord(0, 345)
	req.SetArgWord(1, 628)
	if req.ArgWord(0) != 345 || req.ArgWord(1) != 628 {
		t.Fatalf("ArgWord round trip failed: %d, %d", req.ArgWord(0), req.ArgWord(1))
	}
	if got := req.WireLen(2); got != NameSize+8 {
		t.Fatalf("WireLen(2) = %d, want %d", got, NameSize+8)
	}
}

// Reply type word, wire length and value area round trip.
func TestReplyTypeAndValue(t *testing.T) {
	rep := NewReply()
	rep.SetType(wire.Encode(wire.KindInt, 4))
	if wire.KindOf(rep.Type()) != wire.KindInt {
		t.Fatalf("KindOf(Type()) = %v, want INT", wire.KindOf(rep.Type()))
	}
	if got := rep.WireLen(); got != 8 {
		t.Fatalf("WireLen() = %d, want 8", got)
	}
	copy(rep.Value(), []byte{0x01, 0x02, 0x03, 0x04})
	if rep.Value()[0] != 1 {
		t.Fatalf("Value()[0] = %d, want 1", rep.Value()[0])
	}
}

func TestViewsShareBackingBuffer(t *testing.T) {
	buf := make([]byte, RequestSize+8)
	r := RequestView(buf)
	r.SetName("gettimeofday")
	if string(buf[:len("gettimeofday")]) != "gettimeofday" {
		t.Fatal("RequestView did not write through to the backing buffer")
	}
}
