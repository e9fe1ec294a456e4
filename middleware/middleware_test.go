package middleware

import (
	"encoding/binary"
	"testing"
	"time"

	"mini-ipc/diag"
	"mini-ipc/message"
)

func echoHandler(args []uint32, ret []byte) error {
	binary.LittleEndian.PutUint32(ret, args[0])
	return nil
}

func slowHandler(args []uint32, ret []byte) error {
	time.Sleep(200 * time.Millisecond)
	return echoHandler(args, ret)
}

func TestChainAppliesInOrder(t *testing.T) {
	var order []string
	mark := func(tag string) Middleware {
		return func(next message.Handler) message.Handler {
			return func(args []uint32, ret []byte) error {
				order = append(order, tag+":before")
				err := next(args, ret)
				order = append(order, tag+":after")
				return err
			}
		}
	}

	h := Chain(mark("A"), mark("B"))(echoHandler)
	ret := make([]byte, 4)
	if err := h([]uint32{7}, ret); err != nil {
		t.Fatalf("handler: %v", err)
	}
	want := []string{"A:before", "B:before", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLoggingMiddlewarePassesThroughResult(t *testing.T) {
	h := LoggingMiddleware("echo", diag.Noop)(echoHandler)
	ret := make([]byte, 4)
	if err := h([]uint32{42}, ret); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := binary.LittleEndian.Uint32(ret); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestTimeoutMiddlewareFiresOnSlowHandler(t *testing.T) {
	h := TimeoutMiddleware(20 * time.Millisecond)(slowHandler)
	ret := make([]byte, 4)
	err := h([]uint32{1}, ret)
	if err == nil {
		t.Fatal("expected a timeout error from a slow handler")
	}
}

func TestTimeoutMiddlewareAllowsFastHandler(t *testing.T) {
	h := TimeoutMiddleware(200 * time.Millisecond)(echoHandler)
	ret := make([]byte, 4)
	if err := h([]uint32{5}, ret); err != nil {
		t.Fatalf("handler: %v", err)
	}
}
