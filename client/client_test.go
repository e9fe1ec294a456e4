package client_test

import (
	"encoding/binary"
	"testing"
	"time"

	"mini-ipc/channel"
	"mini-ipc/client"
	"mini-ipc/errs"
	"mini-ipc/message"
	"mini-ipc/registry"
	"mini-ipc/server"
	"mini-ipc/wire"
)

var strcatDescriptor = message.Descriptor{
	Name:   "strcat",
	Retval: wire.Encode(wire.KindString, 0),
	Args:   []uint32{wire.Encode(wire.KindString, 0), wire.Encode(wire.KindString, 0)},
}

func TestCallTimesOutWithNoServer(t *testing.T) {
	reg := registry.New()
	srvCh, err := channel.CreateServer("clienttest-timeout", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srvCh.Close()

	cliCh, err := channel.CreateClient("clienttest-timeout", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	defer cliCh.Close()

	sumDescriptor := message.Descriptor{
		Name:   "sum",
		Retval: wire.Encode(wire.KindInt, 4),
		Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
	}
	var ret int32
	err = client.Call(cliCh, 50, sumDescriptor, &ret, int32(1), int32(2))
	if err == nil {
		t.Fatal("expected a timeout with nobody servicing the channel")
	}
	if k, ok := errs.KindOf(err); !ok || k != errs.TimedOut {
		t.Fatalf("expected errs.TimedOut, got %v", err)
	}
}

func TestCallArgumentCountMismatch(t *testing.T) {
	reg := registry.New()
	srvCh, err := channel.CreateServer("clienttest-argmismatch", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srvCh.Close()

	cliCh, err := channel.CreateClient("clienttest-argmismatch", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	defer cliCh.Close()

	sumDescriptor := message.Descriptor{
		Name:   "sum",
		Retval: wire.Encode(wire.KindInt, 4),
		Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
	}
	var ret int32
	err = client.Call(cliCh, 50, sumDescriptor, &ret, int32(1))
	if err == nil {
		t.Fatal("expected an argument-count mismatch to be rejected before sending")
	}
	if k, ok := errs.KindOf(err); !ok || k != errs.Invalid {
		t.Fatalf("expected errs.Invalid, got %v", err)
	}
}

func TestCallRoundTripsString(t *testing.T) {
	reg := registry.New()
	srvCh, err := channel.CreateServer("clienttest-strcat", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srvCh.Close()

	handler := func(args []uint32, ret []byte) error {
		// args is a flat word view of the request's argument area; a
		// STRING handler reinterprets the relevant words as bytes to
		// find its NUL terminators.
		buf := make([]byte, 4*len(args))
		for i, w := range args {
			binary.LittleEndian.PutUint32(buf[4*i:], w)
		}
		a := cStr(buf)
		b := cStr(buf[4*wire.WordCount(len(a)+1):])
		copy(ret, a+b)
		ret[len(a+b)] = 0
		return nil
	}
	if err := srvCh.Export("strcat", strcatDescriptor, handler); err != nil {
		t.Fatalf("Export: %v", err)
	}
	svr, err := server.New(srvCh)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	cliCh, err := channel.CreateClient("clienttest-strcat", channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	defer cliCh.Close()

	done := make(chan error, 1)
	var got string
	go func() {
		done <- client.Call(cliCh, 1000, strcatDescriptor, &got, "hello, ", "world")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := svr.Action(50); err != nil {
			t.Fatalf("Action: %v", err)
		}
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got != "hello, world" {
				t.Fatalf("got %q, want %q", got, "hello, world")
			}
			return
		default:
		}
	}
	t.Fatal("timed out waiting for call to complete")
}

func cStr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
