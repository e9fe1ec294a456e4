package server_test

import (
	"encoding/binary"
	"testing"
	"time"

	"mini-ipc/channel"
	"mini-ipc/client"
	"mini-ipc/message"
	"mini-ipc/registry"
	"mini-ipc/server"
	"mini-ipc/wire"
)

var sumDescriptor = message.Descriptor{
	Name:   "sum",
	Retval: wire.Encode(wire.KindInt, 4),
	Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
}

func sumHandler(args []uint32, ret []byte) error {
	a := int32(args[0])
	b := int32(args[1])
	binary.LittleEndian.PutUint32(ret, uint32(a+b))
	return nil
}

func newPair(t *testing.T, name string) (*channel.Channel, *channel.Channel, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	srvCh, err := channel.CreateServer(name, channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	t.Cleanup(func() { srvCh.Close() })

	cliCh, err := channel.CreateClient(name, channel.WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	t.Cleanup(func() { cliCh.Close() })
	return srvCh, cliCh, reg
}

func TestActionDispatchesSum(t *testing.T) {
	srvCh, cliCh, _ := newPair(t, "srvtest-sum")
	if err := srvCh.Export("sum", sumDescriptor, sumHandler); err != nil {
		t.Fatalf("Export: %v", err)
	}
	svr, err := server.New(srvCh)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		var ret int32
		done <- client.Call(cliCh, 1000, sumDescriptor, &ret, int32(3), int32(4))
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
			return
		default:
		}
	}
	t.Fatal("timed out waiting for call to complete")
}

func TestActionRefusesUnexportedProcedure(t *testing.T) {
	srvCh, cliCh, _ := newPair(t, "srvtest-unsupported")
	svr, err := server.New(srvCh)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	const errnoOpNotSupp = 95 // EOPNOTSUPP

	type result struct {
		ret int32
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		r.err = client.Call(cliCh, 1000, sumDescriptor, &r.ret, int32(1), int32(2))
		done <- r
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := svr.Action(50); err != nil {
			t.Fatalf("Action: %v", err)
		}
		select {
		case r := <-done:
			if r.err == nil {
				t.Fatal("expected call to an unexported procedure to fail")
			}
			if r.ret != errnoOpNotSupp {
				t.Fatalf("ret = %d, want EOPNOTSUPP (%d) written into the out-parameter", r.ret, errnoOpNotSupp)
			}
			return
		default:
		}
	}
	t.Fatal("timed out waiting for call to complete")
}
