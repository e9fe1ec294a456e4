package channel

import (
	"testing"

	"mini-ipc/message"
	"mini-ipc/registry"
	"mini-ipc/wire"
)

func TestCreateServerRegistersAndCloses(t *testing.T) {
	reg := registry.New()
	srv, err := CreateServer("channel-test-server", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if _, ok := reg.Lookup(srv.registryKey()); !ok {
		t.Fatal("expected server channel to be registered")
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := reg.Lookup("channel-test-server#server"); ok {
		t.Fatal("expected server channel removed from registry after Close")
	}
}

func TestCreateServerAndClientSameNameCoexist(t *testing.T) {
	reg := registry.New()
	srv, err := CreateServer("channel-test-pair", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srv.Close()

	cli, err := CreateClient("channel-test-pair", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient of the same name as an open server should succeed: %v", err)
	}
	defer cli.Close()

	if _, ok := reg.Lookup("channel-test-pair#server"); !ok {
		t.Fatal("expected server channel registered under its role-qualified key")
	}
	if _, ok := reg.Lookup("channel-test-pair#client"); !ok {
		t.Fatal("expected client channel registered under its role-qualified key")
	}
}

func TestExportLookupUnexport(t *testing.T) {
	reg := registry.New()
	srv, err := CreateServer("channel-test-export", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srv.Close()

	pd := message.Descriptor{
		Name:   "sum",
		Retval: wire.Encode(wire.KindInt, 4),
		Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
	}
	h := func(args []uint32, ret []byte) error { return nil }

	if err := srv.Export("sum", pd, h); err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, _, ok := srv.Lookup("sum")
	if !ok || got.Name != "sum" {
		t.Fatalf("Lookup returned (%v, %v)", got, ok)
	}
	if err := srv.Unexport("sum"); err != nil {
		t.Fatalf("Unexport: %v", err)
	}
	if _, _, ok := srv.Lookup("sum"); ok {
		t.Fatal("expected sum to be gone after Unexport")
	}
}

func TestExportOnClientRejected(t *testing.T) {
	reg := registry.New()
	srv, err := CreateServer("channel-test-clientside", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	defer srv.Close()

	cli, err := CreateClient("channel-test-clientside", WithRegistry(reg))
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	defer cli.Close()

	if err := cli.Export("sum", message.Descriptor{}, nil); err == nil {
		t.Fatal("expected Export on a client channel to fail")
	}
}
