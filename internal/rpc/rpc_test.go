package rpc

import (
	"path/filepath"
	"testing"

	"github.com/radicle-link/linkd/internal/codec"
	"github.com/radicle-link/linkd/internal/urn"
)

func TestAnnounceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "req.sock")
	evPath := filepath.Join(dir, "ev.sock")

	var gotReq Request
	handler := func(req Request) Response {
		gotReq = req
		return Response{}
	}

	srv, err := NewServer(reqPath, evPath, handler, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	client := NewClient(reqPath)
	u := urn.FromRootDocument([]byte("project"))
	if err := client.Announce(u, "rev1"); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	if gotReq.Kind != RequestAnnounce || gotReq.Revision != "rev1" {
		t.Errorf("handler saw %+v, want Announce/rev1", gotReq)
	}
}

func TestCallSurfacesTerminalError(t *testing.T) {
	dir := t.TempDir()
	reqPath := filepath.Join(dir, "req.sock")
	evPath := filepath.Join(dir, "ev.sock")

	handler := func(req Request) Response {
		return Response{Error: "not tracked"}
	}

	srv, err := NewServer(reqPath, evPath, handler, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
	go srv.Serve()

	client := NewClient(reqPath)
	u := urn.FromRootDocument([]byte("project"))
	err = client.Pull(u, "somepeer")
	if err == nil {
		t.Fatal("expected terminal error to surface")
	}
}

func TestRequestFrameRoundTripsThroughCodec(t *testing.T) {
	u := urn.FromRootDocument([]byte("project"))
	req := Request{Kind: RequestPull, URN: u, Peer: "bob"}

	data, err := codec.MarshalCBOR(req)
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	var out Request
	if err := codec.UnmarshalCBOR(data, &out); err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	if out.Peer != "bob" || out.Kind != RequestPull {
		t.Errorf("got %+v, want Peer=bob Kind=RequestPull", out)
	}
}
