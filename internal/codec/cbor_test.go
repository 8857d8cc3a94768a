package codec

import (
	"bytes"
	"strings"
	"testing"
)

type frameMsg struct {
	URN  string `cbor:"urn"`
	Data []byte `cbor:"data"`
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := frameMsg{URN: "urn:link:test", Data: []byte("hello")}

	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	var out frameMsg
	if err := ReadFrame(&buf, &out); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.URN != in.URN || string(out.Data) != string(in.Data) {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestFrameCompressesLargePayload(t *testing.T) {
	var buf bytes.Buffer
	big := frameMsg{URN: "urn:link:big", Data: bytes.Repeat([]byte("a"), compressThreshold*2)}

	if err := WriteFrame(&buf, big); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if buf.Bytes()[0] != flagZstd {
		t.Errorf("expected compressed frame flag, got %d", buf.Bytes()[0])
	}

	var out frameMsg
	if err := ReadFrame(&buf, &out); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(out.Data) != len(big.Data) {
		t.Errorf("decompressed length = %d, want %d", len(out.Data), len(big.Data))
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(flagPlain)
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})

	var out frameMsg
	if err := ReadFrame(&buf, &out); err == nil {
		t.Error("expected error for oversized frame length")
	}
}

func TestReadFrameTruncated(t *testing.T) {
	r := strings.NewReader("\x00\x00")
	var out frameMsg
	if err := ReadFrame(r, &out); err == nil {
		t.Error("expected error for truncated frame header")
	}
}

func TestMarshalCBORIsCanonical(t *testing.T) {
	type doc struct {
		B int `cbor:"b"`
		A int `cbor:"a"`
	}
	out1, err := MarshalCBOR(doc{B: 1, A: 2})
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	out2, err := MarshalCBOR(doc{B: 1, A: 2})
	if err != nil {
		t.Fatalf("MarshalCBOR: %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Error("cbor encoding not deterministic")
	}
}
