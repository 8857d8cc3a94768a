package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical cbor encoder: %v", err))
	}
	encMode = m

	d, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building cbor decoder: %v", err))
	}
	decMode = d
}

// MarshalCBOR encodes v using the RFC 7049 canonical CBOR encoding
// (length-first sorted map keys, shortest-form integers).
func MarshalCBOR(v any) ([]byte, error) {
	out, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal cbor: %w", err)
	}
	return out, nil
}

// UnmarshalCBOR decodes a canonical CBOR value into v.
func UnmarshalCBOR(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal cbor: %w", err)
	}
	return nil
}

// MaxFrameLength bounds the on-wire payload length of a single
// control-plane frame (after compression, where applied), guarding the
// reader against a peer claiming an unbounded length.
const MaxFrameLength = 16 * 1024 * 1024

// compressThreshold is the payload size above which a frame is
// transparently zstd-compressed before being written to the wire.
const compressThreshold = 8 * 1024

const (
	flagPlain byte = 0
	flagZstd  byte = 1
)

// WriteFrame writes a length-prefixed CBOR frame to w: a one-byte
// compression flag, a big-endian uint32 payload length, then the
// payload. Payloads larger than compressThreshold are zstd-compressed.
func WriteFrame(w io.Writer, v any) error {
	payload, err := MarshalCBOR(v)
	if err != nil {
		return err
	}

	flag := flagPlain
	if len(payload) > compressThreshold {
		compressed, err := zstdCompress(payload)
		if err == nil && len(compressed) < len(payload) {
			payload = compressed
			flag = flagZstd
		}
	}

	if len(payload) > MaxFrameLength {
		return fmt.Errorf("codec: frame of %d bytes exceeds max frame length %d", len(payload), MaxFrameLength)
	}

	header := make([]byte, 5)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("codec: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("codec: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("codec: read frame header: %w", err)
	}
	flag := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxFrameLength {
		return fmt.Errorf("codec: frame length %d exceeds max frame length %d", length, MaxFrameLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("codec: read frame payload: %w", err)
	}

	if flag == flagZstd {
		decompressed, err := zstdDecompress(payload)
		if err != nil {
			return fmt.Errorf("codec: decompress frame: %w", err)
		}
		payload = decompressed
	}

	return UnmarshalCBOR(payload, v)
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
