// Package codec implements the two wire encodings used throughout the
// protocol: canonical JSON for signed documents, and canonical CBOR for
// RPC and control-plane framing.
package codec

import (
	"bytes"
	"fmt"
	"sort"
)

// CanonicalJSON encodes v as canonical JSON: object keys sorted
// lexicographically, no insignificant whitespace, and integers only —
// no floating point values are permitted anywhere in the document.
// This is the encoding signed identity documents and signed-refs
// manifests are hashed and verified against; any two semantically equal
// documents always produce byte-identical output.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, fmt.Errorf("codec: canonical json: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, val)
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case uint64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case float64:
		return fmt.Errorf("floating point values are not representable in canonical json")
	case []byte:
		return encodeValue(buf, encodeBytesAsArray(val))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case Marshaler:
		out, err := val.MarshalCanonical()
		if err != nil {
			return err
		}
		buf.Write(out)
		return nil
	default:
		return fmt.Errorf("codec: value of type %T does not support canonical json encoding", v)
	}
}

func encodeBytesAsArray(b []byte) []any {
	out := make([]any, len(b))
	for i, x := range b {
		out[i] = int(x)
	}
	return out
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// Marshaler is implemented by types that know how to encode themselves
// as a canonical JSON value directly, bypassing reflection-free
// conversion through the builtin-type cases above.
type Marshaler interface {
	MarshalCanonical() ([]byte, error)
}
