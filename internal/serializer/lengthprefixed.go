package serializer

import (
	"encoding/binary"
	"fmt"
)

// LengthPrefixedStrings is a "concatenation of variable-length-prefixed
// byte strings" serializer: each value becomes a uint32 length prefix
// (big-endian) followed by its raw bytes, and tuples are the straight
// concatenation of that. It is 8-bit-clean and accepts only string and
// []byte values, the only two Go types with an obvious byte-string
// representation; anything else is a caller error.
//
// This is implemented on the standard library rather than a third-party
// codec because the format here is not a general-purpose serialization
// scheme — it is this exact byte layout, not subject to a library's
// opinions about type tags or framing. encoding/binary is the natural and
// only tool for it (see DESIGN.md).
type LengthPrefixedStrings struct{}

func (LengthPrefixedStrings) Name() string { return "length-prefixed" }

func (LengthPrefixedStrings) Encode(values []interface{}) ([]byte, error) {
	var out []byte
	var lenBuf [4]byte
	for i, v := range values {
		b, err := toBytes(v)
		if err != nil {
			return nil, fmt.Errorf("serializer: argument %d: %w", i, err)
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out, nil
}

func (LengthPrefixedStrings) Decode(payload []byte) ([]interface{}, error) {
	var values []interface{}
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, fmt.Errorf("serializer: truncated length prefix")
		}
		n := binary.BigEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint64(len(payload)) < uint64(n) {
			return nil, fmt.Errorf("serializer: declared length %d exceeds remaining payload", n)
		}
		values = append(values, append([]byte(nil), payload[:n]...))
		payload = payload[n:]
	}
	return values, nil
}

func toBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("length-prefixed serializer only accepts string or []byte, got %T", v)
	}
}
