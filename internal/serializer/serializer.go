// Package serializer provides the pluggable encode/decode pair each engine
// uses to turn a Go argument or return tuple into a frame payload and back.
// The core enumerates three standard choices; all three are pure,
// symmetric, and used identically on both ends of the connection.
package serializer

import "fmt"

// Serializer is the external collaborator shared, by reference, between
// the parent and child engines: a pure (encode, decode) pair. Encode and
// Decode errors are fatal for the connection: callers should treat them as
// terminal, not retryable.
type Serializer interface {
	// Encode flattens an argument or return tuple into frame payload bytes.
	Encode(values []interface{}) ([]byte, error)
	// Decode recovers the tuple that Encode produced.
	Decode(payload []byte) ([]interface{}, error)
	// Name identifies the serializer for diagnostics and config parsing.
	Name() string
}

// ByName resolves one of the three enumerated standard serializers.
func ByName(name string) (Serializer, error) {
	switch name {
	case "length-prefixed", "":
		return LengthPrefixedStrings{}, nil
	case "json":
		return JSONArray{}, nil
	case "msgpack-native":
		return StructuredBinary{Portable: false}, nil
	case "msgpack-portable":
		return StructuredBinary{Portable: true}, nil
	default:
		return nil, fmt.Errorf("serializer: unknown name %q", name)
	}
}
