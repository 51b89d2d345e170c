package serializer

import "github.com/vmihailenco/msgpack/v5"

// StructuredBinary is an implementation-defined binary serializer capable
// of carrying arbitrary argument/return tuples, built on
// github.com/vmihailenco/msgpack/v5 rather than a bespoke binary format.
//
// There are two named variants, native and portable. msgpack's wire format
// is already architecture- and language-portable, so both variants share
// one implementation here; Portable is kept as a field (rather than
// collapsed away) so a future native-only fast path — e.g. struct-tag
// encoding that skips the generic []interface{} tuple — has somewhere to
// hang without changing the exported type.
type StructuredBinary struct {
	Portable bool
}

func (s StructuredBinary) Name() string {
	if s.Portable {
		return "msgpack-portable"
	}
	return "msgpack-native"
}

func (StructuredBinary) Encode(values []interface{}) ([]byte, error) {
	return msgpack.Marshal(values)
}

func (StructuredBinary) Decode(payload []byte) ([]interface{}, error) {
	var values []interface{}
	if len(payload) == 0 {
		return values, nil
	}
	if err := msgpack.Unmarshal(payload, &values); err != nil {
		return nil, err
	}
	return values, nil
}
