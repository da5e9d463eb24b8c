// Package codec provides the (encode, decode) pair the dispatcher uses to
// turn args, kwargs, and error-class lists into the opaque byte blobs the
// backend carries. The core never inspects these bytes; it only requires
// that they round-trip for a worker sharing the same codec and method
// registry.
package codec

import "encoding/json"

// Codec encodes and decodes arbitrary values to/from the byte blobs stored
// on an item. The dispatcher is parameterized by one so callers can swap in
// gob, msgpack, or anything else without touching the orchestration core.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the default Codec, storing plain JSON as the wire format.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
