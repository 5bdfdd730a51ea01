package queuify

import "encoding/json"

// Codec converts items to and from the byte representation stored by an
// engine. Implementations must be safe for concurrent use.
type Codec[T any] interface {
	Encode(item T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// StringCodec stores strings as their raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(item string) ([]byte, error) { return []byte(item), nil }
func (StringCodec) Decode(data []byte) (string, error) { return string(data), nil }

// BytesCodec stores byte slices verbatim.
type BytesCodec struct{}

func (BytesCodec) Encode(item []byte) ([]byte, error) { return item, nil }
func (BytesCodec) Decode(data []byte) ([]byte, error) { return data, nil }

// JSONCodec stores any JSON-marshalable type.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(item T) ([]byte, error) { return json.Marshal(item) }

func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var item T
	err := json.Unmarshal(data, &item)
	return item, err
}
