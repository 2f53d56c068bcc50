// Package jsoncodec encodes payloads with sonic using encoding/json
// compatible settings.
package jsoncodec

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ContentType is reported by Codec.
const ContentType = "application/json"

var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Codec encodes and decodes values of type T as JSON.
type Codec[T any] struct{}

func (Codec[T]) Encode(v T) ([]byte, error) {
	return Marshal(v)
}

func (Codec[T]) Decode(data []byte) (T, error) {
	var v T
	if err := Unmarshal(data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("jsoncodec: decoding %T: %w", v, err)
	}
	return v, nil
}

func (Codec[T]) ContentType() string { return ContentType }
