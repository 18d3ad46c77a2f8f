// Package codec is the serialization boundary of the protocol.
//
// Everything the coordination store holds (ratings, snapshots, match
// submissions) passes through a Codec, so the wire format can change
// without touching protocol logic.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec encodes and decodes protocol values.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// Gob is the default Codec. gob is self-describing, so decoders do not
// need an out-of-band schema.
type Gob struct{}

// NewGob creates the default gob codec.
func NewGob() Gob {
	return Gob{}
}

// Encode serializes v.
func (Gob) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v.
func (Gob) Decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}
