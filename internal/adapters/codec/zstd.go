package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd wraps another Codec and compresses its output. Model blobs are
// large and highly compressible, and they cross the store on every
// worker iteration.
type Zstd struct {
	inner Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstd creates a compressing codec around inner.
func NewZstd(inner Codec) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Zstd{inner: inner, enc: enc, dec: dec}, nil
}

// Encode serializes v with the inner codec and compresses the result.
func (z *Zstd) Encode(v interface{}) ([]byte, error) {
	raw, err := z.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

// Decode decompresses data and deserializes it with the inner codec.
func (z *Zstd) Decode(data []byte, v interface{}) error {
	raw, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("zstd decode: %w", err)
	}
	return z.inner.Decode(raw, v)
}
