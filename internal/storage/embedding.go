package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EmbeddingContentType is the content type of encoded embedding assets.
const EmbeddingContentType = "application/x-float32-le"

// EncodeEmbedding serializes v as little-endian float32 values.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("decode embedding: %d bytes is not a multiple of 4", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
