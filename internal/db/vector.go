package db

import (
	"encoding/binary"
	"math"
)

// EncodeVector encodes v as little-endian FLOAT32, the layout FT vector
// fields expect both in hashes and in KNN query parameters.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
