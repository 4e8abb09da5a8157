// Package vecmath holds the float32 vector helpers shared by the embedding
// cache and the SQLite store.
package vecmath

import (
	"encoding/binary"
	"math"
)

// Cosine returns the cosine similarity of a and b. It returns 0 when the
// lengths differ or either vector has zero norm. A zero-vector placeholder
// therefore scores 0, above any real record with negative similarity, so
// stores must exclude placeholders from search themselves.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Encode packs vec as little-endian float32 values.
func Encode(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// Decode unpacks a buffer written by Encode. Trailing bytes that do not
// form a whole value are ignored.
func Decode(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
