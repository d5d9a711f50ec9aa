package vector

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embed maps text onto a fixed-width vector with feature hashing:
// each token hashes to one dimension and a sign, counts accumulate,
// and the result is L2-normalized. Entirely offline and deterministic,
// which is all the decision index needs; no model, no network.
func Embed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(dims))
		if sum&0x80000000 != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
