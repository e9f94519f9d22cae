package codec

import (
	"encoding/base64"
	"strings"
)

// xorKey XORs data with a repeating key into a new slice.
// An empty key is the identity keystream.
func xorKey(data, key []byte) []byte {
	out := make([]byte, len(data))
	if len(key) == 0 {
		copy(out, data)
		return out
	}
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// reverse reverses s byte-wise. Payloads are ASCII Base64 so bytes and
// characters coincide; non-ASCII input simply fails to decode afterwards.
func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// forgivingBase64 decodes the way browsers' atob does: ASCII whitespace is
// dropped and padding is optional.
func forgivingBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, s)
	if len(s)%4 == 0 {
		s = strings.TrimSuffix(s, "=")
		s = strings.TrimSuffix(s, "=")
	}
	return base64.RawStdEncoding.DecodeString(s)
}
