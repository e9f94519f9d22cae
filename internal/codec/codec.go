package codec

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultKey is the well-known key every token is retried with.
	DefaultKey = "discourse"

	// Sentinel is prepended before obfuscation and checked after decoding.
	Sentinel = "dextrapm"

	// Placeholder is returned when no candidate key recovers the sentinel.
	Placeholder = "[This message is NOT for you!]"

	TokenPrefix = "XxH@"
	TokenSuffix = "@HxX"
)

var (
	// ErrMalformedToken means the payload is not Base64 or the XOR output is not UTF-8.
	ErrMalformedToken = errors.New("codec: malformed token")

	// ErrWrongKey means the payload decoded but did not start with the sentinel.
	ErrWrongKey = errors.New("codec: sentinel mismatch")
)

var tokenRe = regexp.MustCompile(`^XxH@[A-Za-z0-9+/=]*@HxX$`)

// Codec encodes and decodes tokens with an ordered list of fallback keys.
// The zero value is not usable; build one with New.
type Codec struct {
	defaultKey string
	fallbacks  []string
}

type Option func(*Codec)

// WithDefaultKey replaces DefaultKey as the first fallback key.
func WithDefaultKey(key string) Option {
	return func(c *Codec) { c.defaultKey = key }
}

// WithFallbackKeys appends extra keys tried after the default key.
func WithFallbackKeys(keys ...string) Option {
	return func(c *Codec) { c.fallbacks = append(c.fallbacks, keys...) }
}

func New(opts ...Option) *Codec {
	c := &Codec{defaultKey: DefaultKey}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DefaultKey returns the key used as the first fallback.
func (c *Codec) DefaultKey() string { return c.defaultKey }

// Encode obfuscates plaintext with key. It never fails.
//
// Plaintext is treated as UTF-8 text: each invalid byte sequence is
// replaced with U+FFFD before encoding, so decoding such a string yields
// the substituted text rather than the original bytes.
func (c *Codec) Encode(plaintext, key string) string {
	plaintext = strings.ToValidUTF8(plaintext, "\uFFFD")
	raw := xorKey([]byte(Sentinel+plaintext), []byte(key))
	return TokenPrefix + reverse(base64.StdEncoding.EncodeToString(raw)) + TokenSuffix
}

// Decode is DecodeFallback with triedFallback=false.
func (c *Codec) Decode(token, key string) string {
	return c.DecodeFallback(token, key, false)
}

// DecodeFallback recovers the plaintext of token. The supplied key is tried
// first; unless triedFallback is set the default and fallback keys follow.
// When nothing validates, Placeholder is returned.
func (c *Codec) DecodeFallback(token, key string, triedFallback bool) string {
	if s, err := c.Reveal(token, key, triedFallback); err == nil {
		return s
	}
	return Placeholder
}

// Reveal is DecodeFallback but reports the last failure instead of
// substituting Placeholder.
func (c *Codec) Reveal(token, key string, triedFallback bool) (string, error) {
	var last error
	for _, k := range c.candidates(key, triedFallback) {
		s, err := Open(token, k)
		if err == nil {
			return s, nil
		}
		last = err
	}
	return "", last
}

// candidates returns the ordered, de-duplicated list of keys to try.
func (c *Codec) candidates(key string, triedFallback bool) []string {
	if triedFallback {
		return []string{key}
	}
	out := make([]string, 0, 2+len(c.fallbacks))
	seen := make(map[string]struct{}, cap(out))
	for _, k := range append([]string{key, c.defaultKey}, c.fallbacks...) {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Open performs a single decode attempt with key.
// The prefix and suffix are stripped when present and ignored when absent.
func Open(token, key string) (string, error) {
	payload := strings.TrimSuffix(strings.TrimPrefix(token, TokenPrefix), TokenSuffix)

	raw, err := forgivingBase64(reverse(payload))
	if err != nil {
		return "", ErrMalformedToken
	}

	plain := xorKey(raw, []byte(key))
	if !utf8.Valid(plain) {
		return "", ErrMalformedToken
	}

	s := string(plain)
	if !strings.HasPrefix(s, Sentinel) {
		return "", ErrWrongKey
	}
	return s[len(Sentinel):], nil
}

// IsToken reports whether s has the exact token wire format.
func IsToken(s string) bool { return tokenRe.MatchString(s) }

var std = New()

// Encode obfuscates plaintext with key using the package default codec.
// Invalid UTF-8 is replaced with U+FFFD as in Codec.Encode.
func Encode(plaintext, key string) string { return std.Encode(plaintext, key) }

// Decode recovers plaintext from token, falling back to DefaultKey.
func Decode(token, key string) string { return std.Decode(token, key) }

// DecodeFallback is Decode with explicit control over the fallback attempt.
func DecodeFallback(token, key string, triedFallback bool) string {
	return std.DecodeFallback(token, key, triedFallback)
}
