package codec

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// round trip

func TestEncodeDecode_RoundTrip(t *testing.T) {
	plaintexts := []string{
		"",
		"hello",
		"hello world, with punctuation!?",
		"ünïcødé ✓ 秘密 🚀",
		Sentinel,
		Sentinel + Sentinel + "tail",
		"line one\nline two\ttabbed",
		strings.Repeat("long ", 500),
	}
	keys := []string{"discourse", "k", "customkey", "ключ", "a much longer key than the plaintext itself"}

	for _, p := range plaintexts {
		for _, k := range keys {
			tok := Encode(p, k)
			if got := Decode(tok, k); got != p {
				t.Errorf("Decode(Encode(%q, %q)) = %q", p, k, got)
			}
		}
	}
}

func TestEncode_InvalidUTF8BecomesReplacementChar(t *testing.T) {
	tests := map[string]string{
		"a\xffb":         "a\uFFFDb",
		"\xc3":           "\uFFFD",
		"ok\xed\xa0\x80": "ok\uFFFD",
		"ünï\x80":        "ünï\uFFFD",
	}
	for in, want := range tests {
		tok := Encode(in, "k")
		if tok != Encode(want, "k") {
			t.Errorf("Encode(%q) differs from Encode(%q)", in, want)
		}
		if got := Decode(tok, "k"); got != want {
			t.Errorf("Decode(Encode(%q)) = %q, want %q", in, got, want)
		}
	}
}

func TestEncode_WireFormat(t *testing.T) {
	for _, p := range []string{"", "a", "hello", "ünïcødé"} {
		tok := Encode(p, DefaultKey)
		if !IsToken(tok) {
			t.Errorf("Encode(%q) = %q does not match token format", p, tok)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	if Encode("hello", "k") != Encode("hello", "k") {
		t.Fatal("Encode is not deterministic")
	}
	if Encode("hello", "k1") == Encode("hello", "k2") {
		t.Fatal("different keys produced the same token")
	}
}

func TestEncode_KnownVector(t *testing.T) {
	// build the expected token by hand from the documented steps
	data := []byte(Sentinel + "hi")
	key := []byte("discourse")
	for i := range data {
		data[i] ^= key[i%len(key)]
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	want := TokenPrefix + reverseForTest(b64) + TokenSuffix

	if got := Encode("hi", "discourse"); got != want {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
}

func reverseForTest(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// empty key

func TestEmptyKey_IsIdentityKeystream(t *testing.T) {
	tok := Encode("plain", "")
	want := TokenPrefix + reverseForTest(base64.StdEncoding.EncodeToString([]byte(Sentinel+"plain"))) + TokenSuffix
	if tok != want {
		t.Fatalf("Encode with empty key = %q, want %q", tok, want)
	}
	if got := Decode(tok, ""); got != "plain" {
		t.Fatalf("Decode = %q, want plain", got)
	}
}

// fallback

func TestDecode_FallsBackToDefaultKey(t *testing.T) {
	tok := Encode("hello", "discourse")
	if got := Decode(tok, "wrongkey"); got != "hello" {
		t.Fatalf("Decode with wrong key = %q, want fallback to recover hello", got)
	}
}

func TestDecode_NoRecovery(t *testing.T) {
	tok := Encode("hello", "customkey")
	if got := Decode(tok, "othercustomkey"); got != Placeholder {
		t.Fatalf("Decode = %q, want placeholder", got)
	}
}

func TestDecodeFallback_TriedFallbackSkipsDefault(t *testing.T) {
	tok := Encode("hello", DefaultKey)
	if got := DecodeFallback(tok, "other", true); got != Placeholder {
		t.Fatalf("DecodeFallback(triedFallback=true) = %q, want placeholder", got)
	}
	if got := DecodeFallback(tok, "other", false); got != "hello" {
		t.Fatalf("DecodeFallback(triedFallback=false) = %q, want hello", got)
	}
}

func TestCodec_CustomFallbackKeys(t *testing.T) {
	c := New(WithDefaultKey("house"), WithFallbackKeys("team", "house"))
	if c.DefaultKey() != "house" {
		t.Fatalf("DefaultKey = %q", c.DefaultKey())
	}

	tok := c.Encode("standup at 10", "team")
	if got := c.Decode(tok, "nobody"); got != "standup at 10" {
		t.Fatalf("Decode = %q, want recovery through fallback key", got)
	}

	// the package default key is not a candidate for this codec
	tok = c.Encode("x", DefaultKey)
	if got := c.Decode(tok, "nobody"); got != Placeholder {
		t.Fatalf("Decode = %q, want placeholder", got)
	}
}

func TestCandidates_Deduplicated(t *testing.T) {
	c := New(WithFallbackKeys(DefaultKey, "extra"))
	got := c.candidates(DefaultKey, false)
	want := []string{DefaultKey, "extra"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	if got := c.candidates("x", true); len(got) != 1 || got[0] != "x" {
		t.Fatalf("candidates(triedFallback) = %v", got)
	}
}

// malformed input

func TestDecode_MalformedNeverFails(t *testing.T) {
	inputs := []string{
		"not-a-real-token",
		"",
		"XxH@@HxX",
		"XxH@!!!!@HxX",
		"XxH@" + "\xff\xfe" + "@HxX",
		"@HxX",
		"XxH@",
		"XxH@A@HxX",
	}
	for _, in := range inputs {
		if got := Decode(in, DefaultKey); got != Placeholder {
			t.Errorf("Decode(%q) = %q, want placeholder", in, got)
		}
	}
}

func TestOpen_ErrorKinds(t *testing.T) {
	if _, err := Open("not-a-real-token", DefaultKey); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("err = %v, want ErrMalformedToken", err)
	}

	tok := Encode("hello", "customkey")
	if _, err := Open(tok, "otherkey"); err == nil {
		t.Fatal("expected error for wrong key")
	}

	// valid base64 of ASCII text without the sentinel
	noSentinel := TokenPrefix + reverseForTest(base64.StdEncoding.EncodeToString([]byte("plain text"))) + TokenSuffix
	if _, err := Open(noSentinel, ""); !errors.Is(err, ErrWrongKey) {
		t.Fatalf("err = %v, want ErrWrongKey", err)
	}
}

func TestOpen_LenientMarkers(t *testing.T) {
	tok := Encode("hello", "k")
	bare := strings.TrimSuffix(strings.TrimPrefix(tok, TokenPrefix), TokenSuffix)

	for _, in := range []string{tok, bare, TokenPrefix + bare, bare + TokenSuffix} {
		got, err := Open(in, "k")
		if err != nil || got != "hello" {
			t.Errorf("Open(%q) = %q, %v", in, got, err)
		}
	}
}

func TestOpen_StripsSentinelOnce(t *testing.T) {
	tok := Encode(Sentinel+"x", "k")
	got, err := Open(tok, "k")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != Sentinel+"x" {
		t.Fatalf("Open = %q, want %q", got, Sentinel+"x")
	}
}

func TestForgivingBase64(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"aGk=", "hi", true},
		{"aGk", "hi", true},
		{" aG\nk= ", "hi", true},
		{"aGVsbG8=", "hello", true},
		{"a", "", false},
		{"a-b_", "", false},
	}
	for _, tt := range tests {
		got, err := forgivingBase64(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("forgivingBase64(%q) err = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && string(got) != tt.want {
			t.Errorf("forgivingBase64(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"XxH@abc=@HxX", true},
		{"XxH@@HxX", true},
		{"XxH@a-b@HxX", false},
		{"abc", false},
		{" XxH@abc@HxX", false},
	}
	for _, tt := range tests {
		if got := IsToken(tt.in); got != tt.want {
			t.Errorf("IsToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
