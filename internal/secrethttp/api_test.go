package secrethttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/pages"
)

type fakeStats struct{ st pages.Stats }

func (f fakeStats) Stats() pages.Stats { return f.st }

type fakeDecodeMetrics struct{ ok, failed int }

func (m *fakeDecodeMetrics) IncDecode(ok bool) {
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

func newRouter(api *API) http.Handler {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	m := &fakeDecodeMetrics{}
	h := newRouter(NewAPI(Options{Metrics: m}))

	rec := do(t, h, http.MethodPost, "/api/secrets/encode", `{"plaintext":"meet at noon","key":"team"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("encode status = %d body=%s", rec.Code, rec.Body)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	enc := decodeBody[EncodeResponse](t, rec)
	if !codec.IsToken(enc.Token) || enc.Token != codec.Encode("meet at noon", "team") {
		t.Fatalf("token = %q", enc.Token)
	}

	body, _ := json.Marshal(DecodeRequest{Token: enc.Token, Key: keyOf("team")})
	rec = do(t, h, http.MethodPost, "/api/secrets/decode", string(body))
	dec := decodeBody[DecodeResponse](t, rec)
	if !dec.OK || dec.Revealed != "meet at noon" {
		t.Fatalf("decode = %+v", dec)
	}

	body, _ = json.Marshal(DecodeRequest{Token: enc.Token, Key: keyOf("nope")})
	dec = decodeBody[DecodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/decode", string(body)))
	if dec.OK || dec.Revealed != codec.Placeholder {
		t.Fatalf("decode with wrong key = %+v", dec)
	}
	if m.ok != 1 || m.failed != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestEncode_EmptyKeyUsesConfiguredDefault(t *testing.T) {
	h := newRouter(NewAPI(Options{Codec: codec.New(codec.WithDefaultKey("house"))}))
	enc := decodeBody[EncodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/encode", `{"plaintext":"x"}`))
	if enc.Token != codec.Encode("x", "house") {
		t.Fatalf("token = %q, want encoded with configured default", enc.Token)
	}
}

func TestDecode_Fallback(t *testing.T) {
	h := newRouter(NewAPI(Options{}))
	tok := codec.Encode("public", codec.DefaultKey)

	dec := decodeBody[DecodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/decode",
		`{"token":"`+tok+`","key":"mine"}`))
	if !dec.OK || dec.Revealed != "public" {
		t.Fatalf("fallback decode = %+v", dec)
	}

	dec = decodeBody[DecodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/decode",
		`{"token":"`+tok+`","key":"mine","tried_fallback":true}`))
	if dec.OK {
		t.Fatalf("tried_fallback decode = %+v", dec)
	}
}

func TestEmptyKeyIsNotTheDefault(t *testing.T) {
	h := newRouter(NewAPI(Options{Codec: codec.New(codec.WithDefaultKey("house"))}))

	enc := decodeBody[EncodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/encode", `{"plaintext":"x","key":""}`))
	if enc.Token != codec.Encode("x", "") {
		t.Fatalf("token = %q, want encoded with the empty key", enc.Token)
	}

	// the empty key decodes its own token and still falls back to the default
	for _, tok := range []string{codec.Encode("plain", ""), codec.Encode("plain", "house")} {
		body, _ := json.Marshal(DecodeRequest{Token: tok, Key: keyOf("")})
		dec := decodeBody[DecodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/decode", string(body)))
		if !dec.OK || dec.Revealed != "plain" {
			t.Fatalf("decode %q with empty key = %+v", tok, dec)
		}
	}

	body, _ := json.Marshal(DecodeRequest{Token: codec.Encode("plain", "house"), Key: keyOf(""), TriedFallback: true})
	dec := decodeBody[DecodeResponse](t, do(t, h, http.MethodPost, "/api/secrets/decode", string(body)))
	if dec.OK {
		t.Fatalf("empty key with tried_fallback decoded a default-key token: %+v", dec)
	}
}

func TestDecode_MalformedTokenIsNotAnError(t *testing.T) {
	h := newRouter(NewAPI(Options{}))
	rec := do(t, h, http.MethodPost, "/api/secrets/decode", `{"token":"not-a-real-token"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if dec := decodeBody[DecodeResponse](t, rec); dec.OK || dec.Revealed != codec.Placeholder {
		t.Fatalf("decode = %+v", dec)
	}
}

func TestBadRequests(t *testing.T) {
	h := newRouter(NewAPI(Options{MaxBodyBytes: 64}))
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `plaintext=x`, http.StatusBadRequest},
		{"empty", ``, http.StatusBadRequest},
		{"unknown field", `{"plaintext":"x","extra":1}`, http.StatusBadRequest},
		{"trailing object", `{"plaintext":"x"}{"plaintext":"y"}`, http.StatusBadRequest},
		{"wrong type", `{"plaintext":5}`, http.StatusBadRequest},
		{"too large", `{"plaintext":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/secrets/encode", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
			if e := decodeBody[errorResponse](t, rec); e.Error == "" {
				t.Fatal("missing error message")
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newRouter(NewAPI(Options{}))
	if rec := do(t, h, http.MethodGet, "/api/secrets/encode", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	mgr := content.NewManager()
	mgr.Set(content.Snapshot{
		FS:   fstest.MapFS{"index.html": &fstest.MapFile{Data: []byte("x")}},
		Meta: content.Meta{SHA256: "abc", Version: "v1", Source: content.SourceSeed},
	})
	api := NewAPI(Options{
		Pages:            fakeStats{pages.Stats{Ready: true, Documents: 3, Replacements: 7}},
		Content:          mgr,
		ContainerClasses: []string{"cooked", "excerpt"},
	})
	rec := do(t, newRouter(api), http.MethodGet, "/api/secrets/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decodeBody[StatusResponse](t, rec)
	if !st.Pages.Ready || st.Pages.Documents != 3 || st.Pages.Replacements != 7 {
		t.Fatalf("pages = %+v", st.Pages)
	}
	if st.Content.Source != "seed" || st.Content.Hash != "abc" || st.Content.Version != "v1" {
		t.Fatalf("content = %+v", st.Content)
	}
	if len(st.Containers) != 2 {
		t.Fatalf("containers = %v", st.Containers)
	}
}

func TestStatus_NoContent(t *testing.T) {
	rec := do(t, newRouter(NewAPI(Options{Content: content.NewManager()})), http.MethodGet, "/api/secrets/status", "")
	if st := decodeBody[StatusResponse](t, rec); st.Content.Source != "unknown" {
		t.Fatalf("content = %+v", st.Content)
	}
}

func keyOf(s string) *string { return &s }
