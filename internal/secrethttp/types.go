package secrethttp

import (
	"time"

	"github.com/keithlinneman/secretmark/internal/pages"
)

// EncodeRequest and DecodeRequest take an optional key. Omitted means the
// configured default key; "" is the empty key itself.
type EncodeRequest struct {
	Plaintext string  `json:"plaintext"`
	Key       *string `json:"key,omitempty"`
}

type EncodeResponse struct {
	Token string `json:"token"`
}

type DecodeRequest struct {
	Token         string  `json:"token"`
	Key           *string `json:"key,omitempty"`
	TriedFallback bool    `json:"tried_fallback,omitempty"`
}

// DecodeResponse carries the placeholder with OK=false when no key worked.
type DecodeResponse struct {
	Revealed string `json:"revealed"`
	OK       bool   `json:"ok"`
}

type StatusResponse struct {
	Pages      pages.Stats `json:"pages"`
	Content    ContentInfo `json:"content"`
	Containers []string    `json:"container_classes,omitempty"`
	ServerTime time.Time   `json:"server_time"`
}

type ContentInfo struct {
	Source   string    `json:"source"`
	Hash     string    `json:"hash,omitempty"`
	Version  string    `json:"version,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

type errorResponse struct {
	Error string `json:"error"`
}
