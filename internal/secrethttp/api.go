package secrethttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/content"
	"github.com/keithlinneman/secretmark/internal/httpmw"
	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/pages"
)

const DefaultMaxBodyBytes int64 = 64 << 10

type StatsProvider interface {
	Stats() pages.Stats
}

type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

// DecodeMetrics is satisfied by *metrics.ServerMetrics.
type DecodeMetrics interface {
	IncDecode(ok bool)
}

type Options struct {
	// Codec defaults to codec.New(). Its default key stands in for an
	// empty request key.
	Codec *codec.Codec

	Pages            StatsProvider
	Content          SnapshotProvider
	ContainerClasses []string

	Logger       log.Logger
	Metrics      DecodeMetrics
	MaxBodyBytes int64
}

// API serves the encode, decode and status endpoints.
type API struct {
	codec   *codec.Codec
	pages   StatsProvider
	content SnapshotProvider
	classes []string
	logger  log.Logger
	metrics DecodeMetrics
	maxBody int64
}

func NewAPI(opts Options) *API {
	if opts.Codec == nil {
		opts.Codec = codec.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &API{
		codec:   opts.Codec,
		pages:   opts.Pages,
		content: opts.Content,
		classes: opts.ContainerClasses,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		maxBody: opts.MaxBodyBytes,
	}
}

// RegisterRoutes attaches the secret endpoints to r.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/secrets", func(r chi.Router) {
		r.Use(httpmw.Scope("secrets"))
		r.With(httpmw.MaxBody(api.maxBody)).Post("/encode", api.HandleEncode)
		r.With(httpmw.MaxBody(api.maxBody)).Post("/decode", api.HandleDecode)
		r.Get("/status", api.HandleStatus)
	})
}

func (api *API) key(k *string) string {
	if k == nil {
		return api.codec.DefaultKey()
	}
	return *k
}

func (api *API) HandleEncode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req EncodeRequest
	if !api.readJSON(ctx, w, r, &req) {
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, EncodeResponse{Token: api.codec.Encode(req.Plaintext, api.key(req.Key))})
}

func (api *API) HandleDecode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DecodeRequest
	if !api.readJSON(ctx, w, r, &req) {
		return
	}

	resp := DecodeResponse{OK: true}
	revealed, err := api.codec.Reveal(req.Token, api.key(req.Key), req.TriedFallback)
	if err != nil {
		resp.Revealed, resp.OK = codec.Placeholder, false
		api.logger.Debug(ctx, "token did not decode", "reason", err.Error())
	} else {
		resp.Revealed = revealed
	}
	if api.metrics != nil {
		api.metrics.IncDecode(resp.OK)
	}
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Containers: api.classes,
		ServerTime: time.Now().UTC().Truncate(time.Second),
		Content:    ContentInfo{Source: string(content.SourceUnknown)},
	}
	if api.pages != nil {
		resp.Pages = api.pages.Stats()
	}
	if api.content != nil {
		if snap, ok := api.content.Get(); ok {
			resp.Content = ContentInfo{
				Source:   string(snap.Meta.Source),
				Hash:     snap.Meta.SHA256,
				Version:  snap.Meta.Version,
				LoadedAt: snap.LoadedAt.Truncate(time.Second),
			}
		}
	}
	api.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// readJSON decodes a single JSON object from the body and writes the error
// response itself when that fails.
func (api *API) readJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON object")
	}
	if err == nil {
		return true
	}

	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		api.writeJSON(ctx, w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
	case errors.Is(err, io.EOF):
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "request body is empty"})
	default:
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
	}
	return false
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
