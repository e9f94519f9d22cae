package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFixed(t *testing.T) {
	ctx := context.Background()
	if err := Fixed(true, "ignored").Check(ctx); err != nil {
		t.Fatalf("Fixed(true) = %v", err)
	}
	if err := Fixed(false, "").Check(ctx); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\") = %v", err)
	}
}

func TestAll(t *testing.T) {
	ctx := context.Background()
	if err := All().Check(ctx); err != nil {
		t.Fatalf("All() = %v", err)
	}
	err := All(Fixed(true, ""), nil, Fixed(false, "first"), Fixed(false, "second")).Check(ctx)
	if err == nil || err.Error() != "first" {
		t.Fatalf("All = %v, want first", err)
	}
}

func TestAny(t *testing.T) {
	ctx := context.Background()
	if err := Any(Fixed(false, "a"), Fixed(true, "")).Check(ctx); err != nil {
		t.Fatalf("Any = %v", err)
	}
	if err := Any(Fixed(false, "a"), Fixed(false, "b")).Check(ctx); err == nil || err.Error() != "b" {
		t.Fatalf("Any = %v, want b", err)
	}
	if err := Any(nil).Check(ctx); err == nil {
		t.Fatal("Any(nil) should fail")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()
	ctx := context.Background()

	if err := p.Check(ctx); err != nil {
		t.Fatalf("fresh gate = %v", err)
	}
	g.Set("")
	if err := p.Check(ctx); err == nil || err.Error() != "draining" {
		t.Fatalf("after Set = %v", err)
	}
	g.Set("shutting down")
	if err := p.Check(ctx); err == nil || err.Error() != "shutting down" {
		t.Fatalf("after Set(reason) = %v", err)
	}
	g.Clear()
	if err := p.Check(ctx); err != nil {
		t.Fatalf("after Clear = %v", err)
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name     string
		probe    Probe
		wantCode int
		wantBody string
	}{
		{"nil probe", nil, http.StatusOK, "ready"},
		{"passing", Fixed(true, ""), http.StatusOK, "ready"},
		{"failing", CheckFunc(func(context.Context) error { return errors.New("no content snapshot") }), http.StatusServiceUnavailable, "no content snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler(tt.probe, "ready").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q", rec.Body.String())
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("missing Cache-Control")
			}
		})
	}
}
