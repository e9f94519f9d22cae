package opshttp

import (
	"net/http"
	"strconv"

	"github.com/keithlinneman/secretmark/internal/health"
)

type Options struct {
	// Port defaults to 9000. Addr, when set, wins over Port.
	Port int
	Addr string

	Metrics     http.Handler
	EnablePprof bool

	Health    health.Probe
	Readiness health.Probe

	// OnPanic runs after a handler panic was recovered and logged.
	OnPanic func()
}

func (o *Options) addr() string {
	if o.Addr != "" {
		return o.Addr
	}
	if o.Port == 0 {
		o.Port = 9000
	}
	return ":" + strconv.Itoa(o.Port)
}
