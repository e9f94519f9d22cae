// Package prof wires continuous profiling to a Pyroscope server.
package prof

import (
	"context"
	"net/url"
	"runtime"

	"github.com/grafana/pyroscope-go"

	"github.com/keithlinneman/secretmark/internal/log"
	"github.com/keithlinneman/secretmark/internal/xerrors"
)

type Options struct {
	Enabled       bool
	AppName       string
	ServerAddress string
	TenantID      string
	Tags          map[string]string

	// runtime sampling rates, left alone when zero
	MutexProfileFraction int
	BlockProfileRate     int
}

var profileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocObjects,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseObjects,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
	pyroscope.ProfileMutexCount,
	pyroscope.ProfileMutexDuration,
	pyroscope.ProfileBlockCount,
	pyroscope.ProfileBlockDuration,
}

func (o Options) validate() error {
	u, err := url.Parse(o.ServerAddress)
	if o.ServerAddress == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return xerrors.Newf("invalid pyroscope server address %q", o.ServerAddress)
	}
	if o.AppName == "" {
		return xerrors.New("pyroscope app name is required")
	}
	return nil
}

func (o Options) config() pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: o.AppName,
		ServerAddress:   o.ServerAddress,
		TenantID:        o.TenantID,
		Tags:            o.Tags,
		ProfileTypes:    profileTypes,
	}
}

// Start begins profiling and returns its stop function. When disabled it
// returns a no-op stop and a nil error.
func Start(ctx context.Context, opts Options) (func(), error) {
	L := log.FromContext(ctx)
	if !opts.Enabled {
		L.Info(ctx, "pyroscope disabled")
		return func() {}, nil
	}
	if err := opts.validate(); err != nil {
		return func() {}, err
	}

	if opts.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(opts.MutexProfileFraction)
	}
	if opts.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(opts.BlockProfileRate)
	}

	p, err := pyroscope.Start(opts.config())
	if err != nil {
		return func() {}, xerrors.Wrapf(err, "start pyroscope server=%s", opts.ServerAddress)
	}
	L.Info(ctx, "pyroscope started", "server_address", opts.ServerAddress, "app_name", opts.AppName)

	return func() {
		if err := p.Stop(); err != nil {
			L.Error(context.Background(), err, "pyroscope stop")
			return
		}
		L.Info(context.Background(), "pyroscope stopped")
	}, nil
}
