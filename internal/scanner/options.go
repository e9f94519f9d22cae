package scanner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keithlinneman/secretmark/internal/codec"
	"github.com/keithlinneman/secretmark/internal/log"
)

var ErrInvalidOptions = errors.New("scanner: invalid options")

// DefaultContainerClasses mark elements holding author-submitted text.
var DefaultContainerClasses = []string{"cooked", "excerpt"}

// ScanMetrics is satisfied by *metrics.ServerMetrics.
type ScanMetrics interface {
	ObserveScan(d time.Duration, processed, skipped, replacements int)
}

type Options struct {
	// Codec defaults to codec.New().
	Codec *codec.Codec

	// Key encodes and decodes every marker. Empty means the codec's
	// default key.
	Key string

	// ContainerClasses defaults to DefaultContainerClasses.
	ContainerClasses []string

	Logger  log.Logger
	Metrics ScanMetrics
}

func (o *Options) setDefaults() {
	if o.Codec == nil {
		o.Codec = codec.New()
	}
	if o.Key == "" {
		o.Key = o.Codec.DefaultKey()
	}
	if len(o.ContainerClasses) == 0 {
		o.ContainerClasses = DefaultContainerClasses
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

func (o *Options) validate() error {
	for _, c := range o.ContainerClasses {
		if c == "" || strings.ContainsAny(c, " \t\n\f\r") {
			return fmt.Errorf("%w: container class %q must be a single non-empty class name", ErrInvalidOptions, c)
		}
	}
	return nil
}
