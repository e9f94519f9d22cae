package content

import (
	"context"
	"fmt"
	"time"

	"github.com/keithlinneman/secretmark/internal/cryptoutil"
	"github.com/keithlinneman/secretmark/internal/log"
)

const (
	DefaultPollInterval = 30 * time.Second

	// maxBackoff caps exponential backoff on consecutive SSM errors.
	maxBackoff = 5 * time.Minute
)

type pollResult int

const (
	pollNoChange pollResult = iota
	pollSwapped
	pollSSMError
	pollLoadError
	pollValidationError
)

// BundleFetcher is what the Watcher needs from a Loader.
type BundleFetcher interface {
	FetchCurrentBundleHash(ctx context.Context) (string, error)
	LoadHash(ctx context.Context, hash string) (*Snapshot, error)
}

// WatcherMetrics is satisfied by *metrics.ServerMetrics.
type WatcherMetrics interface {
	IncWatcherPolls()
	IncWatcherSwaps()
	IncWatcherError(stage string)
	ObserveBundleLoadDuration(seconds float64)
	SetWatcherLastSuccess(unixSeconds float64)
	SetWatcherStale(stale bool)
}

type WatcherOptions struct {
	Logger       log.Logger
	Loader       BundleFetcher
	Manager      *Manager
	PollInterval time.Duration

	// Validation defaults to DefaultValidationOptions.
	Validation *ValidationOptions

	// OnSwap runs on the poll goroutine after the manager's subscribers.
	OnSwap func(hash, version string)

	Metrics WatcherMetrics

	// StaleThreshold defaults to 30 minutes.
	StaleThreshold time.Duration
}

// Watcher polls SSM and swaps in new bundles. Its fields are only touched
// from the Run goroutine.
type Watcher struct {
	loader     BundleFetcher
	manager    *Manager
	logger     log.Logger
	interval   time.Duration
	validation ValidationOptions
	onSwap     func(hash, version string)
	metrics    WatcherMetrics
	now        func() time.Time

	currentHash     string
	consecutiveErrs int

	staleThreshold time.Duration
	lastSuccessAt  time.Time
	staleLogged    bool

	pollCount int64
	swapCount int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 30 * time.Minute
	}
	validation := DefaultValidationOptions()
	if opts.Validation != nil {
		validation = *opts.Validation
	}

	// seed from the manager so the first poll does not reload the startup bundle
	current := ""
	if snap, ok := opts.Manager.Get(); ok {
		current = snap.Meta.SHA256
	}

	return &Watcher{
		loader:         opts.Loader,
		manager:        opts.Manager,
		logger:         opts.Logger,
		interval:       opts.PollInterval,
		validation:     validation,
		onSwap:         opts.OnSwap,
		metrics:        opts.Metrics,
		now:            time.Now,
		currentHash:    current,
		staleThreshold: opts.StaleThreshold,
		lastSuccessAt:  time.Now(),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content watcher starting",
		"poll_interval", w.interval.String(),
		"current_hash", truncHash(w.currentHash),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content watcher stopping",
				"reason", ctx.Err(),
				"polls", w.pollCount,
				"swaps", w.swapCount,
			)
			return ctx.Err()
		case <-ticker.C:
			if next, changed := w.afterPoll(ctx, w.checkOnce(ctx)); changed {
				ticker.Reset(next)
			}
		}
	}
}

// afterPoll updates backoff and staleness state and returns a new tick
// interval when it should change.
func (w *Watcher) afterPoll(ctx context.Context, result pollResult) (time.Duration, bool) {
	if result != pollSSMError {
		if w.staleLogged {
			w.logger.Info(ctx, "content watcher: staleness recovered")
			w.staleLogged = false
			if w.metrics != nil {
				w.metrics.SetWatcherStale(false)
			}
		}
		if w.consecutiveErrs == 0 {
			return 0, false
		}
		w.logger.Info(ctx, "content watcher: recovered, resuming normal interval",
			"had_consecutive_errors", w.consecutiveErrs,
		)
		w.consecutiveErrs = 0
		return w.interval, true
	}

	w.consecutiveErrs++
	backoff := w.backoffDuration()
	w.logger.Warn(ctx, "content watcher: backing off",
		"consecutive_errors", w.consecutiveErrs,
		"next_poll_in", backoff.String(),
	)

	if age := w.now().Sub(w.lastSuccessAt); age > w.staleThreshold && !w.staleLogged {
		w.logger.Error(ctx, fmt.Errorf("last successful SSM poll was %s ago", age.Truncate(time.Second)),
			"content watcher: content is stale, unable to verify freshness",
		)
		w.staleLogged = true
		if w.metrics != nil {
			w.metrics.SetWatcherStale(true)
		}
	}
	return backoff, true
}

// checkOnce performs one poll, compare and swap cycle.
func (w *Watcher) checkOnce(ctx context.Context) pollResult {
	w.pollCount++
	if w.metrics != nil {
		w.metrics.IncWatcherPolls()
	}

	hash, err := w.loader.FetchCurrentBundleHash(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: SSM poll failed")
		w.incError("ssm")
		return pollSSMError
	}

	now := w.now()
	w.lastSuccessAt = now
	if w.metrics != nil {
		w.metrics.SetWatcherLastSuccess(float64(now.Unix()))
	}

	if cryptoutil.HashEqual(hash, w.currentHash) {
		return pollNoChange
	}

	w.logger.Info(ctx, "content watcher: new bundle hash detected",
		"old_hash", truncHash(w.currentHash),
		"new_hash", truncHash(hash),
	)

	start := w.now()
	snap, err := w.loader.LoadHash(ctx, hash)
	if w.metrics != nil {
		w.metrics.ObserveBundleLoadDuration(w.now().Sub(start).Seconds())
	}
	if err != nil {
		w.logger.Error(ctx, err, "content watcher: failed to load bundle", "hash", truncHash(hash))
		w.incError("load")
		return pollLoadError
	}

	if err := ValidateSnapshot(snap, w.validation); err != nil {
		w.logger.Error(ctx, err, "content watcher: new bundle failed validation, keeping current content",
			"rejected_hash", truncHash(hash),
			"current_hash", truncHash(w.currentHash),
		)
		w.incError("validation")
		return pollValidationError
	}

	old := w.currentHash
	w.manager.Set(*snap)
	w.currentHash = hash
	w.swapCount++
	version := w.manager.ContentVersion()

	w.logger.Info(ctx, "content watcher: bundle swapped",
		"old_hash", truncHash(old),
		"new_hash", truncHash(hash),
		"version", version,
		"total_swaps", w.swapCount,
	)
	if w.metrics != nil {
		w.metrics.IncWatcherSwaps()
	}

	if w.onSwap != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error(ctx, fmt.Errorf("OnSwap panic: %v", r),
						"content watcher: OnSwap callback panicked, continuing",
						"hash", truncHash(hash),
					)
				}
			}()
			w.onSwap(hash, version)
		}()
	}
	return pollSwapped
}

func (w *Watcher) incError(stage string) {
	if w.metrics != nil {
		w.metrics.IncWatcherError(stage)
	}
}

// backoffDuration doubles the interval per consecutive error up to maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := w.interval
	for i := 0; i < w.consecutiveErrs && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// truncHash shortens a hash for logs.
func truncHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
