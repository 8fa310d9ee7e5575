// Package clock supplies the time used for all deadline math: the local
// clock corrected by a measured offset against a reference server.
package clock

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Source returns the current best-effort synchronized time.
type Source interface {
	Now() time.Time
}

// Local is the plain process clock.
type Local struct{}

// Now returns time.Now.
func (Local) Now() time.Time { return time.Now() }

// Synced is the local clock plus an offset measured against the Date header
// of a reference HTTP server. Until a measurement succeeds the offset is zero.
type Synced struct {
	referenceURL string
	client       *http.Client
	local        func() time.Time
	offset       atomic.Int64
}

// NewSynced creates a clock that measures against referenceURL. An empty
// URL yields a clock that never leaves the local time.
func NewSynced(referenceURL string) *Synced {
	return &Synced{
		referenceURL: referenceURL,
		client:       &http.Client{Timeout: 5 * time.Second},
		local:        time.Now,
	}
}

// Now returns the corrected time.
func (c *Synced) Now() time.Time {
	return c.local().Add(c.Offset())
}

// Offset returns the last measured offset.
func (c *Synced) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// Sync measures the offset once. On failure the previous offset is kept.
func (c *Synced) Sync(ctx context.Context) error {
	if c.referenceURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.referenceURL, nil)
	if err != nil {
		return fmt.Errorf("build clock request: %w", err)
	}

	sent := c.local()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("query reference clock: %w", err)
	}
	received := c.local()
	resp.Body.Close()

	server, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return fmt.Errorf("parse reference date: %w", err)
	}

	// Date has second resolution; assume the server stamped it mid-flight.
	rtt := received.Sub(sent)
	offset := server.Add(rtt / 2).Sub(received)
	c.offset.Store(int64(offset))
	return nil
}

// Run re-measures every interval until ctx is done. Failures degrade to the
// last known offset (zero on first failure) and are only logged.
func (c *Synced) Run(ctx context.Context, interval time.Duration) {
	if c.referenceURL == "" {
		return
	}
	measure := func() {
		if err := c.Sync(ctx); err != nil {
			log.Warn().Err(err).Dur("offset", c.Offset()).Msg("clock sync unavailable, using local clock")
			return
		}
		log.Debug().Dur("offset", c.Offset()).Msg("clock offset updated")
	}

	measure()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			measure()
		}
	}
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock set to now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set replaces the fake time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
