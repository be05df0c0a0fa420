// Package correlator implements request/response correlation with TTL
// reaping (spec §4.6): a correlation id maps to a reply-to target until it
// is resolved or expires, whichever happens first.
package correlator

import (
	"sync"
	"time"

	"github.com/tenzoki/ipcbus/internal/errs"
)

type record struct {
	replyTo   string
	expiresAt time.Time
}

// Correlator tracks in-flight requests awaiting a response.
type Correlator struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]record

	stop chan struct{}
	done chan struct{}
}

// New builds a Correlator with the given TTL and reaper interval. If
// reapInterval is zero the background reaper is not started; reap() remains
// callable on demand.
func New(ttl, reapInterval time.Duration) *Correlator {
	c := &Correlator{
		ttl:     ttl,
		records: make(map[string]record),
	}
	if reapInterval > 0 {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.reapLoop(reapInterval)
	}
	return c
}

func (c *Correlator) reapLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Reap()
		case <-c.stop:
			return
		}
	}
}

// Stop halts the background reaper, if one is running, and waits for it to
// exit.
func (c *Correlator) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
}

// RegisterRequest inserts a new correlation record under id. ErrCorrelationExists
// is returned if id is already registered.
func (c *Correlator) RegisterRequest(id, replyTo string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; exists {
		return errs.ErrCorrelationExists
	}
	c.records[id] = record{replyTo: replyTo, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// Resolve removes and returns the reply-to target registered under id.
// Resolution is idempotent: a second call for the same id returns
// ErrCorrelationNotFound. A record found past its expiry returns
// ErrRequestTimedOut and is removed.
func (c *Correlator) Resolve(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, exists := c.records[id]
	if !exists {
		return "", errs.ErrCorrelationNotFound
	}
	delete(c.records, id)
	if time.Now().After(rec.expiresAt) {
		return "", errs.ErrRequestTimedOut
	}
	return rec.replyTo, nil
}

// Has reports whether id is present and unexpired.
func (c *Correlator) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, exists := c.records[id]
	if !exists {
		return false
	}
	return !time.Now().After(rec.expiresAt)
}

// Reap removes every expired record and returns the count removed. Safe to
// call concurrently with itself and with the background reaper.
func (c *Correlator) Reap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, rec := range c.records {
		if now.After(rec.expiresAt) {
			delete(c.records, id)
			removed++
		}
	}
	return removed
}
