// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package subscription keeps the local record repository and taxonomy
// store in step with the remote store. It owns one long-lived
// subscription per partition, converts snapshots and patches into typed
// diffs, and retries transport failures with capped exponential backoff
// without ever clearing local state for them.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"promptdeck/internal/models"
	"promptdeck/internal/records"
	"promptdeck/internal/remote"
	"promptdeck/internal/taxonomy"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("subscription manager closed")

// errStreamEnded is the transient error used when a stream closes without
// reporting why.
var errStreamEnded = errors.New("stream ended")

// State is the lifecycle state of one partition subscription.
type State int

const (
	Idle State = iota
	Connecting
	Live
	// Stalled means retries were exhausted. Local data is still served; a
	// new retry cycle starts after the stall cooldown.
	Stalled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Live:
		return "live"
	case Stalled:
		return "stalled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config tunes reconnect behavior.
type Config struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetries    uint64
	StallCooldown time.Duration
}

// DefaultConfig returns the production reconnect settings.
func DefaultConfig() Config {
	return Config{
		BaseDelay:     250 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		MaxRetries:    8,
		StallCooldown: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.StallCooldown <= 0 {
		c.StallCooldown = d.StallCooldown
	}
	return c
}

func (c Config) backoff() retry.Backoff {
	b := retry.NewExponential(c.BaseDelay)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(c.MaxDelay, b)
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// Manager owns every partition subscription. It is the only component
// that calls ApplyDiff on the record repository and the taxonomy store.
type Manager struct {
	transport remote.Transport
	records   *records.Repository
	taxonomy  *taxonomy.Store
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	closing map[string]chan struct{}
	closed  bool
}

// NewManager creates a manager feeding recs and tax from t.
func NewManager(t remote.Transport, recs *records.Repository, tax *taxonomy.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport: t,
		records:   recs,
		taxonomy:  tax,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "subscription"),
		subs:      make(map[string]*subscription),
		closing:   make(map[string]chan struct{}),
	}
}

// Subscribe returns a handle on the subscription for p, starting it if
// none is active. A second call for the same partition returns a handle
// on the same subscription; it is torn down when the last handle is
// released. Subscribe does not wait for the first snapshot; use
// Handle.WaitLive for that.
func (m *Manager) Subscribe(p models.Partition) (*Handle, error) {
	path := p.Path()
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}
		if s, ok := m.subs[path]; ok {
			s.refs++
			m.mu.Unlock()
			return &Handle{sub: s}, nil
		}
		// A previous subscription on the path is still detaching.
		if done, ok := m.closing[path]; ok {
			m.mu.Unlock()
			<-done
			continue
		}

		s := m.newSubscription(p)
		s.refs = 1
		m.subs[path] = s
		m.mu.Unlock()

		go s.run()
		m.logger.Debug("partition subscribed", "path", path)
		return &Handle{sub: s}, nil
	}
}

// release drops one reference to s and stops it when none remain.
func (m *Manager) release(s *subscription) {
	m.mu.Lock()
	s.refs--
	if s.refs > 0 {
		m.mu.Unlock()
		return
	}
	// A subscription that ended on its own was already forgotten and
	// detached; only the mapped one can race a new Subscribe on the path.
	mapped := m.subs[s.path] == s
	if mapped {
		delete(m.subs, s.path)
		m.closing[s.path] = s.done
	}
	m.mu.Unlock()

	s.stop()

	if mapped {
		m.mu.Lock()
		if m.closing[s.path] == s.done {
			delete(m.closing, s.path)
		}
		m.mu.Unlock()
	}
	m.logger.Debug("partition released", "path", s.path)
}

// forget removes s from the active set without stopping it. Used when a
// subscription ends on its own after permission revocation.
func (m *Manager) forget(s *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[s.path] == s {
		delete(m.subs, s.path)
	}
}

// Close stops every subscription and waits for them to finish. Local state
// is left as it was. Outstanding handles become inert.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for path, s := range m.subs {
		subs = append(subs, s)
		delete(m.subs, path)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stop()
		}()
	}
	wg.Wait()
	m.logger.Info("subscription manager closed", "partitions", len(subs))
}

// Status describes one subscription for diagnostics.
type Status struct {
	Path       string    `json:"path"`
	State      string    `json:"state"`
	Refs       int       `json:"refs"`
	LastSync   time.Time `json:"last_sync,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Reconnects int       `json:"reconnects"`
}

// Status returns the state of every active subscription ordered by path.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	subs := make([]*subscription, 0, len(m.subs))
	refs := make(map[*subscription]int, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
		refs[s] = s.refs
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(subs))
	for _, s := range subs {
		st := s.status()
		st.Refs = refs[s]
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Handle is one reference to a partition subscription.
type Handle struct {
	sub  *subscription
	once sync.Once
}

// Partition returns the partition the handle refers to.
func (h *Handle) Partition() models.Partition {
	return h.sub.part
}

// State returns the current state of the subscription.
func (h *Handle) State() State {
	return h.sub.currentState()
}

// WaitLive blocks until the first snapshot has been applied. A
// subscription that has already ended reports why, even if it was live
// before: the terminal error after revocation, or a stream-ended error
// after it was stopped.
func (h *Handle) WaitLive(ctx context.Context) error {
	select {
	case <-h.sub.done:
		return h.sub.endErr()
	default:
	}
	select {
	case <-h.sub.live:
		return nil
	case <-h.sub.done:
		return h.sub.endErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release drops this handle's reference. When it was the last one, the
// subscription is detached before Release returns and no further diffs
// are applied. Calling Release more than once is safe. Release must not
// be called from a repository observer.
func (h *Handle) Release() {
	h.once.Do(func() { h.sub.m.release(h.sub) })
}
