// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"promptdeck/internal/models"
	"promptdeck/internal/remote"
)

// subscription drives one partition: attach, apply, reconnect.
type subscription struct {
	m      *Manager
	part   models.Partition
	path   string
	sink   sink
	logger *slog.Logger

	refs int // guarded by m.mu

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	live     chan struct{}
	liveOnce sync.Once
	stopOnce sync.Once

	// applyMu serializes diff application against stop so nothing is
	// applied once stop has returned.
	applyMu sync.Mutex
	stopped bool

	stateMu    sync.Mutex
	state      State
	lastSync   time.Time
	lastErr    error
	terminal   error
	reconnects int
}

func (m *Manager) newSubscription(p models.Partition) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		m:      m,
		part:   p,
		path:   p.Path(),
		logger: m.logger.With("path", p.Path()),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		live:   make(chan struct{}),
	}
	switch p.Resource {
	case models.ResourcePrompts:
		s.sink = &recordSink{repo: m.records, tax: m.taxonomy, scope: p.Scope}
	default:
		s.sink = &categorySink{store: m.taxonomy, scope: p.Scope}
	}
	return s
}

func (s *subscription) resource() string {
	return string(s.part.Resource)
}

func (s *subscription) run() {
	defer close(s.done)
	defer s.setState(Idle, nil)

	b := s.m.cfg.backoff()
	for {
		s.setState(Connecting, nil)
		synced, err := s.serve()
		if s.ctx.Err() != nil {
			return
		}

		if errors.Is(err, remote.ErrPermissionRevoked) {
			s.revoke(err)
			return
		}

		reconnects.WithLabelValues(s.resource()).Inc()
		s.stateMu.Lock()
		s.reconnects++
		s.stateMu.Unlock()

		// A stream that reached live resets the retry budget.
		if synced {
			b = s.m.cfg.backoff()
		}
		delay, exhausted := b.Next()
		if exhausted {
			s.setState(Stalled, err)
			s.logger.Warn("partition sync stalled, serving stale data",
				"error", err, "cooldown", s.m.cfg.StallCooldown)
			if !s.sleep(s.m.cfg.StallCooldown) {
				return
			}
			b = s.m.cfg.backoff()
			continue
		}

		s.setState(Connecting, err)
		s.logger.Info("partition stream failed, retrying", "error", err, "delay", delay)
		if !s.sleep(delay) {
			return
		}
	}
}

// serve attaches once and applies events until the stream ends. It
// reports whether a snapshot was applied.
func (s *subscription) serve() (bool, error) {
	ch, err := s.m.transport.Attach(s.ctx, s.path)
	if err != nil {
		return false, err
	}
	defer s.m.transport.Detach(s.path)

	synced := false
	for {
		select {
		case <-s.ctx.Done():
			return synced, s.ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return synced, errStreamEnded
			}
			switch ev.Kind {
			case remote.EventSnapshot:
				if !s.applySnapshot(ev.Entries) {
					return synced, s.ctx.Err()
				}
				synced = true
				snapshotsReceived.WithLabelValues(s.resource()).Inc()
				s.markLive()
			case remote.EventPatch:
				if !s.applyPatch(ev.Key, ev.Value) {
					return synced, s.ctx.Err()
				}
			case remote.EventError:
				if ev.Err == nil {
					return synced, errStreamEnded
				}
				return synced, ev.Err
			}
		}
	}
}

// applySnapshot replaces the partition with entries: local ids missing
// from the snapshot are removed, every entry is upserted. It returns false
// if the subscription was stopped.
func (s *subscription) applySnapshot(entries map[string]json.RawMessage) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.stopped {
		return false
	}

	known := make(map[string]bool)
	for _, k := range s.sink.keys() {
		known[k] = true
		if _, ok := entries[k]; !ok {
			s.count(s.sink.remove(k), models.DiffRemoved)
		}
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind := models.DiffAdded
		if known[k] {
			kind = models.DiffUpdated
		}
		s.upsert(k, entries[k], kind)
	}
	return true
}

func (s *subscription) applyPatch(key string, value json.RawMessage) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.stopped {
		return false
	}
	if value == nil {
		s.count(s.sink.remove(key), models.DiffRemoved)
		return true
	}
	s.upsert(key, value, models.DiffUpdated)
	return true
}

func (s *subscription) upsert(key string, raw json.RawMessage, kind models.DiffKind) {
	changed, err := s.sink.upsert(key, raw, kind)
	if err != nil {
		decodeFailures.WithLabelValues(s.resource()).Inc()
		s.logger.Warn("skipping undecodable document", "key", key, "error", err)
		return
	}
	s.count(changed, kind)
}

func (s *subscription) count(changed bool, kind models.DiffKind) {
	if changed {
		diffsApplied.WithLabelValues(s.resource(), string(kind)).Inc()
	}
}

// revoke clears the partition after access was withdrawn.
func (s *subscription) revoke(err error) {
	s.applyMu.Lock()
	if !s.stopped {
		s.sink.clear()
	}
	s.applyMu.Unlock()

	s.stateMu.Lock()
	s.terminal = err
	s.lastErr = err
	s.stateMu.Unlock()

	s.m.forget(s)
	s.logger.Warn("partition access revoked, local copy cleared")
}

// stop cancels the run loop and waits for it to detach. Safe to call
// more than once.
func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.applyMu.Lock()
		s.stopped = true
		s.applyMu.Unlock()
	})
	<-s.done
}

func (s *subscription) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *subscription) markLive() {
	s.stateMu.Lock()
	prev := s.state
	s.state = Live
	s.lastSync = time.Now()
	s.lastErr = nil
	s.stateMu.Unlock()

	if prev != Live {
		livePartitions.Inc()
		s.logger.Info("partition live")
	}
	s.liveOnce.Do(func() { close(s.live) })
}

func (s *subscription) setState(st State, err error) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	if err != nil {
		s.lastErr = err
	}
	s.stateMu.Unlock()

	if prev == Live && st != Live {
		livePartitions.Dec()
	}
}

func (s *subscription) currentState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *subscription) terminalErr() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.terminal
}

// endErr is what a finished subscription reports to waiters.
func (s *subscription) endErr() error {
	if err := s.terminalErr(); err != nil {
		return err
	}
	return errStreamEnded
}

func (s *subscription) status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := Status{
		Path:       s.path,
		State:      s.state.String(),
		LastSync:   s.lastSync,
		Reconnects: s.reconnects,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
