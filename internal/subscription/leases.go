// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"promptdeck/internal/models"
)

// Leases keeps the private partitions of recently active owners
// subscribed. A lease holds one handle per private partition and is
// released when the owner has been idle for the TTL or when the LRU
// overflows.
//
// The LRU runs its eviction callback with its own lock held, so the
// callback only queues the lease. Evictions caused by Acquire or Close are
// released by that call after mu is dropped; expiries found by the LRU's
// reaper are released by a background goroutine.
type Leases struct {
	m   *Manager
	mu  sync.Mutex
	lru *expirable.LRU[uuid.UUID, *lease]

	closed bool // guarded by mu

	evMu     sync.Mutex
	catching bool
	caught   []*lease
	expired  []*lease

	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

type lease struct {
	handles []*Handle
}

func (l *lease) release() {
	for _, h := range l.handles {
		h.Release()
	}
}

// ended reports whether any leased subscription has stopped, for example
// because access to the partition was revoked.
func (l *lease) ended() bool {
	for _, h := range l.handles {
		select {
		case <-h.sub.done:
			return true
		default:
		}
	}
	return false
}

// NewLeases creates a lease table over m holding at most size owners.
func NewLeases(m *Manager, size int, ttl time.Duration) *Leases {
	l := &Leases{
		m:    m,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	l.lru = expirable.NewLRU[uuid.UUID, *lease](size, l.onEvict, ttl)
	l.wg.Add(1)
	go l.reap()
	return l
}

func (l *Leases) onEvict(_ uuid.UUID, e *lease) {
	l.evMu.Lock()
	defer l.evMu.Unlock()
	if l.catching {
		l.caught = append(l.caught, e)
		return
	}
	l.expired = append(l.expired, e)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// evictions runs fn against the LRU and returns the leases it evicted.
// The caller holds mu.
func (l *Leases) evictions(fn func()) []*lease {
	l.evMu.Lock()
	l.catching = true
	l.evMu.Unlock()

	fn()

	l.evMu.Lock()
	defer l.evMu.Unlock()
	out := l.caught
	l.caught, l.catching = nil, false
	return out
}

func (l *Leases) takeExpired() []*lease {
	l.evMu.Lock()
	defer l.evMu.Unlock()
	out := l.expired
	l.expired = nil
	return out
}

func (l *Leases) reap() {
	defer l.wg.Done()
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
			releaseAll(l.takeExpired())
		}
	}
}

// Acquire subscribes the private prompt and category partitions of owner
// if they are not already leased, and restarts the idle TTL. A lease whose
// subscriptions have ended is replaced. It waits for both partitions to go
// live until ctx is done.
func (l *Leases) Acquire(ctx context.Context, owner uuid.UUID) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}

	// Peek reports an expired entry as missing even before the reaper
	// removes it; Remove then evicts that entry so its handles are released.
	cur, ok := l.lru.Peek(owner)
	stale := !ok || cur.ended()
	var err error
	if stale {
		cur, err = l.subscribe(owner)
	}
	evicted := l.evictions(func() {
		if stale {
			l.lru.Remove(owner)
		}
		if err == nil {
			l.lru.Add(owner, cur)
		}
	})
	l.mu.Unlock()

	releaseAll(evicted)
	if err != nil {
		return err
	}
	return waitAll(ctx, cur.handles)
}

func (l *Leases) subscribe(owner uuid.UUID) (*lease, error) {
	e := &lease{}
	for _, res := range []models.Resource{models.ResourceCategories, models.ResourcePrompts} {
		h, err := l.m.Subscribe(models.PrivatePartition(res, owner))
		if err != nil {
			e.release()
			return nil, fmt.Errorf("lease private partitions: %w", err)
		}
		e.handles = append(e.handles, h)
	}
	return e, nil
}

// Len returns the number of leased owners.
func (l *Leases) Len() int {
	return l.lru.Len()
}

// Close releases every lease and stops the background release loop.
// Acquire fails with ErrClosed afterwards.
func (l *Leases) Close() {
	l.mu.Lock()
	l.closed = true
	evicted := l.evictions(l.lru.Purge)
	l.mu.Unlock()

	releaseAll(evicted)
	l.quitOnce.Do(func() { close(l.quit) })
	l.wg.Wait()
	releaseAll(l.takeExpired())
}

func releaseAll(leases []*lease) {
	for _, e := range leases {
		e.release()
	}
}

func waitAll(ctx context.Context, handles []*Handle) error {
	for _, h := range handles {
		if err := h.WaitLive(ctx); err != nil {
			return fmt.Errorf("wait %s: %w", h.Partition().Path(), err)
		}
	}
	return nil
}
