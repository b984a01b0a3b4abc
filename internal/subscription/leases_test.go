// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"promptdeck/internal/models"
	"promptdeck/internal/remote"
)

func TestLeaseSubscribesPrivatePartitions(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	owner := uuid.New()
	f.mem.PutPrompt(ctx, newPrompt(owner, models.VisibilityPrivate, "mine"))

	leases := NewLeases(f.m, 8, time.Hour)
	defer leases.Close()

	if err := leases.Acquire(ctx, owner); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := leases.Acquire(ctx, owner); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if leases.Len() != 1 {
		t.Errorf("Len() = %d, want 1", leases.Len())
	}
	if n := len(f.repo.Keys(models.PrivateScope(owner))); n != 1 {
		t.Errorf("%d private records materialized, want 1", n)
	}
	for _, st := range f.m.Status() {
		if st.Refs != 1 {
			t.Errorf("%s has %d refs, want 1", st.Path, st.Refs)
		}
	}

	leases.Close()
	if len(f.m.Status()) != 0 {
		t.Errorf("Status() = %+v after Close, want none", f.m.Status())
	}
}

func TestLeaseExpiresWhenIdle(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	leases := NewLeases(f.m, 8, 30*time.Millisecond)
	defer leases.Close()

	if err := leases.Acquire(ctx, uuid.New()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(f.m.Status()) != 2 {
		t.Fatalf("Status() = %+v, want two private partitions", f.m.Status())
	}
	eventually(t, "lease expiry", func() bool { return len(f.m.Status()) == 0 })
}

func TestLeaseEvictsOldestOwner(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	leases := NewLeases(f.m, 1, time.Hour)
	defer leases.Close()

	a, b := uuid.New(), uuid.New()
	leases.Acquire(ctx, a)
	leases.Acquire(ctx, b)

	for _, st := range f.m.Status() {
		p, err := models.ParsePartition(st.Path)
		if err != nil {
			t.Fatalf("ParsePartition: %v", err)
		}
		if p.Scope.Owner != b {
			t.Errorf("partition %s still subscribed after eviction", st.Path)
		}
	}
}

func TestLeaseReacquireAroundExpiryLeaksNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const ttl = 100 * time.Millisecond
	leases := NewLeases(f.m, 8, ttl)
	defer leases.Close()

	owner := uuid.New()
	for i := 0; i < 5; i++ {
		if err := leases.Acquire(ctx, owner); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		// Land just past the deadline, before the reaper gets to the entry.
		time.Sleep(ttl + ttl/200)
	}
	if err := leases.Acquire(ctx, owner); err != nil {
		t.Fatalf("final Acquire: %v", err)
	}
	eventually(t, "one reference per partition", func() bool {
		st := f.m.Status()
		for _, s := range st {
			if s.Refs != 1 {
				return false
			}
		}
		return len(st) == 2
	})

	leases.Close()
	if st := f.m.Status(); len(st) != 0 {
		t.Errorf("Status() = %+v after Close, want none", st)
	}
}

func TestLeaseResubscribesRevokedPartition(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	owner := uuid.New()
	scope := models.PrivateScope(owner)
	path := models.PrivatePartition(models.ResourcePrompts, owner).Path()
	f.mem.PutPrompt(ctx, newPrompt(owner, models.VisibilityPrivate, "mine"))

	leases := NewLeases(f.m, 8, time.Hour)
	defer leases.Close()

	if err := leases.Acquire(ctx, owner); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	f.mem.Revoke(path)
	eventually(t, "revoked partition cleared", func() bool {
		return len(f.repo.Keys(scope)) == 0 && len(f.m.Status()) == 1
	})

	if err := leases.Acquire(ctx, owner); !errors.Is(err, remote.ErrPermissionRevoked) {
		t.Fatalf("Acquire while revoked = %v, want ErrPermissionRevoked", err)
	}

	f.mem.Restore(path)
	if err := leases.Acquire(ctx, owner); err != nil {
		t.Fatalf("Acquire after restore: %v", err)
	}
	if n := len(f.repo.Keys(scope)); n != 1 {
		t.Errorf("%d private records after restore, want 1", n)
	}
	if leases.Len() != 1 {
		t.Errorf("Len() = %d, want 1", leases.Len())
	}
	for _, st := range f.m.Status() {
		if st.Refs != 1 || st.State != Live.String() {
			t.Errorf("%s: refs %d state %s, want 1 live", st.Path, st.Refs, st.State)
		}
	}
}

// stallingTransport holds Detach for one path until released.
type stallingTransport struct {
	*remote.Memory
	path    string
	entered chan struct{}
	proceed chan struct{}
	once    sync.Once
}

func (s *stallingTransport) Detach(path string) {
	if path == s.path {
		s.once.Do(func() {
			close(s.entered)
			<-s.proceed
		})
	}
	s.Memory.Detach(path)
}

func TestLeaseEvictionReleasesOutsideLRULock(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a, b := uuid.New(), uuid.New()
	tr := &stallingTransport{
		Memory:  f.mem,
		path:    models.PrivatePartition(models.ResourceCategories, a).Path(),
		entered: make(chan struct{}),
		proceed: make(chan struct{}),
	}
	m := NewManager(tr, f.repo, f.tax, Config{
		BaseDelay: 2 * time.Millisecond, MaxDelay: 10 * time.Millisecond,
		MaxRetries: 3, StallCooldown: 40 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer m.Close()

	leases := NewLeases(m, 1, time.Hour)
	defer leases.Close()

	if err := leases.Acquire(ctx, a); err != nil {
		t.Fatalf("Acquire(a): %v", err)
	}
	acquired := make(chan error, 1)
	go func() { acquired <- leases.Acquire(ctx, b) }()

	select {
	case <-tr.entered:
	case <-ctx.Done():
		t.Fatal("evicted lease was never released")
	}

	// The release of a is stuck in Detach; the LRU must stay usable.
	lenDone := make(chan int, 1)
	go func() { lenDone <- leases.Len() }()
	select {
	case n := <-lenDone:
		if n != 1 {
			t.Errorf("Len() = %d during release, want 1", n)
		}
	case <-time.After(time.Second):
		t.Error("Len() blocked while an evicted lease was being released")
	}

	close(tr.proceed)
	if err := <-acquired; err != nil {
		t.Fatalf("Acquire(b): %v", err)
	}
	for _, st := range m.Status() {
		p, err := models.ParsePartition(st.Path)
		if err != nil {
			t.Fatalf("ParsePartition: %v", err)
		}
		if p.Scope.Owner != b {
			t.Errorf("partition %s still subscribed after eviction", st.Path)
		}
	}
}
