// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptdeck/internal/apperr"
	"promptdeck/internal/models"
)

// Memory is an in-process remote store. It keeps raw JSON documents per
// partition path, the way a hosted real-time database does, and streams
// changes to attached subscribers in write order. It backs the memory
// deployment mode and every core test.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]map[string]json.RawMessage
	likes    map[likeKey]time.Time
	attached map[string]*mailbox
	blocked  map[string]error
	now      func() time.Time
}

type likeKey struct {
	actor  uuid.UUID
	prompt uuid.UUID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]map[string]json.RawMessage),
		likes:    make(map[likeKey]time.Time),
		attached: make(map[string]*mailbox),
		blocked:  make(map[string]error),
		now:      time.Now,
	}
}

// Attach implements Transport. The first event is always a snapshot.
func (m *Memory) Attach(ctx context.Context, path string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := models.ParsePartition(path); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.blocked[path]; err != nil {
		return nil, fmt.Errorf("attach %s: %w", path, err)
	}
	if old := m.attached[path]; old != nil {
		old.stop()
	}

	entries := make(map[string]json.RawMessage, len(m.docs[path]))
	for k, v := range m.docs[path] {
		entries[k] = v
	}
	mb := newMailbox()
	mb.push(Event{Kind: EventSnapshot, Entries: entries}, false)
	m.attached[path] = mb
	return mb.out, nil
}

// Detach implements Transport.
func (m *Memory) Detach(path string) {
	m.mu.Lock()
	mb := m.attached[path]
	delete(m.attached, path)
	m.mu.Unlock()

	if mb != nil {
		mb.stop()
	}
}

// Fail ends the current stream on path with a transport error. Later
// attaches succeed.
func (m *Memory) Fail(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mb := m.attached[path]; mb != nil {
		mb.push(Event{Kind: EventError, Err: err}, true)
	}
}

// Block makes every Attach on path fail with err until Restore is called.
func (m *Memory) Block(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[path] = err
}

// Revoke ends the current stream on path with ErrPermissionRevoked and
// refuses new attaches until Restore is called.
func (m *Memory) Revoke(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[path] = ErrPermissionRevoked
	if mb := m.attached[path]; mb != nil {
		mb.push(Event{Kind: EventError, Err: ErrPermissionRevoked}, true)
	}
}

// Restore lifts a Block or Revoke on path.
func (m *Memory) Restore(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, path)
}

// PutRaw stores a document as-is and publishes it. A nil doc removes the
// key. It exists to load records written by older clients.
func (m *Memory) PutRaw(path, key string, doc json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc == nil {
		m.removeLocked(path, key)
		return
	}
	m.putLocked(path, key, doc)
}

func (m *Memory) putLocked(path, key string, doc json.RawMessage) {
	part := m.docs[path]
	if part == nil {
		part = make(map[string]json.RawMessage)
		m.docs[path] = part
	}
	part[key] = doc
	if mb := m.attached[path]; mb != nil {
		mb.push(Event{Kind: EventPatch, Key: key, Value: doc}, false)
	}
}

func (m *Memory) removeLocked(path, key string) bool {
	if _, ok := m.docs[path][key]; !ok {
		return false
	}
	delete(m.docs[path], key)
	if mb := m.attached[path]; mb != nil {
		mb.push(Event{Kind: EventPatch, Key: key}, false)
	}
	return true
}

// findPromptLocked returns the path holding the prompt and its decoded form.
func (m *Memory) findPromptLocked(id uuid.UUID) (string, *models.Prompt, error) {
	key := id.String()
	for path, part := range m.docs {
		if !strings.HasPrefix(path, string(models.ResourcePrompts)+"/") {
			continue
		}
		doc, ok := part[key]
		if !ok {
			continue
		}
		var p models.Prompt
		if err := json.Unmarshal(doc, &p); err != nil {
			return "", nil, fmt.Errorf("decode prompt %s: %w", key, err)
		}
		return path, &p, nil
	}
	return "", nil, fmt.Errorf("prompt %s: %w", key, apperr.ErrNotFound)
}

func (m *Memory) storePromptLocked(p *models.Prompt) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prompt: %w", err)
	}
	m.putLocked(models.Partition{Resource: models.ResourcePrompts, Scope: p.Scope()}.Path(), p.ID.String(), doc)
	return nil
}

// GetPrompt implements Writer.
func (m *Memory) GetPrompt(_ context.Context, id uuid.UUID) (*models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p, err := m.findPromptLocked(id)
	return p, err
}

// PutPrompt implements Writer. Replacing a prompt keeps its stored like
// and download counts: those belong to ToggleLike and IncrementDownloads,
// and p may have been read before one of them ran.
func (m *Memory) PutPrompt(_ context.Context, p *models.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := p.Clone()
	stored.LikeCount = max(stored.LikeCount, 0)
	stored.DownloadCount = max(stored.DownloadCount, 0)
	stored.Revision = 1

	target := models.Partition{Resource: models.ResourcePrompts, Scope: p.Scope()}.Path()
	if path, cur, err := m.findPromptLocked(p.ID); err == nil {
		stored.LikeCount = cur.LikeCount
		stored.DownloadCount = cur.DownloadCount
		stored.Revision = cur.Revision + 1
		if path != target {
			m.removeLocked(path, p.ID.String())
		}
	}
	return m.storePromptLocked(stored)
}

// DeletePrompt implements Writer. Likes of the prompt go with it.
func (m *Memory) DeletePrompt(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, _, err := m.findPromptLocked(id)
	if err != nil {
		return err
	}
	m.removeLocked(path, id.String())
	for k := range m.likes {
		if k.prompt == id {
			delete(m.likes, k)
		}
	}
	return nil
}

// ToggleLike implements Writer.
func (m *Memory) ToggleLike(_ context.Context, actorID, promptID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, p, err := m.findPromptLocked(promptID)
	if err != nil {
		return false, err
	}
	k := likeKey{actor: actorID, prompt: promptID}
	_, liked := m.likes[k]
	if liked {
		delete(m.likes, k)
		p.LikeCount = max(p.LikeCount-1, 0)
	} else {
		m.likes[k] = m.now()
		p.LikeCount++
	}
	p.Revision++
	if err := m.storePromptLocked(p); err != nil {
		return false, err
	}
	return !liked, nil
}

// Liked reports whether the (actor, prompt) pair is in the like relation.
func (m *Memory) Liked(actorID, promptID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.likes[likeKey{actor: actorID, prompt: promptID}]
	return ok
}

// IncrementDownloads implements Writer.
func (m *Memory) IncrementDownloads(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, p, err := m.findPromptLocked(id)
	if err != nil {
		return err
	}
	p.DownloadCount++
	p.Revision++
	return m.storePromptLocked(p)
}

func categoryPath(scope models.Scope) string {
	return models.Partition{Resource: models.ResourceCategories, Scope: scope}.Path()
}

func (m *Memory) getCategoryLocked(scope models.Scope, id string) (*models.Category, error) {
	doc, ok := m.docs[categoryPath(scope)][id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	var c models.Category
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decode category %s: %w", id, err)
	}
	return &c, nil
}

func (m *Memory) storeCategoryLocked(c *models.Category) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode category: %w", err)
	}
	m.putLocked(categoryPath(c.Scope()), c.ID, doc)
	return nil
}

// GetCategory implements Writer.
func (m *Memory) GetCategory(_ context.Context, scope models.Scope, id string) (*models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCategoryLocked(scope, id)
}

// PutCategory implements Writer. Replacing a category keeps its stored
// item count, which only IncrementCategoryCount moves.
func (m *Memory) PutCategory(_ context.Context, c *models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := c.Clone()
	stored.ItemCount = max(stored.ItemCount, 0)
	stored.Revision = 1
	if cur, err := m.getCategoryLocked(c.Scope(), c.ID); err == nil {
		stored.ItemCount = cur.ItemCount
		stored.Revision = cur.Revision + 1
	}
	return m.storeCategoryLocked(stored)
}

// DeleteCategory implements Writer. Subcategories live inside the
// category document, so removing it removes them too.
func (m *Memory) DeleteCategory(_ context.Context, scope models.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.removeLocked(categoryPath(scope), id) {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// IncrementCategoryCount implements Writer.
func (m *Memory) IncrementCategoryCount(_ context.Context, scope models.Scope, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.getCategoryLocked(scope, id)
	if err != nil {
		return err
	}
	c.ItemCount = max(c.ItemCount+delta, 0)
	c.Revision++
	return m.storeCategoryLocked(c)
}

// mailbox delivers events to one subscriber in order without ever blocking
// the writer. A sealed mailbox accepts no more events and closes its
// channel once drained.
type mailbox struct {
	mu     sync.Mutex
	queue  []Event
	sealed bool

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	out      chan Event
}

func newMailbox() *mailbox {
	mb := &mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan Event),
	}
	go mb.run()
	return mb
}

func (mb *mailbox) push(ev Event, last bool) {
	mb.mu.Lock()
	if mb.sealed {
		mb.mu.Unlock()
		return
	}
	mb.queue = append(mb.queue, ev)
	mb.sealed = last
	mb.mu.Unlock()

	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

func (mb *mailbox) stop() {
	mb.stopOnce.Do(func() { close(mb.done) })
}

func (mb *mailbox) run() {
	defer close(mb.out)
	for {
		mb.mu.Lock()
		if len(mb.queue) == 0 {
			sealed := mb.sealed
			mb.mu.Unlock()
			if sealed {
				return
			}
			select {
			case <-mb.wake:
				continue
			case <-mb.done:
				return
			}
		}
		ev := mb.queue[0]
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()

		select {
		case mb.out <- ev:
		case <-mb.done:
			return
		}
	}
}
