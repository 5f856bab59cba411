// Package store persists crawl sessions across the asynchronous callback
// boundary. Reads prefer an in-process cache and fall back to a durable
// backend; writes go through to the backend first and then update the cache,
// so the two never diverge after a write issued by this process.
//
// Handlers must hold the per-session lock (Lock) for the duration of a crawl
// step: the telephony provider may deliver a stale retry and a fresh callback
// concurrently, and serializing read-modify-write per session is what makes
// the full-record write safe.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/xdial/xdial/internal/session"
)

// ErrNotFound is returned when a session id exists in neither the cache nor
// the durable backend.
var ErrNotFound = errors.New("session not found")

// Backend is a durable key-value store for serialized sessions. Load returns
// ErrNotFound for missing ids.
type Backend interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// Store is a write-through cache over a durable session backend with
// per-session mutual exclusion.
type Store struct {
	backend Backend

	mu    sync.Mutex
	cache map[string]*session.Session
	locks map[string]*sync.Mutex
}

// New creates a Store over the given backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		cache:   map[string]*session.Session{},
		locks:   map[string]*sync.Mutex{},
	}
}

// Lock acquires the exclusive per-session scope and returns its release
// function. At most one handler invocation may hold it per session id.
func (s *Store) Lock(id string) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get returns the session for id, preferring the in-process cache and
// falling back to the durable backend on a miss (populating the cache).
// The returned pointer is the cached record; callers mutate it only while
// holding the session lock.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	cached, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := s.backend.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("loading session from backend: %w", err)
	}

	sess := &session.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("decoding stored session %s: %w", id, err)
	}
	sess.Normalize()

	s.mu.Lock()
	// A concurrent Get may have populated the cache; keep the first copy so
	// every holder of the session lock sees the same record.
	if existing, ok := s.cache[id]; ok {
		sess = existing
	} else {
		s.cache[id] = sess
	}
	s.mu.Unlock()

	return sess, nil
}

// Put writes the full session record to the durable backend, then updates
// the cache identically.
func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	if err := s.backend.Save(ctx, sess.ID, data); err != nil {
		return fmt.Errorf("saving session to backend: %w", err)
	}

	s.mu.Lock()
	s.cache[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

// Delete removes the session from the backend and the cache. The lock-table
// entry stays: the deleting caller still holds that mutex, and dropping it
// would let a concurrent Lock mint a second mutex for the same id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session from backend: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return nil
}
