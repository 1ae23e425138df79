package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jaakkos/gwp/internal/domain"
)

// Handler receives the payload of a "<collection>:updated" event.
type Handler func(ev domain.CollectionUpdated) error

// Subscription identifies one registered handler; pass it to Off.
type Subscription struct {
	Kind domain.EventKind
	id   uint64
}

type subscriber struct {
	id uint64
	fn Handler
}

// Store holds the last-fetched snapshot of every collection and notifies
// subscribers when a refresh replaces one.
type Store struct {
	fetcher Fetcher
	logger  *log.Logger

	mu   sync.RWMutex
	data map[domain.Collection][]domain.Record

	subMu  sync.Mutex
	subs   map[domain.EventKind][]subscriber
	nextID uint64
}

// NewStore creates a store seeded with initial snapshots (may be nil).
func NewStore(fetcher Fetcher, initial map[domain.Collection][]domain.Record, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Store{
		fetcher: fetcher,
		logger:  logger,
		data:    make(map[domain.Collection][]domain.Record),
		subs:    make(map[domain.EventKind][]subscriber),
	}
	for c, records := range initial {
		s.data[c] = slices.Clone(records)
	}
	return s
}

// Get returns the current snapshot of c. The slice is a copy; the records
// themselves are shared and must not be mutated.
func (s *Store) Get(c domain.Collection) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[c])
}

// Find returns the record of c whose "id" equals id.
func (s *Store) Find(c domain.Collection, id int) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data[c] {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Refresh fetches c, replaces its snapshot and emits "<c>:updated" to every
// subscriber before returning. On fetch failure the snapshot is left as is,
// nothing is emitted and the error is returned.
func (s *Store) Refresh(ctx context.Context, c domain.Collection) ([]domain.Record, error) {
	records, err := s.fetcher.Fetch(ctx, c)
	if err != nil {
		s.logger.Printf("Store: refresh %s failed: %v", c, err)
		return nil, fmt.Errorf("refresh %s: %w", c, err)
	}
	if records == nil {
		records = []domain.Record{}
	}

	s.mu.Lock()
	s.data[c] = records
	s.mu.Unlock()

	s.emit(domain.CollectionUpdated{Collection: c, Records: slices.Clone(records)})
	return slices.Clone(records), nil
}

// RefreshAll refreshes the given collections in parallel (every collection
// when none is given). Each collection succeeds or fails on its own; the
// first error is returned.
func (s *Store) RefreshAll(ctx context.Context, cs ...domain.Collection) error {
	if len(cs) == 0 {
		cs = domain.Collections()
	}
	var g errgroup.Group
	for _, c := range cs {
		g.Go(func() error {
			_, err := s.Refresh(ctx, c)
			return err
		})
	}
	return g.Wait()
}

// On registers fn for events of kind.
func (s *Store) On(kind domain.EventKind, fn Handler) Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	s.subs[kind] = append(s.subs[kind], subscriber{id: s.nextID, fn: fn})
	return Subscription{Kind: kind, id: s.nextID}
}

// Off removes a subscription. It reports whether the subscription was active.
func (s *Store) Off(sub Subscription) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	list := s.subs[sub.Kind]
	for i, h := range list {
		if h.id == sub.id {
			s.subs[sub.Kind] = slices.Delete(slices.Clone(list), i, i+1)
			return true
		}
	}
	return false
}

func (s *Store) emit(ev domain.CollectionUpdated) {
	kind := domain.UpdatedEvent(ev.Collection)
	s.subMu.Lock()
	handlers := slices.Clone(s.subs[kind])
	s.subMu.Unlock()

	for _, h := range handlers {
		s.dispatch(kind, h, ev)
	}
}

// dispatch runs one handler; errors and panics are logged and do not stop
// the remaining handlers.
func (s *Store) dispatch(kind domain.EventKind, h subscriber, ev domain.CollectionUpdated) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("Store: %s handler %d panicked: %v", kind, h.id, r)
		}
	}()
	if err := h.fn(ev); err != nil {
		s.logger.Printf("Store: %s handler %d: %v", kind, h.id, err)
	}
}
