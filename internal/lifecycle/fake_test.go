package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/types"
)

// memStore is an in-memory Store with compare-and-set semantics.
type memStore struct {
	mu       sync.Mutex
	searches map[uuid.UUID]types.Search
	events   []types.Event
	// beforeCAS runs inside TransitionWithEvent before the status check, to
	// simulate a concurrent writer.
	beforeCAS func(s *memStore, id uuid.UUID)
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{searches: make(map[uuid.UUID]types.Search)}
}

func (s *memStore) put(search types.Search) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches[search.ID] = search
}

func (s *memStore) get(id uuid.UUID) types.Search {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches[id]
}

func (s *memStore) eventsFor(id uuid.UUID) []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for _, ev := range s.events {
		if ev.SearchID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (s *memStore) GetSearch(_ context.Context, id uuid.UUID) (*types.Search, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search, ok := s.searches[id]
	if !ok {
		return nil, nil
	}
	return &search, nil
}

func (s *memStore) TransitionWithEvent(_ context.Context, id uuid.UUID, from types.Status, upd Update, ev types.Event) error {
	if s.beforeCAS != nil {
		hook := s.beforeCAS
		s.beforeCAS = nil
		hook(s, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	search, ok := s.searches[id]
	if !ok {
		return errors.New("no such row")
	}
	if search.Status != from {
		return ErrStaleStatus
	}

	search.Status = upd.Status
	if upd.Weights != nil {
		search.Weights = upd.Weights
	}
	if upd.Dimensions != nil {
		search.Dimensions = upd.Dimensions
	}
	if upd.ResultURL != nil {
		search.ResultURL = upd.ResultURL
	}
	if upd.AutomationRunID != nil {
		search.AutomationRunID = upd.AutomationRunID
	}
	s.searches[id] = search
	s.events = append(s.events, ev)
	return nil
}

// recordingNotifier counts notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	searches []types.Search
}

func (n *recordingNotifier) Notify(_ context.Context, search *types.Search) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.searches = append(n.searches, *search)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.searches)
}
