package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/openkcm/session-client/pkg/tokenstore"
)

var _ = tokenstore.Storage(&Storage{})

// Storage keeps values in process memory. It does not survive restarts.
type Storage struct {
	mu     sync.RWMutex
	values map[string]string

	loadErr  error
	applyErr error
}

type Option func(*Storage)

func WithValues(values map[string]string) Option {
	return func(s *Storage) {
		maps.Copy(s.values, values)
	}
}

func WithLoadError(err error) Option {
	return func(s *Storage) {
		s.loadErr = err
	}
}

func WithApplyError(err error) Option {
	return func(s *Storage) {
		s.applyErr = err
	}
}

func NewStorage(opts ...Option) *Storage {
	s := &Storage{
		values: make(map[string]string),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Storage) Load(_ context.Context, keys ...string) (map[string]string, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		if v, ok := s.values[key]; ok {
			values[key] = v
		}
	}

	return values, nil
}

func (s *Storage) Apply(_ context.Context, set map[string]string, remove []string) error {
	if s.applyErr != nil {
		return s.applyErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range remove {
		delete(s.values, key)
	}

	maps.Copy(s.values, set)

	return nil
}

// Snapshot returns a copy of all stored values.
func (s *Storage) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.values)
}
