// Package ipam implements the allocator, deallocator, root management,
// and query API of spec.md §4: the binary-trie allocation algorithm
// over internal/node records, driven through internal/store's
// conditional-transaction KeyedStore.
package ipam

import (
	"time"

	"go.uber.org/zap"

	"github.com/cthiel42/ipamd/internal/store"
)

// Clock returns the current time; injected so tests can freeze
// Node.Created the way they'd freeze any other wall-clock dependency.
// This is the one seam with no corpus-library analog — the teacher and
// the rest of the retrieved pack never inject a clock — so it is kept
// to the smallest possible stdlib-only shape (SPEC_FULL.md §8,
// "Supplemented features").
type Clock func() time.Time

// Service wires a KeyedStore to the allocator/deallocator/root/query
// operations. It holds no other in-process state (spec.md §5).
type Service struct {
	store store.KeyedStore
	clock Clock
	log   *zap.SugaredLogger
}

// NewService builds a Service. log may be nil, in which case a no-op
// logger is used.
func NewService(s store.KeyedStore, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{store: s, clock: time.Now, log: log}
}

// WithClock overrides the Service's clock; used by tests that need
// deterministic Created timestamps.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) now() int64 {
	return s.clock().Unix()
}
