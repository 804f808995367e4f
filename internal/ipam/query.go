package ipam

import (
	"context"

	"github.com/cthiel42/ipamd/internal/node"
)

// ListRoots lists roots in pool, or every pool's roots if pool == ""
// (spec.md §4.5).
func (s *Service) ListRoots(ctx context.Context, pool string) ([]node.Node, error) {
	roots, err := s.store.QueryRootIndex(ctx, pool)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to list roots")
	}
	return roots, nil
}

// ListReservationsByPool lists reservations in pool, or every pool's if
// pool == "" (spec.md §4.5).
func (s *Service) ListReservationsByPool(ctx context.Context, pool string) ([]node.Node, error) {
	reservations, err := s.store.QueryReservationsByPool(ctx, pool)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to list reservations")
	}
	return reservations, nil
}

// ListReservationsByRoot lists reservations under rootCIDR (spec.md §4.5).
func (s *Service) ListReservationsByRoot(ctx context.Context, rootCIDR string) ([]node.Node, error) {
	reservations, err := s.store.QueryReservationsByRoot(ctx, rootCIDR)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to list reservations for root %s", rootCIDR)
	}
	return reservations, nil
}
