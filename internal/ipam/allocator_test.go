package ipam

import (
	"context"
	"testing"
	"time"

	"github.com/cthiel42/ipamd/internal/cidr"
	"github.com/cthiel42/ipamd/internal/node"
	"github.com/cthiel42/ipamd/internal/store"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(store.NewMemoryStore(), nil)
	return s.WithClock(fixedClock(time.Unix(1700000000, 0)))
}

func keyFor(t *testing.T, cidrText string) node.Key {
	t.Helper()
	n, err := cidr.Parse(cidrText)
	if err != nil {
		t.Fatalf("parse %q: %v", cidrText, err)
	}
	return node.Key{CIDR: n.String(), PrefixLength: n.PrefixLength()}
}

func TestAllocateFirstSplitsRootInHalf(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	reservation, err := s.Allocate(ctx, 25, "prod", "first")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if reservation.CIDR != "10.0.0.0/25" {
		t.Fatalf("expected 10.0.0.0/25, got %s", reservation.CIDR)
	}

	root, err := s.store.Get(ctx, keyFor(t, "10.0.0.0/24"))
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if root.LeftIsFree() {
		t.Fatalf("expected left half taken")
	}
	if !root.RightIsFree() {
		t.Fatalf("expected right half still free")
	}
	if !root.HasCapacity() {
		t.Fatalf("expected root to still carry capacity")
	}
}

func TestAllocateSecondUsesRootsFreeRightHalf(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := s.Allocate(ctx, 25, "prod", "first"); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}

	// The root's left half is now fully reserved; the next /26 must
	// come out of the root's still-free right half, not a fresh split
	// of some larger imaginary block.
	reservation, err := s.Allocate(ctx, 26, "prod", "second")
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if reservation.CIDR != "10.0.0.128/26" {
		t.Fatalf("expected 10.0.0.128/26, got %s", reservation.CIDR)
	}
}

func TestAllocateThirdPrefersMostSpecificInternal(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := s.Allocate(ctx, 25, "prod", "first"); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, err := s.Allocate(ctx, 26, "prod", "second"); err != nil {
		t.Fatalf("second Allocate: %v", err)
	}

	// The root is now fully reserved on both sides (no capacity left),
	// while the materialized 10.0.0.128/25 Internal still carries one
	// free /26. A /27 allocation must come out of that Internal's free
	// half, not the exhausted root.
	reservation, err := s.Allocate(ctx, 27, "prod", "third")
	if err != nil {
		t.Fatalf("third Allocate: %v", err)
	}
	if reservation.CIDR != "10.0.0.192/27" {
		t.Fatalf("expected 10.0.0.192/27, got %s", reservation.CIDR)
	}
}

func TestAllocateByCIDRExactMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	reservation, err := s.AllocateByCIDR(ctx, "prod", "10.0.0.64/26", "pinned")
	if err != nil {
		t.Fatalf("AllocateByCIDR: %v", err)
	}
	if reservation.CIDR != "10.0.0.64/26" {
		t.Fatalf("expected 10.0.0.64/26, got %s", reservation.CIDR)
	}

	if _, err := s.AllocateByCIDR(ctx, "prod", "10.0.0.64/26", "again"); err == nil {
		t.Fatalf("expected error re-allocating the same cidr")
	} else if ipamErr, ok := err.(*Error); !ok || ipamErr.Kind != KindNotAvailable {
		t.Fatalf("expected NotAvailable, got %v", err)
	}
}

func TestAllocateByCIDRConflictingAncestor(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := s.AllocateByCIDR(ctx, "prod", "10.0.0.0/25", "left half"); err != nil {
		t.Fatalf("AllocateByCIDR: %v", err)
	}

	_, err := s.AllocateByCIDR(ctx, "prod", "10.0.0.0/26", "nested")
	if err == nil {
		t.Fatalf("expected conflict")
	}
	ipamErr, ok := err.(*Error)
	if !ok || ipamErr.Kind != KindConflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestAllocateByCIDROutsideAnyRoot(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	_, err := s.AllocateByCIDR(ctx, "prod", "192.168.0.0/26", "nope")
	if err == nil {
		t.Fatalf("expected NoRoot")
	}
	ipamErr, ok := err.(*Error)
	if !ok || ipamErr.Kind != KindNoRoot {
		t.Fatalf("expected NoRoot, got %v", err)
	}
}

func TestAllocateNoCapacity(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/31", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := s.Allocate(ctx, 30, "prod", "too big"); err == nil {
		t.Fatalf("expected NoCapacity")
	} else if ipamErr, ok := err.(*Error); !ok || ipamErr.Kind != KindNoCapacity {
		t.Fatalf("expected NoCapacity, got %v", err)
	}
}
