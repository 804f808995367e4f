package ipam

import (
	"context"
	"testing"
)

func TestDeallocateSimpleReservation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if _, err := s.Allocate(ctx, 25, "prod", "first"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := s.Deallocate(ctx, "10.0.0.0/25"); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	root, err := s.store.Get(ctx, keyFor(t, "10.0.0.0/24"))
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if !root.LeftIsFree() || !root.RightIsFree() {
		t.Fatalf("expected both halves free after deallocation, got left=%v right=%v",
			root.LeftFree.Value, root.RightFree.Value)
	}
	if !root.HasCapacity() {
		t.Fatalf("expected root to carry capacity again")
	}
}

func TestDeallocateCollapsesInternal(t *testing.T) {
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

	// Deallocating the second /26 should collapse the 10.0.0.128/25
	// Internal back into a plain free right half of the root, since its
	// other /26 was never reserved.
	if err := s.Deallocate(ctx, "10.0.0.128/26"); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	if _, err := s.store.Get(ctx, keyFor(t, "10.0.0.128/25")); err == nil {
		t.Fatalf("expected the Internal at 10.0.0.128/25 to be gone")
	}

	root, err := s.store.Get(ctx, keyFor(t, "10.0.0.0/24"))
	if err != nil {
		t.Fatalf("Get root: %v", err)
	}
	if !root.RightIsFree() {
		t.Fatalf("expected root right half free again")
	}
	if root.LeftIsFree() {
		t.Fatalf("expected root left half to remain taken (still reserved by the first allocation)")
	}
}

func TestDeallocateLeavesSiblingReservationIntact(t *testing.T) {
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
	if _, err := s.Allocate(ctx, 27, "prod", "third"); err != nil {
		t.Fatalf("third Allocate: %v", err)
	}

	// third reserved 10.0.0.192/27: that deleted the 10.0.0.128/25
	// Internal and materialized a 10.0.0.192/26 Internal for the other
	// /27. Deallocating it collapses the /26 Internal and materializes a
	// 10.0.0.128/25 Internal again, right side free and left side taken,
	// because its left side (10.0.0.128/26, the second allocation) is
	// still reserved.
	if err := s.Deallocate(ctx, "10.0.0.192/27"); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	internal, err := s.store.Get(ctx, keyFor(t, "10.0.0.128/25"))
	if err != nil {
		t.Fatalf("expected a 10.0.0.128/25 Internal to exist: %v", err)
	}
	if !internal.RightIsFree() {
		t.Fatalf("expected right half free again")
	}
	if internal.LeftIsFree() {
		t.Fatalf("expected left half to remain taken")
	}

	if _, err := s.store.Get(ctx, keyFor(t, "10.0.0.128/26")); err != nil {
		t.Fatalf("expected sibling reservation 10.0.0.128/26 untouched: %v", err)
	}
}

func TestDeallocateNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	// Absent and non-reservation both collapse to NotAReservation (spec.md
	// §4.4 step 1), so a re-run after a successful deallocate fails clean
	// the same way the first absent-target case does.
	err := s.Deallocate(ctx, "10.0.0.0/28")
	if err == nil {
		t.Fatalf("expected NotAReservation")
	}
	ipamErr, ok := err.(*Error)
	if !ok || ipamErr.Kind != KindNotAReservation {
		t.Fatalf("expected NotAReservation, got %v", err)
	}
}

func TestDeallocateRootIsNotAReservation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	if err := s.CreateRoot(ctx, "10.0.0.0/24", "prod"); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	err := s.Deallocate(ctx, "10.0.0.0/24")
	if err == nil {
		t.Fatalf("expected NotAReservation")
	}
	ipamErr, ok := err.(*Error)
	if !ok || ipamErr.Kind != KindNotAReservation {
		t.Fatalf("expected NotAReservation, got %v", err)
	}
}
