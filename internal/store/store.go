// Package store defines the KeyedStore abstraction the allocator runs
// against: single-key reads, batched reads, and conditional writes —
// including a multi-item Transact that must apply all-or-nothing — plus
// the four secondary-index queries of spec.md §3.3. Backends live
// alongside it: an in-process map (MemoryStore), a JSON file
// (FileStore), DynamoDB (DynamoDBStore), and two blob-object backends
// (S3Store, AzureBlobStore).
package store

import (
	"context"
	"errors"

	"github.com/cthiel42/ipamd/internal/node"
)

// ErrNotFound is returned by Get when no item exists at the given key.
var ErrNotFound = errors.New("store: item not found")

// ErrConditionFailed is returned by Put, Delete, or Transact when the
// attached Condition did not hold against the committed state. The
// caller (internal/ipam) surfaces this as ipam.Conflict; the core never
// retries (spec.md §5, §7).
var ErrConditionFailed = errors.New("store: condition check failed")

// Condition is a declarative predicate attached to a write, evaluated
// atomically against the store's committed state at commit time. The
// zero value is "no condition" (always passes), matching an
// unconditional write such as create_root's.
//
// FieldEquals names one of "left_free" or "right_free" and the value
// ("Y"/"N") the field must currently hold; it is the Go-side analog of
// PynamoDB's `CidrPitModel.left_free == 'Y'` expressions in
// original_source/main.py.
type Condition struct {
	Exists      bool
	NotExists   bool
	FieldEquals map[string]string
}

// Holds reports whether existing (nil if absent) satisfies c.
func (c Condition) Holds(existing *node.Node) bool {
	if c.Exists && existing == nil {
		return false
	}
	if c.NotExists && existing != nil {
		return false
	}
	if len(c.FieldEquals) > 0 {
		if existing == nil {
			return false
		}
		for field, want := range c.FieldEquals {
			got, ok := fieldValue(*existing, field)
			if !ok || got != want {
				return false
			}
		}
	}
	return true
}

func fieldValue(n node.Node, field string) (string, bool) {
	switch field {
	case "left_free":
		return n.LeftFree.Value, n.LeftFree.Set
	case "right_free":
		return n.RightFree.Value, n.RightFree.Set
	default:
		return "", false
	}
}

// Write is one item mutation inside a Transact call. Exactly one of Put
// or Delete applies: a non-nil Put upserts that item, Delete removes
// the item at Key. Condition gates whether the write (and the whole
// transaction) is allowed to commit.
type Write struct {
	Key       node.Key
	Put       *node.Node
	Delete    bool
	Condition Condition
}

// KeyedStore is the persistence boundary the allocator and deallocator
// run against (spec.md §1, §5). Every method takes a context so request
// cancellation aborts the in-flight call.
type KeyedStore interface {
	// Get returns the item at key, or ErrNotFound.
	Get(ctx context.Context, key node.Key) (*node.Node, error)

	// BatchGet returns one result per key, in the same order; a missing
	// item is represented as a nil entry, not an error, so callers can
	// walk a rootline and see which ancestors are materialized.
	BatchGet(ctx context.Context, keys []node.Key) ([]*node.Node, error)

	// Put upserts n, failing with ErrConditionFailed if cond does not
	// hold. An unconditional Put (zero Condition) is used by
	// create_root, which the spec explicitly allows to race.
	Put(ctx context.Context, n node.Node, cond Condition) error

	// Delete removes the item at key, failing with ErrConditionFailed
	// if cond does not hold.
	Delete(ctx context.Context, key node.Key, cond Condition) error

	// Transact applies every write atomically: either every Condition
	// holds and every Put/Delete commits, or nothing does.
	Transact(ctx context.Context, writes []Write) error

	// QueryRootIndex lists roots; pool == "" scans every pool.
	QueryRootIndex(ctx context.Context, pool string) ([]node.Node, error)

	// QueryFreeCapacityTop returns the single node the allocator should
	// split from: among items carrying capacity_in_pool == pool with
	// prefix_length < lessThanPrefix, the one with the largest
	// prefix_length (spec.md §4.3.1 step 1 — the GSI query with
	// scan_index_forward=False and limit=1 in original_source/main.py).
	// Returns nil, nil if no such item exists.
	QueryFreeCapacityTop(ctx context.Context, pool string, lessThanPrefix int) (*node.Node, error)

	// QueryReservationsByPool lists reservations; pool == "" scans all.
	QueryReservationsByPool(ctx context.Context, pool string) ([]node.Node, error)

	// QueryReservationsByRoot lists reservations under rootCIDR.
	QueryReservationsByRoot(ctx context.Context, rootCIDR string) ([]node.Node, error)
}
