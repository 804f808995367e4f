// Package node defines the Node record: the single entity persisted by
// the allocator, shaped to project cleanly onto a sparse-attribute keyed
// store (DynamoDB and friends) while staying a normal Go struct in code.
package node

import (
	"github.com/cthiel42/ipamd/internal/cidr"
)

// Optional is an explicit present/absent tri-state for attributes that
// are sparse on the wire (absent means "not in this item", not "empty
// string") — root_of_pool, left_free, right_free, capacity_in_pool,
// reservation_in_pool, comment all need this, since their presence or
// absence drives which secondary index projects the item (spec.md §6.2).
type Optional[T any] struct {
	Value T
	Set   bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Set: true} }

// None is the absent value.
func None[T any]() Optional[T] { return Optional[T]{} }

// Kind is the derived, mutually-exclusive role of a materialized Node.
type Kind int

const (
	// KindUnknown is the zero value; never assigned to a valid Node.
	KindUnknown Kind = iota
	KindRoot
	KindInternal
	KindReservation
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindInternal:
		return "internal"
	case KindReservation:
		return "reservation"
	default:
		return "unknown"
	}
}

// Node is the sole persisted entity (spec.md §3.1).
type Node struct {
	CIDR         string // canonical text form, primary key component 1
	PrefixLength int    // primary key component 2 (range)
	PoolName     string
	RootCIDR     string

	RootOfPool        Optional[string]
	LeftFree          Optional[string] // "Y" / "N"
	RightFree         Optional[string]
	CapacityInPool    Optional[string]
	ReservationInPool Optional[string]
	Comment           Optional[string]

	Created int64 // unix seconds
}

const (
	Free  = "Y"
	Taken = "N"
)

// Net parses the Node's CIDR back into a cidr.Network, for arithmetic.
func (n Node) Net() cidr.Network {
	return cidr.MustParse(n.CIDR)
}

// Key identifies a Node by its primary key.
type Key struct {
	CIDR         string
	PrefixLength int
}

// KeyOf returns n's primary key.
func (n Node) KeyOf() Key {
	return Key{CIDR: n.CIDR, PrefixLength: n.PrefixLength}
}

// Kind derives the Node's role per spec.md §3.1.
func (n Node) Kind() Kind {
	switch {
	case n.RootOfPool.Set && n.RootCIDR == n.CIDR:
		return KindRoot
	case n.ReservationInPool.Set:
		return KindReservation
	case n.LeftFree.Set || n.RightFree.Set:
		return KindInternal
	default:
		return KindUnknown
	}
}

// IsRoot reports whether n is a pool root.
func (n Node) IsRoot() bool { return n.Kind() == KindRoot }

// IsReservation reports whether n is a leaf reservation.
func (n Node) IsReservation() bool { return n.Kind() == KindReservation }

// HasCapacity reports whether n currently carries capacity_in_pool
// (spec.md invariant I6).
func (n Node) HasCapacity() bool { return n.CapacityInPool.Set }

// LeftIsFree reports whether the left half is marked free.
func (n Node) LeftIsFree() bool { return n.LeftFree.Set && n.LeftFree.Value == Free }

// RightIsFree reports whether the right half is marked free.
func (n Node) RightIsFree() bool { return n.RightFree.Set && n.RightFree.Value == Free }

// NewRoot builds an unsaved root Node for cidr in pool, both halves free
// and carrying capacity (spec.md §4.2).
func NewRoot(net cidr.Network, pool string, created int64) Node {
	return Node{
		CIDR:           net.String(),
		PrefixLength:   net.PrefixLength(),
		PoolName:       pool,
		RootCIDR:       net.String(),
		RootOfPool:     Some(pool),
		LeftFree:       Some(Free),
		RightFree:      Some(Free),
		CapacityInPool: Some(pool),
		Created:        created,
	}
}

// NewInternal builds an unsaved Internal Node: the side toward occupied
// is "N", the other "Y" (spec.md §4.3.3, §4.4).
func NewInternal(net cidr.Network, pool, rootCIDR string, occupiedSideLeft bool, created int64) Node {
	n := Node{
		CIDR:           net.String(),
		PrefixLength:   net.PrefixLength(),
		PoolName:       pool,
		RootCIDR:       rootCIDR,
		CapacityInPool: Some(pool),
		Created:        created,
	}
	if occupiedSideLeft {
		n.LeftFree = Some(Taken)
		n.RightFree = Some(Free)
	} else {
		n.LeftFree = Some(Free)
		n.RightFree = Some(Taken)
	}
	return n
}

// NewReservation builds an unsaved leaf reservation Node (spec.md §4.3.3).
func NewReservation(net cidr.Network, pool, rootCIDR, comment string, created int64) Node {
	return Node{
		CIDR:              net.String(),
		PrefixLength:      net.PrefixLength(),
		PoolName:          pool,
		RootCIDR:          rootCIDR,
		LeftFree:          Some(Taken),
		RightFree:         Some(Taken),
		ReservationInPool: Some(pool),
		Comment:           Some(comment),
		Created:           created,
	}
}
