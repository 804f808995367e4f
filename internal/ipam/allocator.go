package ipam

import (
	"context"

	"github.com/cthiel42/ipamd/internal/cidr"
	"github.com/cthiel42/ipamd/internal/node"
	"github.com/cthiel42/ipamd/internal/store"
)

// Allocate locates the most specific capacity node (the largest prefix
// length below size) that can still host a /size and carves a /size
// reservation out of its free half (spec.md §4.3.1).
func (s *Service) Allocate(ctx context.Context, size int, pool, comment string) (*node.Node, error) {
	top, err := s.store.QueryFreeCapacityTop(ctx, pool, size)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to query free capacity in pool %s", pool)
	}
	if top == nil {
		return nil, newError(KindNoCapacity, "no capacity available in pool %s", pool)
	}

	topNet := top.Net()
	halves := topNet.Subnets()
	var half cidr.Network
	if top.LeftIsFree() {
		half = halves[0]
	} else {
		half = halves[1]
	}
	target := half.WithPrefix(size)

	s.log.Infow("allocating", "pool", pool, "size", size, "top", top.CIDR, "target", target.String())
	return s.createReservation(ctx, top, target, comment)
}

// AllocateByCIDR allocates the specific network cidrText out of pool,
// walking from the target up to the root to find the nearest
// materialized ancestor (spec.md §4.3.2).
func (s *Service) AllocateByCIDR(ctx context.Context, pool, cidrText, comment string) (*node.Node, error) {
	target, err := cidr.Parse(cidrText)
	if err != nil {
		return nil, newError(KindInternal, "invalid cidr %q: %v", cidrText, err)
	}

	roots, err := s.store.QueryRootIndex(ctx, pool)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to list roots for pool %s", pool)
	}
	var rootNet cidr.Network
	found := false
	for _, r := range roots {
		rn := r.Net()
		if target.SubnetOf(rn) {
			rootNet = rn
			found = true
			break
		}
	}
	if !found {
		return nil, newError(KindNoRoot, "no root for %s in pool %s", target, pool)
	}

	networks := []cidr.Network{target}
	for networks[len(networks)-1].PrefixLength() > rootNet.PrefixLength() {
		networks = append(networks, networks[len(networks)-1].Supernet())
	}
	keys := make([]node.Key, len(networks))
	for i, n := range networks {
		keys[i] = node.Key{CIDR: n.String(), PrefixLength: n.PrefixLength()}
	}

	results, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, wrapError(KindInternal, err, "failed to batch-fetch rootline for %s", target)
	}

	for i, rec := range results {
		if i == 0 {
			if rec != nil {
				return nil, newError(KindNotAvailable, "cidr %s is not available", target)
			}
			continue
		}
		if rec == nil {
			continue
		}
		// networks[i-1] is the child sitting inside ancestor networks[i].
		isLeft := networks[i-1].IsLeft()
		free := rec.RightIsFree()
		if isLeft {
			free = rec.LeftIsFree()
		}
		if !free {
			return nil, newError(KindConflict, "cidr %s cannot be allocated because of a conflict on %s", target, rec.CIDR)
		}
		s.log.Infow("allocating by cidr", "pool", pool, "target", target.String(), "ancestor", rec.CIDR)
		return s.createReservation(ctx, rec, target, comment)
	}

	// The root itself must always exist; reaching here is an invariant
	// violation (spec.md §4.3.2 step 4).
	return nil, newError(KindInternal, "no materialized ancestor found for %s up to root %s", target, rootNet)
}

// createReservation is the heart of the allocator (spec.md §4.3.3):
// given the deepest materialized ancestor top and the desired target
// network, build the rootline from top down to target inclusive and
// issue one atomic transaction that updates/deletes top, materializes
// any newly-implicit Internal ancestors, and inserts the reservation.
func (s *Service) createReservation(ctx context.Context, top *node.Node, target cidr.Network, comment string) (*node.Node, error) {
	rootline := cidr.Rootline(top.Net(), target)
	if len(rootline) < 2 {
		return nil, newError(KindInternal, "target %s is not a strict descendant of %s", target, top.Net())
	}

	writes := make([]store.Write, 0, len(rootline))
	now := s.now()
	var reservation node.Node

	for i, net := range rootline {
		switch {
		case i == 0:
			nextIsLeft := rootline[i+1].IsLeft()
			write, err := s.topWrite(*top, nextIsLeft)
			if err != nil {
				return nil, err
			}
			writes = append(writes, write)

		case i < len(rootline)-1:
			nextIsLeft := rootline[i+1].IsLeft()
			internal := node.NewInternal(net, top.PoolName, top.RootCIDR, nextIsLeft, now)
			writes = append(writes, store.Write{
				Key:       internal.KeyOf(),
				Put:       &internal,
				Condition: store.Condition{NotExists: true},
			})

		default:
			reservation = node.NewReservation(net, top.PoolName, top.RootCIDR, comment, now)
			writes = append(writes, store.Write{
				Key:       reservation.KeyOf(),
				Put:       &reservation,
				Condition: store.Condition{NotExists: true},
			})
		}
	}

	if err := s.store.Transact(ctx, writes); err != nil {
		if err == store.ErrConditionFailed {
			return nil, newError(KindConflict, "concurrent modification while allocating %s", target)
		}
		return nil, wrapError(KindInternal, err, "failed to commit allocation of %s", target)
	}
	return &reservation, nil
}

// topWrite builds the write for the existing materialized ancestor at
// the top of a rootline: a conditional update if it's a Root (roots are
// never deleted), or a conditional delete if it's an Internal whose
// only remaining free side is being taken (spec.md §4.3.3).
func (s *Service) topWrite(top node.Node, nextIsLeft bool) (store.Write, error) {
	cond := store.Condition{FieldEquals: map[string]string{
		"left_free":  top.LeftFree.Value,
		"right_free": top.RightFree.Value,
	}}

	if top.IsRoot() {
		updated := top
		if nextIsLeft {
			if !top.LeftIsFree() {
				return store.Write{}, newError(KindInternal, "error finding free capacity on %s", top.CIDR)
			}
			updated.LeftFree = node.Some(node.Taken)
			if !top.RightIsFree() {
				updated.CapacityInPool = node.None[string]()
			}
		} else {
			if !top.RightIsFree() {
				return store.Write{}, newError(KindInternal, "error finding free capacity on %s", top.CIDR)
			}
			updated.RightFree = node.Some(node.Taken)
			if !top.LeftIsFree() {
				updated.CapacityInPool = node.None[string]()
			}
		}
		return store.Write{Key: top.KeyOf(), Put: &updated, Condition: cond}, nil
	}

	// Non-root capacity nodes (Internals) are always partially taken
	// already; claiming their remaining free side removes them.
	sideFree := top.RightIsFree()
	if nextIsLeft {
		sideFree = top.LeftIsFree()
	}
	if !sideFree {
		return store.Write{}, newError(KindInternal, "error finding free capacity on %s", top.CIDR)
	}
	return store.Write{Key: top.KeyOf(), Delete: true, Condition: cond}, nil
}
