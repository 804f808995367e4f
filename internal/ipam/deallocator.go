package ipam

import (
	"context"

	"github.com/cthiel42/ipamd/internal/cidr"
	"github.com/cthiel42/ipamd/internal/node"
	"github.com/cthiel42/ipamd/internal/store"
)

// Deallocate releases the reservation at cidrText, then walks back up
// the rootline collapsing any Internal ancestor whose other side is
// also now free, materializing a new Internal only where the walk
// reaches a node that isn't itself fully collapsible (spec.md §4.4).
func (s *Service) Deallocate(ctx context.Context, cidrText string) error {
	target, err := cidr.Parse(cidrText)
	if err != nil {
		return newError(KindInternal, "invalid cidr %q: %v", cidrText, err)
	}

	leaf, err := s.store.Get(ctx, node.Key{CIDR: target.String(), PrefixLength: target.PrefixLength()})
	if err == store.ErrNotFound {
		return newError(KindNotAReservation, "%s is not a reservation", target)
	}
	if err != nil {
		return wrapError(KindInternal, err, "failed to load %s", target)
	}
	if !leaf.IsReservation() {
		return newError(KindNotAReservation, "%s is not a reservation", target)
	}

	rootNet := cidr.MustParse(leaf.RootCIDR)

	// Batch-fetch every ancestor from the reservation's parent up to and
	// including the root in one round trip (spec.md §4.4 step 2), then
	// walk the results looking for the first ancestor that already
	// exists: that's either another Internal (which we may be able to
	// collapse too, if its other side is also free) or the Root itself.
	var ancestors []cidr.Network
	for current := target.Supernet(); ; current = current.Supernet() {
		ancestors = append(ancestors, current)
		if current.Equal(rootNet) {
			break
		}
	}
	keys := make([]node.Key, len(ancestors))
	for i, n := range ancestors {
		keys[i] = node.Key{CIDR: n.String(), PrefixLength: n.PrefixLength()}
	}
	records, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return wrapError(KindInternal, err, "failed to batch-fetch rootline for %s", target)
	}

	var (
		writes    []store.Write
		childLeft = target.IsLeft()
	)

	for i, parent := range ancestors {
		existing := records[i]

		if parent.Equal(rootNet) {
			if existing == nil {
				return wrapError(KindInternal, store.ErrNotFound, "failed to load root %s", parent)
			}
			updated := *existing
			if childLeft {
				updated.LeftFree = node.Some(node.Free)
			} else {
				updated.RightFree = node.Some(node.Free)
			}
			updated.CapacityInPool = node.Some(existing.PoolName)
			cond := store.Condition{FieldEquals: map[string]string{
				"left_free":  existing.LeftFree.Value,
				"right_free": existing.RightFree.Value,
			}}
			writes = append(writes, store.Write{Key: existing.KeyOf(), Put: &updated, Condition: cond})
			break
		}

		if existing == nil {
			// Nothing materialized at this level yet: materialize a new
			// Internal here, with the vacated side free and the other
			// side (where the rest of the rootline we haven't visited
			// yet still lives) taken, and stop climbing — everything
			// above this level is untouched.
			internal := node.NewInternal(parent, leaf.PoolName, leaf.RootCIDR, !childLeft, s.now())
			writes = append(writes, store.Write{
				Key:       internal.KeyOf(),
				Put:       &internal,
				Condition: store.Condition{NotExists: true},
			})
			break
		}

		// An Internal already materialized at this level. If its other
		// side (not the one we came from) is also free, the side we're
		// vacating collapses it entirely: delete it and keep climbing.
		// Otherwise, flip our side to free and stop.
		otherSideFree := existing.RightIsFree()
		if !childLeft {
			otherSideFree = existing.LeftIsFree()
		}
		cond := store.Condition{FieldEquals: map[string]string{
			"left_free":  existing.LeftFree.Value,
			"right_free": existing.RightFree.Value,
		}}
		if otherSideFree {
			writes = append(writes, store.Write{Key: existing.KeyOf(), Delete: true, Condition: cond})
			childLeft = parent.IsLeft()
			continue
		}

		updated := *existing
		if childLeft {
			updated.LeftFree = node.Some(node.Free)
		} else {
			updated.RightFree = node.Some(node.Free)
		}
		writes = append(writes, store.Write{Key: existing.KeyOf(), Put: &updated, Condition: cond})
		break
	}

	writes = append(writes, store.Write{Key: leaf.KeyOf(), Delete: true, Condition: store.Condition{Exists: true}})

	s.log.Infow("deallocating", "cidr", leaf.CIDR, "pool", leaf.PoolName)
	if err := s.store.Transact(ctx, writes); err != nil {
		if err == store.ErrConditionFailed {
			return newError(KindConflict, "concurrent modification while deallocating %s", target)
		}
		return wrapError(KindInternal, err, "failed to commit deallocation of %s", target)
	}
	return nil
}
