package ipam

import (
	"context"

	"github.com/cthiel42/ipamd/internal/cidr"
	"github.com/cthiel42/ipamd/internal/node"
	"github.com/cthiel42/ipamd/internal/store"
)

// CreateRoot parses cidrText, scans all existing roots across every
// pool, and fails OverlappingRoot if any existing root is a subnet-of
// cidrText or vice versa. Otherwise it inserts a new root, both halves
// free and carrying capacity. The write is unconditional: the pre-scan
// plus primary-key uniqueness is enough, and a concurrent create of an
// overlapping root is a known, accepted race (spec.md §4.2, §9 open
// question 1; SPEC_FULL.md §12.1).
func (s *Service) CreateRoot(ctx context.Context, cidrText, pool string) error {
	net, err := cidr.Parse(cidrText)
	if err != nil {
		return newError(KindInternal, "invalid cidr %q: %v", cidrText, err)
	}

	roots, err := s.store.QueryRootIndex(ctx, "")
	if err != nil {
		return wrapError(KindInternal, err, "failed to scan existing roots")
	}
	for _, existing := range roots {
		existingNet := existing.Net()
		if existingNet.SubnetOf(net) || net.SubnetOf(existingNet) {
			return newError(KindOverlappingRoot, "cidr %s conflicts with existing root %s", net, existingNet)
		}
	}

	root := node.NewRoot(net, pool, s.now())
	s.log.Infow("creating root", "cidr", root.CIDR, "pool", pool)
	if err := s.store.Put(ctx, root, store.Condition{}); err != nil {
		return wrapError(KindInternal, err, "failed to save root %s", net)
	}
	return nil
}

// DeleteRoot deletes the root at cidrText, failing NotFound if absent,
// NotARoot if the node exists but isn't a root, and NotEmpty if either
// half still hosts a reservation (spec.md §4.2).
func (s *Service) DeleteRoot(ctx context.Context, cidrText string) error {
	net, err := cidr.Parse(cidrText)
	if err != nil {
		return newError(KindInternal, "invalid cidr %q: %v", cidrText, err)
	}

	root, err := s.store.Get(ctx, node.Key{CIDR: net.String(), PrefixLength: net.PrefixLength()})
	if err == store.ErrNotFound {
		return newError(KindNotFound, "root %s does not exist", net)
	}
	if err != nil {
		return wrapError(KindInternal, err, "failed to load %s", net)
	}
	if root.RootCIDR != root.CIDR {
		return newError(KindNotARoot, "%s is not a root", net)
	}
	if !root.LeftIsFree() || !root.RightIsFree() {
		return newError(KindNotEmpty, "%s is not empty", net)
	}

	cond := store.Condition{FieldEquals: map[string]string{"left_free": node.Free, "right_free": node.Free}}
	if err := s.store.Delete(ctx, root.KeyOf(), cond); err != nil {
		if err == store.ErrConditionFailed {
			return newError(KindConflict, "root %s changed concurrently", net)
		}
		return wrapError(KindInternal, err, "failed to delete %s", net)
	}
	s.log.Infow("deleted root", "cidr", root.CIDR)
	return nil
}
