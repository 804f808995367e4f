package store

import (
	"sort"
	"sync"

	"github.com/cthiel42/ipamd/internal/node"
)

// table is the in-process engine shared by MemoryStore, FileStore,
// S3Store, and AzureBlobStore: a map keyed by the primary key, guarded
// by a single mutex so Transact can evaluate every Condition against a
// consistent snapshot before applying any write. File- and blob-backed
// stores load a table once when constructed and save it after every
// successful write; MemoryStore uses it directly.
type table struct {
	mu    sync.Mutex
	items map[node.Key]node.Node
}

func newTable() *table {
	return &table{items: make(map[node.Key]node.Node)}
}

func (t *table) get(key node.Key) (*node.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(key)
}

func (t *table) getLocked(key node.Key) (*node.Node, error) {
	n, ok := t.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := n
	return &cp, nil
}

func (t *table) batchGet(keys []node.Key) ([]*node.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*node.Node, len(keys))
	for i, k := range keys {
		if n, ok := t.items[k]; ok {
			cp := n
			out[i] = &cp
		}
	}
	return out, nil
}

func (t *table) put(n node.Node, cond Condition) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, err := t.getLocked(n.KeyOf())
	if err != nil && err != ErrNotFound {
		return err
	}
	if !cond.Holds(existing) {
		return ErrConditionFailed
	}
	t.items[n.KeyOf()] = n
	return nil
}

func (t *table) delete(key node.Key, cond Condition) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, err := t.getLocked(key)
	if err != nil && err != ErrNotFound {
		return err
	}
	if !cond.Holds(existing) {
		return ErrConditionFailed
	}
	delete(t.items, key)
	return nil
}

// transact evaluates every write's Condition against the current
// snapshot, and only if all hold, applies every Put/Delete. This is
// the single mutex standing in for DynamoDB's TransactWriteItems
// (spec.md §5: "the set of conditions attached to a transaction is
// evaluated atomically against the committed state").
func (t *table) transact(writes []Write) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, w := range writes {
		existing, err := t.getLocked(w.Key)
		if err != nil && err != ErrNotFound {
			return err
		}
		if !w.Condition.Holds(existing) {
			return ErrConditionFailed
		}
	}
	for _, w := range writes {
		if w.Delete {
			delete(t.items, w.Key)
			continue
		}
		if w.Put != nil {
			t.items[w.Put.KeyOf()] = *w.Put
		}
	}
	return nil
}

func (t *table) queryRootIndex(pool string) []node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []node.Node
	for _, n := range t.items {
		if !n.RootOfPool.Set {
			continue
		}
		if pool != "" && n.RootOfPool.Value != pool {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out
}

func (t *table) queryFreeCapacityTop(pool string, lessThanPrefix int) *node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *node.Node
	for k, n := range t.items {
		if !n.CapacityInPool.Set || n.CapacityInPool.Value != pool {
			continue
		}
		if n.PrefixLength >= lessThanPrefix {
			continue
		}
		if best == nil || n.PrefixLength > best.PrefixLength {
			cp := t.items[k]
			best = &cp
		}
	}
	return best
}

func (t *table) queryReservationsByPool(pool string) []node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []node.Node
	for _, n := range t.items {
		if !n.ReservationInPool.Set {
			continue
		}
		if pool != "" && n.ReservationInPool.Value != pool {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out
}

func (t *table) queryReservationsByRoot(rootCIDR string) []node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []node.Node
	for _, n := range t.items {
		if !n.ReservationInPool.Set || n.RootCIDR != rootCIDR {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created < out[j].Created })
	return out
}

// snapshot returns every item, for persistence backends to serialize.
func (t *table) snapshot() []node.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]node.Node, 0, len(t.items))
	for _, n := range t.items {
		out = append(out, n)
	}
	return out
}

// replace swaps the table's contents wholesale, used when a blob-backed
// store reloads from its medium.
func (t *table) replace(items []node.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[node.Key]node.Node, len(items))
	for _, n := range items {
		t.items[n.KeyOf()] = n
	}
}
