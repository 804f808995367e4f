package store

import (
	"context"

	"github.com/cthiel42/ipamd/internal/node"
)

// MemoryStore is a process-local KeyedStore: a map guarded by a mutex,
// conditions evaluated under the lock. It is the default backend
// (config.Backend "memory") and the fixture every internal/ipam test
// runs against. Grounded on the teacher's S3Storage/AzureBlobStorage
// in-process map shape (aws_s3.go, azure_blob.go), generalized from one
// JSON blob of two maps to per-item storage with per-write conditions.
type MemoryStore struct {
	t *table
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{t: newTable()}
}

func (m *MemoryStore) Get(_ context.Context, key node.Key) (*node.Node, error) {
	return m.t.get(key)
}

func (m *MemoryStore) BatchGet(_ context.Context, keys []node.Key) ([]*node.Node, error) {
	return m.t.batchGet(keys)
}

func (m *MemoryStore) Put(_ context.Context, n node.Node, cond Condition) error {
	return m.t.put(n, cond)
}

func (m *MemoryStore) Delete(_ context.Context, key node.Key, cond Condition) error {
	return m.t.delete(key, cond)
}

func (m *MemoryStore) Transact(_ context.Context, writes []Write) error {
	return m.t.transact(writes)
}

func (m *MemoryStore) QueryRootIndex(_ context.Context, pool string) ([]node.Node, error) {
	return m.t.queryRootIndex(pool), nil
}

func (m *MemoryStore) QueryFreeCapacityTop(_ context.Context, pool string, lessThanPrefix int) (*node.Node, error) {
	return m.t.queryFreeCapacityTop(pool, lessThanPrefix), nil
}

func (m *MemoryStore) QueryReservationsByPool(_ context.Context, pool string) ([]node.Node, error) {
	return m.t.queryReservationsByPool(pool), nil
}

func (m *MemoryStore) QueryReservationsByRoot(_ context.Context, rootCIDR string) ([]node.Node, error) {
	return m.t.queryReservationsByRoot(rootCIDR), nil
}
