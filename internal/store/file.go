package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cthiel42/ipamd/internal/node"
)

// FileStore persists the node table as one JSON file. The file is read
// once, by NewFileStore, and rewritten after every successful write, so
// a restarted process sees committed state; changes another process
// makes to the file are not picked up. It fills the gap left by
// the teacher's storage.Factory, which names a "file" backend
// (NewFileStorage) that the retrieved slice of the teacher repo does
// not include a source file for; written fresh here in the same
// constructor/error shape as the teacher's NewS3Storage/
// NewAzureBlobStorage.
type FileStore struct {
	path string
	t    *table
}

// NewFileStore opens (or creates) the JSON file at path as a FileStore.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file path is required")
	}
	f := &FileStore{path: path, t: newTable()}
	if err := f.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("store: failed to load %s: %w", path, err)
		}
	}
	return f, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	var items []node.Node
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("store: failed to parse %s: %w", f.path, err)
		}
	}
	f.t.replace(items)
	return nil
}

func (f *FileStore) save() error {
	data, err := json.MarshalIndent(f.t.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to marshal table: %w", err)
	}
	return os.WriteFile(f.path, data, 0o644)
}

func (f *FileStore) Get(_ context.Context, key node.Key) (*node.Node, error) {
	return f.t.get(key)
}

func (f *FileStore) BatchGet(_ context.Context, keys []node.Key) ([]*node.Node, error) {
	return f.t.batchGet(keys)
}

func (f *FileStore) Put(_ context.Context, n node.Node, cond Condition) error {
	if err := f.t.put(n, cond); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) Delete(_ context.Context, key node.Key, cond Condition) error {
	if err := f.t.delete(key, cond); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) Transact(_ context.Context, writes []Write) error {
	if err := f.t.transact(writes); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) QueryRootIndex(_ context.Context, pool string) ([]node.Node, error) {
	return f.t.queryRootIndex(pool), nil
}

func (f *FileStore) QueryFreeCapacityTop(_ context.Context, pool string, lessThanPrefix int) (*node.Node, error) {
	return f.t.queryFreeCapacityTop(pool, lessThanPrefix), nil
}

func (f *FileStore) QueryReservationsByPool(_ context.Context, pool string) ([]node.Node, error) {
	return f.t.queryReservationsByPool(pool), nil
}

func (f *FileStore) QueryReservationsByRoot(_ context.Context, rootCIDR string) ([]node.Node, error) {
	return f.t.queryReservationsByRoot(rootCIDR), nil
}
