package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/cthiel42/ipamd/internal/node"
)

// AzureBlobStore keeps the whole node table as one JSON blob, adapted
// directly from the teacher's internal/provider/storage/azure_blob.go.
// Like S3Store, it layers the in-process table plus an ETag If-Match
// check on top of the teacher's whole-blob load/save shape; see
// SPEC_FULL.md §11 for the same cross-process caveat that applies there.
type AzureBlobStore struct {
	client        *azblob.Client
	containerName string
	blobName      string
	mu            sync.Mutex
	t             *table
	lastETag      azblob.ETag
	hasBlob       bool
}

// NewAzureBlobStore creates an Azure Blob Storage-backed store.
func NewAzureBlobStore(ctx context.Context, connectionString, containerName, blobName string) (*AzureBlobStore, error) {
	if connectionString == "" {
		return nil, errors.New("store: azure connection string is required")
	}
	if containerName == "" {
		return nil, errors.New("store: azure container name is required")
	}
	if blobName == "" {
		blobName = "cidrpit.json"
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create azure blob client: %w", err)
	}

	abs := &AzureBlobStore{
		client:        client,
		containerName: containerName,
		blobName:      blobName,
		t:             newTable(),
	}

	if err := abs.load(ctx); err != nil {
		if !bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("store: failed to load storage blob: %w", err)
		}
	}
	return abs, nil
}

func (abs *AzureBlobStore) load(ctx context.Context) error {
	resp, err := abs.client.DownloadStream(ctx, abs.containerName, abs.blobName, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("store: failed to read blob data: %w", err)
	}
	var items []node.Node
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("store: failed to parse blob data: %w", err)
		}
	}
	abs.t.replace(items)
	if resp.ETag != nil {
		abs.lastETag = *resp.ETag
	}
	abs.hasBlob = true
	return nil
}

func (abs *AzureBlobStore) save(ctx context.Context) error {
	data, err := json.MarshalIndent(abs.t.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to marshal storage data: %w", err)
	}

	var opts *azblob.UploadStreamOptions
	if abs.hasBlob {
		opts = &azblob.UploadStreamOptions{
			AccessConditions: &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{
					IfMatch: &abs.lastETag,
				},
			},
		}
	}

	resp, err := abs.client.UploadStream(ctx, abs.containerName, abs.blobName, bytes.NewReader(data), opts)
	if err != nil {
		return ErrConditionFailed
	}
	if resp.ETag != nil {
		abs.lastETag = *resp.ETag
	}
	abs.hasBlob = true
	return nil
}

func (abs *AzureBlobStore) Get(_ context.Context, key node.Key) (*node.Node, error) {
	return abs.t.get(key)
}

func (abs *AzureBlobStore) BatchGet(_ context.Context, keys []node.Key) ([]*node.Node, error) {
	return abs.t.batchGet(keys)
}

func (abs *AzureBlobStore) Put(ctx context.Context, n node.Node, cond Condition) error {
	abs.mu.Lock()
	defer abs.mu.Unlock()
	if err := abs.t.put(n, cond); err != nil {
		return err
	}
	return abs.save(ctx)
}

func (abs *AzureBlobStore) Delete(ctx context.Context, key node.Key, cond Condition) error {
	abs.mu.Lock()
	defer abs.mu.Unlock()
	if err := abs.t.delete(key, cond); err != nil {
		return err
	}
	return abs.save(ctx)
}

func (abs *AzureBlobStore) Transact(ctx context.Context, writes []Write) error {
	abs.mu.Lock()
	defer abs.mu.Unlock()
	if err := abs.t.transact(writes); err != nil {
		return err
	}
	return abs.save(ctx)
}

func (abs *AzureBlobStore) QueryRootIndex(_ context.Context, pool string) ([]node.Node, error) {
	return abs.t.queryRootIndex(pool), nil
}

func (abs *AzureBlobStore) QueryFreeCapacityTop(_ context.Context, pool string, lessThanPrefix int) (*node.Node, error) {
	return abs.t.queryFreeCapacityTop(pool, lessThanPrefix), nil
}

func (abs *AzureBlobStore) QueryReservationsByPool(_ context.Context, pool string) ([]node.Node, error) {
	return abs.t.queryReservationsByPool(pool), nil
}

func (abs *AzureBlobStore) QueryReservationsByRoot(_ context.Context, rootCIDR string) ([]node.Node, error) {
	return abs.t.queryReservationsByRoot(rootCIDR), nil
}
