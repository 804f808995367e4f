package store

import (
	"context"
	"fmt"
)

// Config selects and parameterizes a KeyedStore backend. Mirrors the
// teacher's storage.Config/storage.Factory switch-on-Type shape
// (internal/provider/storage/interface.go), generalized to this
// package's five backends.
type Config struct {
	Backend string // "memory" (default), "file", "dynamodb", "s3", "azureblob"

	FilePath string

	DynamoDBRegion string
	DynamoDBTable  string

	S3Region string
	S3Bucket string
	S3Key    string

	AzureConnectionString string
	AzureContainer        string
	AzureBlob             string
}

// Factory builds the KeyedStore named by cfg.Backend.
func Factory(ctx context.Context, cfg Config) (KeyedStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.FilePath)
	case "dynamodb":
		return NewDynamoDBStore(ctx, cfg.DynamoDBRegion, cfg.DynamoDBTable)
	case "s3":
		return NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Key)
	case "azureblob":
		return NewAzureBlobStore(ctx, cfg.AzureConnectionString, cfg.AzureContainer, cfg.AzureBlob)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
