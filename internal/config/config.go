// Package config loads ipamd's process configuration from the
// environment using viper, mirroring the store.Config/store.Factory
// switch-on-Type shape the storage backends themselves use.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/cthiel42/ipamd/internal/store"
)

// Config is ipamd's full runtime configuration.
type Config struct {
	HTTPAddr string
	LogLevel string
	Store    store.Config
}

// Load reads IPAMD_-prefixed environment variables into a Config. It
// never reads the environment directly outside viper and never panics;
// an unknown IPAMD_STORE_BACKEND is only caught later by store.Factory.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ipamd")
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("store_table", "CIDRpit")

	cfg := Config{
		HTTPAddr: v.GetString("http_addr"),
		LogLevel: v.GetString("log_level"),
		Store: store.Config{
			Backend:        v.GetString("store_backend"),
			FilePath:       v.GetString("store_file_path"),
			DynamoDBRegion: v.GetString("store_dynamodb_region"),
			DynamoDBTable:  v.GetString("store_table"),
			S3Region:       v.GetString("store_s3_region"),
			S3Bucket:       v.GetString("store_s3_bucket"),
			S3Key:          v.GetString("store_s3_key"),

			AzureConnectionString: v.GetString("store_azure_connection_string"),
			AzureContainer:        v.GetString("store_azure_container"),
			AzureBlob:             v.GetString("store_azure_blob"),
		},
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("config: invalid IPAMD_LOG_LEVEL %q", cfg.LogLevel)
	}

	return cfg, nil
}
