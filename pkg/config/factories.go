package config

import (
	"context"
	"fmt"

	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/internal/ratelimiter"
	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/catalog/hfsplus"
	"github.com/marmos91/catwalk/pkg/catalog/store/badger"
	"github.com/marmos91/catwalk/pkg/catalog/store/memory"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/image"
	imageS3 "github.com/marmos91/catwalk/pkg/image/s3"
	"github.com/marmos91/catwalk/pkg/metrics"
	"github.com/marmos91/catwalk/pkg/volume"
	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a type-specific options map into out.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateImageSource opens the image source selected by cfg.Type, then
// narrows it to the configured partition and offset.
//
// Supported types:
//   - "file": a local raw image (pkg/image, pkg/volume for partitions)
//   - "s3": an object in Amazon S3 or compatible storage (pkg/image/s3)
func CreateImageSource(ctx context.Context, cfg *ImageConfig) (image.Source, error) {
	var (
		src image.Source
		err error
	)

	switch cfg.Type {
	case "file":
		src, err = createFileImageSource(cfg.File, cfg.Partition)
	case "s3":
		src, err = createS3ImageSource(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown image source type: %q (supported: file, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Offset == 0 {
		return src, nil
	}
	section, err := image.Section(src, cfg.Offset, src.Size()-cfg.Offset)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("image offset %d: %w", cfg.Offset, err)
	}
	return section, nil
}

// createFileImageSource opens a local image file.
func createFileImageSource(options map[string]any, partition int) (image.Source, error) {
	type FileImageSourceConfig struct {
		Path string `mapstructure:"path"`
	}

	var srcCfg FileImageSourceConfig
	if err := decodeOptions(options, &srcCfg); err != nil {
		return nil, fmt.Errorf("failed to decode file image source config: %w", err)
	}

	if srcCfg.Path == "" {
		return nil, fmt.Errorf("file image source: path is required")
	}

	src, err := volume.Open(srcCfg.Path, partition)
	if err != nil {
		return nil, err
	}

	logger.Debug("File image source opened: path=%s, partition=%d, size=%d", srcCfg.Path, partition, src.Size())
	return src, nil
}

// createS3ImageSource opens an image stored as one S3 object.
func createS3ImageSource(ctx context.Context, options map[string]any) (image.Source, error) {
	type S3ImageSourceConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		Key             string `mapstructure:"key"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`

		BlockSize int64 `mapstructure:"block_size"`
		CacheSize int64 `mapstructure:"cache_size"`

		RequestsPerSecond uint `mapstructure:"requests_per_second"`
		Burst             uint `mapstructure:"burst"`
		BytesPerSecond    uint `mapstructure:"bytes_per_second"`
	}

	var srcCfg S3ImageSourceConfig
	if err := decodeOptions(options, &srcCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 image source config: %w", err)
	}

	if srcCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 image source: bucket is required")
	}
	if srcCfg.Key == "" {
		return nil, fmt.Errorf("S3 image source: key is required")
	}
	if srcCfg.Region == "" {
		return nil, fmt.Errorf("S3 image source: region is required")
	}

	client, err := imageS3.NewClient(ctx, imageS3.ClientConfig{
		Region:          srcCfg.Region,
		Endpoint:        srcCfg.Endpoint,
		AccessKeyID:     srcCfg.AccessKeyID,
		SecretAccessKey: srcCfg.SecretAccessKey,
		MaxRetries:      srcCfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	src, err := imageS3.Open(ctx, imageS3.Config{
		Client:    client,
		Bucket:    srcCfg.Bucket,
		Key:       srcCfg.Key,
		BlockSize: srcCfg.BlockSize,
		CacheSize: srcCfg.CacheSize,
		Limiter: ratelimiter.New(ratelimiter.Config{
			RequestsPerSecond: srcCfg.RequestsPerSecond,
			Burst:             srcCfg.Burst,
			BytesPerSecond:    srcCfg.BytesPerSecond,
		}),
		Metrics: metrics.NewS3ImageMetrics(),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("S3 image source opened: bucket=%s, key=%s, region=%s, size=%d",
		srcCfg.Bucket, srcCfg.Key, srcCfg.Region, src.Size())
	return src, nil
}

// CreateInodeStore creates the inode store selected by cfg.Store.
//
// Supported types:
//   - "memory": pkg/catalog/store/memory (ephemeral)
//   - "badger": pkg/catalog/store/badger (persistent or in-memory BadgerDB)
func CreateInodeStore(ctx context.Context, cfg *CatalogConfig) (catalog.InodeStore, error) {
	switch cfg.Store {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return memory.NewMemoryInodeStore(), nil
	case "badger":
		return createBadgerInodeStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown inode store type: %q (supported: memory, badger)", cfg.Store)
	}
}

// createBadgerInodeStore creates a BadgerDB-based inode store.
func createBadgerInodeStore(ctx context.Context, options map[string]any) (catalog.InodeStore, error) {
	type BadgerInodeStoreOptions struct {
		DBPath           string `mapstructure:"db_path"`
		InMemory         bool   `mapstructure:"in_memory"`
		BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
	}

	var storeOpts BadgerInodeStoreOptions
	if err := decodeOptions(options, &storeOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger inode store options: %w", err)
	}

	if storeOpts.DBPath == "" && !storeOpts.InMemory {
		return nil, fmt.Errorf("badger inode store: db_path is required")
	}

	store, err := badger.NewBadgerInodeStore(ctx, badger.BadgerInodeStoreConfig{
		DBPath:           storeOpts.DBPath,
		InMemory:         storeOpts.InMemory,
		BlockCacheSizeMB: storeOpts.BlockCacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger inode store: %w", err)
	}

	return store, nil
}

// OpenCatalog opens the configured image and loads its catalog into the
// configured inode store. Damaged records are reported to state.
//
// The returned volume owns the source and the store.
func OpenCatalog(ctx context.Context, cfg *Config, state *diag.State) (*catalog.Volume, hfsplus.LoadStats, error) {
	src, err := CreateImageSource(ctx, &cfg.Image)
	if err != nil {
		return nil, hfsplus.LoadStats{}, err
	}

	store, err := CreateInodeStore(ctx, &cfg.Catalog)
	if err != nil {
		src.Close()
		return nil, hfsplus.LoadStats{}, err
	}

	switch cfg.Catalog.Format {
	case "hfsplus":
		vol, stats, err := hfsplus.OpenWithStats(ctx, src, store, hfsplus.Options{State: state})
		if err != nil {
			store.Close()
			src.Close()
			return nil, stats, err
		}
		logger.Info("Catalog loaded: format=%s, nodes=%d, folders=%d, files=%d, skipped=%d",
			vol.Name(), stats.Nodes, stats.Folders, stats.Files, stats.Skipped)
		return vol, stats, nil
	default:
		store.Close()
		src.Close()
		return nil, hfsplus.LoadStats{}, fmt.Errorf("unknown catalog format: %q (supported: hfsplus)", cfg.Catalog.Format)
	}
}
