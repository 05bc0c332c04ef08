// Package s3 serves raw images stored as S3 objects.
//
// Reads are issued as ranged GetObject requests aligned to fixed-size
// blocks, and recently read blocks are kept in a ristretto cache: catalog
// walks issue many tiny reads (two-byte key lengths, short names) that would
// otherwise each cost a round trip.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/internal/ratelimiter"
	"github.com/marmos91/catwalk/pkg/diag"
)

const (
	// DefaultBlockSize is the size of one ranged read.
	DefaultBlockSize = 64 * 1024

	// DefaultCacheSize is the default block cache budget in bytes.
	DefaultCacheSize = 64 * 1024 * 1024
)

// Client is the subset of *s3.Client used by Source.
type Client interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Metrics observes S3 image reads. A nil Metrics disables collection.
type Metrics interface {
	// ObserveRequest records one GetObject/HeadObject with its outcome
	ObserveRequest(operation string, duration time.Duration, err error)

	// RecordBytes records bytes fetched from S3
	RecordBytes(n int64)

	// RecordCache records a block cache hit or miss
	RecordCache(hit bool)
}

// Config configures a Source.
type Config struct {
	Client Client
	Bucket string
	Key    string

	// BlockSize is the granularity of ranged reads (default 64KiB)
	BlockSize int64

	// CacheSize is the block cache budget in bytes (default 64MiB).
	// Negative disables caching.
	CacheSize int64

	// Limiter throttles requests; nil means unlimited
	Limiter *ratelimiter.Limiter

	Metrics Metrics
}

// Source is an image.Source backed by one S3 object.
//
// io.ReaderAt carries no context, so reads run under the context given to
// Open: cancelling it fails every later read.
type Source struct {
	ctx     context.Context
	client  Client
	bucket  string
	key     string
	size    int64
	block   int64
	cache   *ristretto.Cache[int64, []byte]
	limiter *ratelimiter.Limiter
	metrics Metrics
}

// Open resolves the object size with HeadObject and returns a Source.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Client == nil {
		return nil, diag.New(diag.ImgOpen, "s3 image source: client is required")
	}
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, diag.New(diag.ImgNoFile, "s3 image source: bucket and key are required")
	}

	s := &Source{
		ctx:     ctx,
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		key:     cfg.Key,
		block:   cfg.BlockSize,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
	}
	if s.block <= 0 {
		s.block = DefaultBlockSize
	}
	if s.limiter == nil {
		s.limiter = ratelimiter.Unlimited()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}

	cacheSize := cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[int64, []byte]{
			NumCounters: max(10*cacheSize/s.block, 100),
			MaxCost:     cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create block cache: %w", err)
		}
		s.cache = cache
	}

	if err := s.limiter.Acquire(ctx, 0); err != nil {
		s.Close()
		return nil, diag.Wrap(diag.ImgStat, err, "s3://%s/%s", s.bucket, s.key)
	}
	start := time.Now()
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	s.metrics.ObserveRequest("HeadObject", time.Since(start), err)
	if err != nil {
		s.Close()
		var notFound *types.NotFound
		var noKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noKey) {
			return nil, diag.Wrap(diag.ImgNoFile, err, "s3://%s/%s", s.bucket, s.key)
		}
		return nil, diag.Wrap(diag.ImgStat, err, "s3://%s/%s", s.bucket, s.key)
	}
	if head.ContentLength == nil {
		s.Close()
		return nil, diag.New(diag.ImgStat, "s3://%s/%s: content length not available", s.bucket, s.key)
	}
	s.size = *head.ContentLength

	logger.Info("S3 image opened: s3://%s/%s (%d bytes, %d byte blocks)", s.bucket, s.key, s.size, s.block)
	return s, nil
}

// Size returns the object length.
func (s *Source) Size() int64 {
	return s.size
}

// ReadAt implements io.ReaderAt over cached blocks.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("s3 image: negative offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off+int64(n) < s.size {
		pos := off + int64(n)
		idx := pos / s.block

		blk, err := s.readBlock(idx)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], blk[pos-idx*s.block:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// readBlock returns block idx, from the cache when possible.
func (s *Source) readBlock(idx int64) ([]byte, error) {
	if s.cache != nil {
		if blk, ok := s.cache.Get(idx); ok {
			s.metrics.RecordCache(true)
			return blk, nil
		}
		s.metrics.RecordCache(false)
	}

	start := idx * s.block
	end := min(start+s.block, s.size) - 1

	if err := s.limiter.Acquire(s.ctx, int(end-start+1)); err != nil {
		return nil, err
	}

	t := time.Now()
	blk, err := s.get(start, end)
	s.metrics.ObserveRequest("GetObject", time.Since(t), err)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBytes(int64(len(blk)))

	if s.cache != nil {
		s.cache.Set(idx, blk, int64(len(blk)))
		s.cache.Wait()
	}
	return blk, nil
}

func (s *Source) get(start, end int64) ([]byte, error) {
	// S3 ranges are inclusive.
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s range %d-%d: %w", s.bucket, s.key, start, end, err)
	}
	defer func() { _ = out.Body.Close() }()

	blk := make([]byte, end-start+1)
	if _, err := io.ReadFull(out.Body, blk); err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s range %d-%d: %w", s.bucket, s.key, start, end, err)
	}
	return blk, nil
}

// Close releases the block cache.
func (s *Source) Close() error {
	if s.cache != nil {
		s.cache.Close()
		s.cache = nil
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(int64)                           {}
func (noopMetrics) RecordCache(bool)                            {}
