package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient serves one object from memory and counts requests.
type fakeClient struct {
	bucket, key string
	data        []byte
	gets        int
	ranges      []string
	getErr      error
}

func (c *fakeClient) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Bucket) != c.bucket || aws.ToString(in.Key) != c.key {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(c.data)))}, nil
}

func (c *fakeClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	r := aws.ToString(in.Range)
	c.ranges = append(c.ranges, r)

	var start, end int
	if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
		return nil, err
	}
	end = min(end, len(c.data)-1)
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(c.data[start : end+1]))}, nil
}

type countingMetrics struct {
	requests map[string]int
	bytes    int64
	hits     int
	misses   int
}

func (m *countingMetrics) ObserveRequest(op string, _ time.Duration, _ error) { m.requests[op]++ }
func (m *countingMetrics) RecordBytes(n int64)                                { m.bytes += n }
func (m *countingMetrics) RecordCache(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func newFake(size int) *fakeClient {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return &fakeClient{bucket: "evidence", key: "disk.dd", data: data}
}

func TestSource_ReadAt(t *testing.T) {
	client := newFake(10_000)
	src, err := Open(context.Background(), Config{Client: client, Bucket: "evidence", Key: "disk.dd", BlockSize: 1024})
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(10_000), src.Size())

	// Spans blocks 0 and 1.
	b, err := image.ReadFull(src, 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, client.data[1000:1100], b)
	assert.Equal(t, []string{"bytes=0-1023", "bytes=1024-2047"}, client.ranges)
}

func TestSource_CachesBlocks(t *testing.T) {
	client := newFake(4096)
	m := &countingMetrics{requests: map[string]int{}}
	src, err := Open(context.Background(), Config{
		Client: client, Bucket: "evidence", Key: "disk.dd", BlockSize: 1024, Metrics: m,
	})
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 5; i++ {
		_, err := image.ReadFull(src, 10, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, client.gets)
	assert.Equal(t, 4, m.hits)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, int64(1024), m.bytes)
	assert.Equal(t, 1, m.requests["HeadObject"])
	assert.Equal(t, 1, m.requests["GetObject"])
}

func TestSource_NoCache(t *testing.T) {
	client := newFake(4096)
	src, err := Open(context.Background(), Config{
		Client: client, Bucket: "evidence", Key: "disk.dd", BlockSize: 1024, CacheSize: -1,
	})
	require.NoError(t, err)
	defer src.Close()

	for i := 0; i < 3; i++ {
		_, err := image.ReadFull(src, 10, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, client.gets)
}

func TestSource_ShortLastBlock(t *testing.T) {
	client := newFake(1500)
	src, err := Open(context.Background(), Config{Client: client, Bucket: "evidence", Key: "disk.dd", BlockSize: 1024})
	require.NoError(t, err)
	defer src.Close()

	p := make([]byte, 100)
	n, err := src.ReadAt(p, 1450)
	assert.Equal(t, 50, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, client.data[1450:], p[:n])
	assert.Equal(t, []string{"bytes=1024-1499"}, client.ranges)

	_, err = src.ReadAt(p, 1500)
	assert.ErrorIs(t, err, io.EOF)

	_, err = image.ReadFull(src, 1450, 100)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.ImgReadOff)))
}

func TestSource_GetFailure(t *testing.T) {
	client := newFake(2048)
	client.getErr = errors.New("connection reset")
	src, err := Open(context.Background(), Config{Client: client, Bucket: "evidence", Key: "disk.dd"})
	require.NoError(t, err)
	defer src.Close()

	_, err = image.ReadFull(src, 0, 16)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.ImgRead)))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestOpen_MissingObject(t *testing.T) {
	client := newFake(16)
	_, err := Open(context.Background(), Config{Client: client, Bucket: "evidence", Key: "other.dd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.ImgNoFile)))
}

func TestOpen_RequiresClientAndKey(t *testing.T) {
	_, err := Open(context.Background(), Config{Bucket: "b", Key: "k"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Client: newFake(1), Bucket: "b"})
	assert.True(t, errors.Is(err, diag.Sentinel(diag.ImgNoFile)))
}

func TestNewClient_RequiresRegion(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{})
	assert.Error(t, err)
}
