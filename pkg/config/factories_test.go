package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
)

func writeImage(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.dd")
	img := make([]byte, size)
	for i := range img {
		img[i] = byte(i)
	}
	if err := os.WriteFile(path, img, 0644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	return path
}

func TestCreateInodeStore_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := &CatalogConfig{Store: "memory"}

	store, err := CreateInodeStore(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateInodeStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Put(ctx, &catalog.Inode{Inum: 2, Parent: 1, Type: catalog.RecordFolder}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Expected 1 inode, got %d", n)
	}
}

func TestCreateInodeStore_Badger(t *testing.T) {
	cfg := &CatalogConfig{
		Store: "badger",
		Badger: map[string]any{
			"db_path":        filepath.Join(t.TempDir(), "catalog"),
			"block_cache_mb": 8,
		},
	}

	store, err := CreateInodeStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateInodeStore failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestCreateInodeStore_BadgerInMemory(t *testing.T) {
	cfg := &CatalogConfig{Store: "badger", Badger: map[string]any{"in_memory": "true"}}

	store, err := CreateInodeStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateInodeStore failed: %v", err)
	}
	store.Close()
}

func TestCreateInodeStore_Errors(t *testing.T) {
	if _, err := CreateInodeStore(context.Background(), &CatalogConfig{Store: "badger", Badger: map[string]any{}}); err == nil ||
		!strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected missing db_path error, got: %v", err)
	}

	if _, err := CreateInodeStore(context.Background(), &CatalogConfig{Store: "redis"}); err == nil {
		t.Error("Expected error for unknown store type")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CreateInodeStore(ctx, &CatalogConfig{Store: "memory"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestCreateImageSource_File(t *testing.T) {
	path := writeImage(t, 4096)

	src, err := CreateImageSource(context.Background(), &ImageConfig{
		Type: "file",
		File: map[string]any{"path": path},
	})
	if err != nil {
		t.Fatalf("CreateImageSource failed: %v", err)
	}
	defer src.Close()

	if src.Size() != 4096 {
		t.Errorf("Expected size 4096, got %d", src.Size())
	}
}

func TestCreateImageSource_Offset(t *testing.T) {
	path := writeImage(t, 4096)

	src, err := CreateImageSource(context.Background(), &ImageConfig{
		Type:   "file",
		Offset: 1024,
		File:   map[string]any{"path": path},
	})
	if err != nil {
		t.Fatalf("CreateImageSource failed: %v", err)
	}
	defer src.Close()

	if src.Size() != 3072 {
		t.Errorf("Expected size 3072, got %d", src.Size())
	}
	b := make([]byte, 1)
	if _, err := src.ReadAt(b, 1); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if b[0] != byte(1025%256) {
		t.Errorf("Expected byte at image offset 1025, got %d", b[0])
	}
}

func TestCreateImageSource_OffsetPastEnd(t *testing.T) {
	path := writeImage(t, 512)

	_, err := CreateImageSource(context.Background(), &ImageConfig{
		Type:   "file",
		Offset: 1024,
		File:   map[string]any{"path": path},
	})
	if !errors.Is(err, diag.Sentinel(diag.ImgOffset)) {
		t.Errorf("Expected ImgOffset error, got: %v", err)
	}
}

func TestCreateImageSource_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     ImageConfig
		wantErr string
	}{
		{"file without path", ImageConfig{Type: "file", File: map[string]any{}}, "path is required"},
		{"s3 without bucket", ImageConfig{Type: "s3", S3: map[string]any{"key": "disk.dd", "region": "eu-west-1"}}, "bucket is required"},
		{"s3 without key", ImageConfig{Type: "s3", S3: map[string]any{"bucket": "evidence", "region": "eu-west-1"}}, "key is required"},
		{"s3 without region", ImageConfig{Type: "s3", S3: map[string]any{"bucket": "evidence", "key": "disk.dd"}}, "region is required"},
		{"unknown type", ImageConfig{Type: "nbd"}, "unknown image source type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateImageSource(ctx, &tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenCatalog_NotHFSPlus(t *testing.T) {
	path := writeImage(t, 4096)

	cfg := GetDefaultConfig()
	cfg.Image.File["path"] = path

	var state diag.State
	_, _, err := OpenCatalog(context.Background(), cfg, &state)
	if !errors.Is(err, diag.Sentinel(diag.FSMagic)) {
		t.Errorf("Expected FSMagic error, got: %v", err)
	}
}

func TestOpenCatalog_MissingImage(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Image.File["path"] = filepath.Join(t.TempDir(), "absent.dd")

	if _, _, err := OpenCatalog(context.Background(), cfg, nil); err == nil {
		t.Error("Expected error for a missing image")
	}
}
