package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestFSStoreLayout(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Put(context.Background(), &Object{Key: "abcdef", Type: ObjectTypeArtifact, Data: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	objectPath := filepath.Join(tmpDir, "objects", "ab", "cdef")
	if _, err := os.Stat(objectPath); err != nil {
		t.Errorf("object file not created: %v", err)
	}
	if _, err := os.Stat(objectPath + metaSuffix); err != nil {
		t.Errorf("metadata file not created: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(tmpDir, "objects", "ab"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFSStoreGetHasNoSideEffects(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, &Object{Key: "abcdef", Type: ObjectTypeArtifact, Data: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	metaPath := store.objectPath("abcdef") + metaSuffix
	before, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := store.Get(ctx, "abcdef")
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			if string(obj.Data) != "x" {
				t.Errorf("Get data = %q, want %q", obj.Data, "x")
			}
		}()
	}
	wg.Wait()

	after, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("metadata rewritten by Get:\nbefore %s\nafter  %s", before, after)
	}
}

func TestFSStoreCompressionOnDisk(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewFSStore(tmpDir, WithCompression(true))
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer store.Close()

	data := bytes.Repeat([]byte("highly repetitive artifact content "), 200)
	if err := store.Put(context.Background(), &Object{Key: "c0ffee", Type: ObjectTypeArtifact, Data: data}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	onDisk, err := os.ReadFile(store.objectPath("c0ffee"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(onDisk) >= len(data) {
		t.Errorf("expected compressed record smaller than %d bytes, got %d", len(data), len(onDisk))
	}

	got, err := store.Get(context.Background(), "c0ffee")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Error("decompressed data does not match")
	}
}

func TestFSStoreReopen(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	first, err := NewFSStore(tmpDir, WithCompression(true))
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if err := first.Put(ctx, &Object{Key: "feed01", Type: ObjectTypeArtifact, Data: []byte("persisted")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = first.Close()

	// A store opened without compression still reads compressed records.
	second, err := NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "feed01")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "persisted" {
		t.Errorf("got %q, want %q", got.Data, "persisted")
	}
}
