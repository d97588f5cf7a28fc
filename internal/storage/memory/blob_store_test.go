package memory

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	blob "github.com/JakeFAU/stagebridge/internal/storage"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "sessions/a.ndjson", "application/x-ndjson", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://sessions/a.ndjson" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("sessions/a.ndjson")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	stored[0] = 'X'
	again, _ := store.Get("sessions/a.ndjson")
	if string(again) != "content" {
		t.Fatalf("expected Get to return a copy, got %q", again)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	if _, err := store.PutObject(context.Background(), " ", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestBlobStoreIsWriteOnce(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	if _, err := store.PutObject(ctx, "sessions/b.ndjson", "", strings.NewReader("one")); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	_, err := store.PutObject(ctx, "sessions/b.ndjson", "", strings.NewReader("two"))
	if !errors.Is(err, blob.ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
	if got, _ := store.Get("sessions/b.ndjson"); string(got) != "one" {
		t.Fatalf("first write must survive, got %q", got)
	}
	if ct := store.ContentType("sessions/b.ndjson"); ct != blob.NDJSON {
		t.Fatalf("unexpected content type %q", ct)
	}
}
