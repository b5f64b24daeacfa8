package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8000/static")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()
	key, err := store.Put(ctx, "archives/1/exam.pdf", "application/pdf", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "archives/1/exam.pdf" {
		t.Fatalf("key = %q, want archives/1/exam.pdf", key)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q, want hello", data)
	}
}

func TestFileStorePresignedGetURL(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8000/static/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	u, err := store.PresignedGetURL(context.Background(), "archives/1/exam.pdf", "期中考.pdf", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:8000/static/archives/1/exam.pdf?filename=") {
		t.Fatalf("url = %q", u)
	}
}

func TestFileStoreDeleteMissingKeyIsNoop(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8000/static")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Delete(context.Background(), "archives/none.pdf"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"archives/1/exam.pdf", "archives/1/exam.pdf", false},
		{"/archives/1/exam.pdf", "archives/1/exam.pdf", false},
		{"./archives/exam.pdf", "archives/exam.pdf", false},
		{"../escape.pdf", "", true},
		{"a/../../escape.pdf", "", true},
		{"", "", true},
		{"   ", "", true},
	}
	for _, tc := range tests {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("sanitizeKey(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
