package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

type memBucket struct {
	objects map[string][]byte
	updated map[string]time.Time
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, updated: map[string]time.Time{}}
}

func (m *memBucket) objKey(category gcp.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (m *memBucket) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	k := m.objKey(category, key)
	m.objects[k] = data
	m.updated[k] = time.Now().UTC()
	return nil
}

func (m *memBucket) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	k := m.objKey(category, key)
	if _, ok := m.objects[k]; !ok {
		return fmt.Errorf("object %q not found", key)
	}
	delete(m.objects, k)
	delete(m.updated, k)
	return nil
}

func (m *memBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	data, ok := m.objects[m.objKey(category, key)]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBucket) GetObjectAttrs(ctx context.Context, category gcp.BucketCategory, key string) (*gcp.ObjectAttrs, error) {
	k := m.objKey(category, key)
	data, ok := m.objects[k]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return &gcp.ObjectAttrs{Size: int64(len(data)), Updated: m.updated[k]}, nil
}

func (m *memBucket) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	return nil, nil
}

func (m *memBucket) DeletePrefix(ctx context.Context, category gcp.BucketCategory, prefix string) error {
	return nil
}

func (m *memBucket) GetPublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.example.com/" + string(category) + "/" + key
}

func TestDocumentStoreSaveFromURL(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var gets, heads atomic.Int64
	lastModified := time.Now().UTC().Add(-24 * time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
		case http.MethodGet:
			gets.Add(1)
			fmt.Fprint(w, "%PDF-1.4 fake report body")
		}
	}))
	defer srv.Close()

	bucket := newMemBucket()
	store := NewDocumentStore(log, bucket)
	ctx := context.Background()

	// First save always fetches.
	fetched, err := store.SaveFromURL(ctx, srv.URL+"/reports/21.pdf", "documents/21/source.pdf")
	if err != nil || !fetched {
		t.Fatalf("first save: fetched=%v err=%v", fetched, err)
	}
	if gets.Load() != 1 {
		t.Fatalf("gets = %d, want 1", gets.Load())
	}

	// Stored blob is newer than the source Last-Modified, so the second
	// save is a freshness no-op.
	fetched, err = store.SaveFromURL(ctx, srv.URL+"/reports/21.pdf", "documents/21/source.pdf")
	if err != nil || fetched {
		t.Fatalf("fresh save: fetched=%v err=%v", fetched, err)
	}
	if gets.Load() != 1 {
		t.Fatalf("fresh blob refetched: gets = %d", gets.Load())
	}
	if heads.Load() == 0 {
		t.Fatalf("freshness check never issued a HEAD")
	}

	// A source updated after our stored copy forces a refetch.
	lastModified = time.Now().UTC().Add(time.Hour)
	fetched, err = store.SaveFromURL(ctx, srv.URL+"/reports/21.pdf", "documents/21/source.pdf")
	if err != nil || !fetched {
		t.Fatalf("stale save: fetched=%v err=%v", fetched, err)
	}
	if gets.Load() != 2 {
		t.Fatalf("gets = %d, want 2", gets.Load())
	}
}

func TestDocumentStoreSaveFromURLNoLastModified(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var gets atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
			fmt.Fprint(w, "body")
		}
	}))
	defer srv.Close()

	store := NewDocumentStore(log, newMemBucket())
	ctx := context.Background()

	fetched, err := store.SaveFromURL(ctx, srv.URL+"/doc.pdf", "documents/x/source.pdf")
	if err != nil || !fetched {
		t.Fatalf("first save: fetched=%v err=%v", fetched, err)
	}

	// Without Last-Modified an existing copy counts as fresh: two calls in
	// succession with no change at the source download exactly once.
	fetched, err = store.SaveFromURL(ctx, srv.URL+"/doc.pdf", "documents/x/source.pdf")
	if err != nil || fetched {
		t.Fatalf("second save: fetched=%v err=%v", fetched, err)
	}
	if gets.Load() != 1 {
		t.Fatalf("gets = %d, want 1", gets.Load())
	}
}

func TestDocumentStoreSaveFromURLErrors(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewDocumentStore(log, newMemBucket())
	ctx := context.Background()

	if _, err := store.SaveFromURL(ctx, "", "documents/x/source.pdf"); err == nil {
		t.Fatalf("expected error for missing url")
	}
	if _, err := store.SaveFromURL(ctx, srv.URL+"/gone.pdf", ""); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := store.SaveFromURL(ctx, srv.URL+"/gone.pdf", "documents/x/source.pdf"); err == nil {
		t.Fatalf("expected error for 404 source")
	}
}

func TestDocumentStoreExists(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	bucket := newMemBucket()
	store := NewDocumentStore(log, bucket)
	ctx := context.Background()

	ok, err := store.Exists(ctx, gcp.BucketCategoryImage, "thumbnails/a.png")
	if err != nil || ok {
		t.Fatalf("Exists on empty bucket: ok=%v err=%v", ok, err)
	}

	if err := store.Upload(ctx, gcp.BucketCategoryImage, "thumbnails/a.png", bytes.NewReader([]byte("png"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err = store.Exists(ctx, gcp.BucketCategoryImage, "thumbnails/a.png")
	if err != nil || !ok {
		t.Fatalf("Exists after upload: ok=%v err=%v", ok, err)
	}

	rc, err := store.Download(ctx, gcp.BucketCategoryImage, "thumbnails/a.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "png" {
		t.Fatalf("Download: %q", data)
	}
}
