package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// DocumentStore is the blob contract pipelines work against: fetched source
// documents and derived artifacts (fulltext, page renders, extracted images,
// thumbnails) keyed under stable prefixes in the document and image buckets.
type DocumentStore interface {
	// SaveFromURL downloads url into the document bucket under key, unless the
	// stored blob is already at least as fresh as the source's Last-Modified.
	// A source that reports no Last-Modified counts as unchanged once a copy
	// exists. Returns (fetched=false, nil) for the no-op case.
	SaveFromURL(ctx context.Context, url string, key string) (fetched bool, err error)
	Exists(ctx context.Context, category gcp.BucketCategory, key string) (bool, error)
	Attrs(ctx context.Context, category gcp.BucketCategory, key string) (*gcp.ObjectAttrs, error)
	Upload(ctx context.Context, category gcp.BucketCategory, key string, r io.Reader) error
	Download(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, category gcp.BucketCategory, key string) error
	PublicURL(category gcp.BucketCategory, key string) string
}

type documentStore struct {
	log     *logger.Logger
	buckets gcp.BucketService
	http    *http.Client
}

func NewDocumentStore(log *logger.Logger, buckets gcp.BucketService) DocumentStore {
	return &documentStore{
		log:     log.With("service", "DocumentStore"),
		buckets: buckets,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (s *documentStore) SaveFromURL(ctx context.Context, url string, key string) (bool, error) {
	if strings.TrimSpace(url) == "" {
		return false, fmt.Errorf("missing url")
	}
	if strings.TrimSpace(key) == "" {
		return false, fmt.Errorf("missing key")
	}

	attrs, err := s.buckets.GetObjectAttrs(ctx, gcp.BucketCategoryDocument, key)
	if err == nil && attrs != nil {
		lm, ok := s.sourceLastModified(ctx, url)
		if !ok || !attrs.Updated.Before(lm) {
			s.log.Debug("document blob fresh, skipping fetch", "key", key)
			return false, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	if err := s.buckets.UploadFile(ctx, gcp.BucketCategoryDocument, key, resp.Body); err != nil {
		return false, fmt.Errorf("upload %s: %w", key, err)
	}
	return true, nil
}

// sourceLastModified issues a HEAD request and parses Last-Modified. Portals
// that omit the header count as unchanged once a copy is stored.
func (s *documentStore) sourceLastModified(ctx context.Context, url string) (time.Time, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return time.Time{}, false
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return time.Time{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, false
	}
	lm := strings.TrimSpace(resp.Header.Get("Last-Modified"))
	if lm == "" {
		return time.Time{}, false
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *documentStore) Exists(ctx context.Context, category gcp.BucketCategory, key string) (bool, error) {
	attrs, err := s.buckets.GetObjectAttrs(ctx, category, key)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return attrs != nil, nil
}

func (s *documentStore) Attrs(ctx context.Context, category gcp.BucketCategory, key string) (*gcp.ObjectAttrs, error) {
	return s.buckets.GetObjectAttrs(ctx, category, key)
}

func (s *documentStore) Upload(ctx context.Context, category gcp.BucketCategory, key string, r io.Reader) error {
	return s.buckets.UploadFile(ctx, category, key, r)
}

func (s *documentStore) Download(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	return s.buckets.DownloadFile(ctx, category, key)
}

func (s *documentStore) Delete(ctx context.Context, category gcp.BucketCategory, key string) error {
	return s.buckets.DeleteFile(ctx, category, key)
}

func (s *documentStore) PublicURL(category gcp.BucketCategory, key string) string {
	return s.buckets.GetPublicURL(category, key)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "doesn't exist") || strings.Contains(msg, "not exist") || strings.Contains(msg, "not found")
}
