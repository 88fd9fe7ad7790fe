package document_process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/localmedia"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
	"github.com/civiclens/civiclens-backend/internal/services"
)

type fakeJobRepo struct {
	jobs map[uuid.UUID]*types.JobRun
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, rows []*types.JobRun) ([]*types.JobRun, error) {
	return rows, nil
}

func (f *fakeJobRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if j, ok := f.jobs[id]; ok {
		applyJobFields(j, updates)
	}
	return nil
}

func (f *fakeJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	j, ok := f.jobs[id]
	if !ok {
		return false, nil
	}
	for _, s := range disallowed {
		if j.Status == s {
			return false, nil
		}
	}
	applyJobFields(j, updates)
	return true, nil
}

func (f *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) ExistsRunnable(dbc dbctx.Context, jobType, entityType string, entityID *uuid.UUID) (bool, error) {
	return false, nil
}

func applyJobFields(j *types.JobRun, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			j.Status, _ = v.(string)
		case "stage":
			j.Stage, _ = v.(string)
		case "error":
			j.Error, _ = v.(string)
		case "result":
			if raw, ok := v.(datatypes.JSON); ok {
				j.Result = raw
			}
		}
	}
}

type fakeDocumentRepo struct {
	docs map[uuid.UUID]*types.Document
}

func (r *fakeDocumentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	return docs, nil
}

func (r *fakeDocumentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	for _, id := range ids {
		if d, ok := r.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Document, error) {
	return nil, nil
}

func (r *fakeDocumentRepo) GetByURL(dbc dbctx.Context, proposalID uuid.UUID, url string) (*types.Document, error) {
	return nil, nil
}

func (r *fakeDocumentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

type fakeImageRepo struct {
	created []*types.Image
}

func (r *fakeImageRepo) Create(dbc dbctx.Context, images []*types.Image) ([]*types.Image, error) {
	r.created = append(r.created, images...)
	return images, nil
}

func (r *fakeImageRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) GetByURL(dbc dbctx.Context, url string) (*types.Image, error) {
	return nil, nil
}

func (r *fakeImageRepo) ExistsBySource(dbc dbctx.Context, proposalID uuid.UUID, source string) (bool, error) {
	return false, nil
}

func (r *fakeImageRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeImageRepo) Delete(dbc dbctx.Context, id uuid.UUID) error { return nil }

type fakeAttributeRepo struct {
	attrs map[string]*types.Attribute
}

func newFakeAttributeRepo() *fakeAttributeRepo {
	return &fakeAttributeRepo{attrs: map[string]*types.Attribute{}}
}

func (r *fakeAttributeRepo) GetByProposal(dbc dbctx.Context, proposalID uuid.UUID) ([]*types.Attribute, error) {
	return nil, nil
}

func (r *fakeAttributeRepo) GetByHandle(dbc dbctx.Context, proposalID uuid.UUID, handle string) (*types.Attribute, error) {
	return r.attrs[handle], nil
}

func (r *fakeAttributeRepo) Upsert(dbc dbctx.Context, attr *types.Attribute) (bool, error) {
	r.attrs[attr.Handle] = attr
	return true, nil
}

type fakeBlobStore struct {
	blobs     map[string][]byte
	saveErr   error
	saves     int
	downloads int
}

func (s *fakeBlobStore) SaveFromURL(ctx context.Context, url string, key string) (bool, error) {
	s.saves++
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if _, ok := s.blobs[key]; ok {
		return false, nil
	}
	s.blobs[key] = []byte("%PDF-1.4 fake")
	return true, nil
}

func (s *fakeBlobStore) Exists(ctx context.Context, category gcp.BucketCategory, key string) (bool, error) {
	_, ok := s.blobs[key]
	return ok, nil
}

func (s *fakeBlobStore) Attrs(ctx context.Context, category gcp.BucketCategory, key string) (*gcp.ObjectAttrs, error) {
	return nil, fmt.Errorf("not found")
}

func (s *fakeBlobStore) Upload(ctx context.Context, category gcp.BucketCategory, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.blobs[key] = data
	return nil
}

func (s *fakeBlobStore) Download(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	s.downloads++
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeBlobStore) Delete(ctx context.Context, category gcp.BucketCategory, key string) error {
	delete(s.blobs, key)
	return nil
}

func (s *fakeBlobStore) PublicURL(category gcp.BucketCategory, key string) string {
	return "https://cdn.test/" + key
}

var _ services.DocumentStore = (*fakeBlobStore)(nil)

type fakeTools struct {
	textCalls     int
	lastEncoding  string
	firstPageText string
	properties    map[string]string
}

func (m *fakeTools) AssertReady(ctx context.Context) error { return nil }

func (m *fakeTools) ExtractText(ctx context.Context, pdfPath string, outPath string, opts localmedia.TextExtractOptions) (string, error) {
	m.textCalls++
	m.lastEncoding = opts.Encoding
	text := m.firstPageText + "\fPage Two: ignored"
	if err := os.WriteFile(outPath, []byte(text), 0o600); err != nil {
		return "", err
	}
	return outPath, nil
}

func (m *fakeTools) ExtractImages(ctx context.Context, pdfPath string, outDir string) ([]string, error) {
	return nil, nil
}

func (m *fakeTools) RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts localmedia.PDFRenderOptions) (string, error) {
	out := outDir + "/page-1.png"
	if err := os.WriteFile(out, []byte("raster"), 0o600); err != nil {
		return "", err
	}
	return out, nil
}

func (m *fakeTools) PDFProperties(ctx context.Context, pdfPath string) (map[string]string, error) {
	if m.properties == nil {
		return map[string]string{}, nil
	}
	return m.properties, nil
}

func (m *fakeTools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	return 1, nil
}

func (m *fakeTools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	f, err := os.CreateTemp("", "docproc-*"+suffix)
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	f.Close()
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

type fakeThumbnailer struct{}

func (fakeThumbnailer) Thumbnail(r io.Reader) ([]byte, error) {
	return []byte("thumb"), nil
}

type recordingHooks struct {
	created []string
}

func (h *recordingHooks) EntityCreated(dbc dbctx.Context, entityType string, id uuid.UUID, created bool) {
	h.created = append(h.created, entityType)
}

type fixture struct {
	pipeline *Pipeline
	doc      *types.Document
	store    *fakeBlobStore
	media    *fakeTools
	attrs    *fakeAttributeRepo
	images   *fakeImageRepo
	hooks    *recordingHooks
}

func newFixture(t *testing.T, doc *types.Document, encoding string) *fixture {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	f := &fixture{
		doc:    doc,
		store:  &fakeBlobStore{blobs: map[string][]byte{}},
		media:  &fakeTools{firstPageText: "cover page"},
		attrs:  newFakeAttributeRepo(),
		images: &fakeImageRepo{},
		hooks:  &recordingHooks{},
	}
	docs := &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{doc.ID: doc}}
	f.pipeline = New(nil, log, docs, f.images, f.attrs, f.store, f.media, fakeThumbnailer{}, f.hooks, encoding)
	return f
}

func (f *fixture) run(t *testing.T) *types.JobRun {
	t.Helper()
	job := &types.JobRun{
		ID:      uuid.New(),
		JobType: "document_process",
		Status:  "running",
		Payload: datatypes.JSON([]byte(fmt.Sprintf(`{"document_id":%q}`, f.doc.ID))),
	}
	repo := &fakeJobRepo{jobs: map[uuid.UUID]*types.JobRun{job.ID: job}}
	jc := jobrt.NewContext(context.Background(), nil, job, repo, nil)
	if err := f.pipeline.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return job
}

func TestRunFetchFailureSkipsTextAndAttributes(t *testing.T) {
	doc := &types.Document{
		ID:         uuid.New(),
		ProposalID: uuid.New(),
		URL:        "https://portal.test/reports/21.pdf",
	}
	f := newFixture(t, doc, "")
	f.store.saveErr = fmt.Errorf("connection refused")

	job := f.run(t)
	if job.Status != "succeeded" {
		t.Fatalf("job status = %q (error %q), want succeeded with failed fetch branch", job.Status, job.Error)
	}
	if f.media.textCalls != 0 {
		t.Fatalf("pdftotext invoked %d times after failed fetch", f.media.textCalls)
	}
	if len(f.attrs.attrs) != 0 {
		t.Fatalf("attributes written after failed fetch: %v", f.attrs.attrs)
	}
	if f.store.downloads != 0 {
		t.Fatalf("blob downloaded %d times with nothing fetched", f.store.downloads)
	}
	if doc.StorageKey != "" || doc.FulltextKey != "" {
		t.Fatalf("document mutated after failed fetch: %+v", doc)
	}
}

func TestRunExtractsTextAndAttributes(t *testing.T) {
	published := time.Date(2016, 6, 14, 0, 0, 0, 0, time.UTC)
	doc := &types.Document{
		ID:         uuid.New(),
		ProposalID: uuid.New(),
		URL:        "https://portal.test/reports/21.pdf",
		Published:  &published,
	}
	f := newFixture(t, doc, "UTF-8")
	f.media.firstPageText = "Applicant: ACME Development\nRecommendation: Approve with conditions\nnot a property line"
	f.media.properties = map[string]string{"Title": "Staff Report", "Producer": "ghostscript"}

	job := f.run(t)
	if job.Status != "succeeded" {
		t.Fatalf("job status = %q (error %q)", job.Status, job.Error)
	}

	if doc.StorageKey == "" {
		t.Fatalf("storage key not recorded")
	}
	if doc.FulltextKey == "" || doc.Encoding != "UTF-8" {
		t.Fatalf("fulltext not recorded: key=%q encoding=%q", doc.FulltextKey, doc.Encoding)
	}
	if f.media.lastEncoding != "UTF-8" {
		t.Fatalf("pdftotext encoding = %q, want UTF-8", f.media.lastEncoding)
	}
	if _, ok := f.store.blobs[doc.FulltextKey]; !ok {
		t.Fatalf("fulltext blob missing")
	}

	for _, handle := range []string{"applicant", "recommendation", "title"} {
		attr, ok := f.attrs.attrs[handle]
		if !ok {
			t.Fatalf("attribute %q missing; have %v", handle, f.attrs.attrs)
		}
		if attr.ProposalID != doc.ProposalID {
			t.Fatalf("attribute %q on wrong proposal", handle)
		}
		if !attr.Published.Equal(published) {
			t.Fatalf("attribute %q published = %v, want document publish date", handle, attr.Published)
		}
	}
	// "Producer" is PDF tooling noise, and page-two lines never count.
	if _, ok := f.attrs.attrs["producer"]; ok {
		t.Fatalf("producer metadata stored as attribute")
	}
	if _, ok := f.attrs.attrs["page_two"]; ok {
		t.Fatalf("attribute parsed past the first page")
	}

	if doc.ThumbnailKey == "" {
		t.Fatalf("document thumbnail not recorded")
	}
	if _, ok := f.store.blobs[doc.ThumbnailKey]; !ok {
		t.Fatalf("document thumbnail blob missing")
	}
}
