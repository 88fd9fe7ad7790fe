package document_process

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/civiclens/civiclens-backend/internal/domain"
	"github.com/civiclens/civiclens-backend/internal/importers"
	jobrt "github.com/civiclens/civiclens-backend/internal/jobs/runtime"
	"github.com/civiclens/civiclens-backend/internal/platform/dbctx"
	"github.com/civiclens/civiclens-backend/internal/platform/gcp"
	"github.com/civiclens/civiclens-backend/internal/platform/localmedia"
)

func sourceKey(doc *types.Document) string {
	ext := strings.ToLower(path.Ext(doc.URL))
	if ext == "" || len(ext) > 5 {
		ext = ".pdf"
	}
	return fmt.Sprintf("documents/%s/source%s", doc.ID, ext)
}

func fulltextKey(doc *types.Document) string {
	return fmt.Sprintf("documents/%s/text.txt", doc.ID)
}

func imagesPrefix(doc *types.Document) string {
	return fmt.Sprintf("documents/%s/images/", doc.ID)
}

func docThumbKey(doc *types.Document) string {
	return fmt.Sprintf("documents/%s/thumbnail.png", doc.ID)
}

func imageThumbKey(imageID uuid.UUID) string {
	return fmt.Sprintf("thumbnails/%s.png", imageID)
}

// stageFetch downloads the source URL into the document bucket unless the
// stored blob is already fresh, then records the storage key.
func (p *Pipeline) stageFetch(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	key := sourceKey(doc)
	fetched, err := p.store.SaveFromURL(jc.Ctx, doc.URL, key)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	if doc.StorageKey != key {
		if err := p.documents.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, doc.ID, map[string]interface{}{
			"storage_key": key,
		}); err != nil {
			return nil, fmt.Errorf("record storage key: %w", err)
		}
		doc.StorageKey = key
	}
	return map[string]any{"fetched": fetched, "storage_key": key}, nil
}

// localPDF materializes the stored source blob as a temp file. The cleanup
// func removes it.
func (p *Pipeline) localPDF(jc *jobrt.Context, doc *types.Document) (string, func(), error) {
	if doc.StorageKey == "" {
		return "", nil, fmt.Errorf("document has no stored blob")
	}
	rc, err := p.store.Download(jc.Ctx, gcp.BucketCategoryDocument, doc.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("download blob: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("read blob: %w", err)
	}
	return p.media.WriteTempFile(jc.Ctx, data, ".pdf")
}

func (p *Pipeline) stageExtractText(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	pdfPath, cleanup, err := p.localPDF(jc, doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outPath := pdfPath + ".txt"
	if _, err := p.media.ExtractText(jc.Ctx, pdfPath, outPath, localmedia.TextExtractOptions{
		Encoding: p.encoding,
	}); err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	defer os.Remove(outPath)

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("open extracted text: %w", err)
	}
	defer f.Close()

	key := fulltextKey(doc)
	if err := p.store.Upload(jc.Ctx, gcp.BucketCategoryDocument, key, f); err != nil {
		return nil, fmt.Errorf("upload fulltext: %w", err)
	}
	if err := p.documents.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, doc.ID, map[string]interface{}{
		"fulltext_key": key,
		"encoding":     p.encoding,
	}); err != nil {
		return nil, fmt.Errorf("record fulltext key: %w", err)
	}
	doc.FulltextKey = key
	doc.Encoding = p.encoding
	return map[string]any{"fulltext_key": key}, nil
}

// propertyLine matches the "Key: Value" lines portals print on report cover
// pages.
var propertyLine = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 /#&().'-]{1,40}?):\s+(.+)$`)

func (p *Pipeline) stageDocAttributes(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	props := map[string]string{}

	pdfPath, cleanup, err := p.localPDF(jc, doc)
	if err == nil {
		defer cleanup()
		if meta, merr := p.media.PDFProperties(jc.Ctx, pdfPath); merr == nil {
			for _, k := range []string{"Title", "Author", "Subject", "Keywords"} {
				if v := strings.TrimSpace(meta[k]); v != "" {
					props[k] = v
				}
			}
		}
	}

	if doc.FulltextKey != "" {
		if page, terr := p.firstPageText(jc, doc); terr == nil {
			scanner := bufio.NewScanner(strings.NewReader(page))
			for scanner.Scan() {
				m := propertyLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
				if m == nil {
					continue
				}
				name, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
				if _, exists := props[name]; !exists {
					props[name] = value
				}
			}
		} else {
			p.log.Warn("first page text unavailable", "document_id", doc.ID, "error", terr)
		}
	}

	if len(props) == 0 {
		return map[string]any{"attributes": 0}, nil
	}

	published := time.Now().UTC()
	if doc.Published != nil {
		published = *doc.Published
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	count := 0
	for name, value := range props {
		attr := &types.Attribute{
			ProposalID: doc.ProposalID,
			Name:       name,
			Handle:     importers.Handle(name),
			TextValue:  value,
			Published:  published,
		}
		applied, err := p.attrs.Upsert(dbc, attr)
		if err != nil {
			p.log.Warn("attribute upsert failed", "document_id", doc.ID, "handle", attr.Handle, "error", err)
			continue
		}
		if applied {
			count++
		}
	}
	return map[string]any{"attributes": count}, nil
}

// firstPageText returns everything before the first form feed in the stored
// fulltext (pdftotext delimits pages with \f).
func (p *Pipeline) firstPageText(jc *jobrt.Context, doc *types.Document) (string, error) {
	rc, err := p.store.Download(jc.Ctx, gcp.BucketCategoryDocument, doc.FulltextKey)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, '\f'); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

func (p *Pipeline) stageExtractImages(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	pdfPath, cleanup, err := p.localPDF(jc, doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "docimages-*")
	if err != nil {
		return nil, fmt.Errorf("mkdtemp: %w", err)
	}
	defer os.RemoveAll(outDir)

	paths, err := p.media.ExtractImages(jc.Ctx, pdfPath, outDir)
	if err != nil {
		p.log.Warn("pdfimages failed, treating as no images", "document_id", doc.ID, "error", err)
		return map[string]any{"images": 0}, nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	docID := doc.ID
	created := 0
	for _, imgPath := range paths {
		key := imagesPrefix(doc) + filepath.Base(imgPath)
		url := p.store.PublicURL(gcp.BucketCategoryImage, key)

		existing, err := p.images.GetByURL(dbc, url)
		if err != nil {
			return nil, fmt.Errorf("lookup image: %w", err)
		}
		if existing != nil {
			continue
		}

		f, err := os.Open(imgPath)
		if err != nil {
			p.log.Warn("open extracted image failed", "path", imgPath, "error", err)
			continue
		}
		uploadErr := p.store.Upload(jc.Ctx, gcp.BucketCategoryImage, key, f)
		f.Close()
		if uploadErr != nil {
			p.log.Warn("upload extracted image failed", "key", key, "error", uploadErr)
			continue
		}

		img := &types.Image{
			ID:         uuid.New(),
			ProposalID: doc.ProposalID,
			DocumentID: &docID,
			URL:        url,
			StorageKey: key,
			Source:     types.ImageSourceDocument,
		}
		if _, err := p.images.Create(dbc, []*types.Image{img}); err != nil {
			p.log.Warn("create image row failed", "key", key, "error", err)
			continue
		}
		created++
		if p.hooks != nil {
			p.hooks.EntityCreated(dbc, "image", img.ID, true)
		}
	}
	return map[string]any{"images": created}, nil
}

func (p *Pipeline) stageThumbnails(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	imgs, err := p.images.GetByDocument(dbc, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("list document images: %w", err)
	}

	made := 0
	for _, img := range imgs {
		if img.ThumbnailKey != "" || img.StorageKey == "" {
			continue
		}
		key := imageThumbKey(img.ID)
		if err := p.makeThumbnail(jc, gcp.BucketCategoryImage, img.StorageKey, key); err != nil {
			p.log.Warn("thumbnail failed", "image_id", img.ID, "error", err)
			continue
		}
		if err := p.images.UpdateFields(dbc, img.ID, map[string]interface{}{
			"thumbnail_key": key,
		}); err != nil {
			p.log.Warn("record thumbnail key failed", "image_id", img.ID, "error", err)
			continue
		}
		made++
	}
	return map[string]any{"thumbnails": made}, nil
}

func (p *Pipeline) stageDocThumbnail(jc *jobrt.Context, doc *types.Document) (map[string]any, error) {
	pdfPath, cleanup, err := p.localPDF(jc, doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "docthumb-*")
	if err != nil {
		return nil, fmt.Errorf("mkdtemp: %w", err)
	}
	defer os.RemoveAll(outDir)

	rendered, err := p.media.RenderPDFPage(jc.Ctx, pdfPath, outDir, 1, localmedia.PDFRenderOptions{})
	if err != nil {
		return nil, fmt.Errorf("render page 1: %w", err)
	}

	f, err := os.Open(rendered)
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	thumb, thumbErr := p.thumbs.Thumbnail(f)
	f.Close()
	if thumbErr != nil {
		return nil, fmt.Errorf("scale rendered page: %w", thumbErr)
	}

	key := docThumbKey(doc)
	if err := p.store.Upload(jc.Ctx, gcp.BucketCategoryImage, key, bytes.NewReader(thumb)); err != nil {
		return nil, fmt.Errorf("upload document thumbnail: %w", err)
	}
	if err := p.documents.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, doc.ID, map[string]interface{}{
		"thumbnail_key": key,
	}); err != nil {
		return nil, fmt.Errorf("record document thumbnail: %w", err)
	}
	doc.ThumbnailKey = key
	return map[string]any{"thumbnail_key": key}, nil
}

func (p *Pipeline) makeThumbnail(jc *jobrt.Context, category gcp.BucketCategory, srcKey, dstKey string) error {
	rc, err := p.store.Download(jc.Ctx, category, srcKey)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	thumb, thumbErr := p.thumbs.Thumbnail(rc)
	rc.Close()
	if thumbErr != nil {
		return thumbErr
	}
	return p.store.Upload(jc.Ctx, gcp.BucketCategoryImage, dstKey, bytes.NewReader(thumb))
}
