package localmedia

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/civiclens/civiclens-backend/internal/platform/ctxutil"
	"github.com/civiclens/civiclens-backend/internal/platform/logger"
)

// Tools wraps the poppler binaries the document pipeline shells out to.
//
// REQUIRED BINARIES in worker runtime:
// - pdftotext (poppler-utils) for PDF -> plain text
// - pdfimages (poppler-utils) for embedded image extraction
// - pdftoppm  (poppler-utils) for page rendering
// - pdfinfo   (poppler-utils) for document properties
//
// Synchronous and deterministic; call from worker jobs, not request paths.
type Tools interface {
	AssertReady(ctx context.Context) error

	ExtractText(ctx context.Context, pdfPath string, outPath string, opts TextExtractOptions) (string, error)
	ExtractImages(ctx context.Context, pdfPath string, outDir string) ([]string, error)
	RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error)
	PDFProperties(ctx context.Context, pdfPath string) (map[string]string, error)
	CountPDFPages(ctx context.Context, pdfPath string) (int, error)

	// Helper for callers who only have bytes:
	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
}

type TextExtractOptions struct {
	Encoding string // pdftotext -enc value, "" means Latin1
}

type PDFRenderOptions struct {
	DPI       int
	Format    string // "png" or "jpeg"
	FirstPage int    // 1-based, 0 means default
	LastPage  int    // 1-based, 0 means default
}

type tools struct {
	log *logger.Logger

	pdftotextPath string
	pdfimagesPath string
	pdftoppmPath  string
	pdfinfoPath   string

	workRoot string

	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	slog := log.With("service", "MediaTools")
	return &tools{
		log:            slog,
		pdftotextPath:  "pdftotext",
		pdfimagesPath:  "pdfimages",
		pdftoppmPath:   "pdftoppm",
		pdfinfoPath:    "pdfinfo",
		workRoot:       "/tmp/civiclens-media",
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, bin := range []string{m.pdftotextPath, m.pdfimagesPath, m.pdftoppmPath, m.pdfinfoPath} {
		if err := m.assertBinary(ctx, bin); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) assertBinary(ctx context.Context, name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", name, err)
	}
	return nil
}

func (m *tools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	ctx = ctxutil.Default(ctx)
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(m.workRoot, fmt.Sprintf("%s%s", base, suffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

// ExtractText runs pdftotext and returns the output path. Scanned PDFs with no
// text layer produce an empty file, not an error; the caller decides what an
// empty extraction means.
func (m *tools) ExtractText(ctx context.Context, pdfPath string, outPath string, opts TextExtractOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{}
	if enc := strings.TrimSpace(opts.Encoding); enc != "" {
		args = append(args, "-enc", enc)
	}
	args = append(args, pdfPath, outPath)

	cmd := exec.CommandContext(ctx, m.pdftotextPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w; out=%s", err, string(out))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("text output missing at %s", outPath)
	}
	return outPath, nil
}

// ExtractImages runs pdfimages -p and returns the produced image paths, page
// order preserved. A PDF with no embedded rasters yields an empty slice.
func (m *tools) ExtractImages(ctx context.Context, pdfPath string, outDir string) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return nil, fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, "image")
	cmd := exec.CommandContext(ctx, m.pdfimagesPath, "-p", "-png", pdfPath, prefix)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdfimages failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(outDir, `^image-\d+-\d+\.(png|jpe?g|ppm|pbm)$`)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (m *tools) RenderPDFPage(ctx context.Context, pdfPath string, outDir string, page int, opts PDFRenderOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return "", fmt.Errorf("outDir required")
	}
	if page <= 0 {
		return "", fmt.Errorf("page must be >= 1")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 150
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" && format != "jpg" {
		return "", fmt.Errorf("unsupported render format: %s", format)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, fmt.Sprintf("page_%04d", page))
	args := []string{"-r", strconv.Itoa(dpi)}
	if format == "png" {
		args = append(args, "-png")
	} else {
		args = append(args, "-jpeg")
	}
	args = append(args, "-f", strconv.Itoa(page), "-l", strconv.Itoa(page), pdfPath, prefix)

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	pattern := fmt.Sprintf(`^page_%04d-\d+\.(png|jpe?g)$`, page)
	paths, err := globSorted(outDir, pattern)
	if err != nil || len(paths) == 0 {
		paths2, _ := globSorted(outDir, `.*\.(png|jpe?g)$`)
		if len(paths2) == 0 {
			return "", fmt.Errorf("no images produced by pdftoppm; out=%s", string(out))
		}
		return paths2[0], nil
	}
	return paths[0], nil
}

// PDFProperties returns the "Key: Value" pairs reported by pdfinfo.
func (m *tools) PDFProperties(ctx context.Context, pdfPath string) (map[string]string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return nil, fmt.Errorf("pdfPath required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdfinfoPath, pdfPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdfinfo failed: %w; out=%s", err, string(out))
	}

	props := map[string]string{}
	for _, line := range strings.Split(string(out), "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" || val == "" {
			continue
		}
		props[key] = val
	}
	return props, nil
}

func (m *tools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	props, err := m.PDFProperties(ctx, pdfPath)
	if err != nil {
		return 0, err
	}
	raw, ok := props["Pages"]
	if !ok {
		return 0, fmt.Errorf("pdfinfo output missing Pages field")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("pdfinfo reported invalid page count %q", raw)
	}
	return n, nil
}

// ---------- helpers ----------

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
