package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbchat/internal/domain"
	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// TypeDirectory marks a request that points at a directory instead of a file.
const TypeDirectory = "directory"

// Loader turns one file into documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]document.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) ([]document.Document, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) ([]document.Document, error) {
	return f(ctx, path)
}

// Registry dispatches loading by file extension, falling back to plain text.
type Registry struct {
	byExt    map[string]Loader
	fallback Loader
	logger   *zap.Logger
}

// New creates a Registry with the built-in loaders. runner executes pdftotext;
// nil means the host binary.
func New(runner CommandRunner, logger *zap.Logger) *Registry {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	text := LoaderFunc(LoadText)
	r := &Registry{
		byExt: map[string]Loader{
			"txt":  text,
			"md":   text,
			"json": text,
			"js":   text,
			"docx": LoaderFunc(LoadDOCX),
			"pdf":  &PDFLoader{runner: runner},
			"csv":  LoaderFunc(LoadCSV),
		},
		fallback: text,
		logger:   logger,
	}
	r.byExt["zip"] = LoaderFunc(r.loadZip)
	return r
}

// Register overrides the loader for an extension (without the dot).
func (r *Registry) Register(ext string, l Loader) {
	r.byExt[normalizeExt(ext)] = l
}

// For returns the loader for ext, or the plain-text fallback.
func (r *Registry) For(ext string) Loader {
	if l, ok := r.byExt[normalizeExt(ext)]; ok {
		return l
	}
	return r.fallback
}

// Load loads path. kind TypeDirectory walks a directory; otherwise ext selects the
// loader, defaulting to the extension of path when empty.
func (r *Registry) Load(ctx context.Context, kind, ext, path string) ([]document.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if kind == TypeDirectory || info.IsDir() {
		return r.LoadDirectory(ctx, path)
	}
	if ext == "" {
		ext = filepath.Ext(path)
	}
	return r.For(ext).Load(ctx, path)
}

// LoadDirectory loads every regular file below dir in lexical order, each by its own extension.
func (r *Registry) LoadDirectory(ctx context.Context, dir string) ([]document.Document, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)

	var docs []document.Document
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := r.For(filepath.Ext(f)).Load(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		docs = append(docs, loaded...)
	}
	r.logger.Debug("Loaded directory",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

func (r *Registry) loadZip(ctx context.Context, path string) ([]document.Document, error) {
	dir, err := os.MkdirTemp("", "kbchat-zip-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := Unzip(path, dir); err != nil {
		return nil, err
	}
	docs, err := r.LoadDirectory(ctx, dir)
	if err != nil {
		return nil, err
	}
	// Point sources back at the archive, the temp dir is gone after return.
	for i := range docs {
		if rel, err := filepath.Rel(dir, docs[i].Metadata.Source); err == nil {
			docs[i].Metadata.Source = path + "!" + filepath.ToSlash(rel)
		}
	}
	return docs, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// LoadText reads the whole file as one document.
func LoadText(_ context.Context, path string) ([]document.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return []document.Document{{
		PageContent: string(data),
		Metadata:    document.Metadata{Source: path},
	}}, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
