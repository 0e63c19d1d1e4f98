// Package loader reads plain-text knowledge files from a directory tree.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"ragkb/internal/domain"
)

// IDPrefix marks documents that were read from disk.
const IDPrefix = "file:"

// DefaultExtensions are the file types loaded when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// Loader turns the files under one directory into documents.
type Loader struct {
	dir    string
	exts   []string
	logger *zap.Logger
}

// Result counts what a Sync changed.
type Result struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Changed reports whether the store was modified.
func (r Result) Changed() bool { return r.Added+r.Updated+r.Removed > 0 }

// New returns a loader for dir. Extensions are matched case-insensitively.
func New(dir string, extensions []string, logger *zap.Logger) *Loader {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		exts[i] = strings.ToLower(e)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, exts: exts, logger: logger.Named("loader")}
}

// Dir returns the directory the loader reads.
func (l *Loader) Dir() string { return l.dir }

// DocumentID derives a stable document ID from a path relative to the loader directory.
func DocumentID(rel string) string {
	sum := sha1.Sum([]byte(filepath.ToSlash(rel)))
	return IDPrefix + hex.EncodeToString(sum[:])[:16]
}

// Load walks the directory and returns one document per matching non-empty file,
// ordered by relative path. Unreadable files are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", l.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", l.dir)
	}

	var docs []domain.Document
	err = filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("skip unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != l.dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !l.Matches(path) {
			return nil
		}
		doc, ok := l.read(path, d)
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Matches reports whether path has one of the configured extensions.
func (l *Loader) Matches(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(l.exts, strings.ToLower(filepath.Ext(path)))
}

func (l *Loader) read(path string, d fs.DirEntry) (domain.Document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("skip unreadable file", zap.String("path", path), zap.Error(err))
		return domain.Document{}, false
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if text == "" {
		l.logger.Debug("skip empty file", zap.String("path", path))
		return domain.Document{}, false
	}
	rel, err := filepath.Rel(l.dir, path)
	if err != nil {
		rel = path
	}
	doc := domain.Document{ID: DocumentID(rel), Title: d.Name(), Text: text}
	if info, err := d.Info(); err == nil {
		doc.CreatedAt = info.ModTime().UTC()
	}
	return doc, true
}

// Sync makes the loader-owned documents in store match the directory: new files
// are added, changed files replaced and documents of deleted files removed.
// Documents that did not come from disk are left alone.
func (l *Loader) Sync(ctx context.Context, store domain.DocumentStore) (Result, error) {
	var res Result
	docs, err := l.Load(ctx)
	if err != nil {
		return res, err
	}
	existing, err := store.GetAll(ctx)
	if err != nil {
		return res, fmt.Errorf("list documents: %w", err)
	}
	current := make(map[string]domain.Document, len(existing))
	for _, d := range existing {
		if strings.HasPrefix(d.ID, IDPrefix) {
			current[d.ID] = d
		}
	}

	for _, doc := range docs {
		old, ok := current[doc.ID]
		delete(current, doc.ID)
		switch {
		case !ok:
			res.Added++
		case old.Title == doc.Title && old.Text == doc.Text:
			res.Unchanged++
			continue
		default:
			res.Updated++
		}
		if _, err := store.Add(ctx, doc); err != nil {
			return res, fmt.Errorf("store %s: %w", doc.Title, err)
		}
	}

	// remove in store order so results are reproducible
	for _, d := range existing {
		if _, stale := current[d.ID]; !stale {
			continue
		}
		if err := store.Remove(ctx, d.ID); err != nil {
			return res, fmt.Errorf("remove %s: %w", d.Title, err)
		}
		res.Removed++
	}

	l.logger.Info("directory synced",
		zap.String("dir", l.dir),
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("removed", res.Removed),
		zap.Int("unchanged", res.Unchanged),
	)
	return res, nil
}
