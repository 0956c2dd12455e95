// Package local serves PDFs from a directory on disk, mainly for
// development and tests where a Drive folder is overkill.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/karrick/godirwalk"

	"github.com/seanblong/docquery/pkg/models"
)

// Source walks a directory tree for PDF files.
type Source struct {
	root string
}

// NewSource returns a local source rooted at dir.
func NewSource(dir string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat docs dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs path %s is not a directory", dir)
	}
	return &Source{root: dir}, nil
}

// Name identifies the source in ingestion reports.
func (s *Source) Name() string {
	return "local:" + s.root
}

// ListDocuments walks the tree and returns PDFs, most recently
// modified first to mirror the remote source ordering. A limit of zero
// means no limit.
func (s *Source) ListDocuments(ctx context.Context, limit int) ([]models.FileRef, error) {
	type entry struct {
		ref     models.FileRef
		modTime time.Time
	}
	var entries []entry

	err := godirwalk.Walk(s.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() {
				if strings.HasPrefix(de.Name(), ".") && path != s.root {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			entries = append(entries, entry{
				ref: models.FileRef{
					ID:           path,
					Name:         filepath.Base(path),
					URL:          "file://" + path,
					ModifiedTime: info.ModTime().UTC().Format(time.RFC3339),
				},
				modTime: info.ModTime(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})

	refs := make([]models.FileRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, e.ref)
		if limit > 0 && len(refs) >= limit {
			break
		}
	}
	return refs, nil
}

// Download reads the file from disk.
func (s *Source) Download(ctx context.Context, ref models.FileRef) ([]byte, error) {
	return os.ReadFile(ref.ID)
}
