// Package drive lists and downloads PDF documents from a Google Drive
// folder using a read-only service account.
package drive

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/seanblong/docquery/pkg/models"
)

// MaxDownloadSize caps a single PDF download (50MB).
const MaxDownloadSize = 50 * 1024 * 1024

// Source reads PDFs from a single Drive folder.
type Source struct {
	svc      *drive.Service
	folderID string
}

// NewSource builds a Drive source from a service-account credentials
// file. Only the read-only scope is requested.
func NewSource(ctx context.Context, credentialsFile, folderID string) (*Source, error) {
	if folderID == "" {
		return nil, fmt.Errorf("drive folder id is required")
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Source{svc: svc, folderID: folderID}, nil
}

// Name identifies the source in ingestion reports.
func (s *Source) Name() string {
	return "gdrive:" + s.folderID
}

// ListDocuments returns the folder's non-trashed PDFs, most recently
// modified first. A limit of zero means no limit.
func (s *Source) ListDocuments(ctx context.Context, limit int) ([]models.FileRef, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType='application/pdf' and trashed=false", s.folderID)

	var refs []models.FileRef
	pageToken := ""
	for {
		call := s.svc.Files.List().
			Context(ctx).
			Q(query).
			OrderBy("modifiedTime desc").
			Fields("nextPageToken, files(id, name, webViewLink, modifiedTime)").
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list drive folder %s: %w", s.folderID, err)
		}

		for _, f := range list.Files {
			refs = append(refs, models.FileRef{
				ID:           f.Id,
				Name:         f.Name,
				URL:          f.WebViewLink,
				ModifiedTime: f.ModifiedTime,
			})
			if limit > 0 && len(refs) >= limit {
				return refs, nil
			}
		}

		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return refs, nil
}

// Download fetches a file's raw bytes. Files over MaxDownloadSize fail
// here so they land in the ingestion report as a per-file error rather
// than as a truncated, unparseable PDF.
func (s *Source) Download(ctx context.Context, ref models.FileRef) ([]byte, error) {
	resp, err := s.svc.Files.Get(ref.ID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref.Name, err)
	}
	defer resp.Body.Close()

	data, err := readCapped(resp.Body, MaxDownloadSize)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref.Name, err)
	}
	return data, nil
}

// readCapped reads r in full, erroring if the content exceeds limit
// bytes. Reading limit+1 distinguishes "exactly at the cap" from
// "bigger than the cap".
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("content exceeds %d byte limit", limit)
	}
	return data, nil
}
