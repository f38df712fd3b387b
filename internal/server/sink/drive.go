package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	// Resumable uploads are sent in 16 MiB pieces.
	resumableChunkSize = 16 << 20
	entryFields        = "id, name, size, webViewLink"
)

type DriveSink struct {
	svc       *drive.Service
	rateLimit int64
}

// NewDriveSink authenticates with the service account in credsFile, or with
// application default credentials when credsFile is empty.
func NewDriveSink(ctx context.Context, credsFile string, rateLimit int64) (*DriveSink, error) {
	var creds *google.Credentials
	if credsFile != "" {
		data, err := os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("read drive credentials: %w", err)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, drive.DriveScope)
		if err != nil {
			return nil, fmt.Errorf("parse drive credentials: %w", err)
		}
	} else {
		var err error
		creds, err = google.FindDefaultCredentials(ctx, drive.DriveScope)
		if err != nil {
			return nil, fmt.Errorf("default drive credentials: %w", err)
		}
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return NewDriveSinkFromService(svc, rateLimit), nil
}

func NewDriveSinkFromService(svc *drive.Service, rateLimit int64) *DriveSink {
	return &DriveSink{svc: svc, rateLimit: rateLimit}
}

func (d *DriveSink) ListFolder(ctx context.Context, folderID, name string) ([]Entry, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", escapeQuery(folderID), escapeQuery(name))
	return d.list(ctx, q)
}

func (d *DriveSink) UploadResumable(ctx context.Context, req UploadRequest) (*Entry, error) {
	return d.upload(ctx, req, googleapi.ChunkSize(resumableChunkSize))
}

func (d *DriveSink) UploadSimple(ctx context.Context, req UploadRequest) (*Entry, error) {
	return d.upload(ctx, req, googleapi.ChunkSize(0))
}

func (d *DriveSink) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	if name == "" {
		return "", errors.New("folder name is empty")
	}

	q := fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(parentID), escapeQuery(name), folderMimeType)
	existing, err := d.list(ctx, q)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	f, err := d.svc.Files.Create(&drive.File{Name: name, MimeType: folderMimeType, Parents: []string{parentID}}).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return f.Id, nil
}

func (d *DriveSink) list(ctx context.Context, q string) ([]Entry, error) {
	var entries []Entry
	err := d.svc.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files("+entryFields+")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				entries = append(entries, toEntry(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list drive files: %w", err)
	}
	return entries, nil
}

func (d *DriveSink) upload(ctx context.Context, req UploadRequest, opts ...googleapi.MediaOption) (*Entry, error) {
	meta := &drive.File{Name: req.Name, MimeType: req.MimeType, Parents: []string{req.FolderID}}
	if req.MimeType != "" {
		opts = append(opts, googleapi.ContentType(req.MimeType))
	}
	body := newThrottledReader(ctx, bytes.NewReader(req.Data), d.rateLimit)

	f, err := d.svc.Files.Create(meta).
		Media(body, opts...).
		SupportsAllDrives(true).
		Fields(googleapi.Field(entryFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("upload %q: %w", req.Name, err)
	}
	e := toEntry(f)
	return &e, nil
}

func toEntry(f *drive.File) Entry {
	return Entry{ID: f.Id, Name: f.Name, Size: f.Size, WebViewLink: f.WebViewLink}
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
