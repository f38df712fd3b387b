// Package uploader splits local files into chunks and drives a chunkvault
// server through session creation, parallel chunk upload and reconstruction.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/chunkvault/internal/client/config"
	"github.com/dmitrijs2005/chunkvault/internal/cryptox"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
)

type Uploader struct {
	client      *Client
	chunkSize   int64
	parallelism int
	meta        Meta
	logger      logging.Logger
}

const defaultChunkSize = 8 << 20

func New(cfg *config.Config, logger logging.Logger) *Uploader {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Uploader{
		client:      NewClient(cfg.ServerURL, cfg.RequestTimeout, cfg.Retries),
		chunkSize:   chunkSize,
		parallelism: cfg.Parallelism,
		meta: Meta{
			TargetFolder: cfg.TargetFolder,
			GymSlug:      cfg.GymSlug,
			GymName:      cfg.GymName,
		},
		logger: logger,
	}
}

// UploadFile uploads the file at path under its base name.
func (u *Uploader) UploadFile(ctx context.Context, path string) (*models.FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	meta := u.meta
	meta.FileName = filepath.Base(path)
	meta.FileType = mime.TypeByExtension(filepath.Ext(path))
	if meta.FileType == "" {
		meta.FileType = "application/octet-stream"
	}
	return u.Upload(ctx, f, st.Size(), meta)
}

// Upload sends size bytes of r and returns the delivered file. The result is
// checked against the local size and SHA-256.
func (u *Uploader) Upload(ctx context.Context, r io.ReaderAt, size int64, meta Meta) (*models.FileHandle, error) {
	localSum, _, err := cryptox.ChecksumReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", meta.FileName, err)
	}

	total := ChunkCount(size, u.chunkSize)
	sess, err := u.client.CreateSession(ctx, meta, total)
	if err != nil {
		return nil, err
	}
	log := u.logger.With("session_id", sess.SessionID, "file_name", meta.FileName)
	log.Info(ctx, "upload started", "size", size, "chunks", total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.parallelism, 1))
	for i := 0; i < total; i++ {
		g.Go(func() error {
			buf, err := readChunk(r, i, u.chunkSize, size)
			if err != nil {
				return err
			}
			_, err = u.client.PutChunk(gctx, sess.SessionID, i, total, buf, meta)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st, err := u.client.Status(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if !st.IsComplete {
		return nil, fmt.Errorf("%w: %d of %d chunks", ErrIncomplete, st.ReceivedChunks, st.TotalChunks)
	}

	fh, err := u.client.Reconstruct(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if fh.Size != size || fh.Checksum != localSum {
		return nil, fmt.Errorf("%w: got %d bytes sha256 %s, want %d bytes sha256 %s",
			ErrChecksumMismatch, fh.Size, fh.Checksum, size, localSum)
	}

	log.Info(ctx, "upload finished", "file_id", fh.FileID, "deduped", fh.Deduped)
	return fh, nil
}

// ChunkCount is the number of chunkSize pieces needed for size bytes. An
// empty file is still one (empty) chunk.
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + chunkSize - 1) / chunkSize)
}

func readChunk(r io.ReaderAt, index int, chunkSize, size int64) ([]byte, error) {
	off := int64(index) * chunkSize
	buf := make([]byte, min(chunkSize, size-off))

	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read chunk %d: %w", index, err)
}
