package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/dmitrijs2005/chunkvault/internal/common"
)

// GCS has no batch delete in the JSON client; deletes fan out with this limit.
const gcsDeleteConcurrency = 16

// objectAPI is the per-object surface of a GCS bucket.
type objectAPI interface {
	write(ctx context.Context, name string, data []byte) error
	read(ctx context.Context, name string) ([]byte, error)
	remove(ctx context.Context, name string) error
}

type GCSStore struct {
	objects objectAPI
}

// NewGCSStore opens a bucket with the given service account file, or with
// application default credentials when credsFile is empty.
func NewGCSStore(ctx context.Context, bucket, credsFile string) (*GCSStore, io.Closer, error) {
	if bucket == "" {
		return nil, nil, errors.New("gcs: missing bucket")
	}

	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{objects: &bucketObjects{bucket: client.Bucket(bucket)}}, client, nil
}

func (s *GCSStore) Put(ctx context.Context, path string, data []byte) error {
	if err := s.objects.write(ctx, path, data); err != nil {
		return fmt.Errorf("put object %s: %w", path, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := s.objects.read(ctx, path)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s: %w", path, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	return data, nil
}

// DeleteMany treats already-missing objects as deleted.
func (s *GCSStore) DeleteMany(ctx context.Context, paths []string) error {
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(gcsDeleteConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := s.objects.remove(gctx, p); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				errs[i] = fmt.Errorf("%s: %w", p, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	var joined []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, paths[i])
			joined = append(joined, err)
		}
	}
	if len(failed) > 0 {
		return &DeleteError{Failed: failed, Err: errors.Join(joined...)}
	}
	return nil
}

type bucketObjects struct {
	bucket *storage.BucketHandle
}

func (b *bucketObjects) write(ctx context.Context, name string, data []byte) error {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *bucketObjects) read(ctx context.Context, name string) ([]byte, error) {
	r, err := b.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *bucketObjects) remove(ctx context.Context, name string) error {
	return b.bucket.Object(name).Delete(ctx)
}
