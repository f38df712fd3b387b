package blobstore

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressed wraps a Store and keeps blobs zstd-compressed at rest.
type Compressed struct {
	next Store
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func NewCompressed(next Store) (*Compressed, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Compressed{next: next, enc: enc, dec: dec}, nil
}

func (c *Compressed) Put(ctx context.Context, path string, data []byte) error {
	return c.next.Put(ctx, path, c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)))
}

func (c *Compressed) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := c.next.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", path, err)
	}
	return data, nil
}

func (c *Compressed) DeleteMany(ctx context.Context, paths []string) error {
	return c.next.DeleteMany(ctx, paths)
}

func (c *Compressed) Close() error {
	c.dec.Close()
	return c.enc.Close()
}
