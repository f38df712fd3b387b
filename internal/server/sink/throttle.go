package sink

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

const maxBurstSize = 256 * 1024

// throttledReader limits read throughput with a token bucket.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// newThrottledReader returns r unchanged when bytesPerSec <= 0.
func newThrottledReader(ctx context.Context, r io.Reader, bytesPerSec int64) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	burst := int(min(bytesPerSec, maxBurstSize))
	return &throttledReader{ctx: ctx, r: r, limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > t.limiter.Burst() {
		p = p[:t.limiter.Burst()]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.limiter.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
