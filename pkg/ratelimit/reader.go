// Package ratelimit throttles file copies to a shared bandwidth budget.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// minBurst keeps small limits from degenerating into tiny reads
const minBurst = 64 * 1024

// Limiter is a token bucket shared by every reader of one sync run. A token is
// one byte.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter creates a limiter for bytesPerSecond. It returns nil, meaning no
// limiting, when bytesPerSecond <= 0. The bucket holds one second of data,
// with a 64KB minimum, and starts full.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := bytesPerSecond
	if burst < minBurst {
		burst = minBurst
	}

	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst)),
	}
}

// Burst returns the bucket size in bytes
func (l *Limiter) Burst() int {
	return l.bucket.Burst()
}

// Reader wraps an io.Reader with bandwidth limiting
type Reader struct {
	reader  io.Reader
	limiter *Limiter
	ctx     context.Context
}

// NewReader wraps an io.Reader with rate limiting
func NewReader(ctx context.Context, reader io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return reader
	}
	return &Reader{reader: reader, limiter: limiter, ctx: ctx}
}

// Read reads at most one bucket worth of data and then waits until the bytes
// read have been paid for
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.bucket.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
