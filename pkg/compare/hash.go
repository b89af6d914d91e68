package compare

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdejongh/keepsync/pkg/storage"
)

// Partial hashing configuration
const (
	// Minimum file size to enable partial hashing (1MB)
	partialHashThreshold = 1 * 1024 * 1024
	// Size of partial hash to compute (256KB)
	partialHashSize = 256 * 1024
)

// Hasher computes SHA-256 digests of files on a backend. It is used to verify
// a copy after it has been committed.
type Hasher struct {
	bufferSize     int
	bufferPool     *sync.Pool
	progressReport func(path string, current, total int64)
	readerWrapper  ReaderWrapper
}

// NewHasher creates a hasher reading with the given buffer size
func NewHasher(bufferSize int) *Hasher {
	if bufferSize < 4096 {
		bufferSize = 4096
	}
	return &Hasher{
		bufferSize: bufferSize,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}
}

// SetProgressCallback sets a callback invoked while a file is hashed
func (h *Hasher) SetProgressCallback(callback func(path string, current, total int64)) {
	h.progressReport = callback
}

// SetReaderWrapper sets a function to wrap readers (e.g., for rate limiting)
func (h *Hasher) SetReaderWrapper(wrapper ReaderWrapper) {
	h.readerWrapper = wrapper
}

// Hash returns the hex SHA-256 digest of the file at rel
func (h *Hasher) Hash(ctx context.Context, backend storage.Backend, rel string) (string, error) {
	return h.hash(ctx, backend, rel, -1)
}

// Equal reports whether relA on a and relB on b have identical content. Sizes
// are compared first; large files are rejected early on a partial digest of
// their first bytes. Both sides are hashed in parallel.
func (h *Hasher) Equal(ctx context.Context, a, b storage.Backend, relA, relB string) (bool, error) {
	infoA, err := a.Stat(ctx, relA)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", relA, err)
	}
	infoB, err := b.Stat(ctx, relB)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", relB, err)
	}
	if infoA.Size != infoB.Size {
		return false, nil
	}

	if infoA.Size >= partialHashThreshold {
		sumA, sumB, err := h.pair(ctx, a, b, relA, relB, partialHashSize)
		if err == nil && sumA != sumB {
			return false, nil
		}
		// a partial failure falls through to the full digest
	}

	sumA, sumB, err := h.pair(ctx, a, b, relA, relB, -1)
	if err != nil {
		return false, err
	}
	return sumA == sumB, nil
}

func (h *Hasher) pair(ctx context.Context, a, b storage.Backend, relA, relB string, limit int64) (string, string, error) {
	var sumA, sumB string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sumA, err = h.hash(gctx, a, relA, limit)
		return err
	})
	g.Go(func() error {
		var err error
		sumB, err = h.hash(gctx, b, relB, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return sumA, sumB, nil
}

// hash digests at most limit bytes of the file, or all of it when limit < 0
func (h *Hasher) hash(ctx context.Context, backend storage.Backend, rel string, limit int64) (string, error) {
	info, err := backend.Stat(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	total := info.Size
	if limit >= 0 && limit < total {
		total = limit
	}

	rc, err := backend.Read(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer rc.Close()

	var reader io.Reader = rc
	if limit >= 0 {
		reader = io.LimitReader(reader, limit)
	}
	if h.readerWrapper != nil {
		reader = h.readerWrapper(reader)
	}

	digest := sha256.New()

	bufPtr := h.bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer h.bufferPool.Put(bufPtr)

	const (
		progressReportInterval = 50 * time.Millisecond
		progressReportBytes    = 64 * 1024
	)
	var totalRead, lastReported int64
	lastReportTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := reader.Read(buffer)
		if n > 0 {
			digest.Write(buffer[:n])
			totalRead += int64(n)

			if h.progressReport != nil {
				if totalRead-lastReported >= progressReportBytes ||
					time.Since(lastReportTime) >= progressReportInterval ||
					totalRead == total ||
					err != nil {
					h.progressReport(rel, totalRead, total)
					lastReported = totalRead
					lastReportTime = time.Now()
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	// EOF usually arrives on its own read, after the last bytes
	if h.progressReport != nil && lastReported != totalRead {
		h.progressReport(rel, totalRead, total)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}
