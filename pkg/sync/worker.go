package sync

import (
	"context"
	"io"
	"time"
)

// progressReader wraps an io.Reader to report progress
type progressReader struct {
	reader         io.Reader
	total          int64
	read           int64
	lastReported   int64
	lastReportTime time.Time
	onProgress     func(bytesRead int64)
}

// Progress reporting thresholds
const (
	progressReportInterval = 50 * time.Millisecond // Minimum time between progress reports
	progressReportBytes    = 64 * 1024             // Minimum bytes between reports (64KB)
)

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)

		// Throttle progress callbacks: only report if either:
		// 1. Enough bytes have been read since last report (64KB threshold)
		// 2. Enough time has passed since last report (50ms threshold)
		// 3. This is the final read (err == io.EOF or err != nil)
		if pr.onProgress != nil {
			shouldReport := pr.read-pr.lastReported >= progressReportBytes ||
				time.Since(pr.lastReportTime) >= progressReportInterval ||
				pr.read == pr.total ||
				err != nil

			if shouldReport {
				pr.onProgress(pr.read)
				pr.lastReported = pr.read
				pr.lastReportTime = time.Now()
			}
		}
	}
	return n, err
}

// runWorker takes top-level tasks until the queue is closed or the run stops.
// Each task owns its whole subtree, so no two workers touch the same path.
func (p *Pipeline) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.processSubtree(ctx, workerID, task)
		}
	}
}

// processSubtree handles task and everything below it with an explicit
// stack. Children are pushed in reverse so entries are visited in sorted
// pre-order; a created directory is visited again after its children.
// Cancellation is checked between entries only.
func (p *Pipeline) processSubtree(ctx context.Context, workerID int, root *Task) {
	stack := []*Task{root}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return
		}

		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if task.finishing {
			p.finishDirectory(ctx, task)
			continue
		}

		children := p.handle(ctx, workerID, task)
		if task.createdDirectory() {
			stack = append(stack, task.finisher())
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
