// Package worker runs the asynchronous fraud scan pipeline feeding off the
// bid accept path.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// BidScanner screens one accepted bid. Implemented by the fraud sentinel.
type BidScanner interface {
	Scan(ctx context.Context, job domain.ScanJob) *domain.FraudFlag
}

// Scanner is the channel-fed worker pool between the accept path and the
// fraud sentinel. Scheduling never blocks the caller: a full queue drops the
// job, keeping fraud screening off the bid-accept latency path.
type Scanner struct {
	jobs     chan domain.ScanJob
	sentinel BidScanner
	workers  int
	logger   *slog.Logger
}

// NewScanner creates a Scanner with the given queue capacity and worker
// count.
func NewScanner(sentinel BidScanner, queueSize, workers int, logger *slog.Logger) *Scanner {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		jobs:     make(chan domain.ScanJob, queueSize),
		sentinel: sentinel,
		workers:  workers,
		logger:   logger,
	}
}

// Schedule enqueues a scan job. It returns false when the queue is full and
// the job was dropped.
func (s *Scanner) Schedule(job domain.ScanJob) bool {
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// Run starts the worker pool and blocks until the context is cancelled. On
// shutdown it drains jobs already queued before returning, so accepted bids
// are not left unscreened by a routine restart.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started", slog.Int("workers", s.workers))
	defer s.logger.Info("scanner stopped")

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					s.drain()
					return
				case job, ok := <-s.jobs:
					if !ok {
						return
					}
					s.scan(job)
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// drain processes whatever is still queued using a fresh context, since the
// run context is already cancelled.
func (s *Scanner) drain() {
	for {
		select {
		case job := <-s.jobs:
			s.scan(job)
		default:
			return
		}
	}
}

func (s *Scanner) scan(job domain.ScanJob) {
	// Scans run detached from the request that queued them.
	s.sentinel.Scan(context.Background(), job)
}
