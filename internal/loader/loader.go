// Package loader feeds encoded samples through a collator in fixed-size
// chunks, on a worker pool, delivering batches in chunk order.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/matsen/docqa/internal/batch"
	"github.com/matsen/docqa/internal/sample"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is used when no batch size option is given.
const DefaultBatchSize = 32

// Result is the outcome of collating one chunk.
type Result struct {
	Index   int   // Chunk number in delivery order
	Indices []int // Sample positions the chunk was built from
	Batch   *batch.Batch
	Err     error
}

// Loader chunks samples and collates each chunk.
type Loader struct {
	collate   batch.Collator
	batchSize int
	shuffle   bool
	seed      uint64
	workers   int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize sets the number of samples per batch.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithShuffle shuffles sample order before chunking, deterministically for a seed.
func WithShuffle(seed int64) Option {
	return func(l *Loader) {
		l.shuffle = true
		l.seed = uint64(seed)
	}
}

// WithWorkers sets the number of concurrent collations.
func WithWorkers(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithRateLimit caps how many chunks are dispatched per second.
// Zero or negative disables throttling.
func WithRateLimit(perSecond float64) Option {
	return func(l *Loader) {
		if perSecond > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			l.limiter = nil
		}
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader around a collator.
func New(collate batch.Collator, opts ...Option) *Loader {
	l := &Loader{
		collate:   collate,
		batchSize: DefaultBatchSize,
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.batchSize }

// Workers returns the configured worker count.
func (l *Loader) Workers() int { return l.workers }

// Batches splits sample positions 0..n-1 into chunks of the batch size.
// The last chunk may be short.
func (l *Loader) Batches(n int) [][]int {
	if n <= 0 {
		return nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		rng := rand.New(rand.NewPCG(l.seed, l.seed^0x9e3779b97f4a7c15))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	chunks := make([][]int, 0, (n+l.batchSize-1)/l.batchSize)
	for start := 0; start < n; start += l.batchSize {
		end := min(start+l.batchSize, n)
		chunks = append(chunks, order[start:end:end])
	}
	return chunks
}

// Run collates every chunk of samples and calls fn with each Result in
// chunk order. A collate failure arrives as Result.Err; returning an error
// from fn stops the run and Run returns that error.
func (l *Loader) Run(ctx context.Context, samples []sample.EncodedSample, fn func(Result) error) error {
	chunks := l.Batches(len(samples))
	if len(chunks) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Each slot is written exactly once, so buffered sends never block.
	slots := make([]chan Result, len(chunks))
	for i := range slots {
		slots[i] = make(chan Result, 1)
	}

	// Bounds how far collation may run ahead of delivery.
	window := make(chan struct{}, 2*l.workers)
	jobs := make(chan int)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i := range chunks {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return
			}
			if l.limiter != nil {
				if err := l.limiter.Wait(ctx); err != nil {
					return
				}
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	for w := 0; w < l.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				slots[i] <- l.collateChunk(i, chunks[i], samples)
			}
		}()
	}

	for i := range slots {
		var r Result
		select {
		case r = <-slots[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		<-window

		if r.Err != nil {
			l.logger.Debug("collate failed", "batch", r.Index, "error", r.Err)
		} else {
			l.logger.Debug("collated batch", "batch", r.Index, "size", r.Batch.Len())
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) collateChunk(i int, indices []int, samples []sample.EncodedSample) Result {
	chunk := make([]sample.EncodedSample, len(indices))
	for k, idx := range indices {
		chunk[k] = samples[idx]
	}

	b, err := l.collate(chunk)
	if err != nil {
		return Result{Index: i, Indices: indices, Err: fmt.Errorf("batch %d: %w", i, err)}
	}
	return Result{Index: i, Indices: indices, Batch: b}
}
