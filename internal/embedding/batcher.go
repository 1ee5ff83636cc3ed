package embedding

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"docrag/internal/chunker"
)

// ProgressFunc is called during an embedding run with (totalChunks, chunksDone).
type ProgressFunc func(total, done int)

// SinkFunc receives each computed vector together with its chunk ID.
type SinkFunc func(chunkID string, vec []float32) error

// Batcher runs the bulk embedding stage: chunks are grouped into batches and
// embedded through a bounded worker pool, giving the serving endpoint
// backpressure, with exponential-backoff retry on transient failures.
type Batcher struct {
	provider    Provider
	batchSize   int
	concurrency int
	maxRetries  int
}

// NewBatcher returns a Batcher with the given limits. Zero values fall back
// to batch size 200, 6 workers, 5 attempts.
func NewBatcher(p Provider, batchSize, concurrency, maxRetries int) *Batcher {
	if batchSize <= 0 {
		batchSize = 200
	}
	if concurrency <= 0 {
		concurrency = 6
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Batcher{
		provider:    p,
		batchSize:   batchSize,
		concurrency: concurrency,
		maxRetries:  maxRetries,
	}
}

// Run embeds all chunks and delivers each vector to sink. It returns the
// first error encountered; in-flight batches finish before it returns.
func (b *Batcher) Run(ctx context.Context, chunks []chunker.Chunk, sink SinkFunc, progress ProgressFunc) error {
	if len(chunks) == 0 {
		return nil
	}

	total := len(chunks)

	type batchJob struct {
		start int
		end   int
	}
	var jobs []batchJob
	for i := 0; i < len(chunks); i += b.batchSize {
		end := i + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		jobs = append(jobs, batchJob{start: i, end: end})
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	var doneCount int
	var doneMu sync.Mutex

	cancelled := false
	for _, job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errOnce.Do(func() { firstErr = ctx.Err() })
			cancelled = true
		}
		if cancelled {
			break
		}
		wg.Add(1)

		go func(j batchJob) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				errOnce.Do(func() { firstErr = ctx.Err() })
				return
			}

			batch := chunks[j.start:j.end]
			inputs := make([]string, len(batch))
			for i, c := range batch {
				inputs[i] = c.Text
			}

			vectors, err := b.embedWithRetry(ctx, inputs)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			if len(vectors) != len(batch) {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(batch), len(vectors))
				})
				return
			}

			for i, vec := range vectors {
				if err := sink(batch[i].ID, vec); err != nil {
					errOnce.Do(func() { firstErr = fmt.Errorf("store embedding for %s: %w", batch[i].ID, err) })
					return
				}
			}

			doneMu.Lock()
			doneCount += len(batch)
			if progress != nil {
				progress(total, doneCount)
			}
			log.Printf("Embedded %d / %d chunks", doneCount, total)
			doneMu.Unlock()
		}(job)
	}

	wg.Wait()
	return firstErr
}

// embedWithRetry calls the provider with exponential backoff, capped at 20s
// between attempts.
func (b *Batcher) embedWithRetry(ctx context.Context, inputs []string) ([][]float32, error) {
	var vectors [][]float32
	var err error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		vectors, err = b.provider.Embed(ctx, inputs)
		if err == nil {
			return vectors, nil
		}
		if attempt < b.maxRetries-1 {
			wait := time.Duration(3*(1<<uint(attempt))) * time.Second
			if wait > 20*time.Second {
				wait = 20 * time.Second
			}
			log.Printf("Embedding batch retry %d after %v: %v", attempt+1, wait, err)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("embedding error on batch: %w", err)
}
