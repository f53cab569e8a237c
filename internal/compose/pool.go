package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"golang.org/x/sync/semaphore"

	"github.com/maauso/sitereel/internal/media"
)

// Pool caps the number of compositions running at once. Each composition is
// CPU bound, so the default size is the number of logical cores.
type Pool struct {
	renderer     Renderer
	sem          *semaphore.Weighted
	size         int
	timeout      time.Duration
	queueTimeout time.Duration
	logger       *slog.Logger
}

// ErrQueueTimeout is returned when no composition slot frees up in time.
var ErrQueueTimeout = errors.New("timed out waiting for a composition slot")

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithQueueTimeout bounds how long Render waits for a free slot.
func WithQueueTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.queueTimeout = d
		}
	}
}

// DefaultPoolSize returns the number of logical CPU cores.
func DefaultPoolSize() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return max(1, runtime.NumCPU())
	}
	return n
}

// NewPool wraps renderer. A non-positive size uses DefaultPoolSize; a
// non-positive timeout leaves only the caller's deadline in effect.
func NewPool(renderer Renderer, size int, timeout time.Duration, logger *slog.Logger, opts ...PoolOption) *Pool {
	if size <= 0 {
		size = DefaultPoolSize()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		renderer: renderer,
		sem:      semaphore.NewWeighted(int64(size)),
		size:     size,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size returns the maximum number of concurrent compositions.
func (p *Pool) Size() int { return p.size }

// Render waits for a free slot, then runs the composition under the pool
// timeout. Cancelling ctx stops the wait or the running composition.
func (p *Pool) Render(ctx context.Context, job Job) (media.Asset, error) {
	queued := time.Now()
	if err := p.acquire(ctx); err != nil {
		return media.Asset{}, err
	}
	defer p.sem.Release(1)

	if wait := time.Since(queued); wait > time.Second {
		p.logger.Info("composition slot acquired",
			slog.Duration("waited", wait),
			slog.Int("pool_size", p.size),
		)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.renderer.Render(ctx, job)
}

func (p *Pool) acquire(ctx context.Context) error {
	waitCtx := ctx
	if p.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()
	}
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", ErrQueueTimeout, p.queueTimeout)
		}
		return fmt.Errorf("wait for composition slot: %w", err)
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Renderer = (*Pool)(nil)
