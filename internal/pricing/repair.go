package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Spok95/decant-pricing/internal/infra/metrics"
)

var (
	ErrRepairQueueFull   = errors.New("pricing: repair queue is full")
	ErrRepairQueueClosed = errors.New("pricing: repair queue is closed")
)

type productRepairer interface {
	Repair(ctx context.Context, productID int64) (*MarginUpdate, error)
}

// Repairer recalculates products whose stored prices were found drifting.
// Requests are deduplicated per product while pending; Submit never blocks.
type Repairer struct {
	setter productRepairer
	log    *slog.Logger

	queue   chan int64
	mu      sync.Mutex
	pending map[int64]struct{}
	closed  bool
}

func NewRepairer(setter productRepairer, capacity int, log *slog.Logger) *Repairer {
	if capacity <= 0 {
		capacity = 64
	}
	return &Repairer{
		setter:  setter,
		log:     log,
		queue:   make(chan int64, capacity),
		pending: make(map[int64]struct{}),
	}
}

// Submit enqueues a product. A product already waiting is not queued twice.
func (r *Repairer) Submit(productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRepairQueueClosed
	}
	if _, ok := r.pending[productID]; ok {
		metrics.RepairQueue.WithLabelValues("duplicate").Inc()
		return nil
	}
	select {
	case r.queue <- productID:
		r.pending[productID] = struct{}{}
		metrics.RepairQueue.WithLabelValues("queued").Inc()
		return nil
	default:
		metrics.RepairQueue.WithLabelValues("dropped").Inc()
		r.log.Warn("repair queue full, request dropped", "product_id", productID)
		return ErrRepairQueueFull
	}
}

// Pending is the number of products waiting for repair.
func (r *Repairer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run drains the queue until ctx is cancelled. Requests still queued at that point are discarded.
func (r *Repairer) Run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.mu.Lock()
			delete(r.pending, id)
			r.mu.Unlock()
			r.repair(ctx, id)
		}
	}
}

func (r *Repairer) repair(ctx context.Context, productID int64) {
	defer func() {
		if p := recover(); p != nil {
			metrics.RepairQueue.WithLabelValues("failed").Inc()
			r.log.Error("repair panicked", "product_id", productID, "panic", p)
		}
	}()

	upd, err := r.setter.Repair(ctx, productID)
	if err != nil {
		metrics.RepairQueue.WithLabelValues("failed").Inc()
		r.log.Error("repair failed", "product_id", productID, "err", err)
		return
	}
	metrics.RepairQueue.WithLabelValues("done").Inc()
	r.log.Info("prices repaired",
		"product_id", productID,
		"changed", upd.ChangedSizes(),
		"failed", len(upd.Failed),
	)
}
