package trade

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"bookstall/pkg/domain"
	"bookstall/pkg/queue"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 100
	defaultSweepWorkers  = 4
)

// Sweeper cancels orders that stayed unpaid past their payment deadline.
// Due order ids come from the delay queue; each expiry runs in its own
// transaction so one bad order cannot block the batch.
type Sweeper struct {
	store    store.Store
	queue    queue.DelayQueue
	interval time.Duration
	batch    int
	workers  int
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepBatch(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithSweepWorkers(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewSweeper wires the expiry sweeper.
func NewSweeper(st store.Store, q queue.DelayQueue, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    st,
		queue:    q,
		interval: defaultSweepInterval,
		batch:    defaultSweepBatch,
		workers:  defaultSweepWorkers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run sweeps on a ticker until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				slog.Error("order expiry sweep", "err", err)
			}
		}
	}
}

// Sweep cancels every currently due order, fanning out across a bounded
// worker pool.
func (s *Sweeper) Sweep(ctx context.Context) error {
	due, err := s.queue.Due(ctx, time.Now(), s.batch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, orderID := range due {
		orderID := orderID
		g.Go(func() error {
			if err := s.expire(orderID); err != nil {
				slog.Error("expire order", "order", orderID, "err", err)
				return nil
			}
			if err := s.queue.Remove(ctx, orderID); err != nil {
				slog.Error("dequeue expired order", "order", orderID, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// expire cancels a single unpaid order and restores its stock. Orders that
// were paid, canceled, or deleted in the meantime are left alone.
func (s *Sweeper) expire(orderID string) (err error) {
	defer status.Recover(&err)

	return s.store.WithinTx(func(tx store.Store) error {
		order, ok, err := tx.GetOrder(orderID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok || order.Status != domain.OrderCreated {
			return nil
		}
		return cancelCreatedOrder(tx, order)
	})
}
