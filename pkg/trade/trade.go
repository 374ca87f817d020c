package trade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bookstall/pkg/auth"
	"bookstall/pkg/domain"
	"bookstall/pkg/queue"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
)

// DefaultPayWindow is how long a created order may stay unpaid before the
// sweeper cancels it.
const DefaultPayWindow = 15 * time.Minute

// ItemRequest is one requested order line.
type ItemRequest struct {
	BookID string
	Count  int
}

// Manager handles buyer operations: placing orders, payment, funds, receipt
// and cancellation. Every check-then-write runs inside one storage
// transaction; stock and balance moves are guarded server-side.
type Manager struct {
	store     store.Store
	queue     queue.DelayQueue
	payWindow time.Duration
}

type Option func(*Manager)

// WithDelayQueue schedules unpaid orders for expiry.
func WithDelayQueue(q queue.DelayQueue) Option {
	return func(m *Manager) {
		m.queue = q
	}
}

// WithPayWindow overrides the payment deadline for new orders.
func WithPayWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.payWindow = d
		}
	}
}

// NewManager wires the trade manager.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{store: st, payWindow: DefaultPayWindow}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// NewOrder reserves stock for every requested line and creates the order in
// the created state. Reservation and order insert are one atomic unit: if
// any line cannot be filled, no stock moves.
func (m *Manager) NewOrder(userID, storeID string, items []ItemRequest) (orderID string, err error) {
	defer status.Recover(&err)

	orderID = uuid.NewString()
	err = m.store.WithinTx(func(tx store.Store) error {
		if err := requireBuyer(tx, userID, storeID); err != nil {
			return err
		}
		var total int64
		lines := make([]domain.OrderItem, 0, len(items))
		for _, item := range items {
			if item.Count <= 0 {
				return status.StockLow(item.BookID)
			}
			listing, ok, err := tx.GetListing(storeID, item.BookID)
			if err != nil {
				return status.StorageFault(err)
			}
			if !ok {
				return status.NonExistBook(item.BookID)
			}
			rows, err := tx.AdjustStock(storeID, item.BookID, -item.Count)
			if err != nil {
				return status.StorageFault(err)
			}
			if rows == 0 {
				return status.StockLow(item.BookID)
			}
			total += listing.Price * int64(item.Count)
			lines = append(lines, domain.OrderItem{
				OrderID: orderID,
				BookID:  item.BookID,
				Count:   item.Count,
				Price:   listing.Price,
			})
		}
		now := time.Now().UTC()
		order := domain.Order{
			ID:        orderID,
			BuyerID:   userID,
			StoreID:   storeID,
			Status:    domain.OrderCreated,
			Total:     total,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateOrder(order, lines); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return status.InvalidOrder(orderID)
			}
			return status.StorageFault(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if m.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.queue.Defer(ctx, orderID, time.Now().Add(m.payWindow)); err != nil {
			slog.Error("schedule order expiry", "order", orderID, "err", err)
		}
	}
	return orderID, nil
}

// Payment moves funds from the buyer to the store owner and marks the order
// paid, all in one transaction.
func (m *Manager) Payment(userID, password, orderID string) (err error) {
	defer status.Recover(&err)

	err = m.store.WithinTx(func(tx store.Store) error {
		order, ok, err := tx.GetOrder(orderID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok {
			return status.InvalidOrder(orderID)
		}
		if order.BuyerID != userID {
			return status.Authorization()
		}
		buyer, ok, err := tx.GetUser(userID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok || !auth.CheckPassword(password, buyer.PasswordHash) {
			return status.Authorization()
		}
		if order.Status != domain.OrderCreated {
			return status.InvalidOrder(orderID)
		}
		rows, err := tx.AdjustBalance(userID, -order.Total)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.InsufficientFunds(orderID)
		}
		seller, ok, err := tx.GetStore(order.StoreID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok {
			return status.NonExistStore(order.StoreID)
		}
		rows, err = tx.AdjustBalance(seller.OwnerID, order.Total)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.NonExistUser(seller.OwnerID)
		}
		rows, err = tx.TransitionOrder(orderID, domain.OrderCreated, domain.OrderPaid)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.InvalidOrder(orderID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.unschedule(orderID)
	return nil
}

// AddFunds tops up the buyer's balance after verifying the password.
func (m *Manager) AddFunds(userID, password string, amount int64) (err error) {
	defer status.Recover(&err)

	if amount <= 0 {
		return status.InsufficientFunds("add_funds")
	}
	return m.store.WithinTx(func(tx store.Store) error {
		user, ok, err := tx.GetUser(userID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok || !auth.CheckPassword(password, user.PasswordHash) {
			return status.Authorization()
		}
		rows, err := tx.AdjustBalance(userID, amount)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.NonExistUser(userID)
		}
		return nil
	})
}

// ReceiveOrder confirms delivery, moving the order from shipped to received.
func (m *Manager) ReceiveOrder(userID, orderID string) (err error) {
	defer status.Recover(&err)

	return m.store.WithinTx(func(tx store.Store) error {
		order, ok, err := tx.GetOrder(orderID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok {
			return status.InvalidOrder(orderID)
		}
		if order.BuyerID != userID {
			return status.Authorization()
		}
		if order.Status != domain.OrderShipped {
			return status.NotShipped(orderID)
		}
		rows, err := tx.TransitionOrder(orderID, domain.OrderShipped, domain.OrderReceived)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.InvalidOrder(orderID)
		}
		return nil
	})
}

// CancelOrder cancels an unpaid order and returns its reserved stock.
func (m *Manager) CancelOrder(userID, orderID string) (err error) {
	defer status.Recover(&err)

	err = m.store.WithinTx(func(tx store.Store) error {
		order, ok, err := tx.GetOrder(orderID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok {
			return status.InvalidOrder(orderID)
		}
		if order.BuyerID != userID {
			return status.Authorization()
		}
		if order.Status != domain.OrderCreated {
			return status.InvalidOrder(orderID)
		}
		return cancelCreatedOrder(tx, order)
	})
	if err != nil {
		return err
	}
	m.unschedule(orderID)
	return nil
}

// cancelCreatedOrder restores stock and transitions created -> canceled.
// A lost transition race reports an invalid order.
func cancelCreatedOrder(tx store.Store, order domain.Order) error {
	items, err := tx.OrderItems(order.ID)
	if err != nil {
		return status.StorageFault(err)
	}
	for _, item := range items {
		if _, err := tx.AdjustStock(order.StoreID, item.BookID, item.Count); err != nil {
			return status.StorageFault(err)
		}
	}
	rows, err := tx.TransitionOrder(order.ID, domain.OrderCreated, domain.OrderCanceled)
	if err != nil {
		return status.StorageFault(err)
	}
	if rows == 0 {
		return status.InvalidOrder(order.ID)
	}
	return nil
}

func (m *Manager) unschedule(orderID string) {
	if m.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.queue.Remove(ctx, orderID); err != nil {
		slog.Error("unschedule order expiry", "order", orderID, "err", err)
	}
}

func requireBuyer(tx store.Store, userID, storeID string) error {
	exists, err := tx.UserExists(userID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !exists {
		return status.NonExistUser(userID)
	}
	exists, err = tx.StoreExists(storeID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !exists {
		return status.NonExistStore(storeID)
	}
	return nil
}
