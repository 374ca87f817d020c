package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"bookstall/pkg/domain"
	"bookstall/pkg/status"
	"bookstall/pkg/storage"
	"bookstall/pkg/store"
)

// Manager handles seller operations: storefronts, listings, stock, and
// shipment. Every check-then-write runs inside one storage transaction.
type Manager struct {
	store  store.Store
	covers storage.ObjectStore
}

type Option func(*Manager)

// WithCoverStore offloads inline cover images from listing metadata to
// object storage.
func WithCoverStore(covers storage.ObjectStore) Option {
	return func(m *Manager) {
		m.covers = covers
	}
}

// NewManager wires the catalog manager.
func NewManager(st store.Store, opts ...Option) *Manager {
	m := &Manager{store: st}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CreateStore opens a storefront owned by the user.
func (m *Manager) CreateStore(userID, storeID string) (err error) {
	defer status.Recover(&err)

	return m.store.WithinTx(func(tx store.Store) error {
		if err := requireUser(tx, userID); err != nil {
			return err
		}
		exists, err := tx.StoreExists(storeID)
		if err != nil {
			return status.StorageFault(err)
		}
		if exists {
			return status.ExistStore(storeID)
		}
		st := domain.Store{ID: storeID, OwnerID: userID, CreatedAt: time.Now().UTC()}
		if err := tx.CreateStore(st); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return status.ExistStore(storeID)
			}
			return status.StorageFault(err)
		}
		return nil
	})
}

// AddBook lists a book in a store with its serialized metadata and an
// initial stock level. When a cover store is configured, an inline picture
// in the metadata is moved to object storage and replaced by its key.
func (m *Manager) AddBook(userID, storeID, bookID string, info []byte, stock int) (err error) {
	defer status.Recover(&err)

	if stock < 0 {
		return status.StockLow(bookID)
	}
	price, info, coverKey := m.normalizeInfo(storeID, bookID, info)
	err = m.store.WithinTx(func(tx store.Store) error {
		if err := requireSeller(tx, userID, storeID); err != nil {
			return err
		}
		exists, err := tx.BookExists(storeID, bookID)
		if err != nil {
			return status.StorageFault(err)
		}
		if exists {
			return status.ExistBook(bookID)
		}
		now := time.Now().UTC()
		listing := domain.Listing{
			StoreID:   storeID,
			BookID:    bookID,
			Info:      info,
			Price:     price,
			Stock:     stock,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateListing(listing); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return status.ExistBook(bookID)
			}
			return status.StorageFault(err)
		}
		return nil
	})
	if err != nil && coverKey != "" {
		// The cover was uploaded before the listing insert; don't orphan it.
		// On a duplicate the key already backs the existing listing and stays.
		if code, _ := status.CodeOf(err); code != status.CodeExistBook {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if delErr := m.covers.Delete(ctx, coverKey); delErr != nil {
				slog.Error("remove orphaned cover", "store", storeID, "book", bookID, "err", delErr)
			}
		}
	}
	return err
}

// coverURLExpiry bounds how long a presigned cover link stays valid.
const coverURLExpiry = 15 * time.Minute

// CoverURL returns a presigned link to a listing's cover image. A listing
// without a stored cover yields an empty URL and no error.
func (m *Manager) CoverURL(storeID, bookID string) (url string, err error) {
	defer status.Recover(&err)

	if m.covers == nil {
		return "", nil
	}
	listing, ok, err := m.store.GetListing(storeID, bookID)
	if err != nil {
		return "", status.StorageFault(err)
	}
	if !ok {
		return "", status.NonExistBook(bookID)
	}
	var payload map[string]any
	if err := json.Unmarshal(listing.Info, &payload); err != nil {
		return "", nil
	}
	key, _ := payload["cover_key"].(string)
	if key == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url, err = m.covers.PresignGet(ctx, key, coverURLExpiry)
	if err != nil {
		return "", status.StorageFault(err)
	}
	return url, nil
}

// AddStock applies a stock delta server-side. A refused adjustment (one that
// would drive the level negative) reports low stock.
func (m *Manager) AddStock(userID, storeID, bookID string, delta int) (err error) {
	defer status.Recover(&err)

	return m.store.WithinTx(func(tx store.Store) error {
		if err := requireSeller(tx, userID, storeID); err != nil {
			return err
		}
		exists, err := tx.BookExists(storeID, bookID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !exists {
			return status.NonExistBook(bookID)
		}
		rows, err := tx.AdjustStock(storeID, bookID, delta)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.StockLow(bookID)
		}
		return nil
	})
}

// ShipOrder moves a paid order to shipped exactly once. A transition that
// affects no rows means another request won the race and is reported as an
// invalid order rather than a silent success.
func (m *Manager) ShipOrder(userID, storeID, orderID string) (err error) {
	defer status.Recover(&err)

	return m.store.WithinTx(func(tx store.Store) error {
		if err := requireSeller(tx, userID, storeID); err != nil {
			return err
		}
		order, ok, err := tx.GetOrder(orderID)
		if err != nil {
			return status.StorageFault(err)
		}
		if !ok || order.StoreID != storeID {
			return status.InvalidOrder(orderID)
		}
		if order.Status != domain.OrderPaid {
			return status.NotPaid(orderID)
		}
		rows, err := tx.TransitionOrder(orderID, domain.OrderPaid, domain.OrderShipped)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.InvalidOrder(orderID)
		}
		return nil
	})
}

func requireUser(tx store.Store, userID string) error {
	exists, err := tx.UserExists(userID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !exists {
		return status.NonExistUser(userID)
	}
	return nil
}

func requireSeller(tx store.Store, userID, storeID string) error {
	if err := requireUser(tx, userID); err != nil {
		return err
	}
	exists, err := tx.StoreExists(storeID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !exists {
		return status.NonExistStore(storeID)
	}
	return nil
}

// normalizeInfo extracts the unit price from the metadata and, when a cover
// store is configured, swaps an inline base64 picture for an object key.
// Metadata that does not parse is stored as supplied. The returned key is
// non-empty only when a cover was actually uploaded.
func (m *Manager) normalizeInfo(storeID, bookID string, info []byte) (int64, []byte, string) {
	if len(info) == 0 {
		return 0, info, ""
	}
	var payload map[string]any
	if err := json.Unmarshal(info, &payload); err != nil {
		return 0, info, ""
	}
	var price int64
	if p, ok := payload["price"].(float64); ok && p >= 0 {
		price = int64(p)
	}
	if m.covers == nil {
		return price, info, ""
	}
	raw, ok := payload["picture"].(string)
	if !ok || raw == "" {
		return price, info, ""
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		slog.Warn("inline cover not base64, keeping it in metadata", "store", storeID, "book", bookID)
		return price, info, ""
	}
	key := storage.CoverKey(storeID, bookID)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.covers.PutCover(ctx, key, data); err != nil {
		slog.Error("cover upload failed, keeping it in metadata", "store", storeID, "book", bookID, "err", err)
		return price, info, ""
	}
	delete(payload, "picture")
	payload["cover_key"] = key
	rewritten, err := json.Marshal(payload)
	if err != nil {
		return price, info, ""
	}
	return price, rewritten, key
}
