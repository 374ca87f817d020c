package store

import (
	"fmt"
	"sync"
	"time"

	"bookstall/pkg/domain"
)

// MemoryStore is an in-process Store used by tests. It honors the same
// contract as the database-backed store: guarded writes report affected
// rows, and WithinTx is all-or-nothing (snapshot rollback on error).
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	stores   map[string]domain.Store
	listings map[string]domain.Listing
	orders   map[string]domain.Order
	items    map[string][]domain.OrderItem
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		stores:   make(map[string]domain.Store),
		listings: make(map[string]domain.Listing),
		orders:   make(map[string]domain.Order),
		items:    make(map[string][]domain.OrderItem),
	}
}

func listingKey(storeID, bookID string) string {
	return storeID + "\x00" + bookID
}

type memorySnapshot struct {
	users    map[string]domain.User
	stores   map[string]domain.Store
	listings map[string]domain.Listing
	orders   map[string]domain.Order
	items    map[string][]domain.OrderItem
}

func (m *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		users:    make(map[string]domain.User, len(m.users)),
		stores:   make(map[string]domain.Store, len(m.stores)),
		listings: make(map[string]domain.Listing, len(m.listings)),
		orders:   make(map[string]domain.Order, len(m.orders)),
		items:    make(map[string][]domain.OrderItem, len(m.items)),
	}
	for k, v := range m.users {
		snap.users[k] = v
	}
	for k, v := range m.stores {
		snap.stores[k] = v
	}
	for k, v := range m.listings {
		snap.listings[k] = v
	}
	for k, v := range m.orders {
		snap.orders[k] = v
	}
	for k, v := range m.items {
		snap.items[k] = append([]domain.OrderItem(nil), v...)
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.users = snap.users
	m.stores = snap.stores
	m.listings = snap.listings
	m.orders = snap.orders
	m.items = snap.items
}

// WithinTx serializes the whole unit under one lock and rolls the state back
// when fn fails.
func (m *MemoryStore) WithinTx(fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(txStore{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// txStore exposes the unlocked operations to a WithinTx body while the
// store lock is held.
type txStore struct{ m *MemoryStore }

func (t txStore) UserExists(id string) (bool, error)  { return t.m.userExists(id) }
func (t txStore) StoreExists(id string) (bool, error) { return t.m.storeExists(id) }
func (t txStore) BookExists(storeID, bookID string) (bool, error) {
	return t.m.bookExists(storeID, bookID)
}
func (t txStore) CreateUser(u domain.User) error              { return t.m.createUser(u) }
func (t txStore) GetUser(id string) (domain.User, bool, error) { return t.m.getUser(id) }
func (t txStore) SetUserSession(id, token, terminal string) (int64, error) {
	return t.m.setUserSession(id, token, terminal)
}
func (t txStore) SetUserCredentials(id, hash, token, terminal string) (int64, error) {
	return t.m.setUserCredentials(id, hash, token, terminal)
}
func (t txStore) AdjustBalance(id string, delta int64) (int64, error) {
	return t.m.adjustBalance(id, delta)
}
func (t txStore) DeleteUser(id string) (int64, error)            { return t.m.deleteUser(id) }
func (t txStore) CreateStore(st domain.Store) error              { return t.m.createStore(st) }
func (t txStore) GetStore(id string) (domain.Store, bool, error) { return t.m.getStore(id) }
func (t txStore) CreateListing(l domain.Listing) error           { return t.m.createListing(l) }
func (t txStore) GetListing(storeID, bookID string) (domain.Listing, bool, error) {
	return t.m.getListing(storeID, bookID)
}
func (t txStore) AdjustStock(storeID, bookID string, delta int) (int64, error) {
	return t.m.adjustStock(storeID, bookID, delta)
}
func (t txStore) StoreBookIDs(storeID string) ([]string, error) { return t.m.storeBookIDs(storeID) }
func (t txStore) CreateOrder(o domain.Order, items []domain.OrderItem) error {
	return t.m.createOrder(o, items)
}
func (t txStore) GetOrder(id string) (domain.Order, bool, error) { return t.m.getOrder(id) }
func (t txStore) OrderItems(orderID string) ([]domain.OrderItem, error) {
	return t.m.orderItems(orderID)
}
func (t txStore) TransitionOrder(id string, from, to domain.OrderStatus) (int64, error) {
	return t.m.transitionOrder(id, from, to)
}
func (t txStore) WithinTx(fn func(Store) error) error {
	// Already inside the transaction lock.
	return fn(t)
}

// Locked public surface.

func (m *MemoryStore) UserExists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userExists(id)
}

func (m *MemoryStore) StoreExists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeExists(id)
}

func (m *MemoryStore) BookExists(storeID, bookID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookExists(storeID, bookID)
}

func (m *MemoryStore) CreateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUser(u)
}

func (m *MemoryStore) GetUser(id string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUser(id)
}

func (m *MemoryStore) SetUserSession(id, token, terminal string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setUserSession(id, token, terminal)
}

func (m *MemoryStore) SetUserCredentials(id, hash, token, terminal string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setUserCredentials(id, hash, token, terminal)
}

func (m *MemoryStore) AdjustBalance(id string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustBalance(id, delta)
}

func (m *MemoryStore) DeleteUser(id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteUser(id)
}

func (m *MemoryStore) CreateStore(st domain.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createStore(st)
}

func (m *MemoryStore) GetStore(id string) (domain.Store, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getStore(id)
}

func (m *MemoryStore) CreateListing(l domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createListing(l)
}

func (m *MemoryStore) GetListing(storeID, bookID string) (domain.Listing, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getListing(storeID, bookID)
}

func (m *MemoryStore) AdjustStock(storeID, bookID string, delta int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustStock(storeID, bookID, delta)
}

func (m *MemoryStore) StoreBookIDs(storeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeBookIDs(storeID)
}

func (m *MemoryStore) CreateOrder(o domain.Order, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createOrder(o, items)
}

func (m *MemoryStore) GetOrder(id string) (domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrder(id)
}

func (m *MemoryStore) OrderItems(orderID string) ([]domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderItems(orderID)
}

func (m *MemoryStore) TransitionOrder(id string, from, to domain.OrderStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionOrder(id, from, to)
}

// Unlocked internals. Callers hold m.mu.

func (m *MemoryStore) userExists(id string) (bool, error) {
	_, ok := m.users[id]
	return ok, nil
}

func (m *MemoryStore) storeExists(id string) (bool, error) {
	_, ok := m.stores[id]
	return ok, nil
}

func (m *MemoryStore) bookExists(storeID, bookID string) (bool, error) {
	_, ok := m.listings[listingKey(storeID, bookID)]
	return ok, nil
}

func (m *MemoryStore) createUser(u domain.User) error {
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) getUser(id string) (domain.User, bool, error) {
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) setUserSession(id, token, terminal string) (int64, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	u.Token = token
	u.Terminal = terminal
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return 1, nil
}

func (m *MemoryStore) setUserCredentials(id, hash, token, terminal string) (int64, error) {
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	u.PasswordHash = hash
	u.Token = token
	u.Terminal = terminal
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return 1, nil
}

func (m *MemoryStore) adjustBalance(id string, delta int64) (int64, error) {
	u, ok := m.users[id]
	if !ok || u.Balance+delta < 0 {
		return 0, nil
	}
	u.Balance += delta
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return 1, nil
}

func (m *MemoryStore) deleteUser(id string) (int64, error) {
	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

func (m *MemoryStore) createStore(st domain.Store) error {
	if _, ok := m.stores[st.ID]; ok {
		return ErrDuplicate
	}
	m.stores[st.ID] = st
	return nil
}

func (m *MemoryStore) getStore(id string) (domain.Store, bool, error) {
	st, ok := m.stores[id]
	return st, ok, nil
}

func (m *MemoryStore) createListing(l domain.Listing) error {
	key := listingKey(l.StoreID, l.BookID)
	if _, ok := m.listings[key]; ok {
		return ErrDuplicate
	}
	m.listings[key] = l
	return nil
}

func (m *MemoryStore) getListing(storeID, bookID string) (domain.Listing, bool, error) {
	l, ok := m.listings[listingKey(storeID, bookID)]
	return l, ok, nil
}

func (m *MemoryStore) adjustStock(storeID, bookID string, delta int) (int64, error) {
	key := listingKey(storeID, bookID)
	l, ok := m.listings[key]
	if !ok || l.Stock+delta < 0 {
		return 0, nil
	}
	l.Stock += delta
	l.UpdatedAt = time.Now().UTC()
	m.listings[key] = l
	return 1, nil
}

func (m *MemoryStore) storeBookIDs(storeID string) ([]string, error) {
	ids := make([]string, 0)
	for _, l := range m.listings {
		if l.StoreID == storeID {
			ids = append(ids, l.BookID)
		}
	}
	return ids, nil
}

func (m *MemoryStore) createOrder(o domain.Order, items []domain.OrderItem) error {
	if _, ok := m.orders[o.ID]; ok {
		return ErrDuplicate
	}
	m.orders[o.ID] = o
	copied := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		it.OrderID = o.ID
		copied = append(copied, it)
	}
	m.items[o.ID] = copied
	return nil
}

func (m *MemoryStore) getOrder(id string) (domain.Order, bool, error) {
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *MemoryStore) orderItems(orderID string) ([]domain.OrderItem, error) {
	return append([]domain.OrderItem(nil), m.items[orderID]...), nil
}

func (m *MemoryStore) transitionOrder(id string, from, to domain.OrderStatus) (int64, error) {
	if !from.CanTransition(to) {
		return 0, fmt.Errorf("illegal order transition %s -> %s", from, to)
	}
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return 0, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return 1, nil
}
