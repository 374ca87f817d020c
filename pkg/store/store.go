package store

import (
	"errors"

	"bookstall/pkg/domain"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate key")

// Store is the storage gateway. It executes existence checks and CRUD
// statements against the durable store and holds no business logic.
// Guarded writes return the affected row count so callers can detect
// lost races after the fact.
type Store interface {
	// existence checks
	UserExists(id string) (bool, error)
	StoreExists(id string) (bool, error)
	BookExists(storeID, bookID string) (bool, error)

	// users
	CreateUser(u domain.User) error
	GetUser(id string) (domain.User, bool, error)
	// SetUserSession overwrites token and terminal together.
	SetUserSession(id, token, terminal string) (int64, error)
	// SetUserCredentials overwrites the password hash and rotates the session.
	SetUserCredentials(id, passwordHash, token, terminal string) (int64, error)
	// AdjustBalance applies balance += delta, refusing a negative result.
	AdjustBalance(id string, delta int64) (int64, error)
	DeleteUser(id string) (int64, error)

	// stores and listings
	CreateStore(st domain.Store) error
	GetStore(id string) (domain.Store, bool, error)
	CreateListing(l domain.Listing) error
	GetListing(storeID, bookID string) (domain.Listing, bool, error)
	// AdjustStock applies stock += delta, refusing a negative result.
	AdjustStock(storeID, bookID string, delta int) (int64, error)
	// StoreBookIDs lists the book ids a store offers.
	StoreBookIDs(storeID string) ([]string, error)

	// orders
	CreateOrder(o domain.Order, items []domain.OrderItem) error
	GetOrder(id string) (domain.Order, bool, error)
	OrderItems(orderID string) ([]domain.OrderItem, error)
	// TransitionOrder moves an order from one status to another as a single
	// conditional update. Zero affected rows means another request won the
	// race. Illegal lifecycle edges are rejected outright.
	TransitionOrder(id string, from, to domain.OrderStatus) (int64, error)

	// WithinTx runs fn against a Store bound to one transaction: every check
	// and write fn performs either fully applies or leaves no effect.
	WithinTx(fn func(Store) error) error
}
