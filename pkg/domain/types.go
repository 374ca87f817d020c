package domain

import "time"

type OrderStatus string

const (
	OrderCreated  OrderStatus = "created"
	OrderPaid     OrderStatus = "paid"
	OrderShipped  OrderStatus = "shipped"
	OrderReceived OrderStatus = "received"
	OrderCanceled OrderStatus = "canceled"
)

// legalTransitions is the single source of truth for the order lifecycle.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderCreated: {OrderPaid, OrderCanceled},
	OrderPaid:    {OrderShipped},
	OrderShipped: {OrderReceived},
}

// CanTransition reports whether moving from s to next is a legal lifecycle edge.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// User is a marketplace account. Token and Terminal describe the single
// active session and are always written together.
type User struct {
	ID           string    `json:"id"`
	PasswordHash string    `json:"-"`
	Balance      int64     `json:"balance"`
	Token        string    `json:"-"`
	Terminal     string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is a seller storefront owned by exactly one user.
type Store struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Listing is one book offered by a store, keyed by (StoreID, BookID).
// Stock is never negative; adjustments are additive deltas applied in storage.
type Listing struct {
	StoreID   string    `json:"storeId"`
	BookID    string    `json:"bookId"`
	Info      []byte    `json:"info"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Order struct {
	ID        string      `json:"id"`
	BuyerID   string      `json:"buyerId"`
	StoreID   string      `json:"storeId"`
	Status    OrderStatus `json:"status"`
	Total     int64       `json:"total"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OrderItem records one line of an order with the unit price at order time.
type OrderItem struct {
	OrderID string `json:"orderId"`
	BookID  string `json:"bookId"`
	Count   int    `json:"count"`
	Price   int64  `json:"price"`
}
