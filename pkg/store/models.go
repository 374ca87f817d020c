package store

import (
	"time"

	"gorm.io/datatypes"

	"bookstall/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey;column:user_id"`
	PasswordHash string `gorm:"not null"`
	Balance      int64  `gorm:"not null"`
	Token        string
	Terminal     string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

// StoreModel records storefront ownership.
type StoreModel struct {
	ID        string    `gorm:"primaryKey;column:store_id"`
	OwnerID   string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (StoreModel) TableName() string { return "user_stores" }

type ListingModel struct {
	StoreID   string         `gorm:"primaryKey"`
	BookID    string         `gorm:"primaryKey"`
	Info      datatypes.JSON `gorm:"type:jsonb"`
	Price     int64          `gorm:"not null"`
	Stock     int            `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time
}

func (ListingModel) TableName() string { return "store_listings" }

type OrderModel struct {
	ID        string    `gorm:"primaryKey;column:order_id"`
	BuyerID   string    `gorm:"not null;index"`
	StoreID   string    `gorm:"not null;index"`
	Status    string    `gorm:"not null;index"`
	Total     int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

func (OrderModel) TableName() string { return "orders" }

type OrderItemModel struct {
	OrderID string `gorm:"primaryKey"`
	BookID  string `gorm:"primaryKey"`
	Count   int    `gorm:"not null"`
	Price   int64  `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		PasswordHash: u.PasswordHash,
		Balance:      u.Balance,
		Token:        u.Token,
		Terminal:     u.Terminal,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		Balance:      m.Balance,
		Token:        m.Token,
		Terminal:     m.Terminal,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func storeToModel(st domain.Store) StoreModel {
	return StoreModel{ID: st.ID, OwnerID: st.OwnerID, CreatedAt: st.CreatedAt}
}

func storeFromModel(m StoreModel) domain.Store {
	return domain.Store{ID: m.ID, OwnerID: m.OwnerID, CreatedAt: m.CreatedAt}
}

func listingToModel(l domain.Listing) ListingModel {
	return ListingModel{
		StoreID:   l.StoreID,
		BookID:    l.BookID,
		Info:      datatypes.JSON(l.Info),
		Price:     l.Price,
		Stock:     l.Stock,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func listingFromModel(m ListingModel) domain.Listing {
	return domain.Listing{
		StoreID:   m.StoreID,
		BookID:    m.BookID,
		Info:      []byte(m.Info),
		Price:     m.Price,
		Stock:     m.Stock,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func orderToModel(o domain.Order) OrderModel {
	return OrderModel{
		ID:        o.ID,
		BuyerID:   o.BuyerID,
		StoreID:   o.StoreID,
		Status:    string(o.Status),
		Total:     o.Total,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func orderFromModel(m OrderModel) domain.Order {
	return domain.Order{
		ID:        m.ID,
		BuyerID:   m.BuyerID,
		StoreID:   m.StoreID,
		Status:    domain.OrderStatus(m.Status),
		Total:     m.Total,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func itemToModel(it domain.OrderItem) OrderItemModel {
	return OrderItemModel{OrderID: it.OrderID, BookID: it.BookID, Count: it.Count, Price: it.Price}
}

func itemFromModel(m OrderItemModel) domain.OrderItem {
	return domain.OrderItem{OrderID: m.OrderID, BookID: m.BookID, Count: m.Count, Price: m.Price}
}
