package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"bookstall/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&StoreModel{},
		&ListingModel{},
		&OrderModel{},
		&OrderItemModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// WithinTx runs fn against a Store bound to one database transaction.
func (s *GormStore) WithinTx(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// UserExists checks whether a user id is registered.
func (s *GormStore) UserExists(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("user_id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// StoreExists checks whether a store id is taken.
func (s *GormStore) StoreExists(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&StoreModel{}).Where("store_id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// BookExists checks whether a store already lists the book.
func (s *GormStore) BookExists(storeID, bookID string) (bool, error) {
	var count int64
	if err := s.db.Model(&ListingModel{}).
		Where("store_id = ? AND book_id = ?", storeID, bookID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser inserts a user record.
func (s *GormStore) CreateUser(u domain.User) error {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUser returns a user by id.
func (s *GormStore) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "user_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetUserSession overwrites the stored token and terminal together.
func (s *GormStore) SetUserSession(id, token, terminal string) (int64, error) {
	res := s.db.Model(&UserModel{}).
		Where("user_id = ?", id).
		Updates(map[string]any{
			"token":      token,
			"terminal":   terminal,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// SetUserCredentials overwrites the password hash and rotates the session.
func (s *GormStore) SetUserCredentials(id, passwordHash, token, terminal string) (int64, error) {
	res := s.db.Model(&UserModel{}).
		Where("user_id = ?", id).
		Updates(map[string]any{
			"password_hash": passwordHash,
			"token":         token,
			"terminal":      terminal,
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// AdjustBalance applies balance += delta server-side, refusing a negative result.
func (s *GormStore) AdjustBalance(id string, delta int64) (int64, error) {
	res := s.db.Model(&UserModel{}).
		Where("user_id = ? AND balance + ? >= 0", id, delta).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// DeleteUser removes a user record.
func (s *GormStore) DeleteUser(id string) (int64, error) {
	res := s.db.Delete(&UserModel{}, "user_id = ?", id)
	return res.RowsAffected, res.Error
}

// CreateStore inserts a storefront ownership record.
func (s *GormStore) CreateStore(st domain.Store) error {
	model := storeToModel(st)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetStore returns a storefront by id.
func (s *GormStore) GetStore(id string) (domain.Store, bool, error) {
	var model StoreModel
	if err := s.db.First(&model, "store_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Store{}, false, nil
		}
		return domain.Store{}, false, err
	}
	return storeFromModel(model), true, nil
}

// CreateListing inserts a book listing.
func (s *GormStore) CreateListing(l domain.Listing) error {
	model := listingToModel(l)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetListing returns one listing by composite key.
func (s *GormStore) GetListing(storeID, bookID string) (domain.Listing, bool, error) {
	var model ListingModel
	if err := s.db.First(&model, "store_id = ? AND book_id = ?", storeID, bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Listing{}, false, nil
		}
		return domain.Listing{}, false, err
	}
	return listingFromModel(model), true, nil
}

// AdjustStock applies stock += delta server-side, refusing a negative result.
func (s *GormStore) AdjustStock(storeID, bookID string, delta int) (int64, error) {
	res := s.db.Model(&ListingModel{}).
		Where("store_id = ? AND book_id = ? AND stock + ? >= 0", storeID, bookID, delta).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// StoreBookIDs lists the book ids a store offers.
func (s *GormStore) StoreBookIDs(storeID string) ([]string, error) {
	var ids []string
	if err := s.db.Model(&ListingModel{}).
		Where("store_id = ?", storeID).
		Pluck("book_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateOrder inserts an order and its items in one transaction.
func (s *GormStore) CreateOrder(o domain.Order, items []domain.OrderItem) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := orderToModel(o)
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicate
			}
			return err
		}
		if len(items) == 0 {
			return nil
		}
		models := make([]OrderItemModel, 0, len(items))
		for _, it := range items {
			it.OrderID = o.ID
			models = append(models, itemToModel(it))
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// GetOrder returns an order by id.
func (s *GormStore) GetOrder(id string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.First(&model, "order_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// OrderItems returns the items of an order.
func (s *GormStore) OrderItems(orderID string) ([]domain.OrderItem, error) {
	var models []OrderItemModel
	if err := s.db.Where("order_id = ?", orderID).Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(models))
	for _, m := range models {
		items = append(items, itemFromModel(m))
	}
	return items, nil
}

// TransitionOrder moves an order between statuses as a single conditional
// update. Legality of the edge is validated centrally here.
func (s *GormStore) TransitionOrder(id string, from, to domain.OrderStatus) (int64, error) {
	if !from.CanTransition(to) {
		return 0, fmt.Errorf("illegal order transition %s -> %s", from, to)
	}
	res := s.db.Model(&OrderModel{}).
		Where("order_id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
