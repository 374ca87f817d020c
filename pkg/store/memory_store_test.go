package store

import (
	"errors"
	"sync"
	"testing"

	"bookstall/pkg/domain"
)

func TestMemoryStoreDuplicateInserts(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateUser(domain.User{ID: "u1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := m.CreateUser(domain.User{ID: "u1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := m.CreateStore(domain.Store{ID: "s1", OwnerID: "u1"}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := m.CreateStore(domain.Store{ID: "s1", OwnerID: "u1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := m.CreateListing(domain.Listing{StoreID: "s1", BookID: "b1", Stock: 5}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if err := m.CreateListing(domain.Listing{StoreID: "s1", BookID: "b1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestMemoryStoreGuardedStock(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateListing(domain.Listing{StoreID: "s1", BookID: "b1", Stock: 3}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	rows, err := m.AdjustStock("s1", "b1", -3)
	if err != nil || rows != 1 {
		t.Fatalf("adjust to zero: rows=%d err=%v", rows, err)
	}
	rows, err = m.AdjustStock("s1", "b1", -1)
	if err != nil || rows != 0 {
		t.Fatalf("negative stock must be refused: rows=%d err=%v", rows, err)
	}
	l, ok, _ := m.GetListing("s1", "b1")
	if !ok || l.Stock != 0 {
		t.Fatalf("stock changed despite refusal: %+v", l)
	}
}

func TestMemoryStoreGuardedBalance(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateUser(domain.User{ID: "u1", Balance: 100}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	rows, err := m.AdjustBalance("u1", -150)
	if err != nil || rows != 0 {
		t.Fatalf("overdraft must be refused: rows=%d err=%v", rows, err)
	}
	rows, err = m.AdjustBalance("u1", -100)
	if err != nil || rows != 1 {
		t.Fatalf("full spend should pass: rows=%d err=%v", rows, err)
	}
}

func TestMemoryStoreTransitionOrder(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateOrder(domain.Order{ID: "o1", Status: domain.OrderPaid}, nil); err != nil {
		t.Fatalf("create order: %v", err)
	}
	rows, err := m.TransitionOrder("o1", domain.OrderPaid, domain.OrderShipped)
	if err != nil || rows != 1 {
		t.Fatalf("paid -> shipped: rows=%d err=%v", rows, err)
	}
	rows, err = m.TransitionOrder("o1", domain.OrderPaid, domain.OrderShipped)
	if err != nil || rows != 0 {
		t.Fatalf("second transition must affect zero rows: rows=%d err=%v", rows, err)
	}
	if _, err := m.TransitionOrder("o1", domain.OrderShipped, domain.OrderPaid); err == nil {
		t.Fatalf("illegal edge must be rejected")
	}
}

func TestMemoryStoreWithinTxRollsBack(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateListing(domain.Listing{StoreID: "s1", BookID: "b1", Stock: 10}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	boom := errors.New("boom")
	err := m.WithinTx(func(tx Store) error {
		if _, err := tx.AdjustStock("s1", "b1", -4); err != nil {
			return err
		}
		if err := tx.CreateUser(domain.User{ID: "u1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	l, _, _ := m.GetListing("s1", "b1")
	if l.Stock != 10 {
		t.Fatalf("stock not rolled back: %d", l.Stock)
	}
	if ok, _ := m.UserExists("u1"); ok {
		t.Fatalf("user insert not rolled back")
	}
}

func TestMemoryStoreConcurrentTransitionExactlyOnce(t *testing.T) {
	m := NewMemoryStore()
	if err := m.CreateOrder(domain.Order{ID: "o1", Status: domain.OrderPaid}, nil); err != nil {
		t.Fatalf("create order: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := m.TransitionOrder("o1", domain.OrderPaid, domain.OrderShipped)
			if err == nil && rows == 1 {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}
