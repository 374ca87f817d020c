package bookstall

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"bookstall/pkg/domain"
	"bookstall/pkg/search"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
	"bookstall/pkg/trade"
)

func newTestCore(t *testing.T) (*Core, *store.MemoryStore) {
	t.Helper()
	redis := miniredis.RunT(t)
	st := store.NewMemoryStore()
	catalog := search.NewMemoryCatalog()
	catalog.Add(search.BookRecord{ID: "b1", Title: "Moby Dick", Author: "Melville"})
	core, err := New(Config{
		TokenSecret: "test-secret",
		RedisAddr:   redis.Addr(),
		Store:       st,
		Catalog:     catalog,
	})
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	return core, st
}

func TestNewRequiresStorage(t *testing.T) {
	if _, err := New(Config{TokenSecret: "s"}); err == nil {
		t.Fatalf("expected error without storage")
	}
	if _, err := New(Config{Store: store.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error without token secret")
	}
}

func TestMarketplaceFlow(t *testing.T) {
	core, st := newTestCore(t)

	if err := core.Accounts.Register("seller", "pw"); err != nil {
		t.Fatalf("register seller: %v", err)
	}
	if err := core.Accounts.Register("buyer", "pw"); err != nil {
		t.Fatalf("register buyer: %v", err)
	}
	if _, err := core.Accounts.Login("seller", "pw", "terminal_test"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := core.Catalog.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	info := []byte(`{"title":"Moby Dick","price":100}`)
	if err := core.Catalog.AddBook("seller", "s1", "b1", info, 5); err != nil {
		t.Fatalf("add book: %v", err)
	}

	results, err := core.Search.SearchBooks("Moby", "", "", "s1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].BookID != "b1" {
		t.Fatalf("search results: %+v", results)
	}

	if err := core.Trade.AddFunds("buyer", "pw", 1000); err != nil {
		t.Fatalf("add funds: %v", err)
	}
	orderID, err := core.Trade.NewOrder("buyer", "s1", []trade.ItemRequest{{BookID: "b1", Count: 2}})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if err := core.Trade.Payment("buyer", "pw", orderID); err != nil {
		t.Fatalf("payment: %v", err)
	}
	if err := core.Catalog.ShipOrder("seller", "s1", orderID); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := core.Trade.ReceiveOrder("buyer", orderID); err != nil {
		t.Fatalf("receive: %v", err)
	}

	order, _, _ := st.GetOrder(orderID)
	if order.Status != domain.OrderReceived {
		t.Fatalf("expected received, got %s", order.Status)
	}
	seller, _, _ := st.GetUser("seller")
	if seller.Balance != 200 {
		t.Fatalf("seller balance, got %d", seller.Balance)
	}

	err = core.Catalog.ShipOrder("seller", "s1", orderID)
	if code, _ := status.CodeOf(err); code != status.CodeNotPaid {
		t.Fatalf("re-ship after receipt, got %d (%v)", code, err)
	}
}

func TestCoreWiresSweeper(t *testing.T) {
	core, _ := newTestCore(t)
	if core.Sweeper == nil {
		t.Fatalf("redis-configured core must carry a sweeper")
	}
}
