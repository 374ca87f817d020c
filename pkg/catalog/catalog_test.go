package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"bookstall/pkg/domain"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.CreateUser(domain.User{ID: "seller"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return NewManager(st, opts...), st
}

func TestCreateStore(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	created, ok, _ := st.GetStore("s1")
	if !ok || created.OwnerID != "seller" {
		t.Fatalf("ownership not recorded: %+v", created)
	}
	err := m.CreateStore("seller", "s1")
	if code, _ := status.CodeOf(err); code != status.CodeExistStore {
		t.Fatalf("expected duplicate store, got %d (%v)", code, err)
	}
	err = m.CreateStore("ghost", "s2")
	if code, _ := status.CodeOf(err); code != status.CodeNonExistUser {
		t.Fatalf("expected unknown user, got %d (%v)", code, err)
	}
}

func TestAddBook(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	info := []byte(`{"title":"Moby Dick","price":1500}`)
	if err := m.AddBook("seller", "s1", "b1", info, 10); err != nil {
		t.Fatalf("add book: %v", err)
	}
	l, ok, _ := st.GetListing("s1", "b1")
	if !ok || l.Stock != 10 || l.Price != 1500 {
		t.Fatalf("listing not stored as expected: %+v", l)
	}
	err := m.AddBook("seller", "s1", "b1", info, 5)
	if code, _ := status.CodeOf(err); code != status.CodeExistBook {
		t.Fatalf("expected duplicate book, got %d (%v)", code, err)
	}
	err = m.AddBook("seller", "missing", "b2", info, 5)
	if code, _ := status.CodeOf(err); code != status.CodeNonExistStore {
		t.Fatalf("expected unknown store, got %d (%v)", code, err)
	}
}

func TestAddStockRoundTrip(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := m.AddBook("seller", "s1", "b1", []byte(`{"price":100}`), 10); err != nil {
		t.Fatalf("add book: %v", err)
	}
	if err := m.AddStock("seller", "s1", "b1", 5); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	l, _, _ := st.GetListing("s1", "b1")
	if l.Stock != 15 {
		t.Fatalf("expected stock 15, got %d", l.Stock)
	}
	if err := m.AddStock("seller", "s1", "b1", -5); err != nil {
		t.Fatalf("subtract stock: %v", err)
	}
	l, _, _ = st.GetListing("s1", "b1")
	if l.Stock != 10 {
		t.Fatalf("round trip must restore stock, got %d", l.Stock)
	}
	err := m.AddStock("seller", "s1", "b1", -11)
	if code, _ := status.CodeOf(err); code != status.CodeStockLow {
		t.Fatalf("expected stock low, got %d (%v)", code, err)
	}
	err = m.AddStock("seller", "s1", "missing", 1)
	if code, _ := status.CodeOf(err); code != status.CodeNonExistBook {
		t.Fatalf("expected unknown book, got %d (%v)", code, err)
	}
}

func seedPaidOrder(t *testing.T, st *store.MemoryStore, orderID string) {
	t.Helper()
	err := st.CreateOrder(domain.Order{
		ID:      orderID,
		BuyerID: "buyer",
		StoreID: "s1",
		Status:  domain.OrderPaid,
		Total:   100,
	}, nil)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestShipOrder(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	seedPaidOrder(t, st, "o1")

	if err := m.ShipOrder("seller", "s1", "o1"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	o, _, _ := st.GetOrder("o1")
	if o.Status != domain.OrderShipped {
		t.Fatalf("expected shipped, got %s", o.Status)
	}
	err := m.ShipOrder("seller", "s1", "o1")
	if code, _ := status.CodeOf(err); code != status.CodeNotPaid {
		t.Fatalf("second shipment must report not paid, got %d (%v)", code, err)
	}
	err = m.ShipOrder("seller", "s1", "nope")
	if code, _ := status.CodeOf(err); code != status.CodeInvalidOrder {
		t.Fatalf("unknown order, got %d (%v)", code, err)
	}
}

func TestShipOrderWrongStore(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := m.CreateStore("seller", "s2"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	seedPaidOrder(t, st, "o1")
	err := m.ShipOrder("seller", "s2", "o1")
	if code, _ := status.CodeOf(err); code != status.CodeInvalidOrder {
		t.Fatalf("order from another store, got %d (%v)", code, err)
	}
}

func TestShipOrderConcurrentExactlyOnce(t *testing.T) {
	m, st := newTestManager(t)
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	seedPaidOrder(t, st, "o1")

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.ShipOrder("seller", "s1", "o1")
			code, _ := status.CodeOf(err)
			switch code {
			case status.OK:
				mu.Lock()
				successes++
				mu.Unlock()
			case status.CodeNotPaid, status.CodeInvalidOrder:
				// losing racers
			default:
				t.Errorf("unexpected result: %d (%v)", code, err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful shipment, got %d", successes)
	}
}

// fakeCovers records uploads in-process.
type fakeCovers struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeCovers) PutCover(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[key] = data
	return nil
}

func (f *fakeCovers) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://covers.test/" + key, nil
}

func (f *fakeCovers) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func TestAddBookOffloadsCover(t *testing.T) {
	covers := &fakeCovers{}
	m, st := newTestManager(t, WithCoverStore(covers))
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	picture := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	info, _ := json.Marshal(map[string]any{
		"title":   "Moby Dick",
		"price":   float64(1500),
		"picture": picture,
	})
	if err := m.AddBook("seller", "s1", "b1", info, 3); err != nil {
		t.Fatalf("add book: %v", err)
	}
	l, _, _ := st.GetListing("s1", "b1")
	var stored map[string]any
	if err := json.Unmarshal(l.Info, &stored); err != nil {
		t.Fatalf("stored info not json: %v", err)
	}
	if _, hasPicture := stored["picture"]; hasPicture {
		t.Fatalf("inline picture must be stripped")
	}
	key, _ := stored["cover_key"].(string)
	if key == "" {
		t.Fatalf("cover key missing from metadata: %v", stored)
	}
	if string(covers.data[key]) != "fake-image-bytes" {
		t.Fatalf("cover bytes not uploaded")
	}
}

func coverInfo(t *testing.T) []byte {
	t.Helper()
	picture := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	info, err := json.Marshal(map[string]any{"price": float64(100), "picture": picture})
	if err != nil {
		t.Fatalf("marshal info: %v", err)
	}
	return info
}

func TestCoverURL(t *testing.T) {
	covers := &fakeCovers{}
	m, _ := newTestManager(t, WithCoverStore(covers))
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := m.AddBook("seller", "s1", "b1", coverInfo(t), 3); err != nil {
		t.Fatalf("add book: %v", err)
	}
	if err := m.AddBook("seller", "s1", "b2", []byte(`{"price":100}`), 3); err != nil {
		t.Fatalf("add book: %v", err)
	}

	url, err := m.CoverURL("s1", "b1")
	if err != nil {
		t.Fatalf("cover url: %v", err)
	}
	if url != "https://covers.test/covers/s1/b1" {
		t.Fatalf("unexpected url %q", url)
	}
	url, err = m.CoverURL("s1", "b2")
	if err != nil || url != "" {
		t.Fatalf("coverless listing must yield empty url, got %q (%v)", url, err)
	}
	_, err = m.CoverURL("s1", "missing")
	if code, _ := status.CodeOf(err); code != status.CodeNonExistBook {
		t.Fatalf("unknown book, got %d (%v)", code, err)
	}

	bare, _ := newTestManager(t)
	url, err = bare.CoverURL("s1", "b1")
	if err != nil || url != "" {
		t.Fatalf("manager without cover store must yield empty url, got %q (%v)", url, err)
	}
}

func TestAddBookFailureRemovesOrphanedCover(t *testing.T) {
	covers := &fakeCovers{}
	m, _ := newTestManager(t, WithCoverStore(covers))
	if err := m.CreateStore("seller", "s1"); err != nil {
		t.Fatalf("create store: %v", err)
	}

	err := m.AddBook("seller", "missing", "b1", coverInfo(t), 3)
	if code, _ := status.CodeOf(err); code != status.CodeNonExistStore {
		t.Fatalf("unknown store, got %d (%v)", code, err)
	}
	if _, ok := covers.data["covers/missing/b1"]; ok {
		t.Fatalf("failed listing must not leave its cover behind")
	}

	// A duplicate keeps the key: it backs the existing listing.
	if err := m.AddBook("seller", "s1", "b1", coverInfo(t), 3); err != nil {
		t.Fatalf("add book: %v", err)
	}
	err = m.AddBook("seller", "s1", "b1", coverInfo(t), 3)
	if code, _ := status.CodeOf(err); code != status.CodeExistBook {
		t.Fatalf("duplicate book, got %d (%v)", code, err)
	}
	if _, ok := covers.data["covers/s1/b1"]; !ok {
		t.Fatalf("duplicate insert must not delete the existing cover")
	}
}
