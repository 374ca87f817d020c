package search

import (
	"bookstall/pkg/status"
	"bookstall/pkg/store"
)

// Adapter scopes catalog queries by store membership. It reads the relational
// gateway for inventory but owns neither store.
type Adapter struct {
	store   store.Store
	catalog Catalog
}

// NewAdapter wires the adapter to the relational gateway and the catalog.
func NewAdapter(st store.Store, catalog Catalog) *Adapter {
	return &Adapter{store: st, catalog: catalog}
}

// SearchBooks runs a conjunctive search over the supplied optional fields.
// No filters at all is a deliberate no-op: success with no results.
func (a *Adapter) SearchBooks(title, content, tag, storeID string) (results []Result, err error) {
	defer status.Recover(&err)

	f := Filters{Title: title, Content: content, Tag: tag}
	if storeID != "" {
		ids, err := a.store.StoreBookIDs(storeID)
		if err != nil {
			return nil, status.StorageFault(err)
		}
		if len(ids) == 0 {
			return nil, status.NonExistStore(storeID)
		}
		f.BookIDs = ids
	}
	if f.Unscoped() {
		return []Result{}, nil
	}
	results, err = a.catalog.Find(f)
	if err != nil {
		return nil, status.StorageFault(err)
	}
	if len(results) == 0 {
		return nil, status.NoMatch()
	}
	return results, nil
}
