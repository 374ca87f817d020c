package search

import (
	"strings"
	"sync"
)

// MemoryCatalog keeps book records in-process for tests.
type MemoryCatalog struct {
	mu    sync.RWMutex
	books []BookRecord
}

// NewMemoryCatalog initializes an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

// Add appends a record.
func (c *MemoryCatalog) Add(records ...BookRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books = append(c.books, records...)
}

// Find applies the conjunctive filter with substring matching.
func (c *MemoryCatalog) Find(f Filters) ([]Result, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idSet := make(map[string]bool, len(f.BookIDs))
	for _, id := range f.BookIDs {
		idSet[id] = true
	}
	results := make([]Result, 0)
	for _, b := range c.books {
		if f.Title != "" && !strings.Contains(b.Title, f.Title) {
			continue
		}
		if f.Content != "" && !strings.Contains(b.Content, f.Content) {
			continue
		}
		if f.Tag != "" && !strings.Contains(b.Tags, f.Tag) {
			continue
		}
		if len(idSet) > 0 && !idSet[b.ID] {
			continue
		}
		results = append(results, Result{
			BookID: b.ID,
			Title:  b.Title,
			Author: b.Author,
			Tags:   b.Tags,
		})
	}
	return results, nil
}
