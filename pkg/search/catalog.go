package search

// Filters is a conjunctive filter set over the book catalog. Every non-empty
// field narrows the result; BookIDs restricts to a store's inventory.
type Filters struct {
	Title   string
	Content string
	Tag     string
	BookIDs []string
}

// Unscoped reports whether no filter at all was supplied.
func (f Filters) Unscoped() bool {
	return f.Title == "" && f.Content == "" && f.Tag == "" && len(f.BookIDs) == 0
}

// Result is one catalog hit.
type Result struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Tags   string `json:"tags,omitempty"`
}

// Catalog is the read-only text-indexed book store. It lives apart from the
// relational store so the two can be replaced independently.
type Catalog interface {
	Find(f Filters) ([]Result, error)
}
