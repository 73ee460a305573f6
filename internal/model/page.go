package model

const (
	// DefaultLimit is the page size used when a request names none.
	DefaultLimit = 100

	// MaxLimit caps the page size a caller may request.
	MaxLimit = 1000
)

// Page selects a window of a list result. The zero Page means "everything".
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Normalize clamps the page into the accepted range. A zero limit stays zero,
// which list operations read as "no limit".
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit < 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Paging describes the window actually returned.
type Paging struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}
