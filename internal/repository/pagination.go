package repository

// Pagination defaults used when callers send missing or invalid values.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage sanitizes raw pagination input: a page below 1 becomes 1 and a
// size outside [1, MaxPageSize] becomes def (or DefaultPageSize when def
// itself is out of range).
func NewPage(number, size, def int) Page {
	if def < 1 || def > MaxPageSize {
		def = DefaultPageSize
	}
	if number < 1 {
		number = 1
	}
	if size < 1 || size > MaxPageSize {
		size = def
	}
	return Page{Number: number, Size: size}
}

func (p Page) normalized() Page { return NewPage(p.Number, p.Size, DefaultPageSize) }

func (p Page) offset() int { return (p.Number - 1) * p.Size }

// PageResult is one page of a listing together with the total row count.
type PageResult[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}
