package models

// Значения пагинации по умолчанию.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Pagination offset/limit для списков.
type Pagination struct {
	Limit  int
	Offset int
}

// Normalize приводит limit и offset к допустимым значениям.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page обёртка списка с общим количеством записей.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
