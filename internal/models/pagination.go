package models

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Page is a bounded limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Normalized clamps the limit into 1..MaxPageLimit, using fallback when unset,
// and floors the offset at zero.
func (p Page) Normalized(fallback int) Page {
	if fallback <= 0 || fallback > MaxPageLimit {
		fallback = DefaultPageLimit
	}
	if p.Limit <= 0 {
		p.Limit = fallback
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}
