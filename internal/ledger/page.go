package ledger

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination normalizes a 1-based page request; limit defaults to 10.
func NewPagination(total, page, limit int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: (total + limit - 1) / limit}
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }
