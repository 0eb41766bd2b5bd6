package domain

// PageResult is one fetched page of a filtered product listing.
type PageResult struct {
	Data     []Product `json:"data"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	LastPage int       `json:"lastPage"`
}

// Empty reports whether the page carries no products.
func (r PageResult) Empty() bool {
	return len(r.Data) == 0
}

// LastPage returns ceil(total/limit), never less than 1.
func LastPage(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
