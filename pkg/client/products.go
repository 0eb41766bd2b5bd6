package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

// PageQuery selects one page of the product listing.
type PageQuery struct {
	Page   int
	Limit  int
	Search string
	Sort   domain.Sort
}

// Validate checks the listing constraints: page >= 1, limit > 0, known sort.
func (q PageQuery) Validate() error {
	if q.Page < 1 {
		return &domain.ValidationError{Field: "page", Message: "must be >= 1"}
	}
	if q.Limit <= 0 {
		return &domain.ValidationError{Field: "limit", Message: "must be > 0"}
	}
	if !q.Sort.OrDefault().Valid() {
		return &domain.ValidationError{Field: "sort", Message: "unknown sort " + strconv.Quote(string(q.Sort))}
	}
	return nil
}

// Values encodes the query. An empty search is omitted; the sort is always
// sent so the backend never applies a default of its own.
func (q PageQuery) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	v.Set("sort", string(q.Sort.OrDefault()))
	return v
}

// FetchPage fetches one page of products. Single attempt, no retry.
func (c *Client) FetchPage(ctx context.Context, q PageQuery) (domain.PageResult, error) {
	if err := q.Validate(); err != nil {
		return domain.PageResult{}, err
	}

	var result domain.PageResult
	err := c.do(ctx, request{
		method:        http.MethodGet,
		path:          "products",
		endpoint:      endpointProducts,
		query:         q.Values(),
		out:           &result,
		authenticated: true,
	})
	if err != nil {
		return domain.PageResult{}, err
	}

	if result.Data == nil {
		result.Data = []domain.Product{}
	}
	if result.LastPage < 1 {
		result.LastPage = 1
	}
	return result, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if err := validateID(id); err != nil {
		return domain.Product{}, err
	}

	var p domain.Product
	err := c.do(ctx, request{
		method:        http.MethodGet,
		path:          productPath(id),
		endpoint:      endpointProduct,
		out:           &p,
		authenticated: true,
	})
	return p, err
}

// CreateProduct creates a product and returns it as stored by the backend.
func (c *Client) CreateProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if err := in.Validate(); err != nil {
		return domain.Product{}, err
	}

	var p domain.Product
	err := c.do(ctx, request{
		method:        http.MethodPost,
		path:          "products",
		endpoint:      endpointProducts,
		body:          in,
		out:           &p,
		authenticated: true,
	})
	return p, err
}

// UpdateProduct applies a partial update.
func (c *Client) UpdateProduct(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	if err := validateID(id); err != nil {
		return domain.Product{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Product{}, err
	}

	var p domain.Product
	err := c.do(ctx, request{
		method:        http.MethodPatch,
		path:          productPath(id),
		endpoint:      endpointProduct,
		body:          patch,
		out:           &p,
		authenticated: true,
	})
	return p, err
}

// DeleteProduct deletes a product.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	if err := validateID(id); err != nil {
		return err
	}

	return c.do(ctx, request{
		method:        http.MethodDelete,
		path:          productPath(id),
		endpoint:      endpointProduct,
		authenticated: true,
	})
}

func productPath(id int64) string {
	return "products/" + strconv.FormatInt(id, 10)
}

func validateID(id int64) error {
	if id <= 0 {
		return &domain.ValidationError{Field: "id", Message: "must be > 0"}
	}
	return nil
}
