package cache

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "products"

// Key identifies one filtered, paginated result set.
type Key struct {
	Page   int
	Search string
	Sort   domain.Sort
}

// NewKey builds a normalized key.
func NewKey(page int, search string, sort domain.Sort) Key {
	return Key{Page: page, Search: search, Sort: sort}.Normalize()
}

// Normalize applies the canonical defaults: page below 1 becomes 1, search is
// trimmed and an empty sort becomes domain.DefaultSort.
func (k Key) Normalize() Key {
	if k.Page < 1 {
		k.Page = 1
	}
	k.Search = strings.TrimSpace(k.Search)
	k.Sort = k.Sort.OrDefault()
	return k
}

// WithPage returns the same filter on another page.
func (k Key) WithPage(page int) Key {
	k.Page = page
	return k.Normalize()
}

// String generates the deterministic key string.
// Format: products:page=<n>:search=<s>:sort=<sort>
func (k Key) String() string {
	n := k.Normalize()
	return fmt.Sprintf("%s:page=%d:search=%s:sort=%s", KeyPrefix, n.Page, n.Search, n.Sort)
}
