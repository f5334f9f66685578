package shared

import (
	"net/http"
	"net/url"
	"strconv"
)

// Pagination is the limit/offset window requested for a listing.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query string. Malformed or
// out of range values fall back to the defaults; limit is capped at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	query := r.URL.Query()
	p := Pagination{
		Limit:  queryInt(query, "limit", 1, defaultLimit),
		Offset: queryInt(query, "offset", 0, 0),
	}
	if maxLimit > 0 {
		p.Limit = min(p.Limit, maxLimit)
	}
	return p
}

func queryInt(query url.Values, key string, floor, fallback int) int {
	n, err := strconv.Atoi(query.Get(key))
	if err != nil || n < floor {
		return fallback
	}
	return n
}
