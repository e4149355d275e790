package common

import (
	"net/http"
	"strconv"
)

// Pagination is the metadata block attached to paged list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePagination reads the "page" and "per_page" query parameters, with
// "limit" accepted as an alias for per_page. Missing or non-positive values
// fall back to page 1 and defaultPerPage.
func ParsePagination(r *http.Request, defaultPerPage int) (page, perPage int) {
	page, perPage = 1, defaultPerPage
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}
	size := q.Get("per_page")
	if size == "" {
		size = q.Get("limit")
	}
	if v, err := strconv.Atoi(size); err == nil && v > 0 {
		perPage = v
	}
	return page, perPage
}
