package api

import (
	"net/http"
	"strconv"

	"github.com/jmcleod/leaddesk/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// parsePagination reads "limit" and "offset" query parameters. Missing or
// invalid values fall back to offset=0 and limit=defaultPageLimit; limit is
// capped at maxPageLimit.
func parsePagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxPageLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}

// paginateSlice returns (start, end) indices for a page of totalCount items.
// An offset past the end yields an empty page.
func paginateSlice(totalCount, limit, offset int) (start, end int, meta PaginationMeta) {
	start = min(offset, totalCount)
	end = min(start+limit, totalCount)
	meta = PaginationMeta{
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < totalCount,
	}
	return start, end, meta
}

// parseLeadFilter reads the "kind" and "status" query parameters.
func parseLeadFilter(r *http.Request) (storage.Filter, bool) {
	q := r.URL.Query()
	f := storage.Filter{
		Kind:   storage.LeadKind(q.Get("kind")),
		Status: storage.LeadStatus(q.Get("status")),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return f, false
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, false
	}
	return f, true
}
