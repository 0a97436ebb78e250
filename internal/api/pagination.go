package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryWindow selects a slice of a newest-first event history. Offset counts
// events skipped from the newest one, so offset 0 always starts at the latest
// event even while new events keep arriving.
type HistoryWindow struct {
	Limit  int
	Offset int
}

// HistoryPage describes the window returned alongside a history slice.
// NextOffset is set only when older events remain.
type HistoryPage struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	HasMore    bool `json:"has_more"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// ParseHistoryWindow reads ?limit= and either ?offset= or the 1-based ?page=.
// An explicit offset wins over page. Malformed or out of range values fall back
// to the defaults rather than failing the request.
func ParseHistoryWindow(c *gin.Context) HistoryWindow {
	w := HistoryWindow{Limit: queryInt(c, "limit", defaultHistoryLimit)}
	if w.Limit < 1 || w.Limit > maxHistoryLimit {
		w.Limit = defaultHistoryLimit
	}

	if _, ok := c.GetQuery("offset"); ok {
		w.Offset = max(queryInt(c, "offset", 0), 0)
		return w
	}
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	w.Offset = (page - 1) * w.Limit
	return w
}

// Page reports where w sits within a history of total events.
func (w HistoryWindow) Page(total int) HistoryPage {
	p := HistoryPage{Limit: w.Limit, Offset: w.Offset, Total: total}
	if next := w.Offset + w.Limit; next < total {
		p.HasMore = true
		p.NextOffset = &next
	}
	return p
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
