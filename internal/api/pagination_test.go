package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowFor(t *testing.T, query string) HistoryWindow {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/api/widgets/w1/events?"+query, nil)
	return ParseHistoryWindow(c)
}

func TestParseHistoryWindow(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  HistoryWindow
	}{
		{"defaults", "", HistoryWindow{Limit: 50, Offset: 0}},
		{"limit", "limit=20", HistoryWindow{Limit: 20}},
		{"page", "page=3&limit=20", HistoryWindow{Limit: 20, Offset: 40}},
		{"offset", "offset=7&limit=5", HistoryWindow{Limit: 5, Offset: 7}},
		{"offset wins over page", "offset=7&page=9&limit=5", HistoryWindow{Limit: 5, Offset: 7}},
		{"negative offset", "offset=-3", HistoryWindow{Limit: 50}},
		{"malformed offset", "offset=abc&page=2", HistoryWindow{Limit: 50}},
		{"zero page", "page=0", HistoryWindow{Limit: 50}},
		{"malformed page", "page=abc", HistoryWindow{Limit: 50}},
		{"limit above max", "limit=1000", HistoryWindow{Limit: 50}},
		{"limit at max", "limit=500", HistoryWindow{Limit: 500}},
		{"zero limit", "limit=0", HistoryWindow{Limit: 50}},
		{"negative limit", "limit=-5", HistoryWindow{Limit: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, windowFor(t, tt.query))
		})
	}
}

func TestHistoryWindow_Page(t *testing.T) {
	tests := []struct {
		name     string
		window   HistoryWindow
		total    int
		wantMore bool
		wantNext int
	}{
		{"first of several", HistoryWindow{Limit: 10}, 25, true, 10},
		{"last partial", HistoryWindow{Limit: 10, Offset: 20}, 25, false, 0},
		{"exact end", HistoryWindow{Limit: 10, Offset: 20}, 30, false, 0},
		{"past the end", HistoryWindow{Limit: 10, Offset: 40}, 30, false, 0},
		{"empty", HistoryWindow{Limit: 50}, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.window.Page(tt.total)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.window.Limit, p.Limit)
			assert.Equal(t, tt.window.Offset, p.Offset)
			assert.Equal(t, tt.wantMore, p.HasMore)
			if !tt.wantMore {
				assert.Nil(t, p.NextOffset)
				return
			}
			require.NotNil(t, p.NextOffset)
			assert.Equal(t, tt.wantNext, *p.NextOffset)
		})
	}
}
