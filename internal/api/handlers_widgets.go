package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/widget"
)

func (s *RESTServer) listWidgets(c *gin.Context) {
	widgets := s.board.Widgets()
	if elementID := c.Query("element_id"); elementID != "" {
		filtered := make([]display.WidgetInfo, 0, len(widgets))
		for _, w := range widgets {
			if w.HostID == elementID {
				filtered = append(filtered, w)
			}
		}
		widgets = filtered
	}
	c.JSON(http.StatusOK, widgets)
}

func (s *RESTServer) createWidget(c *gin.Context) {
	var req struct {
		ElementID string         `json:"element_id" binding:"required"`
		Preset    string         `json:"preset"`
		Options   widget.Options `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	w, err := s.board.Attach(req.ElementID, req.Preset, req.Options)
	if err != nil {
		respondBoardError(c, err)
		return
	}

	info, err := s.board.WidgetInfo(w.ID())
	if err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *RESTServer) getWidget(c *gin.Context) {
	info, err := s.board.WidgetInfo(c.Param("id"))
	if err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *RESTServer) deleteWidget(c *gin.Context) {
	if err := s.board.RemoveWidget(c.Param("id")); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Widget removed"})
}

// widgetAction adapts a board operation to a handler returning the new state.
func (s *RESTServer) widgetAction(op func(id string) (display.WidgetInfo, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := op(c.Param("id"))
		if err != nil {
			respondBoardError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func (s *RESTServer) startWidget(c *gin.Context)  { s.widgetAction(s.board.Start)(c) }
func (s *RESTServer) stopWidget(c *gin.Context)   { s.widgetAction(s.board.Stop)(c) }
func (s *RESTServer) updateWidget(c *gin.Context) { s.widgetAction(s.board.Update)(c) }

// resetWidget merges the optional options body into the widget's configuration.
func (s *RESTServer) resetWidget(c *gin.Context) {
	var opts widget.Options
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			respondBadRequest(c, err, true)
			return
		}
	}

	info, err := s.board.Reset(c.Param("id"), opts)
	if err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// getWidgetEvents returns the stored lifecycle events of a widget, newest first.
// History outlives the widget, so removed widgets can still be queried.
func (s *RESTServer) getWidgetEvents(c *gin.Context) {
	id := c.Param("id")
	window := ParseHistoryWindow(c)

	total, err := s.eventBus.CountHistory(domain.AggregateWidget, id)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if _, ok := s.board.Widget(id); !ok && total == 0 {
		respondNotFound(c, "Widget")
		return
	}

	events, err := s.eventBus.HistoryPage(domain.AggregateWidget, id, window.Limit, window.Offset)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events":     events,
		"pagination": window.Page(total),
	})
}
