package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/display"
)

type elementResponse struct {
	display.ElementInfo
	Owner   string               `json:"owner,omitempty"`
	Widgets []display.WidgetInfo `json:"widgets"`
}

func (s *RESTServer) elementInfos() []display.ElementInfo {
	elements := s.board.Elements()
	out := make([]display.ElementInfo, 0, len(elements))
	for _, el := range elements {
		out = append(out, el.Info())
	}
	return out
}

func (s *RESTServer) describeElement(el *display.Element, all []display.WidgetInfo) elementResponse {
	resp := elementResponse{ElementInfo: el.Info(), Widgets: []display.WidgetInfo{}}
	if owner, ok := s.board.Registry().Owner(el.HostID()); ok {
		resp.Owner = owner.ID()
	}
	for _, w := range all {
		if w.HostID == el.HostID() {
			resp.Widgets = append(resp.Widgets, w)
		}
	}
	return resp
}

func (s *RESTServer) listElements(c *gin.Context) {
	widgets := s.board.Widgets()
	elements := s.board.Elements()
	out := make([]elementResponse, 0, len(elements))
	for _, el := range elements {
		out = append(out, s.describeElement(el, widgets))
	}
	c.JSON(http.StatusOK, out)
}

func (s *RESTServer) createElement(c *gin.Context) {
	var req struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	el, err := s.board.AddElement(req.ID, req.Label)
	if err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.describeElement(el, nil))
}

func (s *RESTServer) getElement(c *gin.Context) {
	el, ok := s.board.Element(c.Param("id"))
	if !ok {
		respondNotFound(c, "Element")
		return
	}
	c.JSON(http.StatusOK, s.describeElement(el, s.board.Widgets()))
}

func (s *RESTServer) deleteElement(c *gin.Context) {
	if err := s.board.RemoveElement(c.Param("id")); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Element removed"})
}
