package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/services"
)

func (s *RESTServer) getSchedules(c *gin.Context) {
	schedules, err := s.scheduler.ListSchedules(c.Query("widget_id"))
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedules)
}

func (s *RESTServer) addSchedule(c *gin.Context) {
	var req struct {
		WidgetID       string `json:"widget_id" binding:"required"`
		CronExpression string `json:"cron_expression" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	if _, err := s.board.WidgetInfo(req.WidgetID); err != nil {
		respondBoardError(c, err)
		return
	}

	id, err := s.scheduler.AddSchedule(req.WidgetID, req.CronExpression)
	if err != nil {
		respondBoardError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "Schedule added"})
}

func parseScheduleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrMsgInvalidID})
		return 0, false
	}
	return id, true
}

func (s *RESTServer) deleteSchedule(c *gin.Context) {
	id, ok := parseScheduleID(c)
	if !ok {
		return
	}

	if err := s.scheduler.DeleteSchedule(id); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// updateSchedule changes the expression and/or the enabled flag. Omitted
// fields keep their current value.
func (s *RESTServer) updateSchedule(c *gin.Context) {
	id, ok := parseScheduleID(c)
	if !ok {
		return
	}

	var req struct {
		CronExpression string `json:"cron_expression"`
		Enabled        *bool  `json:"enabled"` // Pointer to distinguish between false and missing
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	var enabled bool
	if req.Enabled != nil {
		enabled = *req.Enabled
	} else {
		current, err := s.findSchedule(id)
		if err != nil {
			respondBoardError(c, err)
			return
		}
		enabled = current.Enabled
	}

	if err := s.scheduler.UpdateSchedule(id, req.CronExpression, enabled); err != nil {
		respondBoardError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Schedule updated"})
}

func (s *RESTServer) findSchedule(id int64) (services.Schedule, error) {
	all, err := s.scheduler.ListSchedules("")
	if err != nil {
		return services.Schedule{}, err
	}
	for _, sc := range all {
		if sc.ID == id {
			return sc, nil
		}
	}
	return services.Schedule{}, services.ErrScheduleNotFound
}
