package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printerd/internal/db"
)

type ListHistoryQuery struct {
	JobID  string `form:"job_id"`
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"max=100"`
	Offset int    `form:"offset"`
}

// HistoryHandler serves the local job event log.
type HistoryHandler struct{}

func NewHistoryHandler() *HistoryHandler {
	return &HistoryHandler{}
}

func (h *HistoryHandler) ListHistory(c *gin.Context) {
	var query ListHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	events, err := db.History.ListJobEvents(c.Request.Context(), db.HistoryFilter{
		JobID:  query.JobID,
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
		return
	}

	total, err := db.History.CountJobEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count history"})
		return
	}

	if events == nil {
		events = []*db.JobEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

func (h *HistoryHandler) GetJobHistory(c *gin.Context) {
	jobID := c.Param("job_id")

	events, err := db.History.GetJobEvents(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job history"})
		return
	}
	if len(events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "events": events})
}

func (h *HistoryHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/history", h.ListHistory)
	r.GET("/history/:job_id", h.GetJobHistory)
}
