package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orrn/printerd/internal/core"
)

type SubmitJobRequest struct {
	JobID    string `json:"job_id"`
	FileURL  string `json:"file_url" binding:"required"`
	Material string `json:"material"`
}

type JobResponse struct {
	ID        string    `json:"id"`
	FileURL   string    `json:"file_url"`
	Material  string    `json:"material"`
	Progress  int       `json:"progress"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"started_at"`
}

// JobHandler exposes the single job slot over HTTP. Everything funnels
// through the agent so local and MQTT commands share one code path.
type JobHandler struct {
	agent *core.Agent
}

func NewJobHandler(agent *core.Agent) *JobHandler {
	return &JobHandler{agent: agent}
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	cmd := core.Command{
		Kind:     core.CmdStartJob,
		JobID:    req.JobID,
		FileURL:  req.FileURL,
		Material: req.Material,
	}
	if err := h.agent.Apply(cmd); err != nil {
		c.JSON(statusForJobError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"job_id":  req.JobID,
		"message": "print job started",
	})
}

func (h *JobHandler) GetActiveJob(c *gin.Context) {
	st := h.agent.Status()
	if st.Job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active job"})
		return
	}
	c.JSON(http.StatusOK, jobToResponse(st.Job))
}

func (h *JobHandler) PauseJob(c *gin.Context) {
	if err := h.agent.Apply(core.Command{Kind: core.CmdPauseJob}); err != nil {
		c.JSON(statusForJobError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job paused"})
}

func (h *JobHandler) ResumeJob(c *gin.Context) {
	if err := h.agent.Apply(core.Command{Kind: core.CmdResumeJob}); err != nil {
		c.JSON(statusForJobError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job resumed"})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	if err := h.agent.Apply(core.Command{Kind: core.CmdCancelJob}); err != nil {
		c.JSON(statusForJobError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job cancelled"})
}

// statusForJobError maps job slot rejections to 409 and everything else,
// device faults included, to 500.
func statusForJobError(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyPrinting),
		errors.Is(err, core.ErrNoActiveJob),
		errors.Is(err, core.ErrAlreadyPaused),
		errors.Is(err, core.ErrNotPaused):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func jobToResponse(job *core.Job) JobResponse {
	return JobResponse{
		ID:        job.ID,
		FileURL:   job.FileURL,
		Material:  job.Material,
		Progress:  job.Progress,
		Paused:    job.Paused,
		StartedAt: job.StartedAt,
	}
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/jobs", h.SubmitJob)
	r.GET("/jobs/active", h.GetActiveJob)
	r.POST("/jobs/active/pause", h.PauseJob)
	r.POST("/jobs/active/resume", h.ResumeJob)
	r.POST("/jobs/active/cancel", h.CancelJob)
}
