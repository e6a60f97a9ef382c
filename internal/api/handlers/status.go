package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printerd/internal/core"
)

type DeviceStatusResponse struct {
	PrinterID       string       `json:"printer_id"`
	State           string       `json:"state"`
	TemperatureC    float64      `json:"temperature"`
	MaterialLevel   float64      `json:"material_level"`
	CurrentMaterial string       `json:"current_material"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	LastSeen        time.Time    `json:"last_seen"`
	Job             *JobResponse `json:"job,omitempty"`
}

type StatusHandler struct {
	agent *core.Agent
}

func NewStatusHandler(agent *core.Agent) *StatusHandler {
	return &StatusHandler{agent: agent}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	st := h.agent.Status()

	resp := DeviceStatusResponse{
		PrinterID:       st.PrinterID,
		State:           string(st.State),
		TemperatureC:    st.TemperatureC,
		MaterialLevel:   st.MaterialLevel,
		CurrentMaterial: st.CurrentMaterial,
		ErrorMessage:    st.ErrorMessage,
		LastSeen:        st.LastSeen,
	}
	if st.Job != nil {
		job := jobToResponse(st.Job)
		resp.Job = &job
	}

	c.JSON(http.StatusOK, resp)
}

func (h *StatusHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "printer_id": h.agent.PrinterID()})
}

func (h *StatusHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.GetStatus)
}
