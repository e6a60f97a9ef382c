package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printerd/internal/core"
)

type SetTemperatureRequest struct {
	Celsius *float64 `json:"celsius" binding:"required"`
}

// DeviceHandler exposes maintenance commands that bypass the job slot.
type DeviceHandler struct {
	agent *core.Agent
}

func NewDeviceHandler(agent *core.Agent) *DeviceHandler {
	return &DeviceHandler{agent: agent}
}

func (h *DeviceHandler) Home(c *gin.Context) {
	if err := h.agent.Apply(core.Command{Kind: core.CmdHome}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "homing started"})
}

func (h *DeviceHandler) SetTemperature(c *gin.Context) {
	var req SetTemperatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := core.Command{Kind: core.CmdSetTemperature, Temperature: *req.Celsius}
	if err := h.agent.Apply(cmd); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "temperature target updated", "celsius": *req.Celsius})
}

func (h *DeviceHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/device/home", h.Home)
	r.POST("/device/temperature", h.SetTemperature)
}
