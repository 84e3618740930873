package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-fleet-backend/internal/command"
	"laundry-fleet-backend/internal/machines"
)

// GetAgents returns the configured agents and their machine mappings.
func (h *Handler) GetAgents(c *gin.Context) {
	type agentInfo struct {
		AgentID      string `json:"agentId"`
		SiteID       string `json:"siteId"`
		MachineCount int    `json:"machineCount"`
	}

	agents := h.dir.Agents()
	out := make([]agentInfo, 0, len(agents))
	for _, agentID := range agents {
		siteID, _ := h.dir.SiteForAgent(agentID)
		out = append(out, agentInfo{
			AgentID:      agentID,
			SiteID:       siteID,
			MachineCount: len(h.dir.MappingsForAgent(agentID)),
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetMachines handles GET /api/agents/:agent_id/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	snaps, err := h.machines.GetMachinesOnDemand(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "failed to fetch machine status"})
		return
	}
	c.JSON(http.StatusOK, snaps)
}

type sendCommandRequest struct {
	Type   string         `json:"type" binding:"required"`
	Params map[string]any `json:"params"`
}

// SendCommand handles POST /api/agents/:agent_id/machines/:local_id/commands.
// The issuing operator is taken from the X-Operator header.
func (h *Handler) SendCommand(c *gin.Context) {
	var req sendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.machines.SendMachineCommand(
		c.Request.Context(),
		c.Param("agent_id"),
		c.Param("local_id"),
		req.Type,
		req.Params,
		c.GetHeader("X-Operator"),
	)
	var paramErr *command.ParamError
	switch {
	case errors.Is(err, machines.ErrNoMapping):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such machine"})
	case errors.Is(err, command.ErrUnknownCommand), errors.As(err, &paramErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "command dispatch failed"})
	default:
		c.JSON(http.StatusAccepted, result)
	}
}

// GetCommandStatus handles
// GET /api/agents/:agent_id/machines/:local_id/commands/:command_id.
func (h *Handler) GetCommandStatus(c *gin.Context) {
	result, err := h.machines.GetCommandStatus(
		c.Request.Context(),
		c.Param("agent_id"),
		c.Param("local_id"),
		c.Param("command_id"),
	)
	switch {
	case errors.Is(err, machines.ErrNoMapping):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such machine"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "command lookup failed"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// GetCycles handles GET /api/agents/:agent_id/machines/:local_id/cycles.
func (h *Handler) GetCycles(c *gin.Context) {
	cycles, err := h.machines.ListCycles(
		c.Request.Context(),
		c.Param("agent_id"),
		c.Param("local_id"),
	)
	switch {
	case errors.Is(err, machines.ErrNoMapping):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such machine"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "cycle lookup failed"})
	default:
		c.JSON(http.StatusOK, cycles)
	}
}
