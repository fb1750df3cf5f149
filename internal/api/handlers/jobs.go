package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

// JobHandler serves job queries and aborts.
type JobHandler struct {
	lifecycle Lifecycle
}

// NewJobHandler creates a new job handler
func NewJobHandler(lifecycle Lifecycle) *JobHandler {
	return &JobHandler{lifecycle: lifecycle}
}

// ListJobs returns retained jobs, newest first. Optional filters: server, status, limit.
func (h *JobHandler) ListJobs(c *gin.Context) {
	serverName := c.Query("server")
	status := jobs.Status(c.Query("status"))

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	result := []*jobs.ServerJob{}
	for _, job := range h.lifecycle.ListJobs() {
		if serverName != "" && job.ServerName != serverName {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) == limit {
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": result})
}

// GetJob returns one job.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.lifecycle.GetJob(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// AbortJob aborts a running start job. Other jobs answer 409 with their current state.
func (h *JobHandler) AbortJob(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.lifecycle.GetJob(id); err != nil {
		respondError(c, err)
		return
	}

	aborted := h.lifecycle.Abort(id)

	job, err := h.lifecycle.GetJob(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !aborted {
		c.JSON(http.StatusConflict, gin.H{"error": "Job cannot be aborted", "job": job})
		return
	}

	logging.Component("api").Info("job aborted", "job", id, "server", job.ServerName)
	c.JSON(http.StatusOK, job)
}
