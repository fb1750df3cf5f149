package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/metrics"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/server"
)

// Lifecycle is the part of server.LifecycleManager the API drives.
type Lifecycle interface {
	Start(ctx context.Context, serverName string, opts server.StartOptions) (string, error)
	Stop(ctx context.Context, serverName string) (string, error)
	Abort(jobID string) bool
	GetJob(jobID string) (*jobs.ServerJob, error)
	ListJobs() []*jobs.ServerJob
	GetStatus(serverName string) (server.ServerStatus, error)
	GetAllStatuses(ctx context.Context) ([]server.ServerStatus, error)
}

// StartRequest carries optional overrides for a single start.
type StartRequest struct {
	ExtraArgs    []string `json:"extra_args"`
	SpawnTimeout string   `json:"spawn_timeout"`
	BindTimeout  string   `json:"bind_timeout"`
}

func (r StartRequest) options() (server.StartOptions, error) {
	opts := server.StartOptions{ExtraArgs: r.ExtraArgs}

	var err error
	if opts.SpawnTimeout, err = parseOptionalDuration(r.SpawnTimeout); err != nil {
		return opts, fmt.Errorf("invalid spawn_timeout: %w", err)
	}
	if opts.BindTimeout, err = parseOptionalDuration(r.BindTimeout); err != nil {
		return opts, fmt.Errorf("invalid bind_timeout: %w", err)
	}
	return opts, nil
}

func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// MetricsSource returns the latest resource sample of a running server.
type MetricsSource interface {
	Latest(serverName string) (metrics.Sample, bool)
}

// ServerHandler serves server status and lifecycle requests.
type ServerHandler struct {
	lifecycle Lifecycle
	metrics   MetricsSource
}

// NewServerHandler creates a new server handler. metrics may be nil when sampling is disabled.
func NewServerHandler(lifecycle Lifecycle, metrics MetricsSource) *ServerHandler {
	return &ServerHandler{lifecycle: lifecycle, metrics: metrics}
}

// ListServers returns the status of every configured server.
func (h *ServerHandler) ListServers(c *gin.Context) {
	statuses, err := h.lifecycle.GetAllStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"servers": statuses})
}

// GetServerStatus returns the status of one server.
func (h *ServerHandler) GetServerStatus(c *gin.Context) {
	status, err := h.lifecycle.GetStatus(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetServerMetrics returns the latest resource sample of a running server.
func (h *ServerHandler) GetServerMetrics(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.lifecycle.GetStatus(name); err != nil {
		respondError(c, err)
		return
	}
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Metrics collection is disabled"})
		return
	}

	sample, ok := h.metrics.Latest(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No metrics for server"})
		return
	}
	c.JSON(http.StatusOK, sample)
}

// StartServer queues a start job.
func (h *ServerHandler) StartServer(c *gin.Context) {
	name := c.Param("name")

	var req StartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	opts, err := req.options()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID, err := h.lifecycle.Start(c.Request.Context(), name, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Component("api").Info("server start requested", "server", name, "job", jobID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "server": name, "operation": jobs.OperationStart})
}

// StopServer queues a stop job.
func (h *ServerHandler) StopServer(c *gin.Context) {
	name := c.Param("name")

	jobID, err := h.lifecycle.Stop(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Component("api").Info("server stop requested", "server", name, "job", jobID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "server": name, "operation": jobs.OperationStop})
}

// respondError maps lifecycle errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, server.ErrUnknownServer):
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
	case errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, server.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
