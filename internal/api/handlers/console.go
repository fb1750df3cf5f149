package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/console"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/websocket"
)

const (
	// JobsRoom receives a job_update message after every job write.
	JobsRoom = "jobs"

	MessageJobUpdate   = "job_update"
	MessageJobSnapshot = "job_snapshot"

	defaultBacklogLines = 100
)

var errInvalidLines = errors.New("lines must be a positive integer")

// ServerLookup resolves configured servers by name.
type ServerLookup interface {
	GetByName(name string) (config.ServerDefinition, bool)
}

// ConsoleBacklog exposes the recent console lines of a server.
type ConsoleBacklog interface {
	Backlog(serverName string, n int) []string
}

// Streamer attaches an upgraded connection to a broadcast room.
type Streamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, room string, initial ...*websocket.Message) error
}

// StreamHandler serves console backlogs and the WebSocket push channels.
type StreamHandler struct {
	lifecycle Lifecycle
	servers   ServerLookup
	backlog   ConsoleBacklog
	streamer  Streamer
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(lifecycle Lifecycle, servers ServerLookup, backlog ConsoleBacklog, streamer Streamer) *StreamHandler {
	return &StreamHandler{lifecycle: lifecycle, servers: servers, backlog: backlog, streamer: streamer}
}

// GetConsole returns recent console lines, optionally filtered.
func (h *StreamHandler) GetConsole(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.servers.GetByName(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	lines, err := parseLines(c.DefaultQuery("lines", strconv.Itoa(defaultBacklogLines)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output := filter.FilterLines(h.backlog.Backlog(name, lines))
	c.JSON(http.StatusOK, gin.H{"server": name, "lines": output})
}

// HandleConsoleWebSocket streams console lines of one server, starting with its backlog.
func (h *StreamHandler) HandleConsoleWebSocket(c *gin.Context) {
	name := c.Param("name")
	if _, ok := h.servers.GetByName(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
		return
	}

	room := console.Room(name)
	now := time.Now()
	backlog := h.backlog.Backlog(name, defaultBacklogLines)
	initial := make([]*websocket.Message, 0, len(backlog))
	for _, line := range backlog {
		initial = append(initial, &websocket.Message{
			Type:      console.MessageConsoleOutput,
			Room:      room,
			Payload:   map[string]any{"server": name, "line": line},
			Timestamp: now,
		})
	}

	if err := h.streamer.ServeWS(c.Writer, c.Request, room, initial...); err != nil {
		logging.Component("api").Debug("console websocket closed", "server", name, "error", err)
	}
}

// HandleJobsWebSocket streams job updates, starting with the currently active jobs.
func (h *StreamHandler) HandleJobsWebSocket(c *gin.Context) {
	active := []*jobs.ServerJob{}
	for _, job := range h.lifecycle.ListJobs() {
		if job.Status.Active() {
			active = append(active, job)
		}
	}

	snapshot := &websocket.Message{
		Type:      MessageJobSnapshot,
		Room:      JobsRoom,
		Payload:   active,
		Timestamp: time.Now(),
	}
	if err := h.streamer.ServeWS(c.Writer, c.Request, JobsRoom, snapshot); err != nil {
		logging.Component("api").Debug("jobs websocket closed", "error", err)
	}
}

func parseLines(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errInvalidLines
	}
	return n, nil
}
