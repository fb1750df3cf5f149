package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/api/handlers"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/api/middleware"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/console"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/database"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/probe"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/server"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/websocket"
)

// app holds every long-lived component of the manager.
type app struct {
	cfg       *config.Config
	servers   *config.ServerManager
	db        *database.DB
	store     jobs.Store
	hub       *websocket.Hub
	console   *console.Watcher
	processes *probe.ProcessTable
	sockets   *probe.SocketTable
	allocator *ports.Allocator
	lifecycle *server.LifecycleManager
}

// buildApp wires the components. With persistent set and the sqlite store
// configured, job history lives in the database and jobs left active by a
// previous run are marked failed.
func buildApp(cfg *config.Config, persistent bool) (*app, error) {
	logger := logging.Component("main")

	servers, err := config.NewServerManager(cfg.Storage.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}

	a := &app{cfg: cfg, servers: servers}
	a.hub = websocket.NewHub(middleware.OriginChecker(cfg.CORS))

	var inner jobs.Store = jobs.NewMemoryStore()
	if persistent && cfg.Jobs.Store == config.JobStoreSQLite {
		db, err := database.NewDB(cfg.Database.Path, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if _, err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		sqlStore := jobs.NewSQLStore(db.DB)
		if n, err := sqlStore.FailInterrupted(time.Now()); err != nil {
			logger.Warn("failed to mark interrupted jobs", "error", err)
		} else if n > 0 {
			logger.Info("marked interrupted jobs as failed", "count", n)
		}
		a.db = db
		inner = sqlStore
	}
	a.store = jobs.NewPublishingStore(inner, func(job *jobs.ServerJob) {
		a.hub.Broadcast(handlers.JobsRoom, handlers.MessageJobUpdate, job)
	})

	lc := cfg.Lifecycle
	a.processes = probe.NewProcessTable(lc.LaunchSignature, lc.ServerNameFlag, lc.ProbeTimeout)
	a.sockets = probe.NewSocketTable(lc.ProbeTimeout)
	a.allocator = ports.NewAllocator(cfg.Ports, a.sockets)

	a.console = console.NewWatcher(a.consoleLogPath, a.hub, 500)

	a.lifecycle = server.NewLifecycleManager(server.Dependencies{
		Config:      lc,
		ServersRoot: cfg.Storage.ServersRoot,
		Servers:     servers,
		Mux:         server.NewTmuxMultiplexer(server.LocalExecutor{}, lc.ProbeTimeout),
		Processes:   a.processes,
		Sockets:     a.sockets,
		Allocator:   a.allocator,
		Store:       a.store,
		Notifier:    a.console,
	})

	return a, nil
}

func (a *app) consoleLogPath(serverName string) (string, error) {
	def, ok := a.servers.GetByName(serverName)
	if !ok {
		return "", fmt.Errorf("%w: %s", server.ErrUnknownServer, serverName)
	}
	return filepath.Join(a.lifecycle.WorkingDir(def), a.cfg.Lifecycle.ConsoleLog), nil
}

func (a *app) close() {
	a.console.Close()
	if a.db != nil {
		a.db.Close()
	}
}
