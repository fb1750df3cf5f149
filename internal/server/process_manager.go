package server

import (
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
)

// Multiplexer controls the detached terminal sessions that host server consoles.
type Multiplexer interface {
	SessionExists(session string) bool
	CreateSession(session string) error
	// DestroySession must succeed when the session does not exist.
	DestroySession(session string) error
	// SendKeys types command into the session followed by Enter.
	SendKeys(session, command string) error
}

// ProcessTable locates game server processes.
type ProcessTable interface {
	FindPID(serverName string) (int, bool)
	Uptime(pid int) (time.Duration, bool)
	Terminate(pid int) error
}

// SocketTable reports bound ports.
type SocketTable interface {
	IsPortBound(port int) bool
	BoundPortForPID(pid int) (int, bool)
}

// ServerLister supplies configured server names in configuration order.
type ServerLister interface {
	ListConfiguredServers() []string
}

// ServerCatalog resolves server definitions by name.
type ServerCatalog interface {
	ServerLister
	GetByName(name string) (config.ServerDefinition, bool)
}

// Notifier is told when a server comes up or goes down. Errors are logged, never propagated.
type Notifier interface {
	OnServerStarted(serverName string) error
	OnServerStopped(serverName string) error
}

type nopNotifier struct{}

func (nopNotifier) OnServerStarted(string) error { return nil }
func (nopNotifier) OnServerStopped(string) error { return nil }
