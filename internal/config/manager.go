package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ServerManager handles thread-safe access to server configurations
type ServerManager struct {
	configDir string
	mutex     sync.RWMutex
	servers   []ServerDefinition
}

// NewServerManager creates a new server manager
func NewServerManager(configDir string) (*ServerManager, error) {
	sm := &ServerManager{
		configDir: configDir,
		servers:   []ServerDefinition{},
	}

	if err := sm.Load(); err != nil {
		return nil, err
	}

	return sm, nil
}

// NewStaticServerManager builds a manager around a fixed list, without touching disk.
func NewStaticServerManager(servers []ServerDefinition) *ServerManager {
	result := make([]ServerDefinition, len(servers))
	copy(result, servers)
	return &ServerManager{servers: result}
}

// Load reads the configuration from disk
func (sm *ServerManager) Load() error {
	servers, err := LoadServers(sm.configDir)
	if err != nil {
		return err
	}

	sm.mutex.Lock()
	sm.servers = servers
	sm.mutex.Unlock()
	return nil
}

// GetAll returns a copy of all server definitions
func (sm *ServerManager) GetAll() []ServerDefinition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	result := make([]ServerDefinition, len(sm.servers))
	copy(result, sm.servers)
	return result
}

// GetByName returns a server definition by name
func (sm *ServerManager) GetByName(name string) (ServerDefinition, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, s := range sm.servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerDefinition{}, false
}

// ListConfiguredServers returns server names in configuration order.
func (sm *ServerManager) ListConfiguredServers() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	names := make([]string, 0, len(sm.servers))
	for _, s := range sm.servers {
		names = append(names, s.Name)
	}
	return names
}

// Watch reloads servers.yaml whenever it changes until ctx is cancelled.
// A reload that fails to parse keeps the previous list.
func (sm *ServerManager) Watch(ctx context.Context) error {
	if sm.configDir == "" {
		return fmt.Errorf("server manager has no config directory")
	}
	if err := os.MkdirAll(sm.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors replace files via rename, so watch the directory rather than the file.
	if err := watcher.Add(sm.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", sm.configDir, err)
	}

	target := filepath.Base(ServersPath(sm.configDir))
	logger := slog.Default().With("component", "config")

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := sm.Load(); err != nil {
					logger.Warn("servers reload failed", "error", err)
					continue
				}
				logger.Info("servers reloaded", "count", len(sm.GetAll()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("servers watcher error", "error", err)
			}
		}
	}()

	return nil
}
