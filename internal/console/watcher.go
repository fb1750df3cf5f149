// Package console follows game server console logs and pushes new lines to subscribers.
package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

// MessageConsoleOutput is the message type broadcast for each new line.
const MessageConsoleOutput = "console_output"

// Broadcaster delivers a message to every subscriber of room.
type Broadcaster interface {
	Broadcast(room, msgType string, payload any)
}

// LogPathFunc returns the console log file of a server.
type LogPathFunc func(serverName string) (string, error)

// Room returns the broadcast room for a server's console.
func Room(serverName string) string {
	return "console:" + serverName
}

// Watcher tails console logs of running servers. It starts following a log
// when a server starts and stops when the server stops.
type Watcher struct {
	logPath     LogPathFunc
	broadcaster Broadcaster
	backlog     int
	interval    time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	tails   map[string]*tail
	buffers map[string]*RingBuffer
	wg      sync.WaitGroup
	closed  bool
}

type tail struct {
	server  string
	path    string
	offset  int64
	partial string
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher keeping backlog lines per server.
func NewWatcher(logPath LogPathFunc, broadcaster Broadcaster, backlog int) *Watcher {
	if backlog <= 0 {
		backlog = 500
	}
	return &Watcher{
		logPath:     logPath,
		broadcaster: broadcaster,
		backlog:     backlog,
		interval:    time.Second,
		logger:      logging.Component("console"),
		tails:       make(map[string]*tail),
		buffers:     make(map[string]*RingBuffer),
	}
}

// OnServerStarted begins tailing the server's console log from its current end.
func (w *Watcher) OnServerStarted(serverName string) error {
	path, err := w.logPath(serverName)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("console watcher is closed")
	}
	if _, ok := w.tails[serverName]; ok {
		return nil
	}

	t := &tail{server: serverName, path: path}
	if info, err := os.Stat(path); err == nil {
		t.offset = info.Size()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	w.tails[serverName] = t
	w.buffers[serverName] = NewRingBuffer(w.backlog)

	w.wg.Add(1)
	go w.follow(ctx, t)

	w.logger.Info("following console log", "server", serverName, "path", path)
	return nil
}

// OnServerStopped stops tailing the server's console log.
func (w *Watcher) OnServerStopped(serverName string) error {
	w.mu.Lock()
	t, ok := w.tails[serverName]
	delete(w.tails, serverName)
	w.mu.Unlock()

	if ok {
		t.cancel()
		w.logger.Info("stopped following console log", "server", serverName)
	}
	return nil
}

// Backlog returns up to n recent lines of a server, oldest first.
func (w *Watcher) Backlog(serverName string, n int) []string {
	w.mu.Lock()
	buffer := w.buffers[serverName]
	w.mu.Unlock()

	if buffer == nil {
		return []string{}
	}
	return buffer.GetLast(n)
}

// Following reports whether the server's log is being tailed.
func (w *Watcher) Following(serverName string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.tails[serverName]
	return ok
}

// Close stops every tail and waits for the goroutines to exit.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	for name, t := range w.tails {
		t.cancel()
		delete(w.tails, name)
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// follow reads new data on every fsnotify event for the file and on a
// fallback ticker, since some filesystems never deliver events.
func (w *Watcher) follow(ctx context.Context, t *tail) {
	defer w.wg.Done()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if fw, err := fsnotify.NewWatcher(); err != nil {
		w.logger.Warn("fsnotify unavailable, polling console log", "server", t.server, "error", err)
	} else {
		defer fw.Close()
		// The file may not exist yet, so watch its directory.
		if err := fw.Add(filepath.Dir(t.path)); err != nil {
			w.logger.Warn("failed to watch console directory, polling", "server", t.server, "error", err)
		}
		events, errs = fw.Events, fw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(t.path) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.offset, t.partial = 0, ""
				continue
			}
			w.drain(t)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug("fsnotify error", "server", t.server, "error", err)

		case <-ticker.C:
			w.drain(t)
		}
	}
}

func (w *Watcher) drain(t *tail) {
	lines, err := t.read()
	if err != nil {
		w.logger.Debug("failed to read console log", "server", t.server, "error", err)
		return
	}
	if len(lines) == 0 {
		return
	}

	w.mu.Lock()
	buffer := w.buffers[t.server]
	w.mu.Unlock()

	for _, line := range lines {
		if buffer != nil {
			buffer.Add(line)
		}
		w.broadcaster.Broadcast(Room(t.server), MessageConsoleOutput, map[string]any{
			"server": t.server,
			"line":   line,
		})
	}
}

// read returns the complete lines appended since the last call. A file that
// shrank was truncated, so reading restarts from its beginning.
func (t *tail) read() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.offset, t.partial = 0, ""
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < t.offset {
		t.offset, t.partial = 0, ""
	}
	if size == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, size-t.offset))
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	parts := strings.Split(t.partial+string(data), "\n")
	t.partial = parts[len(parts)-1]

	lines := make([]string, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		lines = append(lines, sanitizeConsoleLine(part))
	}
	return lines, nil
}
