package console

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroadcaster struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (b *recordingBroadcaster) Broadcast(room, msgType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lines == nil {
		b.lines = map[string][]string{}
	}
	line, _ := payload.(map[string]any)["line"].(string)
	b.lines[room] = append(b.lines[room], msgType+":"+line)
}

func (b *recordingBroadcaster) received(room string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines[room]...)
}

func newTestWatcher(t *testing.T) (*Watcher, *recordingBroadcaster, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server-console.txt")

	b := &recordingBroadcaster{}
	w := NewWatcher(func(string) (string, error) { return path, nil }, b, 10)
	w.interval = 10 * time.Millisecond
	t.Cleanup(w.Close)
	return w, b, path
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestWatcherSkipsExistingContent(t *testing.T) {
	w, b, path := newTestWatcher(t)
	appendTo(t, path, "old line\n")

	require.NoError(t, w.OnServerStarted("alpha"))
	appendTo(t, path, "new line\n")

	require.Eventually(t, func() bool {
		return len(b.received("console:alpha")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"console_output:new line"}, b.received("console:alpha"))
	assert.Equal(t, []string{"new line"}, w.Backlog("alpha", 5))
}

func TestWatcherWaitsForCompleteLines(t *testing.T) {
	w, b, path := newTestWatcher(t)
	require.NoError(t, w.OnServerStarted("alpha"))

	appendTo(t, path, "partial")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, b.received("console:alpha"))

	appendTo(t, path, " line\nnext\n")
	require.Eventually(t, func() bool {
		return len(b.received("console:alpha")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"console_output:partial line", "console_output:next"}, b.received("console:alpha"))
}

func TestWatcherHandlesTruncation(t *testing.T) {
	w, b, path := newTestWatcher(t)
	appendTo(t, path, "a fairly long line that was there before the restart\n")
	require.NoError(t, w.OnServerStarted("alpha"))

	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(b.received("console:alpha")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"console_output:fresh"}, b.received("console:alpha"))
}

func TestWatcherStartIsIdempotentAndStopEndsTail(t *testing.T) {
	w, b, path := newTestWatcher(t)

	require.NoError(t, w.OnServerStarted("alpha"))
	require.NoError(t, w.OnServerStarted("alpha"))
	assert.True(t, w.Following("alpha"))

	appendTo(t, path, "one\n")
	require.Eventually(t, func() bool {
		return len(b.received("console:alpha")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, w.OnServerStopped("alpha"))
	require.NoError(t, w.OnServerStopped("alpha"))
	assert.False(t, w.Following("alpha"))

	// give a tail that was mid-read time to finish before writing again
	time.Sleep(30 * time.Millisecond)
	appendTo(t, path, "two\n")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"console_output:one"}, b.received("console:alpha"))
}

func TestWatcherBacklogUnknownServer(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	assert.Empty(t, w.Backlog("ghost", 10))
}

func TestWatcherRejectsStartAfterClose(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	w.Close()
	assert.Error(t, w.OnServerStarted("alpha"))
}
