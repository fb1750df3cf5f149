package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

// TmuxMultiplexer drives tmux through a CommandExecutor.
type TmuxMultiplexer struct {
	executor CommandExecutor
	timeout  time.Duration
}

// NewTmuxMultiplexer creates a multiplexer whose every tmux call is bounded by timeout.
func NewTmuxMultiplexer(executor CommandExecutor, timeout time.Duration) *TmuxMultiplexer {
	if executor == nil {
		executor = LocalExecutor{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TmuxMultiplexer{executor: executor, timeout: timeout}
}

func (t *TmuxMultiplexer) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	return t.executor.Execute(ctx, "tmux", args...)
}

// SessionExists checks whether a session with exactly this name exists.
// Any tmux failure, including a missing tmux server, reads as "no session".
func (t *TmuxMultiplexer) SessionExists(session string) bool {
	_, err := t.run("has-session", "-t", sessionTarget(session))
	return err == nil
}

// CreateSession starts a detached session with a wide virtual terminal.
func (t *TmuxMultiplexer) CreateSession(session string) error {
	output, err := t.run("new-session", "-d", "-s", session, "-x", "500", "-y", "100")
	if err != nil {
		return fmt.Errorf("failed to create tmux session %s: %w (output: %s)", session, err, output)
	}

	logging.Component("tmux").Info("created session", "session", session)
	return nil
}

// DestroySession kills the session if it exists.
func (t *TmuxMultiplexer) DestroySession(session string) error {
	if !t.SessionExists(session) {
		return nil
	}

	output, err := t.run("kill-session", "-t", sessionTarget(session))
	if err != nil {
		// it may have exited between the check and the kill
		if !t.SessionExists(session) {
			return nil
		}
		return fmt.Errorf("failed to kill tmux session %s: %w (output: %s)", session, err, output)
	}

	logging.Component("tmux").Info("destroyed session", "session", session)
	return nil
}

// SendKeys types command literally into the session and presses Enter.
func (t *TmuxMultiplexer) SendKeys(session, command string) error {
	target := paneTarget(session)
	if output, err := t.run("send-keys", "-t", target, "-l", command); err != nil {
		return fmt.Errorf("failed to send keys to %s: %w (output: %s)", session, err, output)
	}
	if output, err := t.run("send-keys", "-t", target, "Enter"); err != nil {
		return fmt.Errorf("failed to send Enter to %s: %w (output: %s)", session, err, output)
	}

	logging.Component("tmux").Debug("sent command", "session", session, "command", command)
	return nil
}

// The '=' prefix disables tmux's prefix matching, so "gs-a" never resolves to "gs-alpha".
func sessionTarget(session string) string {
	return "=" + session
}

func paneTarget(session string) string {
	return "=" + session + ":"
}

// bashQuote wraps value in single quotes for a POSIX shell.
func bashQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", "'\"'\"'") + "'"
}
