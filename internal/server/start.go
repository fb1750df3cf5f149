package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
)

// runStart drives a start job from pending to a terminal state.
// Once the session is claimed, every error path destroys it before returning,
// unless an abort already did so.
func (lm *LifecycleManager) runStart(ctx context.Context, jobID string, def config.ServerDefinition, opts StartOptions) (err error) {
	name := def.Name
	session := lm.SessionName(name)
	logger := logging.ForJob(lm.logger, name, jobID)

	spawnTimeout := lm.cfg.SpawnTimeout
	if opts.SpawnTimeout > 0 {
		spawnTimeout = opts.SpawnTimeout
	}
	bindTimeout := lm.cfg.BindTimeout
	if opts.BindTimeout > 0 {
		bindTimeout = opts.BindTimeout
	}

	claimed := false
	defer func() {
		if err != nil && claimed {
			lm.releaseSession(name, jobID)
		}
	}()

	if err := lm.advance(ctx, jobID, 10, "Checking server state"); err != nil {
		return err
	}
	if err := lm.claimSession(ctx, jobID, name, session); err != nil {
		return err
	}
	claimed = true

	if err := lm.advance(ctx, jobID, 40, "Launching server"); err != nil {
		return err
	}
	dir := lm.WorkingDir(def)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}
	for _, missing := range lm.missingExpectedFiles(dir, name) {
		logger.Warn("expected data file missing, continuing", "path", missing)
	}

	triplet := lm.allocator.Allocate(name, lm.servers.ListConfiguredServers())
	template := lm.cfg.LaunchCommand
	if def.LaunchCommand != "" {
		template = def.LaunchCommand
	}
	extra := append(append([]string{}, def.ExtraArgs...), opts.ExtraArgs...)
	command := buildLaunchCommand(template, dir, name, triplet, extra)

	if !lm.active(ctx, jobID) {
		return errJobCancelled
	}
	if err := lm.mux.SendKeys(session, command); err != nil {
		return fmt.Errorf("failed to send launch command: %w", err)
	}
	logger.Info("launch command sent", "session", session, "port", triplet.DefaultPort)

	if err := lm.advance(ctx, jobID, 60, "Waiting for server process"); err != nil {
		return err
	}
	var pid int
	found, err := lm.waitFor(ctx, jobID, spawnTimeout, func() bool {
		var ok bool
		pid, ok = lm.procs.FindPID(name)
		return ok
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("server %s failed to start within %s", name, spawnTimeout)
	}
	logger.Info("server process found", "pid", pid)

	if err := lm.advance(ctx, jobID, 80, fmt.Sprintf("Waiting for port %d", triplet.DefaultPort)); err != nil {
		return err
	}
	bound, err := lm.waitFor(ctx, jobID, bindTimeout, func() bool {
		return lm.sockets.IsPortBound(triplet.DefaultPort)
	})
	if err != nil {
		return err
	}
	if !bound {
		return fmt.Errorf("server %s started (pid %d) but did not bind port %d within %s", name, pid, triplet.DefaultPort, bindTimeout)
	}

	_, err = lm.store.Update(jobID, func(j *jobs.ServerJob) error {
		j.Complete("Server started", &jobs.Result{PID: pid, Session: session}, lm.now())
		return nil
	})
	if errors.Is(err, jobs.ErrJobFinalized) {
		return errJobCancelled
	}
	if err != nil {
		return err
	}

	lm.status.Invalidate(name)
	logger.Info("server started", "pid", pid, "port", triplet.DefaultPort)

	if err := lm.notifier.OnServerStarted(name); err != nil {
		logger.Warn("start notification failed", "error", err)
	}
	return nil
}

// claimSession checks preconditions and replaces any stale session with a fresh one.
// Both steps run under the per-server lock so concurrent starts cannot both pass the check.
func (lm *LifecycleManager) claimSession(ctx context.Context, jobID, name, session string) error {
	unlock := lm.locks.Lock(name)
	defer unlock()

	if probed, _ := lm.status.probe(name); probed.State == StateRunning {
		return fmt.Errorf("server %s is already running", name)
	}
	// The oldest active job owns the server. A newer job never blocks an older one.
	if owner, ok := lm.store.ActiveForServer(name); ok && owner.ID != jobID {
		if owner.Operation == jobs.OperationStop {
			return fmt.Errorf("server %s is stopping", name)
		}
		return fmt.Errorf("server %s is already starting", name)
	}

	if err := lm.advance(ctx, jobID, 20, "Preparing session"); err != nil {
		return err
	}
	if lm.mux.SessionExists(session) {
		lm.logger.Info("destroying stale session", "server", name, "session", session)
		if err := lm.mux.DestroySession(session); err != nil {
			return fmt.Errorf("failed to destroy stale session: %w", err)
		}
	}
	if err := lm.mux.CreateSession(session); err != nil {
		return err
	}
	return nil
}

func (lm *LifecycleManager) missingExpectedFiles(dir, name string) []string {
	var missing []string
	for _, pattern := range lm.cfg.ExpectedFiles {
		path := filepath.Join(dir, strings.ReplaceAll(pattern, "{name}", name))
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}

// buildLaunchCommand expands the template placeholders and prefixes a cd into dir.
func buildLaunchCommand(template, dir, name string, p ports.Triplet, extraArgs []string) string {
	replacer := strings.NewReplacer(
		"{name}", name,
		"{dir}", dir,
		"{port}", strconv.Itoa(p.DefaultPort),
		"{udp_port}", strconv.Itoa(p.UDPPort),
		"{rcon_port}", strconv.Itoa(p.RCONPort),
	)

	parts := []string{"cd", bashQuote(dir), "&&", replacer.Replace(template)}
	for _, arg := range extraArgs {
		parts = append(parts, bashQuote(arg))
	}
	return strings.Join(parts, " ")
}
