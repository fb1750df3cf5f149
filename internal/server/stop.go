package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
)

// runStop drives a stop job. Stop jobs cannot be aborted; only shutdown cancels them.
func (lm *LifecycleManager) runStop(ctx context.Context, jobID, name string) error {
	session := lm.SessionName(name)
	logger := logging.ForJob(lm.logger, name, jobID)

	if err := lm.advance(ctx, jobID, 10, "Checking server state"); err != nil {
		return err
	}
	current := lm.status.Detect(name, jobID)
	if current.State != StateRunning && current.State != StateStarting {
		return fmt.Errorf("server %s is not running", name)
	}

	hasSession := lm.mux.SessionExists(session)

	if err := lm.advance(ctx, jobID, 20, "Saving world"); err != nil {
		return err
	}
	if hasSession {
		if err := lm.mux.SendKeys(session, lm.cfg.SaveCommand); err != nil {
			logger.Warn("save command failed", "error", err)
		}
		if err := sleep(ctx, lm.cfg.SaveGrace); err != nil {
			return err
		}
	}

	if err := lm.advance(ctx, jobID, 50, "Sending quit command"); err != nil {
		return err
	}
	if hasSession {
		if err := lm.mux.SendKeys(session, lm.cfg.QuitCommand); err != nil {
			logger.Warn("quit command failed", "error", err)
		}
	} else if pid, ok := lm.procs.FindPID(name); ok {
		logger.Info("session missing, signalling process", "pid", pid)
		lm.terminate(pid)
	}

	if err := lm.advance(ctx, jobID, 80, "Waiting for server to exit"); err != nil {
		return err
	}
	exited, err := lm.waitFor(ctx, jobID, lm.cfg.StopTimeout, func() bool {
		_, alive := lm.procs.FindPID(name)
		return !alive
	})
	if err != nil {
		return err
	}
	if !exited {
		if pid, ok := lm.procs.FindPID(name); ok {
			logger.Warn("server ignored quit, sending SIGTERM", "pid", pid)
			lm.terminate(pid)
			if err := sleep(ctx, lm.cfg.KillGrace); err != nil {
				return err
			}
		}
	}

	// the session goes regardless of how the process ended
	lm.cleanupSession(name)

	if pid, alive := lm.procs.FindPID(name); alive {
		return fmt.Errorf("server %s did not stop within %s (pid %d still alive)", name, lm.cfg.StopTimeout, pid)
	}

	_, err = lm.store.Update(jobID, func(j *jobs.ServerJob) error {
		j.Complete("Server stopped", nil, lm.now())
		return nil
	})
	if errors.Is(err, jobs.ErrJobFinalized) {
		return errJobCancelled
	}
	if err != nil {
		return err
	}

	lm.status.Invalidate(name)
	logger.Info("server stopped")

	if err := lm.notifier.OnServerStopped(name); err != nil {
		logger.Warn("stop notification failed", "error", err)
	}
	return nil
}

func (lm *LifecycleManager) terminate(pid int) {
	if err := lm.procs.Terminate(pid); err != nil {
		lm.logger.Debug("terminate failed", "pid", pid, "error", err)
	}
}
