package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
)

var (
	ErrUnknownServer = errors.New("unknown server")
	ErrShuttingDown  = errors.New("lifecycle manager is shutting down")

	errJobCancelled = errors.New("job cancelled")
	errNotPending   = errors.New("job is not pending")
)

const abortMessage = "start aborted by user"

// Dependencies are the collaborators a LifecycleManager drives.
type Dependencies struct {
	Config      config.LifecycleConfig
	ServersRoot string
	Servers     ServerCatalog
	Mux         Multiplexer
	Processes   ProcessTable
	Sockets     SocketTable
	Allocator   *ports.Allocator
	Store       jobs.Store
	Notifier    Notifier
}

// StartOptions adjust a single start request. Zero values fall back to config.
type StartOptions struct {
	ExtraArgs    []string      `json:"extra_args,omitempty"`
	SpawnTimeout time.Duration `json:"spawn_timeout,omitempty"`
	BindTimeout  time.Duration `json:"bind_timeout,omitempty"`
}

// LifecycleManager starts and stops game servers as tracked background jobs.
type LifecycleManager struct {
	cfg         config.LifecycleConfig
	serversRoot string
	servers     ServerCatalog
	mux         Multiplexer
	procs       ProcessTable
	sockets     SocketTable
	allocator   *ports.Allocator
	store       jobs.Store
	notifier    Notifier
	status      *StatusResolver
	logger      *slog.Logger
	now         func() time.Time

	baseCtx context.Context
	stopAll context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	locks   keyedMutex
	wg      sync.WaitGroup
}

// NewLifecycleManager wires a manager from its dependencies.
func NewLifecycleManager(deps Dependencies) *LifecycleManager {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	lm := &LifecycleManager{
		cfg:         deps.Config,
		serversRoot: deps.ServersRoot,
		servers:     deps.Servers,
		mux:         deps.Mux,
		procs:       deps.Processes,
		sockets:     deps.Sockets,
		allocator:   deps.Allocator,
		store:       deps.Store,
		notifier:    notifier,
		logger:      logging.Component("lifecycle"),
		now:         time.Now,
		baseCtx:     ctx,
		stopAll:     cancel,
		cancels:     make(map[string]context.CancelFunc),
	}
	lm.status = NewStatusResolver(deps.Mux, deps.Processes, deps.Sockets, deps.Store, deps.Allocator,
		deps.Servers, NewStatusCache(deps.Config.StatusTTL), lm.SessionName)
	return lm
}

// SessionName returns the tmux session that hosts serverName.
func (lm *LifecycleManager) SessionName(serverName string) string {
	return SafeSessionName(lm.cfg.SessionPrefix, serverName)
}

// WorkingDir returns the directory a server is launched from.
func (lm *LifecycleManager) WorkingDir(def config.ServerDefinition) string {
	if def.WorkingDirectory != "" {
		return def.WorkingDirectory
	}
	return filepath.Join(lm.serversRoot, def.Name)
}

// GetJob returns a snapshot of one job.
func (lm *LifecycleManager) GetJob(jobID string) (*jobs.ServerJob, error) {
	return lm.store.Get(jobID)
}

// ListJobs returns every retained job, newest first.
func (lm *LifecycleManager) ListJobs() []*jobs.ServerJob {
	return lm.store.List()
}

// GetStatus returns the status of a configured server.
func (lm *LifecycleManager) GetStatus(serverName string) (ServerStatus, error) {
	if _, ok := lm.servers.GetByName(serverName); !ok {
		return ServerStatus{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverName)
	}
	return lm.status.GetStatus(serverName), nil
}

// GetAllStatuses returns the status of every configured server in config order.
func (lm *LifecycleManager) GetAllStatuses(ctx context.Context) ([]ServerStatus, error) {
	return lm.status.GetAllStatuses(ctx)
}

// Start queues a start job and returns its id without waiting for it.
func (lm *LifecycleManager) Start(ctx context.Context, serverName string, opts StartOptions) (string, error) {
	def, err := lm.lookup(ctx, serverName)
	if err != nil {
		return "", err
	}

	jobCtx, job, err := lm.launch(jobs.OperationStart, serverName)
	if err != nil {
		return "", err
	}

	go lm.runJob(job, func() error {
		return lm.runStart(jobCtx, job.ID, def, opts)
	})

	lm.logger.Info("start queued", "server", serverName, "job", job.ID)
	return job.ID, nil
}

// Stop queues a stop job and returns its id without waiting for it.
func (lm *LifecycleManager) Stop(ctx context.Context, serverName string) (string, error) {
	if _, err := lm.lookup(ctx, serverName); err != nil {
		return "", err
	}

	jobCtx, job, err := lm.launch(jobs.OperationStop, serverName)
	if err != nil {
		return "", err
	}

	go lm.runJob(job, func() error {
		return lm.runStop(jobCtx, job.ID, serverName)
	})

	lm.logger.Info("stop queued", "server", serverName, "job", job.ID)
	return job.ID, nil
}

// Abort cancels a running start job. Anything else, including stop jobs, is left alone.
func (lm *LifecycleManager) Abort(jobID string) bool {
	job, err := lm.store.Get(jobID)
	if err != nil || job.Operation != jobs.OperationStart {
		return false
	}

	// Held until the session is gone so a new start cannot claim it in between.
	unlock := lm.locks.Lock(job.ServerName)
	defer unlock()

	_, err = lm.store.Update(jobID, func(j *jobs.ServerJob) error {
		if j.Status != jobs.StatusRunning {
			return errJobCancelled
		}
		j.Fail(abortMessage, lm.now())
		return nil
	})
	if err != nil {
		return false
	}

	lm.mu.Lock()
	cancel := lm.cancels[jobID]
	lm.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	lm.cleanupSession(job.ServerName)
	lm.status.Invalidate(job.ServerName)
	lm.logger.Info("start aborted", "server", job.ServerName, "job", jobID)
	return true
}

// Shutdown cancels all in-flight jobs and waits for their goroutines to record a terminal state.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	lm.mu.Lock()
	lm.closed = true
	lm.mu.Unlock()
	lm.stopAll()

	done := make(chan struct{})
	go func() {
		lm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lm *LifecycleManager) lookup(ctx context.Context, serverName string) (config.ServerDefinition, error) {
	if err := ctx.Err(); err != nil {
		return config.ServerDefinition{}, err
	}
	def, ok := lm.servers.GetByName(serverName)
	if !ok {
		return config.ServerDefinition{}, fmt.Errorf("%w: %s", ErrUnknownServer, serverName)
	}
	return def, nil
}

// launch records a pending job and registers its cancel func.
func (lm *LifecycleManager) launch(op jobs.Operation, serverName string) (context.Context, *jobs.ServerJob, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.closed {
		return nil, nil, ErrShuttingDown
	}

	job := jobs.New(op, serverName, lm.now())
	if err := lm.store.Create(job); err != nil {
		return nil, nil, fmt.Errorf("failed to create job: %w", err)
	}

	ctx, cancel := context.WithCancel(lm.baseCtx)
	lm.cancels[job.ID] = cancel
	lm.wg.Add(1)
	return ctx, job, nil
}

// runJob executes body and guarantees the job ends in a terminal state.
func (lm *LifecycleManager) runJob(job *jobs.ServerJob, body func() error) {
	defer lm.wg.Done()
	defer lm.release(job.ID)

	defer func() {
		if r := recover(); r != nil {
			lm.logger.Error("job panicked", "server", job.ServerName, "job", job.ID, "panic", r)
			if job.Operation == jobs.OperationStart {
				lm.releaseSession(job.ServerName, job.ID)
			}
			lm.fail(job, fmt.Errorf("internal error: %v", r))
		}
	}()

	// body cleans up its own external resources before returning an error
	if err := body(); err != nil {
		if errors.Is(err, errJobCancelled) && lm.baseCtx.Err() != nil {
			err = ErrShuttingDown
		}
		lm.fail(job, err)
	}
}

func (lm *LifecycleManager) release(jobID string) {
	lm.mu.Lock()
	cancel := lm.cancels[jobID]
	delete(lm.cancels, jobID)
	lm.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// fail records err on the job. A job that is already terminal keeps its first error.
// A job that never left pending passes through running first.
func (lm *LifecycleManager) fail(job *jobs.ServerJob, err error) {
	_, updateErr := lm.store.Update(job.ID, func(j *jobs.ServerJob) error {
		if j.Status != jobs.StatusPending {
			return errNotPending
		}
		j.Status = jobs.StatusRunning
		return nil
	})
	if updateErr != nil && !errors.Is(updateErr, errNotPending) && !errors.Is(updateErr, jobs.ErrJobFinalized) {
		lm.logger.Error("failed to record job failure", "job", job.ID, "error", updateErr)
	}

	_, updateErr = lm.store.Update(job.ID, func(j *jobs.ServerJob) error {
		j.Fail(err.Error(), lm.now())
		return nil
	})
	switch {
	case updateErr == nil:
		lm.logger.Warn("job failed", "server", job.ServerName, "job", job.ID, "operation", job.Operation, "error", err)
	case errors.Is(updateErr, jobs.ErrJobFinalized):
	default:
		lm.logger.Error("failed to record job failure", "job", job.ID, "error", updateErr)
	}
	lm.status.Invalidate(job.ServerName)
}

// releaseSession destroys the server's session on behalf of a failing start job.
// It is a no-op once the job was finalized elsewhere or another start job owns the server.
func (lm *LifecycleManager) releaseSession(serverName, jobID string) {
	unlock := lm.locks.Lock(serverName)
	defer unlock()

	job, err := lm.store.Get(jobID)
	if err != nil || job.Status.Terminal() {
		return
	}
	if owner, ok := lm.store.ActiveForServer(serverName); ok && owner.ID != jobID && owner.Operation == jobs.OperationStart {
		return
	}
	lm.cleanupSession(serverName)
}

func (lm *LifecycleManager) cleanupSession(serverName string) {
	session := lm.SessionName(serverName)
	if err := lm.mux.DestroySession(session); err != nil {
		lm.logger.Debug("session cleanup failed", "server", serverName, "session", session, "error", err)
	}
}

// advance moves the job to a new stage. It fails with errJobCancelled once the
// job was cancelled or already finalized by someone else.
func (lm *LifecycleManager) advance(ctx context.Context, jobID string, progress int, message string) error {
	if ctx.Err() != nil {
		return errJobCancelled
	}
	_, err := lm.store.Update(jobID, func(j *jobs.ServerJob) error {
		j.Status = jobs.StatusRunning
		j.Advance(progress, message)
		return nil
	})
	if errors.Is(err, jobs.ErrJobFinalized) {
		return errJobCancelled
	}
	return err
}

// active reports whether the job may keep running.
func (lm *LifecycleManager) active(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return false
	}
	job, err := lm.store.Get(jobID)
	return err == nil && job.Status.Active()
}

// waitFor polls check every poll interval until it holds or timeout passes.
// Cancellation is observed on every tick.
func (lm *LifecycleManager) waitFor(ctx context.Context, jobID string, timeout time.Duration, check func() bool) (bool, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(lm.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if check() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, errJobCancelled
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
		if !lm.active(ctx, jobID) {
			return false, errJobCancelled
		}
	}
}

// sleep waits for d unless ctx is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errJobCancelled
	case <-timer.C:
		return nil
	}
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
