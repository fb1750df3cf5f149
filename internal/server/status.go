package server

import (
	"context"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
	"golang.org/x/sync/errgroup"
)

// State is the coarse run state reported for a server.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ServerStatus is the derived view of one server. It is never stored, only cached.
type ServerStatus struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	PID         *int          `json:"pid,omitempty"`
	TmuxSession string        `json:"tmux_session,omitempty"`
	Uptime      string        `json:"uptime,omitempty"`
	Ports       ports.Triplet `json:"ports"`
	ActualPort  *int          `json:"actual_port,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
}

func (s ServerStatus) clone() ServerStatus {
	out := s
	if s.PID != nil {
		v := *s.PID
		out.PID = &v
	}
	if s.ActualPort != nil {
		v := *s.ActualPort
		out.ActualPort = &v
	}
	if s.StartedAt != nil {
		v := *s.StartedAt
		out.StartedAt = &v
	}
	return out
}

// StatusResolver combines probes and active jobs into a ServerStatus.
type StatusResolver struct {
	mux         Multiplexer
	procs       ProcessTable
	sockets     SocketTable
	store       jobs.Store
	allocator   *ports.Allocator
	lister      ServerLister
	cache       *StatusCache
	sessionName func(string) string
	now         func() time.Time
}

func NewStatusResolver(mux Multiplexer, procs ProcessTable, sockets SocketTable, store jobs.Store,
	allocator *ports.Allocator, lister ServerLister, cache *StatusCache, sessionName func(string) string) *StatusResolver {
	return &StatusResolver{
		mux:         mux,
		procs:       procs,
		sockets:     sockets,
		store:       store,
		allocator:   allocator,
		lister:      lister,
		cache:       cache,
		sessionName: sessionName,
		now:         time.Now,
	}
}

// GetStatus returns the cached status or resolves a fresh one.
func (r *StatusResolver) GetStatus(name string) ServerStatus {
	if status, ok := r.cache.Get(name); ok {
		return status
	}

	status := r.Detect(name, "")
	r.cache.Set(name, status)
	return status
}

// GetAllStatuses resolves every configured server concurrently, keeping config order.
func (r *StatusResolver) GetAllStatuses(ctx context.Context) ([]ServerStatus, error) {
	names := r.lister.ListConfiguredServers()
	result := make([]ServerStatus, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result[i] = r.GetStatus(name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Invalidate forces the next GetStatus for name to probe again.
func (r *StatusResolver) Invalidate(name string) {
	r.cache.Invalidate(name)
}

// Detect resolves status without the cache. An active job other than excludeJobID
// decides the state; probes decide it otherwise.
func (r *StatusResolver) Detect(name, excludeJobID string) ServerStatus {
	status, pid := r.probe(name)

	if job := r.activeJobExcluding(name, excludeJobID); job != nil {
		switch job.Operation {
		case jobs.OperationStart:
			status.State = StateStarting
		case jobs.OperationStop:
			status.State = StateStopping
		}
	}

	if status.State == StateRunning {
		if port, ok := r.sockets.BoundPortForPID(pid); ok {
			status.ActualPort = &port
		}
		if uptime, ok := r.procs.Uptime(pid); ok {
			uptime = uptime.Truncate(time.Second)
			started := r.now().Add(-uptime).Truncate(time.Second)
			status.Uptime = uptime.String()
			status.StartedAt = &started
		}
	}

	return status
}

// probe reads session and process state only.
func (r *StatusResolver) probe(name string) (ServerStatus, int) {
	status := ServerStatus{
		Name:  name,
		State: StateStopped,
		Ports: r.allocator.Allocate(name, r.lister.ListConfiguredServers()),
	}

	session := r.sessionName(name)
	if r.mux.SessionExists(session) {
		status.TmuxSession = session
	}

	pid, found := r.procs.FindPID(name)
	if found {
		status.State = StateRunning
		status.PID = &pid
	}
	return status, pid
}

func (r *StatusResolver) activeJobExcluding(name, excludeJobID string) *jobs.ServerJob {
	job, ok := r.store.ActiveForServer(name)
	if !ok {
		return nil
	}
	if job.ID != excludeJobID {
		return job
	}
	for _, other := range r.store.List() {
		if other.ServerName == name && other.ID != excludeJobID && other.Status.Active() {
			return other
		}
	}
	return nil
}
