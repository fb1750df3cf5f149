package server

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	lm       *LifecycleManager
	mux      *fakeMux
	procs    *fakeProcs
	sockets  *fakeSockets
	store    jobs.Store
	notifier *recordingNotifier
}

func testLifecycleConfig() config.LifecycleConfig {
	cfg := config.Default().Lifecycle
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SpawnTimeout = 150 * time.Millisecond
	cfg.BindTimeout = 150 * time.Millisecond
	cfg.StopTimeout = 100 * time.Millisecond
	cfg.SaveGrace = time.Millisecond
	cfg.KillGrace = time.Millisecond
	cfg.StatusTTL = time.Hour
	cfg.ExpectedFiles = nil
	return cfg
}

func newHarness(t *testing.T, store jobs.Store, servers ...string) *harness {
	t.Helper()
	if store == nil {
		store = jobs.NewMemoryStore()
	}

	defs := make([]config.ServerDefinition, 0, len(servers))
	for _, name := range servers {
		defs = append(defs, config.ServerDefinition{Name: name})
	}

	h := &harness{
		mux:      newFakeMux(),
		procs:    newFakeProcs(),
		sockets:  newFakeSockets(),
		store:    store,
		notifier: &recordingNotifier{},
	}
	h.lm = NewLifecycleManager(Dependencies{
		Config:      testLifecycleConfig(),
		ServersRoot: t.TempDir(),
		Servers:     config.NewStaticServerManager(defs),
		Mux:         h.mux,
		Processes:   h.procs,
		Sockets:     h.sockets,
		Allocator:   ports.NewAllocator(config.Default().Ports, h.sockets),
		Store:       store,
		Notifier:    h.notifier,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.lm.Shutdown(ctx)
	})
	return h
}

// bootOnLaunch makes the fake server come up as soon as its launch command is typed.
func (h *harness) bootOnLaunch(pids map[string]int, bindPort bool) {
	h.mux.mu.Lock()
	defer h.mux.mu.Unlock()
	h.mux.onSend = func(session, command string) {
		for name, pid := range pids {
			if session != h.lm.SessionName(name) || !strings.Contains(command, "start-server.sh") {
				continue
			}
			h.procs.set(name, pid)
			if bindPort {
				if port, err := parsePort(launchedPort(command)); err == nil {
					h.sockets.bind(pid, port)
				}
			}
		}
	}
}

func parsePort(s string) (int, error) {
	return strconv.Atoi(s)
}

func (h *harness) waitTerminal(t *testing.T, jobID string) *jobs.ServerJob {
	t.Helper()
	var job *jobs.ServerJob
	require.Eventually(t, func() bool {
		j, err := h.lm.GetJob(jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond)
	return job
}

func (h *harness) waitProgress(t *testing.T, jobID string, progress int) {
	t.Helper()
	require.Eventually(t, func() bool {
		j, err := h.lm.GetJob(jobID)
		return err == nil && j.Status == jobs.StatusRunning && j.Progress >= progress
	}, 3*time.Second, 5*time.Millisecond)
}

func TestStartCompletesAndReportsRunning(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.bootOnLaunch(map[string]int{"alpha": 4242}, true)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jobID, "start-"))

	job := h.waitTerminal(t, jobID)
	require.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Result)
	assert.Equal(t, 4242, job.Result.PID)
	assert.Equal(t, "gs-alpha", job.Result.Session)

	status, err := h.lm.GetStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	require.NotNil(t, status.PID)
	assert.Equal(t, 4242, *status.PID)
	assert.Equal(t, "gs-alpha", status.TmuxSession)
	require.NotNil(t, status.ActualPort)
	assert.Equal(t, 16261, *status.ActualPort)
	assert.Equal(t, "1m30s", status.Uptime)
	assert.NotNil(t, status.StartedAt)

	assert.Eventually(t, func() bool {
		started, _ := h.notifier.snapshot()
		return len(started) == 1 && started[0] == "alpha"
	}, time.Second, 5*time.Millisecond)

	cmds := h.mux.commands("gs-alpha")
	require.Len(t, cmds, 1)
	assert.True(t, strings.HasPrefix(cmds[0], "cd '"), cmds[0])
	assert.Contains(t, cmds[0], "-servername alpha")
}

func TestStartWhenAlreadyRunningHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 77)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "already running")
	assert.Equal(t, 0, h.mux.createdCount())
	assert.Empty(t, h.mux.commands("gs-alpha"))
}

func TestStartSpawnTimeoutDestroysSession(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 80 * time.Millisecond})
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "failed to start within")
	assert.Contains(t, job.Error, "80ms")
	assert.Equal(t, 60, job.Progress)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.CompletedAt)

	assert.Equal(t, 1, h.mux.createdCount())
	assert.False(t, h.mux.SessionExists("gs-alpha"))
}

func TestStartBindTimeout(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.bootOnLaunch(map[string]int{"alpha": 900}, false)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "started (pid 900) but did not bind port 16261 within")
	assert.Equal(t, 80, job.Progress)
	assert.False(t, h.mux.SessionExists("gs-alpha"))
}

func TestStartReplacesStaleSession(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.mux.addSession("gs-alpha")
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
	assert.Equal(t, 1, h.mux.createdCount())
}

func TestStartPassesExtraArgs(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{ExtraArgs: []string{"-debug", "it's"}})
	require.NoError(t, err)
	h.waitTerminal(t, jobID)

	cmds := h.mux.commands("gs-alpha")
	require.NotEmpty(t, cmds)
	assert.True(t, strings.HasSuffix(cmds[0], `'-debug' 'it'"'"'s'`), cmds[0])
}

func TestStartJobTransitionsAreOrdered(t *testing.T) {
	var mu sync.Mutex
	var history []*jobs.ServerJob
	store := jobs.NewPublishingStore(jobs.NewMemoryStore(), func(job *jobs.ServerJob) {
		mu.Lock()
		history = append(history, job)
		mu.Unlock()
	})

	h := newHarness(t, store, "alpha")
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)
	h.waitTerminal(t, jobID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(history) > 0 && history[len(history)-1].Status == jobs.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, jobs.StatusPending, history[0].Status)
	assert.Equal(t, jobs.StatusCompleted, history[len(history)-1].Status)

	last := -1
	sawRunning := false
	for i, snap := range history {
		assert.GreaterOrEqual(t, snap.Progress, last, "snapshot %d", i)
		last = snap.Progress
		if snap.Status == jobs.StatusRunning {
			sawRunning = true
		}
		assert.Equal(t, snap.Status.Terminal(), snap.CompletedAt != nil, "snapshot %d", i)
		assert.Equal(t, snap.Status == jobs.StatusCompleted, snap.Progress == 100, "snapshot %d", i)
	}
	assert.True(t, sawRunning)
}

func TestConcurrentStartsHaveOneWinner(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	ids := make([]string, 2)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	completed, failed := 0, 0
	for _, id := range ids {
		job := h.waitTerminal(t, id)
		switch job.Status {
		case jobs.StatusCompleted:
			completed++
		case jobs.StatusFailed:
			failed++
			assert.Contains(t, job.Error, "already")
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, h.mux.createdCount())
}

func TestSecondServerGetsOffsetPorts(t *testing.T) {
	h := newHarness(t, nil, "a", "b")
	h.bootOnLaunch(map[string]int{"a": 100, "b": 200}, true)

	first, err := h.lm.Start(context.Background(), "a", StartOptions{})
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, h.waitTerminal(t, first).Status)

	second, err := h.lm.Start(context.Background(), "b", StartOptions{})
	require.NoError(t, err)
	job := h.waitTerminal(t, second)
	require.Equal(t, jobs.StatusCompleted, job.Status, job.Error)

	assert.Equal(t, "16261", launchedPort(h.mux.commands("gs-a")[0]))
	assert.Equal(t, "16271", launchedPort(h.mux.commands("gs-b")[0]))

	status, err := h.lm.GetStatus("b")
	require.NoError(t, err)
	assert.Equal(t, ports.Triplet{DefaultPort: 16271, UDPPort: 16272, RCONPort: 27025}, status.Ports)
}

func TestAbortRunningStart(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, jobID, 60)
	require.True(t, h.mux.SessionExists("gs-alpha"))

	assert.True(t, h.lm.Abort(jobID))

	job, err := h.lm.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "start aborted by user", job.Error)
	assert.Equal(t, 60, job.Progress)
	assert.False(t, h.mux.SessionExists("gs-alpha"))

	// the orchestrator wakes on the next tick and leaves the job untouched
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.lm.Shutdown(ctx))

	job, err = h.lm.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, "start aborted by user", job.Error)
	assert.False(t, h.lm.Abort(jobID))
}

func TestAbortStopsPollingWithinOnePollInterval(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	poll := 20 * time.Millisecond
	h.lm.cfg.PollInterval = poll

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, jobID, 60)
	require.Eventually(t, func() bool { return h.procs.calls() > 0 }, time.Second, time.Millisecond)

	require.True(t, h.lm.Abort(jobID))
	time.Sleep(2 * poll)

	// the orchestrator goroutine is already gone, so shutdown has nothing to wait for
	ctx, cancel := context.WithTimeout(context.Background(), poll)
	defer cancel()
	require.NoError(t, h.lm.Shutdown(ctx))

	finds := h.procs.calls()
	sent := len(h.mux.commands("gs-alpha"))
	time.Sleep(5 * poll)
	assert.Equal(t, finds, h.procs.calls())
	assert.Len(t, h.mux.commands("gs-alpha"), sent)
}

func TestAbortedStartLeavesNextSessionAlone(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	first, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, first, 60)

	// hold the next spawn-wait probe of the first job
	var findCount atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	h.procs.mu.Lock()
	h.procs.onFind = func(string) {
		if findCount.Add(1) == 1 {
			close(entered)
			<-release
		}
	}
	h.procs.mu.Unlock()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("first start never reached the spawn wait")
	}
	require.True(t, h.lm.Abort(first))

	second, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, second, 60)
	require.True(t, h.mux.SessionExists("gs-alpha"))

	// the aborted job wakes from its probe and must not touch the new session
	close(release)
	assert.Never(t, func() bool { return !h.mux.SessionExists("gs-alpha") }, 100*time.Millisecond, 5*time.Millisecond)

	job, err := h.lm.GetJob(second)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, job.Status)
	job, err = h.lm.GetJob(first)
	require.NoError(t, err)
	assert.Equal(t, "start aborted by user", job.Error)
}

func TestAbortIgnoresNonRunningJobs(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 5)
	h.mux.addSession("gs-alpha")
	h.procs.onTerminate = h.procs.killPID

	assert.False(t, h.lm.Abort("start-0-missing"))

	stopID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)
	assert.False(t, h.lm.Abort(stopID))
	assert.Equal(t, jobs.StatusCompleted, h.waitTerminal(t, stopID).Status)

	// a pending start job cannot be aborted either
	pending := jobs.New(jobs.OperationStart, "alpha", time.Now())
	require.NoError(t, h.store.Create(pending))
	assert.False(t, h.lm.Abort(pending.ID))
}

func TestStopWhenNotRunning(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	jobID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jobID, "stop-"))

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "not running")
}

func TestStopGraceful(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 31)
	h.mux.addSession("gs-alpha")
	h.mux.onSend = func(session, command string) {
		if command == "quit" {
			h.procs.kill("alpha")
		}
	}

	jobID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	require.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, []string{"save", "quit"}, h.mux.commands("gs-alpha"))
	assert.False(t, h.mux.SessionExists("gs-alpha"))
	assert.Empty(t, h.procs.terminatedPIDs())

	assert.Eventually(t, func() bool {
		_, stopped := h.notifier.snapshot()
		return len(stopped) == 1 && stopped[0] == "alpha"
	}, time.Second, 5*time.Millisecond)

	status, err := h.lm.GetStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, status.State)
}

func TestStopEscalatesToSignal(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 31)
	h.mux.addSession("gs-alpha")
	h.procs.onTerminate = h.procs.killPID

	jobID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	require.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
	assert.Equal(t, []int{31}, h.procs.terminatedPIDs())
	assert.False(t, h.mux.SessionExists("gs-alpha"))
}

func TestStopWithoutSessionSignalsProcess(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 31)
	h.procs.onTerminate = h.procs.killPID

	jobID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	require.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
	assert.Empty(t, h.mux.commands("gs-alpha"))
	assert.Equal(t, []int{31}, h.procs.terminatedPIDs())
}

func TestStopFailsWhenProcessSurvives(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 31)
	h.mux.addSession("gs-alpha")

	jobID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "did not stop within 100ms")
	assert.Equal(t, 80, job.Progress)
	assert.False(t, h.mux.SessionExists("gs-alpha"))
}

func TestStopDuringStartIsAllowed(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	startID, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, startID, 60)

	status := h.lm.status.Detect("alpha", "")
	assert.Equal(t, StateStarting, status.State)

	stopID, err := h.lm.Stop(context.Background(), "alpha")
	require.NoError(t, err)
	job := h.waitTerminal(t, stopID)
	assert.Equal(t, jobs.StatusCompleted, job.Status, job.Error)
}

func TestUnknownServer(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	_, err := h.lm.Start(context.Background(), "ghost", StartOptions{})
	assert.ErrorIs(t, err, ErrUnknownServer)
	_, err = h.lm.Stop(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownServer)
	_, err = h.lm.GetStatus("ghost")
	assert.ErrorIs(t, err, ErrUnknownServer)

	_, err = h.lm.GetJob("nope")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestShutdownFailsInFlightJobs(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{SpawnTimeout: 10 * time.Second})
	require.NoError(t, err)
	h.waitProgress(t, jobID, 60)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.lm.Shutdown(ctx))

	job, err := h.lm.GetJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, ErrShuttingDown.Error(), job.Error)
	assert.False(t, h.mux.SessionExists("gs-alpha"))

	_, err = h.lm.Start(context.Background(), "alpha", StartOptions{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdownRightAfterStartLeavesNoPendingJob(t *testing.T) {
	for i := 0; i < 20; i++ {
		var mu sync.Mutex
		var history []jobs.Status
		store := jobs.NewPublishingStore(jobs.NewMemoryStore(), func(job *jobs.ServerJob) {
			mu.Lock()
			history = append(history, job.Status)
			mu.Unlock()
		})
		h := newHarness(t, store, "alpha")

		jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, h.lm.Shutdown(ctx))
		cancel()

		job, err := h.lm.GetJob(jobID)
		require.NoError(t, err)
		require.Equal(t, jobs.StatusFailed, job.Status, "iteration %d", i)
		require.NotNil(t, job.CompletedAt, "iteration %d", i)
		assert.Equal(t, ErrShuttingDown.Error(), job.Error, "iteration %d", i)

		mu.Lock()
		require.GreaterOrEqual(t, len(history), 3, "iteration %d", i)
		assert.Equal(t, jobs.StatusPending, history[0], "iteration %d", i)
		assert.Equal(t, jobs.StatusRunning, history[len(history)-2], "iteration %d", i)
		assert.Equal(t, jobs.StatusFailed, history[len(history)-1], "iteration %d", i)
		mu.Unlock()
	}
}

func TestPanicInProbeFailsJob(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.panicOnFind = true

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)

	job := h.waitTerminal(t, jobID)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "internal error")

	// the per-server lock was released by the panicking goroutine
	h.procs.mu.Lock()
	h.procs.panicOnFind = false
	h.procs.mu.Unlock()
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	retry, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, h.waitTerminal(t, retry).Status)
}

func TestNotifierFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.notifier.err = assert.AnError
	h.bootOnLaunch(map[string]int{"alpha": 10}, true)

	jobID, err := h.lm.Start(context.Background(), "alpha", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, h.waitTerminal(t, jobID).Status)
}

func TestBuildLaunchCommand(t *testing.T) {
	cmd := buildLaunchCommand(
		"./start-server.sh -servername {name} -cachedir={dir} -port {port} -udpport {udp_port} -rcon {rcon_port}",
		"/srv/games/alpha", "alpha",
		ports.Triplet{DefaultPort: 1, UDPPort: 2, RCONPort: 3},
		[]string{"-nosteam"},
	)
	assert.Equal(t, "cd '/srv/games/alpha' && ./start-server.sh -servername alpha -cachedir=/srv/games/alpha -port 1 -udpport 2 -rcon 3 '-nosteam'", cmd)
}

func TestSafeSessionName(t *testing.T) {
	assert.Equal(t, "gs-alpha", SafeSessionName("gs-", "alpha"))
	assert.Equal(t, "gs-my-server-1", SafeSessionName("gs-", "my.server:1"))
	assert.Equal(t, "gameserver", SafeSessionName("", ""))
}
