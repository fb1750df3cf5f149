package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/probe"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/server"
)

// StatusSource lists the current status of every configured server.
type StatusSource interface {
	GetAllStatuses(ctx context.Context) ([]server.ServerStatus, error)
}

// UsageReader reads resource counters of a process.
type UsageReader interface {
	Usage(pid int) (probe.ResourceUsage, bool)
}

// Sample is the latest resource reading of a running server.
type Sample struct {
	Server     string    `json:"server"`
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	Threads    int32     `json:"threads"`
	Timestamp  time.Time `json:"timestamp"`
}

type cpuSample struct {
	pid       int
	timestamp time.Time
	cpuTime   float64
}

// Collector samples running servers on a fixed interval and keeps the latest reading of each.
type Collector struct {
	statuses StatusSource
	usage    UsageReader
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	latest     map[string]Sample
	cpuSamples map[string]cpuSample

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewCollector(statuses StatusSource, usage UsageReader, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		statuses:   statuses,
		usage:      usage,
		interval:   interval,
		logger:     logging.Component("metrics"),
		now:        time.Now,
		latest:     make(map[string]Sample),
		cpuSamples: make(map[string]cpuSample),
		stopCh:     make(chan struct{}),
	}
}

func (c *Collector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.CollectAll(context.Background())
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Latest returns the most recent sample of serverName, if it is running.
func (c *Collector) Latest(serverName string) (Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[serverName]
	return s, ok
}

// CollectAll samples every running server once. Servers that are no longer
// running lose their sample.
func (c *Collector) CollectAll(ctx context.Context) {
	statuses, err := c.statuses.GetAllStatuses(ctx)
	if err != nil {
		c.logger.Debug("status listing failed", "error", err)
		return
	}

	now := c.now()
	seen := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		if status.State != server.StateRunning || status.PID == nil {
			continue
		}
		pid := *status.PID
		usage, ok := c.usage.Usage(pid)
		if !ok {
			continue
		}
		seen[status.Name] = true
		c.record(status.Name, pid, usage, now)
	}

	c.mu.Lock()
	for name := range c.latest {
		if !seen[name] {
			delete(c.latest, name)
			delete(c.cpuSamples, name)
		}
	}
	c.mu.Unlock()
}

func (c *Collector) record(name string, pid int, usage probe.ResourceUsage, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sample := Sample{
		Server:    name,
		PID:       pid,
		RSSBytes:  usage.RSSBytes,
		Threads:   usage.Threads,
		Timestamp: now,
	}
	// CPU percent needs two readings of the same process.
	if prev, ok := c.cpuSamples[name]; ok && prev.pid == pid {
		if elapsed := now.Sub(prev.timestamp).Seconds(); elapsed > 0 && usage.CPUSeconds >= prev.cpuTime {
			sample.CPUPercent = (usage.CPUSeconds - prev.cpuTime) / elapsed * 100
		}
	}

	c.cpuSamples[name] = cpuSample{pid: pid, timestamp: now, cpuTime: usage.CPUSeconds}
	c.latest[name] = sample
}
