// Package probe reads the host process and socket tables. Every query runs under
// its own timeout and degrades to a negative answer when the OS lookup fails.
package probe

import (
	"context"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/shirou/gopsutil/v3/process"
)

const defaultTimeout = 2 * time.Second

// ProcessTable finds game server processes by their command line.
type ProcessTable struct {
	signature string
	nameFlag  string
	timeout   time.Duration
}

// NewProcessTable matches processes whose command line contains signature and
// passes the server name with nameFlag (for example "-servername alpha").
func NewProcessTable(signature, nameFlag string, timeout time.Duration) *ProcessTable {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ProcessTable{signature: signature, nameFlag: nameFlag, timeout: timeout}
}

// FindPID returns the lowest PID whose command line belongs to serverName.
func (pt *ProcessTable) FindPID(serverName string) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), pt.timeout)
	defer cancel()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		logging.Component("probe").Debug("process scan failed", "error", err)
		return 0, false
	}

	self := int32(os.Getpid())
	found := int32(0)
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) == 0 {
			continue
		}
		if !MatchCommandLine(args, pt.signature, pt.nameFlag, serverName) {
			continue
		}
		if found == 0 || p.Pid < found {
			found = p.Pid
		}
	}

	if found == 0 {
		return 0, false
	}
	return int(found), true
}

// Uptime returns how long pid has been running.
func (pt *ProcessTable) Uptime(pid int) (time.Duration, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), pt.timeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, false
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil || created <= 0 {
		return 0, false
	}

	uptime := time.Since(time.UnixMilli(created))
	if uptime < 0 {
		uptime = 0
	}
	return uptime, true
}

// Terminate sends SIGTERM to pid.
func (pt *ProcessTable) Terminate(pid int) error {
	ctx, cancel := context.WithTimeout(context.Background(), pt.timeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.SendSignalWithContext(ctx, syscall.SIGTERM)
}

// MatchCommandLine reports whether args contains the signature and names serverName
// either as "<flag> <name>" or "<flag>=<name>".
func MatchCommandLine(args []string, signature, nameFlag, serverName string) bool {
	if serverName == "" {
		return false
	}

	hasSignature := signature == ""
	hasName := false
	for i, arg := range args {
		if !hasSignature && strings.Contains(arg, signature) {
			hasSignature = true
		}
		if nameFlag == "" {
			continue
		}
		if arg == nameFlag && i+1 < len(args) && args[i+1] == serverName {
			hasName = true
		}
		if arg == nameFlag+"="+serverName {
			hasName = true
		}
	}
	return hasSignature && hasName
}

// ResourceUsage is a point-in-time reading of a process's resource counters.
type ResourceUsage struct {
	CPUSeconds float64
	RSSBytes   uint64
	Threads    int32
}

// Usage reads the cumulative CPU time, resident memory and thread count of pid.
func (pt *ProcessTable) Usage(pid int) (ResourceUsage, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), pt.timeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ResourceUsage{}, false
	}

	var usage ResourceUsage
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return ResourceUsage{}, false
	}
	usage.CPUSeconds = times.User + times.System

	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		usage.RSSBytes = mem.RSS
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		usage.Threads = threads
	}
	return usage, true
}
