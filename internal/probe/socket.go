package probe

import (
	"context"
	"syscall"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/logging"
	"github.com/shirou/gopsutil/v3/net"
)

// SocketTable answers questions about locally bound ports.
type SocketTable struct {
	timeout time.Duration
}

func NewSocketTable(timeout time.Duration) *SocketTable {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SocketTable{timeout: timeout}
}

// IsPortBound reports whether a TCP listener or an unconnected UDP socket owns port.
func (st *SocketTable) IsPortBound(port int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
	defer cancel()

	conns, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		logging.Component("probe").Debug("socket scan failed", "port", port, "error", err)
		return false
	}
	for _, c := range conns {
		if int(c.Laddr.Port) == port && isBound(c) {
			return true
		}
	}
	return false
}

// BoundPortForPID returns the lowest port pid is listening on.
func (st *SocketTable) BoundPortForPID(pid int) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), st.timeout)
	defer cancel()

	conns, err := net.ConnectionsPidWithContext(ctx, "inet", int32(pid))
	if err != nil {
		logging.Component("probe").Debug("socket scan failed", "pid", pid, "error", err)
		return 0, false
	}
	return lowestBoundPort(conns)
}

func lowestBoundPort(conns []net.ConnectionStat) (int, bool) {
	best := 0
	for _, c := range conns {
		if !isBound(c) || c.Laddr.Port == 0 {
			continue
		}
		port := int(c.Laddr.Port)
		if best == 0 || port < best {
			best = port
		}
	}
	return best, best != 0
}

func isBound(c net.ConnectionStat) bool {
	if c.Type == syscall.SOCK_DGRAM {
		return c.Raddr.Port == 0
	}
	return c.Status == "LISTEN"
}
