// Package ports assigns network port triplets to configured game servers.
package ports

import (
	"slices"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
)

// Triplet is the set of ports one server instance listens on.
type Triplet struct {
	DefaultPort int `json:"default_port"`
	UDPPort     int `json:"udp_port"`
	RCONPort    int `json:"rcon_port"`
}

// Checker reports whether a local port currently has a listener.
type Checker interface {
	IsPortBound(port int) bool
}

// Allocator hands out port triplets. It holds no state between calls; the result
// depends only on the server list and what is bound right now.
type Allocator struct {
	base      Triplet
	increment int
	checker   Checker
}

// NewAllocator builds an allocator from the ports config section.
func NewAllocator(cfg config.PortsConfig, checker Checker) *Allocator {
	return &Allocator{
		base: Triplet{
			DefaultPort: cfg.DefaultPort,
			UDPPort:     cfg.UDPPort,
			RCONPort:    cfg.RCONPort,
		},
		increment: cfg.Increment,
		checker:   checker,
	}
}

// Default returns the base triplet.
func (a *Allocator) Default() Triplet {
	return a.base
}

// Allocate returns the triplet for serverName. The defaults win whenever all
// three are free; otherwise the ports are offset by the name's first index in allServers.
func (a *Allocator) Allocate(serverName string, allServers []string) Triplet {
	if a.defaultsFree() {
		return a.base
	}

	index := slices.Index(allServers, serverName)
	if index < 0 {
		return a.base
	}
	return a.Offset(index)
}

// Offset returns the base triplet shifted by index increments.
func (a *Allocator) Offset(index int) Triplet {
	shift := index * a.increment
	return Triplet{
		DefaultPort: a.base.DefaultPort + shift,
		UDPPort:     a.base.UDPPort + shift,
		RCONPort:    a.base.RCONPort + shift,
	}
}

func (a *Allocator) defaultsFree() bool {
	if a.checker == nil {
		return true
	}
	for _, port := range []int{a.base.DefaultPort, a.base.UDPPort, a.base.RCONPort} {
		if a.checker.IsPortBound(port) {
			return false
		}
	}
	return true
}
