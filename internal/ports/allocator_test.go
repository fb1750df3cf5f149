package ports

import (
	"testing"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
	"github.com/stretchr/testify/assert"
)

type boundSet map[int]bool

func (b boundSet) IsPortBound(port int) bool { return b[port] }

func testPorts() config.PortsConfig {
	return config.Default().Ports
}

func TestAllocateReturnsDefaultsWhenFree(t *testing.T) {
	alloc := NewAllocator(testPorts(), boundSet{})

	for _, name := range []string{"a", "b", "unknown"} {
		got := alloc.Allocate(name, []string{"a", "b"})
		assert.Equal(t, Triplet{DefaultPort: 16261, UDPPort: 16262, RCONPort: 27015}, got, name)
	}
}

func TestAllocateOffsetsByIndexWhenDefaultsBusy(t *testing.T) {
	alloc := NewAllocator(testPorts(), boundSet{16261: true})
	servers := []string{"a", "b"}

	assert.Equal(t, Triplet{DefaultPort: 16261, UDPPort: 16262, RCONPort: 27015}, alloc.Allocate("a", servers))
	assert.Equal(t, Triplet{DefaultPort: 16271, UDPPort: 16272, RCONPort: 27025}, alloc.Allocate("b", servers))
}

func TestAllocateAnyBusyDefaultTriggersOffsets(t *testing.T) {
	for _, port := range []int{16261, 16262, 27015} {
		alloc := NewAllocator(testPorts(), boundSet{port: true})
		got := alloc.Allocate("c", []string{"a", "b", "c"})
		assert.Equal(t, 16281, got.DefaultPort, "busy port %d", port)
		assert.Equal(t, 27035, got.RCONPort, "busy port %d", port)
	}
}

func TestAllocateUnknownNameFallsBackToDefaults(t *testing.T) {
	alloc := NewAllocator(testPorts(), boundSet{16261: true})
	assert.Equal(t, alloc.Default(), alloc.Allocate("ghost", []string{"a", "b"}))
}

func TestAllocateUsesFirstIndexForDuplicates(t *testing.T) {
	alloc := NewAllocator(testPorts(), boundSet{27015: true})
	got := alloc.Allocate("b", []string{"a", "b", "b"})
	assert.Equal(t, 16271, got.DefaultPort)
}

func TestAllocateIsDeterministic(t *testing.T) {
	alloc := NewAllocator(testPorts(), boundSet{16262: true})
	servers := []string{"x", "y", "z"}
	first := alloc.Allocate("z", servers)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, alloc.Allocate("z", servers))
	}
}

func TestAllocateNilCheckerTreatsPortsAsFree(t *testing.T) {
	alloc := NewAllocator(testPorts(), nil)
	assert.Equal(t, alloc.Default(), alloc.Allocate("b", []string{"a", "b"}))
}

func TestOffsetsDoNotOverlap(t *testing.T) {
	alloc := NewAllocator(testPorts(), nil)
	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		tr := alloc.Offset(i)
		for _, p := range []int{tr.DefaultPort, tr.UDPPort, tr.RCONPort} {
			assert.False(t, seen[p], "port %d reused", p)
			seen[p] = true
		}
	}
}
