package server

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type fakeMux struct {
	mu       sync.Mutex
	sessions map[string]bool
	sent     map[string][]string
	created  int
	onSend   func(session, command string)
}

func newFakeMux() *fakeMux {
	return &fakeMux{sessions: map[string]bool{}, sent: map[string][]string{}}
}

func (m *fakeMux) SessionExists(session string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[session]
}

func (m *fakeMux) CreateSession(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[session] {
		return fmt.Errorf("duplicate session: %s", session)
	}
	m.sessions[session] = true
	m.created++
	return nil
}

func (m *fakeMux) DestroySession(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
	return nil
}

func (m *fakeMux) SendKeys(session, command string) error {
	m.mu.Lock()
	if !m.sessions[session] {
		m.mu.Unlock()
		return fmt.Errorf("can't find session: %s", session)
	}
	m.sent[session] = append(m.sent[session], command)
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(session, command)
	}
	return nil
}

func (m *fakeMux) addSession(session string) {
	m.mu.Lock()
	m.sessions[session] = true
	m.mu.Unlock()
}

func (m *fakeMux) commands(session string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[session]...)
}

func (m *fakeMux) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

type fakeProcs struct {
	mu          sync.Mutex
	pids        map[string]int
	uptime      time.Duration
	terminated  []int
	onTerminate func(pid int)
	onFind      func(serverName string)
	findCalls   int
	panicOnFind bool
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{pids: map[string]int{}, uptime: 90 * time.Second}
}

func (p *fakeProcs) FindPID(serverName string) (int, bool) {
	p.mu.Lock()
	p.findCalls++
	hook := p.onFind
	p.mu.Unlock()
	if hook != nil {
		hook(serverName)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnFind {
		panic("process table exploded")
	}
	pid, ok := p.pids[serverName]
	return pid, ok
}

func (p *fakeProcs) Uptime(pid int) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, known := range p.pids {
		if known == pid {
			return p.uptime, true
		}
	}
	return 0, false
}

func (p *fakeProcs) Terminate(pid int) error {
	p.mu.Lock()
	p.terminated = append(p.terminated, pid)
	hook := p.onTerminate
	p.mu.Unlock()

	if hook != nil {
		hook(pid)
	}
	return nil
}

func (p *fakeProcs) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findCalls
}

func (p *fakeProcs) set(serverName string, pid int) {
	p.mu.Lock()
	p.pids[serverName] = pid
	p.mu.Unlock()
}

func (p *fakeProcs) kill(serverName string) {
	p.mu.Lock()
	delete(p.pids, serverName)
	p.mu.Unlock()
}

func (p *fakeProcs) killPID(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, known := range p.pids {
		if known == pid {
			delete(p.pids, name)
		}
	}
}

func (p *fakeProcs) terminatedPIDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.terminated...)
}

type fakeSockets struct {
	mu       sync.Mutex
	bound    map[int]bool
	pidPorts map[int]int
}

func newFakeSockets() *fakeSockets {
	return &fakeSockets{bound: map[int]bool{}, pidPorts: map[int]int{}}
}

func (s *fakeSockets) IsPortBound(port int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound[port]
}

func (s *fakeSockets) BoundPortForPID(pid int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	port, ok := s.pidPorts[pid]
	return port, ok
}

func (s *fakeSockets) bind(pid int, ports ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, port := range ports {
		s.bound[port] = true
		if existing, ok := s.pidPorts[pid]; !ok || port < existing {
			s.pidPorts[pid] = port
		}
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	started []string
	stopped []string
	err     error
}

func (n *recordingNotifier) OnServerStarted(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, name)
	return n.err
}

func (n *recordingNotifier) OnServerStopped(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, name)
	return n.err
}

func (n *recordingNotifier) snapshot() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.started...), append([]string(nil), n.stopped...)
}

// launchedPort extracts the value following "-port " from a launch command.
func launchedPort(command string) string {
	fields := strings.Fields(command)
	for i, f := range fields {
		if f == "-port" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
