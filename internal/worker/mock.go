package worker

import (
	"context"
	"fmt"
	"sync"
)

// MockDriver is an in-memory Driver for tests. It records calls and can be
// told to fail starts or stops.
type MockDriver struct {
	mu sync.Mutex

	// StartErr, when set, makes every Start fail.
	StartErr error
	// StopErr, when set, makes Stop fail for workers that still exist.
	StopErr error

	alive      map[string]bool
	startCalls int
	stopCalls  map[string]int
}

// NewMockDriver creates an empty mock driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		alive:     make(map[string]bool),
		stopCalls: make(map[string]int),
	}
}

// Start returns a synthetic worker ref, or StartErr when configured.
func (m *MockDriver) Start(_ context.Context, sessionID string, port int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.StartErr != nil {
		return "", fmt.Errorf("mock start %s: %w", sessionID, m.StartErr)
	}
	ref := fmt.Sprintf("ctr-%s-%d", sessionID, port)
	m.alive[ref] = true
	return ref, nil
}

// Alive reports the recorded liveness for ref.
func (m *MockDriver) Alive(_ context.Context, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive[ref]
}

// Stop removes the worker. Stopping an unknown ref succeeds, matching the
// docker driver's already-gone tolerance.
func (m *MockDriver) Stop(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls[ref]++
	if _, ok := m.alive[ref]; !ok {
		return nil
	}
	if m.StopErr != nil {
		return fmt.Errorf("mock stop %s: %w", ref, m.StopErr)
	}
	delete(m.alive, ref)
	return nil
}

// Kill marks a worker dead without a Stop call, simulating a crash.
func (m *MockDriver) Kill(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive[ref] = false
}

// StartCalls returns how many Start calls were made.
func (m *MockDriver) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

// StopCalls returns how many Stop calls were made for ref.
func (m *MockDriver) StopCalls(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls[ref]
}

// Running returns the number of workers currently alive.
func (m *MockDriver) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, up := range m.alive {
		if up {
			n++
		}
	}
	return n
}
