package ingest

import "sync"

// Coordinator serializes whole-corpus operations against per-statement
// ingestion. Statement ingestion takes the shared side so independent files
// can process concurrently; duplicate reanalysis takes the exclusive side
// because it reads and rewrites transactions across every statement.
type Coordinator struct {
	mu sync.RWMutex
}

// NewCoordinator creates a coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Shared runs fn while holding the shared lock.
func (c *Coordinator) Shared(fn func() error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn()
}

// Exclusive runs fn while holding the exclusive lock, blocking until all
// in-flight shared work completes.
func (c *Coordinator) Exclusive(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}
