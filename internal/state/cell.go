// Package state holds the single shared sensor cell every periodic unit
// reads from. Access is copy-in/copy-out under one mutex; the critical
// section never does I/O, so the wait for the lock stays bounded.
package state

import (
	"sync"

	"github.com/luki/smartplant/internal/sensor"
)

// Snapshot is a point-in-time copy of the cell.
type Snapshot struct {
	Reading sensor.Reading
	Valid   bool
}

// Reader is implemented by anything that can hand out snapshots.
type Reader interface {
	Snapshot() Snapshot
}

// Cell stores the latest reading and whether it is trustworthy.
// The zero value is ready to use and reports Valid=false.
type Cell struct {
	mu     sync.Mutex
	latest sensor.Reading
	valid  bool
}

// New returns an empty, invalid cell.
func New() *Cell {
	return &Cell{}
}

// Publish replaces the latest reading and marks it valid.
func (c *Cell) Publish(r sensor.Reading) {
	c.mu.Lock()
	c.latest = r
	c.valid = true
	c.mu.Unlock()
}

// Invalidate marks the current reading stale. The payload is kept but
// readers must not treat it as current.
func (c *Cell) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// Snapshot returns a copy of the cell.
func (c *Cell) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{Reading: c.latest, Valid: c.valid}
	c.mu.Unlock()
	return s
}
