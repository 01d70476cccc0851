package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/pkg/metrics"
)

// State describes where the drain coordinator is in its lifecycle.
// Transitions are monotonic: Running, then Draining, then Closed.
type State int32

const (
	// StateRunning accepts and serves connections normally.
	StateRunning State = iota

	// StateDraining refuses new work and waits for in-flight
	// connections to finish before the deadline.
	StateDraining

	// StateClosed has no live connections left.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// drainCoordinator tracks every client connection across all listeners
// through the http.Server ConnState hook and coordinates the
// drain-then-force-close shutdown sequence.
type drainCoordinator struct {
	mu      sync.Mutex
	state   State
	conns   map[net.Conn]http.ConnState
	done    chan struct{} // closed when the last connection is gone
	metrics metrics.HTTPMetrics
}

func newDrainCoordinator(m metrics.HTTPMetrics) *drainCoordinator {
	return &drainCoordinator{
		state:   StateRunning,
		conns:   make(map[net.Conn]http.ConnState),
		done:    make(chan struct{}),
		metrics: m,
	}
}

// State returns the current lifecycle state.
func (d *drainCoordinator) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ConnCount returns the number of live connections.
func (d *drainCoordinator) ConnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// ConnState is installed as the ConnState hook on every http.Server
// sharing this coordinator.
func (d *drainCoordinator) ConnState(conn net.Conn, st http.ConnState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch st {
	case http.StateNew:
		d.conns[conn] = st
		if d.metrics != nil {
			d.metrics.RecordConnectionAccepted()
			d.metrics.SetActiveConnections(int32(len(d.conns)))
		}

	case http.StateActive:
		d.conns[conn] = st

	case http.StateIdle:
		d.conns[conn] = st
		// An idle connection during drain will never carry another
		// request; cut it now so the count reaches zero sooner.
		if d.state == StateDraining {
			conn.Close()
		}

	case http.StateClosed, http.StateHijacked:
		delete(d.conns, conn)
		if d.metrics != nil {
			d.metrics.RecordConnectionClosed()
			d.metrics.SetActiveConnections(int32(len(d.conns)))
		}
		if d.state == StateDraining && len(d.conns) == 0 {
			d.state = StateClosed
			close(d.done)
		}
	}
}

// Drain moves the coordinator to Draining, waits up to wait for live
// connections to finish, and force-closes whatever is left at the
// deadline. Forced closes are part of normal shutdown, not errors; the
// count is returned for logging. The listeners must already be closed
// when Drain is called.
func (d *drainCoordinator) Drain(wait time.Duration) (forced int) {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		<-d.done
		return 0
	}
	d.state = StateDraining
	if len(d.conns) == 0 {
		d.state = StateClosed
		close(d.done)
		d.mu.Unlock()
		return 0
	}
	logger.Info("draining connections", "active", len(d.conns), "timeout", wait.String())
	for conn, st := range d.conns {
		if st == http.StateIdle {
			conn.Close()
		}
	}
	d.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-d.done:
		logger.Info("drain complete, all connections closed")
		return 0
	case <-timer.C:
	}

	d.mu.Lock()
	for conn := range d.conns {
		conn.Close()
		forced++
		if d.metrics != nil {
			d.metrics.RecordConnectionForceClosed()
		}
	}
	if d.state != StateClosed {
		d.state = StateClosed
		close(d.done)
	}
	d.mu.Unlock()

	logger.Warn("drain deadline exceeded, force-closed remaining connections", "count", forced)
	return forced
}
