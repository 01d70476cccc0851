// Package server exposes the share registry over HTTP: the chi router
// and its handlers, the listener set, and the drain-then-force-close
// shutdown coordinator shared by all listeners.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/metrics"
	"github.com/marmos91/dittoshare/pkg/registry"
)

// ListenerSpec describes one serving endpoint. A nil TLS config means
// plain HTTP.
type ListenerSpec struct {
	Address string
	Port    int
	TLS     *tls.Config
}

// Addr returns the host:port string to bind.
func (s ListenerSpec) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Options configures a Server.
type Options struct {
	// Listeners are all bound before serving starts. At least one is
	// required; any bind failure aborts startup.
	Listeners []ListenerSpec

	// ShutdownWait is how long Run waits for in-flight connections
	// after the listeners close, before force-closing the remainder.
	ShutdownWait time.Duration

	// Metrics receives request and connection observations. Nil
	// disables collection.
	Metrics metrics.HTTPMetrics

	// MetricsPath mounts the Prometheus endpoint when non-empty.
	MetricsPath string

	// MaxUploadSize caps upload bodies in bytes. Zero means unlimited.
	MaxUploadSize int64
}

// Server serves the share namespace on one or more listeners.
//
// All listeners share a single router and a single drain coordinator,
// so shutdown drains the whole set as one unit.
//
// The server is created in a stopped state. Call Run() to bind the
// listeners and serve.
type Server struct {
	opts    Options
	router  http.Handler
	drain   *drainCoordinator
	stopped sync.Once

	mu        sync.Mutex
	listeners []net.Listener
	servers   []*http.Server

	// ListenerReady is closed once every listener is bound. Addrs() is
	// valid after that.
	ListenerReady chan struct{}
}

// New creates a Server for the given registry and operations.
func New(opts Options, reg *registry.Registry, ops *fileops.Operations) *Server {
	return &Server{
		opts: opts,
		router: NewRouter(reg, ops, RouterOptions{
			Metrics:       opts.Metrics,
			MetricsPath:   opts.MetricsPath,
			MaxUploadSize: opts.MaxUploadSize,
		}),
		drain:         newDrainCoordinator(opts.Metrics),
		ListenerReady: make(chan struct{}),
	}
}

// Run binds every configured listener and serves until ctx is
// cancelled or a listener fails. Binding is all-or-nothing: if any
// listener cannot be bound, the already-bound ones are closed and Run
// returns the error without serving a single request.
//
// On ctx cancellation Run closes the listeners, drains in-flight
// connections up to ShutdownWait, force-closes the rest, and returns
// nil. Forced closes are part of normal shutdown, not an error.
func (s *Server) Run(ctx context.Context) error {
	if len(s.opts.Listeners) == 0 {
		return fmt.Errorf("no listeners configured")
	}

	if err := s.bind(); err != nil {
		return err
	}
	close(s.ListenerReady)

	errChan := make(chan error, len(s.servers))
	for i, srv := range s.servers {
		ln := s.listeners[i]
		go func(srv *http.Server, ln net.Listener) {
			logger.Info("listener serving", logger.KeyListener, ln.Addr().String())
			err := srv.Serve(ln)
			if err != nil && err != http.ErrServerClosed && !errors.Is(err, net.ErrClosed) {
				select {
				case errChan <- err:
				default:
				}
			}
		}(srv, ln)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		s.Stop()
		return nil
	case err := <-errChan:
		s.Stop()
		return fmt.Errorf("listener failed: %w", err)
	}
}

// bind opens every listener up front so a conflict on any address
// fails fast with nothing serving.
func (s *Server) bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, spec := range s.opts.Listeners {
		ln, err := net.Listen("tcp", spec.Addr())
		if err != nil {
			for _, bound := range s.listeners {
				bound.Close()
			}
			s.listeners = nil
			return fmt.Errorf("bind %s: %w", spec.Addr(), err)
		}
		if spec.TLS != nil {
			ln = tls.NewListener(ln, spec.TLS)
		}
		s.listeners = append(s.listeners, ln)
		s.servers = append(s.servers, &http.Server{
			Handler:   s.router,
			ConnState: s.drain.ConnState,
		})
	}
	return nil
}

// Stop closes the listeners and drains. Safe to call multiple times
// and concurrently with Run.
func (s *Server) Stop() {
	s.stopped.Do(func() {
		s.mu.Lock()
		for _, srv := range s.servers {
			srv.SetKeepAlivesEnabled(false)
		}
		for _, ln := range s.listeners {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("close listener", logger.KeyError, err)
			}
		}
		s.mu.Unlock()

		forced := s.drain.Drain(s.opts.ShutdownWait)
		logger.Info("server stopped", "forced_closes", forced)
	})
}

// Addrs returns the bound listener addresses. Valid after
// ListenerReady is closed; useful when a spec asked for port 0.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// DrainState reports where the shared drain coordinator is in its
// lifecycle.
func (s *Server) DrainState() State {
	return s.drain.State()
}
