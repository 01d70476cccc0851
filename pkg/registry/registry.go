// Package registry tracks the shares and custom handlers a server
// exposes. It is the single source of truth for what lives under each
// first path segment of the URL namespace.
package registry

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrDuplicateName is returned by Add and RegisterHandler when a
	// share or custom handler already occupies the name.
	ErrDuplicateName = errors.New("name already registered")

	// ErrInvalidRoot is returned by Add when the share root does not
	// exist, is not readable, or cannot be made absolute.
	ErrInvalidRoot = errors.New("invalid share root")

	// ErrShareNotFound is returned by Lookup and Remove for unknown
	// share names.
	ErrShareNotFound = errors.New("share not found")
)

// Registry manages all named shares and custom HTTP handlers.
// It provides thread-safe registration and lookup.
//
// Example usage:
//
//	reg := registry.New()
//	reg.Add(&registry.Share{Name: "media", Root: "/srv/media", ListDir: true})
//	share, _ := reg.Lookup("media")
type Registry struct {
	mu       sync.RWMutex
	shares   map[string]*Share
	order    []string // share names in registration order
	handlers map[string]http.Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		shares:   make(map[string]*Share),
		handlers: make(map[string]http.Handler),
	}
}

// Add registers a share. The share name must be a valid URL path
// segment and the root must exist and be readable on disk, as a
// directory or a single file. The root is made absolute before the
// share is stored.
//
// Returns ErrDuplicateName if the name is taken by a share or a custom
// handler, and ErrInvalidRoot if the root fails validation.
func (r *Registry) Add(share *Share) error {
	if share == nil {
		return fmt.Errorf("cannot add nil share")
	}
	if err := validateName(share.Name); err != nil {
		return err
	}

	root, err := filepath.Abs(share.Root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	// Opening the root catches both a missing path and one the process
	// cannot read.
	f, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	_ = f.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shares[share.Name]; exists {
		return fmt.Errorf("%w: share %q", ErrDuplicateName, share.Name)
	}
	if _, exists := r.handlers[share.Name]; exists {
		return fmt.Errorf("%w: handler %q", ErrDuplicateName, share.Name)
	}

	stored := *share
	stored.Root = root
	r.shares[share.Name] = &stored
	r.order = append(r.order, share.Name)
	return nil
}

// Remove unregisters a share by name. In-flight requests that already
// looked the share up keep their pointer and finish against it.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shares[name]; !exists {
		return fmt.Errorf("%w: %q", ErrShareNotFound, name)
	}
	delete(r.shares, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Lookup retrieves a share by name. Hidden shares resolve normally;
// hiding only affects the index listing.
func (r *Registry) Lookup(name string) (*Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	share, exists := r.shares[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrShareNotFound, name)
	}
	return share, nil
}

// ListVisible returns the non-hidden shares in registration order.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListVisible() []*Share {
	r.mu.RLock()
	defer r.mu.RUnlock()

	visible := make([]*Share, 0, len(r.order))
	for _, name := range r.order {
		if share := r.shares[name]; share != nil && !share.Hidden {
			visible = append(visible, share)
		}
	}
	return visible
}

// ListAll returns every share in registration order, hidden included.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListAll() []*Share {
	r.mu.RLock()
	defer r.mu.RUnlock()

	shares := make([]*Share, 0, len(r.order))
	for _, name := range r.order {
		if share := r.shares[name]; share != nil {
			shares = append(shares, share)
		}
	}
	return shares
}

// Count returns the number of registered shares.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shares)
}

// RegisterHandler mounts an opaque http.Handler under the given first
// path segment. The handler receives every request whose path starts
// with /<prefix> and owns all routing below it. Custom handlers take
// precedence over shares at dispatch, so the prefix must not collide
// with an existing share name.
func (r *Registry) RegisterHandler(prefix string, h http.Handler) error {
	if err := validateName(prefix); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("cannot register nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[prefix]; exists {
		return fmt.Errorf("%w: handler %q", ErrDuplicateName, prefix)
	}
	if _, exists := r.shares[prefix]; exists {
		return fmt.Errorf("%w: share %q", ErrDuplicateName, prefix)
	}
	r.handlers[prefix] = h
	return nil
}

// LookupHandler retrieves a custom handler by its prefix.
func (r *Registry) LookupHandler(prefix string) (http.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handlers[prefix]
	return h, exists
}
