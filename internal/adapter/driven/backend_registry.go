package driven

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alorle/pvr-manager/circuitbreaker"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
)

// MemberSupplier fetches the members one backend reports for the group
// identified by path and adds them to target via AddBackendMember.
type MemberSupplier func(ctx context.Context, path group.Path, target *group.ChannelGroup) error

// Backend describes a registered backend.
type Backend struct {
	ID       int
	Name     string
	Priority int
	Enabled  bool
}

// RegistryConfig configures the backend registry.
type RegistryConfig struct {
	// Breaker is the circuit breaker template applied to every backend.
	// Zero values fall back to the breaker package defaults.
	Breaker circuitbreaker.Config
	Logger  *logging.Logger
}

// Registry errors
var (
	ErrBackendExists   = errors.New("backend already registered")
	ErrBackendNotFound = errors.New("backend not registered")
)

type registeredBackend struct {
	Backend
	supplier MemberSupplier
	breaker  circuitbreaker.CircuitBreaker
	created  bool
}

// BackendRegistry implements the BackendClients port over a set of
// registered backends, each guarded by its own circuit breaker. A backend
// counts as created once its first fetch succeeded.
type BackendRegistry struct {
	mu       sync.RWMutex
	backends map[int]*registeredBackend

	breakerCfg circuitbreaker.Config
	log        *logging.Logger
}

// NewBackendRegistry creates an empty backend registry.
func NewBackendRegistry(cfg RegistryConfig) *BackendRegistry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.INFO)
	}
	return &BackendRegistry{
		backends:   make(map[int]*registeredBackend),
		breakerCfg: cfg.Breaker,
		log:        logger.WithComponent("backends"),
	}
}

// Register adds a backend with its member supplier.
func (r *BackendRegistry) Register(b Backend, supplier MemberSupplier) error {
	if supplier == nil {
		return errors.New("supplier cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.ID]; exists {
		return fmt.Errorf("registering backend %d: %w", b.ID, ErrBackendExists)
	}

	cfg := r.breakerCfg
	cfg.Logger = r.log
	cfg.Name = fmt.Sprintf("backend-%d", b.ID)

	r.backends[b.ID] = &registeredBackend{
		Backend:  b,
		supplier: supplier,
		breaker:  circuitbreaker.New(cfg),
	}
	r.log.Info("registered backend", logging.Fields{"backend": b.ID, "name": b.Name, "enabled": b.Enabled})
	return nil
}

// Deregister removes a backend.
func (r *BackendRegistry) Deregister(backendID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[backendID]; !exists {
		return fmt.Errorf("deregistering backend %d: %w", backendID, ErrBackendNotFound)
	}
	delete(r.backends, backendID)
	return nil
}

// SetEnabled flips the enabled flag of a backend.
func (r *BackendRegistry) SetEnabled(backendID int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.backends[backendID]
	if !exists {
		return fmt.Errorf("enabling backend %d: %w", backendID, ErrBackendNotFound)
	}
	b.Enabled = enabled
	return nil
}

// SetPriority updates the priority of a backend.
func (r *BackendRegistry) SetPriority(backendID, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.backends[backendID]
	if !exists {
		return fmt.Errorf("setting priority of backend %d: %w", backendID, ErrBackendNotFound)
	}
	b.Backend.Priority = priority
	return nil
}

// FetchGroupMembers asks every enabled backend, in id order, for the members
// of the group identified by target's path. Backends whose fetch fails or
// whose circuit is open are reported by id; the fetch as a whole fails only
// when every enabled backend failed.
func (r *BackendRegistry) FetchGroupMembers(ctx context.Context, target *group.ChannelGroup) ([]int, error) {
	r.mu.RLock()
	enabled := make([]*registeredBackend, 0, len(r.backends))
	for _, b := range r.backends {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	path := target.Path()
	var failed []int
	for _, b := range enabled {
		err := b.breaker.Execute(func() error {
			return b.supplier(ctx, path, target)
		})
		if err != nil {
			failed = append(failed, b.ID)
			r.log.Warn("backend fetch failed", logging.Fields{
				"backend": b.ID,
				"group":   path.String(),
				"error":   err,
			})
			continue
		}

		r.mu.Lock()
		b.created = true
		r.mu.Unlock()
	}

	if len(enabled) > 0 && len(failed) == len(enabled) {
		return failed, fmt.Errorf("fetching members of group %q: all %d enabled backends failed", path, len(enabled))
	}
	return failed, nil
}

// Priority returns the priority of the given backend. ok is false when the
// backend is unknown or was never successfully fetched from.
func (r *BackendRegistry) Priority(backendID int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.backends[backendID]
	if !exists || !b.created {
		return 0, false
	}
	return b.Backend.Priority, true
}

// IsCreated reports whether the given backend completed a fetch at least
// once.
func (r *BackendRegistry) IsCreated(backendID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.backends[backendID]
	return exists && b.created
}

// EnabledCount returns the number of enabled backends.
func (r *BackendRegistry) EnabledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, b := range r.backends {
		if b.Enabled {
			count++
		}
	}
	return count
}
