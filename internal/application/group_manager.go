package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
	"github.com/alorle/pvr-manager/metrics"
)

var (
	// ErrGroupExists indicates a group with the same name already exists.
	ErrGroupExists = errors.New("group already exists")
	// ErrAllChannelsGroup indicates an operation that is not allowed on the
	// all channels group.
	ErrAllChannelsGroup = errors.New("operation not allowed on the all channels group")
)

// GroupCatalog lists the persisted groups. Implemented by the storage
// adapter next to the group Repository.
type GroupCatalog interface {
	ListGroups(ctx context.Context) ([]group.Snapshot, error)
}

// ManagerConfig bundles the collaborators and initial policy of a
// GroupManager.
type ManagerConfig struct {
	Radio      bool
	Policy     group.Policy
	Repository group.Repository
	Catalog    GroupCatalog
	Clients    group.BackendClients
	Events     group.EventSink
	Logger     *logging.Logger
}

// GroupManager owns the all channels group of one kind (TV or radio) and
// every user group deriving from it. It orchestrates loading, periodic
// reconciliation, group lifecycle and policy changes.
type GroupManager struct {
	mu     sync.RWMutex
	policy group.Policy
	groups map[string]*group.ChannelGroup

	radio bool
	all   *group.ChannelGroup

	repo    group.Repository
	catalog GroupCatalog
	clients group.BackendClients
	events  group.EventSink
	log     *logging.Logger
}

// NewGroupManager creates a manager with an empty, unloaded all channels
// group. Call LoadAll before anything else.
func NewGroupManager(cfg ManagerConfig) *GroupManager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.INFO)
	}

	deps := group.Dependencies{
		Repository: cfg.Repository,
		Clients:    cfg.Clients,
		Events:     cfg.Events,
		Logger:     logger,
	}

	return &GroupManager{
		policy:  cfg.Policy,
		groups:  make(map[string]*group.ChannelGroup),
		radio:   cfg.Radio,
		all:     group.NewAllChannelsGroup(cfg.Radio, 0, deps),
		repo:    cfg.Repository,
		catalog: cfg.Catalog,
		clients: cfg.Clients,
		events:  cfg.Events,
		log:     logger.WithComponent("groups"),
	}
}

func (m *GroupManager) groupDeps() group.Dependencies {
	return group.Dependencies{
		Repository: m.repo,
		Clients:    m.clients,
		Events:     m.events,
		Logger:     m.log,
	}
}

// AllChannels returns the all channels group.
func (m *GroupManager) AllChannels() *group.ChannelGroup {
	return m.all
}

// GetGroup returns the user group with the given name.
func (m *GroupManager) GetGroup(name string) (*group.ChannelGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[name]
	return g, ok
}

// Groups returns every group including the all channels group, ordered by
// position, then name. The all channels group always comes first.
func (m *GroupManager) Groups() []*group.ChannelGroup {
	m.mu.RLock()
	users := make([]*group.ChannelGroup, 0, len(m.groups))
	for _, g := range m.groups {
		users = append(users, g)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].Position() != users[j].Position() {
			return users[i].Position() < users[j].Position()
		}
		return users[i].Name() < users[j].Name()
	})

	return append([]*group.ChannelGroup{m.all}, users...)
}

// LoadAll restores the persisted groups, loads the all channels group and
// every user group, and cascades removals of stale channels. Failing to load
// the all channels group is fatal; a user group that fails to load is
// skipped with a log entry.
func (m *GroupManager) LoadAll(ctx context.Context) error {
	policy := m.currentPolicy()

	if err := m.restoreCatalog(ctx); err != nil {
		return err
	}

	removed, err := m.all.Load(ctx, policy)
	if err != nil {
		return fmt.Errorf("loading all channels group: %w", err)
	}
	if m.all.IsNew() {
		if err := m.all.Persist(ctx); err != nil {
			metrics.RecordGroupPersistFailure()
			return fmt.Errorf("persisting all channels group: %w", err)
		}
	}

	m.mu.RLock()
	users := make([]*group.ChannelGroup, 0, len(m.groups))
	for _, g := range m.groups {
		users = append(users, g)
	}
	m.mu.RUnlock()

	for _, g := range users {
		gone, err := g.Load(ctx, policy)
		if err != nil {
			m.log.Warn("failed to load group", logging.Fields{"group": g.Name(), "error": err})
			continue
		}
		removed = append(removed, gone...)
	}

	m.cascadeRemovals(removed)
	m.updateMetrics()

	m.log.Info("loaded channel groups", logging.Fields{
		"groups":   len(users) + 1,
		"channels": m.all.Size(),
	})
	return nil
}

// restoreCatalog creates the in-memory groups for every persisted record.
func (m *GroupManager) restoreCatalog(ctx context.Context) error {
	if m.catalog == nil {
		return nil
	}

	snaps, err := m.catalog.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing persisted groups: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		if snap.Path.IsRadio() != m.radio {
			continue
		}
		if snap.Kind == group.KindAllChannels {
			m.all.SetID(snap.ID)
			continue
		}
		if _, exists := m.groups[snap.Path.Name()]; exists {
			continue
		}
		m.groups[snap.Path.Name()] = group.NewUserGroup(snap.Path, snap.ID, m.all, m.groupDeps())
	}
	return nil
}

// SyncAll reconciles every group against the backends. With group sync
// disabled, user groups only refresh their numbers from the all channels
// group.
func (m *GroupManager) SyncAll(ctx context.Context) error {
	policy := m.currentPolicy()

	removed, err := m.all.Update(ctx)
	if err != nil {
		metrics.RecordGroupSync(metrics.SyncResultFailed)
		m.recordFailedBackends()
		return fmt.Errorf("syncing all channels group: %w", err)
	}
	m.recordFailedBackends()
	metrics.RecordChannelsRemoved(m.all.Path().String(), len(removed))

	m.mu.RLock()
	users := make([]*group.ChannelGroup, 0, len(m.groups))
	for _, g := range m.groups {
		users = append(users, g)
	}
	m.mu.RUnlock()

	var errs []string
	for _, g := range users {
		if policy.SyncGroups {
			gone, err := g.Update(ctx)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", g.Name(), err))
				continue
			}
			metrics.RecordChannelsRemoved(g.Path().String(), len(gone))
			removed = append(removed, gone...)
			continue
		}
		if _, err := g.SyncNumbersFromAllChannels(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", g.Name(), err))
		}
	}

	m.cascadeRemovals(removed)
	m.updateMetrics()

	if len(errs) > 0 {
		metrics.RecordGroupSync(metrics.SyncResultFailed)
		return fmt.Errorf("syncing groups: %s", strings.Join(errs, "; "))
	}
	metrics.RecordGroupSync(metrics.SyncResultOK)
	return nil
}

// cascadeRemovals erases channels that left the all channels group from
// every user group.
func (m *GroupManager) cascadeRemovals(removed []*channel.Channel) {
	if len(removed) == 0 {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range removed {
		if m.all.IsGroupMember(ch) {
			continue
		}
		for _, g := range m.groups {
			g.RemoveFromGroup(ch)
		}
	}
}

// CreateGroup creates, loads and persists a new user group.
func (m *GroupManager) CreateGroup(ctx context.Context, name string) (*group.ChannelGroup, error) {
	if name == group.AllChannelsGroupName {
		return nil, ErrAllChannelsGroup
	}

	m.mu.Lock()
	if _, exists := m.groups[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("creating group %q: %w", name, ErrGroupExists)
	}
	g := group.NewUserGroup(group.NewPath(m.radio, name), 0, m.all, m.groupDeps())
	m.groups[name] = g
	m.mu.Unlock()

	if _, err := g.Load(ctx, m.currentPolicy()); err != nil {
		m.log.Warn("failed to load new group from backends", logging.Fields{"group": name, "error": err})
	}
	if err := g.Persist(ctx); err != nil {
		metrics.RecordGroupPersistFailure()
		m.mu.Lock()
		delete(m.groups, name)
		m.mu.Unlock()
		return nil, fmt.Errorf("persisting group %q: %w", name, err)
	}

	m.updateMetrics()
	m.log.Info("created group", logging.Fields{"group": name})
	return g, nil
}

// DeleteGroup removes a user group from the store and from memory.
func (m *GroupManager) DeleteGroup(ctx context.Context, name string) error {
	if name == group.AllChannelsGroupName {
		return ErrAllChannelsGroup
	}

	m.mu.Lock()
	g, exists := m.groups[name]
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("deleting group %q: %w", name, group.ErrGroupNotFound)
	}

	if m.repo != nil && !g.IsNew() {
		if err := m.repo.DeleteGroup(ctx, g.Snapshot()); err != nil {
			return fmt.Errorf("deleting group %q: %w", name, err)
		}
	}

	m.mu.Lock()
	delete(m.groups, name)
	m.mu.Unlock()

	metrics.DeleteGroupMembers(g.Path().String())
	m.updateMetrics()
	m.log.Info("deleted group", logging.Fields{"group": name})
	return nil
}

// UpdateChannel applies attribute changes to a channel everywhere. Hiding a
// channel removes it from every user group as well.
func (m *GroupManager) UpdateChannel(id channel.ID, upd group.ChannelUpdate) bool {
	if !m.all.UpdateChannel(id, upd) {
		return false
	}

	if upd.Hidden {
		m.mu.RLock()
		users := make([]*group.ChannelGroup, 0, len(m.groups))
		for _, g := range m.groups {
			users = append(users, g)
		}
		m.mu.RUnlock()

		for _, g := range users {
			if member, ok := g.MemberByID(id); ok {
				g.RemoveFromGroup(member.Channel())
			}
		}
	}

	m.updateMetrics()
	return true
}

// OnPolicyChanged applies a new numbering policy to every group.
func (m *GroupManager) OnPolicyChanged(ctx context.Context, policy group.Policy) error {
	m.mu.Lock()
	m.policy = policy
	m.mu.Unlock()

	var errs []string
	for _, g := range m.Groups() {
		if err := g.OnPolicyChanged(ctx, policy); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", g.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("applying policy change: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *GroupManager) currentPolicy() group.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *GroupManager) recordFailedBackends() {
	for _, id := range m.all.FailedBackends() {
		metrics.RecordBackendFetchFailure(fmt.Sprintf("%d", id))
	}
}

func (m *GroupManager) updateMetrics() {
	loaded := 0
	for _, g := range m.Groups() {
		if g.IsLoaded() {
			loaded++
		}
		metrics.SetGroupMembers(g.Path().String(), g.Size())
	}
	metrics.SetGroupsLoaded(loaded)
}
