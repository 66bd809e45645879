package group

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/logging"
)

// Kind distinguishes the synthetic all channels group from user defined
// groups. The all channels group is the canonical source for channel
// references, numbers and priorities; every other group derives from it.
type Kind int

const (
	// KindAllChannels is the one synthetic group holding every channel.
	KindAllChannels Kind = iota
	// KindUser is any other group, user created or backend provided.
	KindUser
)

// AllChannelsGroupName is the display name of the synthetic group.
const AllChannelsGroupName = "All channels"

// Path identifies a group by its radio flag and display name. Two groups
// with the same path are the same group.
type Path struct {
	radio bool
	name  string
}

// NewPath creates a group path.
func NewPath(radio bool, name string) Path {
	return Path{radio: radio, name: name}
}

// IsRadio reports whether this is a radio group path.
func (p Path) IsRadio() bool {
	return p.radio
}

// Name returns the group display name.
func (p Path) Name() string {
	return p.name
}

func (p Path) String() string {
	if p.radio {
		return "radio/" + p.name
	}
	return "tv/" + p.name
}

// Dependencies bundles the collaborators a group works with. Repository,
// Clients and Events may be nil; the group then skips persistence, backend
// sync and notifications respectively.
type Dependencies struct {
	Repository Repository
	Clients    BackendClients
	Events     EventSink
	Logger     *logging.Logger
}

// ChannelGroup is an ordered collection of channel group members. All
// mutable state is guarded by a single mutex; exported methods take the
// lock, unexported methods with the Locked suffix expect it to be held.
type ChannelGroup struct {
	mu sync.Mutex

	id       int64
	kind     Kind
	path     Path
	position int

	lastWatched time.Time
	lastOpened  time.Time

	hidden  bool
	loaded  bool
	changed bool

	// preventSortAndRenumber suppresses sorting and renumbering during
	// bulk mutation. Every setter of this flag must clear it on all exit
	// paths, or the group stays wedged.
	preventSortAndRenumber bool

	// allChannels is nil for the all channels group itself.
	allChannels *ChannelGroup

	// failedBackends holds the ids of backends that did not report valid
	// data on the last fetch cycle.
	failedBackends map[int]struct{}

	// effective policy snapshot, valid once Load ran.
	syncGroups        bool
	useBackendOrder   bool
	useBackendNumbers bool
	startFromOne      bool

	index memberIndex

	repo    Repository
	clients BackendClients
	events  EventSink
	log     *logging.Logger
}

func newGroup(kind Kind, path Path, id int64, allChannels *ChannelGroup, deps Dependencies) *ChannelGroup {
	logger := deps.Logger
	if logger == nil {
		logger = logging.New(logging.INFO)
	}
	return &ChannelGroup{
		id:             id,
		kind:           kind,
		path:           path,
		allChannels:    allChannels,
		failedBackends: make(map[int]struct{}),
		index:          newMemberIndex(),
		repo:           deps.Repository,
		clients:        deps.Clients,
		events:         deps.Events,
		log:            logger.WithComponent("group"),
	}
}

// NewAllChannelsGroup creates the synthetic group holding every channel of
// the given kind (TV or radio).
func NewAllChannelsGroup(radio bool, id int64, deps Dependencies) *ChannelGroup {
	return newGroup(KindAllChannels, NewPath(radio, AllChannelsGroupName), id, nil, deps)
}

// NewUserGroup creates a user defined group deriving from allChannels.
// id is the persistent group id, or 0 for a group that was never saved.
func NewUserGroup(path Path, id int64, allChannels *ChannelGroup, deps Dependencies) *ChannelGroup {
	return newGroup(KindUser, path, id, allChannels, deps)
}

// newFetchTarget creates the transient group a backend fetch populates. It
// shares identity and collaborators with g but never sorts, renumbers,
// persists or publishes.
func (g *ChannelGroup) newFetchTarget() *ChannelGroup {
	t := newGroup(g.kind, g.Path(), g.ID(), g.allChannels, Dependencies{Logger: g.log})
	t.preventSortAndRenumber = true
	return t
}

// ID returns the persistent group id, or 0 if the group was never saved.
func (g *ChannelGroup) ID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}

// SetID records the id assigned by the store. Non-positive ids are ignored.
func (g *ChannelGroup) SetID(id int64) {
	if id <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = id
}

// Kind returns the group kind.
func (g *ChannelGroup) Kind() Kind {
	return g.kind
}

// Path returns the group's identity path.
func (g *ChannelGroup) Path() Path {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// Name returns the group display name.
func (g *ChannelGroup) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path.Name()
}

// SetName renames the group. A rename of a loaded group is persisted
// immediately since the name is part of the group's stored identity.
func (g *ChannelGroup) SetName(ctx context.Context, name string) error {
	g.mu.Lock()
	if g.path.Name() == name {
		g.mu.Unlock()
		return nil
	}
	g.path = NewPath(g.path.IsRadio(), name)
	loaded := g.loaded
	if loaded {
		g.changed = true
	}
	g.mu.Unlock()

	if !loaded {
		return nil
	}
	return g.Persist(ctx)
}

// IsRadio reports whether this is a radio group.
func (g *ChannelGroup) IsRadio() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path.IsRadio()
}

// Position returns the externally assigned ordering among groups.
func (g *ChannelGroup) Position() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position
}

// SetPosition updates the group's position among groups.
func (g *ChannelGroup) SetPosition(position int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.position != position {
		g.position = position
		if g.loaded {
			g.changed = true
		}
	}
}

// IsHidden reports whether the group is hidden.
func (g *ChannelGroup) IsHidden() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hidden
}

// SetHidden updates the group's hidden flag.
func (g *ChannelGroup) SetHidden(hidden bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hidden != hidden {
		g.hidden = hidden
		if g.loaded {
			g.changed = true
		}
	}
}

// LastWatched returns when a channel of this group was last watched.
func (g *ChannelGroup) LastWatched() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastWatched
}

// SetLastWatched records a watch timestamp and writes it through to the
// store when the group is loaded.
func (g *ChannelGroup) SetLastWatched(ctx context.Context, at time.Time) error {
	g.mu.Lock()
	if g.lastWatched.Equal(at) {
		g.mu.Unlock()
		return nil
	}
	g.lastWatched = at
	writeThrough := g.loaded && g.repo != nil
	snap := g.snapshotLocked(false)
	g.mu.Unlock()

	if !writeThrough {
		return nil
	}
	if err := g.repo.UpdateLastWatched(ctx, snap); err != nil {
		return fmt.Errorf("updating last watched for group %q: %w", snap.Path, err)
	}
	return nil
}

// LastOpened returns when the group was last opened.
func (g *ChannelGroup) LastOpened() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastOpened
}

// SetLastOpened records an open timestamp and writes it through to the
// store when the group is loaded.
func (g *ChannelGroup) SetLastOpened(ctx context.Context, at time.Time) error {
	g.mu.Lock()
	if g.lastOpened.Equal(at) {
		g.mu.Unlock()
		return nil
	}
	g.lastOpened = at
	writeThrough := g.loaded && g.repo != nil
	snap := g.snapshotLocked(false)
	g.mu.Unlock()

	if !writeThrough {
		return nil
	}
	if err := g.repo.UpdateLastOpened(ctx, snap); err != nil {
		return fmt.Errorf("updating last opened for group %q: %w", snap.Path, err)
	}
	return nil
}

// IsLoaded reports whether Load completed for this group.
func (g *ChannelGroup) IsLoaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}

// IsNew reports whether the group has no persistent id yet.
func (g *ChannelGroup) IsNew() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id <= 0
}

// HasChanges reports whether group-level attributes changed since the last
// persist.
func (g *ChannelGroup) HasChanges() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.changed
}

// Size returns the number of members.
func (g *ChannelGroup) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index.size()
}

// HasChannels reports whether the group has any members.
func (g *ChannelGroup) HasChannels() bool {
	return g.Size() > 0
}

// HasNewChannels reports whether any member references a channel that was
// never persisted.
func (g *ChannelGroup) HasNewChannels() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasNewChannelsLocked()
}

func (g *ChannelGroup) hasNewChannelsLocked() bool {
	for _, m := range g.index.ordered {
		if m.Channel().IsNew() {
			return true
		}
	}
	return false
}

// Load clears the group, captures the policy snapshot, restores persisted
// members, reconciles against the backends and sorts and renumbers the
// result. It returns the channels that turned stale during reconciliation
// so the caller can cascade their removal. A failed backend fetch is the
// only hard failure; an unreachable store merely logs.
func (g *ChannelGroup) Load(ctx context.Context, policy Policy) ([]*channel.Channel, error) {
	g.Unload()

	enabled := 0
	if g.clients != nil {
		enabled = g.clients.EnabledCount()
	}
	eff := policy.resolve(enabled)

	g.mu.Lock()
	g.syncGroups = eff.syncGroups
	g.useBackendOrder = eff.useBackendOrder
	g.useBackendNumbers = eff.useBackendNumbers
	g.startFromOne = eff.startFromOne
	id := g.id
	g.mu.Unlock()

	persisted := 0
	if id > 0 && g.repo != nil {
		n, err := g.repo.LoadGroup(ctx, g, g.allChannels)
		if err != nil {
			g.log.Warn("failed to load group from store", logging.Fields{"group": g.Name(), "error": err})
		} else {
			persisted = n
		}
	}
	g.log.Debug("loaded members from store", logging.Fields{"group": g.Name(), "members": persisted})

	removed, err := g.Update(ctx)
	if err != nil {
		return nil, fmt.Errorf("updating group %q from backends: %w", g.Name(), err)
	}

	if added := g.Size() - persisted; added > 0 {
		g.log.Debug("added members from backends", logging.Fields{"group": g.Name(), "members": added})
	}

	g.SortAndRenumber()

	g.mu.Lock()
	g.loaded = true
	g.mu.Unlock()

	return removed, nil
}

// Unload drops all members and the failed backend set.
func (g *ChannelGroup) Unload() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.index.clear()
	g.failedBackends = make(map[int]struct{})
}

// Persist writes the group through the repository and clears the dirty
// flags on success. A group that was saved before but is not fully loaded
// is left untouched so partial state never clobbers good data.
func (g *ChannelGroup) Persist(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persistLocked(ctx)
}

func (g *ChannelGroup) persistLocked(ctx context.Context) error {
	if !g.loaded && g.id > 0 {
		return nil
	}
	if g.repo == nil {
		return ErrNoRepository
	}

	// Mark newly created groups as loaded so future updates persist too.
	if g.id <= 0 {
		g.loaded = true
	}

	snap := g.snapshotLocked(true)
	g.log.Debug("persisting group", logging.Fields{"group": g.path.Name(), "members": len(snap.Members)})

	id, err := g.repo.PersistGroup(ctx, snap)
	if err != nil {
		return fmt.Errorf("persisting group %q: %w", g.path, err)
	}
	if id > 0 {
		g.id = id
	}
	g.changed = false
	for _, m := range g.index.ordered {
		m.MarkSaved()
	}
	return nil
}

// snapshotLocked copies the group's persistable state. Member records are
// included only when withMembers is set.
func (g *ChannelGroup) snapshotLocked(withMembers bool) Snapshot {
	snap := Snapshot{
		ID:          g.id,
		Kind:        g.kind,
		Path:        g.path,
		Position:    g.position,
		Hidden:      g.hidden,
		LastWatched: g.lastWatched,
		LastOpened:  g.lastOpened,
	}
	if withMembers {
		snap.Members = make([]MemberRecord, 0, len(g.index.ordered))
		for _, m := range g.index.ordered {
			snap.Members = append(snap.Members, MemberRecord{
				Channel:       m.Channel(),
				Number:        m.Number(),
				BackendNumber: m.BackendNumber(),
				Priority:      m.Priority(),
				Order:         m.Order(),
			})
		}
	}
	return snap
}

// Snapshot returns a copy of the group's persistable state including the
// member records, in current sort order.
func (g *ChannelGroup) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked(true)
}

// AddPersistedMember attaches a member restored from the store, bypassing
// sort and renumber. Intended for Repository implementations during
// LoadGroup; the member arrives clean.
func (g *ChannelGroup) AddPersistedMember(m *Member) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.index.insert(m) {
		return false
	}
	m.MarkSaved()
	return true
}

// AddBackendMember attaches a member as reported by a backend, bypassing
// sort and renumber. Intended for BackendClients implementations populating
// a fetch target.
func (g *ChannelGroup) AddBackendMember(ch *channel.Channel, number channel.Number, backendNumber channel.Number, order int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index.insert(NewMember(ch, number, 0, order, backendNumber))
}

// AddToGroup adds a channel to the group, deriving the new member from the
// corresponding all channels member. A supplied valid number or backend
// number overrides the derived one. Returns false when the channel is
// already a member or is not known to the all channels group.
func (g *ChannelGroup) AddToGroup(ch *channel.Channel, number channel.Number, order int, backendNumber channel.Number) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addToGroupLocked(ch, number, order, false, backendNumber)
}

// addToGroupLocked implements AddToGroup. adoptBackendNumber makes an unset
// group number fall back to the backend number instead of the number
// inherited from the all channels group; reconciliation enables it on the
// very first load and while backend order is active.
func (g *ChannelGroup) addToGroupLocked(ch *channel.Channel, number channel.Number, order int, adoptBackendNumber bool, backendNumber channel.Number) bool {
	if _, exists := g.index.find(ch.ID()); exists {
		return false
	}

	target := ch
	priority := 0

	canonical, known := g.canonicalMemberLocked(ch.ID())
	switch {
	case known:
		target = canonical.Channel()
		priority = canonical.Priority()
		if !number.IsValid() {
			if adoptBackendNumber && backendNumber.IsValid() {
				number = backendNumber
			} else {
				number = canonical.Number()
			}
		}
		if !backendNumber.IsValid() {
			backendNumber = canonical.BackendNumber()
		}
	case g.kind == KindAllChannels:
		// The channel is new globally; this group is where it registers.
	default:
		return false
	}

	g.index.insert(NewMember(target, number, priority, order, backendNumber))
	g.sortAndRenumberLocked()

	g.log.Debug("added channel to group", logging.Fields{
		"group":   g.path.Name(),
		"channel": target.Name(),
	})
	return true
}

// canonicalMemberLocked resolves a channel identity against the all
// channels group, or against this group itself when it is the all channels
// group. The caller must hold g's lock; the all channels group takes its
// own lock, which is safe because it never locks derived groups.
func (g *ChannelGroup) canonicalMemberLocked(id channel.ID) (*Member, bool) {
	if g.allChannels == nil {
		return g.index.find(id)
	}
	return g.allChannels.MemberByID(id)
}

// AppendToGroup adds a channel one past the current maximum group number.
func (g *ChannelGroup) AppendToGroup(ch *channel.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	var max uint
	for _, m := range g.index.ordered {
		if m.Number().Major() > max {
			max = m.Number().Major()
		}
	}
	return g.addToGroupLocked(ch, channel.NewNumber(max+1, 0), 0, false, channel.Number{})
}

// RemoveFromGroup erases the member for the given channel. The remaining
// members are renumbered only when something was actually removed.
func (g *ChannelGroup) RemoveFromGroup(ch *channel.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.index.remove(ch.ID()) {
		return false
	}
	g.renumberLocked(RenumberNormal)
	return true
}

// IsGroupMember reports whether the channel is a member of this group.
func (g *ChannelGroup) IsGroupMember(ch *channel.Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.index.find(ch.ID())
	return ok
}

// SetChannelNumber overrides the group number of the given channel's
// member. Reports whether the number actually changed.
func (g *ChannelGroup) SetChannelNumber(ch *channel.Channel, number channel.Number) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.index.find(ch.ID())
	if !ok || m.Number() == number {
		return false
	}
	m.SetNumber(number)
	return true
}

// ChannelUpdate carries the channel attribute changes UpdateChannel applies.
type ChannelUpdate struct {
	Name        string
	IconPath    string
	UserSetIcon bool
	Hidden      bool
	Locked      bool
	EPGEnabled  bool
	EPGScraper  string
	Number      channel.Number
}

// UpdateChannel applies attribute changes to the channel behind the given
// identity. Hiding a channel sorts the group first, so pending order
// changes are not lost, and then removes the member; otherwise the member's
// group number is set directly. Returns false when the channel is not a
// member of this group.
func (g *ChannelGroup) UpdateChannel(id channel.ID, upd ChannelUpdate) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.index.find(id)
	if !ok {
		return false
	}

	ch := m.Channel()
	ch.SetName(upd.Name)
	ch.SetHidden(upd.Hidden)
	ch.SetLocked(upd.Locked)
	ch.SetIconPath(upd.IconPath, upd.UserSetIcon)
	ch.SetEPGEnabled(upd.EPGEnabled)
	if upd.EPGScraper != "" {
		ch.SetEPGScraper(upd.EPGScraper)
	}

	if upd.Hidden {
		g.sortLocked()
		if g.index.remove(id) {
			g.renumberLocked(RenumberNormal)
		}
	} else if m.Number() != upd.Number {
		m.SetNumber(upd.Number)
	}
	return true
}

// OnPolicyChanged recomputes the effective policy snapshot and, when the
// ordering or numbering rules effectively changed, refreshes priorities,
// renumbers, persists and notifies. A renumbering that changed anything is
// published as structural.
func (g *ChannelGroup) OnPolicyChanged(ctx context.Context, policy Policy) error {
	enabled := 0
	if g.clients != nil {
		enabled = g.clients.EnabledCount()
	}
	eff := policy.resolve(enabled)

	g.mu.Lock()
	orderChanged := g.useBackendOrder != eff.useBackendOrder
	numbersChanged := g.useBackendNumbers != eff.useBackendNumbers
	fromOneChanged := g.startFromOne != eff.startFromOne

	g.syncGroups = eff.syncGroups
	g.useBackendOrder = eff.useBackendOrder
	g.useBackendNumbers = eff.useBackendNumbers
	g.startFromOne = eff.startFromOne

	if !orderChanged && !numbersChanged && !fromOneChanged {
		g.mu.Unlock()
		return nil
	}

	g.log.Debug("renumbering group after policy change", logging.Fields{"group": g.path.Name()})

	if orderChanged {
		g.updateBackendPrioritiesLocked()
	}

	// Without group sync the numbers must first be pulled from the all
	// channels group, ignoring the start-from-one rule, before sorting.
	if !g.syncGroups {
		g.renumberLocked(RenumberIgnoreStartFromOne)
	}

	renumbered := g.sortAndRenumberLocked()
	err := g.persistLocked(ctx)
	g.mu.Unlock()

	if renumbered {
		g.publish(GroupInvalidated)
	} else {
		g.publish(GroupChanged)
	}
	return err
}

// SyncNumbersFromAllChannels refreshes a derived group's numbers from the
// all channels group. Used while group sync is disabled, where reconcile
// never runs for the group. Reports whether anything changed.
func (g *ChannelGroup) SyncNumbersFromAllChannels(ctx context.Context) (bool, error) {
	if g.kind == KindAllChannels {
		g.publish(GroupInvalidated)
		return false, nil
	}

	g.mu.Lock()
	changed := g.renumberLocked(RenumberIgnoreStartFromOne)
	changed = g.sortAndRenumberLocked() || changed

	var err error
	if changed {
		err = g.persistLocked(ctx)
	}
	g.mu.Unlock()

	if changed {
		g.publish(GroupInvalidated)
	} else {
		g.publish(GroupChanged)
	}
	return changed, err
}

// PreventSortAndRenumber reports whether sorting and renumbering is
// currently suppressed.
func (g *ChannelGroup) PreventSortAndRenumber() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.preventSortAndRenumber
}

// HasValidDataFromBackend reports whether the given backend reported valid
// data on the last fetch cycle.
func (g *ChannelGroup) HasValidDataFromBackend(backendID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hasValidDataLocked(backendID)
}

func (g *ChannelGroup) hasValidDataLocked(backendID int) bool {
	_, failed := g.failedBackends[backendID]
	return !failed
}

// FailedBackends returns the ids of backends that failed on the last fetch.
func (g *ChannelGroup) FailedBackends() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]int, 0, len(g.failedBackends))
	for id := range g.failedBackends {
		ids = append(ids, id)
	}
	return ids
}
