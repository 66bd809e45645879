package group

import (
	"sort"

	"github.com/alorle/pvr-manager/internal/channel"
)

// memberIndex is the dual view over a group's members: a map keyed by
// channel identity for O(1) lookup and a slice holding the current sort
// order. Both views reference the same Member instances and contain exactly
// the same set at all times. The index has no lock of its own; the owning
// group's mutex guards all access.
type memberIndex struct {
	byID    map[channel.ID]*Member
	ordered []*Member
}

func newMemberIndex() memberIndex {
	return memberIndex{byID: make(map[channel.ID]*Member)}
}

// find returns the member for the given channel identity.
func (x *memberIndex) find(id channel.ID) (*Member, bool) {
	m, ok := x.byID[id]
	return m, ok
}

// insert adds a member to the map and to the tail of the ordered view.
// Inserting an already present key is a no-op; callers are expected to check
// membership first. Reports whether the member was added.
func (x *memberIndex) insert(m *Member) bool {
	id := m.Channel().ID()
	if _, exists := x.byID[id]; exists {
		return false
	}
	x.byID[id] = m
	x.ordered = append(x.ordered, m)
	return true
}

// remove erases the member for the given identity from both views.
// Reports whether a member was removed.
func (x *memberIndex) remove(id channel.ID) bool {
	if _, exists := x.byID[id]; !exists {
		return false
	}
	delete(x.byID, id)
	for i, m := range x.ordered {
		if m.Channel().ID() == id {
			x.ordered = append(x.ordered[:i], x.ordered[i+1:]...)
			break
		}
	}
	return true
}

// sortBy reorders only the ordered view. The map is untouched.
func (x *memberIndex) sortBy(less func(a, b *Member) bool) {
	sort.SliceStable(x.ordered, func(i, j int) bool {
		return less(x.ordered[i], x.ordered[j])
	})
}

func (x *memberIndex) size() int {
	return len(x.byID)
}

func (x *memberIndex) clear() {
	x.byID = make(map[channel.ID]*Member)
	x.ordered = nil
}

// consistent reports whether both views hold the same member set.
func (x *memberIndex) consistent() bool {
	if len(x.byID) != len(x.ordered) {
		return false
	}
	for _, m := range x.ordered {
		if x.byID[m.Channel().ID()] != m {
			return false
		}
	}
	return true
}
