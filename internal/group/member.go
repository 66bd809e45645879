package group

import (
	"github.com/alorle/pvr-manager/internal/channel"
)

// Member associates a channel with its position inside one group. The same
// channel is referenced by a distinct Member in every group that lists it.
// Members are owned by their group and must only be accessed while holding
// the group's lock; the dirty flag starts set and is cleared on persist.
type Member struct {
	channel       *channel.Channel
	number        channel.Number
	backendNumber channel.Number
	priority      int
	order         int

	changed bool
}

// NewMember creates a member for the given channel.
// number is the group-local channel number, backendNumber the number the
// owning backend assigned, priority the backend priority (higher wins) and
// order the position the backend reported the channel at.
func NewMember(ch *channel.Channel, number channel.Number, priority, order int, backendNumber channel.Number) *Member {
	return &Member{
		channel:       ch,
		number:        number,
		backendNumber: backendNumber,
		priority:      priority,
		order:         order,
		changed:       true,
	}
}

// Channel returns the channel this member refers to.
func (m *Member) Channel() *channel.Channel {
	return m.channel
}

// Number returns the group-local channel number.
func (m *Member) Number() channel.Number {
	return m.number
}

// SetNumber updates the group-local channel number.
func (m *Member) SetNumber(n channel.Number) {
	if m.number != n {
		m.number = n
		m.changed = true
	}
}

// BackendNumber returns the number the owning backend assigned.
func (m *Member) BackendNumber() channel.Number {
	return m.backendNumber
}

// SetBackendNumber updates the backend-assigned number.
func (m *Member) SetBackendNumber(n channel.Number) {
	if m.backendNumber != n {
		m.backendNumber = n
		m.changed = true
	}
}

// Priority returns the owning backend's priority. Higher is preferred.
func (m *Member) Priority() int {
	return m.priority
}

// SetPriority updates the backend priority.
func (m *Member) SetPriority(p int) {
	if m.priority != p {
		m.priority = p
		m.changed = true
	}
}

// Order returns the position the backend reported this channel at. It is the
// final tie break for the backend-order sort.
func (m *Member) Order() int {
	return m.order
}

// SetOrder updates the backend-reported position.
func (m *Member) SetOrder(o int) {
	if m.order != o {
		m.order = o
		m.changed = true
	}
}

// NeedsSave reports whether the member has changes not yet persisted.
func (m *Member) NeedsSave() bool {
	return m.changed
}

// MarkSaved clears the dirty flag after a successful persist.
func (m *Member) MarkSaved() {
	m.changed = false
}
