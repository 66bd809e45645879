package group

import (
	"github.com/alorle/pvr-manager/internal/channel"
)

// Include filters the member listing.
type Include int

const (
	// IncludeAll lists every member.
	IncludeAll Include = iota
	// IncludeVisible lists only members whose channel is not hidden.
	IncludeVisible
	// IncludeHidden lists only members whose channel is hidden.
	IncludeHidden
)

// MemberByID returns the member for the given channel identity.
func (g *ChannelGroup) MemberByID(id channel.ID) (*Member, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.index.find(id)
}

// ChannelByID returns the channel behind the given identity, or nil when
// the channel is not a member of this group.
func (g *ChannelGroup) ChannelByID(id channel.ID) *channel.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.index.find(id); ok {
		return m.Channel()
	}
	return nil
}

// ChannelByDatabaseID returns the member channel with the given persistent
// id, or nil. O(n); identity lookups should go through ChannelByID.
func (g *ChannelGroup) ChannelByDatabaseID(databaseID int64) *channel.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.index.ordered {
		if m.Channel().DatabaseID() == databaseID {
			return m.Channel()
		}
	}
	return nil
}

// Members returns the members matching the filter, in current sort order.
// The returned slice is a copy; the members are shared.
func (g *ChannelGroup) Members(filter Include) []*Member {
	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]*Member, 0, len(g.index.ordered))
	for _, m := range g.index.ordered {
		switch filter {
		case IncludeVisible:
			if m.Channel().IsHidden() {
				continue
			}
		case IncludeHidden:
			if !m.Channel().IsHidden() {
				continue
			}
		}
		members = append(members, m)
	}
	return members
}

// NumberOf returns the group-local number of the given channel, or the
// invalid number when the channel is not a member.
func (g *ChannelGroup) NumberOf(ch *channel.Channel) channel.Number {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.index.find(ch.ID()); ok {
		return m.Number()
	}
	return channel.Number{}
}

// BackendNumberOf returns the backend number of the given channel, or the
// invalid number when the channel is not a member.
func (g *ChannelGroup) BackendNumberOf(ch *channel.Channel) channel.Number {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.index.find(ch.ID()); ok {
		return m.BackendNumber()
	}
	return channel.Number{}
}

// activeNumberLocked returns the number a member is addressed by, honoring
// the backend-numbers policy.
func (g *ChannelGroup) activeNumberLocked(m *Member) channel.Number {
	if g.useBackendNumbers {
		return m.BackendNumber()
	}
	return m.Number()
}

// ChannelByNumber returns the channel addressed by the given number under
// the active numbering policy, or nil.
func (g *ChannelGroup) ChannelByNumber(number channel.Number) *channel.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.index.ordered {
		if g.activeNumberLocked(m) == number {
			return m.Channel()
		}
	}
	return nil
}

// ChannelNumbers returns the formatted active numbers of all members in
// sort order.
func (g *ChannelGroup) ChannelNumbers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	numbers := make([]string, 0, len(g.index.ordered))
	for _, m := range g.index.ordered {
		numbers = append(numbers, g.activeNumberLocked(m).String())
	}
	return numbers
}

// GetNextChannel walks the sorted members circularly forward from the given
// channel, skipping hidden channels. Returns nil when the channel is not a
// member or no other visible channel exists.
func (g *ChannelGroup) GetNextChannel(ch *channel.Channel) *channel.Channel {
	return g.neighbor(ch, 1)
}

// GetPreviousChannel walks the sorted members circularly backward from the
// given channel, skipping hidden channels. Returns nil when the channel is
// not a member or no other visible channel exists.
func (g *ChannelGroup) GetPreviousChannel(ch *channel.Channel) *channel.Channel {
	return g.neighbor(ch, -1)
}

func (g *ChannelGroup) neighbor(ch *channel.Channel, step int) *channel.Channel {
	if ch == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.index.ordered)
	start := -1
	for i, m := range g.index.ordered {
		if m.Channel().ID() == ch.ID() {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	// Walk at most one full circle; if we come back to the start without
	// finding a visible channel there is none.
	for i := (start + step + n) % n; i != start; i = (i + step + n) % n {
		candidate := g.index.ordered[i].Channel()
		if !candidate.IsHidden() {
			return candidate
		}
	}
	return nil
}

// GetLastPlayedChannel returns the most recently watched member channel
// whose backend is created, excluding the channel with the given persistent
// id. Returns nil when no member qualifies.
func (g *ChannelGroup) GetLastPlayedChannel(excludeDatabaseID int64) *channel.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()

	var best *channel.Channel
	for _, m := range g.index.ordered {
		ch := m.Channel()
		if ch.DatabaseID() == excludeDatabaseID {
			continue
		}
		if g.clients != nil && !g.clients.IsCreated(ch.BackendID()) {
			continue
		}
		if ch.LastWatched().IsZero() {
			continue
		}
		if best == nil || ch.LastWatched().After(best.LastWatched()) {
			best = ch
		}
	}
	return best
}
