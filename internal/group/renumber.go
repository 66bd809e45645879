package group

import (
	"github.com/alorle/pvr-manager/internal/channel"
)

// RenumberMode selects how Renumber treats the start-from-one policy.
type RenumberMode int

const (
	// RenumberNormal applies the policy as configured.
	RenumberNormal RenumberMode = iota
	// RenumberIgnoreStartFromOne inherits numbers from the all channels
	// group even when the start-from-one policy is active. Used to reset a
	// group's numbers before a regular renumber pass.
	RenumberIgnoreStartFromOne
)

// byGroupNumber orders members by ascending group-local number.
func byGroupNumber(a, b *Member) bool {
	return a.Number().Less(b.Number())
}

// byBackendNumber orders members by descending backend priority, then
// ascending backend number, then channel name as the final tie break.
func byBackendNumber(a, b *Member) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() > b.Priority()
	}
	if a.BackendNumber() != b.BackendNumber() {
		return a.BackendNumber().Less(b.BackendNumber())
	}
	if a.Order() != b.Order() {
		return a.Order() < b.Order()
	}
	return a.Channel().Name() < b.Channel().Name()
}

// Sort reorders the members with the comparator selected by the
// backend-order policy. The keyed view is untouched.
func (g *ChannelGroup) Sort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sortLocked()
}

func (g *ChannelGroup) sortLocked() {
	if g.preventSortAndRenumber {
		return
	}
	if g.useBackendOrder {
		g.index.sortBy(byBackendNumber)
	} else {
		g.index.sortBy(byGroupNumber)
	}
}

// SortAndRenumber sorts the members and assigns fresh numbers. Reports
// whether renumbering changed anything; a group with sort and renumber
// suppressed reports no change.
func (g *ChannelGroup) SortAndRenumber() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortAndRenumberLocked()
}

func (g *ChannelGroup) sortAndRenumberLocked() bool {
	if g.preventSortAndRenumber {
		return false
	}
	g.sortLocked()
	return g.renumberLocked(RenumberNormal)
}

// Renumber assigns group-local and backend numbers to every member in sort
// order and re-sorts afterwards, since changed numbers can change the
// backend-number order. Reports whether anything changed.
func (g *ChannelGroup) Renumber(mode RenumberMode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.renumberLocked(mode)
}

func (g *ChannelGroup) renumberLocked(mode RenumberMode) bool {
	if g.preventSortAndRenumber {
		return false
	}

	changed := false
	var counter uint

	for _, m := range g.index.ordered {
		backendNumber := m.BackendNumber()
		if !backendNumber.IsValid() && g.allChannels != nil {
			backendNumber = g.allChannels.BackendNumberOf(m.Channel())
		}

		var number channel.Number
		switch {
		case g.useBackendNumbers:
			number = backendNumber
		case m.Channel().IsHidden():
			number = channel.Number{}
		case g.kind == KindAllChannels:
			counter++
			number = channel.NewNumber(counter, 0)
		case g.startFromOne && mode != RenumberIgnoreStartFromOne:
			counter++
			number = channel.NewNumber(counter, 0)
		default:
			number = g.allChannels.NumberOf(m.Channel())
		}

		if m.Number() != number || m.BackendNumber() != backendNumber {
			changed = true
			// Both index views reference the same member, so one write is
			// visible from the map and the slice alike.
			m.SetNumber(number)
			m.SetBackendNumber(backendNumber)
		}
	}

	g.sortLocked()
	return changed
}

// UpdateBackendPriorities refreshes every member's backend priority from
// the backend clients. With backend order disabled all priorities reset to
// zero. Reports whether any priority changed.
func (g *ChannelGroup) UpdateBackendPriorities() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.updateBackendPrioritiesLocked()
}

func (g *ChannelGroup) updateBackendPrioritiesLocked() bool {
	changed := false
	for _, m := range g.index.ordered {
		priority := 0
		if g.useBackendOrder {
			if g.clients == nil {
				continue
			}
			p, ok := g.clients.Priority(m.Channel().BackendID())
			if !ok {
				continue
			}
			priority = p
		}
		if m.Priority() != priority {
			changed = true
			m.SetPriority(priority)
		}
	}
	return changed
}
