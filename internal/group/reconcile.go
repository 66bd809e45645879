package group

import (
	"context"
	"fmt"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/logging"
)

// Update fetches a fresh membership snapshot from the backends and
// reconciles the group against it. It is a no-op for user defined groups
// while group sync is disabled; the all channels group always syncs.
// Returns the channels that turned stale, for the caller to cascade their
// removal. Backends that failed to report are recorded and suppress
// removals for their channels; only a failure of the fetch as a whole is an
// error.
func (g *ChannelGroup) Update(ctx context.Context) ([]*channel.Channel, error) {
	g.mu.Lock()
	skip := g.kind == KindUser && !g.syncGroups
	g.mu.Unlock()
	if skip || g.clients == nil {
		return nil, nil
	}

	target := g.newFetchTarget()
	failed, err := g.clients.FetchGroupMembers(ctx, target)

	g.mu.Lock()
	g.failedBackends = make(map[int]struct{}, len(failed))
	for _, id := range failed {
		g.failedBackends[id] = struct{}{}
	}
	g.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("fetching members for group %q: %w", g.Name(), err)
	}

	changed, removed, structural := g.reconcile(target)
	if !changed {
		return removed, nil
	}

	if err := g.Persist(ctx); err != nil {
		return removed, err
	}

	if structural {
		g.publish(GroupInvalidated)
	} else {
		g.publish(GroupChanged)
	}
	return removed, nil
}

// reconcile applies the delta between the group and a fetched snapshot:
// removals first, then additions and updates, then a priority refresh and a
// single sort-and-renumber pass over the final member set.
func (g *ChannelGroup) reconcile(snapshot *ChannelGroup) (changed bool, removed []*channel.Channel, structural bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Newly discovered channels adopt backend numbering on the very first
	// load and while backend order is active.
	adoptBackendNumbers := g.index.size() == 0 || g.useBackendOrder

	var added bool
	func() {
		g.preventSortAndRenumber = true
		defer func() { g.preventSortAndRenumber = false }()

		removed = g.removeDeletedLocked(snapshot)
		added = g.addAndUpdateLocked(snapshot, adoptBackendNumbers)
	}()

	changed = added || len(removed) > 0
	changed = g.updateBackendPrioritiesLocked() || changed

	renumbered := false
	if changed {
		// New members sit at the back of the ordered view; the renumber
		// pass gives them their final numbers.
		renumbered = g.sortAndRenumberLocked()
	}

	structural = len(removed) > 0 || renumbered || g.hasNewChannelsLocked()
	return changed, removed, structural
}

// removeDeletedLocked erases members absent from the snapshot. Members
// owned by a backend that failed this cycle are retained, so a transient
// outage cannot delete channels. Only actual removals are reported.
func (g *ChannelGroup) removeDeletedLocked(snapshot *ChannelGroup) []*channel.Channel {
	var removed []*channel.Channel

	for _, m := range append([]*Member(nil), g.index.ordered...) {
		ch := m.Channel()
		if _, inSnapshot := snapshot.index.find(ch.ID()); inSnapshot {
			continue
		}
		if !g.hasValidDataLocked(ch.BackendID()) {
			continue
		}

		g.index.remove(ch.ID())
		removed = append(removed, ch)
		g.log.Info("removed stale channel from group", logging.Fields{
			"group":   g.path.Name(),
			"channel": ch.Name(),
		})
	}
	return removed
}

// addAndUpdateLocked walks the snapshot and adds channels missing from the
// group or updates members whose backend number or order shifted. Channels
// unknown to the all channels group are skipped: a channel must register
// there before it can appear in a derived group. When this group is the all
// channels group itself, an unknown channel registers here.
func (g *ChannelGroup) addAndUpdateLocked(snapshot *ChannelGroup, adoptBackendNumbers bool) bool {
	changed := false

	for _, snap := range snapshot.index.ordered {
		id := snap.Channel().ID()

		canonical, known := g.canonicalMemberLocked(id)
		if !known && g.kind != KindAllChannels {
			// Not yet known globally; not an error.
			continue
		}

		existing, isMember := g.index.find(id)
		if !isMember {
			ch := snap.Channel()
			if known {
				ch = canonical.Channel()
			}
			if g.addToGroupLocked(ch, snap.Number(), snap.Order(), adoptBackendNumbers, snap.BackendNumber()) {
				changed = true
			}
			continue
		}

		if existing.BackendNumber() != snap.BackendNumber() || existing.Order() != snap.Order() {
			existing.SetBackendNumber(snap.BackendNumber())
			existing.SetOrder(snap.Order())
			changed = true
			g.log.Debug("updated channel in group", logging.Fields{
				"group":   g.path.Name(),
				"channel": existing.Channel().Name(),
			})
		}
	}
	return changed
}
