package group

import "github.com/google/uuid"

// EventKind classifies a group change notification.
type EventKind int

const (
	// GroupChanged is a shallow update: numbers or ordering may have
	// shifted but the set of channels is stable.
	GroupChanged EventKind = iota
	// GroupInvalidated is a structural update: channels were added or
	// removed, or members were renumbered.
	GroupInvalidated
)

func (k EventKind) String() string {
	switch k {
	case GroupChanged:
		return "changed"
	case GroupInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event is one group change notification.
type Event struct {
	ID      uuid.UUID
	Kind    EventKind
	GroupID int64
	Path    Path
}

// EventSink receives group change notifications. Implementations must be
// safe for concurrent use; Publish is called outside the group's lock and
// must not call back into the publishing group.
type EventSink interface {
	Publish(Event)
}

// publish delivers an event to the sink, if one is configured.
func (g *ChannelGroup) publish(kind EventKind) {
	if g.events == nil {
		return
	}
	g.events.Publish(Event{
		ID:      uuid.New(),
		Kind:    kind,
		GroupID: g.ID(),
		Path:    g.Path(),
	})
}
