package group

import (
	"context"
	"errors"
	"time"

	"github.com/alorle/pvr-manager/internal/channel"
)

// Port errors
var (
	// ErrNoRepository is returned by operations that need the store while
	// none is configured. In-memory state is never touched in that case.
	ErrNoRepository = errors.New("no group repository available")

	// ErrGroupNotFound is returned by repositories when the addressed group
	// has no persisted record.
	ErrGroupNotFound = errors.New("group not found")
)

// Snapshot is a copy of a group's persistable state, taken under the group
// lock and handed to the repository. Channel pointers are shared; channel
// attributes carry their own synchronization.
type Snapshot struct {
	ID          int64
	Kind        Kind
	Path        Path
	Position    int
	Hidden      bool
	LastWatched time.Time
	LastOpened  time.Time
	Members     []MemberRecord
}

// MemberRecord is the persistable state of one group member.
type MemberRecord struct {
	Channel       *channel.Channel
	Number        channel.Number
	BackendNumber channel.Number
	Priority      int
	Order         int
}

// Repository is the persistence collaborator for channel groups. It is
// defined here, on the consumer side, and implemented by storage adapters.
type Repository interface {
	// LoadGroup populates g with the members persisted for it. For groups
	// other than the all channels group, channel references are resolved
	// against allChannels; allChannels is nil when g is the all channels
	// group itself. Returns the number of members loaded.
	LoadGroup(ctx context.Context, g, allChannels *ChannelGroup) (int, error)

	// PersistGroup writes the snapshot and returns the (possibly newly
	// assigned) group id.
	PersistGroup(ctx context.Context, snap Snapshot) (int64, error)

	// UpdateLastWatched writes only the last watched timestamp.
	UpdateLastWatched(ctx context.Context, snap Snapshot) error

	// UpdateLastOpened writes only the last opened timestamp.
	UpdateLastOpened(ctx context.Context, snap Snapshot) error

	// DeleteGroup removes the persisted group and its member rows.
	DeleteGroup(ctx context.Context, snap Snapshot) error
}

// BackendClients is the backend collaborator supplying raw membership data.
type BackendClients interface {
	// FetchGroupMembers asks every enabled backend for the members of the
	// group identified by target's path and adds them to target via
	// AddBackendMember. Backends that fail to report are returned by id;
	// a non-nil error means the fetch as a whole failed.
	FetchGroupMembers(ctx context.Context, target *ChannelGroup) ([]int, error)

	// Priority returns the priority of the given backend. ok is false when
	// the backend does not exist or has not been created.
	Priority(backendID int) (priority int, ok bool)

	// IsCreated reports whether the given backend exists and is ready.
	IsCreated(backendID int) bool

	// EnabledCount returns the number of enabled backends.
	EnabledCount() int
}
