package channel

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Domain errors
var (
	ErrEmptyName       = errors.New("channel name cannot be empty")
	ErrChannelNotFound = errors.New("channel not found")
)

// ID uniquely identifies a channel across all backends. A channel id is only
// meaningful together with the id of the backend that reported it.
type ID struct {
	BackendID int
	ChannelID int
}

// Channel represents a single TV or radio channel. One Channel instance is
// shared by every group that lists it: the all channels group holds the
// canonical reference and derived groups alias it. Attribute access is
// guarded by the channel's own mutex; concurrent writers from different
// groups are last-writer-wins.
type Channel struct {
	mu sync.Mutex

	id         ID
	databaseID int64
	radio      bool

	name        string
	iconPath    string
	userSetIcon bool
	hidden      bool
	locked      bool
	epgEnabled  bool
	epgScraper  string
	lastWatched time.Time

	changed bool
}

// New creates a Channel as reported by a backend.
// Returns ErrEmptyName if the name is empty or contains only whitespace.
func New(id ID, name string, radio bool) (*Channel, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrEmptyName
	}
	return &Channel{
		id:         id,
		radio:      radio,
		name:       trimmed,
		epgEnabled: true,
		changed:    true,
	}, nil
}

// Restored carries the persisted state Reconstruct rebuilds a Channel from.
type Restored struct {
	ID          ID
	DatabaseID  int64
	Radio       bool
	Name        string
	IconPath    string
	UserSetIcon bool
	Hidden      bool
	Locked      bool
	EPGEnabled  bool
	EPGScraper  string
	LastWatched time.Time
}

// Reconstruct rebuilds a Channel from persisted state. It bypasses
// validation; the store is trusted to hold values that passed New once.
func Reconstruct(r Restored) *Channel {
	return &Channel{
		id:          r.ID,
		databaseID:  r.DatabaseID,
		radio:       r.Radio,
		name:        r.Name,
		iconPath:    r.IconPath,
		userSetIcon: r.UserSetIcon,
		hidden:      r.Hidden,
		locked:      r.Locked,
		epgEnabled:  r.EPGEnabled,
		epgScraper:  r.EPGScraper,
		lastWatched: r.LastWatched,
	}
}

// ID returns the backend-qualified channel identity.
func (c *Channel) ID() ID {
	return c.id
}

// BackendID returns the id of the backend that owns this channel.
func (c *Channel) BackendID() int {
	return c.id.BackendID
}

// DatabaseID returns the persistent id, or 0 if the channel was never saved.
func (c *Channel) DatabaseID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseID
}

// SetDatabaseID records the id assigned by the store.
func (c *Channel) SetDatabaseID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.databaseID = id
}

// IsNew reports whether the channel has not been persisted yet.
func (c *Channel) IsNew() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseID <= 0
}

// IsRadio reports whether this is a radio channel.
func (c *Channel) IsRadio() bool {
	return c.radio
}

// Name returns the display name.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName updates the display name. Empty names are ignored.
func (c *Channel) SetName(name string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name != trimmed {
		c.name = trimmed
		c.changed = true
	}
}

// IsHidden reports whether the channel is hidden from listings.
func (c *Channel) IsHidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

// SetHidden updates the hidden flag.
func (c *Channel) SetHidden(hidden bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hidden != hidden {
		c.hidden = hidden
		c.changed = true
	}
}

// IconPath returns the channel icon location.
func (c *Channel) IconPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iconPath
}

// SetIconPath updates the icon location. userSet marks the icon as chosen by
// the user, which stops backend updates from overwriting it.
func (c *Channel) SetIconPath(path string, userSet bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userSetIcon && !userSet {
		return
	}
	if c.iconPath != path || c.userSetIcon != userSet {
		c.iconPath = path
		c.userSetIcon = userSet
		c.changed = true
	}
}

// IsUserSetIcon reports whether the icon was chosen by the user.
func (c *Channel) IsUserSetIcon() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userSetIcon
}

// IsLocked reports whether the channel is parental locked.
func (c *Channel) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// SetLocked updates the parental lock flag.
func (c *Channel) SetLocked(locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked != locked {
		c.locked = locked
		c.changed = true
	}
}

// EPGEnabled reports whether guide data should be fetched for this channel.
func (c *Channel) EPGEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epgEnabled
}

// SetEPGEnabled updates the guide data flag.
func (c *Channel) SetEPGEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epgEnabled != enabled {
		c.epgEnabled = enabled
		c.changed = true
	}
}

// EPGScraper returns the name of the guide data source for this channel.
func (c *Channel) EPGScraper() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epgScraper
}

// SetEPGScraper updates the guide data source.
func (c *Channel) SetEPGScraper(scraper string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epgScraper != scraper {
		c.epgScraper = scraper
		c.changed = true
	}
}

// LastWatched returns when the channel was last watched, zero if never.
func (c *Channel) LastWatched() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWatched
}

// SetLastWatched records a watch timestamp.
func (c *Channel) SetLastWatched(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastWatched.Equal(at) {
		c.lastWatched = at
		c.changed = true
	}
}

// HasChanges reports whether the channel has unsaved attribute changes.
func (c *Channel) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// MarkSaved clears the unsaved-changes flag after a successful persist.
func (c *Channel) MarkSaved() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = false
}
