package driven

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
)

const (
	groupsBucket   = "groups"
	channelsBucket = "channels"
)

// GroupBoltDBRepository implements the group Repository port using BoltDB.
// Groups are stored as one JSON record per group under an id key; the
// channels of the all channels group live in their own bucket so derived
// group records only carry channel references.
type GroupBoltDBRepository struct {
	db *bbolt.DB
}

// NewGroupBoltDBRepository creates a new BoltDB-backed group repository.
// It initializes the required buckets if they don't exist.
func NewGroupBoltDBRepository(db *bbolt.DB) (*GroupBoltDBRepository, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{groupsBucket, channelsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &GroupBoltDBRepository{db: db}, nil
}

// channelDTO is used for JSON serialization of a channel.
type channelDTO struct {
	BackendID   int    `json:"backend_id"`
	ChannelID   int    `json:"channel_id"`
	DatabaseID  int64  `json:"database_id"`
	Name        string `json:"name"`
	IconPath    string `json:"icon_path,omitempty"`
	UserSetIcon bool   `json:"user_set_icon,omitempty"`
	Radio       bool   `json:"radio,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
	EPGEnabled  bool   `json:"epg_enabled"`
	EPGScraper  string `json:"epg_scraper,omitempty"`
	LastWatched string `json:"last_watched,omitempty"`
}

// numberDTO is used for JSON serialization of a channel number.
type numberDTO struct {
	Major uint `json:"major"`
	Sub   uint `json:"sub,omitempty"`
}

// memberDTO references a channel by identity; the channel record itself is
// stored once, in the channels bucket.
type memberDTO struct {
	BackendID     int       `json:"backend_id"`
	ChannelID     int       `json:"channel_id"`
	Number        numberDTO `json:"number"`
	BackendNumber numberDTO `json:"backend_number"`
	Priority      int       `json:"priority,omitempty"`
	Order         int       `json:"order"`
}

// groupDTO is used for JSON serialization of a group record.
type groupDTO struct {
	Radio       bool        `json:"radio,omitempty"`
	Name        string      `json:"name"`
	AllChannels bool        `json:"all_channels,omitempty"`
	Position    int         `json:"position,omitempty"`
	Hidden      bool        `json:"hidden,omitempty"`
	LastWatched string      `json:"last_watched,omitempty"`
	LastOpened  string      `json:"last_opened,omitempty"`
	Members     []memberDTO `json:"members"`
}

func channelToDTO(ch *channel.Channel) channelDTO {
	return channelDTO{
		BackendID:   ch.ID().BackendID,
		ChannelID:   ch.ID().ChannelID,
		DatabaseID:  ch.DatabaseID(),
		Name:        ch.Name(),
		IconPath:    ch.IconPath(),
		UserSetIcon: ch.IsUserSetIcon(),
		Radio:       ch.IsRadio(),
		Hidden:      ch.IsHidden(),
		Locked:      ch.IsLocked(),
		EPGEnabled:  ch.EPGEnabled(),
		EPGScraper:  ch.EPGScraper(),
		LastWatched: encodeTime(ch.LastWatched()),
	}
}

func dtoToChannel(dto channelDTO) (*channel.Channel, error) {
	lastWatched, err := decodeTime(dto.LastWatched)
	if err != nil {
		return nil, err
	}
	return channel.Reconstruct(channel.Restored{
		ID:          channel.ID{BackendID: dto.BackendID, ChannelID: dto.ChannelID},
		DatabaseID:  dto.DatabaseID,
		Radio:       dto.Radio,
		Name:        dto.Name,
		IconPath:    dto.IconPath,
		UserSetIcon: dto.UserSetIcon,
		Hidden:      dto.Hidden,
		Locked:      dto.Locked,
		EPGEnabled:  dto.EPGEnabled,
		EPGScraper:  dto.EPGScraper,
		LastWatched: lastWatched,
	}), nil
}

func numberToDTO(n channel.Number) numberDTO {
	return numberDTO{Major: n.Major(), Sub: n.Sub()}
}

func dtoToNumber(dto numberDTO) channel.Number {
	return channel.NewNumber(dto.Major, dto.Sub)
}

func groupToDTO(snap group.Snapshot) groupDTO {
	dto := groupDTO{
		Radio:       snap.Path.IsRadio(),
		Name:        snap.Path.Name(),
		AllChannels: snap.Kind == group.KindAllChannels,
		Position:    snap.Position,
		Hidden:      snap.Hidden,
		LastWatched: encodeTime(snap.LastWatched),
		LastOpened:  encodeTime(snap.LastOpened),
		Members:     make([]memberDTO, 0, len(snap.Members)),
	}
	for _, m := range snap.Members {
		dto.Members = append(dto.Members, memberDTO{
			BackendID:     m.Channel.ID().BackendID,
			ChannelID:     m.Channel.ID().ChannelID,
			Number:        numberToDTO(m.Number),
			BackendNumber: numberToDTO(m.BackendNumber),
			Priority:      m.Priority,
			Order:         m.Order,
		})
	}
	return dto
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// groupKey encodes a group id as a big-endian key so records iterate in id
// order.
func groupKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func channelKey(id channel.ID) []byte {
	return []byte(fmt.Sprintf("%d/%d", id.BackendID, id.ChannelID))
}

// LoadGroup populates g with its persisted members. Channels of the all
// channels group are reconstructed from the channels bucket; channels of
// derived groups are resolved against allChannels. Member records whose
// channel cannot be resolved are skipped, they belong to channels that no
// longer exist.
func (r *GroupBoltDBRepository) LoadGroup(ctx context.Context, g, allChannels *group.ChannelGroup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	loaded := 0
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(groupsBucket))
		if bucket == nil {
			return errors.New("groups bucket not found")
		}

		data := bucket.Get(groupKey(g.ID()))
		if data == nil {
			return group.ErrGroupNotFound
		}

		var dto groupDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return err
		}

		g.SetPosition(dto.Position)
		g.SetHidden(dto.Hidden)
		if lastWatched, err := decodeTime(dto.LastWatched); err == nil {
			_ = g.SetLastWatched(ctx, lastWatched)
		}
		if lastOpened, err := decodeTime(dto.LastOpened); err == nil {
			_ = g.SetLastOpened(ctx, lastOpened)
		}

		channels := tx.Bucket([]byte(channelsBucket))
		for _, m := range dto.Members {
			id := channel.ID{BackendID: m.BackendID, ChannelID: m.ChannelID}

			var ch *channel.Channel
			if allChannels == nil {
				if channels == nil {
					return errors.New("channels bucket not found")
				}
				raw := channels.Get(channelKey(id))
				if raw == nil {
					continue
				}
				var cdto channelDTO
				if err := json.Unmarshal(raw, &cdto); err != nil {
					return err
				}
				restored, err := dtoToChannel(cdto)
				if err != nil {
					return err
				}
				ch = restored
			} else {
				if ch = allChannels.ChannelByID(id); ch == nil {
					continue
				}
			}

			member := group.NewMember(ch, dtoToNumber(m.Number), m.Priority, m.Order, dtoToNumber(m.BackendNumber))
			if g.AddPersistedMember(member) {
				loaded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return loaded, nil
}

// PersistGroup writes the snapshot. A group without an id gets one from the
// bucket sequence; channels of the all channels group that were never saved
// get a database id the same way and are written to the channels bucket.
func (r *GroupBoltDBRepository) PersistGroup(ctx context.Context, snap group.Snapshot) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	id := snap.ID
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(groupsBucket))
		if bucket == nil {
			return errors.New("groups bucket not found")
		}

		if id <= 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			id = int64(seq)
		}

		if snap.Kind == group.KindAllChannels {
			channels := tx.Bucket([]byte(channelsBucket))
			if channels == nil {
				return errors.New("channels bucket not found")
			}
			for _, m := range snap.Members {
				ch := m.Channel
				if ch.IsNew() {
					seq, err := channels.NextSequence()
					if err != nil {
						return err
					}
					ch.SetDatabaseID(int64(seq))
				}
				data, err := json.Marshal(channelToDTO(ch))
				if err != nil {
					return err
				}
				if err := channels.Put(channelKey(ch.ID()), data); err != nil {
					return err
				}
				ch.MarkSaved()
			}
		}

		data, err := json.Marshal(groupToDTO(snap))
		if err != nil {
			return err
		}
		return bucket.Put(groupKey(id), data)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// updateGroupRecord rewrites an existing group record through modify.
func (r *GroupBoltDBRepository) updateGroupRecord(ctx context.Context, id int64, modify func(*groupDTO)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(groupsBucket))
		if bucket == nil {
			return errors.New("groups bucket not found")
		}

		key := groupKey(id)
		data := bucket.Get(key)
		if data == nil {
			return group.ErrGroupNotFound
		}

		var dto groupDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			return err
		}
		modify(&dto)

		updated, err := json.Marshal(dto)
		if err != nil {
			return err
		}
		return bucket.Put(key, updated)
	})
}

// UpdateLastWatched writes only the last watched timestamp of the group.
func (r *GroupBoltDBRepository) UpdateLastWatched(ctx context.Context, snap group.Snapshot) error {
	return r.updateGroupRecord(ctx, snap.ID, func(dto *groupDTO) {
		dto.LastWatched = encodeTime(snap.LastWatched)
	})
}

// UpdateLastOpened writes only the last opened timestamp of the group.
func (r *GroupBoltDBRepository) UpdateLastOpened(ctx context.Context, snap group.Snapshot) error {
	return r.updateGroupRecord(ctx, snap.ID, func(dto *groupDTO) {
		dto.LastOpened = encodeTime(snap.LastOpened)
	})
}

// DeleteGroup removes the persisted group record. The channels bucket is
// left alone; channels belong to the all channels group.
func (r *GroupBoltDBRepository) DeleteGroup(ctx context.Context, snap group.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(groupsBucket))
		if bucket == nil {
			return errors.New("groups bucket not found")
		}

		key := groupKey(snap.ID)
		if bucket.Get(key) == nil {
			return group.ErrGroupNotFound
		}
		return bucket.Delete(key)
	})
}

// ListGroups returns the stored identity of every persisted group, without
// member records, in id order.
func (r *GroupBoltDBRepository) ListGroups(ctx context.Context) ([]group.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var snaps []group.Snapshot
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(groupsBucket))
		if bucket == nil {
			return errors.New("groups bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			var dto groupDTO
			if err := json.Unmarshal(v, &dto); err != nil {
				return err
			}

			kind := group.KindUser
			if dto.AllChannels {
				kind = group.KindAllChannels
			}
			lastWatched, err := decodeTime(dto.LastWatched)
			if err != nil {
				return err
			}
			lastOpened, err := decodeTime(dto.LastOpened)
			if err != nil {
				return err
			}

			snaps = append(snaps, group.Snapshot{
				ID:          int64(binary.BigEndian.Uint64(k)),
				Kind:        kind,
				Path:        group.NewPath(dto.Radio, dto.Name),
				Position:    dto.Position,
				Hidden:      dto.Hidden,
				LastWatched: lastWatched,
				LastOpened:  lastOpened,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if snaps == nil {
		snaps = []group.Snapshot{}
	}
	return snaps, nil
}

// Ping checks if the BoltDB database is accessible and operational.
func (r *GroupBoltDBRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(groupsBucket)) == nil {
			return errors.New("groups bucket not found")
		}
		return nil
	})
}
