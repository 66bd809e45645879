package driven

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
)

// setupTestDB creates a temporary BoltDB instance for testing.
func setupTestDB(t *testing.T) *bbolt.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func setupRepo(t *testing.T) *GroupBoltDBRepository {
	t.Helper()

	repo, err := NewGroupBoltDBRepository(setupTestDB(t))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	return repo
}

func quietDeps() group.Dependencies {
	return group.Dependencies{Logger: logging.New(logging.ERROR)}
}

func newTestChannel(t *testing.T, backendID, channelID int, name string) *channel.Channel {
	t.Helper()

	ch, err := channel.New(channel.ID{BackendID: backendID, ChannelID: channelID}, name, false)
	if err != nil {
		t.Fatalf("failed to create channel %q: %v", name, err)
	}
	return ch
}

func TestNewGroupBoltDBRepository(t *testing.T) {
	t.Run("creates repository and buckets successfully", func(t *testing.T) {
		db := setupTestDB(t)

		repo, err := NewGroupBoltDBRepository(db)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if repo == nil {
			t.Fatal("expected non-nil repository")
		}

		err = db.View(func(tx *bbolt.Tx) error {
			for _, name := range []string{groupsBucket, channelsBucket} {
				if tx.Bucket([]byte(name)) == nil {
					t.Errorf("expected %s bucket to exist", name)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("failed to verify buckets: %v", err)
		}
	})

	t.Run("returns error for nil database", func(t *testing.T) {
		repo, err := NewGroupBoltDBRepository(nil)
		if err == nil {
			t.Fatal("expected error for nil database")
		}
		if repo != nil {
			t.Error("expected nil repository")
		}
	})
}

func TestGroupBoltDBRepository_PersistAndLoad(t *testing.T) {
	t.Run("round-trips the all channels group", func(t *testing.T) {
		repo := setupRepo(t)
		ctx := context.Background()

		a := newTestChannel(t, 1, 1, "A")
		b := newTestChannel(t, 1, 2, "B")
		a.SetLastWatched(time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC))

		all := group.NewAllChannelsGroup(false, 0, quietDeps())
		all.AddToGroup(a, channel.Number{}, 0, channel.NewNumber(7, 0))
		all.AddToGroup(b, channel.Number{}, 1, channel.Number{})

		id, err := repo.PersistGroup(ctx, all.Snapshot())
		if err != nil {
			t.Fatalf("PersistGroup() error: %v", err)
		}
		if id <= 0 {
			t.Fatalf("PersistGroup() id = %d, want a positive id", id)
		}

		// Persisting assigns database ids to new channels.
		if a.IsNew() || b.IsNew() {
			t.Error("expected channels to receive database ids on persist")
		}
		if a.DatabaseID() == b.DatabaseID() {
			t.Error("expected distinct database ids")
		}

		restored := group.NewAllChannelsGroup(false, id, quietDeps())
		loaded, err := repo.LoadGroup(ctx, restored, nil)
		if err != nil {
			t.Fatalf("LoadGroup() error: %v", err)
		}
		if loaded != 2 {
			t.Fatalf("LoadGroup() = %d members, want 2", loaded)
		}

		got := restored.ChannelByID(a.ID())
		if got == nil {
			t.Fatal("expected channel A to be restored")
		}
		if got.Name() != "A" || got.DatabaseID() != a.DatabaseID() {
			t.Errorf("restored channel = %q/%d, want %q/%d", got.Name(), got.DatabaseID(), "A", a.DatabaseID())
		}
		if !got.LastWatched().Equal(a.LastWatched()) {
			t.Errorf("restored LastWatched = %v, want %v", got.LastWatched(), a.LastWatched())
		}
		m, ok := restored.MemberByID(a.ID())
		if !ok {
			t.Fatal("expected a member for channel A")
		}
		if m.BackendNumber() != channel.NewNumber(7, 0) {
			t.Errorf("restored backend number = %v, want 7", m.BackendNumber())
		}
		if m.NeedsSave() {
			t.Error("expected restored members to arrive clean")
		}
	})

	t.Run("resolves user group members against the all channels group", func(t *testing.T) {
		repo := setupRepo(t)
		ctx := context.Background()

		a := newTestChannel(t, 1, 1, "A")
		b := newTestChannel(t, 1, 2, "B")
		all := group.NewAllChannelsGroup(false, 0, quietDeps())
		all.AddToGroup(a, channel.Number{}, 0, channel.Number{})
		all.AddToGroup(b, channel.Number{}, 1, channel.Number{})

		user := group.NewUserGroup(group.NewPath(false, "Favourites"), 0, all, quietDeps())
		user.AddToGroup(b, channel.Number{}, 0, channel.Number{})
		user.SetPosition(3)

		id, err := repo.PersistGroup(ctx, user.Snapshot())
		if err != nil {
			t.Fatalf("PersistGroup() error: %v", err)
		}

		restored := group.NewUserGroup(group.NewPath(false, "Favourites"), id, all, quietDeps())
		loaded, err := repo.LoadGroup(ctx, restored, all)
		if err != nil {
			t.Fatalf("LoadGroup() error: %v", err)
		}
		if loaded != 1 {
			t.Fatalf("LoadGroup() = %d members, want 1", loaded)
		}
		if restored.Position() != 3 {
			t.Errorf("Position() = %d, want 3", restored.Position())
		}
		// The restored member aliases the canonical channel instance.
		if got := restored.ChannelByID(b.ID()); got != b {
			t.Error("expected the restored member to reference the canonical channel")
		}
	})

	t.Run("skips member records of vanished channels", func(t *testing.T) {
		repo := setupRepo(t)
		ctx := context.Background()

		a := newTestChannel(t, 1, 1, "A")
		gone := newTestChannel(t, 1, 9, "Gone")
		all := group.NewAllChannelsGroup(false, 0, quietDeps())
		all.AddToGroup(a, channel.Number{}, 0, channel.Number{})

		user := group.NewUserGroup(group.NewPath(false, "Favourites"), 0, all, quietDeps())
		user.AddToGroup(a, channel.Number{}, 0, channel.Number{})

		snap := user.Snapshot()
		snap.Members = append(snap.Members, group.MemberRecord{Channel: gone, Number: channel.NewNumber(9, 0)})

		id, err := repo.PersistGroup(ctx, snap)
		if err != nil {
			t.Fatalf("PersistGroup() error: %v", err)
		}

		restored := group.NewUserGroup(group.NewPath(false, "Favourites"), id, all, quietDeps())
		loaded, err := repo.LoadGroup(ctx, restored, all)
		if err != nil {
			t.Fatalf("LoadGroup() error: %v", err)
		}
		if loaded != 1 {
			t.Errorf("LoadGroup() = %d members, want 1 (the vanished channel is skipped)", loaded)
		}
	})

	t.Run("keeps an explicit id", func(t *testing.T) {
		repo := setupRepo(t)
		ctx := context.Background()

		g := group.NewUserGroup(group.NewPath(false, "Favourites"), 77, nil, quietDeps())
		id, err := repo.PersistGroup(ctx, g.Snapshot())
		if err != nil {
			t.Fatalf("PersistGroup() error: %v", err)
		}
		if id != 77 {
			t.Errorf("PersistGroup() id = %d, want 77", id)
		}
	})

	t.Run("returns ErrGroupNotFound for an unknown group", func(t *testing.T) {
		repo := setupRepo(t)

		g := group.NewUserGroup(group.NewPath(false, "Favourites"), 99, nil, quietDeps())
		if _, err := repo.LoadGroup(context.Background(), g, nil); !errors.Is(err, group.ErrGroupNotFound) {
			t.Fatalf("LoadGroup() error = %v, want ErrGroupNotFound", err)
		}
	})
}

func TestGroupBoltDBRepository_UpdateTimestamps(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	g := group.NewUserGroup(group.NewPath(false, "Favourites"), 0, nil, quietDeps())
	id, err := repo.PersistGroup(ctx, g.Snapshot())
	if err != nil {
		t.Fatalf("PersistGroup() error: %v", err)
	}
	g.SetID(id)

	at := time.Date(2026, 4, 1, 21, 30, 0, 0, time.UTC)
	snap := g.Snapshot()
	snap.LastWatched = at
	snap.LastOpened = at.Add(time.Minute)

	if err := repo.UpdateLastWatched(ctx, snap); err != nil {
		t.Fatalf("UpdateLastWatched() error: %v", err)
	}
	if err := repo.UpdateLastOpened(ctx, snap); err != nil {
		t.Fatalf("UpdateLastOpened() error: %v", err)
	}

	restored := group.NewUserGroup(group.NewPath(false, "Favourites"), id, nil, quietDeps())
	if _, err := repo.LoadGroup(ctx, restored, nil); err != nil {
		t.Fatalf("LoadGroup() error: %v", err)
	}
	if !restored.LastWatched().Equal(at) {
		t.Errorf("LastWatched() = %v, want %v", restored.LastWatched(), at)
	}
	if !restored.LastOpened().Equal(at.Add(time.Minute)) {
		t.Errorf("LastOpened() = %v, want %v", restored.LastOpened(), at.Add(time.Minute))
	}

	snap.ID = 99
	if err := repo.UpdateLastWatched(ctx, snap); !errors.Is(err, group.ErrGroupNotFound) {
		t.Errorf("UpdateLastWatched() on unknown group = %v, want ErrGroupNotFound", err)
	}
}

func TestGroupBoltDBRepository_DeleteGroup(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	g := group.NewUserGroup(group.NewPath(false, "Favourites"), 0, nil, quietDeps())
	id, err := repo.PersistGroup(ctx, g.Snapshot())
	if err != nil {
		t.Fatalf("PersistGroup() error: %v", err)
	}

	snap := g.Snapshot()
	snap.ID = id
	if err := repo.DeleteGroup(ctx, snap); err != nil {
		t.Fatalf("DeleteGroup() error: %v", err)
	}
	if err := repo.DeleteGroup(ctx, snap); !errors.Is(err, group.ErrGroupNotFound) {
		t.Errorf("second DeleteGroup() = %v, want ErrGroupNotFound", err)
	}
}

func TestGroupBoltDBRepository_ListGroups(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	empty, err := repo.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups() error: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("ListGroups() on empty store = %d entries, want 0", len(empty))
	}

	all := group.NewAllChannelsGroup(false, 0, quietDeps())
	user := group.NewUserGroup(group.NewPath(true, "News"), 0, nil, quietDeps())
	user.SetHidden(true)

	allID, err := repo.PersistGroup(ctx, all.Snapshot())
	if err != nil {
		t.Fatalf("PersistGroup(all) error: %v", err)
	}
	userID, err := repo.PersistGroup(ctx, user.Snapshot())
	if err != nil {
		t.Fatalf("PersistGroup(user) error: %v", err)
	}

	snaps, err := repo.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups() error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("ListGroups() = %d entries, want 2", len(snaps))
	}

	if snaps[0].ID != allID || snaps[0].Kind != group.KindAllChannels {
		t.Errorf("first entry = %d/%v, want %d/KindAllChannels", snaps[0].ID, snaps[0].Kind, allID)
	}
	if snaps[1].ID != userID || snaps[1].Kind != group.KindUser {
		t.Errorf("second entry = %d/%v, want %d/KindUser", snaps[1].ID, snaps[1].Kind, userID)
	}
	if !snaps[1].Path.IsRadio() || snaps[1].Path.Name() != "News" {
		t.Errorf("second entry path = %v, want radio/News", snaps[1].Path)
	}
	if !snaps[1].Hidden {
		t.Error("expected the hidden flag to survive listing")
	}
}

func TestGroupBoltDBRepository_ContextCancellation(t *testing.T) {
	repo := setupRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := group.NewUserGroup(group.NewPath(false, "Favourites"), 1, nil, quietDeps())
	if _, err := repo.LoadGroup(ctx, g, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("LoadGroup() = %v, want context.Canceled", err)
	}
	if _, err := repo.PersistGroup(ctx, g.Snapshot()); !errors.Is(err, context.Canceled) {
		t.Errorf("PersistGroup() = %v, want context.Canceled", err)
	}
}
