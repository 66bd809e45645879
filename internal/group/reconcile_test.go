package group

import (
	"context"
	"errors"
	"testing"

	"github.com/alorle/pvr-manager/internal/channel"
)

// fetchReturning builds a backend mock whose fetch populates the target
// with the given channels and reports the given failed backends.
func fetchReturning(failed []int, channels ...*channel.Channel) *MockBackends {
	return &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			for i, ch := range channels {
				target.AddBackendMember(ch, channel.Number{}, channel.NewNumber(uint(i+1), 0), i)
			}
			return failed, nil
		},
	}
}

func TestUpdateRemovesStaleChannels(t *testing.T) {
	deps := quietDeps()
	sink := &RecordingSink{}
	deps.Repository = &MockRepository{}
	deps.Events = sink

	a := testChannel(t, 1, 1, "A")
	b := testChannel(t, 1, 2, "B")
	c := testChannel(t, 1, 3, "C")

	deps.Clients = fetchReturning(nil, a, b)
	g := NewAllChannelsGroup(false, 1, deps)
	for i, ch := range []*channel.Channel{a, b, c} {
		g.AddToGroup(ch, channel.Number{}, i, channel.Number{})
	}

	removed, err := g.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if len(removed) != 1 || removed[0] != c {
		t.Fatalf("removed = %v, want [C]", removed)
	}
	if g.IsGroupMember(c) {
		t.Error("expected C to be gone from the group")
	}
	if g.Size() != 2 {
		t.Errorf("Size() = %d, want 2", g.Size())
	}

	kinds := sink.Kinds()
	if len(kinds) == 0 || kinds[len(kinds)-1] != GroupInvalidated {
		t.Errorf("expected a GroupInvalidated event, got %v", kinds)
	}
}

func TestUpdateRetainsChannelsOfFailedBackend(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}

	a := testChannel(t, 1, 1, "A")
	d := testChannel(t, 2, 4, "D") // owned by backend 2, which fails

	deps.Clients = fetchReturning([]int{2}, a)
	g := NewAllChannelsGroup(false, 1, deps)
	g.AddToGroup(a, channel.Number{}, 0, channel.Number{})
	g.AddToGroup(d, channel.Number{}, 1, channel.Number{})

	removed, err := g.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	if !g.IsGroupMember(d) {
		t.Error("expected D to be retained while its backend is failed")
	}
	if g.HasValidDataFromBackend(2) {
		t.Error("expected backend 2 to be recorded as failed")
	}
	if !g.HasValidDataFromBackend(1) {
		t.Error("expected backend 1 to be recorded as valid")
	}
}

func TestUpdateAddsKnownChannels(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}

	a := testChannel(t, 1, 1, "A")
	b := testChannel(t, 1, 2, "B")

	all := NewAllChannelsGroup(false, 1, quietDeps())
	all.AddToGroup(a, channel.Number{}, 0, channel.Number{})
	all.AddToGroup(b, channel.Number{}, 1, channel.Number{})

	deps.Clients = fetchReturning(nil, b)
	user := NewUserGroup(NewPath(false, "Favourites"), 0, all, deps)
	user.syncGroups = true

	if _, err := user.Update(context.Background()); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if !user.IsGroupMember(b) {
		t.Fatal("expected B to be added to the user group")
	}
	if user.IsGroupMember(a) {
		t.Error("did not expect A in the user group")
	}
	// The new member's channel is the canonical instance, not the one the
	// backend snapshot carried.
	if got := user.ChannelByID(b.ID()); got != b {
		t.Error("expected the member to reference the all channels group's channel")
	}
}

func TestUpdateSkipsGloballyUnknownChannels(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}

	known := testChannel(t, 1, 1, "Known")
	unknown := testChannel(t, 1, 99, "Unknown")

	all := NewAllChannelsGroup(false, 1, quietDeps())
	all.AddToGroup(known, channel.Number{}, 0, channel.Number{})

	deps.Clients = fetchReturning(nil, known, unknown)
	user := NewUserGroup(NewPath(false, "Favourites"), 0, all, deps)
	user.syncGroups = true

	if _, err := user.Update(context.Background()); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if user.IsGroupMember(unknown) {
		t.Error("expected a globally unknown channel to be skipped")
	}
	if !user.IsGroupMember(known) {
		t.Error("expected the known channel to be added")
	}
}

func TestUpdateRegistersNewChannelsInAllChannelsGroup(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}

	a := testChannel(t, 1, 1, "A")
	deps.Clients = fetchReturning(nil, a)
	g := NewAllChannelsGroup(false, 1, deps)

	if _, err := g.Update(context.Background()); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	if !g.IsGroupMember(a) {
		t.Fatal("expected a new backend channel to register in the all channels group")
	}
	if n := g.NumberOf(a); n != channel.NewNumber(1, 0) {
		t.Errorf("NumberOf(A) = %v, want 1", n)
	}
}

func TestUpdateChangesBackendNumberInPlace(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}
	sink := &RecordingSink{}
	deps.Events = sink

	a := testChannel(t, 1, 1, "A")
	deps.Clients = &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			target.AddBackendMember(a, channel.Number{}, channel.NewNumber(8, 0), 3)
			return nil, nil
		},
	}
	g := NewAllChannelsGroup(false, 1, deps)
	g.AddToGroup(a, channel.Number{}, 0, channel.NewNumber(5, 0))

	if _, err := g.Update(context.Background()); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	m, ok := g.MemberByID(a.ID())
	if !ok {
		t.Fatal("expected A to stay a member")
	}
	if m.BackendNumber() != channel.NewNumber(8, 0) {
		t.Errorf("BackendNumber() = %v, want 8", m.BackendNumber())
	}
	if m.Order() != 3 {
		t.Errorf("Order() = %d, want 3", m.Order())
	}
}

func TestUpdateNoChangeDoesNotPersistOrPublish(t *testing.T) {
	deps := quietDeps()
	persisted := 0
	deps.Repository = &MockRepository{
		PersistGroupFunc: func(ctx context.Context, snap Snapshot) (int64, error) {
			persisted++
			return snap.ID, nil
		},
	}
	sink := &RecordingSink{}
	deps.Events = sink

	a := testChannel(t, 1, 1, "A")
	deps.Clients = &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			target.AddBackendMember(a, channel.Number{}, channel.Number{}, 0)
			return nil, nil
		},
	}
	g := NewAllChannelsGroup(false, 1, deps)
	g.AddToGroup(a, channel.Number{}, 0, channel.Number{})

	// First update settles state; the second must be a no-op.
	if _, err := g.Update(context.Background()); err != nil {
		t.Fatalf("first Update() error: %v", err)
	}
	persisted = 0
	sink.Reset()

	if _, err := g.Update(context.Background()); err != nil {
		t.Fatalf("second Update() error: %v", err)
	}
	if persisted != 0 {
		t.Errorf("expected no persist on a no-change update, got %d", persisted)
	}
	if len(sink.Events()) != 0 {
		t.Errorf("expected no events on a no-change update, got %v", sink.Kinds())
	}
}

func TestUpdateSkipsUserGroupWithoutSync(t *testing.T) {
	fetched := false
	deps := quietDeps()
	deps.Clients = &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			fetched = true
			return nil, nil
		},
	}

	all := NewAllChannelsGroup(false, 1, quietDeps())
	user := NewUserGroup(NewPath(false, "Favourites"), 7, all, deps)

	removed, err := user.Update(context.Background())
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if removed != nil {
		t.Errorf("removed = %v, want nil", removed)
	}
	if fetched {
		t.Error("expected no backend fetch for a user group without group sync")
	}
}

func TestUpdateFetchFailure(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}
	deps.Clients = &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			return []int{1}, errors.New("all backends unreachable")
		},
	}

	g := NewAllChannelsGroup(false, 1, deps)
	a := testChannel(t, 1, 1, "A")
	g.AddToGroup(a, channel.Number{}, 0, channel.Number{})

	if _, err := g.Update(context.Background()); err == nil {
		t.Fatal("expected Update to fail when the fetch as a whole fails")
	}
	if !g.IsGroupMember(a) {
		t.Error("expected membership to be untouched after a failed fetch")
	}
	if g.HasValidDataFromBackend(1) {
		t.Error("expected backend 1 to be recorded as failed")
	}
}

func TestFirstLoadAdoptsBackendOrdering(t *testing.T) {
	deps := quietDeps()
	deps.Repository = &MockRepository{}

	a := testChannel(t, 1, 1, "A")
	b := testChannel(t, 1, 2, "B")

	all := NewAllChannelsGroup(false, 1, quietDeps())
	all.AddToGroup(a, channel.Number{}, 0, channel.Number{})
	all.AddToGroup(b, channel.Number{}, 1, channel.Number{})

	// The backend lists B before A by number.
	deps.Clients = &MockBackends{
		FetchGroupMembersFunc: func(ctx context.Context, target *ChannelGroup) ([]int, error) {
			target.AddBackendMember(a, channel.Number{}, channel.NewNumber(3, 0), 0)
			target.AddBackendMember(b, channel.Number{}, channel.NewNumber(1, 0), 1)
			return nil, nil
		},
	}
	user := NewUserGroup(NewPath(false, "Favourites"), 0, all, deps)

	removed, err := user.Load(context.Background(), Policy{SyncGroups: true, StartFromOne: true})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}

	// On the very first reconciliation new members adopt the backend
	// numbers, so the start-from-one numbering follows backend order.
	if got := orderedNames(user); got[0] != "B" || got[1] != "A" {
		t.Fatalf("order = %v, want [B A]", got)
	}
	if n := user.NumberOf(b); n != channel.NewNumber(1, 0) {
		t.Errorf("NumberOf(B) = %v, want 1", n)
	}
	if n := user.NumberOf(a); n != channel.NewNumber(2, 0) {
		t.Errorf("NumberOf(A) = %v, want 2", n)
	}
}
