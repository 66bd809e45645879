package group

import (
	"context"
	"sync"
)

// MockRepository is a mock implementation of the Repository interface for testing
type MockRepository struct {
	LoadGroupFunc         func(ctx context.Context, g, allChannels *ChannelGroup) (int, error)
	PersistGroupFunc      func(ctx context.Context, snap Snapshot) (int64, error)
	UpdateLastWatchedFunc func(ctx context.Context, snap Snapshot) error
	UpdateLastOpenedFunc  func(ctx context.Context, snap Snapshot) error
	DeleteGroupFunc       func(ctx context.Context, snap Snapshot) error
}

// LoadGroup implements Repository.LoadGroup
func (m *MockRepository) LoadGroup(ctx context.Context, g, allChannels *ChannelGroup) (int, error) {
	if m.LoadGroupFunc != nil {
		return m.LoadGroupFunc(ctx, g, allChannels)
	}
	return 0, nil
}

// PersistGroup implements Repository.PersistGroup
func (m *MockRepository) PersistGroup(ctx context.Context, snap Snapshot) (int64, error) {
	if m.PersistGroupFunc != nil {
		return m.PersistGroupFunc(ctx, snap)
	}
	return snap.ID, nil
}

// UpdateLastWatched implements Repository.UpdateLastWatched
func (m *MockRepository) UpdateLastWatched(ctx context.Context, snap Snapshot) error {
	if m.UpdateLastWatchedFunc != nil {
		return m.UpdateLastWatchedFunc(ctx, snap)
	}
	return nil
}

// UpdateLastOpened implements Repository.UpdateLastOpened
func (m *MockRepository) UpdateLastOpened(ctx context.Context, snap Snapshot) error {
	if m.UpdateLastOpenedFunc != nil {
		return m.UpdateLastOpenedFunc(ctx, snap)
	}
	return nil
}

// DeleteGroup implements Repository.DeleteGroup
func (m *MockRepository) DeleteGroup(ctx context.Context, snap Snapshot) error {
	if m.DeleteGroupFunc != nil {
		return m.DeleteGroupFunc(ctx, snap)
	}
	return nil
}

// MockBackends is a mock implementation of the BackendClients interface for testing
type MockBackends struct {
	FetchGroupMembersFunc func(ctx context.Context, target *ChannelGroup) ([]int, error)
	PriorityFunc          func(backendID int) (int, bool)
	IsCreatedFunc         func(backendID int) bool
	EnabledCountFunc      func() int
}

// FetchGroupMembers implements BackendClients.FetchGroupMembers
func (m *MockBackends) FetchGroupMembers(ctx context.Context, target *ChannelGroup) ([]int, error) {
	if m.FetchGroupMembersFunc != nil {
		return m.FetchGroupMembersFunc(ctx, target)
	}
	return nil, nil
}

// Priority implements BackendClients.Priority
func (m *MockBackends) Priority(backendID int) (int, bool) {
	if m.PriorityFunc != nil {
		return m.PriorityFunc(backendID)
	}
	return 0, true
}

// IsCreated implements BackendClients.IsCreated
func (m *MockBackends) IsCreated(backendID int) bool {
	if m.IsCreatedFunc != nil {
		return m.IsCreatedFunc(backendID)
	}
	return true
}

// EnabledCount implements BackendClients.EnabledCount
func (m *MockBackends) EnabledCount() int {
	if m.EnabledCountFunc != nil {
		return m.EnabledCountFunc()
	}
	return 1
}

// RecordingSink is an EventSink that records every published event.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements EventSink.Publish
func (s *RecordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Kinds returns the kinds of the recorded events, in publish order.
func (s *RecordingSink) Kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Reset drops all recorded events.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
