package pubsub

import (
	"context"
	"sync"
)

// Memory is an in-process group layer. It is the default for single-node
// deployments and the fake used throughout the tests.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[Subscriber]struct{}
	closed bool
}

// NewMemory creates an in-process group layer.
func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]map[Subscriber]struct{}),
	}
}

// Join adds sub to the named group, creating the group on first join.
func (m *Memory) Join(_ context.Context, group string, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrLayerClosed
	}

	subs, ok := m.groups[group]
	if !ok {
		subs = make(map[Subscriber]struct{})
		m.groups[group] = subs
	}
	subs[sub] = struct{}{}
	return nil
}

// Leave removes sub from the named group. Leaving a group the subscriber
// never joined is a no-op.
func (m *Memory) Leave(_ context.Context, group string, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrLayerClosed
	}

	subs, ok := m.groups[group]
	if !ok {
		return nil
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(m.groups, group)
	}
	return nil
}

// Send delivers the event to every current subscriber of the group.
// A group with no subscribers swallows the event.
func (m *Memory) Send(_ context.Context, group string, event Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrLayerClosed
	}

	for sub := range m.groups[group] {
		sub.Deliver(event)
	}
	return nil
}

// Close drops all group membership. Subsequent operations fail with
// ErrLayerClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.groups = nil
	return nil
}
