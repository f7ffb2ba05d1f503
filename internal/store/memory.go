package store

import (
	"context"
	"sort"
	"sync"

	"github.com/recap/devmon/internal/types"
)

// Memory is an in-process backend for development and tests.
type Memory struct {
	mu         sync.Mutex
	heartbeats map[string]types.DeviceHeartbeat
	states     map[string]types.DeviceStatusState
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		heartbeats: make(map[string]types.DeviceHeartbeat),
		states:     make(map[string]types.DeviceStatusState),
	}
}

// RecordHeartbeat stores hb if it is newer than the device's current heartbeat.
func (m *Memory) RecordHeartbeat(hb types.DeviceHeartbeat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.heartbeats[hb.DeviceKey]; ok && cur.Timestamp.After(hb.Timestamp) {
		return
	}
	m.heartbeats[hb.DeviceKey] = hb
}

func (m *Memory) LatestHeartbeats(ctx context.Context) ([]types.DeviceHeartbeat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.DeviceHeartbeat, 0, len(m.heartbeats))
	for _, hb := range m.heartbeats {
		out = append(out, hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceKey < out[j].DeviceKey })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[deviceKey]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) Upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.states[next.DeviceKey]
	switch {
	case prior == nil && exists:
		return ErrConflict
	case prior != nil && (!exists || cur.LastIsOffline != prior.LastIsOffline):
		return ErrConflict
	}
	m.states[next.DeviceKey] = next
	return nil
}

// States returns a snapshot of every persisted state.
func (m *Memory) States() map[string]types.DeviceStatusState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.DeviceStatusState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}

func (m *Memory) Close() error {
	return nil
}
