// Package store persists device status state and reads the latest device
// heartbeats. SQLite, DynamoDB and in-memory backends share the same
// compare-and-set contract: Upsert only succeeds when the persisted
// classification still matches the prior state the caller decided from.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/recap/devmon/internal/config"
	"github.com/recap/devmon/internal/types"
)

// ErrConflict is returned by Upsert when the persisted state no longer matches
// the prior state the caller read.
var ErrConflict = errors.New("device state changed concurrently")

// HeartbeatSource exposes the latest heartbeat per device.
type HeartbeatSource interface {
	LatestHeartbeats(ctx context.Context) ([]types.DeviceHeartbeat, error)
}

// StateStore holds the last known classification per device.
type StateStore interface {
	// Get returns nil, nil when the device has no state yet.
	Get(ctx context.Context, deviceKey string) (*types.DeviceStatusState, error)
	// Upsert writes next if the stored row still matches prior. A nil prior
	// means the row must not exist yet.
	Upsert(ctx context.Context, next types.DeviceStatusState, prior *types.DeviceStatusState) error
}

// Backend is a heartbeat source and state store sharing one connection.
type Backend interface {
	HeartbeatSource
	StateStore
	Close() error
}

// Open opens the backend selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		return OpenSQLite(ctx, cfg.Storage.SQLite.Path)
	case "dynamodb":
		return OpenDynamo(ctx, cfg.Storage.DynamoDB)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
