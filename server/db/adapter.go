// Package db contains the interfaces to be implemented by the database adapters.
package db

import (
	"context"
	"encoding/json"

	t "github.com/vidroom/vidroom/server/store/types"
)

// Adapter is the interface that must be implemented by a database
// adapter. The current schema supports a single connection by database type.
type Adapter interface {
	// General

	// Open and configure the adapter
	Open(config json.RawMessage) error
	// Close the adapter
	Close() error
	// IsOpen checks if the adapter is ready for use
	IsOpen() bool
	// GetDbVersion returns current database version.
	GetDbVersion() (int, error)
	// CheckDbVersion checks if the actual database version matches adapter version.
	CheckDbVersion() error
	// GetName returns the name of the adapter
	GetName() string
	// CreateDb creates the database optionally dropping an existing database first.
	CreateDb(reset bool) error
	// UpgradeDb upgrades database to the current adapter version.
	UpgradeDb() error
	// Version returns adapter version
	Version() int
	// DB connection stats object.
	Stats() interface{}

	// Rooms

	// RoomGet loads a single room by name. If the room does not exist the call returns (nil, nil).
	RoomGet(ctx context.Context, name string) (*t.Room, error)
	// RoomUpsert creates the room or replaces its session and embed properties.
	// CreatedAt of an existing room is preserved.
	RoomUpsert(ctx context.Context, room *t.Room) error
	// RoomNames returns names of all known rooms in no particular order.
	RoomNames(ctx context.Context) ([]string, error)
}
