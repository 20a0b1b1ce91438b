// Package memory is a process-local database adapter. Data is lost on restart.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
)

// adapter holds the in-memory room table.
type adapter struct {
	mu    sync.RWMutex
	rooms map[string]t.Room
	open  bool
}

const (
	adpVersion  = 100
	adapterName = "memory"
)

type configType struct {
	// Rooms to preload, room name -> session ID.
	Rooms map[string]string `json:"rooms,omitempty"`
}

// New returns a new unopened memory adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open initializes the room table.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open {
		return errors.New("adapter memory is already connected")
	}

	var config configType
	if len(jsonconfig) > 0 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter memory failed to parse config: " + err.Error())
		}
	}

	a.rooms = make(map[string]t.Room, len(config.Rooms))
	for name, sid := range config.Rooms {
		room := t.Room{Name: name, SessionID: sid}
		room.InitTimes()
		a.rooms[name] = room
	}
	a.open = true
	return nil
}

// Close drops all data.
func (a *adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rooms = nil
	a.open = false
	return nil
}

// IsOpen returns true if the adapter is ready for use.
func (a *adapter) IsOpen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.open
}

// GetDbVersion returns current database version. The in-memory schema is always current.
func (a *adapter) GetDbVersion() (int, error) {
	return adpVersion, nil
}

// CheckDbVersion checks if the actual database version matches adapter version.
func (a *adapter) CheckDbVersion() error {
	return nil
}

// GetName returns the name of the adapter.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb clears the room table if reset is true.
func (a *adapter) CreateDb(reset bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if reset || a.rooms == nil {
		a.rooms = make(map[string]t.Room)
	}
	return nil
}

// UpgradeDb is a noop.
func (a *adapter) UpgradeDb() error {
	return nil
}

// Version returns adapter version.
func (a *adapter) Version() int {
	return adpVersion
}

// Stats returns the number of stored rooms.
func (a *adapter) Stats() interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]int{"rooms": len(a.rooms)}
}

// RoomGet returns a copy of the room record or nil.
func (a *adapter) RoomGet(ctx context.Context, name string) (*t.Room, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.open {
		return nil, t.ErrInternal
	}
	room, ok := a.rooms[name]
	if !ok {
		return nil, nil
	}
	if room.Embed != nil {
		embed := *room.Embed
		room.Embed = &embed
	}
	return &room, nil
}

// RoomUpsert stores a copy of the room record.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		return t.ErrInternal
	}
	rec := *room
	if rec.Embed != nil {
		embed := *rec.Embed
		rec.Embed = &embed
	}
	if old, ok := a.rooms[rec.Name]; ok {
		rec.CreatedAt = old.CreatedAt
	}
	a.rooms[rec.Name] = rec
	return nil
}

// RoomNames returns names of all stored rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.open {
		return nil, t.ErrInternal
	}
	names := make([]string, 0, len(a.rooms))
	for name := range a.rooms {
		names = append(names, name)
	}
	return names, nil
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
