//go:generate mockgen -destination=mock_store/mock_store.go -package=mock_store github.com/vidroom/vidroom/server/store RoomStore

// Package store provides methods for registering and accessing database adapters.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	adapter "github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/store/types"
)

// Constructors of adapters linked into the binary, keyed by adapter name.
var availableAdapters = make(map[string]func() adapter.Adapter)

type configType struct {
	// DB adapter name to use. Should be one of those specified in `Adapters`.
	UseAdapter string `json:"use_adapter"`
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

// RoomStore maps room names to provider sessions.
type RoomStore interface {
	// GetSession returns the session ID of the room or an empty string if the room is unknown.
	GetSession(ctx context.Context, roomName string) (string, error)
	// GetRoom returns the full room record or nil if the room is unknown.
	GetRoom(ctx context.Context, roomName string) (*types.Room, error)
	// SetSession creates or replaces the room to session mapping.
	SetSession(ctx context.Context, roomName, sessionID string, embed *types.EmbedProps) error
	// ListRooms returns names of all rooms which have a session.
	ListRooms(ctx context.Context) ([]string, error)
}

// Error is returned when the storage backend fails a request. It matches
// types.ErrUnavailable with errors.Is.
type Error struct {
	// Operation which failed.
	Op string
	// Room name, if any.
	Room string
	Err  error
}

func (e *Error) Error() string {
	msg := "store: " + e.Op
	if e.Room != "" {
		msg += " '" + e.Room + "'"
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the backend error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports the error as types.ErrUnavailable.
func (e *Error) Is(target error) bool {
	return target == types.ErrUnavailable
}

// Store is an open connection to the persistent storage. It implements RoomStore.
type Store struct {
	adp adapter.Adapter
}

// Open selects the adapter named in the config and opens it. The database version is
// not checked, call CheckDbVersion before use.
func Open(jsonconf json.RawMessage) (*Store, error) {
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("store: failed to parse config: " + err.Error() + "(" + string(jsonconf) + ")")
	}

	var newAdapter func() adapter.Adapter
	if len(config.UseAdapter) > 0 {
		// Adapter name specified explicitly.
		if f, ok := availableAdapters[config.UseAdapter]; ok {
			newAdapter = f
		} else {
			return nil, errors.New("store: " + config.UseAdapter + " adapter is not available in this binary, use one of: " +
				strings.Join(GetAdapterNames(), ", "))
		}
	} else if len(availableAdapters) == 1 {
		// Default to the only entry in availableAdapters.
		for _, f := range availableAdapters {
			newAdapter = f
		}
	} else {
		return nil, errors.New("store: db adapter is not specified. Please set `store_config.use_adapter` in `vidroom.conf` to one of: " +
			strings.Join(GetAdapterNames(), ", "))
	}

	adp := newAdapter()
	var adapterConfig json.RawMessage
	if config.Adapters != nil {
		adapterConfig = config.Adapters[adp.GetName()]
	}

	if err := adp.Open(adapterConfig); err != nil {
		return nil, err
	}

	return &Store{adp: adp}, nil
}

// NewStore wraps an already open adapter.
func NewStore(adp adapter.Adapter) *Store {
	return &Store{adp: adp}
}

// Close terminates connection to persistent storage.
func (s *Store) Close() error {
	if s.adp.IsOpen() {
		return s.adp.Close()
	}
	return nil
}

// IsOpen checks if persistent storage connection has been initialized.
func (s *Store) IsOpen() bool {
	return s.adp != nil && s.adp.IsOpen()
}

// CheckDbVersion checks that the database exists and matches the adapter version.
func (s *Store) CheckDbVersion() error {
	return s.adp.CheckDbVersion()
}

// GetAdapterName returns the name of the current adater.
func (s *Store) GetAdapterName() string {
	return s.adp.GetName()
}

// GetAdapterVersion returns version of the current adater.
func (s *Store) GetAdapterVersion() int {
	return s.adp.Version()
}

// GetDbVersion returns version of the underlying database.
func (s *Store) GetDbVersion() int {
	vers, _ := s.adp.GetDbVersion()
	return vers
}

// InitDb creates and configures a new database instance. If 'reset' is true it will first
// attempt to drop an existing database.
func (s *Store) InitDb(reset bool) error {
	return s.adp.CreateDb(reset)
}

// UpgradeDb performes an upgrade of the database to the current adapter version.
func (s *Store) UpgradeDb() error {
	return s.adp.UpgradeDb()
}

// DbStats returns a callback returning db connection stats object.
func (s *Store) DbStats() func() interface{} {
	if !s.IsOpen() {
		return nil
	}
	return s.adp.Stats
}

// GetSession returns the session ID of the room or an empty string if the room is unknown.
func (s *Store) GetSession(ctx context.Context, roomName string) (string, error) {
	room, err := s.GetRoom(ctx, roomName)
	if err != nil || room == nil {
		return "", err
	}
	return room.SessionID, nil
}

// GetRoom returns the room record or nil if the room is unknown.
func (s *Store) GetRoom(ctx context.Context, roomName string) (*types.Room, error) {
	name, err := types.NormalizeRoomName(roomName)
	if err != nil {
		return nil, err
	}
	room, err := s.adp.RoomGet(ctx, name)
	if err != nil {
		return nil, &Error{Op: "get", Room: name, Err: err}
	}
	return room, nil
}

// SetSession creates or replaces the room to session mapping.
func (s *Store) SetSession(ctx context.Context, roomName, sessionID string, embed *types.EmbedProps) error {
	name, err := types.NormalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return types.ErrMalformed
	}
	room := &types.Room{Name: name, SessionID: sessionID, Embed: embed}
	room.InitTimes()
	if err := s.adp.RoomUpsert(ctx, room); err != nil {
		return &Error{Op: "set", Room: name, Err: err}
	}
	return nil
}

// ListRooms returns names of all rooms sorted alphabetically.
func (s *Store) ListRooms(ctx context.Context) ([]string, error) {
	names, err := s.adp.RoomNames(ctx)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

// RegisterAdapter makes a persistence adapter available.
// If Register is called twice or if the constructor is nil, it panics.
func RegisterAdapter(name string, newAdapter func() adapter.Adapter) {
	if newAdapter == nil {
		panic("store: Register adapter is nil")
	}

	if _, ok := availableAdapters[name]; ok {
		panic("store: adapter '" + name + "' is already registered")
	}
	availableAdapters[name] = newAdapter
}

// GetAdapterNames returns names of registered adapters.
func GetAdapterNames() []string {
	names := make([]string, 0, len(availableAdapters))
	for name := range availableAdapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
