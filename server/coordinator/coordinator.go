// Package coordinator maps rooms to video sessions: it returns credentials for existing
// sessions or creates and persists new ones, and runs archive operations on the session
// of a room.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vidroom/vidroom/server/concurrency"
	"github.com/vidroom/vidroom/server/logs"
	"github.com/vidroom/vidroom/server/provider"
	"github.com/vidroom/vidroom/server/store"
	"github.com/vidroom/vidroom/server/store/types"
)

// DefaultTimeout is the default limit on a single call to the video platform.
const DefaultTimeout = 15 * time.Second

// ErrRoomNotFound is returned when the room has no session. It matches types.ErrNotFound.
var ErrRoomNotFound = fmt.Errorf("room %w", types.ErrNotFound)

// State of a room. It's not stored but derived from the store and the live archive list.
type State string

const (
	// StateUnknown means the room has no session.
	StateUnknown State = "unknown"
	// StateProvisioned means the room has a session and no archive is being recorded.
	StateProvisioned State = "provisioned"
	// StateArchiveActive means an archive of the room's session is started or paused.
	StateArchiveActive State = "archiveActive"
)

// Events reported to the Observer.
const (
	EventSessionCreated = "session_created"
	EventEmbedCreated   = "embed_created"
	EventTokenIssued    = "token_issued"
	EventArchiveStarted = "archive_started"
	EventArchiveStopped = "archive_stopped"
)

// Observer receives coordinator events, e.g. for metrics.
type Observer interface {
	// Event is called after a successful operation.
	Event(name string)
	// ProviderCall is called after every call to the video platform.
	ProviderCall(op string, took time.Duration, err error)
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	video    provider.VideoService
	rooms    store.RoomStore
	locks    *concurrency.KeyedMutex
	timeout  time.Duration
	observer Observer
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithTimeout limits the duration of each call to the video platform. Zero disables the limit.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// WithObserver sets the observer of coordinator events.
func WithObserver(obs Observer) Option {
	return func(c *Coordinator) {
		c.observer = obs
	}
}

// New creates a coordinator for the given video platform and room store.
func New(video provider.VideoService, rooms store.RoomStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		video:   video,
		rooms:   rooms,
		locks:   concurrency.NewKeyedMutex(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call runs fn against the video platform with the configured timeout.
func (c *Coordinator) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, provider.ErrTimeout) {
		err = &provider.Error{Op: op, Err: provider.ErrTimeout}
	}
	if c.observer != nil {
		c.observer.ProviderCall(op, time.Since(start), err)
	}
	return err
}

func (c *Coordinator) event(name string) {
	if c.observer != nil {
		c.observer.Event(name)
	}
}

// lock acquires the per-room lock. The name must be normalized.
func (c *Coordinator) lock(ctx context.Context, name string) (func(), error) {
	unlock, err := c.locks.Lock(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("waiting for room '%s': %w", name, err)
	}
	return unlock, nil
}

// ResolveCredentials returns credentials for the room's session, creating the session on
// first use. Concurrent first calls for the same room create exactly one session.
func (c *Coordinator) ResolveCredentials(ctx context.Context, room string) (*provider.Credential, error) {
	name, err := types.NormalizeRoomName(room)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sessionID, err := c.rooms.GetSession(ctx, name)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		var tok *provider.Token
		if err = c.call(ctx, "generateToken", func(ctx context.Context) error {
			tok, err = c.video.GenerateToken(ctx, sessionID)
			return err
		}); err != nil {
			return nil, err
		}
		c.event(EventTokenIssued)
		return &provider.Credential{SessionID: sessionID, Token: tok.Token, APIKey: tok.APIKey}, nil
	}

	cred, err := c.create(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	c.event(EventSessionCreated)
	return cred, nil
}

// CreateEmbedRoom always creates a new session and stores it under embedID together with
// the embed properties.
func (c *Coordinator) CreateEmbedRoom(ctx context.Context, embedID string, embed types.EmbedProps) (*provider.Credential, error) {
	name, err := types.NormalizeRoomName(embedID)
	if err != nil {
		return nil, err
	}

	unlock, err := c.lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cred, err := c.create(ctx, name, &embed)
	if err != nil {
		return nil, err
	}
	c.event(EventEmbedCreated)
	return cred, nil
}

// create makes a new session and persists it. Must be called under the room lock.
func (c *Coordinator) create(ctx context.Context, name string, embed *types.EmbedProps) (*provider.Credential, error) {
	var cred *provider.Credential
	err := c.call(ctx, "getCredentials", func(ctx context.Context) error {
		var err error
		cred, err = c.video.GetCredentials(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err = c.rooms.SetSession(ctx, name, cred.SessionID, embed); err != nil {
		logs.Err.Printf("coordinator: session %s for room '%s' created but not saved: %v", cred.SessionID, name, err)
		return nil, err
	}

	logs.Info.Printf("coordinator: room '%s' -> session %s", name, cred.SessionID)
	return cred, nil
}

// session returns the session id of the room or ErrRoomNotFound.
func (c *Coordinator) session(ctx context.Context, room string) (string, string, error) {
	name, err := types.NormalizeRoomName(room)
	if err != nil {
		return "", "", err
	}
	sessionID, err := c.rooms.GetSession(ctx, name)
	if err != nil {
		return "", "", err
	}
	if sessionID == "" {
		return "", "", fmt.Errorf("room '%s': %w", name, ErrRoomNotFound)
	}
	return name, sessionID, nil
}

// StartArchive starts recording the room's session. The request is forwarded to the platform
// even if a recording is already in progress.
func (c *Coordinator) StartArchive(ctx context.Context, room string) (*provider.Archive, error) {
	name, sessionID, err := c.session(ctx, room)
	if err != nil {
		return nil, err
	}

	var archive *provider.Archive
	if err = c.call(ctx, "startArchive", func(ctx context.Context) error {
		archive, err = c.video.StartArchive(ctx, name, sessionID)
		return err
	}); err != nil {
		return nil, err
	}

	logs.Info.Printf("coordinator: archive %s started in room '%s'", archive.ID, name)
	c.event(EventArchiveStarted)
	return archive, nil
}

// StopArchive stops the recording. Archive ids are unique across sessions, so no room is needed.
func (c *Coordinator) StopArchive(ctx context.Context, archiveID string) (string, error) {
	if archiveID == "" {
		return "", types.ErrMalformed
	}

	var id string
	err := c.call(ctx, "stopArchive", func(ctx context.Context) error {
		var err error
		id, err = c.video.StopArchive(ctx, archiveID)
		return err
	})
	if err != nil {
		return "", err
	}

	logs.Info.Printf("coordinator: archive %s stopped", id)
	c.event(EventArchiveStopped)
	return id, nil
}

// ListArchives returns archives of the room's session as reported by the platform.
func (c *Coordinator) ListArchives(ctx context.Context, room string) ([]provider.Archive, error) {
	_, sessionID, err := c.session(ctx, room)
	if err != nil {
		return nil, err
	}
	return c.listArchives(ctx, sessionID)
}

func (c *Coordinator) listArchives(ctx context.Context, sessionID string) ([]provider.Archive, error) {
	var archives []provider.Archive
	err := c.call(ctx, "listArchives", func(ctx context.Context) error {
		var err error
		archives, err = c.video.ListArchives(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if archives == nil {
		archives = []provider.Archive{}
	}
	return archives, nil
}

// ListRooms returns names of all rooms with a session.
func (c *Coordinator) ListRooms(ctx context.Context) ([]string, error) {
	return c.rooms.ListRooms(ctx)
}

// RoomState derives the state of the room from the store and the live archive list.
func (c *Coordinator) RoomState(ctx context.Context, room string) (State, error) {
	_, sessionID, err := c.session(ctx, room)
	if errors.Is(err, ErrRoomNotFound) {
		return StateUnknown, nil
	}
	if err != nil {
		return "", err
	}

	archives, err := c.listArchives(ctx, sessionID)
	if err != nil {
		return "", err
	}
	for i := range archives {
		if archives[i].Active() {
			return StateArchiveActive, nil
		}
	}
	return StateProvisioned, nil
}
