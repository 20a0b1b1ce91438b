// Package firebase is a database adapter for the Firebase Realtime Database.
// Rooms are kept under embeds/{room}.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	fbase "firebase.google.com/go"
	fdb "firebase.google.com/go/db"
	"google.golang.org/api/option"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
)

type adapter struct {
	client  *fdb.Client
	root    string
	timeout time.Duration
	version int
}

const (
	adpVersion  = 100
	adapterName = "firebase"

	embedsPath = "embeds"
)

type configType struct {
	// Database URL, like https://<project>.firebaseio.com
	DatabaseURL string `json:"database_url"`
	ProjectID   string `json:"project_id,omitempty"`
	// Path to the service account JSON file.
	CredentialsFile string `json:"credentials_file,omitempty"`
	// Optional path prefix for all data, e.g. "staging".
	Root       string `json:"root,omitempty"`
	SqlTimeout int    `json:"sql_timeout,omitempty"`
}

type roomRecord struct {
	Name       string        `json:"name"`
	SessionID  string        `json:"sessionId"`
	EmbedProps *t.EmbedProps `json:"embedProps,omitempty"`
	// Milliseconds since epoch.
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// New returns a new unopened Firebase adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open initializes the Firebase app and the database client.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.client != nil {
		return errors.New("adapter firebase is already connected")
	}

	var config configType
	if err := json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("adapter firebase failed to parse config: " + err.Error())
	}
	if config.DatabaseURL == "" {
		return errors.New("adapter firebase: missing database_url")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	ctx := context.Background()
	app, err := fbase.NewApp(ctx, &fbase.Config{
		DatabaseURL: config.DatabaseURL,
		ProjectID:   config.ProjectID,
	}, opts...)
	if err != nil {
		return err
	}

	a.client, err = app.Database(ctx)
	if err != nil {
		return err
	}

	a.root = strings.Trim(config.Root, "/")
	if config.SqlTimeout > 0 {
		a.timeout = time.Duration(config.SqlTimeout) * time.Second
	}
	a.version = -1
	return nil
}

// Close drops the client.
func (a *adapter) Close() error {
	a.client = nil
	a.version = -1
	return nil
}

// IsOpen returns true if the client has been created.
func (a *adapter) IsOpen() bool {
	return a.client != nil
}

func (a *adapter) getContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(context.Background(), a.timeout)
	}
	return context.Background(), nil
}

func (a *adapter) path(parts ...string) string {
	if a.root != "" {
		parts = append([]string{a.root}, parts...)
	}
	return strings.Join(parts, "/")
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}

	var vers int
	if err := a.client.NewRef(a.path(common.MetaTable, common.VersionKey)).Get(ctx, &vers); err != nil {
		return -1, err
	}
	if vers <= 0 {
		return -1, errors.New("Database not initialized")
	}

	a.version = vers
	return vers, nil
}

// CheckDbVersion checks whether the actual DB version matches the expected version of this adapter.
func (a *adapter) CheckDbVersion() error {
	version, err := a.GetDbVersion()
	if err != nil {
		return err
	}

	if version != adpVersion {
		return errors.New("Invalid database version " + strconv.Itoa(version) +
			". Expected " + strconv.Itoa(adpVersion))
	}

	return nil
}

// Version returns adapter version.
func (adapter) Version() int {
	return adpVersion
}

// Stats is not implemented for Firebase.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb writes the schema version. If reset is true, all rooms are deleted first.
func (a *adapter) CreateDb(reset bool) error {
	ctx := context.Background()

	if reset {
		if err := a.client.NewRef(a.path(embedsPath)).Delete(ctx); err != nil {
			return err
		}
	} else if _, err := a.GetDbVersion(); err == nil {
		return errors.New("Database already initialized")
	}

	if err := a.client.NewRef(a.path(common.MetaTable, common.VersionKey)).Set(ctx, adpVersion); err != nil {
		return err
	}

	a.version = adpVersion
	return nil
}

// UpgradeDb upgrades the database, if necessary.
func (a *adapter) UpgradeDb() error {
	if _, err := a.GetDbVersion(); err != nil {
		return err
	}

	if a.version != adpVersion {
		return errors.New("Failed to perform database upgrade to version " + strconv.Itoa(adpVersion) +
			". DB is still at " + strconv.Itoa(a.version))
	}
	return nil
}

// RoomGet loads a single room by name.
func (a *adapter) RoomGet(ctx context.Context, name string) (*t.Room, error) {
	var rec *roomRecord
	if err := a.client.NewRef(a.path(embedsPath, escapeKey(name))).Get(ctx, &rec); err != nil {
		return nil, err
	}
	if rec == nil || rec.SessionID == "" {
		return nil, nil
	}
	return rec.toRoom(name), nil
}

// RoomUpsert creates the room or replaces its session and embed properties.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	rec := roomRecord{
		Name:       room.Name,
		SessionID:  room.SessionID,
		EmbedProps: room.Embed,
		CreatedAt:  toMillis(room.CreatedAt),
		UpdatedAt:  toMillis(room.UpdatedAt),
	}
	ref := a.client.NewRef(a.path(embedsPath, escapeKey(room.Name)))
	return ref.Transaction(ctx, func(node fdb.TransactionNode) (interface{}, error) {
		var old *roomRecord
		if err := node.Unmarshal(&old); err != nil {
			return nil, err
		}
		if old != nil && old.CreatedAt > 0 {
			rec.CreatedAt = old.CreatedAt
		}
		return rec, nil
	})
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	var all map[string]*roomRecord
	if err := a.client.NewRef(a.path(embedsPath)).Get(ctx, &all); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(all))
	for key, rec := range all {
		if rec == nil || rec.SessionID == "" {
			continue
		}
		name := rec.Name
		if name == "" {
			name = unescapeKey(key)
		}
		names = append(names, name)
	}
	return names, nil
}

func (r *roomRecord) toRoom(name string) *t.Room {
	if r.Name != "" {
		name = r.Name
	}
	return &t.Room{
		Name:      name,
		SessionID: r.SessionID,
		Embed:     r.EmbedProps,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

func toMillis(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Firebase keys cannot contain . $ # [ ] / or ASCII control characters.
// Such characters and '%' itself are percent-encoded.
func escapeKey(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r == '.', r == '$', r == '#', r == '[', r == ']', r == '/', r == '%', r < 0x20, r == 0x7f:
			fmt.Fprintf(&sb, "%%%02X", r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func unescapeKey(key string) string {
	var sb strings.Builder
	for i := 0; i < len(key); i++ {
		if key[i] == '%' && i+2 < len(key) {
			if v, err := strconv.ParseUint(key[i+1:i+3], 16, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		sb.WriteByte(key[i])
	}
	return sb.String()
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
