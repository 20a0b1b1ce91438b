// Package sqlite is a database adapter for SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
	_ "modernc.org/sqlite"
)

// adapter holds SQLite connection data.
type adapter struct {
	db      *sqlx.DB
	path    string
	version int

	// Single query timeout.
	sqlTimeout time.Duration
}

const (
	defaultPath = "./vidroom.db"

	adpVersion  = 100
	adapterName = "sqlite"
)

type configType struct {
	// Path to the database file. ":memory:" keeps the database in RAM.
	Path string `json:"path,omitempty"`
	// DB request timeout (in seconds).
	// If 0 (or negative), no timeout is applied.
	SqlTimeout int `json:"sql_timeout,omitempty"`
}

type roomRecord struct {
	Name      string
	SessionID string `db:"sessionid"`
	Embed     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns a new unopened SQLite adapter.
func New() db.Adapter {
	return &adapter{}
}

func (a *adapter) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.sqlTimeout > 0 {
		return context.WithTimeout(ctx, a.sqlTimeout)
	}
	return ctx, func() {}
}

// Open initializes database session.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("adapter sqlite is already connected")
	}

	var config configType
	if len(jsonconfig) > 0 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter sqlite failed to parse config: " + err.Error())
		}
	}

	a.path = config.Path
	if a.path == "" {
		a.path = defaultPath
	}
	if config.SqlTimeout > 0 {
		a.sqlTimeout = time.Duration(config.SqlTimeout) * time.Second
	}

	if err := a.connect(); err != nil {
		return err
	}

	a.version = -1
	return nil
}

func (a *adapter) connect() error {
	db, err := sqlx.Open("sqlite", a.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return err
	}
	if a.path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// sql.Open does not open the database file. Force it here.
	if err = db.Ping(); err != nil {
		db.Close()
		return err
	}
	a.db = db
	return nil
}

// Close closes the underlying database connection.
func (a *adapter) Close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established. It does not check if
// connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.db != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	var vers string
	err := a.db.Get(&vers, "SELECT value FROM kvmeta WHERE key=?", common.VersionKey)
	if err != nil {
		if isMissingTable(err) || err == sql.ErrNoRows {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}
	a.version, _ = strconv.Atoi(vers)
	return a.version, nil
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

// Stats returns DB connection stats object.
func (a *adapter) Stats() interface{} {
	if a.db == nil {
		return nil
	}
	return a.db.Stats()
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb initializes the storage.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		if a.path != ":memory:" {
			// Drop the database file and start from scratch.
			a.Close()
			for _, suffix := range []string{"", "-wal", "-shm"} {
				if err := os.Remove(a.path + suffix); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			if err := a.connect(); err != nil {
				return err
			}
		} else {
			if _, err := a.db.Exec("DROP TABLE IF EXISTS rooms"); err != nil {
				return err
			}
			if _, err := a.db.Exec("DROP TABLE IF EXISTS kvmeta"); err != nil {
				return err
			}
		}
	}

	tx, err := a.db.Beginx()
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(
		`CREATE TABLE kvmeta(
			key   VARCHAR(64) NOT NULL PRIMARY KEY,
			value TEXT
		)`); err != nil {
		return err
	}
	if _, err = tx.Exec("INSERT INTO kvmeta(key, value) VALUES(?, ?)",
		common.VersionKey, strconv.Itoa(adpVersion)); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE rooms(
			name      VARCHAR(1024) NOT NULL PRIMARY KEY,
			sessionid TEXT NOT NULL,
			embed     TEXT,
			createdat TIMESTAMP NOT NULL,
			updatedat TIMESTAMP NOT NULL
		)`); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
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
	ctx, cancel := a.getContext(ctx)
	defer cancel()

	var rec roomRecord
	err := a.db.GetContext(ctx, &rec,
		"SELECT name, sessionid, embed, createdat, updatedat FROM rooms WHERE name=?", name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec.toRoom()
}

// RoomUpsert creates the room or replaces its session and embed properties.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	ctx, cancel := a.getContext(ctx)
	defer cancel()

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO rooms(name, sessionid, embed, createdat, updatedat) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			sessionid=excluded.sessionid, embed=excluded.embed, updatedat=excluded.updatedat`,
		room.Name, room.SessionID, nullableJSON(room.Embed), room.CreatedAt.UTC(), room.UpdatedAt.UTC())
	return err
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	ctx, cancel := a.getContext(ctx)
	defer cancel()

	var names []string
	if err := a.db.SelectContext(ctx, &names, "SELECT name FROM rooms"); err != nil {
		return nil, err
	}
	return names, nil
}

func (r *roomRecord) toRoom() (*t.Room, error) {
	embed, err := common.EmbedFromJSON(r.Embed)
	if err != nil {
		return nil, err
	}
	return &t.Room{
		Name:      r.Name,
		SessionID: r.SessionID,
		Embed:     embed,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// nullableJSON returns nil instead of an empty slice so the column is NULL.
func nullableJSON(embed *t.EmbedProps) interface{} {
	if data := common.EmbedToJSON(embed); data != nil {
		return string(data)
	}
	return nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
