// Package rethinkdb is a database adapter for RethinkDB.
package rethinkdb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
	rdb "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// adapter holds RethinkDb connection data.
type adapter struct {
	conn    *rdb.Session
	dbName  string
	version int
}

const (
	defaultHost     = "localhost:28015"
	defaultDatabase = "vidroom"

	adpVersion  = 100
	adapterName = "rethinkdb"
)

// See https://godoc.org/github.com/rethinkdb/rethinkdb-go#ConnectOpts for explanations.
type configType struct {
	Database            string      `json:"database,omitempty"`
	Addresses           interface{} `json:"addresses,omitempty"`
	Username            string      `json:"username,omitempty"`
	Password            string      `json:"password,omitempty"`
	AuthKey             string      `json:"authkey,omitempty"`
	Timeout             int         `json:"timeout,omitempty"`
	WriteTimeout        int         `json:"write_timeout,omitempty"`
	ReadTimeout         int         `json:"read_timeout,omitempty"`
	KeepAlivePeriod     int         `json:"keep_alive_timeout,omitempty"`
	InitialCap          int         `json:"initial_cap,omitempty"`
	MaxOpen             int         `json:"max_open,omitempty"`
	DiscoverHosts       bool        `json:"discover_hosts,omitempty"`
	NodeRefreshInterval int         `json:"node_refresh_interval,omitempty"`
}

type roomRecord struct {
	Name      string    `rethinkdb:"id"`
	SessionID string    `rethinkdb:"sessionid"`
	Embed     string    `rethinkdb:"embed,omitempty"`
	CreatedAt time.Time `rethinkdb:"createdat"`
	UpdatedAt time.Time `rethinkdb:"updatedat"`
}

// New returns a new unopened RethinkDB adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open initializes rethinkdb session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.conn != nil {
		return errors.New("adapter rethinkdb is already connected")
	}

	var err error
	var config configType
	if len(jsonconfig) > 0 {
		if err = json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter rethinkdb failed to parse config: " + err.Error())
		}
	}

	var opts rdb.ConnectOpts

	if config.Addresses == nil {
		opts.Address = defaultHost
	} else if host, ok := config.Addresses.(string); ok {
		opts.Address = host
	} else if ihosts, ok := config.Addresses.([]interface{}); ok && len(ihosts) > 0 {
		hosts := make([]string, len(ihosts))
		for i, ih := range ihosts {
			h, ok := ih.(string)
			if !ok || h == "" {
				return errors.New("adapter rethinkdb invalid config.Addresses value")
			}
			hosts[i] = h
		}
		opts.Addresses = hosts
	} else {
		return errors.New("adapter rethinkdb failed to parse config.Addresses")
	}

	if config.Database == "" {
		a.dbName = defaultDatabase
	} else {
		a.dbName = config.Database
	}

	opts.Database = a.dbName
	opts.Username = config.Username
	opts.Password = config.Password
	opts.AuthKey = config.AuthKey
	opts.Timeout = time.Duration(config.Timeout) * time.Second
	opts.WriteTimeout = time.Duration(config.WriteTimeout) * time.Second
	opts.ReadTimeout = time.Duration(config.ReadTimeout) * time.Second
	opts.KeepAlivePeriod = time.Duration(config.KeepAlivePeriod) * time.Second
	opts.InitialCap = config.InitialCap
	opts.MaxOpen = config.MaxOpen
	opts.DiscoverHosts = config.DiscoverHosts
	opts.NodeRefreshInterval = time.Duration(config.NodeRefreshInterval) * time.Second

	a.conn, err = rdb.Connect(opts)
	if err != nil {
		a.conn = nil
		return err
	}

	rdb.SetTags("rethinkdb", "json")
	a.version = -1

	return nil
}

// Close closes the underlying database connection
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		// Close will wait for all outstanding requests to finish
		err = a.conn.Close()
		a.conn = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if connection to database has been established. It does not check if
// connection is actually live.
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	cursor, err := rdb.DB(a.dbName).Table(common.MetaTable).Get(common.VersionKey).Field("value").Run(a.conn)
	if err != nil {
		if isMissingDb(err) {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return -1, errors.New("Database not initialized")
	}

	var vers int
	if err = cursor.One(&vers); err != nil {
		return -1, err
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

// Stats is not implemented for RethinkDB.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb initializes the storage. If reset is true, the database is first deleted losing all the data.
func (a *adapter) CreateDb(reset bool) error {
	// Drop database if exists, ignore error if it does not.
	if reset {
		rdb.DBDrop(a.dbName).RunWrite(a.conn)
	}

	if _, err := rdb.DBCreate(a.dbName).RunWrite(a.conn); err != nil {
		return err
	}

	// Metadata, such as schema version.
	if _, err := rdb.DB(a.dbName).TableCreate(common.MetaTable, rdb.TableCreateOpts{PrimaryKey: "id"}).RunWrite(a.conn); err != nil {
		return err
	}
	if _, err := rdb.DB(a.dbName).Table(common.MetaTable).Insert(
		map[string]interface{}{"id": common.VersionKey, "value": adpVersion}).RunWrite(a.conn); err != nil {
		return err
	}

	// Rooms. The primary key is the room name.
	if _, err := rdb.DB(a.dbName).TableCreate(common.RoomsTable, rdb.TableCreateOpts{PrimaryKey: "id"}).RunWrite(a.conn); err != nil {
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
	cursor, err := rdb.DB(a.dbName).Table(common.RoomsTable).Get(name).Run(a.conn, rdb.RunOpts{Context: ctx})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if cursor.IsNil() {
		return nil, nil
	}

	var rec roomRecord
	if err = cursor.One(&rec); err != nil {
		return nil, err
	}

	embed, err := common.EmbedFromJSON([]byte(rec.Embed))
	if err != nil {
		return nil, err
	}
	return &t.Room{
		Name:      rec.Name,
		SessionID: rec.SessionID,
		Embed:     embed,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// RoomUpsert creates the room or replaces its session and embed properties.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	rec := roomRecord{
		Name:      room.Name,
		SessionID: room.SessionID,
		Embed:     string(common.EmbedToJSON(room.Embed)),
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
	_, err := rdb.DB(a.dbName).Table(common.RoomsTable).Get(room.Name).
		Replace(func(old rdb.Term) interface{} {
			// Keep the original creation time if the room exists.
			return rdb.Branch(old.Eq(nil),
				rec,
				rdb.Expr(rec).Merge(map[string]interface{}{"createdat": old.Field("createdat")}))
		}).
		RunWrite(a.conn, rdb.RunOpts{Context: ctx})
	return err
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	cursor, err := rdb.DB(a.dbName).Table(common.RoomsTable).Field("id").Run(a.conn, rdb.RunOpts{Context: ctx})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var names []string
	if err = cursor.All(&names); err != nil {
		return nil, err
	}
	return names, nil
}

func isMissingDb(err error) bool {
	if err == nil {
		return false
	}
	var rerr rdb.RQLOpFailedError
	return errors.As(err, &rerr)
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
