// Package mysql is a database adapter for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	ms "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
)

// adapter holds MySQL connection data.
type adapter struct {
	db      *sqlx.DB
	dsn     string
	dbName  string
	version int

	// Single query timeout.
	sqlTimeout time.Duration
}

const (
	defaultDSN      = "root:@tcp(localhost:3306)/vidroom?parseTime=true"
	defaultDatabase = "vidroom"

	adpVersion  = 100
	adapterName = "mysql"
)

type configType struct {
	// DB connection settings.
	// Please, see https://pkg.go.dev/github.com/go-sql-driver/mysql#Config
	// for the full list of fields.
	ms.Config
	// Deprecated.
	DSN      string `json:"dsn,omitempty"`
	Database string `json:"database,omitempty"`

	// Connection pool settings.
	//
	// Maximum number of open connections to the database.
	MaxOpenConns int `json:"max_open_conns,omitempty"`
	// Maximum number of connections in the idle connection pool.
	MaxIdleConns int `json:"max_idle_conns,omitempty"`
	// Maximum amount of time a connection may be reused (in seconds).
	ConnMaxLifetime int `json:"conn_max_lifetime,omitempty"`

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

// New returns a new unopened MySQL adapter.
func New() db.Adapter {
	return &adapter{}
}

func (a *adapter) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.sqlTimeout > 0 {
		return context.WithTimeout(ctx, a.sqlTimeout)
	}
	return ctx, func() {}
}

// Open initializes mysql session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.db != nil {
		return errors.New("mysql adapter is already connected")
	}

	if len(jsonconfig) < 2 {
		return errors.New("adapter mysql missing config")
	}

	var err error
	defaultCfg := ms.NewConfig()
	config := configType{Config: *defaultCfg}
	if err = json.Unmarshal(jsonconfig, &config); err != nil {
		return errors.New("mysql adapter failed to parse config: " + err.Error())
	}

	if dsn := config.FormatDSN(); dsn != defaultCfg.FormatDSN() {
		// MySql config is specified. Use it.
		a.dbName = config.DBName
		a.dsn = dsn
		if config.DSN != "" || config.Database != "" {
			return errors.New("mysql config: `dsn` and `database` fields are deprecated. Please, specify individual connection settings via mysql.Config: https://pkg.go.dev/github.com/go-sql-driver/mysql#Config")
		}
	} else {
		// Otherwise, use DSN and Database to configure database connection.
		if config.DSN != "" {
			a.dsn = config.DSN
		} else {
			a.dsn = defaultDSN
		}
		a.dbName = config.Database
	}

	if a.dbName == "" {
		a.dbName = defaultDatabase
	}

	// Rooms have DATETIME columns which must be scanned into time.Time.
	cfg, err := ms.ParseDSN(a.dsn)
	if err != nil {
		return errors.New("mysql adapter failed to parse dsn: " + err.Error())
	}
	cfg.ParseTime = true
	a.dsn = cfg.FormatDSN()

	// This just initializes the driver but does not open the network connection.
	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
		return err
	}

	// Opening connection now. May fail if the database does not exist yet.
	err = a.db.Ping()
	if isMissingDb(err) {
		// Ignore missing database here. If we are initializing the database
		// missing DB is OK.
		err = nil
	}
	if err == nil {
		if config.MaxOpenConns > 0 {
			a.db.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			a.db.SetMaxIdleConns(config.MaxIdleConns)
		}
		if config.ConnMaxLifetime > 0 {
			a.db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
		}
		if config.SqlTimeout > 0 {
			a.sqlTimeout = time.Duration(config.SqlTimeout) * time.Second
		}
	}
	a.version = -1
	return err
}

// Close closes the underlying database connection
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

	var vers int
	err := a.db.Get(&vers, "SELECT `value` FROM kvmeta WHERE `key`=?", common.VersionKey)
	if err != nil {
		if isMissingDb(err) || isMissingTable(err) || err == sql.ErrNoRows {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}
	a.version = vers

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
	var err error
	var tx *sqlx.Tx

	// Can't use an existing connection because it's configured with a database name which may not exist.
	// Don't care if it does not close cleanly.
	a.db.Close()

	// This DSN has been parsed before and produced no error, not checking for errors here.
	cfg, _ := ms.ParseDSN(a.dsn)
	// Clear database name
	cfg.DBName = ""

	a.db, err = sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}

	if tx, err = a.db.Beginx(); err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if reset {
		if _, err = tx.Exec("DROP DATABASE IF EXISTS " + a.dbName); err != nil {
			return err
		}
	}

	if _, err = tx.Exec("CREATE DATABASE " + a.dbName + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		return err
	}

	if _, err = tx.Exec("USE " + a.dbName); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE kvmeta(` +
			"`key`   VARCHAR(64) NOT NULL," +
			"`value` TEXT," +
			"PRIMARY KEY(`key`)" +
			`)`); err != nil {
		return err
	}
	if _, err = tx.Exec("INSERT INTO kvmeta(`key`, `value`) VALUES(?, ?)",
		common.VersionKey, strconv.Itoa(adpVersion)); err != nil {
		return err
	}

	if _, err = tx.Exec(
		`CREATE TABLE rooms(
			name      VARCHAR(768) NOT NULL,
			sessionid VARCHAR(512) NOT NULL,
			embed     JSON,
			createdat DATETIME(3) NOT NULL,
			updatedat DATETIME(3) NOT NULL,
			PRIMARY KEY(name)
		)`); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	// Reopen with the database name so subsequent queries don't depend on USE.
	a.db.Close()
	a.db, err = sqlx.Open("mysql", a.dsn)
	if err != nil {
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
		"SELECT name,sessionid,embed,createdat,updatedat FROM rooms WHERE name=?", name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	embed, err := common.EmbedFromJSON(rec.Embed)
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
	ctx, cancel := a.getContext(ctx)
	defer cancel()

	var embed interface{}
	if data := common.EmbedToJSON(room.Embed); data != nil {
		embed = string(data)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO rooms(name,sessionid,embed,createdat,updatedat) VALUES(?,?,?,?,?)
		ON DUPLICATE KEY UPDATE sessionid=VALUES(sessionid),embed=VALUES(embed),updatedat=VALUES(updatedat)`,
		room.Name, room.SessionID, embed, room.CreatedAt, room.UpdatedAt)
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

func isMissingDb(err error) bool {
	if err == nil {
		return false
	}

	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1049
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}

	myerr, ok := err.(*ms.MySQLError)
	return ok && myerr.Number == 1146
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
