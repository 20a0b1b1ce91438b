// Package mongodb is a database adapter for MongoDB.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/logs"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

// adapter holds MongoDB connection data.
type adapter struct {
	conn    *mdb.Client
	db      *mdb.Database
	dbName  string
	version int
	ctx     context.Context
}

const (
	defaultHost     = "localhost:27017"
	defaultDatabase = "vidroom"

	adpVersion  = 100
	adapterName = "mongodb"
)

// See https://godoc.org/go.mongodb.org/mongo-driver/mongo/options#ClientOptions for explanations.
type configType struct {
	Addresses      interface{} `json:"addresses,omitempty"`
	ConnectTimeout int         `json:"timeout,omitempty"`

	// Options separately from ClientOptions (custom options):
	Database   string `json:"database,omitempty"`
	ReplicaSet string `json:"replica_set,omitempty"`

	AuthSource string `json:"auth_source,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

// New returns a new unopened MongoDB adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open initializes mongodb session
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.conn != nil {
		return errors.New("adapter mongodb is already connected")
	}

	var err error
	var config configType
	if len(jsonconfig) > 0 {
		if err = json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter mongodb failed to parse config: " + err.Error())
		}
	}

	var opts mdbopts.ClientOptions

	if config.Addresses == nil {
		opts.SetHosts([]string{defaultHost})
	} else if host, ok := config.Addresses.(string); ok {
		opts.SetHosts([]string{host})
	} else if ihosts, ok := config.Addresses.([]interface{}); ok && len(ihosts) > 0 {
		hosts := make([]string, len(ihosts))
		for i, ih := range ihosts {
			h, ok := ih.(string)
			if !ok || h == "" {
				return errors.New("adapter mongodb invalid config.Addresses value")
			}
			hosts[i] = h
		}
		opts.SetHosts(hosts)
	} else {
		return errors.New("adapter mongodb failed to parse config.Addresses")
	}

	if config.ConnectTimeout > 0 {
		opts.SetConnectTimeout(time.Duration(config.ConnectTimeout) * time.Second)
	}

	if config.Database == "" {
		a.dbName = defaultDatabase
	} else {
		a.dbName = config.Database
	}

	if config.ReplicaSet == "" {
		logs.Info.Println("MongoDB configured as standalone or replica_set option not set.")
	} else {
		opts.SetReplicaSet(config.ReplicaSet)
	}

	if config.Username != "" {
		if config.AuthSource == "" {
			config.AuthSource = "admin"
		}
		opts.SetAuth(
			mdbopts.Credential{
				AuthMechanism: "SCRAM-SHA-256",
				AuthSource:    config.AuthSource,
				Username:      config.Username,
				Password:      config.Password,
				PasswordSet:   config.Password != "",
			})
	}

	a.ctx = context.Background()
	a.conn, err = mdb.Connect(a.ctx, &opts)
	if err != nil {
		a.conn = nil
		return err
	}
	a.db = a.conn.Database(a.dbName)
	a.version = -1

	return nil
}

// Close the adapter
func (a *adapter) Close() error {
	var err error
	if a.conn != nil {
		err = a.conn.Disconnect(a.ctx)
		a.conn = nil
		a.version = -1
	}
	return err
}

// IsOpen checks if the adapter is ready for use
func (a *adapter) IsOpen() bool {
	return a.conn != nil
}

// GetDbVersion returns current database version.
func (a *adapter) GetDbVersion() (int, error) {
	if a.version > 0 {
		return a.version, nil
	}

	var result struct {
		Key   string `bson:"_id"`
		Value int
	}
	if err := a.db.Collection(common.MetaTable).FindOne(a.ctx, b.M{"_id": common.VersionKey}).Decode(&result); err != nil {
		if err == mdb.ErrNoDocuments {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}

	a.version = result.Value
	return result.Value, nil
}

// CheckDbVersion checks if the actual database version matches adapter version.
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

// Version returns adapter version
func (a *adapter) Version() int {
	return adpVersion
}

// Stats is not implemented for MongoDB.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns the name of the adapter
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb creates the database optionally dropping an existing database first.
func (a *adapter) CreateDb(reset bool) error {
	if reset {
		logs.Info.Print("Dropping database...")
		if err := a.db.Drop(a.ctx); err != nil {
			return err
		}
	} else if a.isDbInitialized() {
		return errors.New("Database already initialized")
	}
	// Collections do not need to be explicitly created since MongoDB creates them with first write operation.
	// Rooms are keyed by name in _id which is always indexed.

	if _, err := a.db.Collection(common.MetaTable).InsertOne(a.ctx, b.M{"_id": common.VersionKey, "value": adpVersion}); err != nil {
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

func (a *adapter) isDbInitialized() bool {
	var result map[string]int
	findOpts := mdbopts.FindOneOptions{Projection: b.M{"value": 1, "_id": 0}}
	if err := a.db.Collection(common.MetaTable).FindOne(a.ctx, b.M{"_id": common.VersionKey}, &findOpts).Decode(&result); err != nil {
		return false
	}
	return true
}

// RoomGet loads a single room by name.
func (a *adapter) RoomGet(ctx context.Context, name string) (*t.Room, error) {
	var room t.Room
	err := a.db.Collection(common.RoomsTable).FindOne(ctx, b.M{"_id": name}).Decode(&room)
	if err != nil {
		if err == mdb.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// RoomUpsert creates the room or replaces its session and embed properties.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	set := b.M{
		"sessionid": room.SessionID,
		"updatedat": room.UpdatedAt,
	}
	update := b.M{
		"$set":         set,
		"$setOnInsert": b.M{"createdat": room.CreatedAt},
	}
	if room.Embed != nil {
		set["embed"] = room.Embed
	} else {
		update["$unset"] = b.M{"embed": ""}
	}
	_, err := a.db.Collection(common.RoomsTable).UpdateOne(ctx, b.M{"_id": room.Name}, update,
		mdbopts.Update().SetUpsert(true))
	return err
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	findOpts := mdbopts.Find().SetProjection(b.M{"_id": 1})
	cur, err := a.db.Collection(common.RoomsTable).Find(ctx, b.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var names []string
	for cur.Next(ctx) {
		var rec struct {
			Name string `bson:"_id"`
		}
		if err = cur.Decode(&rec); err != nil {
			return nil, err
		}
		names = append(names, rec.Name)
	}
	return names, cur.Err()
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
