// Package redis is a database adapter for Redis. Each room is a hash under
// {prefix}room:{name}; names of all rooms are kept in the {prefix}rooms set.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	rds "github.com/redis/go-redis/v9"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
)

type adapter struct {
	client  *rds.Client
	prefix  string
	timeout time.Duration
	version int
}

const (
	adpVersion  = 100
	adapterName = "redis"

	defaultPrefix = "vidroom:"

	// Hash fields of a room.
	fieldSession = "sessionid"
	fieldEmbed   = "embed"
	fieldCreated = "createdat"
	fieldUpdated = "updatedat"
)

type configType struct {
	// host:port
	Addr     string `json:"addr,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// Database number.
	DB int `json:"db,omitempty"`
	// Prefix of all keys, "vidroom:" by default.
	Prefix   string `json:"prefix,omitempty"`
	PoolSize int    `json:"pool_size,omitempty"`
	// Dial, read and write timeout in seconds.
	Timeout    int `json:"timeout,omitempty"`
	SqlTimeout int `json:"sql_timeout,omitempty"`
}

// New returns a new unopened Redis adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open connects to the Redis server.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.client != nil {
		return errors.New("adapter redis is already connected")
	}

	var config configType
	if len(jsonconfig) > 0 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter redis failed to parse config: " + err.Error())
		}
	}

	opts := &rds.Options{
		Addr:     config.Addr,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	}
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if config.Timeout > 0 {
		timeout := time.Duration(config.Timeout) * time.Second
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}

	a.prefix = config.Prefix
	if a.prefix == "" {
		a.prefix = defaultPrefix
	}
	if config.SqlTimeout > 0 {
		a.timeout = time.Duration(config.SqlTimeout) * time.Second
	}

	client := rds.NewClient(opts)
	ctx, cancel := a.getContext()
	if cancel != nil {
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return err
	}

	a.client = client
	a.version = -1
	return nil
}

// Close closes the underlying connection pool.
func (a *adapter) Close() error {
	var err error
	if a.client != nil {
		err = a.client.Close()
		a.client = nil
		a.version = -1
	}
	return err
}

// IsOpen returns true if the connection to Redis has been established.
func (a *adapter) IsOpen() bool {
	return a.client != nil
}

func (a *adapter) getContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(context.Background(), a.timeout)
	}
	return context.Background(), nil
}

func (a *adapter) roomKey(name string) string {
	return a.prefix + "room:" + name
}

func (a *adapter) roomsKey() string {
	return a.prefix + common.RoomsTable
}

func (a *adapter) versionKey() string {
	return a.prefix + common.MetaTable + ":" + common.VersionKey
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

	vers, err := a.client.Get(ctx, a.versionKey()).Int()
	if err != nil {
		if errors.Is(err, rds.Nil) {
			err = errors.New("Database not initialized")
		}
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

// Stats returns connection pool statistics.
func (a *adapter) Stats() interface{} {
	if a.client == nil {
		return nil
	}
	return a.client.PoolStats()
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb writes the schema version. If reset is true, all keys under the prefix are deleted first.
func (a *adapter) CreateDb(reset bool) error {
	ctx := context.Background()

	if reset {
		iter := a.client.Scan(ctx, 0, a.prefix+"*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := a.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		a.version = -1
	} else if _, err := a.GetDbVersion(); err == nil {
		return errors.New("Database already initialized")
	}

	if err := a.client.Set(ctx, a.versionKey(), adpVersion, 0).Err(); err != nil {
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
	fields, err := a.client.HGetAll(ctx, a.roomKey(name)).Result()
	if err != nil {
		return nil, err
	}
	if fields[fieldSession] == "" {
		return nil, nil
	}

	embed, err := common.EmbedFromJSON([]byte(fields[fieldEmbed]))
	if err != nil {
		return nil, err
	}
	return &t.Room{
		Name:      name,
		SessionID: fields[fieldSession],
		Embed:     embed,
		CreatedAt: fromMillis(fields[fieldCreated]),
		UpdatedAt: fromMillis(fields[fieldUpdated]),
	}, nil
}

// RoomUpsert creates the room or replaces its session and embed properties.
func (a *adapter) RoomUpsert(ctx context.Context, room *t.Room) error {
	key := a.roomKey(room.Name)
	_, err := a.client.TxPipelined(ctx, func(pipe rds.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldCreated, room.CreatedAt.UnixMilli())
		pipe.HSet(ctx, key, fieldSession, room.SessionID, fieldUpdated, room.UpdatedAt.UnixMilli())
		if room.Embed != nil {
			pipe.HSet(ctx, key, fieldEmbed, common.EmbedToJSON(room.Embed))
		} else {
			pipe.HDel(ctx, key, fieldEmbed)
		}
		pipe.SAdd(ctx, a.roomsKey(), room.Name)
		return nil
	})
	return err
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	return a.client.SMembers(ctx, a.roomsKey()).Result()
}

func fromMillis(val string) time.Time {
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
