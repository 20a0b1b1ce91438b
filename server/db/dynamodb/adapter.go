// Package dynamodb is a database adapter for Amazon DynamoDB.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/vidroom/vidroom/server/db"
	"github.com/vidroom/vidroom/server/db/common"
	"github.com/vidroom/vidroom/server/store"
	t "github.com/vidroom/vidroom/server/store/types"
)

// adapter holds DynamoDB client and table names.
type adapter struct {
	svc        *dynamodb.DynamoDB
	roomsTable string
	metaTable  string
	timeout    time.Duration
	version    int
}

const (
	adpVersion  = 100
	adapterName = "dynamodb"

	defaultRegion = "us-east-1"
)

type configType struct {
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	// Prefix added to table names, e.g. "vidroom_".
	TablePrefix string `json:"table_prefix,omitempty"`
	// Request timeout in seconds.
	SqlTimeout int `json:"sql_timeout,omitempty"`
}

type roomRecord struct {
	Name      string    `dynamodbav:"name"`
	SessionID string    `dynamodbav:"sessionid"`
	Embed     string    `dynamodbav:"embed,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdat"`
	UpdatedAt time.Time `dynamodbav:"updatedat"`
}

type metaRecord struct {
	Key   string `dynamodbav:"key"`
	Value int    `dynamodbav:"value"`
}

// New returns a new unopened DynamoDB adapter.
func New() db.Adapter {
	return &adapter{}
}

// Open creates the DynamoDB client.
func (a *adapter) Open(jsonconfig json.RawMessage) error {
	if a.svc != nil {
		return errors.New("adapter dynamodb is already connected")
	}

	var config configType
	if len(jsonconfig) > 0 {
		if err := json.Unmarshal(jsonconfig, &config); err != nil {
			return errors.New("adapter dynamodb failed to parse config: " + err.Error())
		}
	}

	if config.Region == "" {
		config.Region = defaultRegion
	}
	c := &aws.Config{Region: aws.String(config.Region)}
	if config.Endpoint != "" {
		c.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKeyID != "" {
		c.Credentials = credentials.NewStaticCredentials(config.AccessKeyID, config.SecretAccessKey, "")
	}

	sess, err := session.NewSession(c)
	if err != nil {
		return err
	}

	a.svc = dynamodb.New(sess)
	a.roomsTable = config.TablePrefix + common.RoomsTable
	a.metaTable = config.TablePrefix + common.MetaTable
	if config.SqlTimeout > 0 {
		a.timeout = time.Duration(config.SqlTimeout) * time.Second
	}
	a.version = -1

	return nil
}

// Close releases the client. DynamoDB is stateless over HTTP so there is nothing to close.
func (a *adapter) Close() error {
	a.svc = nil
	a.version = -1
	return nil
}

// IsOpen returns true if the client has been created.
func (a *adapter) IsOpen() bool {
	return a.svc != nil
}

func (a *adapter) getContext() (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(context.Background(), a.timeout)
	}
	return context.Background(), nil
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

	out, err := a.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.metaTable),
		Key:            map[string]*dynamodb.AttributeValue{"key": {S: aws.String(common.VersionKey)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if isNotFound(err) {
			err = errors.New("Database not initialized")
		}
		return -1, err
	}
	if len(out.Item) == 0 {
		return -1, errors.New("Database not initialized")
	}

	var meta metaRecord
	if err = dynamodbattribute.UnmarshalMap(out.Item, &meta); err != nil {
		return -1, err
	}

	a.version = meta.Value
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

// Stats is not implemented for DynamoDB.
func (a *adapter) Stats() interface{} {
	return nil
}

// GetName returns string that adapter uses to register itself with store.
func (a *adapter) GetName() string {
	return adapterName
}

// CreateDb creates the tables. If reset is true, existing tables are deleted first.
func (a *adapter) CreateDb(reset bool) error {
	ctx := context.Background()

	tables := []struct {
		name string
		key  string
	}{
		{a.metaTable, "key"},
		{a.roomsTable, "name"},
	}

	if reset {
		for _, tbl := range tables {
			if _, err := a.svc.DeleteTableWithContext(ctx,
				&dynamodb.DeleteTableInput{TableName: aws.String(tbl.name)}); err != nil {
				if isNotFound(err) {
					continue
				}
				return err
			}
			if err := a.svc.WaitUntilTableNotExistsWithContext(ctx,
				&dynamodb.DescribeTableInput{TableName: aws.String(tbl.name)}); err != nil {
				return err
			}
		}
	}

	for _, tbl := range tables {
		if _, err := a.svc.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
			TableName:   aws.String(tbl.name),
			BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
			AttributeDefinitions: []*dynamodb.AttributeDefinition{
				{AttributeName: aws.String(tbl.key), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			},
			KeySchema: []*dynamodb.KeySchemaElement{
				{AttributeName: aws.String(tbl.key), KeyType: aws.String(dynamodb.KeyTypeHash)},
			},
		}); err != nil {
			return err
		}
		if err := a.svc.WaitUntilTableExistsWithContext(ctx,
			&dynamodb.DescribeTableInput{TableName: aws.String(tbl.name)}); err != nil {
			return err
		}
	}

	item, err := dynamodbattribute.MarshalMap(metaRecord{Key: common.VersionKey, Value: adpVersion})
	if err != nil {
		return err
	}
	if _, err = a.svc.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.metaTable),
		Item:      item,
	}); err != nil {
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
	out, err := a.svc.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(a.roomsTable),
		Key:            map[string]*dynamodb.AttributeValue{"name": {S: aws.String(name)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var rec roomRecord
	if err = dynamodbattribute.UnmarshalMap(out.Item, &rec); err != nil {
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
	created, err := dynamodbattribute.Marshal(room.CreatedAt)
	if err != nil {
		return err
	}
	updated, err := dynamodbattribute.Marshal(room.UpdatedAt)
	if err != nil {
		return err
	}

	values := map[string]*dynamodb.AttributeValue{
		":sid":     {S: aws.String(room.SessionID)},
		":created": created,
		":updated": updated,
	}
	expr := "SET sessionid = :sid, updatedat = :updated, createdat = if_not_exists(createdat, :created)"
	if embed := common.EmbedToJSON(room.Embed); embed != nil {
		values[":embed"] = &dynamodb.AttributeValue{S: aws.String(string(embed))}
		expr += ", embed = :embed"
	} else {
		expr += " REMOVE embed"
	}

	_, err = a.svc.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(a.roomsTable),
		Key:                       map[string]*dynamodb.AttributeValue{"name": {S: aws.String(room.Name)}},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
	})
	return err
}

// RoomNames returns names of all rooms.
func (a *adapter) RoomNames(ctx context.Context) ([]string, error) {
	var names []string
	err := a.svc.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(a.roomsTable),
		ProjectionExpression: aws.String("#n"),
		// 'name' is a reserved word.
		ExpressionAttributeNames: map[string]*string{"#n": aws.String("name")},
		ConsistentRead:           aws.Bool(true),
	}, func(page *dynamodb.ScanOutput, last bool) bool {
		for _, item := range page.Items {
			if v, ok := item["name"]; ok && v.S != nil {
				names = append(names, *v.S)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == dynamodb.ErrCodeResourceNotFoundException
	}
	return false
}

func init() {
	store.RegisterAdapter(adapterName, New)
}
