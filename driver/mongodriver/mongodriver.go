// Package mongodriver implements the driver.Driver capability set for
// MongoDB, over go.mongodb.org/mongo-driver. Insert, update, delete and
// select query strings follow the shape
// "<collection>:<filter_json>[:<update_json>]"; CreateQuery and ExecuteQuery
// instead take a bare JSON command document and run it through
// run_command, matching the teacher's db.go pattern of keeping one
// Driver struct per backend behind a uniform interface.
package mongodriver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dbdriver "github.com/kcenon/dbcore/driver"
	"github.com/kcenon/dbcore/logging"
)

// Driver implements driver.Driver and driver.AddrProvider for MongoDB.
type Driver struct {
	logger *logging.Logger

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
	addr   string
}

// New returns a Driver satisfying driver.Factory, not yet connected.
func New(logger *logging.Logger) dbdriver.Driver {
	return &Driver{logger: logger}
}

func (d *Driver) Kind() dbdriver.DatabaseKind { return dbdriver.MongoDB }

// GetAddr implements driver.AddrProvider.
func (d *Driver) GetAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.addr
}

// Connect opens a MongoDB connection using a "mongodb://[user:pw@]host[:port]/db"
// URI per spec §6 (default port 27017).
func (d *Driver) Connect(ctx context.Context, connString string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", errors.New("already connected")))
		return false
	}

	dbName := dbNameFromURI(connString)
	if dbName == "" {
		d.logger.Error(dbdriver.NewError(dbdriver.ConfigurationInvalid, "connect",
			errors.New("connection string missing database name")))
		return false
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connString))
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		return false
	}

	if err := client.Ping(ctx, nil); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "connect", err))
		_ = client.Disconnect(ctx)
		return false
	}

	d.client = client
	d.db = client.Database(dbName)
	d.addr = addrFromURI(connString)

	return true
}

func (d *Driver) Disconnect(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return false
	}

	err := d.client.Disconnect(ctx)
	d.client, d.db = nil, nil

	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.ConnectFailed, "disconnect", err))
		return false
	}

	return true
}

// CreateQuery runs a command document verbatim via run_command, as used for
// index creation and other DDL-like administrative operations.
func (d *Driver) CreateQuery(ctx context.Context, q string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return false
	}

	var cmd bson.M
	if err := bson.UnmarshalExtJSON([]byte(q), true, &cmd); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "create_query", err))
		return false
	}

	if err := d.db.RunCommand(ctx, cmd).Err(); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "create_query", err))
		return false
	}

	return true
}

// InsertQuery accepts "<collection>:<document_json>" and inserts one document.
func (d *Driver) InsertQuery(ctx context.Context, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	coll, filterJSON, _, err := parseQuery(q)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "insert_query", err))
		return 0
	}

	var doc bson.M
	if err := bson.UnmarshalExtJSON([]byte(filterJSON), true, &doc); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "insert_query", err))
		return 0
	}

	if _, err := d.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "insert_query", err))
		return 0
	}

	return 1
}

// UpdateQuery accepts "<collection>:<filter_json>:<update_json>".
func (d *Driver) UpdateQuery(ctx context.Context, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	coll, filterJSON, updateJSON, err := parseQuery(q)
	if err != nil || updateJSON == "" {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "update_query",
			errors.New("update_query requires collection:filter:update")))
		return 0
	}

	var filter, update bson.M
	if err := bson.UnmarshalExtJSON([]byte(filterJSON), true, &filter); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "update_query", err))
		return 0
	}
	if err := bson.UnmarshalExtJSON([]byte(updateJSON), true, &update); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "update_query", err))
		return 0
	}

	res, err := d.db.Collection(coll).UpdateMany(ctx, filter, update)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "update_query", err))
		return 0
	}

	return uint32(res.ModifiedCount)
}

// DeleteQuery accepts "<collection>:<filter_json>".
func (d *Driver) DeleteQuery(ctx context.Context, q string) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return 0
	}

	coll, filterJSON, _, err := parseQuery(q)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "delete_query", err))
		return 0
	}

	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(filterJSON), true, &filter); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "delete_query", err))
		return 0
	}

	res, err := d.db.Collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "delete_query", err))
		return 0
	}

	return uint32(res.DeletedCount)
}

// SelectQuery accepts "<collection>:<filter_json>" and decodes each matching
// document into a Row carrying both "_document" (the full document as JSON)
// and one entry per top-level field (each stringified as JSON), per the
// duplicate-representation contract for document backends.
func (d *Driver) SelectQuery(ctx context.Context, q string) dbdriver.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		d.logger.Error(dbdriver.ErrNotConnected)
		return nil
	}

	coll, filterJSON, _, err := parseQuery(q)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "select_query", err))
		return nil
	}

	var filter bson.M
	if err := bson.UnmarshalExtJSON([]byte(filterJSON), true, &filter); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryShapeInvalid, "select_query", err))
		return nil
	}

	cur, err := d.db.Collection(coll).Find(ctx, filter)
	if err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
		return nil
	}
	defer cur.Close(ctx)

	var result dbdriver.Result

	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
			return nil
		}

		row, err := documentToRow(doc)
		if err != nil {
			d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
			return nil
		}

		result = append(result, row)
	}

	if err := cur.Err(); err != nil {
		d.logger.Error(dbdriver.NewError(dbdriver.QueryRejected, "select_query", err))
		return nil
	}

	return result
}

// ExecuteQuery routes a bare JSON document through run_command, per spec §6:
// "plain JSON document routes through run_command".
func (d *Driver) ExecuteQuery(ctx context.Context, q string) bool {
	return d.CreateQuery(ctx, q)
}

// HasTable implements driver.TableChecker, reporting whether the named
// collection exists.
func (d *Driver) HasTable(ctx context.Context, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return false
	}

	names, err := d.db.ListCollectionNames(ctx, bson.M{"name": name})

	return err == nil && len(names) > 0
}

// parseQuery splits "<collection>:<filter_json>[:<update_json>]" into its
// parts. filter_json defaults to "{}" when omitted.
func parseQuery(q string) (collection, filterJSON, updateJSON string, err error) {
	collection, rest, _ := strings.Cut(q, ":")
	if collection = strings.TrimSpace(collection); collection == "" {
		return "", "", "", errors.New("query missing collection name")
	}

	// The filter document has colons of its own, so where it ends is found
	// by decoding it rather than by splitting on ':'.
	filterJSON = "{}"
	if rest = strings.TrimSpace(rest); rest != "" && rest[0] != ':' {
		dec := json.NewDecoder(strings.NewReader(rest))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", "", "", errors.Wrap(err, "invalid filter document")
		}
		filterJSON, rest = string(raw), strings.TrimSpace(rest[dec.InputOffset():])
	}
	if strings.HasPrefix(rest, ":") {
		updateJSON = rest[1:]
	}

	return collection, filterJSON, updateJSON, nil
}

// documentToRow converts a BSON document into a Row carrying the full
// document under "_document" plus one stringified-JSON entry per top-level
// field, and promotes the document's _id if present.
func documentToRow(doc bson.M) (*dbdriver.Row, error) {
	full, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	row := dbdriver.NewRow()
	if err := row.Set("_document", dbdriver.StringValue(string(full))); err != nil {
		return nil, err
	}

	for k, v := range doc {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}

		if err := row.Set(k, dbdriver.StringValue(string(encoded))); err != nil {
			return nil, err
		}
	}

	return row, nil
}

// dbNameFromURI extracts the path-segment database name from a mongodb://
// URI, ignoring any query string.
func dbNameFromURI(uri string) string {
	rest := strings.TrimPrefix(uri, "mongodb://")
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}

	slash := strings.Index(rest, "/")
	if slash < 0 {
		return ""
	}

	name := rest[slash+1:]
	if q := strings.Index(name, "?"); q >= 0 {
		name = name[:q]
	}

	return name
}

// addrFromURI strips credentials from a mongodb:// URI for log context.
func addrFromURI(uri string) string {
	rest := strings.TrimPrefix(uri, "mongodb://")
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}

	return rest
}
