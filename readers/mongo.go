//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of databarc.
//
// databarc is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// databarc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with databarc. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/betaplane/databarc"
)

// Package readers provides implementations of databarc.RecordSource for
// ingesting observation records from external systems.
//
// This file implements a MongoDB source that streams the documents of one
// observation collection as time-ordered records. Documents are expected to
// carry a "t" timestamp, an optional numeric "x" value (absent or null means
// a missing measurement) and an optional integer "info" flag.

// MongoSourceError provides structured error information for MongoDB source
// operations.
type MongoSourceError struct {
	Op         string // Operation that failed (e.g., "connect", "query", "decode")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoSourceError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo source %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo source %s: %v", e.Op, e.Err)
}

func (e *MongoSourceError) Unwrap() error {
	return e.Err
}

// MongoSourceStats holds counters about the source's activity.
type MongoSourceStats struct {
	RecordsRead    int64         // Total records read
	MissingValues  int64         // Records with no measurement value
	ReadDuration   time.Duration // Total time spent reading
	LastReadTime   time.Time     // Time of last read
	ErrorCount     int64         // Number of errors encountered
}

// MongoSourceOptions configures the MongoDB source.
type MongoSourceOptions struct {
	URI             string        // MongoDB connection URI
	Database        string        // Database name
	Collection      string        // Collection name
	Filter          bson.M        // Extra query filter, merged with the resume filter
	After           time.Time     // Resume point: only records strictly after this instant
	BatchSize       int32         // Batch size for the cursor
	Timeout         time.Duration // Connect timeout
	MaxPoolSize     uint64        // Connection pool size
	MinPoolSize     uint64        // Minimum connections in pool
	MaxConnIdleTime time.Duration // Max idle time for connections
	Username        string        // Authentication username
	Password        string        // Authentication password
	AuthDatabase    string        // Authentication database
}

// MongoSourceOption is a functional option for MongoSourceOptions.
type MongoSourceOption func(*MongoSourceOptions)

func WithMongoURI(uri string) MongoSourceOption {
	return func(opts *MongoSourceOptions) { opts.URI = uri }
}

func WithMongoCollection(database, collection string) MongoSourceOption {
	return func(opts *MongoSourceOptions) {
		opts.Database = database
		opts.Collection = collection
	}
}

func WithMongoFilter(filter bson.M) MongoSourceOption {
	return func(opts *MongoSourceOptions) { opts.Filter = filter }
}

// WithMongoAfter restricts the stream to records strictly after the given
// instant, for resuming an aggregation from its last committed output.
func WithMongoAfter(after time.Time) MongoSourceOption {
	return func(opts *MongoSourceOptions) { opts.After = after }
}

func WithMongoBatchSize(batchSize int32) MongoSourceOption {
	return func(opts *MongoSourceOptions) { opts.BatchSize = batchSize }
}

func WithMongoTimeout(timeout time.Duration) MongoSourceOption {
	return func(opts *MongoSourceOptions) { opts.Timeout = timeout }
}

func WithMongoPoolSize(min, max uint64) MongoSourceOption {
	return func(opts *MongoSourceOptions) {
		opts.MinPoolSize = min
		opts.MaxPoolSize = max
	}
}

func WithMongoAuth(username, password, authDB string) MongoSourceOption {
	return func(opts *MongoSourceOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

// MongoSource implements databarc.RecordSource for MongoDB observation
// collections. Records are streamed in ascending timestamp order, as the
// binners require.
type MongoSource struct {
	client    *mongo.Client
	coll      *mongo.Collection
	cursor    *mongo.Cursor
	opts      *MongoSourceOptions
	stats     MongoSourceStats
	connected bool
}

// NewMongoSource creates a MongoDB source with configurable options.
func NewMongoSource(options ...MongoSourceOption) (*MongoSource, error) {
	opts := &MongoSourceOptions{
		URI:             "mongodb://localhost:27017",
		BatchSize:       1000,
		Timeout:         30 * time.Second,
		MaxPoolSize:     100,
		MinPoolSize:     5,
		MaxConnIdleTime: 10 * time.Minute,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.Database == "" {
		return nil, &MongoSourceError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoSourceError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}
	return &MongoSource{opts: opts}, nil
}

// Connect establishes the connection and verifies it with a ping.
func (ms *MongoSource) Connect(ctx context.Context) error {
	if ms.connected {
		return nil
	}

	clientOpts := options.Client().ApplyURI(ms.opts.URI).
		SetMaxPoolSize(ms.opts.MaxPoolSize).
		SetMinPoolSize(ms.opts.MinPoolSize).
		SetMaxConnIdleTime(ms.opts.MaxConnIdleTime).
		SetConnectTimeout(ms.opts.Timeout)
	if ms.opts.Username != "" && ms.opts.Password != "" {
		auth := options.Credential{
			Username:   ms.opts.Username,
			Password:   ms.opts.Password,
			AuthSource: ms.opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = ms.opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return &MongoSourceError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return &MongoSourceError{Op: "ping", Err: err}
	}

	ms.client = client
	ms.coll = client.Database(ms.opts.Database).Collection(ms.opts.Collection)
	ms.connected = true
	return nil
}

// Read implements databarc.RecordSource. It returns io.EOF after the last
// document.
func (ms *MongoSource) Read(ctx context.Context) (databarc.Record, error) {
	start := time.Now()
	defer func() {
		ms.stats.ReadDuration += time.Since(start)
		ms.stats.LastReadTime = time.Now()
	}()

	if !ms.connected {
		if err := ms.Connect(ctx); err != nil {
			return databarc.Record{}, err
		}
	}
	if ms.cursor == nil {
		if err := ms.initCursor(ctx); err != nil {
			ms.stats.ErrorCount++
			return databarc.Record{}, &MongoSourceError{Op: "query", Collection: ms.opts.Collection, Err: err}
		}
	}

	if !ms.cursor.Next(ctx) {
		if err := ms.cursor.Err(); err != nil {
			ms.stats.ErrorCount++
			return databarc.Record{}, &MongoSourceError{Op: "cursor_next", Collection: ms.opts.Collection, Err: err}
		}
		return databarc.Record{}, io.EOF
	}

	var doc struct {
		T    time.Time `bson:"t"`
		X    *float64  `bson:"x"`
		Info *int      `bson:"info"`
	}
	if err := ms.cursor.Decode(&doc); err != nil {
		ms.stats.ErrorCount++
		return databarc.Record{}, &MongoSourceError{Op: "decode", Collection: ms.opts.Collection, Err: err}
	}

	rec := databarc.Record{T: doc.T, X: doc.X}
	if doc.Info != nil {
		rec.Info = *doc.Info
	}
	ms.stats.RecordsRead++
	if rec.X == nil {
		ms.stats.MissingValues++
	}
	return rec, nil
}

func (ms *MongoSource) initCursor(ctx context.Context) error {
	filter := bson.M{}
	for k, v := range ms.opts.Filter {
		filter[k] = v
	}
	if !ms.opts.After.IsZero() {
		filter["t"] = bson.M{"$gt": ms.opts.After}
	}
	findOpts := options.Find().
		SetSort(bson.M{"t": 1}).
		SetBatchSize(ms.opts.BatchSize)
	cursor, err := ms.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return err
	}
	ms.cursor = cursor
	return nil
}

// ReadAll drains the source into a slice, for handing a full series to the
// binners.
func (ms *MongoSource) ReadAll(ctx context.Context) ([]databarc.Record, error) {
	var out []databarc.Record
	for {
		rec, err := ms.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Close implements databarc.RecordSource.
func (ms *MongoSource) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ms.opts.Timeout)
	defer cancel()

	var errs []error
	if ms.cursor != nil {
		if err := ms.cursor.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cursor close: %w", err))
		}
		ms.cursor = nil
	}
	if ms.client != nil {
		if err := ms.client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("client disconnect: %w", err))
		}
		ms.client = nil
	}
	ms.connected = false
	if len(errs) > 0 {
		return &MongoSourceError{Op: "close", Err: fmt.Errorf("%v", errs)}
	}
	return nil
}

// Stats returns source activity counters.
func (ms *MongoSource) Stats() MongoSourceStats {
	return ms.stats
}
