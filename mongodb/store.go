package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DEEJ4Y/minicron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config holds the configuration for the MongoDB run store.
type Config struct {
	// Collection is the MongoDB collection where runs are stored.
	// Required.
	Collection *mongo.Collection

	// Host is stored with every run so several daemons can share a
	// collection. Optional.
	Host string

	// Condition is an optional additional filter applied by Recent.
	// Example: bson.M{"host": "web-1"} to only list one daemon's runs.
	Condition bson.M
}

// Store implements minicron.RunStore for MongoDB.
type Store struct {
	collection *mongo.Collection
	host       string
	condition  bson.M
}

// runDocument is the stored shape of a minicron.Run.
type runDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Host        string             `bson:"host,omitempty"`
	Command     string             `bson:"command"`
	Args        []string           `bson:"args,omitempty"`
	Policy      string             `bson:"policy"`
	ScheduledAt time.Time          `bson:"scheduledAt"`
	StartedAt   *time.Time         `bson:"startedAt,omitempty"`
	FinishedAt  *time.Time         `bson:"finishedAt,omitempty"`
	PID         int                `bson:"pid,omitempty"`
	ExitCode    int                `bson:"exitCode"`
	Error       string             `bson:"error,omitempty"`
}

// NewStore creates a new MongoDB run store with the given configuration.
func NewStore(config Config) (*Store, error) {
	if config.Collection == nil {
		return nil, fmt.Errorf("collection is required")
	}

	return &Store{
		collection: config.Collection,
		host:       config.Host,
		condition:  config.Condition,
	}, nil
}

// Connect dials uri, checks the server answers and returns a store on
// database.collection. The returned function disconnects the client.
func Connect(ctx context.Context, uri, database, collection, host string) (*Store, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("ping failed: %w", err), client.Disconnect(ctx))
	}

	store, err := NewStore(Config{
		Collection: client.Database(database).Collection(collection),
		Host:       host,
	})
	if err != nil {
		return nil, nil, errors.Join(err, client.Disconnect(ctx))
	}
	return store, client.Disconnect, nil
}

// EnsureIndexes creates the index Recent sorts on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "scheduledAt", Value: -1}},
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("create index failed: %w", err)
	}
	return nil
}

// Record inserts run and sets its ID to the inserted ObjectID.
func (s *Store) Record(ctx context.Context, run *minicron.Run) error {
	doc := runToDocument(run)
	doc.Host = s.host

	result, err := s.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	run.ID = result.InsertedID
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]minicron.Run, error) {
	filter := bson.M{}
	if s.condition != nil {
		filter = s.condition
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find failed: %w", err)
	}
	var docs []runDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	runs := make([]minicron.Run, 0, len(docs))
	for i := range docs {
		runs = append(runs, documentToRun(&docs[i]))
	}
	return runs, nil
}

func runToDocument(run *minicron.Run) runDocument {
	doc := runDocument{
		Command:     run.Command,
		Args:        run.Args,
		Policy:      string(run.Policy),
		ScheduledAt: run.ScheduledAt,
		PID:         run.PID,
		ExitCode:    run.ExitCode,
		Error:       run.Error,
	}
	if !run.StartedAt.IsZero() {
		t := run.StartedAt
		doc.StartedAt = &t
	}
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt
		doc.FinishedAt = &t
	}
	return doc
}

func documentToRun(doc *runDocument) minicron.Run {
	run := minicron.Run{
		ID:          doc.ID,
		Command:     doc.Command,
		Args:        doc.Args,
		Policy:      minicron.Policy(doc.Policy),
		ScheduledAt: doc.ScheduledAt.Local(),
		PID:         doc.PID,
		ExitCode:    doc.ExitCode,
		Error:       doc.Error,
	}
	if doc.StartedAt != nil {
		run.StartedAt = doc.StartedAt.Local()
	}
	if doc.FinishedAt != nil {
		run.FinishedAt = doc.FinishedAt.Local()
	}
	return run
}
