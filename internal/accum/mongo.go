package accum

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dwcavalidate/internal/validate"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig configures a MongoAccumulator.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string // defaults to "findings"
}

// MongoAccumulator inserts every finding as a document, batching inserts to
// cut round trips on large archives.
type MongoAccumulator struct {
	client *mongo.Client
	coll   *mongo.Collection

	mu     sync.Mutex
	batch  []any
	closed bool
}

const mongoBatchSize = 200

// NewMongoAccumulator connects to uri and verifies the connection.
func NewMongoAccumulator(cfg MongoConfig) (*MongoAccumulator, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collName := cfg.Collection
	if collName == "" {
		collName = "findings"
	}

	return &MongoAccumulator{
		client: client,
		coll:   client.Database(cfg.Database).Collection(collName),
		batch:  make([]any, 0, mongoBatchSize),
	}, nil
}

type findingDoc struct {
	Kind         string `bson:"kind"`
	Severity     string `bson:"severity"`
	EvaluatorKey string `bson:"evaluatorKey"`
	Context      string `bson:"context"`
	RowType      string `bson:"rowType"`
	Value        string `bson:"value"`
	Message      string `bson:"message"`
}

func (m *MongoAccumulator) Accept(finding validate.Finding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.batch = append(m.batch, findingDoc{
		Kind:         string(finding.Kind),
		Severity:     string(finding.Severity),
		EvaluatorKey: finding.EvaluatorKey,
		Context:      string(finding.Context),
		RowType:      string(finding.RowType),
		Value:        finding.Value,
		Message:      finding.Message,
	})
	if len(m.batch) >= mongoBatchSize {
		m.flushLocked()
	}
}

// flushLocked inserts the buffered batch. Must be called while holding m.mu.
func (m *MongoAccumulator) flushLocked() {
	if len(m.batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := m.coll.InsertMany(ctx, m.batch); err != nil {
		log.Printf("[accum] mongo insert failed: %v", err)
	}
	m.batch = m.batch[:0]
}

// Close flushes any buffered findings and disconnects. Idempotent.
func (m *MongoAccumulator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.flushLocked()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
