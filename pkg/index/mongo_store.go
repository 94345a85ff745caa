package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	closeTimeout  = 5 * time.Second
	manifestDocID = "manifest"
	kindManifest  = "manifest"
	kindChunk     = "chunk"
)

// MongoStore keeps each index in a collection named after it. Rebuilds go to a
// staging collection that is renamed over the live one.
type MongoStore struct {
	client   *mongo.Client
	database string
}

type mongoDoc struct {
	ID         string            `bson:"_id"`
	Kind       string            `bson:"kind"`
	Position   int               `bson:"position,omitempty"`
	Content    string            `bson:"content,omitempty"`
	Source     string            `bson:"source,omitempty"`
	Metadata   map[string]string `bson:"metadata,omitempty"`
	Embedding  []float64         `bson:"embedding,omitempty"`
	Model      string            `bson:"model,omitempty"`
	Dimensions int               `bson:"dimensions,omitempty"`
	Metric     string            `bson:"metric,omitempty"`
	ChunkCount int               `bson:"chunk_count,omitempty"`
	BuiltAt    time.Time         `bson:"built_at,omitempty"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{client: client, database: database}, nil
}

func (ms *MongoStore) Replace(ctx context.Context, m Manifest, entries []Entry) error {
	db := ms.client.Database(ms.database)
	staging := m.Name + "_staging_" + uuid.NewString()
	coll := db.Collection(staging)

	docs := make([]interface{}, 0, len(entries)+1)
	docs = append(docs, mongoDoc{
		ID:         manifestDocID,
		Kind:       kindManifest,
		Model:      m.Model,
		Dimensions: m.Dimensions,
		Metric:     m.Metric,
		ChunkCount: m.ChunkCount,
		BuiltAt:    m.BuiltAt,
	})
	for _, e := range entries {
		docs = append(docs, mongoDoc{
			ID:        e.ID,
			Kind:      kindChunk,
			Position:  e.Position,
			Content:   e.Content,
			Source:    e.Source,
			Metadata:  e.Metadata,
			Embedding: float64Embedding(e.Vector),
		})
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		_ = coll.Drop(ctx)
		return fmt.Errorf("mongo: stage index: %w", err)
	}
	cmd := bson.D{
		{Key: "renameCollection", Value: ms.database + "." + staging},
		{Key: "to", Value: ms.database + "." + m.Name},
		{Key: "dropTarget", Value: true},
	}
	if err := ms.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		_ = coll.Drop(ctx)
		return fmt.Errorf("mongo: swap index: %w", err)
	}
	return nil
}

func (ms *MongoStore) Manifest(ctx context.Context, name string) (Manifest, error) {
	var doc mongoDoc
	err := ms.client.Database(ms.database).Collection(name).
		FindOne(ctx, bson.M{"_id": manifestDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Manifest{}, ErrIndexNotFound
	}
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{
		Name:       name,
		Model:      doc.Model,
		Dimensions: doc.Dimensions,
		Metric:     doc.Metric,
		ChunkCount: doc.ChunkCount,
		BuiltAt:    doc.BuiltAt.UTC(),
	}, nil
}

// Search scans the collection and scores client-side; plain MongoDB has no
// vector operator outside Atlas.
func (ms *MongoStore) Search(ctx context.Context, name string, vec []float32, k int) ([]Result, error) {
	if _, err := ms.Manifest(ctx, name); err != nil {
		return nil, err
	}
	cursor, err := ms.client.Database(ms.database).Collection(name).Find(ctx, bson.M{"kind": kindChunk})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			ID:       doc.ID,
			Position: doc.Position,
			Content:  doc.Content,
			Source:   doc.Source,
			Metadata: doc.Metadata,
			Vector:   float32Embedding(doc.Embedding),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return rank(vec, entries, k), nil
}

func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func float64Embedding(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func float32Embedding(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
