package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.VectorIndex = (*MongoIndex)(nil)

const (
	mongoCloseTimeout = 5 * time.Second
	vectorIndexName   = "vector_index"
)

// MongoIndex stores chunks in an Atlas collection searched with
// $vectorSearch. Conversation turns carry their correlation id under
// metadata.msgid, which is what the answering service writes too.
type MongoIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoIndex(ctx context.Context, uri, database, collection string) (*MongoIndex, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" || collection == "" {
		return nil, errors.New("mongo database and collection names are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoIndex{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// EnsureIndexes creates the plain indexes used by the delete paths. The
// vector search index itself is managed in Atlas.
func (m *MongoIndex) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "filename", Value: 1}}, Options: options.Index().SetName("filename")},
		{Keys: bson.D{{Key: "file_id", Value: 1}}, Options: options.Index().SetName("file_id")},
		{Keys: bson.D{{Key: "metadata.msgid", Value: 1}}, Options: options.Index().SetName("metadata_msgid")},
	})
	return err
}

type chunkDocument struct {
	ID         string        `bson:"_id"`
	FileID     int64         `bson:"file_id,omitempty"`
	Filename   string        `bson:"filename,omitempty"`
	SessionID  string        `bson:"session_id,omitempty"`
	Metadata   chunkMetadata `bson:"metadata"`
	Position   int           `bson:"position"`
	Text       string        `bson:"text"`
	Embedding  []float64     `bson:"embedding"`
	TokenCount int           `bson:"token_count"`
	CreatedAt  time.Time     `bson:"created_at"`
}

type chunkMetadata struct {
	MsgID string `bson:"msgid,omitempty"`
}

func toDocument(ch models.Chunk) chunkDocument {
	created := ch.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return chunkDocument{
		ID:         ch.ID,
		FileID:     ch.FileID,
		Filename:   ch.Filename,
		SessionID:  ch.SessionID,
		Metadata:   chunkMetadata{MsgID: ch.CorrelationID},
		Position:   ch.Position,
		Text:       ch.Text,
		Embedding:  float64Embedding(ch.Embedding),
		TokenCount: ch.TokenCount,
		CreatedAt:  created,
	}
}

func (doc chunkDocument) toChunk() models.Chunk {
	return models.Chunk{
		ID:            doc.ID,
		FileID:        doc.FileID,
		Filename:      doc.Filename,
		SessionID:     doc.SessionID,
		CorrelationID: doc.Metadata.MsgID,
		Position:      doc.Position,
		Text:          doc.Text,
		Embedding:     float32Embedding(doc.Embedding),
		TokenCount:    doc.TokenCount,
		CreatedAt:     doc.CreatedAt,
	}
}

func (m *MongoIndex) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(chunks))
	for _, ch := range chunks {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": ch.ID}).
			SetReplacement(toDocument(ch)).
			SetUpsert(true))
	}
	if _, err := m.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return m.fail("upsert", err)
	}
	return nil
}

func (m *MongoIndex) Search(ctx context.Context, queryVec []float32, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: vectorIndexName},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: float64Embedding(queryVec)},
			{Key: "numCandidates", Value: int64(limit * 10)},
			{Key: "limit", Value: int64(limit)},
		}}},
	}
	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, m.fail("search", err)
	}
	defer cursor.Close(ctx)

	var out []models.Chunk
	for cursor.Next(ctx) {
		var doc chunkDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toChunk())
	}
	return out, cursor.Err()
}

func (m *MongoIndex) DeleteByFilename(ctx context.Context, filename string) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"filename": filename}); err != nil {
		return m.fail("delete by filename", err)
	}
	return nil
}

func (m *MongoIndex) DeleteByFileID(ctx context.Context, fileID int64) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: file id %d", core.ErrInvalidInput, fileID)
	}
	if _, err := m.collection.DeleteMany(ctx, bson.M{"file_id": fileID}); err != nil {
		return m.fail("delete by file id", err)
	}
	return nil
}

// DeleteByCorrelationID refuses an empty id; only exchange chunks carry one.
func (m *MongoIndex) DeleteByCorrelationID(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("%w: empty correlation id", core.ErrInvalidInput)
	}
	if _, err := m.collection.DeleteMany(ctx, bson.M{"metadata.msgid": correlationID}); err != nil {
		return m.fail("delete by msgid", err)
	}
	return nil
}

// Close releases the underlying MongoDB client.
func (m *MongoIndex) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoIndex) fail(op string, err error) error {
	return &core.RemoteServiceError{Service: "mongodb", Err: fmt.Errorf("%s: %w", op, err)}
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
