package vectorstore

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("ragd.vectorstore.qdrant")

// maxUpsertBatch is the maximum number of points written per upsert
// call. Batches are issued sequentially until all vectors are written.
const maxUpsertBatch = 100

// Payload keys under which chunk metadata is stored.
const (
	payloadText       = "text"
	payloadDocumentID = "document_id"
	payloadUserID     = "user_id"
	payloadPageNumber = "page_number"
	payloadChunkIndex = "chunk_index"
	payloadVectorID   = "vector_id"
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds configuration for the Qdrant gRPC client.
type Config struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// Collection is the collection holding all users' vectors.
	// User isolation is enforced with payload filtering on user_id.
	Collection string

	// VectorSize is the dimensionality of embeddings. MUST match the
	// embedding model's output (1536 for text-embedding-ada-002).
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ValidateCollectionName validates a collection name against naming
// rules. Rejects uppercase, special characters, and path traversal.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// QdrantIndex is an Index implementation backed by Qdrant's native
// gRPC client (port 6334, binary protobuf transport).
//
// The client is constructed once at process startup and injected into
// consumers; there is no lazy initialization. Operations fail fast with
// no internal retry; retry policy belongs to the caller.
type QdrantIndex struct {
	client *qdrant.Client
	config Config
}

// NewQdrantIndex creates a QdrantIndex, connects, and health-checks
// the server. Returns an error if the configuration is invalid or the
// server is unreachable.
func NewQdrantIndex(config Config) (*QdrantIndex, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(config.Collection); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}

	if !config.UseTLS {
		fmt.Fprintf(os.Stderr, "WARNING: Qdrant gRPC using plaintext (TLS disabled). Insecure for production.\n")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	index := &QdrantIndex{
		client: client,
		config: config,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return index, nil
}

// Close closes the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// EnsureCollection creates the configured collection if it does not
// exist. Called once during startup.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.EnsureCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", q.config.Collection))

	exists, err := q.client.CollectionExists(ctx, q.config.Collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", q.config.Collection, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.config.VectorSize,
			Distance: q.config.Distance,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", q.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "created")
	return nil
}

// Upsert writes vectors for the given user in sequential batches of at
// most maxUpsertBatch points. On a batch failure, earlier batches stay
// committed; no rollback is attempted.
func (q *QdrantIndex) Upsert(ctx context.Context, userID string, vectors []Vector) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("vector_count", len(vectors)),
		attribute.String("collection", q.config.Collection),
	)

	if len(vectors) == 0 {
		return fmt.Errorf("%w: vectors cannot be empty", ErrIndexWrite)
	}
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrIndexWrite)
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(v.ID),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: buildPayload(userID, v),
		}
	}

	if err := upsertBatches(ctx, q.client, q.config.Collection, points); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("points_written", len(points)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// pointsWriter is the slice of the Qdrant client that Upsert writes
// through. It lets tests drive the batching loop without a server.
type pointsWriter interface {
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
}

// upsertBatches writes points sequentially in batches of at most
// maxUpsertBatch. On a batch failure earlier batches stay committed;
// the error names the failed range.
func upsertBatches(ctx context.Context, w pointsWriter, collection string, points []*qdrant.PointStruct) error {
	for start := 0; start < len(points); start += maxUpsertBatch {
		end := min(start+maxUpsertBatch, len(points))
		if _, err := w.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points[start:end],
		}); err != nil {
			return fmt.Errorf("%w: batch %d-%d: %v", ErrIndexWrite, start, end, err)
		}
	}
	return nil
}

// Query returns up to topK of the user's vectors most similar to the
// query vector, sorted by descending score. A non-empty documentIDs
// slice restricts results to those documents.
func (q *QdrantIndex) Query(ctx context.Context, userID string, vector []float32, topK int, documentIDs []string) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", q.config.Collection),
		attribute.Int("top_k", topK),
		attribute.Int("document_scope", len(documentIDs)),
	)

	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrIndexQuery)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrIndexQuery, topK)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", ErrIndexQuery)
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildScopeFilter(userID, documentIDs),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrIndexQuery, err)
	}

	matches := make([]Match, len(points))
	for i, point := range points {
		matches[i] = matchFromPoint(point)
	}

	span.SetAttributes(attribute.Int("match_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByDocument removes every vector whose payload document_id
// equals documentID, across all users.
func (q *QdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "QdrantIndex.DeleteByDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", q.config.Collection),
		attribute.String("document_id", documentID),
	)

	if documentID == "" {
		return fmt.Errorf("%w: document id required", ErrIndexDelete)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{keywordCondition(payloadDocumentID, documentID)},
				},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: document %s: %v", ErrIndexDelete, documentID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// pointID maps a caller vector id to a Qdrant point id. Qdrant point
// ids must be UUIDs or integers, so non-UUID ids map to a name-based
// UUID derived from the id. The mapping is deterministic: re-upserting
// the same vector id hits the same point, so re-ingesting a document
// overwrites its chunks instead of duplicating them. The caller id
// survives in the payload under vector_id.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// buildPayload converts vector metadata to a Qdrant payload.
func buildPayload(userID string, v Vector) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		payloadText:       {Kind: &qdrant.Value_StringValue{StringValue: v.Metadata.Text}},
		payloadDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: v.Metadata.DocumentID}},
		payloadUserID:     {Kind: &qdrant.Value_StringValue{StringValue: userID}},
		payloadPageNumber: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v.Metadata.PageNumber)}},
		payloadChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v.Metadata.ChunkIndex)}},
		payloadVectorID:   {Kind: &qdrant.Value_StringValue{StringValue: v.ID}},
	}
}

// buildScopeFilter builds the query filter: a mandatory user_id match
// plus an optional document_id restriction.
func buildScopeFilter(userID string, documentIDs []string) *qdrant.Filter {
	must := []*qdrant.Condition{keywordCondition(payloadUserID, userID)}
	if len(documentIDs) > 0 {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: payloadDocumentID,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: documentIDs},
						},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// matchFromPoint extracts a Match from a scored point's payload.
func matchFromPoint(point *qdrant.ScoredPoint) Match {
	match := Match{Score: point.Score}
	if point.Payload == nil {
		return match
	}
	if v, ok := point.Payload[payloadText]; ok {
		match.Text = v.GetStringValue()
	}
	if v, ok := point.Payload[payloadDocumentID]; ok {
		match.DocumentID = v.GetStringValue()
	}
	if v, ok := point.Payload[payloadPageNumber]; ok {
		match.PageNumber = int(v.GetIntegerValue())
	}
	return match
}

// Ensure QdrantIndex implements Index.
var _ Index = (*QdrantIndex)(nil)
