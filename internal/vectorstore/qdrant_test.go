package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{Host: "localhost", Port: 6334, Collection: "documents", VectorSize: 1536}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "missing collection", mutate: func(c *Config) { c.Collection = "" }, wantErr: true},
		{name: "missing vector size", mutate: func(c *Config) { c.VectorSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	config := Config{Collection: "documents", VectorSize: 1536}
	config.ApplyDefaults()

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 6334, config.Port)
	assert.Equal(t, 50*1024*1024, config.MaxMessageSize)
	assert.Equal(t, qdrant.Distance_Cosine, config.Distance)
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "documents"},
		{name: "valid with underscore and digits", input: "docs_v2"},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "Documents", wantErr: true},
		{name: "path traversal", input: "../etc", wantErr: true},
		{name: "spaces", input: "my docs", wantErr: true},
		{name: "too long", input: string(make([]byte, 65)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCollectionName)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBuildScopeFilter(t *testing.T) {
	t.Run("user scope only", func(t *testing.T) {
		filter := buildScopeFilter("user-1", nil)
		require.Len(t, filter.Must, 1)

		field := filter.Must[0].GetField()
		require.NotNil(t, field)
		assert.Equal(t, payloadUserID, field.Key)
		assert.Equal(t, "user-1", field.Match.GetKeyword())
	})

	t.Run("document scope restricts further", func(t *testing.T) {
		filter := buildScopeFilter("user-1", []string{"doc-a", "doc-b"})
		require.Len(t, filter.Must, 2)

		docField := filter.Must[1].GetField()
		require.NotNil(t, docField)
		assert.Equal(t, payloadDocumentID, docField.Key)
		assert.Equal(t, []string{"doc-a", "doc-b"}, docField.Match.GetKeywords().GetStrings())
	})
}

func TestBuildPayload(t *testing.T) {
	v := Vector{
		ID:     "doc-1_chunk_3",
		Values: []float32{0.1, 0.2},
		Metadata: Metadata{
			Text:       "chunk text",
			DocumentID: "doc-1",
			PageNumber: 2,
			ChunkIndex: 3,
		},
	}

	payload := buildPayload("user-9", v)

	assert.Equal(t, "chunk text", payload[payloadText].GetStringValue())
	assert.Equal(t, "doc-1", payload[payloadDocumentID].GetStringValue())
	assert.Equal(t, "user-9", payload[payloadUserID].GetStringValue())
	assert.Equal(t, int64(2), payload[payloadPageNumber].GetIntegerValue())
	assert.Equal(t, int64(3), payload[payloadChunkIndex].GetIntegerValue())
	assert.Equal(t, "doc-1_chunk_3", payload[payloadVectorID].GetStringValue())
}

func TestMatchFromPoint(t *testing.T) {
	point := &qdrant.ScoredPoint{
		Score: 0.87,
		Payload: map[string]*qdrant.Value{
			payloadText:       {Kind: &qdrant.Value_StringValue{StringValue: "some text"}},
			payloadDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: "doc-7"}},
			payloadPageNumber: {Kind: &qdrant.Value_IntegerValue{IntegerValue: 4}},
		},
	}

	match := matchFromPoint(point)
	assert.Equal(t, "some text", match.Text)
	assert.Equal(t, "doc-7", match.DocumentID)
	assert.Equal(t, 4, match.PageNumber)
	assert.InDelta(t, 0.87, float64(match.Score), 1e-6)

	t.Run("missing payload", func(t *testing.T) {
		match := matchFromPoint(&qdrant.ScoredPoint{Score: 0.5})
		assert.Empty(t, match.Text)
		assert.InDelta(t, 0.5, float64(match.Score), 1e-6)
	})
}

func TestPointID(t *testing.T) {
	t.Run("uuid ids pass through", func(t *testing.T) {
		id := uuid.New().String()
		assert.Equal(t, id, pointID(id).GetUuid())
	})

	t.Run("non-uuid ids get a derived uuid", func(t *testing.T) {
		derived := pointID("doc-1_chunk_0").GetUuid()
		_, err := uuid.Parse(derived)
		require.NoError(t, err)
	})

	t.Run("derived ids are deterministic", func(t *testing.T) {
		// Re-ingest of the same vector id must hit the same point, so
		// upserts overwrite instead of duplicating chunks.
		first := pointID("doc-1_chunk_0").GetUuid()
		second := pointID("doc-1_chunk_0").GetUuid()
		assert.Equal(t, first, second)
	})

	t.Run("distinct ids map to distinct points", func(t *testing.T) {
		assert.NotEqual(t,
			pointID("doc-1_chunk_0").GetUuid(),
			pointID("doc-1_chunk_1").GetUuid(),
		)
	})
}

// fakePointsWriter records every upsert request and can refuse a
// specific batch.
type fakePointsWriter struct {
	batches [][]*qdrant.PointStruct
	failAt  int // 1-based batch number to refuse; 0 never fails
}

func (f *fakePointsWriter) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.batches = append(f.batches, req.Points)
	if f.failAt > 0 && len(f.batches) == f.failAt {
		return nil, errors.New("write refused")
	}
	return &qdrant.UpdateResult{}, nil
}

func makePoints(n int) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, n)
	for i := range points {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(fmt.Sprintf("doc-1_chunk_%d", i)),
			Vectors: qdrant.NewVectors(0.1, 0.2),
		}
	}
	return points
}

func TestUpsertBatches(t *testing.T) {
	t.Run("splits into sequential batches of at most 100", func(t *testing.T) {
		writer := &fakePointsWriter{}
		err := upsertBatches(context.Background(), writer, "documents", makePoints(250))
		require.NoError(t, err)

		require.Len(t, writer.batches, 3)
		assert.Len(t, writer.batches[0], 100)
		assert.Len(t, writer.batches[1], 100)
		assert.Len(t, writer.batches[2], 50)

		// Order preserved across batches.
		assert.Equal(t, pointID("doc-1_chunk_0").GetUuid(), writer.batches[0][0].Id.GetUuid())
		assert.Equal(t, pointID("doc-1_chunk_100").GetUuid(), writer.batches[1][0].Id.GetUuid())
		assert.Equal(t, pointID("doc-1_chunk_249").GetUuid(), writer.batches[2][49].Id.GetUuid())
	})

	t.Run("single batch for 100 or fewer points", func(t *testing.T) {
		writer := &fakePointsWriter{}
		err := upsertBatches(context.Background(), writer, "documents", makePoints(100))
		require.NoError(t, err)
		require.Len(t, writer.batches, 1)
		assert.Len(t, writer.batches[0], 100)
	})

	t.Run("failed batch stops the loop and keeps earlier writes", func(t *testing.T) {
		writer := &fakePointsWriter{failAt: 2}
		err := upsertBatches(context.Background(), writer, "documents", makePoints(250))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIndexWrite)

		// The first batch was committed before the failure; the third
		// was never attempted.
		assert.Len(t, writer.batches, 2)
	})
}
