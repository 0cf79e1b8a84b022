/**
 * Qdrant label index for the alignment worker
 *
 * Every accepted alignment becomes a point whose vector is the hashed
 * trigram profile of its ground-truth text. Searching the index finds the
 * same or nearly the same label across the whole dataset, which is how
 * duplicated pages and copy-paste errors in transcriptions are spotted.
 */

package storage

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// LabelIndex handles vector database operations
type LabelIndex struct {
	client           qdrant.PointsClient
	collectionClient qdrant.CollectionsClient
	conn             *grpc.ClientConn
	collectionName   string
}

// LabelPoint is one accepted line to index
type LabelPoint struct {
	JobID        string
	DocumentID   string
	PatternIndex int
	Pattern      string
	MatchedText  string
	Score        float64
}

// LabelMatch is a search hit
type LabelMatch struct {
	PointID    string
	Similarity float32
	Metadata   map[string]interface{}
}

// NewLabelIndex creates a new Qdrant client
func NewLabelIndex(address string, collectionName string) (*LabelIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("qdrant address is required")
	}

	if collectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	idx := &LabelIndex{
		client:           qdrant.NewPointsClient(conn),
		collectionClient: qdrant.NewCollectionsClient(conn),
		conn:             conn,
		collectionName:   collectionName,
	}

	if err := idx.ensureCollection(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	return idx, nil
}

// ensureCollection creates the collection if it doesn't exist
func (q *LabelIndex) ensureCollection(ctx context.Context) error {
	listResp, err := q.collectionClient.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == q.collectionName {
			return nil
		}
	}

	_, err = q.collectionClient.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collectionName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     LabelVectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// UpsertLabels stores or updates the points of labels. Labels with an empty
// matched text are ignored. It returns the number of points written.
func (q *LabelIndex) UpsertLabels(ctx context.Context, labels []LabelPoint) (int, error) {
	points := labelPoints(labels)
	if len(points) == 0 {
		return 0, nil
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert labels: %w", err)
	}

	return len(points), nil
}

func labelPoints(labels []LabelPoint) []*qdrant.PointStruct {
	points := make([]*qdrant.PointStruct, 0, len(labels))
	for _, l := range labels {
		vector := LabelVector(l.MatchedText)
		if cosine(vector, vector) == 0 {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: LabelPointID(l.JobID, l.PatternIndex)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vector},
				},
			},
			Payload: toPayload(map[string]interface{}{
				"job_id":        l.JobID,
				"document_id":   l.DocumentID,
				"pattern_index": int64(l.PatternIndex),
				"pattern":       l.Pattern,
				"matched_text":  l.MatchedText,
				"score":         l.Score,
			}),
		})
	}
	return points
}

// SearchSimilar returns the labels closest to text
func (q *LabelIndex) SearchSimilar(ctx context.Context, text string, limit int) ([]LabelMatch, error) {
	vector := LabelVector(text)
	if cosine(vector, vector) == 0 {
		return nil, fmt.Errorf("query text has no characters to compare")
	}

	if limit <= 0 {
		limit = 10
	}

	results, err := q.client.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collectionName,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search labels: %w", err)
	}

	matches := make([]LabelMatch, 0, len(results.Result))
	for _, r := range results.Result {
		m := LabelMatch{
			Similarity: r.Score,
			Metadata:   fromPayload(r.Payload),
		}
		if r.Id != nil {
			m.PointID = r.Id.GetUuid()
		}
		matches = append(matches, m)
	}

	return matches, nil
}

// DeleteJobLabels removes every point written for jobID
func (q *LabelIndex) DeleteJobLabels(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required")
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: jobFilter(jobID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete labels of job %s: %w", jobID, err)
	}

	return nil
}

func jobFilter(jobID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "job_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: jobID},
						},
					},
				},
			},
		},
	}
}

// GetCollectionInfo returns collection statistics
func (q *LabelIndex) GetCollectionInfo(ctx context.Context) (map[string]interface{}, error) {
	info, err := q.collectionClient.Get(ctx, &qdrant.GetCollectionInfoRequest{
		CollectionName: q.collectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return map[string]interface{}{
		"collection_name": q.collectionName,
		"vectors_count":   info.Result.GetVectorsCount(),
		"points_count":    info.Result.GetPointsCount(),
		"indexed_vectors": info.Result.GetIndexedVectorsCount(),
		"status":          info.Result.GetStatus().String(),
	}, nil
}

// Close closes the Qdrant client connection
func (q *LabelIndex) Close() error {
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func toPayload(values map[string]interface{}) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	values := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			values[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			values[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			values[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			values[k] = val.BoolValue
		}
	}
	return values
}
