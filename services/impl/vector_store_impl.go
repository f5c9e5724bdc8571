package impl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/meepleai/meepleai-api/services"
)

// vectorOpTimeout bounds every Qdrant round trip.
const vectorOpTimeout = 5 * time.Second

type vectorStoreImpl struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimensions  int
}

// NewVectorStore connects to Qdrant at the given gRPC address.
func NewVectorStore(addr, collection string, dimensions int) (services.VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial qdrant %s: %w", addr, err)
	}
	return &vectorStoreImpl{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimensions:  dimensions,
	}, nil
}

// PointID derives the deterministic point ID for a chunk. Re-indexing the
// same document always writes to the same IDs, which is what makes indexing
// idempotent.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-%d", documentID, chunkIndex))).String()
}

// EnsureCollection creates the collection with cosine distance and the
// keyword payload indexes used for filtered search. Safe to call on every
// startup.
func (v *vectorStoreImpl) EnsureCollection(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, vectorOpTimeout)
	defer cancel()

	list, err := v.collections.List(opCtx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			exists = true
			break
		}
	}

	if !exists {
		_, err = v.collections.Create(opCtx, &pb.CreateCollection{
			CollectionName: v.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(v.dimensions),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", v.collection, err)
		}
	}

	// Payload indexes are idempotent; Qdrant ignores re-creation.
	for _, field := range []string{"game_id", "document_id"} {
		fieldType := pb.FieldType_FieldTypeKeyword
		_, err = v.points.CreateFieldIndex(opCtx, &pb.CreateFieldIndexCollection{
			CollectionName: v.collection,
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil {
			return fmt.Errorf("failed to create payload index on %s: %w", field, err)
		}
	}
	return nil
}

func (v *vectorStoreImpl) Upsert(ctx context.Context, points []services.VectorPoint) services.UpsertResult {
	if len(points) == 0 {
		return services.UpsertResult{Success: true}
	}

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(p.DocumentID, p.ChunkIndex)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				"game_id":     {Kind: &pb.Value_StringValue{StringValue: p.GameID}},
				"document_id": {Kind: &pb.Value_StringValue{StringValue: p.DocumentID}},
				"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.ChunkIndex)}},
				"text":        {Kind: &pb.Value_StringValue{StringValue: p.Text}},
				"page":        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Page)}},
				"char_start":  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.CharStart)}},
				"char_end":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.CharEnd)}},
				"indexed_at":  {Kind: &pb.Value_StringValue{StringValue: p.IndexedAt.UTC().Format(time.RFC3339)}},
			},
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, vectorOpTimeout)
	defer cancel()

	wait := true
	_, err := v.points.Upsert(opCtx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         pbPoints,
	})
	if err != nil {
		return services.UpsertResult{Error: fmt.Sprintf("failed to upsert %d points: %v", len(points), err)}
	}
	return services.UpsertResult{Success: true, PointsWritten: len(points)}
}

func (v *vectorStoreImpl) Search(ctx context.Context, gameID string, vector []float32, limit int) services.SearchResult {
	opCtx, cancel := context.WithTimeout(ctx, vectorOpTimeout)
	defer cancel()

	resp, err := v.points.Search(opCtx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatchKeyword("game_id", gameID)},
		},
	})
	if err != nil {
		return services.SearchResult{Error: fmt.Sprintf("search failed: %v", err)}
	}

	hits := make([]services.SearchHit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		payload := r.GetPayload()
		hits = append(hits, services.SearchHit{
			Text:       payload["text"].GetStringValue(),
			DocumentID: payload["document_id"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Page:       int(payload["page"].GetIntegerValue()),
			CharStart:  int(payload["char_start"].GetIntegerValue()),
			Score:      float64(r.GetScore()),
		})
	}
	SortHits(hits)
	return services.SearchResult{Success: true, Hits: hits}
}

// SortHits orders hits by score descending, breaking ties by document ID
// then chunk index so equal-scored results are stable across calls.
func SortHits(hits []services.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
}

func (v *vectorStoreImpl) DeleteByDocument(ctx context.Context, gameID, documentID string) services.DeleteResult {
	opCtx, cancel := context.WithTimeout(ctx, vectorOpTimeout)
	defer cancel()

	wait := true
	_, err := v.points.Delete(opCtx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatchKeyword("game_id", gameID),
						fieldMatchKeyword("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return services.DeleteResult{Error: fmt.Sprintf("failed to delete points for document %s: %v", documentID, err)}
	}
	return services.DeleteResult{Success: true}
}

func (v *vectorStoreImpl) Close() error {
	return v.conn.Close()
}

func fieldMatchKeyword(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
