// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant implements memory.VectorStore on top of Qdrant's gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jllopis/declagent/pkg/memory"
)

// OriginalIDKey is the payload key holding the caller's point id when it is
// not a UUID and had to be mapped to one.
const OriginalIDKey = "_id"

// Store is a Qdrant-backed vector store.
type Store struct {
	conn        *grpc.ClientConn
	client      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
}

// New connects to Qdrant at addr (host:port of the gRPC endpoint).
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		client:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
	}, nil
}

// Ping runs the Qdrant health check.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant: health check: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// CreateCollection implements memory.VectorStore. Existing collections are
// left untouched.
func (s *Store) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return fmt.Errorf("qdrant: check collection %q: %w", name, err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", name, err)
	}
	return nil
}

// Upsert implements memory.VectorStore.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	qPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := toPayload(p.Payload)
		pointID := PointID(p.ID)
		if pointID != p.ID {
			payload[OriginalIDKey] = toValue(p.ID)
		}
		qPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         qPoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q: %w", collection, err)
	}
	return nil
}

// Search implements memory.VectorStore.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}
	resp, err := s.client.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %q: %w", collection, err)
	}

	results := make([]memory.SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := fromPayload(r.GetPayload())
		id := r.GetId().GetUuid()
		if id == "" {
			id = strconv.FormatUint(r.GetId().GetNum(), 10)
		}
		if original, ok := payload[OriginalIDKey].(string); ok {
			id = original
			delete(payload, OriginalIDKey)
		}
		results[i] = memory.SearchResult{
			ID:    id,
			Score: r.GetScore(),
			Point: memory.Point{ID: id, Payload: payload},
		}
	}
	return results, nil
}

// PointID maps an arbitrary id to a Qdrant UUID. UUIDs pass through;
// other ids map to a stable name-based UUID.
func PointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("declagent:"+id)).String()
}

func toPayload(m map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(m))
	for k, v := range m {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case []any:
		list := make([]*pb.Value, len(val))
		for i, item := range val {
			list[i] = toValue(item)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: list}}}
	case map[string]any:
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: toPayload(val)}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}

func fromPayload(m map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = fromValue(item)
		}
		return list
	case *pb.Value_StructValue:
		return fromPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

var _ memory.VectorStore = (*Store)(nil)
