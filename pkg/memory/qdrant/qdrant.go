// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant implements memory.VectorStore over the Qdrant gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jllopis/praxis/pkg/memory"
)

// Store talks to one Qdrant instance. Collections are created per tenant
// by the retrieval layer.
type Store struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New connects to Qdrant at addr (host:port) without TLS.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Store{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// EnsureCollection implements memory.VectorStore. Existing collections are
// left untouched.
func (s *Store) EnsureCollection(ctx context.Context, name string, vectorSize uint64) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err == nil && exists.GetResult().GetExists() {
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
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

// Upsert implements memory.VectorStore.
func (s *Store) Upsert(ctx context.Context, collection string, points []memory.Point) error {
	converted := make([]*pb.PointStruct, len(points))
	for i, point := range points {
		converted[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: point.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: point.Vector},
				},
			},
			Payload: toQdrantPayload(point.Payload),
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         converted,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", collection, err)
	}
	return nil
}

// Search implements memory.VectorStore.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]memory.SearchResult, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		ScoreThreshold: &scoreThreshold,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search %s: %w", collection, err)
	}

	results := make([]memory.SearchResult, len(resp.Result))
	for i, hit := range resp.Result {
		results[i] = memory.SearchResult{
			ID:      pointID(hit.Id),
			Score:   hit.Score,
			Payload: fromQdrantPayload(hit.Payload),
		}
	}
	return results, nil
}

func pointID(id *pb.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toQdrantPayload(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			out[key] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		case bool:
			out[key] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: v}}
		case int:
			out[key] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(v)}}
		case int64:
			out[key] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: v}}
		case float64:
			out[key] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}}
		}
	}
	return out
}

func fromQdrantPayload(payload map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch kind := value.GetKind().(type) {
		case *pb.Value_StringValue:
			out[key] = kind.StringValue
		case *pb.Value_BoolValue:
			out[key] = kind.BoolValue
		case *pb.Value_IntegerValue:
			out[key] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			out[key] = kind.DoubleValue
		}
	}
	return out
}

var _ memory.VectorStore = (*Store)(nil)
