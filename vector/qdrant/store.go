// Package qdrant implements vector.Store on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/minutes/vector"
	"github.com/qdrant/go-client/qdrant"
)

// ErrHostRequired is returned when no host is configured.
var ErrHostRequired = errors.New("qdrant host required")

// DefaultPort is the Qdrant gRPC port.
const DefaultPort = 6334

// Config holds connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger.With("component", "qdrant-store")
		}
		return nil
	}
}

// Store is a vector.Store backed by a qdrant.Client.
type Store struct {
	client *qdrant.Client
	logger *slog.Logger
}

var _ vector.Store = (*Store)(nil)

// New connects to the server described by cfg.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	s := &Store{
		client: client,
		logger: slog.Default().With("component", "qdrant-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			client.Close()
			return nil, err
		}
	}
	return s, nil
}

// InitializeCollection creates the collection unless it already exists.
func (s *Store) InitializeCollection(ctx context.Context, name string, dim int, cfg vector.CollectionConfig) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	if dim <= 0 {
		return vector.ErrInvalidDimension
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	params := &qdrant.VectorParams{
		Size:     uint64(dim),
		Distance: distance(cfg.Distance),
	}
	if cfg.OnDisk {
		params.OnDisk = qdrant.PtrOf(true)
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  qdrant.NewVectorsConfig(params),
	})
	if err != nil {
		if alreadyExists(err) {
			return nil
		}
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	s.logger.Info("created collection", "collection", name, "dimension", dim)
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (s *Store) Upsert(ctx context.Context, name string, points []vector.Point) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if p.ID == "" {
			return vector.ErrEmptyPointID
		}
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("convert payload of point %s: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), name, err)
	}
	return nil
}

// Search runs a dense query with an optional payload filter.
func (s *Store) Search(ctx context.Context, name string, req vector.SearchRequest) ([]vector.Result, error) {
	if name == "" {
		return nil, vector.ErrEmptyCollectionName
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	query := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if req.Filter != nil {
		query.Filter = toFilter(*req.Filter)
	}
	if req.ScoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(req.ScoreThreshold)
	}
	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	results := make([]vector.Result, 0, len(points))
	for _, p := range points {
		results = append(results, vector.Result{
			ID:      p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: fromValueMap(p.GetPayload()),
		})
	}
	return results, nil
}

// Delete removes points by id.
func (s *Store) Delete(ctx context.Context, name string, ids ...string) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("delete %d points from %s: %w", len(ids), name, err)
	}
	return nil
}

// DeleteByFilter removes every point matching filter.
func (s *Store) DeleteByFilter(ctx context.Context, name string, filter vector.Filter) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toFilter(filter)),
	})
	if err != nil {
		return fmt.Errorf("delete by filter from %s: %w", name, err)
	}
	return nil
}

// CreateIndex creates a payload index, ignoring "already exists" responses.
func (s *Store) CreateIndex(ctx context.Context, name, field string, fieldType vector.FieldType) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      field,
		FieldType:      fieldTypeOf(fieldType).Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		if alreadyExists(err) {
			s.logger.Debug("payload index already exists", "collection", name, "field", field)
			return nil
		}
		return fmt.Errorf("create index %s on %s: %w", field, name, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func distance(d vector.Distance) qdrant.Distance {
	if d == vector.DistanceDot {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

func fieldTypeOf(ft vector.FieldType) qdrant.FieldType {
	switch ft {
	case vector.FieldTypeInteger:
		return qdrant.FieldType_FieldTypeInteger
	case vector.FieldTypeFloat:
		return qdrant.FieldType_FieldTypeFloat
	default:
		return qdrant.FieldType_FieldTypeKeyword
	}
}

func alreadyExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func toFilter(f vector.Filter) *qdrant.Filter {
	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, m := range f.Must {
		switch v := m.Value.(type) {
		case string:
			must = append(must, qdrant.NewMatchKeyword(m.Key, v))
		case bool:
			must = append(must, qdrant.NewMatchBool(m.Key, v))
		case int:
			must = append(must, qdrant.NewMatchInt(m.Key, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(m.Key, v))
		default:
			must = append(must, qdrant.NewMatchKeyword(m.Key, fmt.Sprint(v)))
		}
	}
	return &qdrant.Filter{Must: must}
}

func fromValueMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			list = append(list, fromValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return fromValueMap(kind.StructValue.GetFields())
	}
	return nil
}
