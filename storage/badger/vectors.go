// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/poiesic/minutes/vector"
)

const defaultSearchLimit = 10

type collectionInfo struct {
	Dimension int             `json:"dimension"`
	Distance  vector.Distance `json:"distance"`
}

type storedPoint struct {
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// VectorStore implements vector.Store on top of the Badger backend.
// Search is a brute-force scan of the collection, which is adequate for the
// few thousand chunks a single meeting produces. Cosine collections store
// normalized vectors so scoring is a dot product.
type VectorStore struct {
	backend *Backend
}

var _ vector.Store = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore sharing the given backend.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{backend: backend}
}

// InitializeCollection records the collection dimension. Existing collections are left alone.
func (s *VectorStore) InitializeCollection(ctx context.Context, name string, dim int, cfg vector.CollectionConfig) error {
	if name == "" {
		return vector.ErrEmptyCollectionName
	}
	if dim <= 0 {
		return vector.ErrInvalidDimension
	}
	if cfg.Distance == "" {
		cfg.Distance = vector.DistanceCosine
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		key := makeCollectionKey(name)
		if _, err := tx.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value, err := json.Marshal(collectionInfo{Dimension: dim, Distance: cfg.Distance})
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Upsert writes or overwrites points by id.
func (s *VectorStore) Upsert(ctx context.Context, name string, points []vector.Point) error {
	info, err := s.collection(name)
	if err != nil {
		return err
	}

	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, p := range points {
			if p.ID == "" {
				return vector.ErrEmptyPointID
			}
			if len(p.Vector) != info.Dimension {
				return fmt.Errorf("%w: point %s has %d, collection %s expects %d",
					vector.ErrDimensionMismatch, p.ID, len(p.Vector), name, info.Dimension)
			}
			vec := p.Vector
			if info.Distance == vector.DistanceCosine {
				vec = vector.Normalize(vec)
			}
			value, err := json.Marshal(storedPoint{Vector: vec, Payload: p.Payload})
			if err != nil {
				return err
			}
			if err := wb.Set(makePointKey(name, p.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search scores every point that passes the filter and returns the best matches.
func (s *VectorStore) Search(ctx context.Context, name string, req vector.SearchRequest) ([]vector.Result, error) {
	info, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != info.Dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %s expects %d",
			vector.ErrDimensionMismatch, len(req.Vector), name, info.Dimension)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query := req.Vector
	if info.Distance == vector.DistanceCosine {
		query = vector.Normalize(query)
	}

	var results []vector.Result
	err = s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePointKey(name, "")
		return scanPrefix(tx, prefix, false, func(key, val []byte) (bool, error) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			var p storedPoint
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			if req.Filter != nil && !req.Filter.Matches(p.Payload) {
				return true, nil
			}
			score := vector.Dot(query, p.Vector)
			if req.ScoreThreshold > 0 && score < req.ScoreThreshold {
				return true, nil
			}
			results = append(results, vector.Result{
				ID:      string(key[len(prefix):]),
				Score:   score,
				Payload: p.Payload,
			})
			return true, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b vector.Result) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes points by id.
func (s *VectorStore) Delete(ctx context.Context, name string, ids ...string) error {
	if _, err := s.collection(name); err != nil {
		return err
	}
	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, id := range ids {
			if err := wb.Delete(makePointKey(name, id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByFilter removes every point whose payload matches the filter.
func (s *VectorStore) DeleteByFilter(ctx context.Context, name string, filter vector.Filter) error {
	if _, err := s.collection(name); err != nil {
		return err
	}

	var ids []string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePointKey(name, "")
		return scanPrefix(tx, prefix, false, func(key, val []byte) (bool, error) {
			var p storedPoint
			if err := json.Unmarshal(val, &p); err != nil {
				return false, err
			}
			if filter.Matches(p.Payload) {
				ids = append(ids, string(key[len(prefix):]))
			}
			return true, nil
		})
	}, false)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.backend.logger.Debug("deleting points by filter", "collection", name, "count", len(ids))
	return s.Delete(ctx, name, ids...)
}

// CreateIndex records the field declaration. Filtering works on any field,
// so this only exists to satisfy callers that declare indexes up front.
func (s *VectorStore) CreateIndex(ctx context.Context, name, field string, fieldType vector.FieldType) error {
	if _, err := s.collection(name); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeIndexKey(name, field), []byte{byte(fieldType)}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Indexes lists the declared payload indexes of a collection.
func (s *VectorStore) Indexes(name string) (map[string]vector.FieldType, error) {
	indexes := make(map[string]vector.FieldType)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeIndexKey(name, "")
		return scanPrefix(tx, prefix, false, func(key, val []byte) (bool, error) {
			if len(val) == 1 {
				indexes[string(key[len(prefix):])] = vector.FieldType(val[0])
			}
			return true, nil
		})
	}, false)
	return indexes, err
}

// Close is a no-op; the backend is owned by the caller.
func (s *VectorStore) Close() error {
	return nil
}

func (s *VectorStore) collection(name string) (*collectionInfo, error) {
	var info collectionInfo
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCollectionKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
