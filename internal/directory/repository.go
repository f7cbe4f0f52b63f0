package directory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Insert(ctx context.Context, kind string, rec Record) error
	Get(ctx context.Context, kind, id string) (Record, error)
	List(ctx context.Context, kind string, limit, offset int64) ([]Record, error)
	Count(ctx context.Context, kind string) (int64, error)
	Update(ctx context.Context, kind, id string, rec Record, now time.Time) (Record, error)
}

type MongoRepository struct {
	cols map[string]*mongo.Collection
}

func NewMongoRepository(clients, projects, marketers *mongo.Collection) *MongoRepository {
	return &MongoRepository{cols: map[string]*mongo.Collection{
		KindClient:   clients,
		KindProject:  projects,
		KindMarketer: marketers,
	}}
}

func (r *MongoRepository) col(kind string) (*mongo.Collection, error) {
	col, ok := r.cols[kind]
	if !ok {
		return nil, ErrInvalidKind
	}
	return col, nil
}

func (r *MongoRepository) Insert(ctx context.Context, kind string, rec Record) error {
	col, err := r.col(kind)
	if err != nil {
		return err
	}
	_, err = col.InsertOne(ctx, rec)
	return err
}

func (r *MongoRepository) Get(ctx context.Context, kind, id string) (Record, error) {
	col, err := r.col(kind)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *MongoRepository) List(ctx context.Context, kind string, limit, offset int64) ([]Record, error) {
	col, err := r.col(kind)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Record, 0)
	for cursor.Next(ctx) {
		var rec Record
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, kind string) (int64, error) {
	col, err := r.col(kind)
	if err != nil {
		return 0, err
	}
	return col.CountDocuments(ctx, bson.M{})
}

func (r *MongoRepository) Update(ctx context.Context, kind, id string, rec Record, now time.Time) (Record, error) {
	col, err := r.col(kind)
	if err != nil {
		return Record{}, err
	}
	update := bson.M{"$set": bson.M{
		"name":       rec.Name,
		"email":      rec.Email,
		"phone":      rec.Phone,
		"location":   rec.Location,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Record
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return updated, nil
}

// MemoryRepository backs STORE_DRIVER=memory and the test suites.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[string]map[string]Record{
		KindClient:   {},
		KindProject:  {},
		KindMarketer: {},
	}}
}

func (r *MemoryRepository) kind(kind string) (map[string]Record, error) {
	recs, ok := r.records[kind]
	if !ok {
		return nil, ErrInvalidKind
	}
	return recs, nil
}

func (r *MemoryRepository) Insert(ctx context.Context, kind string, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs, err := r.kind(kind)
	if err != nil {
		return err
	}
	recs[rec.ID] = rec
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, kind, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs, err := r.kind(kind)
	if err != nil {
		return Record{}, err
	}
	rec, ok := recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) List(ctx context.Context, kind string, limit, offset int64) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs, err := r.kind(kind)
	if err != nil {
		return nil, err
	}
	items := make([]Record, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	if offset >= int64(len(items)) {
		return []Record{}, nil
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryRepository) Count(ctx context.Context, kind string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs, err := r.kind(kind)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

func (r *MemoryRepository) Update(ctx context.Context, kind, id string, rec Record, now time.Time) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs, err := r.kind(kind)
	if err != nil {
		return Record{}, err
	}
	existing, ok := recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	existing.Name = rec.Name
	existing.Email = rec.Email
	existing.Phone = rec.Phone
	existing.Location = rec.Location
	existing.UpdatedAt = now
	recs[id] = existing
	return existing, nil
}
