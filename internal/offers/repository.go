package offers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"proptyos-backend/internal/pipeline"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RequestRepository stores approval requests. Resolve is conditional on the
// request still being pending; a miss surfaces as pipeline.ErrNotFound.
type RequestRepository interface {
	Insert(ctx context.Context, req ApprovalRequest) error
	GetByID(ctx context.Context, id string) (ApprovalRequest, error)
	List(ctx context.Context, status string, limit, offset int64) ([]ApprovalRequest, error)
	Count(ctx context.Context, status string) (int64, error)
	ListForEntry(ctx context.Context, entryID string) ([]ApprovalRequest, error)
	Resolve(ctx context.Context, id, status, approver, reason string, now time.Time) (ApprovalRequest, error)
}

type MongoRequestRepository struct {
	col *mongo.Collection
}

func NewMongoRequestRepository(col *mongo.Collection) *MongoRequestRepository {
	return &MongoRequestRepository{col: col}
}

func (r *MongoRequestRepository) Insert(ctx context.Context, req ApprovalRequest) error {
	_, err := r.col.InsertOne(ctx, req)
	return err
}

func (r *MongoRequestRepository) GetByID(ctx context.Context, id string) (ApprovalRequest, error) {
	var req ApprovalRequest
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&req); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ApprovalRequest{}, pipeline.ErrNotFound
		}
		return ApprovalRequest{}, err
	}
	return req, nil
}

func (r *MongoRequestRepository) List(ctx context.Context, status string, limit, offset int64) ([]ApprovalRequest, error) {
	query := bson.M{}
	if status != "" {
		query["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "submitted_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]ApprovalRequest, 0)
	for cursor.Next(ctx) {
		var req ApprovalRequest
		if err := cursor.Decode(&req); err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRequestRepository) Count(ctx context.Context, status string) (int64, error) {
	query := bson.M{}
	if status != "" {
		query["status"] = status
	}
	return r.col.CountDocuments(ctx, query)
}

func (r *MongoRequestRepository) ListForEntry(ctx context.Context, entryID string) ([]ApprovalRequest, error) {
	cursor, err := r.col.Find(ctx, bson.M{"entry_id": entryID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]ApprovalRequest, 0)
	for cursor.Next(ctx) {
		var req ApprovalRequest
		if err := cursor.Decode(&req); err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRequestRepository) Resolve(ctx context.Context, id, status, approver, reason string, now time.Time) (ApprovalRequest, error) {
	set := bson.M{
		"status":      status,
		"resolved_at": now,
	}
	if approver != "" {
		set["approver"] = approver
	}
	if reason != "" {
		set["reason"] = reason
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated ApprovalRequest
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": RequestPending},
		bson.M{"$set": set},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ApprovalRequest{}, pipeline.ErrNotFound
		}
		return ApprovalRequest{}, err
	}
	return updated, nil
}

// MemoryRequestRepository backs STORE_DRIVER=memory and the test suites.
type MemoryRequestRepository struct {
	mu       sync.RWMutex
	requests map[string]ApprovalRequest
}

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{requests: make(map[string]ApprovalRequest)}
}

func (r *MemoryRequestRepository) Insert(ctx context.Context, req ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *MemoryRequestRepository) GetByID(ctx context.Context, id string) (ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return ApprovalRequest{}, pipeline.ErrNotFound
	}
	return req, nil
}

func (r *MemoryRequestRepository) matching(status string) []ApprovalRequest {
	items := make([]ApprovalRequest, 0)
	for _, req := range r.requests {
		if status != "" && req.Status != status {
			continue
		}
		items = append(items, req)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SubmittedAt.After(items[j].SubmittedAt)
	})
	return items
}

func (r *MemoryRequestRepository) List(ctx context.Context, status string, limit, offset int64) ([]ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.matching(status)
	if offset >= int64(len(items)) {
		return []ApprovalRequest{}, nil
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryRequestRepository) Count(ctx context.Context, status string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(status))), nil
}

func (r *MemoryRequestRepository) ListForEntry(ctx context.Context, entryID string) ([]ApprovalRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]ApprovalRequest, 0)
	for _, req := range r.requests {
		if req.EntryID == entryID {
			items = append(items, req)
		}
	}
	return items, nil
}

func (r *MemoryRequestRepository) Resolve(ctx context.Context, id, status, approver, reason string, now time.Time) (ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != RequestPending {
		return ApprovalRequest{}, pipeline.ErrNotFound
	}
	resolved := now
	req.Status = status
	req.ResolvedAt = &resolved
	if approver != "" {
		req.Approver = approver
	}
	if reason != "" {
		req.Reason = reason
	}
	r.requests[id] = req
	return req, nil
}
