package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"proptyos-backend/internal/cache"
	"proptyos-backend/internal/pipeline"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const lookupCacheTTL = 5 * time.Minute

// Service resolves client/project/marketer records, with a read-through cache
// in front of lookups. Pipeline entries snapshot names from here at creation;
// an update invalidates the cache but never rewrites existing snapshots.
type Service struct {
	repo     Repository
	cache    cache.Cache
	location *time.Location
}

func NewService(repo Repository, cacheStore cache.Cache, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		cache:    cacheStore,
		location: location,
	}
}

func (s *Service) Create(ctx context.Context, kind string, req CreateRecordRequest) (Record, error) {
	if !IsValidKind(kind) {
		return Record{}, ErrInvalidKind
	}
	now := time.Now().In(s.location)
	rec := Record{
		ID:        primitive.NewObjectID().Hex(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Location:  strings.TrimSpace(req.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, kind, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, kind, id string) (Record, error) {
	if !IsValidKind(kind) {
		return Record{}, ErrInvalidKind
	}
	id = strings.TrimSpace(id)

	key := cacheKey(kind, id)
	if s.cache != nil {
		if payload, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var rec Record
			if err := json.Unmarshal(payload, &rec); err == nil {
				return rec, nil
			}
		}
	}

	rec, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return Record{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(rec); err == nil {
			_ = s.cache.Set(ctx, key, payload, lookupCacheTTL)
		}
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, kind string, limit, offset int64) ([]Record, int64, error) {
	if !IsValidKind(kind) {
		return nil, 0, ErrInvalidKind
	}
	items, err := s.repo.List(ctx, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, kind)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Update(ctx context.Context, kind, id string, req UpdateRecordRequest) (Record, error) {
	if !IsValidKind(kind) {
		return Record{}, ErrInvalidKind
	}
	id = strings.TrimSpace(id)
	rec := Record{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		Location: strings.TrimSpace(req.Location),
	}
	updated, err := s.repo.Update(ctx, kind, id, rec, time.Now().In(s.location))
	if err != nil {
		return Record{}, err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, cacheKey(kind, id))
	}
	return updated, nil
}

// ClientRef, ProjectRef and MarketerRef implement the pipeline registry's
// directory port for name snapshots.
func (s *Service) ClientRef(ctx context.Context, id string) (pipeline.Ref, error) {
	return s.ref(ctx, KindClient, id)
}

func (s *Service) ProjectRef(ctx context.Context, id string) (pipeline.Ref, error) {
	return s.ref(ctx, KindProject, id)
}

func (s *Service) MarketerRef(ctx context.Context, id string) (pipeline.Ref, error) {
	return s.ref(ctx, KindMarketer, id)
}

func (s *Service) ref(ctx context.Context, kind, id string) (pipeline.Ref, error) {
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return pipeline.Ref{}, pipeline.ErrRefNotFound
		}
		return pipeline.Ref{}, err
	}
	return pipeline.Ref{ID: rec.ID, Name: rec.Name}, nil
}

// ClientContact implements the notification port of the offer and allocation
// services.
func (s *Service) ClientContact(ctx context.Context, clientID string) (string, string, error) {
	rec, err := s.Get(ctx, KindClient, clientID)
	if err != nil {
		return "", "", err
	}
	return rec.Name, rec.Email, nil
}

func cacheKey(kind, id string) string {
	return "directory:" + kind + ":" + id
}
