package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultCurrency = "NGN"

// Ref is a directory lookup result used to snapshot display names onto a new
// entry. Names are copied once; a later rename in the directory does not
// rewrite existing entries.
type Ref struct {
	ID   string
	Name string
}

type Directory interface {
	ClientRef(ctx context.Context, id string) (Ref, error)
	ProjectRef(ctx context.Context, id string) (Ref, error)
	MarketerRef(ctx context.Context, id string) (Ref, error)
}

// Service is the pipeline registry: it owns lead creation and the fixed
// lead -> inspection -> offer -> allocation -> paid progression.
type Service struct {
	repo     Repository
	dir      Directory
	location *time.Location
}

func NewService(repo Repository, dir Directory, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		location: location,
	}
}

func (s *Service) CreateLead(ctx context.Context, req CreateLeadRequest) (Entry, error) {
	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	if priority != "" && !IsValidPriority(priority) {
		return Entry{}, ErrInvalidPriority
	}

	client, err := s.dir.ClientRef(ctx, strings.TrimSpace(req.ClientID))
	if err != nil {
		return Entry{}, fmt.Errorf("resolve client: %w", err)
	}
	project, err := s.dir.ProjectRef(ctx, strings.TrimSpace(req.ProjectID))
	if err != nil {
		return Entry{}, fmt.Errorf("resolve project: %w", err)
	}
	marketer, err := s.dir.MarketerRef(ctx, strings.TrimSpace(req.MarketerID))
	if err != nil {
		return Entry{}, fmt.Errorf("resolve marketer: %w", err)
	}

	now := time.Now().In(s.location)
	entry := Entry{
		ID:             primitive.NewObjectID().Hex(),
		ClientID:       client.ID,
		ClientName:     client.Name,
		ProjectID:      project.ID,
		ProjectName:    project.Name,
		PlotNumber:     strings.TrimSpace(req.PlotNumber),
		MarketerID:     marketer.ID,
		MarketerName:   marketer.Name,
		Stage:          StageLead,
		Priority:       priority,
		Notes:          strings.TrimSpace(req.Notes),
		SaleAmount:     normalizeMoney(req.SaleAmount),
		InitialPayment: normalizeMoney(req.InitialPayment),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AdvanceStage moves the entry one step forward. Entering offer embeds a
// pending offer record; entering allocation embeds a pending ledger record;
// entering paid requires an approved, fully paid allocation and releases the
// unit reservation.
func (s *Service) AdvanceStage(ctx context.Context, id string) (Entry, error) {
	entry, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return Entry{}, err
	}
	if IsTerminalStage(entry.Stage) {
		return Entry{}, ErrInvalidTransition
	}
	next, ok := NextStage(entry.Stage)
	if !ok {
		return Entry{}, ErrInvalidTransition
	}

	now := time.Now().In(s.location)
	var offer *Offer
	var alloc *Allocation
	switch next {
	case StageOffer:
		offer = &Offer{
			ID:       primitive.NewObjectID().Hex(),
			Status:   OfferPending,
			IssuedAt: now,
		}
	case StageAllocation:
		alloc = &Allocation{
			Status:   AllocationPending,
			Progress: ProgressPending,
		}
	case StagePaid:
		if entry.Allocation == nil ||
			entry.Allocation.Status != AllocationApproved ||
			entry.Allocation.Progress != ProgressComplete {
			return Entry{}, ErrInvalidTransition
		}
	}

	updated, err := s.repo.AdvanceStage(ctx, entry.ID, entry.Stage, next, offer, alloc, now)
	if err != nil {
		return Entry{}, s.reclassify(ctx, entry.ID, err, ErrInvalidTransition)
	}
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Entry, error) {
	return s.repo.GetByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Entry, int64, error) {
	filter.Stage = strings.ToLower(strings.TrimSpace(filter.Stage))
	filter.Query = strings.TrimSpace(filter.Query)
	if filter.Stage != "" && !IsValidStage(filter.Stage) {
		return nil, 0, ErrInvalidStage
	}

	items, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// History lists terminal entries (paid, rejected, revoked), newest first.
func (s *Service) History(ctx context.Context, limit, offset int64) ([]Entry, int64, error) {
	return s.List(ctx, ListFilter{Terminal: true}, limit, offset)
}

// Board returns the active entries grouped per pipeline stage for the
// board-style view.
func (s *Service) Board(ctx context.Context, query string) (map[string][]Entry, error) {
	board := make(map[string][]Entry, len(stageOrder))
	for _, stage := range stageOrder {
		items, err := s.repo.List(ctx, ListFilter{Stage: stage, Query: query}, 200, 0)
		if err != nil {
			return nil, err
		}
		board[stage] = items
	}
	return board, nil
}

// reclassify distinguishes a missing entry from a precondition miss after a
// conditional update matched nothing.
func (s *Service) reclassify(ctx context.Context, id string, err, fallback error) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, getErr := s.repo.GetByID(ctx, id); errors.Is(getErr, ErrNotFound) {
		return ErrNotFound
	}
	return fallback
}

func normalizeMoney(m Money) Money {
	if m.Currency == "" {
		m.Currency = DefaultCurrency
	}
	return Money{Amount: m.Amount, Currency: strings.ToUpper(m.Currency)}
}
