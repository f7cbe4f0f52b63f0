package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubDirectory resolves every id to a fixed display name, mirroring the
// directory service without its storage.
type stubDirectory struct {
	failClient bool
}

var errStubNotFound = errors.New("record not found")

func (d stubDirectory) ClientRef(ctx context.Context, id string) (Ref, error) {
	if d.failClient {
		return Ref{}, errStubNotFound
	}
	return Ref{ID: id, Name: "Adaeze Okafor"}, nil
}

func (d stubDirectory) ProjectRef(ctx context.Context, id string) (Ref, error) {
	return Ref{ID: id, Name: "Victoria Gardens"}, nil
}

func (d stubDirectory) MarketerRef(ctx context.Context, id string) (Ref, error) {
	return Ref{ID: id, Name: "Chidi Eze"}, nil
}

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, stubDirectory{}, time.UTC), repo
}

func leadRequest(plot string) CreateLeadRequest {
	return CreateLeadRequest{
		ClientID:       "client-1",
		ProjectID:      "project-1",
		PlotNumber:     plot,
		MarketerID:     "marketer-1",
		SaleAmount:     Money{Amount: 2_000_000, Currency: "NGN"},
		InitialPayment: Money{Amount: 500_000, Currency: "NGN"},
		Priority:       PriorityHigh,
	}
}

func TestCreateLeadSnapshotsNames(t *testing.T) {
	svc, _ := newTestService(t)

	entry, err := svc.CreateLead(context.Background(), leadRequest("A-01"))
	require.NoError(t, err)

	require.NotEmpty(t, entry.ID)
	require.Equal(t, StageLead, entry.Stage)
	require.Equal(t, "Adaeze Okafor", entry.ClientName)
	require.Equal(t, "Victoria Gardens", entry.ProjectName)
	require.Equal(t, "Chidi Eze", entry.MarketerName)
	require.True(t, entry.Active)
	require.Nil(t, entry.Offer)
	require.Nil(t, entry.Allocation)
}

func TestCreateLeadDefaultsCurrency(t *testing.T) {
	svc, _ := newTestService(t)

	req := leadRequest("A-02")
	req.SaleAmount.Currency = ""
	req.InitialPayment.Currency = "usd"

	entry, err := svc.CreateLead(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "NGN", entry.SaleAmount.Currency)
	require.Equal(t, "USD", entry.InitialPayment.Currency)
}

func TestCreateLeadInvalidPriority(t *testing.T) {
	svc, _ := newTestService(t)

	req := leadRequest("A-03")
	req.Priority = "urgent"

	_, err := svc.CreateLead(context.Background(), req)
	require.ErrorIs(t, err, ErrInvalidPriority)
}

func TestCreateLeadDirectoryMiss(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, stubDirectory{failClient: true}, time.UTC)

	_, err := svc.CreateLead(context.Background(), leadRequest("A-04"))
	require.ErrorIs(t, err, errStubNotFound)
}

func TestCreateLeadRejectsHeldUnit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateLead(ctx, leadRequest("B-01"))
	require.NoError(t, err)

	_, err = svc.CreateLead(ctx, leadRequest("B-01"))
	require.ErrorIs(t, err, ErrDuplicateUnit)

	// A different plot in the same project is fine.
	_, err = svc.CreateLead(ctx, leadRequest("B-02"))
	require.NoError(t, err)
}

func TestAdvanceStageFullProgression(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	entry, err := svc.CreateLead(ctx, leadRequest("C-01"))
	require.NoError(t, err)

	entry, err = svc.AdvanceStage(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StageInspection, entry.Stage)

	entry, err = svc.AdvanceStage(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StageOffer, entry.Stage)
	require.NotNil(t, entry.Offer)
	require.Equal(t, OfferPending, entry.Offer.Status)
	require.NotEmpty(t, entry.Offer.ID)

	entry, err = svc.AdvanceStage(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StageAllocation, entry.Stage)
	require.NotNil(t, entry.Allocation)
	require.Equal(t, AllocationPending, entry.Allocation.Status)
	require.Equal(t, ProgressPending, entry.Allocation.Progress)

	// Paid is gated on an approved, fully paid ledger.
	_, err = svc.AdvanceStage(ctx, entry.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	now := time.Now()
	_, err = repo.ApproveAllocation(ctx, entry.ID, "manager", now)
	require.NoError(t, err)
	_, err = repo.RecordPayment(ctx, entry.ID, 0, 2_000_000, ProgressComplete, now)
	require.NoError(t, err)

	entry, err = svc.AdvanceStage(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StagePaid, entry.Stage)
	require.False(t, entry.Active)

	// Terminal; no further moves.
	_, err = svc.AdvanceStage(ctx, entry.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceStageUnknownEntry(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AdvanceStage(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPaidReleasesUnit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	entry, err := svc.CreateLead(ctx, leadRequest("D-01"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		entry, err = svc.AdvanceStage(ctx, entry.ID)
		require.NoError(t, err)
	}
	now := time.Now()
	_, err = repo.ApproveAllocation(ctx, entry.ID, "manager", now)
	require.NoError(t, err)
	_, err = repo.RecordPayment(ctx, entry.ID, 0, 2_000_000, ProgressComplete, now)
	require.NoError(t, err)
	_, err = svc.AdvanceStage(ctx, entry.ID)
	require.NoError(t, err)

	// The unit is free for a new lead once the sale completed.
	_, err = svc.CreateLead(ctx, leadRequest("D-01"))
	require.NoError(t, err)
}

func TestListFiltersByStage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateLead(ctx, leadRequest("E-01"))
	require.NoError(t, err)
	_, err = svc.CreateLead(ctx, leadRequest("E-02"))
	require.NoError(t, err)

	_, err = svc.AdvanceStage(ctx, first.ID)
	require.NoError(t, err)

	leads, total, err := svc.List(ctx, ListFilter{Stage: StageLead}, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, leads, 1)
	require.Equal(t, "E-02", leads[0].PlotNumber)

	_, _, err = svc.List(ctx, ListFilter{Stage: "warehouse"}, 50, 0)
	require.ErrorIs(t, err, ErrInvalidStage)
}

func TestListSearchQuery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateLead(ctx, leadRequest("F-01"))
	require.NoError(t, err)

	items, total, err := svc.List(ctx, ListFilter{Query: "okafor"}, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	items, total, err = svc.List(ctx, ListFilter{Query: "no-such-client"}, 50, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, items)
}

func TestHistoryListsTerminalOnly(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	active, err := svc.CreateLead(ctx, leadRequest("G-01"))
	require.NoError(t, err)
	_ = active

	gone, err := svc.CreateLead(ctx, leadRequest("G-02"))
	require.NoError(t, err)
	_, err = repo.Terminate(ctx, gone.ID, StageLead, StageRejected, time.Now())
	require.NoError(t, err)

	items, total, err := svc.History(ctx, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	require.Equal(t, StageRejected, items[0].Stage)
}

func TestBoardGroupsByStage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	lead, err := svc.CreateLead(ctx, leadRequest("H-01"))
	require.NoError(t, err)
	inspected, err := svc.CreateLead(ctx, leadRequest("H-02"))
	require.NoError(t, err)
	_, err = svc.AdvanceStage(ctx, inspected.ID)
	require.NoError(t, err)

	board, err := svc.Board(ctx, "")
	require.NoError(t, err)
	require.Len(t, board, 5)
	require.Len(t, board[StageLead], 1)
	require.Equal(t, lead.ID, board[StageLead][0].ID)
	require.Len(t, board[StageInspection], 1)
	require.Empty(t, board[StageOffer])
}
