package offers

import (
	"context"
	"testing"
	"time"

	"proptyos-backend/internal/pipeline"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *pipeline.MemoryRepository, *MemoryRequestRepository) {
	t.Helper()
	entries := pipeline.NewMemoryRepository()
	requests := NewMemoryRequestRepository()
	svc := NewService(entries, requests, nil, nil, time.UTC)
	return svc, entries, requests
}

func seedOfferEntry(t *testing.T, entries *pipeline.MemoryRepository, id, offerID string) pipeline.Entry {
	t.Helper()
	now := time.Now()
	entry := pipeline.Entry{
		ID:          id,
		ClientID:    "client-1",
		ClientName:  "Adaeze Okafor",
		ProjectID:   "project-1",
		ProjectName: "Victoria Gardens",
		PlotNumber:  "A-" + id,
		Stage:       pipeline.StageOffer,
		Active:      true,
		Offer: &pipeline.Offer{
			ID:       offerID,
			Status:   pipeline.OfferPending,
			IssuedAt: now,
		},
		SaleAmount:     pipeline.Money{Amount: 2_000_000, Currency: "NGN"},
		InitialPayment: pipeline.Money{Amount: 500_000, Currency: "NGN"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, entries.Insert(context.Background(), entry))
	return entry
}

func seedAllocationEntry(t *testing.T, entries *pipeline.MemoryRepository, id string) pipeline.Entry {
	t.Helper()
	now := time.Now()
	entry := pipeline.Entry{
		ID:         id,
		ClientID:   "client-1",
		ProjectID:  "project-1",
		PlotNumber: "B-" + id,
		Stage:      pipeline.StageAllocation,
		Active:     true,
		Allocation: &pipeline.Allocation{
			Status:   pipeline.AllocationPending,
			Progress: pipeline.ProgressPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, entries.Insert(context.Background(), entry))
	return entry
}

func TestIssueOfferStampsExpiry(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedOfferEntry(t, entries, "e1", "offer-1")

	expiry := time.Now().Add(14 * 24 * time.Hour)
	entry, err := svc.IssueOffer(ctx, "e1", expiry)
	require.NoError(t, err)
	require.NotNil(t, entry.Offer.ExpiryDate)
	require.WithinDuration(t, expiry, *entry.Offer.ExpiryDate, time.Second)
	require.Equal(t, pipeline.OfferPending, entry.Offer.Status)
}

func TestIssueOfferWrongStage(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedAllocationEntry(t, entries, "e1")

	_, err := svc.IssueOffer(ctx, "e1", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestResolveOfferAccepted(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedOfferEntry(t, entries, "e1", "offer-1")

	entry, err := svc.ResolveOffer(ctx, "offer-1", pipeline.OfferAccepted)
	require.NoError(t, err)
	require.Equal(t, pipeline.StageAllocation, entry.Stage)
	require.Equal(t, pipeline.OfferAccepted, entry.Offer.Status)
	require.NotNil(t, entry.Offer.ResolvedAt)
	require.NotNil(t, entry.Allocation)
	require.Equal(t, pipeline.AllocationPending, entry.Allocation.Status)
	require.True(t, entry.Active)

	// The offer is spent; a second resolution has nothing to act on.
	_, err = svc.ResolveOffer(ctx, "offer-1", pipeline.OfferDeclined)
	require.ErrorIs(t, err, pipeline.ErrAlreadyResolved)
}

func TestResolveOfferDeclinedFreesUnit(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seeded := seedOfferEntry(t, entries, "e1", "offer-1")

	entry, err := svc.ResolveOffer(ctx, "offer-1", pipeline.OfferDeclined)
	require.NoError(t, err)
	require.Equal(t, pipeline.StageRejected, entry.Stage)
	require.False(t, entry.Active)
	require.Nil(t, entry.Allocation)

	// A new lead can claim the released unit.
	fresh := seeded
	fresh.ID = "e2"
	fresh.Stage = pipeline.StageLead
	fresh.Offer = nil
	require.NoError(t, entries.Insert(ctx, fresh))
}

func TestResolveOfferInvalidOutcome(t *testing.T) {
	svc, entries, _ := newTestService(t)
	seedOfferEntry(t, entries, "e1", "offer-1")

	_, err := svc.ResolveOffer(context.Background(), "offer-1", "withdrawn")
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestResolveOfferUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ResolveOffer(context.Background(), "missing", pipeline.OfferAccepted)
	require.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestMarkLetterGenerated(t *testing.T) {
	svc, entries, _ := newTestService(t)
	seedOfferEntry(t, entries, "e1", "offer-1")

	entry, err := svc.MarkLetterGenerated(context.Background(), "e1")
	require.NoError(t, err)
	require.True(t, entry.Offer.LetterGenerated)
}

func TestSubmitForApproval(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedAllocationEntry(t, entries, "e1")

	req, err := svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.NoError(t, err)
	require.Equal(t, RequestPending, req.Status)
	require.Equal(t, "e1", req.EntryID)
	require.Equal(t, "sales-lead", req.SubmittedBy)

	// One pending request per entry.
	_, err = svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.ErrorIs(t, err, ErrPendingExists)

	// After a decline, resubmission is allowed.
	_, err = svc.Decline(ctx, req.ID, "insufficient deposit")
	require.NoError(t, err)
	_, err = svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.NoError(t, err)
}

func TestSubmitForApprovalWrongStage(t *testing.T) {
	svc, entries, _ := newTestService(t)
	seedOfferEntry(t, entries, "e1", "offer-1")

	_, err := svc.SubmitForApproval(context.Background(), "e1", "sales-lead")
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestApproveRequest(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedAllocationEntry(t, entries, "e1")

	req, err := svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.NoError(t, err)

	resolved, err := svc.Approve(ctx, req.ID, "director")
	require.NoError(t, err)
	require.Equal(t, RequestApproved, resolved.Status)
	require.Equal(t, "director", resolved.Approver)
	require.NotNil(t, resolved.ResolvedAt)

	// Already resolved; the first stamp stands.
	_, err = svc.Approve(ctx, req.ID, "someone-else")
	require.ErrorIs(t, err, pipeline.ErrAlreadyResolved)
}

func TestApproveUnknownRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Approve(context.Background(), "missing", "director")
	require.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestGateCleared(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedAllocationEntry(t, entries, "e1")

	// No request submitted: the gate is open.
	cleared, err := svc.GateCleared(ctx, "e1")
	require.NoError(t, err)
	require.True(t, cleared)

	req, err := svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.NoError(t, err)

	cleared, err = svc.GateCleared(ctx, "e1")
	require.NoError(t, err)
	require.False(t, cleared)

	_, err = svc.Approve(ctx, req.ID, "director")
	require.NoError(t, err)

	cleared, err = svc.GateCleared(ctx, "e1")
	require.NoError(t, err)
	require.True(t, cleared)
}

func TestListRequests(t *testing.T) {
	svc, entries, _ := newTestService(t)
	ctx := context.Background()
	seedAllocationEntry(t, entries, "e1")
	seedAllocationEntry(t, entries, "e2")

	first, err := svc.SubmitForApproval(ctx, "e1", "sales-lead")
	require.NoError(t, err)
	_, err = svc.SubmitForApproval(ctx, "e2", "sales-lead")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, first.ID, "director")
	require.NoError(t, err)

	pending, total, err := svc.ListRequests(ctx, RequestPending, 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, pending, 1)
	require.Equal(t, "e2", pending[0].EntryID)

	all, total, err := svc.ListRequests(ctx, "", 50, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, all, 2)

	_, _, err = svc.ListRequests(ctx, "escalated", 50, 0)
	require.ErrorIs(t, err, ErrInvalidStatus)
}
