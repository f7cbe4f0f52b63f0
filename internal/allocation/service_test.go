package allocation

import (
	"context"
	"testing"
	"time"

	"proptyos-backend/internal/pipeline"

	"github.com/stretchr/testify/require"
)

type stubGate struct {
	cleared bool
}

func (g stubGate) GateCleared(ctx context.Context, entryID string) (bool, error) {
	return g.cleared, nil
}

func newTestService(t *testing.T, cleared bool) (*Service, *pipeline.MemoryRepository) {
	t.Helper()
	entries := pipeline.NewMemoryRepository()
	svc := NewService(entries, stubGate{cleared: cleared}, nil, nil, time.UTC)
	return svc, entries
}

func seedEntry(t *testing.T, entries *pipeline.MemoryRepository, id, plot string, alloc *pipeline.Allocation) pipeline.Entry {
	t.Helper()
	now := time.Now()
	entry := pipeline.Entry{
		ID:             id,
		ClientID:       "client-1",
		ClientName:     "Adaeze Okafor",
		ProjectID:      "project-1",
		PlotNumber:     plot,
		Stage:          pipeline.StageAllocation,
		Active:         true,
		Allocation:     alloc,
		SaleAmount:     pipeline.Money{Amount: 2_000_000, Currency: "NGN"},
		InitialPayment: pipeline.Money{Amount: 500_000, Currency: "NGN"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, entries.Insert(context.Background(), entry))
	return entry
}

func pendingAlloc() *pipeline.Allocation {
	return &pipeline.Allocation{
		Status:   pipeline.AllocationPending,
		Progress: pipeline.ProgressPending,
	}
}

func approvedAlloc(paid int64, progress string) *pipeline.Allocation {
	return &pipeline.Allocation{
		Status:     pipeline.AllocationApproved,
		Progress:   progress,
		AmountPaid: paid,
		ApprovedBy: "manager",
	}
}

func TestApprove(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", pendingAlloc())

	entry, err := svc.Approve(ctx, "e1", "manager")
	require.NoError(t, err)
	require.Equal(t, pipeline.AllocationApproved, entry.Allocation.Status)
	require.Equal(t, "manager", entry.Allocation.ApprovedBy)
	require.NotNil(t, entry.Allocation.ApprovedDate)

	// The first stamp stands.
	_, err = svc.Approve(ctx, "e1", "someone-else")
	require.ErrorIs(t, err, pipeline.ErrAlreadyResolved)
}

func TestApproveBlockedByGate(t *testing.T) {
	svc, entries := newTestService(t, false)
	seedEntry(t, entries, "e1", "A-01", pendingAlloc())

	_, err := svc.Approve(context.Background(), "e1", "manager")
	require.ErrorIs(t, err, pipeline.ErrApprovalRequired)
}

func TestApproveWrongStage(t *testing.T) {
	svc, entries := newTestService(t, true)
	now := time.Now()
	require.NoError(t, entries.Insert(context.Background(), pipeline.Entry{
		ID: "e1", ProjectID: "project-1", PlotNumber: "A-01",
		Stage: pipeline.StageLead, Active: true, CreatedAt: now, UpdatedAt: now,
	}))

	_, err := svc.Approve(context.Background(), "e1", "manager")
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestReject(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", pendingAlloc())

	entry, err := svc.Reject(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, pipeline.AllocationRejected, entry.Allocation.Status)
	// Rejection keeps the unit reserved; the entry stays in allocation.
	require.Equal(t, pipeline.StageAllocation, entry.Stage)
	require.True(t, entry.Active)

	_, err = svc.Reject(ctx, "e1")
	require.ErrorIs(t, err, pipeline.ErrAlreadyResolved)
}

func TestRecordPaymentProgression(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(0, pipeline.ProgressPending))

	entry, err := svc.RecordPayment(ctx, "e1", 100_000)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), entry.Allocation.AmountPaid)
	require.Equal(t, pipeline.ProgressInitial, entry.Allocation.Progress)

	entry, err = svc.RecordPayment(ctx, "e1", 400_000)
	require.NoError(t, err)
	require.Equal(t, int64(500_000), entry.Allocation.AmountPaid)
	require.Equal(t, pipeline.ProgressPartial, entry.Allocation.Progress)

	entry, err = svc.RecordPayment(ctx, "e1", 1_500_000)
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), entry.Allocation.AmountPaid)
	require.Equal(t, pipeline.ProgressComplete, entry.Allocation.Progress)

	// Complete locks the ledger.
	_, err = svc.RecordPayment(ctx, "e1", 1)
	require.ErrorIs(t, err, pipeline.ErrLedgerLocked)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(0, pipeline.ProgressPending))
	seedEntry(t, entries, "e2", "A-02", pendingAlloc())

	_, err := svc.RecordPayment(ctx, "e1", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RecordPayment(ctx, "e1", -5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Payments only land on an approved ledger.
	_, err = svc.RecordPayment(ctx, "e2", 100_000)
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestRecordPaymentProgressNeverRegresses(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	// Progress was already pushed to partial out of band; a tiny payment must
	// not drop it back to initial.
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(10_000, pipeline.ProgressPartial))

	entry, err := svc.RecordPayment(ctx, "e1", 1_000)
	require.NoError(t, err)
	require.Equal(t, int64(11_000), entry.Allocation.AmountPaid)
	require.Equal(t, pipeline.ProgressPartial, entry.Allocation.Progress)
}

func TestReallocate(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(500_000, pipeline.ProgressPartial))
	seedEntry(t, entries, "e2", "A-02", pendingAlloc())

	entry, err := svc.Reallocate(ctx, "e1", "A-03")
	require.NoError(t, err)
	require.Equal(t, "A-03", entry.PlotNumber)
	// Rebinding resets the approval gate, payments stay.
	require.Equal(t, pipeline.AllocationPending, entry.Allocation.Status)
	require.Empty(t, entry.Allocation.ApprovedBy)
	require.Equal(t, int64(500_000), entry.Allocation.AmountPaid)

	// The old plot is free again.
	entry, err = svc.Reallocate(ctx, "e2", "A-01")
	require.NoError(t, err)
	require.Equal(t, "A-01", entry.PlotNumber)

	// A held plot conflicts.
	_, err = svc.Reallocate(ctx, "e2", "A-03")
	require.ErrorIs(t, err, pipeline.ErrUnitConflict)
}

func TestReallocateSamePlotNoop(t *testing.T) {
	svc, entries := newTestService(t, true)
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(0, pipeline.ProgressPending))

	entry, err := svc.Reallocate(context.Background(), "e1", "A-01")
	require.NoError(t, err)
	require.Equal(t, "A-01", entry.PlotNumber)
	require.Equal(t, pipeline.AllocationApproved, entry.Allocation.Status)
}

func TestReallocateLockedWhenComplete(t *testing.T) {
	svc, entries := newTestService(t, true)
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(2_000_000, pipeline.ProgressComplete))

	_, err := svc.Reallocate(context.Background(), "e1", "A-02")
	require.ErrorIs(t, err, pipeline.ErrLedgerLocked)
}

func TestRevoke(t *testing.T) {
	svc, entries := newTestService(t, true)
	ctx := context.Background()
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(500_000, pipeline.ProgressPartial))

	entry, err := svc.Revoke(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, pipeline.StageRevoked, entry.Stage)
	require.False(t, entry.Active)

	// The unit is free for a new entry.
	seedEntry(t, entries, "e2", "A-01", pendingAlloc())

	_, err = svc.Revoke(ctx, "e1")
	require.ErrorIs(t, err, pipeline.ErrInvalidTransition)
}

func TestRevokeLockedWhenComplete(t *testing.T) {
	svc, entries := newTestService(t, true)
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(2_000_000, pipeline.ProgressComplete))

	_, err := svc.Revoke(context.Background(), "e1")
	require.ErrorIs(t, err, pipeline.ErrLedgerLocked)
}

func TestMarkContractGenerated(t *testing.T) {
	svc, entries := newTestService(t, true)
	seedEntry(t, entries, "e1", "A-01", approvedAlloc(0, pipeline.ProgressPending))

	entry, err := svc.MarkContractGenerated(context.Background(), "e1")
	require.NoError(t, err)
	require.True(t, entry.Allocation.ContractGenerated)
}
