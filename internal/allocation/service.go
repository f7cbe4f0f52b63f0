package allocation

import (
	"context"
	"errors"
	"strings"
	"time"

	"proptyos-backend/internal/pipeline"
)

var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrConflict marks a compare-and-swap miss: another session changed the
	// ledger between read and write. Callers retry explicitly if they care.
	ErrConflict = errors.New("allocation changed concurrently")
)

// ApprovalGate is the second sign-off gate owned by the offer/approval
// workflow. Cleared means either no request was submitted or one is approved.
type ApprovalGate interface {
	GateCleared(ctx context.Context, entryID string) (bool, error)
}

type Notifier interface {
	SendAllocationApproved(ctx context.Context, entry pipeline.Entry, email string) (string, error)
}

type ClientContacts interface {
	ClientContact(ctx context.Context, clientID string) (name, email string, err error)
}

// Service owns the allocation ledger: approval, payment progress, rebinding
// and revocation of allocated units.
type Service struct {
	entries  pipeline.Repository
	gate     ApprovalGate
	contacts ClientContacts
	notifier Notifier
	location *time.Location
}

func NewService(entries pipeline.Repository, gate ApprovalGate, contacts ClientContacts, notifier Notifier, location *time.Location) *Service {
	return &Service{
		entries:  entries,
		gate:     gate,
		contacts: contacts,
		notifier: notifier,
		location: location,
	}
}

func (s *Service) getAllocated(ctx context.Context, entryID string) (pipeline.Entry, error) {
	entry, err := s.entries.GetByID(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Stage != pipeline.StageAllocation || entry.Allocation == nil {
		return pipeline.Entry{}, pipeline.ErrInvalidTransition
	}
	return entry, nil
}

// Approve resolves the ledger gate. A second call fails with AlreadyResolved
// and leaves the first approval stamp untouched.
func (s *Service) Approve(ctx context.Context, entryID, approver string) (pipeline.Entry, error) {
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Allocation.Status != pipeline.AllocationPending {
		return pipeline.Entry{}, pipeline.ErrAlreadyResolved
	}

	if s.gate != nil {
		cleared, err := s.gate.GateCleared(ctx, entry.ID)
		if err != nil {
			return pipeline.Entry{}, err
		}
		if !cleared {
			return pipeline.Entry{}, pipeline.ErrApprovalRequired
		}
	}

	updated, err := s.entries.ApproveAllocation(ctx, entry.ID, strings.TrimSpace(approver), time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, pipeline.ErrAlreadyResolved
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// Reject resolves the ledger gate negatively. The unit reservation is kept;
// only revoke (or an earlier offer decline) releases a unit.
func (s *Service) Reject(ctx context.Context, entryID string) (pipeline.Entry, error) {
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Allocation.Status != pipeline.AllocationPending {
		return pipeline.Entry{}, pipeline.ErrAlreadyResolved
	}

	updated, err := s.entries.RejectAllocation(ctx, entry.ID, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, pipeline.ErrAlreadyResolved
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// RecordPayment applies an amount reported by the payment subsystem and moves
// the coarse progress status forward. Progress never regresses; the record
// locks once complete.
func (s *Service) RecordPayment(ctx context.Context, entryID string, amount int64) (pipeline.Entry, error) {
	if amount <= 0 {
		return pipeline.Entry{}, ErrInvalidAmount
	}
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	alloc := entry.Allocation
	if alloc.Status != pipeline.AllocationApproved {
		return pipeline.Entry{}, pipeline.ErrInvalidTransition
	}
	if alloc.Progress == pipeline.ProgressComplete {
		return pipeline.Entry{}, pipeline.ErrLedgerLocked
	}

	newPaid := alloc.AmountPaid + amount
	progress := pipeline.DeriveProgress(newPaid, entry.InitialPayment.Amount, entry.SaleAmount.Amount)
	if pipeline.ProgressAtLeast(alloc.Progress, progress) {
		progress = alloc.Progress
	}

	updated, err := s.entries.RecordPayment(ctx, entry.ID, alloc.AmountPaid, newPaid, progress, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, ErrConflict
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// Reallocate rebinds the entry to a new plot in the same project. Monetary
// fields are untouched; the ledger drops back to pending for re-approval.
func (s *Service) Reallocate(ctx context.Context, entryID, newPlot string) (pipeline.Entry, error) {
	newPlot = strings.TrimSpace(newPlot)
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Allocation.Progress == pipeline.ProgressComplete {
		return pipeline.Entry{}, pipeline.ErrLedgerLocked
	}
	if newPlot == entry.PlotNumber {
		return entry, nil
	}

	updated, err := s.entries.Reallocate(ctx, entry.ID, newPlot, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, ErrConflict
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// Revoke terminates the allocation outright and frees the unit.
func (s *Service) Revoke(ctx context.Context, entryID string) (pipeline.Entry, error) {
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Allocation.Progress == pipeline.ProgressComplete {
		return pipeline.Entry{}, pipeline.ErrLedgerLocked
	}

	updated, err := s.entries.Terminate(ctx, entry.ID, pipeline.StageAllocation, pipeline.StageRevoked, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, ErrConflict
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// MarkContractGenerated records the external document service's callback.
func (s *Service) MarkContractGenerated(ctx context.Context, entryID string) (pipeline.Entry, error) {
	entry, err := s.getAllocated(ctx, entryID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Allocation.Progress == pipeline.ProgressComplete {
		return pipeline.Entry{}, pipeline.ErrLedgerLocked
	}
	return s.entries.MarkContractGenerated(ctx, entry.ID, time.Now().In(s.location))
}

// NotifyApproved emails the client after an allocation approval. Failure is
// logged by the caller and never rolls back the approval.
func (s *Service) NotifyApproved(ctx context.Context, entry pipeline.Entry) error {
	if s.notifier == nil || s.contacts == nil {
		return nil
	}
	_, email, err := s.contacts.ClientContact(ctx, entry.ClientID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(email) == "" {
		return nil
	}
	_, err = s.notifier.SendAllocationApproved(ctx, entry, email)
	return err
}
