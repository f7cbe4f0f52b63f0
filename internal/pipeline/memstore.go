package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository used when the service runs
// without Mongo (STORE_DRIVER=memory) and by the test suites. It enforces the
// same preconditions the Mongo filters do, under a single mutex.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]Entry)}
}

func cloneEntry(e Entry) Entry {
	if e.Offer != nil {
		offer := *e.Offer
		e.Offer = &offer
	}
	if e.Allocation != nil {
		alloc := *e.Allocation
		e.Allocation = &alloc
	}
	return e
}

func (r *MemoryRepository) unitHeld(projectID, plot, excludeID string) bool {
	for _, e := range r.entries {
		if e.ID == excludeID {
			continue
		}
		if e.Active && e.ProjectID == projectID && e.PlotNumber == plot {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Insert(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unitHeld(entry.ProjectID, entry.PlotNumber, entry.ID) {
		return ErrDuplicateUnit
	}
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (r *MemoryRepository) GetByOfferID(ctx context.Context, offerID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Offer != nil && e.Offer.ID == offerID {
			return cloneEntry(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func (r *MemoryRepository) matching(filter ListFilter) []Entry {
	items := make([]Entry, 0)
	for _, e := range r.entries {
		if filter.Terminal && !IsTerminalStage(e.Stage) {
			continue
		}
		if !filter.Terminal && filter.Stage != "" && e.Stage != filter.Stage {
			continue
		}
		if !e.MatchesQuery(filter.Query) {
			continue
		}
		items = append(items, cloneEntry(e))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items
}

func (r *MemoryRepository) List(ctx context.Context, filter ListFilter, limit, offset int64) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.matching(filter)
	if offset >= int64(len(items)) {
		return []Entry{}, nil
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(filter))), nil
}

// update applies fn to the entry when it exists and cond holds, mirroring a
// conditional FindOneAndUpdate. A precondition miss returns ErrNotFound.
func (r *MemoryRepository) update(id string, cond func(Entry) bool, fn func(*Entry)) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || !cond(entry) {
		return Entry{}, ErrNotFound
	}
	entry = cloneEntry(entry)
	fn(&entry)
	r.entries[id] = cloneEntry(entry)
	return entry, nil
}

func (r *MemoryRepository) idForOffer(offerID string) (string, bool) {
	for _, e := range r.entries {
		if e.Offer != nil && e.Offer.ID == offerID {
			return e.ID, true
		}
	}
	return "", false
}

func (r *MemoryRepository) AdvanceStage(ctx context.Context, id, from, to string, offer *Offer, alloc *Allocation, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool { return e.Stage == from && e.Active },
		func(e *Entry) {
			e.Stage = to
			if offer != nil {
				o := *offer
				e.Offer = &o
			}
			if alloc != nil {
				a := *alloc
				e.Allocation = &a
			}
			if to == StagePaid {
				e.Active = false
			}
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) Terminate(ctx context.Context, id, from, to string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool { return e.Stage == from && e.Active },
		func(e *Entry) {
			e.Stage = to
			e.Active = false
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) SetOfferExpiry(ctx context.Context, id string, expiry, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageOffer && e.Offer != nil && e.Offer.Status == OfferPending
		},
		func(e *Entry) {
			exp := expiry
			e.Offer.ExpiryDate = &exp
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) AcceptOffer(ctx context.Context, offerID string, alloc *Allocation, now time.Time) (Entry, error) {
	id, ok := r.offerEntry(offerID)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageOffer && e.Offer != nil && e.Offer.Status == OfferPending
		},
		func(e *Entry) {
			resolved := now
			e.Offer.Status = OfferAccepted
			e.Offer.ResolvedAt = &resolved
			e.Stage = StageAllocation
			a := *alloc
			e.Allocation = &a
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) DeclineOffer(ctx context.Context, offerID string, now time.Time) (Entry, error) {
	id, ok := r.offerEntry(offerID)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageOffer && e.Offer != nil && e.Offer.Status == OfferPending
		},
		func(e *Entry) {
			resolved := now
			e.Offer.Status = OfferDeclined
			e.Offer.ResolvedAt = &resolved
			e.Stage = StageRejected
			e.Active = false
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) offerEntry(offerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idForOffer(offerID)
}

func (r *MemoryRepository) MarkOfferLetterGenerated(ctx context.Context, id string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool { return e.Offer != nil },
		func(e *Entry) {
			e.Offer.LetterGenerated = true
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) ApproveAllocation(ctx context.Context, id, approver string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageAllocation && e.Allocation != nil && e.Allocation.Status == AllocationPending
		},
		func(e *Entry) {
			approved := now
			e.Allocation.Status = AllocationApproved
			e.Allocation.ApprovedBy = approver
			e.Allocation.ApprovedDate = &approved
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) RejectAllocation(ctx context.Context, id string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageAllocation && e.Allocation != nil && e.Allocation.Status == AllocationPending
		},
		func(e *Entry) {
			e.Allocation.Status = AllocationRejected
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) RecordPayment(ctx context.Context, id string, prevPaid, newPaid int64, progress string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool {
			return e.Stage == StageAllocation && e.Allocation != nil &&
				e.Allocation.Status == AllocationApproved && e.Allocation.AmountPaid == prevPaid
		},
		func(e *Entry) {
			e.Allocation.AmountPaid = newPaid
			e.Allocation.Progress = progress
			e.UpdatedAt = now
		})
}

func (r *MemoryRepository) Reallocate(ctx context.Context, id, newPlot string, now time.Time) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.Stage != StageAllocation || !entry.Active {
		return Entry{}, ErrNotFound
	}
	if r.unitHeld(entry.ProjectID, newPlot, id) {
		return Entry{}, ErrUnitConflict
	}
	entry = cloneEntry(entry)
	entry.PlotNumber = newPlot
	entry.Allocation.Status = AllocationPending
	entry.Allocation.ApprovedBy = ""
	entry.Allocation.ApprovedDate = nil
	entry.UpdatedAt = now
	r.entries[id] = cloneEntry(entry)
	return entry, nil
}

func (r *MemoryRepository) MarkContractGenerated(ctx context.Context, id string, now time.Time) (Entry, error) {
	return r.update(id,
		func(e Entry) bool { return e.Allocation != nil },
		func(e *Entry) {
			e.Allocation.ContractGenerated = true
			e.UpdatedAt = now
		})
}
