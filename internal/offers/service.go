package offers

import (
	"context"
	"errors"
	"strings"
	"time"

	"proptyos-backend/internal/pipeline"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrPendingExists guards the one-pending-request-per-entry rule.
	ErrPendingExists = errors.New("entry already has a pending approval request")
	ErrInvalidStatus = errors.New("invalid request status")
)

type Notifier interface {
	SendOfferResolved(ctx context.Context, entry pipeline.Entry, email, outcome string) (string, error)
}

// ClientContacts resolves the client email for notification. The core stores
// only the client id; contact details stay in the directory.
type ClientContacts interface {
	ClientContact(ctx context.Context, clientID string) (name, email string, err error)
}

// Service runs the pre-allocation negotiation: offers issued against entries
// in the offer stage, and the optional higher-authority approval requests
// that gate ledger approval.
type Service struct {
	entries  pipeline.Repository
	requests RequestRepository
	contacts ClientContacts
	notifier Notifier
	location *time.Location
}

func NewService(entries pipeline.Repository, requests RequestRepository, contacts ClientContacts, notifier Notifier, location *time.Location) *Service {
	return &Service{
		entries:  entries,
		requests: requests,
		contacts: contacts,
		notifier: notifier,
		location: location,
	}
}

// IssueOffer stamps the expiry on the pending offer of an entry in the offer
// stage. Expiry is informational; a lapsed offer is flagged on reads but
// never auto-declined.
func (s *Service) IssueOffer(ctx context.Context, entryID string, expiry time.Time) (pipeline.Entry, error) {
	entry, err := s.entries.GetByID(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Stage != pipeline.StageOffer || entry.Offer == nil {
		return pipeline.Entry{}, pipeline.ErrInvalidTransition
	}
	if entry.Offer.Status != pipeline.OfferPending {
		return pipeline.Entry{}, pipeline.ErrAlreadyResolved
	}

	updated, err := s.entries.SetOfferExpiry(ctx, entry.ID, expiry, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			return pipeline.Entry{}, pipeline.ErrAlreadyResolved
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// ResolveOffer finalizes a pending offer. Accepted advances the entry into
// allocation with a fresh pending ledger record; declined ends the entry and
// frees the unit for a new lead.
func (s *Service) ResolveOffer(ctx context.Context, offerID, outcome string) (pipeline.Entry, error) {
	offerID = strings.TrimSpace(offerID)
	entry, err := s.entries.GetByOfferID(ctx, offerID)
	if err != nil {
		return pipeline.Entry{}, err
	}
	if entry.Offer == nil || entry.Offer.Status != pipeline.OfferPending {
		return pipeline.Entry{}, pipeline.ErrAlreadyResolved
	}

	now := time.Now().In(s.location)
	var updated pipeline.Entry
	switch outcome {
	case pipeline.OfferAccepted:
		alloc := &pipeline.Allocation{
			Status:   pipeline.AllocationPending,
			Progress: pipeline.ProgressPending,
		}
		updated, err = s.entries.AcceptOffer(ctx, offerID, alloc, now)
	case pipeline.OfferDeclined:
		updated, err = s.entries.DeclineOffer(ctx, offerID, now)
	default:
		return pipeline.Entry{}, pipeline.ErrInvalidTransition
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			// The entry was there a moment ago; another session resolved it.
			return pipeline.Entry{}, pipeline.ErrAlreadyResolved
		}
		return pipeline.Entry{}, err
	}
	return updated, nil
}

// MarkLetterGenerated records that the external document service produced the
// offer letter. Flag only; the document itself lives elsewhere.
func (s *Service) MarkLetterGenerated(ctx context.Context, entryID string) (pipeline.Entry, error) {
	return s.entries.MarkOfferLetterGenerated(ctx, strings.TrimSpace(entryID), time.Now().In(s.location))
}

// SubmitForApproval opens the second gate: a higher-authority sign-off
// request for an allocation still pending in the ledger.
func (s *Service) SubmitForApproval(ctx context.Context, entryID, submittedBy string) (ApprovalRequest, error) {
	entry, err := s.entries.GetByID(ctx, strings.TrimSpace(entryID))
	if err != nil {
		return ApprovalRequest{}, err
	}
	if entry.Stage != pipeline.StageAllocation || entry.Allocation == nil {
		return ApprovalRequest{}, pipeline.ErrInvalidTransition
	}
	if entry.Allocation.Status != pipeline.AllocationPending {
		return ApprovalRequest{}, pipeline.ErrAlreadyResolved
	}

	existing, err := s.requests.ListForEntry(ctx, entry.ID)
	if err != nil {
		return ApprovalRequest{}, err
	}
	for _, req := range existing {
		if req.Status == RequestPending {
			return ApprovalRequest{}, ErrPendingExists
		}
	}

	req := ApprovalRequest{
		ID:          primitive.NewObjectID().Hex(),
		EntryID:     entry.ID,
		SubmittedBy: strings.TrimSpace(submittedBy),
		Status:      RequestPending,
		SubmittedAt: time.Now().In(s.location),
	}
	if err := s.requests.Insert(ctx, req); err != nil {
		return ApprovalRequest{}, err
	}
	return req, nil
}

func (s *Service) Approve(ctx context.Context, requestID, approver string) (ApprovalRequest, error) {
	return s.resolveRequest(ctx, requestID, RequestApproved, strings.TrimSpace(approver), "")
}

func (s *Service) Decline(ctx context.Context, requestID, reason string) (ApprovalRequest, error) {
	return s.resolveRequest(ctx, requestID, RequestDeclined, "", strings.TrimSpace(reason))
}

func (s *Service) resolveRequest(ctx context.Context, requestID, status, approver, reason string) (ApprovalRequest, error) {
	requestID = strings.TrimSpace(requestID)
	updated, err := s.requests.Resolve(ctx, requestID, status, approver, reason, time.Now().In(s.location))
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			if _, getErr := s.requests.GetByID(ctx, requestID); getErr == nil {
				return ApprovalRequest{}, pipeline.ErrAlreadyResolved
			}
			return ApprovalRequest{}, pipeline.ErrNotFound
		}
		return ApprovalRequest{}, err
	}
	return updated, nil
}

func (s *Service) ListRequests(ctx context.Context, status string, limit, offset int64) ([]ApprovalRequest, int64, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !IsValidRequestStatus(status) {
		return nil, 0, ErrInvalidStatus
	}
	items, err := s.requests.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.requests.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GateCleared reports whether the second gate allows ledger approval for the
// entry: no request was ever submitted, or at least one was approved.
func (s *Service) GateCleared(ctx context.Context, entryID string) (bool, error) {
	requests, err := s.requests.ListForEntry(ctx, entryID)
	if err != nil {
		return false, err
	}
	if len(requests) == 0 {
		return true, nil
	}
	for _, req := range requests {
		if req.Status == RequestApproved {
			return true, nil
		}
	}
	return false, nil
}

// NotifyOfferResolved emails the client about the offer outcome. Failures are
// the caller's to log; they never roll back the resolution.
func (s *Service) NotifyOfferResolved(ctx context.Context, entry pipeline.Entry, outcome string) error {
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
	_, err = s.notifier.SendOfferResolved(ctx, entry, email, outcome)
	return err
}
