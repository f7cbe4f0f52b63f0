package offers

import "time"

// Approval request statuses. This is the optional second sign-off gate layered
// on top of the allocation ledger's own approve/reject; the two gates are
// deliberately distinct.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestDeclined = "declined"
)

var validRequestStatuses = map[string]struct{}{
	RequestPending:  {},
	RequestApproved: {},
	RequestDeclined: {},
}

func IsValidRequestStatus(value string) bool {
	_, ok := validRequestStatuses[value]
	return ok
}

type ApprovalRequest struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	EntryID     string     `bson:"entry_id" json:"entry_id"`
	SubmittedBy string     `bson:"submitted_by" json:"submitted_by"`
	Status      string     `bson:"status" json:"status"`
	Approver    string     `bson:"approver,omitempty" json:"approver,omitempty"`
	Reason      string     `bson:"reason,omitempty" json:"reason,omitempty"`
	SubmittedAt time.Time  `bson:"submitted_at" json:"submitted_at"`
	ResolvedAt  *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

type IssueOfferRequest struct {
	ExpiryDate time.Time `json:"expiry_date" validate:"required"`
}

type ResolveOfferRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=accepted declined"`
}

type SubmitApprovalRequest struct {
	SubmittedBy string `json:"submitted_by" validate:"required"`
}

type ApproveRequestRequest struct {
	Approver string `json:"approver" validate:"required"`
}

type DeclineRequestRequest struct {
	Reason string `json:"reason" validate:"required"`
}
