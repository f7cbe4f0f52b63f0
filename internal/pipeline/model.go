package pipeline

import (
	"strings"
	"time"
)

// Stage values in pipeline order. An entry moves forward one stage at a time;
// the only sideways moves are into the terminal rejected/revoked states.
const (
	StageLead       = "lead"
	StageInspection = "inspection"
	StageOffer      = "offer"
	StageAllocation = "allocation"
	StagePaid       = "paid"

	StageRejected = "rejected"
	StageRevoked  = "revoked"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferDeclined = "declined"
)

const (
	AllocationPending  = "pending"
	AllocationApproved = "approved"
	AllocationRejected = "rejected"
)

const (
	ProgressPending  = "pending"
	ProgressInitial  = "initial"
	ProgressPartial  = "partial"
	ProgressComplete = "complete"
)

var stageOrder = []string{StageLead, StageInspection, StageOffer, StageAllocation, StagePaid}

var validStages = map[string]struct{}{
	StageLead:       {},
	StageInspection: {},
	StageOffer:      {},
	StageAllocation: {},
	StagePaid:       {},
	StageRejected:   {},
	StageRevoked:    {},
}

var validPriorities = map[string]struct{}{
	PriorityHigh:   {},
	PriorityMedium: {},
	PriorityLow:    {},
}

var progressRank = map[string]int{
	ProgressPending:  0,
	ProgressInitial:  1,
	ProgressPartial:  2,
	ProgressComplete: 3,
}

func IsValidStage(value string) bool {
	_, ok := validStages[value]
	return ok
}

func IsValidPriority(value string) bool {
	_, ok := validPriorities[value]
	return ok
}

// IsTerminalStage reports whether no further transition may leave the stage.
func IsTerminalStage(value string) bool {
	return value == StagePaid || value == StageRejected || value == StageRevoked
}

// NextStage returns the stage following the given one in the fixed sequence.
// The second return is false when the stage is terminal or unknown.
func NextStage(value string) (string, bool) {
	for i, stage := range stageOrder {
		if stage == value && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// ProgressAtLeast reports whether a is at or past b in the payment sequence.
func ProgressAtLeast(a, b string) bool {
	return progressRank[a] >= progressRank[b]
}

// DeriveProgress maps a cumulative paid amount onto the coarse payment status.
// Thresholds: any payment reaches initial, the agreed initial payment reaches
// partial, the full sale amount reaches complete.
func DeriveProgress(amountPaid, initialPayment, saleAmount int64) string {
	switch {
	case saleAmount > 0 && amountPaid >= saleAmount:
		return ProgressComplete
	case initialPayment > 0 && amountPaid >= initialPayment:
		return ProgressPartial
	case amountPaid > 0:
		return ProgressInitial
	default:
		return ProgressPending
	}
}

// Money is an amount in minor units tagged with an ISO currency code.
type Money struct {
	Amount   int64  `bson:"amount" json:"amount" validate:"gte=0"`
	Currency string `bson:"currency" json:"currency" validate:"omitempty,iso4217"`
}

// Offer is the negotiation record embedded in an entry once it reaches the
// offer stage. Expiry is informational; nothing in the system enforces it.
type Offer struct {
	ID              string     `bson:"id" json:"id"`
	Status          string     `bson:"status" json:"status"`
	ExpiryDate      *time.Time `bson:"expiry_date,omitempty" json:"expiry_date,omitempty"`
	LetterGenerated bool       `bson:"letter_generated" json:"letter_generated"`
	IssuedAt        time.Time  `bson:"issued_at" json:"issued_at"`
	ResolvedAt      *time.Time `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// Lapsed reports whether the offer's expiry date has passed while still
// pending. Display-only; no state transition hangs off this.
func (o *Offer) Lapsed(now time.Time) bool {
	return o != nil && o.Status == OfferPending && o.ExpiryDate != nil && now.After(*o.ExpiryDate)
}

// Allocation is the ledger record embedded in an entry once it reaches the
// allocation stage.
type Allocation struct {
	Status            string     `bson:"status" json:"status"`
	Progress          string     `bson:"progress" json:"progress"`
	AmountPaid        int64      `bson:"amount_paid" json:"amount_paid"`
	ApprovedBy        string     `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedDate      *time.Time `bson:"approved_date,omitempty" json:"approved_date,omitempty"`
	ContractGenerated bool       `bson:"contract_generated" json:"contract_generated"`
}

// Entry is the root aggregate: one prospective sale tracked from lead to paid
// allocation. Client/project/marketer names are display snapshots taken from
// the directory at creation time and are not re-synced on rename.
type Entry struct {
	ID             string      `bson:"_id,omitempty" json:"id"`
	ClientID       string      `bson:"client_id" json:"client_id"`
	ClientName     string      `bson:"client_name" json:"client_name"`
	ProjectID      string      `bson:"project_id" json:"project_id"`
	ProjectName    string      `bson:"project_name" json:"project_name"`
	PlotNumber     string      `bson:"plot_number" json:"plot_number"`
	MarketerID     string      `bson:"marketer_id" json:"marketer_id"`
	MarketerName   string      `bson:"marketer_name" json:"marketer_name"`
	Stage          string      `bson:"stage" json:"stage"`
	Priority       string      `bson:"priority,omitempty" json:"priority,omitempty"`
	Notes          string      `bson:"notes,omitempty" json:"notes,omitempty"`
	SaleAmount     Money       `bson:"sale_amount" json:"sale_amount"`
	InitialPayment Money       `bson:"initial_payment" json:"initial_payment"`
	Active         bool        `bson:"active" json:"active"`
	Offer          *Offer      `bson:"offer,omitempty" json:"offer,omitempty"`
	Allocation     *Allocation `bson:"allocation,omitempty" json:"allocation,omitempty"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `bson:"updated_at" json:"updated_at"`
}

// MatchesQuery applies the board search: a case-insensitive substring check
// over client name, plot number and marketer name.
func (e Entry) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.ClientName), q) ||
		strings.Contains(strings.ToLower(e.PlotNumber), q) ||
		strings.Contains(strings.ToLower(e.MarketerName), q)
}

type CreateLeadRequest struct {
	ClientID       string `json:"client_id" validate:"required"`
	ProjectID      string `json:"project_id" validate:"required"`
	PlotNumber     string `json:"plot_number" validate:"required,plot"`
	MarketerID     string `json:"marketer_id" validate:"required"`
	SaleAmount     Money  `json:"sale_amount"`
	InitialPayment Money  `json:"initial_payment"`
	Priority       string `json:"priority" validate:"omitempty,oneof=high medium low"`
	Notes          string `json:"notes"`
}

type ListFilter struct {
	Stage    string
	Query    string
	Terminal bool
}
