package domain

import "time"

// Bounty mirrors one escrow bounty managed by the on-chain contract.
// The contract is authoritative for funds and status; this record is the
// metadata view served to the frontend.
type Bounty struct {
	ID          string `json:"id"`
	BountyID    *int64 `json:"bounty_id"` // on-chain id, nil until reconciled
	Title       string `json:"title"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"` // microalgos
	Status      Status `json:"status"`

	ClientAddress     string  `json:"client_address"`
	FreelancerAddress *string `json:"freelancer_address"`

	// One transaction-id breadcrumb per lifecycle action.
	CreateTxID  string  `json:"create_txid"`
	AcceptTxID  *string `json:"accept_txid"`
	SubmitTxID  *string `json:"submit_txid"`
	ApproveTxID *string `json:"approve_txid"`
	RejectTxID  *string `json:"reject_txid"`
	ClaimTxID   *string `json:"claim_txid"`
	RefundTxID  *string `json:"refund_txid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status is the bounty lifecycle status.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusClaimed   Status = "claimed"
	StatusRejected  Status = "rejected"
	StatusRefunded  Status = "refunded"
)

// Statuses lists every valid status, in lifecycle order.
var Statuses = []Status{
	StatusOpen,
	StatusAccepted,
	StatusSubmitted,
	StatusApproved,
	StatusClaimed,
	StatusRejected,
	StatusRefunded,
}

// transitions encodes the contract's state machine. Reject refunds inside the
// same app call, but the record only becomes "refunded" once the inner payment
// is confirmed by reconciliation.
var transitions = map[Status][]Status{
	StatusOpen:      {StatusAccepted},
	StatusAccepted:  {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusClaimed},
	StatusRejected:  {StatusRefunded},
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusRank returns the position of s in the lifecycle, used to ensure a
// sweep never moves a record backwards. Rejected/refunded rank alongside
// approved/claimed since they terminate the same fork.
func StatusRank(s Status) int {
	switch s {
	case StatusOpen:
		return 0
	case StatusAccepted:
		return 1
	case StatusSubmitted:
		return 2
	case StatusApproved, StatusRejected:
		return 3
	case StatusClaimed, StatusRefunded:
		return 4
	default:
		return -1
	}
}

// StatusFromContract maps the contract's packed status byte to a Status.
// The contract has no distinct "refunded" code: reject moves the funds in the
// same call, so on-chain REJECTED means the refund already settled.
func StatusFromContract(code byte) (Status, bool) {
	switch code {
	case 0:
		return StatusOpen, true
	case 1:
		return StatusAccepted, true
	case 2:
		return StatusSubmitted, true
	case 3:
		return StatusApproved, true
	case 4:
		return StatusClaimed, true
	case 5:
		return StatusRejected, true
	default:
		return "", false
	}
}
