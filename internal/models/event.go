package models

import "time"

// EventKind names a state-changing marketplace command
type EventKind string

const (
	EventSellerRegistered   EventKind = "seller_registered"
	EventSellerActivity     EventKind = "seller_activity"
	EventSellerWithdrawal   EventKind = "seller_withdrawal"
	EventProductAdded       EventKind = "product_added"
	EventProductUpdated     EventKind = "product_updated"
	EventProductToggled     EventKind = "product_toggled"
	EventOrderPlaced        EventKind = "order_placed"
	EventOrderShipped       EventKind = "order_shipped"
	EventOrderCompleted     EventKind = "order_completed"
	EventReviewSubmitted    EventKind = "review_submitted"
	EventCommissionRate     EventKind = "commission_rate"
	EventPlatformWithdrawal EventKind = "platform_withdrawal"

	// EventPayoutReverted undoes a journaled withdrawal whose transfer failed.
	EventPayoutReverted EventKind = "payout_reverted"
)

// Event records one committed command with its inputs and the identifiers it
// was assigned, so the ledger can be rebuilt by replaying events in Seq order.
type Event struct {
	Seq         uint64    `json:"seq"`
	Kind        EventKind `json:"kind"`
	Caller      AccountID `json:"caller"`
	At          time.Time `json:"at"`
	Target      AccountID `json:"target,omitempty"`
	ProductID   uint64    `json:"product_id,omitempty"`
	OrderID     uint64    `json:"order_id,omitempty"`
	Quantity    uint64    `json:"quantity,omitempty"`
	Amount      uint64    `json:"amount,omitempty"`
	Price       uint64    `json:"price,omitempty"`
	Stock       uint64    `json:"stock,omitempty"`
	Category    Category  `json:"category,omitempty"`
	Rating      uint8     `json:"rating,omitempty"`
	Rate        uint8     `json:"rate,omitempty"`
	Active      bool      `json:"active,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	Reverted    EventKind `json:"reverted,omitempty"`
}
