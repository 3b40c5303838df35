// Package order defines the order aggregate and its status state machine.
package order

import (
	"time"

	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// Status is the lifecycle state of an order. Transitions are
// one-directional; nothing moves backwards out of paid, complete or cleared.
type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting-payment"
	StatusPaid            Status = "paid"
	StatusComplete        Status = "complete"
	StatusFailed          Status = "failed"
	StatusCleared         Status = "cleared"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusAwaitingPayment, StatusPaid, StatusFailed, StatusCleared},
	StatusAwaitingPayment: {StatusPaid, StatusFailed},
	StatusPaid:            {StatusComplete},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the status marks the order as the user's live cart.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAwaitingPayment
}

// ModSelection records one modifier chosen on a line item.
type ModSelection struct {
	ModID string     `json:"modId"`
	Name  string     `json:"name"`
	Price shop.Money `json:"price"`
}

// LineItem is a snapshot of a menu item at the moment it was added to the
// cart, plus the chosen modifiers and quantity. It never re-joins the live
// menu.
type LineItem struct {
	ID       string         `json:"id"`
	ItemID   string         `json:"itemId"`
	Name     string         `json:"name"`
	Price    shop.Money     `json:"price"`
	Mods     []ModSelection `json:"mods,omitempty"`
	Quantity int            `json:"quantity"`
}

// Subtotal is the line total including modifiers, in minor units.
func (li LineItem) Subtotal() int64 {
	unit := li.Price.Amount
	for _, m := range li.Mods {
		unit += m.Price.Amount
	}
	return unit * int64(li.Quantity)
}

// Tip is an optional gratuity added on top of the item total.
type Tip struct {
	Amount shop.Money `json:"amount"`
}

// DistributionKind distinguishes farmer payouts from reward-pool credits.
type DistributionKind string

const (
	DistributionFarmer DistributionKind = "farmer"
	DistributionReward DistributionKind = "reward"
)

// Distribution is a derived, post-payment record of funds attributed to a
// farmer or reward pool for one paid order. Never mutated after creation.
type Distribution struct {
	Kind      DistributionKind `json:"kind"`
	FarmerID  string           `json:"farmerId,omitempty"`
	Recipient string           `json:"recipient,omitempty"`
	Amount    shop.Money       `json:"amount"`
}

// ExternalOrderInfo records the POS provider's order id once a paid order
// has been forwarded upstream.
type ExternalOrderInfo struct {
	Provider  shop.SourceType `json:"provider"`
	OrderID   string          `json:"orderId"`
	Forwarded time.Time       `json:"forwardedAt"`
}

// Order is the cart-then-receipt aggregate. Once paid it is immutable apart
// from appended distributions and external order info.
type Order struct {
	ID              string             `json:"id"`
	ShopID          string             `json:"shopId"`
	UserID          string             `json:"userId"`
	Status          Status             `json:"status"`
	Items           []LineItem         `json:"orderItems"`
	Tip             *Tip               `json:"tip,omitempty"`
	Currency        string             `json:"currency"`
	TransactionHash string             `json:"transactionHash,omitempty"`
	External        *ExternalOrderInfo `json:"externalOrderInfo,omitempty"`
	Distributions   []Distribution     `json:"additionalDistributions,omitempty"`
	Version         int64              `json:"-"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// Total is the order's quoted total in minor units: line subtotals plus tip.
func (o *Order) Total() int64 {
	var total int64
	for _, li := range o.Items {
		total += li.Subtotal()
	}
	if o.Tip != nil {
		total += o.Tip.Amount.Amount
	}
	return total
}
