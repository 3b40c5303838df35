package order

import (
	"testing"

	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAwaitingPayment},
		{StatusPending, StatusPaid},
		{StatusPending, StatusFailed},
		{StatusPending, StatusCleared},
		{StatusAwaitingPayment, StatusPaid},
		{StatusAwaitingPayment, StatusFailed},
		{StatusPaid, StatusComplete},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPaid, StatusPending},
		{StatusPaid, StatusFailed},
		{StatusComplete, StatusPaid},
		{StatusFailed, StatusPending},
		{StatusCleared, StatusPending},
		{StatusAwaitingPayment, StatusCleared},
		{StatusAwaitingPayment, StatusPending},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestStatusActive(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAwaitingPayment} {
		if !s.Active() {
			t.Errorf("expected %s to be active", s)
		}
	}
	for _, s := range []Status{StatusPaid, StatusComplete, StatusFailed, StatusCleared} {
		if s.Active() {
			t.Errorf("expected %s to not be active", s)
		}
	}
}

func TestLineItemSubtotal(t *testing.T) {
	li := LineItem{
		Price:    shop.Money{Amount: 450, Currency: "USD"},
		Quantity: 2,
		Mods: []ModSelection{
			{ModID: "oat", Price: shop.Money{Amount: 75, Currency: "USD"}},
			{ModID: "shot", Price: shop.Money{Amount: 100, Currency: "USD"}},
		},
	}
	if got := li.Subtotal(); got != 1250 {
		t.Fatalf("expected subtotal 1250, got %d", got)
	}
}

func TestOrderTotalIncludesTip(t *testing.T) {
	o := Order{
		Items: []LineItem{
			{Price: shop.Money{Amount: 500}, Quantity: 1},
			{Price: shop.Money{Amount: 300}, Quantity: 3},
		},
		Tip: &Tip{Amount: shop.Money{Amount: 200, Currency: "USD"}},
	}
	if got := o.Total(); got != 1600 {
		t.Fatalf("expected total 1600, got %d", got)
	}

	o.Tip = nil
	if got := o.Total(); got != 1400 {
		t.Fatalf("expected total 1400 without tip, got %d", got)
	}
}
