// Package cart implements the order state machine and all cart mutations.
// Mutations on one order are serialized through a per-order lock, and the
// storage layer's optimistic version check backs that up across processes.
package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/metrics"
	"github.com/groundscore/commerce_layer/internal/services/distribution"
	"github.com/groundscore/commerce_layer/internal/services/payment"
	"github.com/groundscore/commerce_layer/internal/storage"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Confirmer verifies a claimed payment transaction before an order may be
// marked paid.
type Confirmer interface {
	Confirm(ctx context.Context, txHash string) (payment.Outcome, error)
}

// NewLine describes one item a buyer wants added to the cart. The engine
// snapshots the live menu item at add time.
type NewLine struct {
	ItemID   string   `json:"itemId"`
	Quantity int      `json:"quantity"`
	ModIDs   []string `json:"modIds,omitempty"`
}

// Service is the cart/order engine.
type Service struct {
	orders    storage.OrderStore
	shops     storage.ShopStore
	confirmer Confirmer
	calc      *distribution.Calculator
	locks     *keyedMutex
	log       *logger.Logger
}

// New constructs the engine.
func New(orders storage.OrderStore, shops storage.ShopStore, confirmer Confirmer, calc *distribution.Calculator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("cart")
	}
	if calc == nil {
		calc = distribution.NewCalculator()
	}
	return &Service{
		orders:    orders,
		shops:     shops,
		confirmer: confirmer,
		calc:      calc,
		locks:     newKeyedMutex(),
		log:       log,
	}
}

// GetOrder fetches an order by id.
func (s *Service) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return order.Order{}, apperr.BadRequest("invalid order id %q", orderID)
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFound("order %s not found", orderID)
	}
	return o, err
}

// GetActiveOrder returns the user's live cart, or nil when none exists. An
// empty shopID matches any shop.
func (s *Service) GetActiveOrder(ctx context.Context, userID, shopID string) (*order.Order, error) {
	if userID == "" {
		return nil, apperr.BadRequest("userId is required")
	}
	o, err := s.orders.GetActiveOrder(ctx, userID, shopID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// AddItems appends lines to the user's active order for the shop, creating
// a pending order when none exists. The creation path runs under a
// (user, shop) lock so two concurrent first-adds cannot both create carts.
func (s *Service) AddItems(ctx context.Context, userID, shopID string, lines []NewLine) (order.Order, error) {
	if userID == "" || shopID == "" {
		return order.Order{}, apperr.BadRequest("userId and shopId are required")
	}
	if len(lines) == 0 {
		return order.Order{}, apperr.BadRequest("no order items given")
	}

	sh, err := s.shops.GetShop(ctx, shopID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFound("shop %s not found", shopID)
	}
	if err != nil {
		return order.Order{}, err
	}

	snapshots, err := snapshotLines(&sh, lines)
	if err != nil {
		return order.Order{}, err
	}

	unlock := s.locks.lock("cart/" + userID + "/" + shopID)
	defer unlock()

	existing, err := s.orders.GetActiveOrder(ctx, userID, shopID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		created, err := s.orders.CreateOrder(ctx, order.Order{
			ShopID:   shopID,
			UserID:   userID,
			Status:   order.StatusPending,
			Items:    snapshots,
			Currency: orderCurrency(snapshots),
		})
		if errors.Is(err, storage.ErrActiveOrderExists) {
			// A concurrent replica inserted the cart first.
			return order.Order{}, apperr.Conflict("user %s already has an active order for shop %s", userID, shopID)
		}
		if err != nil {
			return order.Order{}, err
		}
		metrics.OrderCreated()
		s.log.WithField("order_id", created.ID).
			WithField("shop_id", shopID).
			Info("order created")
		return created, nil
	case err != nil:
		return order.Order{}, err
	}

	if existing.Status != order.StatusPending {
		return order.Order{}, apperr.Conflict("order %s is %s, expected pending", existing.ID, existing.Status)
	}
	existing.Items = append(existing.Items, snapshots...)
	return s.update(ctx, existing)
}

// RemoveItem deletes one line from a pending order.
func (s *Service) RemoveItem(ctx context.Context, orderID, lineItemID string) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusPending {
		return order.Order{}, apperr.Conflict("order %s is %s, expected pending", o.ID, o.Status)
	}

	kept := o.Items[:0:0]
	found := false
	for _, li := range o.Items {
		if li.ID == lineItemID {
			found = true
			continue
		}
		kept = append(kept, li)
	}
	if !found {
		return order.Order{}, apperr.NotFound("order item %s not found on order %s", lineItemID, orderID)
	}
	o.Items = kept
	return s.update(ctx, o)
}

// ClearItems empties all lines. The order stays pending.
func (s *Service) ClearItems(ctx context.Context, orderID string) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusPending {
		return order.Order{}, apperr.Conflict("order %s is %s, expected pending", o.ID, o.Status)
	}
	o.Items = nil
	o.Tip = nil
	return s.update(ctx, o)
}

// Delete transitions a pending order to cleared, dropping it as the user's
// active cart.
func (s *Service) Delete(ctx context.Context, orderID string) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	return s.transition(ctx, o, order.StatusCleared)
}

// SetTip sets the gratuity on a pending order.
func (s *Service) SetTip(ctx context.Context, orderID string, amount int64) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusPending {
		return order.Order{}, apperr.Conflict("order %s is %s, expected pending", o.ID, o.Status)
	}
	if amount < 0 {
		return order.Order{}, apperr.BadRequest("tip must not be negative")
	}
	if amount == 0 {
		o.Tip = nil
	} else {
		o.Tip = &order.Tip{Amount: shop.Money{Amount: amount, Currency: o.Currency}}
	}
	return s.update(ctx, o)
}

// BeginPayment moves a pending order to awaiting-payment. Called when the
// buyer requests an authorization payload; repeat calls are no-ops.
func (s *Service) BeginPayment(ctx context.Context, orderID string) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status == order.StatusAwaitingPayment {
		return o, nil
	}
	return s.transition(ctx, o, order.StatusAwaitingPayment)
}

// MarkPaid verifies the claimed transaction and transitions the order to
// paid, appending the computed distributions. Idempotent for a repeated
// call with the same successful hash; a different hash on a paid order is
// a conflict. An indeterminate confirmation leaves the order unpaid with
// the hash recorded so it can be rechecked.
func (s *Service) MarkPaid(ctx context.Context, orderID, txHash string) (order.Order, error) {
	if txHash == "" {
		return order.Order{}, apperr.BadRequest("transactionHash is required")
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}

	if o.Status == order.StatusPaid || o.Status == order.StatusComplete {
		if o.TransactionHash == txHash {
			return o, nil
		}
		return order.Order{}, apperr.Conflict("order %s already paid with a different transaction", o.ID)
	}
	if !o.Status.Active() {
		return order.Order{}, apperr.Conflict("order %s is %s and cannot be paid", o.ID, o.Status)
	}

	if s.confirmer == nil {
		return order.Order{}, apperr.ExternalService(nil, "payment confirmation is not configured")
	}

	outcome, confirmErr := s.confirmer.Confirm(ctx, txHash)
	switch outcome {
	case payment.OutcomeConfirmed:
		sh, err := s.shops.GetShop(ctx, o.ShopID)
		if err != nil {
			return order.Order{}, fmt.Errorf("load shop for distributions: %w", err)
		}
		dists, err := s.calc.ForOrder(&o, &sh)
		if err != nil {
			return order.Order{}, err
		}
		o.TransactionHash = txHash
		o.Distributions = dists
		paid, err := s.transition(ctx, o, order.StatusPaid)
		if err != nil {
			return order.Order{}, err
		}
		s.log.WithField("order_id", o.ID).
			WithField("tx_hash", txHash).
			Info("order paid")
		return paid, nil

	case payment.OutcomeReverted:
		o.TransactionHash = txHash
		if _, err := s.transition(ctx, o, order.StatusFailed); err != nil {
			return order.Order{}, err
		}
		return order.Order{}, apperr.BadRequest("transaction %s reverted on chain", txHash)

	default:
		// Record the hash so /orders/status can recheck later, but do not
		// advance the state machine.
		if o.TransactionHash != txHash {
			o.TransactionHash = txHash
			if _, err := s.update(ctx, o); err != nil {
				return order.Order{}, err
			}
		}
		if confirmErr != nil {
			return order.Order{}, apperr.ExternalService(confirmErr, "transaction %s not confirmed", txHash)
		}
		return order.Order{}, apperr.ExternalService(nil, "transaction %s not confirmed after retries", txHash)
	}
}

// RecheckPayment re-runs confirmation for an order whose earlier attempt
// was indeterminate.
func (s *Service) RecheckPayment(ctx context.Context, orderID string) (order.Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status == order.StatusPaid || o.Status == order.StatusComplete {
		return o, nil
	}
	if o.TransactionHash == "" {
		return order.Order{}, apperr.BadRequest("order %s has no recorded transaction", orderID)
	}
	return s.MarkPaid(ctx, orderID, o.TransactionHash)
}

// Complete marks a paid order complete once it has been handed to the POS.
func (s *Service) Complete(ctx context.Context, o order.Order) (order.Order, error) {
	unlock := s.locks.lock(o.ID)
	defer unlock()
	return s.transition(ctx, o, order.StatusComplete)
}

// SaveExternalInfo records the POS provider's order id on a paid order.
func (s *Service) SaveExternalInfo(ctx context.Context, orderID string, info order.ExternalOrderInfo) (order.Order, error) {
	unlock := s.locks.lock(orderID)
	defer unlock()

	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.Status != order.StatusPaid && o.Status != order.StatusComplete {
		return order.Order{}, apperr.Conflict("order %s is %s, cannot attach external info", o.ID, o.Status)
	}
	o.External = &info
	return s.update(ctx, o)
}

func (s *Service) transition(ctx context.Context, o order.Order, to order.Status) (order.Order, error) {
	if !order.CanTransition(o.Status, to) {
		return order.Order{}, apperr.Conflict("order %s cannot move from %s to %s", o.ID, o.Status, to)
	}
	o.Status = to
	updated, err := s.update(ctx, o)
	if err != nil {
		return order.Order{}, err
	}
	metrics.OrderTransition(string(to))
	return updated, nil
}

func (s *Service) update(ctx context.Context, o order.Order) (order.Order, error) {
	updated, err := s.orders.UpdateOrder(ctx, o)
	if errors.Is(err, storage.ErrVersionConflict) {
		return order.Order{}, apperr.Conflict("order %s was modified concurrently", o.ID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, apperr.NotFound("order %s not found", o.ID)
	}
	return updated, err
}

// snapshotLines resolves requested lines against the live menu and freezes
// them. Orders keep these snapshots even after the menu changes.
func snapshotLines(sh *shop.Shop, lines []NewLine) ([]order.LineItem, error) {
	result := make([]order.LineItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, apperr.BadRequest("quantity for item %s must be positive", line.ItemID)
		}
		item, ok := sh.FindItem(line.ItemID)
		if !ok {
			return nil, apperr.NotFound("item %s not on shop %s menu", line.ItemID, sh.ID)
		}
		if !item.Available {
			return nil, apperr.BadRequest("item %s is not available", item.Name)
		}

		mods := make([]order.ModSelection, 0, len(line.ModIDs))
		for _, modID := range line.ModIDs {
			mod, ok := findMod(item, modID)
			if !ok {
				return nil, apperr.BadRequest("mod %s not offered on item %s", modID, item.Name)
			}
			mods = append(mods, order.ModSelection{ModID: mod.ID, Name: mod.Name, Price: mod.Price})
		}

		result = append(result, order.LineItem{
			ID:       uuid.NewString(),
			ItemID:   item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Mods:     mods,
			Quantity: line.Quantity,
		})
	}
	return result, nil
}

func findMod(item shop.Item, modID string) (shop.ItemMod, bool) {
	for _, mod := range item.Mods {
		if mod.ID == modID {
			return mod, true
		}
	}
	return shop.ItemMod{}, false
}

func orderCurrency(items []order.LineItem) string {
	if len(items) > 0 && items[0].Price.Currency != "" {
		return items[0].Price.Currency
	}
	return "USD"
}
