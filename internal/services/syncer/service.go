// Package syncer keeps canonical shops and menus fresh from their external
// POS providers, and forwards paid orders back to them.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/groundscore/commerce_layer/internal/apperr"
	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
	"github.com/groundscore/commerce_layer/internal/metrics"
	"github.com/groundscore/commerce_layer/internal/pos"
	"github.com/groundscore/commerce_layer/internal/services/cart"
	"github.com/groundscore/commerce_layer/internal/storage"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Result reports the outcome of one shop's sync within a run.
type Result struct {
	ShopID   string          `json:"shopId"`
	Provider shop.SourceType `json:"provider"`
	Error    string          `json:"error,omitempty"`
}

// Ok reports whether this shop synced cleanly.
func (r Result) Ok() bool { return r.Error == "" }

// Service pulls provider catalogs through the adapter registry and upserts
// the canonical records.
type Service struct {
	shops    storage.ShopStore
	cart     *cart.Service
	registry *pos.Registry
	log      *logger.Logger
}

func New(shops storage.ShopStore, cartSvc *cart.Service, registry *pos.Registry, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("syncer")
	}
	return &Service{shops: shops, cart: cartSvc, registry: registry, log: log}
}

// SyncAll refreshes every configured shop. Shops run concurrently; one
// failure never aborts the others. The returned slice has one entry per
// shop, failures included.
func (s *Service) SyncAll(ctx context.Context) ([]Result, error) {
	shops, err := s.shops.ListShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}

	results := make([]Result, len(shops))
	var wg sync.WaitGroup
	for i, sh := range shops {
		wg.Add(1)
		go func(i int, sh shop.Shop) {
			defer wg.Done()
			res := Result{ShopID: sh.ID, Provider: sh.Source.Type}
			if err := s.SyncShop(ctx, sh.ID); err != nil {
				res.Error = err.Error()
				s.log.WithError(err).
					WithField("shop_id", sh.ID).
					WithField("provider", string(sh.Source.Type)).
					Warn("shop sync failed")
			}
			metrics.SyncRun(string(sh.Source.Type), res.Ok())
			results[i] = res
		}(i, sh)
	}
	wg.Wait()
	return results, nil
}

// SyncShop refreshes one shop from its provider. The store fetch comes
// first because product mapping needs the store-level currency; within a
// shop the steps are sequential.
func (s *Service) SyncShop(ctx context.Context, shopID string) error {
	sh, err := s.shops.GetShop(ctx, shopID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("shop %s not found", shopID)
	}
	if err != nil {
		return err
	}

	adapter, err := s.registry.For(sh.Source.Type)
	if err != nil {
		return apperr.BadRequest("shop %s: %v", shopID, err)
	}

	store, err := adapter.FetchStore(ctx, sh.Source)
	if err != nil {
		return apperr.ExternalService(err, "fetch store for shop %s", shopID)
	}
	details, err := adapter.FetchLocationDetails(ctx, sh.Source)
	if err != nil {
		return apperr.ExternalService(err, "fetch location for shop %s", shopID)
	}
	products, err := adapter.FetchProducts(ctx, sh.Source)
	if err != nil {
		return apperr.ExternalService(err, "fetch products for shop %s", shopID)
	}

	// Existing items are matched by their provider-native id so canonical
	// ids stay stable across runs.
	existing, err := s.shops.ListItems(ctx, sh.ID)
	if err != nil {
		return err
	}
	byExternal := make(map[string]string, len(existing))
	for _, item := range existing {
		byExternal[item.Source.ExternalID] = item.ID
	}

	menu := make(map[string][]shop.Item)
	for _, p := range products {
		currency := p.Currency
		if currency == "" {
			currency = store.Currency
		}
		item := shop.Item{
			ID:          byExternal[p.ExternalID],
			ShopID:      sh.ID,
			Name:        p.Name,
			Description: p.Description,
			Image:       p.Image,
			Price:       shop.Money{Amount: p.PriceAmount, Currency: currency},
			Category:    p.Category,
			Available:   p.Available,
			Source: shop.SourceConfig{
				Type:       sh.Source.Type,
				ExternalID: p.ExternalID,
				MerchantID: sh.Source.MerchantID,
				LocationID: sh.Source.LocationID,
			},
		}
		for _, m := range p.Mods {
			modCurrency := m.Currency
			if modCurrency == "" {
				modCurrency = currency
			}
			item.Mods = append(item.Mods, shop.ItemMod{
				ID:    m.ExternalID,
				Name:  m.Name,
				Price: shop.Money{Amount: m.PriceAmount, Currency: modCurrency},
			})
		}

		saved, err := s.shops.UpsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", p.ExternalID, err)
		}
		category := saved.Category
		if category == "" {
			category = "Menu"
		}
		menu[category] = append(menu[category], saved)
	}

	// Provider-derived fields refresh; operator configuration (farmer
	// allocations, fund recipient, tip and reward settings) is preserved.
	if store.Name != "" {
		sh.Label = store.Name
	}
	if store.Logo != "" {
		sh.Logo = store.Logo
	}
	if store.Background != "" {
		sh.BackgroundImage = store.Background
	}
	if details.Label != "" || details.Latitude != 0 || details.Longitude != 0 {
		sh.Location = &shop.Location{
			Label:     details.Label,
			Latitude:  details.Latitude,
			Longitude: details.Longitude,
		}
	}
	sh.Menu = menu

	if _, err := s.shops.UpsertShop(ctx, sh); err != nil {
		return fmt.Errorf("upsert shop %s: %w", sh.ID, err)
	}
	s.log.WithField("shop_id", sh.ID).
		WithField("items", len(products)).
		Info("shop synced")
	return nil
}

// ForwardOrders sends paid orders to their shops' POS providers for
// fulfillment. Orders already forwarded are returned unchanged; failures
// are reported per order without aborting the batch.
func (s *Service) ForwardOrders(ctx context.Context, orderIDs []string) ([]order.Order, []Result, error) {
	if len(orderIDs) == 0 {
		return nil, nil, apperr.BadRequest("no order ids given")
	}

	var (
		updated []order.Order
		results []Result
	)
	for _, id := range orderIDs {
		o, err := s.forwardOne(ctx, id)
		res := Result{ShopID: o.ShopID}
		if err != nil {
			res.Error = err.Error()
		} else {
			updated = append(updated, o)
		}
		results = append(results, res)
	}
	return updated, results, nil
}

func (s *Service) forwardOne(ctx context.Context, orderID string) (order.Order, error) {
	o, err := s.cart.GetOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.External != nil {
		return o, nil
	}
	if o.Status != order.StatusPaid {
		return o, apperr.Conflict("order %s is %s, only paid orders can be forwarded", o.ID, o.Status)
	}

	sh, err := s.shops.GetShop(ctx, o.ShopID)
	if err != nil {
		return o, fmt.Errorf("load shop %s: %w", o.ShopID, err)
	}
	adapter, err := s.registry.For(sh.Source.Type)
	if err != nil {
		return o, apperr.BadRequest("shop %s: %v", sh.ID, err)
	}

	externalID, err := adapter.CreateOrder(ctx, sh.Source, o)
	if err != nil {
		return o, apperr.ExternalService(err, "forward order %s to %s", o.ID, sh.Source.Type)
	}

	o, err = s.cart.SaveExternalInfo(ctx, o.ID, order.ExternalOrderInfo{
		Provider:  sh.Source.Type,
		OrderID:   externalID,
		Forwarded: time.Now().UTC(),
	})
	if err != nil {
		return o, err
	}
	return s.cart.Complete(ctx, o)
}
