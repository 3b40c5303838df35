// Package pos defines the capability set every external point-of-sale
// provider adapter implements, and the registry the synchronization service
// selects adapters from. The sync service is written once against these
// interfaces and stays provider-agnostic.
package pos

import (
	"context"
	"fmt"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// StoreRecord is the provider-neutral shape of a store/location fetch.
type StoreRecord struct {
	ExternalID string
	Name       string
	Logo       string
	Background string
	Currency   string
}

// LocationDetails carries the optional geographic data some providers
// expose separately from the store record.
type LocationDetails struct {
	Label     string
	Latitude  float64
	Longitude float64
}

// ProductRecord is the provider-neutral shape of one catalog product.
type ProductRecord struct {
	ExternalID  string
	Name        string
	Description string
	Image       string
	PriceAmount int64
	Currency    string
	Category    string
	Available   bool
	Mods        []ModRecord
}

// ModRecord is a provider product modifier.
type ModRecord struct {
	ExternalID  string
	Name        string
	PriceAmount int64
	Currency    string
}

// Adapter is the capability set the synchronization service requires from
// every provider. CreateOrder forwards a paid order for fulfillment and
// returns the provider's order id.
type Adapter interface {
	Provider() shop.SourceType
	FetchStore(ctx context.Context, cfg shop.SourceConfig) (StoreRecord, error)
	FetchLocationDetails(ctx context.Context, cfg shop.SourceConfig) (LocationDetails, error)
	FetchProducts(ctx context.Context, cfg shop.SourceConfig) ([]ProductRecord, error)
	CreateOrder(ctx context.Context, cfg shop.SourceConfig, o order.Order) (string, error)
}

// Registry resolves the adapter for a shop's source config.
type Registry struct {
	adapters map[shop.SourceType]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[shop.SourceType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// For returns the adapter for the given source type.
func (r *Registry) For(t shop.SourceType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", t)
	}
	return a, nil
}
