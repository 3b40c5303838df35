// Package storage defines the persistence interfaces for the commerce layer
// and an in-memory implementation used by tests and local development.
package storage

import (
	"context"
	"errors"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrActiveOrderExists is returned by CreateOrder when the user already has
// a live cart for the shop, detected by another process between the
// caller's check and the insert.
var ErrActiveOrderExists = errors.New("active order already exists")

// ErrVersionConflict is returned by UpdateOrder when the stored row's
// version no longer matches the one being written (lost-update guard).
var ErrVersionConflict = errors.New("order version conflict")

// ShopStore persists shops and their items. Upserts key on canonical id so
// sync runs are idempotent; absent records are never deleted by sync.
type ShopStore interface {
	UpsertShop(ctx context.Context, s shop.Shop) (shop.Shop, error)
	GetShop(ctx context.Context, id string) (shop.Shop, error)
	ListShops(ctx context.Context) ([]shop.Shop, error)

	UpsertItem(ctx context.Context, item shop.Item) (shop.Item, error)
	GetItem(ctx context.Context, id string) (shop.Item, error)
	ListItems(ctx context.Context, shopID string) ([]shop.Item, error)
}

// OrderStore persists orders. UpdateOrder performs a compare-and-swap on
// Version and returns ErrVersionConflict when the row moved underneath the
// caller.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	UpdateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	// GetActiveOrder returns the single pending/awaiting-payment order for
	// the (user, shop) pair, or ErrNotFound. An empty shopID matches the
	// user's active order in any shop.
	GetActiveOrder(ctx context.Context, userID, shopID string) (order.Order, error)
	ListOrdersByIDs(ctx context.Context, ids []string) ([]order.Order, error)
}

// FarmerStore persists farmer records referenced by shop allocations.
type FarmerStore interface {
	UpsertFarmer(ctx context.Context, f shop.Farmer) (shop.Farmer, error)
	GetFarmer(ctx context.Context, id string) (shop.Farmer, error)
	ListFarmers(ctx context.Context) ([]shop.Farmer, error)
}
