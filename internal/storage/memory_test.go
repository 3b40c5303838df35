package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

func TestMemoryOrderLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.CreateOrder(ctx, order.Order{
		UserID: "user-1",
		ShopID: "shop-1",
		Status: order.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("expected id and version 1, got %+v", created)
	}

	got, err := m.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("got %+v", got)
	}

	got.Status = order.StatusPaid
	updated, err := m.UpdateOrder(ctx, got)
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestMemoryUpdateOrderVersionConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, _ := m.CreateOrder(ctx, order.Order{UserID: "u", Status: order.StatusPending})
	if _, err := m.UpdateOrder(ctx, created); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// created still carries version 1; the row is now at 2.
	if _, err := m.UpdateOrder(ctx, created); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	missing := created
	missing.ID = "00000000-0000-0000-0000-000000000000"
	if _, err := m.UpdateOrder(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryGetActiveOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetActiveOrder(ctx, "user-1", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	active, _ := m.CreateOrder(ctx, order.Order{UserID: "user-1", ShopID: "shop-1", Status: order.StatusPending})
	m.CreateOrder(ctx, order.Order{UserID: "user-1", ShopID: "shop-2", Status: order.StatusPaid})
	m.CreateOrder(ctx, order.Order{UserID: "user-2", ShopID: "shop-1", Status: order.StatusPending})

	got, err := m.GetActiveOrder(ctx, "user-1", "shop-1")
	if err != nil {
		t.Fatalf("GetActiveOrder: %v", err)
	}
	if got.ID != active.ID {
		t.Fatalf("expected %s, got %s", active.ID, got.ID)
	}

	// Empty shop id matches any shop.
	if _, err := m.GetActiveOrder(ctx, "user-1", ""); err != nil {
		t.Fatalf("any-shop lookup: %v", err)
	}
	// Paid orders are not active.
	if _, err := m.GetActiveOrder(ctx, "user-1", "shop-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for paid order, got %v", err)
	}
}

func TestMemoryListOrdersByIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.CreateOrder(ctx, order.Order{UserID: "u", Status: order.StatusPending})
	b, _ := m.CreateOrder(ctx, order.Order{UserID: "u", Status: order.StatusPaid})

	got, err := m.ListOrdersByIDs(ctx, []string{a.ID, "missing", b.ID})
	if err != nil {
		t.Fatalf("ListOrdersByIDs: %v", err)
	}
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("got %+v", got)
	}
}

func TestMemoryCloneIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, _ := m.CreateOrder(ctx, order.Order{
		UserID: "u",
		Status: order.StatusPending,
		Items: []order.LineItem{
			{ID: "line-1", Name: "Latte", Price: shop.Money{Amount: 550}, Quantity: 1},
		},
	})

	got, _ := m.GetOrder(ctx, created.ID)
	got.Items[0].Name = "mutated"

	again, _ := m.GetOrder(ctx, created.ID)
	if again.Items[0].Name != "Latte" {
		t.Fatal("store state leaked through returned slice")
	}
}

func TestMemoryItemModsCloneIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.UpsertItem(ctx, shop.Item{
		ShopID: "shop-1",
		Name:   "Latte",
		Mods:   []shop.ItemMod{{ID: "mod-oat", Name: "Oat Milk"}},
	})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	got, _ := m.GetItem(ctx, created.ID)
	got.Mods[0].Name = "mutated"

	again, _ := m.GetItem(ctx, created.ID)
	if again.Mods[0].Name != "Oat Milk" {
		t.Fatal("store state leaked through returned mods slice")
	}
}

func TestMemoryShopAndItems(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sh, err := m.UpsertShop(ctx, shop.Shop{Label: "Roasters"})
	if err != nil {
		t.Fatalf("UpsertShop: %v", err)
	}
	if sh.ID == "" {
		t.Fatal("expected generated shop id")
	}

	item, err := m.UpsertItem(ctx, shop.Item{ShopID: sh.ID, Name: "Latte"})
	if err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}
	m.UpsertItem(ctx, shop.Item{ShopID: "other", Name: "Drip"})

	items, err := m.ListItems(ctx, sh.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("got %+v", items)
	}

	// Upserting with the same id replaces in place.
	item.Name = "Flat White"
	if _, err := m.UpsertItem(ctx, item); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	stored, _ := m.GetItem(ctx, item.ID)
	if stored.Name != "Flat White" {
		t.Fatalf("got %+v", stored)
	}
}

func TestMemoryFarmers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	f, err := m.UpsertFarmer(ctx, shop.Farmer{Name: "Elena", Country: "CO"})
	if err != nil {
		t.Fatalf("UpsertFarmer: %v", err)
	}
	got, err := m.GetFarmer(ctx, f.ID)
	if err != nil || got.Name != "Elena" {
		t.Fatalf("GetFarmer: %+v, %v", got, err)
	}
	all, err := m.ListFarmers(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("ListFarmers: %+v, %v", all, err)
	}
}
