package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// Memory is a thread-safe in-memory persistence layer implementing the
// storage interfaces in this package. It is intended for tests and local
// development and deliberately keeps the implementation simple.
type Memory struct {
	mu      sync.RWMutex
	shops   map[string]shop.Shop
	items   map[string]shop.Item
	orders  map[string]order.Order
	farmers map[string]shop.Farmer
}

var _ ShopStore = (*Memory)(nil)
var _ OrderStore = (*Memory)(nil)
var _ FarmerStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		shops:   make(map[string]shop.Shop),
		items:   make(map[string]shop.Item),
		orders:  make(map[string]order.Order),
		farmers: make(map[string]shop.Farmer),
	}
}

// ShopStore --------------------------------------------------------------

func (m *Memory) UpsertShop(_ context.Context, s shop.Shop) (shop.Shop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.shops[s.ID] = cloneShop(s)
	return s, nil
}

func (m *Memory) GetShop(_ context.Context, id string) (shop.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shops[id]
	if !ok {
		return shop.Shop{}, ErrNotFound
	}
	return cloneShop(s), nil
}

func (m *Memory) ListShops(_ context.Context) ([]shop.Shop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]shop.Shop, 0, len(m.shops))
	for _, s := range m.shops {
		result = append(result, cloneShop(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertItem(_ context.Context, item shop.Item) (shop.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	m.items[item.ID] = cloneItem(item)
	return item, nil
}

func (m *Memory) GetItem(_ context.Context, id string) (shop.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return shop.Item{}, ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *Memory) ListItems(_ context.Context, shopID string) ([]shop.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []shop.Item
	for _, item := range m.items {
		if item.ShopID == shopID {
			result = append(result, cloneItem(item))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// OrderStore -------------------------------------------------------------

func (m *Memory) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1
	m.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (m *Memory) UpdateOrder(_ context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orders[o.ID]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	if existing.Version != o.Version {
		return order.Order{}, ErrVersionConflict
	}
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	o.Version++
	m.orders[o.ID] = cloneOrder(o)
	return o, nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) GetActiveOrder(_ context.Context, userID, shopID string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.UserID != userID || !o.Status.Active() {
			continue
		}
		if shopID != "" && o.ShopID != shopID {
			continue
		}
		return cloneOrder(o), nil
	}
	return order.Order{}, ErrNotFound
}

func (m *Memory) ListOrdersByIDs(_ context.Context, ids []string) ([]order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]order.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			result = append(result, cloneOrder(o))
		}
	}
	return result, nil
}

// FarmerStore ------------------------------------------------------------

func (m *Memory) UpsertFarmer(_ context.Context, f shop.Farmer) (shop.Farmer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.farmers[f.ID] = f
	return f, nil
}

func (m *Memory) GetFarmer(_ context.Context, id string) (shop.Farmer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.farmers[id]
	if !ok {
		return shop.Farmer{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) ListFarmers(_ context.Context) ([]shop.Farmer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]shop.Farmer, 0, len(m.farmers))
	for _, f := range m.farmers {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// clone helpers keep callers from mutating shared state through slices and
// maps returned by the store.

func cloneShop(s shop.Shop) shop.Shop {
	out := s
	if s.Menu != nil {
		out.Menu = make(map[string][]shop.Item, len(s.Menu))
		for cat, items := range s.Menu {
			cloned := make([]shop.Item, len(items))
			for i, item := range items {
				cloned[i] = cloneItem(item)
			}
			out.Menu[cat] = cloned
		}
	}
	out.Allocations = append([]shop.FarmerAllocation(nil), s.Allocations...)
	return out
}

func cloneItem(item shop.Item) shop.Item {
	item.Mods = append([]shop.ItemMod(nil), item.Mods...)
	return item
}

func cloneOrder(o order.Order) order.Order {
	out := o
	out.Items = make([]order.LineItem, len(o.Items))
	for i, li := range o.Items {
		out.Items[i] = li
		out.Items[i].Mods = append([]order.ModSelection(nil), li.Mods...)
	}
	out.Distributions = append([]order.Distribution(nil), o.Distributions...)
	if o.Tip != nil {
		tip := *o.Tip
		out.Tip = &tip
	}
	if o.External != nil {
		ext := *o.External
		out.External = &ext
	}
	return out
}
