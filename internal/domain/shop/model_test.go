package shop

import "testing"

func TestValidateAllocations(t *testing.T) {
	sh := &Shop{Allocations: []FarmerAllocation{
		{FarmerID: "a", AllocationBPS: 6000},
		{FarmerID: "b", AllocationBPS: 4000},
	}}
	if err := sh.ValidateAllocations(); err != nil {
		t.Fatalf("exactly 10000 bps must be valid: %v", err)
	}

	sh.Allocations = append(sh.Allocations, FarmerAllocation{FarmerID: "c", AllocationBPS: 1})
	if err := sh.ValidateAllocations(); err == nil {
		t.Fatal("expected error above 10000 bps")
	}

	sh.Allocations = []FarmerAllocation{{FarmerID: "a", AllocationBPS: -1}}
	if err := sh.ValidateAllocations(); err == nil {
		t.Fatal("expected error for negative allocation")
	}

	sh.Allocations = nil
	if err := sh.ValidateAllocations(); err != nil {
		t.Fatalf("no allocations must be valid: %v", err)
	}
}

func TestFindItem(t *testing.T) {
	sh := &Shop{Menu: map[string][]Item{
		"Espresso": {{ID: "item-1", Name: "Latte"}},
		"Pastry":   {{ID: "item-2", Name: "Scone"}},
	}}

	item, ok := sh.FindItem("item-2")
	if !ok || item.Name != "Scone" {
		t.Fatalf("got %+v, %v", item, ok)
	}
	if _, ok := sh.FindItem("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}
