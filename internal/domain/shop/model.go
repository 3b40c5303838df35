// Package shop defines the canonical shop and menu model every POS provider
// is normalized into.
package shop

import "fmt"

// SourceType tags which external POS provider a shop or item came from.
type SourceType string

const (
	SourceSquare      SourceType = "square"
	SourceMarketplace SourceType = "marketplace"
)

// SourceConfig binds a canonical record to its provider-native identifiers.
// ExternalID is the provider's store/product id, MerchantID and LocationID
// carry the extra scoping some providers require.
type SourceConfig struct {
	Type       SourceType `json:"type"`
	ExternalID string     `json:"externalId"`
	MerchantID string     `json:"merchantId,omitempty"`
	LocationID string     `json:"locationId,omitempty"`
}

// Money is an integer amount in the currency's minor unit. Never a float.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ItemMod is a selectable modifier on an item (e.g. oat milk, extra shot).
type ItemMod struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

// Item is one purchasable menu entry.
type Item struct {
	ID          string       `json:"id"`
	ShopID      string       `json:"shopId"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	Price       Money        `json:"price"`
	Category    string       `json:"category"`
	Available   bool         `json:"available"`
	Mods        []ItemMod    `json:"mods,omitempty"`
	Source      SourceConfig `json:"sourceConfig"`
}

// FarmerAllocation is an operator-configured basis-point share of each paid
// order attributed to a farmer. Shares on one shop sum to at most 10000.
type FarmerAllocation struct {
	FarmerID      string `json:"farmerId"`
	AllocationBPS int64  `json:"allocationBps"`
}

// TipConfig describes the tip presets offered at checkout.
type TipConfig struct {
	Enabled     bool    `json:"enabled"`
	PresetsBPS  []int64 `json:"presetsBps,omitempty"`
	RecipientID string  `json:"recipientId,omitempty"`
}

// RewardConfig enables the reward-token program for a shop's orders.
type RewardConfig struct {
	Enabled     bool   `json:"enabled"`
	RateBPS     int64  `json:"rateBps"`
	PoolAddress string `json:"poolAddress,omitempty"`
}

// Location is an optional geographic position for the shop.
type Location struct {
	Label     string  `json:"label,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Shop is the canonical store record. Menu maps category label to the
// ordered items within it.
type Shop struct {
	ID              string             `json:"id"`
	Label           string             `json:"label"`
	Logo            string             `json:"logo,omitempty"`
	BackgroundImage string             `json:"backgroundImage,omitempty"`
	Location        *Location          `json:"location,omitempty"`
	Menu            map[string][]Item  `json:"menu"`
	Allocations     []FarmerAllocation `json:"farmerAllocations,omitempty"`
	Source          SourceConfig       `json:"sourceConfig"`
	Tip             *TipConfig         `json:"tipConfig,omitempty"`
	Reward          *RewardConfig      `json:"rewardConfig,omitempty"`

	// FundRecipient is the chain-qualified address order proceeds are
	// authorized to. Format "<chain>:<address>", e.g. "base:0xabc...".
	FundRecipient string `json:"fundRecipient,omitempty"`
}

// Farmer is a producer a shop can allocate proceeds to.
type Farmer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Image      string `json:"image,omitempty"`
	ShortBio   string `json:"shortBio,omitempty"`
	Country    string `json:"country,omitempty"`
	Wallet     string `json:"wallet,omitempty"`
	InfoURL    string `json:"infoUrl,omitempty"`
	CampaignID string `json:"campaignId,omitempty"`
}

// ValidateAllocations checks the basis-point invariant.
func (s *Shop) ValidateAllocations() error {
	var total int64
	for _, a := range s.Allocations {
		if a.AllocationBPS < 0 {
			return fmt.Errorf("allocation for farmer %s is negative", a.FarmerID)
		}
		total += a.AllocationBPS
	}
	if total > 10000 {
		return fmt.Errorf("farmer allocations sum to %d bps, exceeding 10000", total)
	}
	return nil
}

// FindItem scans the menu for an item by canonical id.
func (s *Shop) FindItem(itemID string) (Item, bool) {
	for _, items := range s.Menu {
		for _, item := range items {
			if item.ID == itemID {
				return item, true
			}
		}
	}
	return Item{}, false
}
