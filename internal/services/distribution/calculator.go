// Package distribution computes how a paid order's proceeds are attributed
// across farmer allocations and the reward-token pool. Distributions are
// records, not transfers; token movement belongs to the rewards service.
package distribution

import (
	"fmt"

	"github.com/groundscore/commerce_layer/internal/domain/order"
	"github.com/groundscore/commerce_layer/internal/domain/shop"
)

// Calculator derives distribution records from order totals and shop
// configuration.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

// ForOrder computes the full distribution set for a paid order: one farmer
// record per allocation plus a reward record when the shop's program is
// enabled. Amounts use floor division on basis points, so the undistributed
// remainder stays with the shop (accepted rounding loss). The reward is
// capped to whatever the farmer shares left, keeping the distributed sum
// within the order total.
func (c *Calculator) ForOrder(o *order.Order, sh *shop.Shop) ([]order.Distribution, error) {
	if err := sh.ValidateAllocations(); err != nil {
		return nil, fmt.Errorf("shop %s: %w", sh.ID, err)
	}

	total := o.Total()
	currency := o.Currency
	if currency == "" {
		currency = "USD"
	}

	var result []order.Distribution
	var distributed int64
	for _, alloc := range sh.Allocations {
		amount := total * alloc.AllocationBPS / 10000
		if amount <= 0 {
			continue
		}
		distributed += amount
		result = append(result, order.Distribution{
			Kind:     order.DistributionFarmer,
			FarmerID: alloc.FarmerID,
			Amount:   shop.Money{Amount: amount, Currency: currency},
		})
	}

	if sh.Reward != nil && sh.Reward.Enabled && sh.Reward.RateBPS > 0 {
		reward := total * sh.Reward.RateBPS / 10000
		if remaining := total - distributed; reward > remaining {
			reward = remaining
		}
		if reward > 0 {
			result = append(result, order.Distribution{
				Kind:      order.DistributionReward,
				Recipient: sh.Reward.PoolAddress,
				Amount:    shop.Money{Amount: reward, Currency: currency},
			})
		}
	}
	return result, nil
}
