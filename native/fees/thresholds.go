package fees

import "fmt"

// DefaultThresholdDivisor derives the distribution threshold from a
// property's circulating supply: threshold = max(1, supply/divisor).
const DefaultThresholdDivisor int64 = 100000

// ThresholdCache memoises per-property distribution thresholds. Thresholds
// are a pure function of current supply, so the cache is transient and is
// rebuilt lazily; supply-changing events invalidate the affected property.
type ThresholdCache struct {
	supply     SupplySource
	divisor    int64
	thresholds map[uint32]int64
}

// NewThresholdCache builds a threshold cache over the supplied source. A
// non-positive divisor falls back to DefaultThresholdDivisor.
func NewThresholdCache(supply SupplySource, divisor int64) *ThresholdCache {
	if divisor <= 0 {
		divisor = DefaultThresholdDivisor
	}
	return &ThresholdCache{
		supply:     supply,
		divisor:    divisor,
		thresholds: make(map[uint32]int64),
	}
}

// Threshold returns the distribution threshold for a property, recomputing
// it from supply on first use.
func (c *ThresholdCache) Threshold(propertyID uint32) (int64, error) {
	if threshold, ok := c.thresholds[propertyID]; ok {
		return threshold, nil
	}
	return c.Update(propertyID)
}

// Update recomputes the threshold from current supply. The result is floored
// at 1 so low-supply properties do not distribute on every fee event.
func (c *ThresholdCache) Update(propertyID uint32) (int64, error) {
	if c.supply == nil {
		return 0, fmt.Errorf("fees: no supply source for property %d", propertyID)
	}
	supply, err := c.supply.TotalSupply(propertyID)
	if err != nil {
		return 0, fmt.Errorf("fees: total supply for property %d: %w", propertyID, err)
	}
	threshold := supply / c.divisor
	if threshold <= 0 {
		threshold = 1
	}
	c.thresholds[propertyID] = threshold
	return threshold, nil
}

// Invalidate drops the memoised threshold so the next lookup recomputes it.
func (c *ThresholdCache) Invalidate(propertyID uint32) {
	delete(c.thresholds, propertyID)
}
