package fees

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"feeledger/observability/metrics"
	"feeledger/storage"
)

// DistributionPurpose tags snapshot requests issued for fee distributions.
const DistributionPurpose = "FEEDISTRIBUTION"

// DefaultStateHistoryBlocks is the retention window for fee cache history.
// Entries older than this many blocks are pruned, except the most recent one.
const DefaultStateHistoryBlocks int64 = 50

// CacheConfig tunes a FeeCache. Zero values fall back to defaults.
type CacheConfig struct {
	// ThresholdDivisor derives distribution thresholds from supply.
	ThresholdDivisor int64
	// StateHistoryBlocks is the cache history retention window.
	StateHistoryBlocks int64
	// OverrideForcedShutdown lets AddFee proceed past an overflow fault at
	// the operator's risk instead of returning the fatal error.
	OverrideForcedShutdown bool
}

// FeeCache tracks, per property, the history of cumulative accrued fees and
// triggers a pro-rata distribution once the cached amount crosses the
// supply-derived threshold. All mutating calls must be serialised by the
// block-processing pipeline; there is no internal cross-call locking.
type FeeCache struct {
	db         storage.Database
	history    *FeeHistory
	thresholds *ThresholdCache
	snapshot   SnapshotDistributor
	ledger     BalanceLedger
	registry   PropertyRegistry
	log        *slog.Logger

	stateHistoryBlocks     int64
	overrideForcedShutdown bool
	reads                  uint64
	writes                 uint64
}

// NewFeeCache constructs a fee cache over the supplied table and
// collaborators. history receives the record of every completed
// distribution; supply feeds threshold computation; snapshot and ledger are
// exercised only at distribution time; registry is needed only for reorg
// rollback sweeps.
func NewFeeCache(db storage.Database, history *FeeHistory, supply SupplySource,
	snapshot SnapshotDistributor, ledger BalanceLedger, registry PropertyRegistry,
	cfg CacheConfig, log *slog.Logger) *FeeCache {
	if log == nil {
		log = slog.Default()
	}
	stateHistory := cfg.StateHistoryBlocks
	if stateHistory <= 0 {
		stateHistory = DefaultStateHistoryBlocks
	}
	return &FeeCache{
		db:                     db,
		history:                history,
		thresholds:             NewThresholdCache(supply, cfg.ThresholdDivisor),
		snapshot:               snapshot,
		ledger:                 ledger,
		registry:               registry,
		log:                    log.With("component", "feecache"),
		stateHistoryBlocks:     stateHistory,
		overrideForcedShutdown: cfg.OverrideForcedShutdown,
	}
}

// GetDistributionThreshold returns the distribution threshold for a
// property, computing it from current supply if not cached.
func (c *FeeCache) GetDistributionThreshold(propertyID uint32) (int64, error) {
	if c == nil {
		return 0, ErrNotInitialised
	}
	return c.thresholds.Threshold(propertyID)
}

// UpdateDistributionThreshold recomputes the threshold from current supply.
// Call after supply-changing events (issuance, burns).
func (c *FeeCache) UpdateDistributionThreshold(propertyID uint32) error {
	if c == nil {
		return ErrNotInitialised
	}
	_, err := c.thresholds.Update(propertyID)
	return err
}

// GetCacheHistory returns the persisted cache history for a property,
// ascending by block. An empty history means the property has never accrued
// a fee.
func (c *FeeCache) GetCacheHistory(propertyID uint32) ([]CacheEntry, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotInitialised
	}
	data, err := c.db.Get(cacheKey(propertyID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fees: load cache history for property %d: %w", propertyID, err)
	}
	c.reads++
	metrics.Fees().IncCacheRead()
	entries, malformed, err := decodeCacheHistory(data)
	if err != nil {
		return nil, err
	}
	for _, item := range malformed {
		c.log.Error("skipping malformed fee cache entry", "property", propertyID, "raw", item)
		metrics.Fees().IncMalformedRecord("feecache")
	}
	return entries, nil
}

// GetCachedAmount returns the current accrued-but-undistributed amount for a
// property: the amount of the most recent history entry, or 0 when the
// property has never generated a fee.
func (c *FeeCache) GetCachedAmount(propertyID uint32) (int64, error) {
	entries, err := c.GetCacheHistory(propertyID)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].Amount, nil
}

// AddFee accrues a fee for a property at a block, then prunes the history
// and evaluates the distribution threshold. The addition is checked: an
// impending signed 64-bit overflow is a fatal accounting fault returned as
// *OverflowError unless the operator override is configured.
func (c *FeeCache) AddFee(propertyID uint32, block int64, amount int64) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	current, err := c.GetCachedAmount(propertyID)
	if err != nil {
		return err
	}
	c.log.Debug("adding fee", "property", propertyID, "block", block, "amount", amount, "current", current)
	if current > 0 && amount > math.MaxInt64-current {
		// The cache can never legitimately exceed the maximum possible
		// number of tokens; persisting the wrapped sum would corrupt
		// balances, so the caller must halt and force a reparse.
		metrics.Fees().IncOverflowFault()
		overflow := &OverflowError{PropertyID: propertyID, Block: block, Current: current, Amount: amount}
		if !c.overrideForcedShutdown {
			c.log.Error("fee cache overflow", "property", propertyID, "block", block,
				"current", current, "amount", amount)
			return overflow
		}
		c.log.Warn("fee cache overflow overridden by operator", "error", overflow)
	}
	newAmount := current + amount
	if err := c.rewriteEntry(propertyID, block, newAmount); err != nil {
		return err
	}
	if err := c.PruneCache(propertyID, block); err != nil {
		return err
	}
	return c.EvalCache(propertyID, block)
}

// ClearCache zeroes a property's cache at the given block, recording the
// zero as a new history entry so the reset survives rollback replay.
func (c *FeeCache) ClearCache(propertyID uint32, block int64) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	c.log.Debug("clearing fee cache", "property", propertyID, "block", block)
	if err := c.rewriteEntry(propertyID, block, 0); err != nil {
		return err
	}
	return c.PruneCache(propertyID, block)
}

// EvalCache triggers a distribution when the cached amount has reached the
// property's threshold.
func (c *FeeCache) EvalCache(propertyID uint32, block int64) error {
	cached, err := c.GetCachedAmount(propertyID)
	if err != nil {
		return err
	}
	threshold, err := c.thresholds.Threshold(propertyID)
	if err != nil {
		return err
	}
	if cached < threshold {
		return nil
	}
	return c.DistributeCache(propertyID, block)
}

// DistributeCache pays the entire cached amount of a property pro-rata to
// current holders of the ecosystem reference property, records the event in
// the fee history and zeroes the cache. The credit loop, history write and
// cache clear run as one uninterrupted sequence under the caller's
// single-writer contract. An empty cache is a no-op.
func (c *FeeCache) DistributeCache(propertyID uint32, block int64) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	cached, err := c.GetCachedAmount(propertyID)
	if err != nil {
		return err
	}
	if cached == 0 {
		c.log.Warn("skipping fee distribution, cache is empty", "property", propertyID, "block", block)
		return nil
	}
	if c.snapshot == nil || c.ledger == nil {
		return fmt.Errorf("fees: distribution collaborators not configured for property %d", propertyID)
	}
	receivers, err := c.snapshot.Receivers(DistributionPurpose, ReferenceProperty(propertyID), cached)
	if err != nil {
		return fmt.Errorf("fees: snapshot receivers for property %d: %w", propertyID, err)
	}
	c.log.Info("starting fee distribution", "property", propertyID, "block", block,
		"amount", cached, "recipients", len(receivers))

	var sent int64
	recipients := make([]Receiver, 0, len(receivers))
	for _, r := range receivers {
		if err := c.ledger.Credit(r.Address, propertyID, r.Amount); err != nil {
			return fmt.Errorf("fees: credit %s for property %d: %w", r.Address, propertyID, err)
		}
		sent += r.Amount
		recipients = append(recipients, r)
		c.log.Debug("credited fee share", "address", r.Address, "amount", r.Amount,
			"running", sent, "of", cached)
	}
	c.log.Info("fee distribution complete", "property", propertyID, "distributed", sent, "cached", cached)

	if sent != cached {
		// The snapshot distributor broke its share-allocation contract;
		// clearing the cache now would silently destroy the difference.
		return fmt.Errorf("%w: property %d sent %d of %d", ErrShortfall, propertyID, sent, cached)
	}
	if _, err := c.history.RecordFeeDistribution(propertyID, block, sent, recipients); err != nil {
		return err
	}
	metrics.Fees().ObserveDistribution(propertyID, sent)
	return c.ClearCache(propertyID, block)
}

// PruneCache drops history entries older than the retention window, never
// removing the single most recent entry: current state must stay
// recoverable even when it is older than the window.
func (c *FeeCache) PruneCache(propertyID uint32, block int64) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	cutoff := block - c.stateHistoryBlocks
	entries, err := c.GetCacheHistory(propertyID)
	if err != nil {
		return err
	}
	if len(entries) == 0 || entries[0].Block >= cutoff {
		return nil
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Block >= cutoff {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		kept = entries[len(entries)-1:]
	}
	c.log.Debug("pruned fee cache", "property", propertyID, "cutoff", cutoff, "entries", len(kept))
	return c.writeHistory(propertyID, kept)
}

// RollBackCache discards, for every known property in both ecosystems,
// every history entry at or above the rollback block. Histories may become
// empty; the caller replays forward from the rollback point.
func (c *FeeCache) RollBackCache(block int64) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	if c.registry == nil {
		return errors.New("fees: property registry required for rollback")
	}
	for _, ecosystem := range []uint8{EcosystemMain, EcosystemTest} {
		next := c.registry.NextPropertyID(ecosystem)
		for propertyID := firstPropertyID(ecosystem); propertyID < next; propertyID++ {
			entries, err := c.GetCacheHistory(propertyID)
			if err != nil {
				return err
			}
			if len(entries) == 0 || entries[len(entries)-1].Block < block {
				continue // unaffected by this rollback
			}
			kept := entries[:0]
			for _, entry := range entries {
				if entry.Block < block {
					kept = append(kept, entry)
				}
			}
			if err := c.writeHistory(propertyID, kept); err != nil {
				return err
			}
			c.log.Info("rolled back fee cache", "property", propertyID, "block", block, "entries", len(kept))
		}
	}
	return nil
}

// DumpAll writes every property's cache history to w in the readable
// delimiter format.
func (c *FeeCache) DumpAll(w io.Writer) error {
	if c == nil || c.db == nil {
		return ErrNotInitialised
	}
	count := 0
	return c.db.Iterate(nil, func(key, value []byte) bool {
		count++
		entries, _, err := decodeCacheHistory(value)
		if err != nil {
			fmt.Fprintf(w, "entry #%8d= %s:<malformed: %v>\n", count, key, err)
			return true
		}
		fmt.Fprintf(w, "entry #%8d= %s:%s\n", count, key, encodeLegacyCacheHistory(entries))
		return true
	})
}

// Stats reports the read and write counts since the cache was opened.
func (c *FeeCache) Stats() (reads, writes uint64) {
	if c == nil {
		return 0, 0
	}
	return c.reads, c.writes
}

// rewriteEntry replaces any existing entry at the given block and appends
// the new cumulative amount, preserving the one-entry-per-height invariant.
func (c *FeeCache) rewriteEntry(propertyID uint32, block int64, amount int64) error {
	entries, err := c.GetCacheHistory(propertyID)
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Block == block {
			continue // older entry for the same block, superseded
		}
		kept = append(kept, entry)
	}
	kept = append(kept, CacheEntry{Block: block, Amount: amount})
	sortCacheEntries(kept)
	return c.writeHistory(propertyID, kept)
}

func (c *FeeCache) writeHistory(propertyID uint32, entries []CacheEntry) error {
	encoded, err := encodeCacheHistory(entries)
	if err != nil {
		return err
	}
	if err := c.db.Put(cacheKey(propertyID), encoded); err != nil {
		return fmt.Errorf("fees: store cache history for property %d: %w", propertyID, err)
	}
	c.writes++
	metrics.Fees().IncCacheWrite()
	current := int64(0)
	if len(entries) > 0 {
		current = entries[len(entries)-1].Amount
	}
	metrics.Fees().SetCachedAmount(propertyID, current)
	return nil
}
