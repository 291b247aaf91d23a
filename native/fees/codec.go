package fees

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

// CacheEntry is one point of a property's fee cache history: the cumulative
// cached amount as of a block, not a delta.
type CacheEntry struct {
	Block  int64
	Amount int64
}

// Record is one completed fee distribution. Recipients are kept sorted by
// address; the sequence id is the table key and lives outside the record.
type Record struct {
	Block      int64
	PropertyID uint32
	Total      int64
	Recipients []Receiver
}

// Stored forms use unsigned fields because RLP has no signed integer
// encoding. Heights and amounts are non-negative by invariant.
type storedCacheEntry struct {
	Block  uint64
	Amount uint64
}

type storedRecipient struct {
	Address string
	Amount  uint64
}

type storedRecord struct {
	Block      uint64
	PropertyID uint32
	Total      uint64
	Recipients []storedRecipient
}

// The canonical persisted encoding is RLP. Databases written before the
// binary migration hold the comma/colon delimited text format; decoding
// falls back to it, keyed off the first byte: RLP lists start at 0xc0 while
// the text format always starts with an ASCII digit.
func isLegacyValue(data []byte) bool {
	return len(data) > 0 && data[0] < 0xc0
}

func encodeCacheHistory(entries []CacheEntry) ([]byte, error) {
	stored := make([]storedCacheEntry, len(entries))
	for i, entry := range entries {
		stored[i] = storedCacheEntry{Block: uint64(entry.Block), Amount: uint64(entry.Amount)}
	}
	return rlp.EncodeToBytes(stored)
}

// decodeCacheHistory parses a persisted cache history. Malformed legacy
// items are returned verbatim for the caller to log; they never abort the
// decode.
func decodeCacheHistory(data []byte) ([]CacheEntry, []string, error) {
	if len(data) == 0 {
		return nil, nil, nil
	}
	if isLegacyValue(data) {
		entries, malformed := parseLegacyCacheHistory(string(data))
		return entries, malformed, nil
	}
	var stored []storedCacheEntry
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("fees: decode cache history: %w", err)
	}
	entries := make([]CacheEntry, len(stored))
	for i, item := range stored {
		entries[i] = CacheEntry{Block: int64(item.Block), Amount: int64(item.Amount)}
	}
	sortCacheEntries(entries)
	return entries, nil, nil
}

// encodeLegacyCacheHistory renders the delimiter text format. Retained as an
// import-compatibility shim for pre-migration databases and diagnostics.
func encodeLegacyCacheHistory(entries []CacheEntry) []byte {
	parts := make([]string, len(entries))
	for i, entry := range entries {
		parts[i] = fmt.Sprintf("%d:%d", entry.Block, entry.Amount)
	}
	return []byte(strings.Join(parts, ","))
}

func parseLegacyCacheHistory(raw string) ([]CacheEntry, []string) {
	var entries []CacheEntry
	var malformed []string
	for _, item := range strings.Split(raw, ",") {
		if item == "" {
			continue
		}
		fields := strings.Split(item, ":")
		if len(fields) != 2 {
			malformed = append(malformed, item)
			continue
		}
		block, blockErr := strconv.ParseInt(fields[0], 10, 64)
		amount, amountErr := strconv.ParseInt(fields[1], 10, 64)
		if blockErr != nil || amountErr != nil {
			malformed = append(malformed, item)
			continue
		}
		entries = append(entries, CacheEntry{Block: block, Amount: amount})
	}
	sortCacheEntries(entries)
	return entries, malformed
}

func sortCacheEntries(entries []CacheEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Block < entries[j].Block })
}

func encodeRecord(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("fees: nil record")
	}
	recipients := sortedReceivers(rec.Recipients)
	stored := storedRecord{
		Block:      uint64(rec.Block),
		PropertyID: rec.PropertyID,
		Total:      uint64(rec.Total),
		Recipients: make([]storedRecipient, len(recipients)),
	}
	for i, r := range recipients {
		stored.Recipients[i] = storedRecipient{Address: r.Address, Amount: uint64(r.Amount)}
	}
	return rlp.EncodeToBytes(&stored)
}

// decodeRecord parses a persisted distribution record. A wrong field count in
// the legacy format is a record-level parse error; malformed legacy recipient
// items are skipped and returned for logging.
func decodeRecord(data []byte) (*Record, []string, error) {
	if len(data) == 0 {
		return nil, nil, errors.New("fees: empty history record")
	}
	if isLegacyValue(data) {
		return parseLegacyRecord(string(data))
	}
	var stored storedRecord
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("fees: decode history record: %w", err)
	}
	rec := &Record{
		Block:      int64(stored.Block),
		PropertyID: stored.PropertyID,
		Total:      int64(stored.Total),
		Recipients: make([]Receiver, len(stored.Recipients)),
	}
	for i, r := range stored.Recipients {
		rec.Recipients[i] = Receiver{Address: r.Address, Amount: int64(r.Amount)}
	}
	return rec, nil, nil
}

// encodeLegacyRecord renders the delimiter text format for a record.
func encodeLegacyRecord(rec *Record) []byte {
	recipients := sortedReceivers(rec.Recipients)
	parts := make([]string, len(recipients))
	for i, r := range recipients {
		parts[i] = fmt.Sprintf("%s=%d", r.Address, r.Amount)
	}
	return []byte(fmt.Sprintf("%d:%d:%d:%s", rec.Block, rec.PropertyID, rec.Total, strings.Join(parts, ",")))
}

func parseLegacyRecord(raw string) (*Record, []string, error) {
	fields := strings.Split(raw, ":")
	if len(fields) != 4 {
		return nil, nil, fmt.Errorf("fees: history record has %d fields, want 4", len(fields))
	}
	block, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("fees: history record block: %w", err)
	}
	propertyID, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("fees: history record property: %w", err)
	}
	total, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("fees: history record total: %w", err)
	}
	rec := &Record{Block: block, PropertyID: uint32(propertyID), Total: total}
	var malformed []string
	if fields[3] != "" {
		for _, item := range strings.Split(fields[3], ",") {
			if item == "" {
				continue
			}
			pair := strings.Split(item, "=")
			if len(pair) != 2 {
				malformed = append(malformed, item)
				continue
			}
			amount, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				malformed = append(malformed, item)
				continue
			}
			rec.Recipients = append(rec.Recipients, Receiver{Address: pair[0], Amount: amount})
		}
	}
	rec.Recipients = sortedReceivers(rec.Recipients)
	return rec, malformed, nil
}

func sortedReceivers(in []Receiver) []Receiver {
	out := append([]Receiver(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
