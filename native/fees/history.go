package fees

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"feeledger/observability/metrics"
	"feeledger/storage"
)

// historyMetaSeqKey holds the monotonic sequence counter. It lives outside
// the decimal record key space so scans can skip it explicitly.
var historyMetaSeqKey = []byte("meta/seq")

// DistributionData summarises one fee distribution without its recipient set.
type DistributionData struct {
	SequenceID uint64
	PropertyID uint32
	Block      int64
	Total      int64
}

// FeeHistory is the append-only ledger of completed fee distributions,
// keyed by a dense decimal sequence id. Records are immutable once written;
// the only mutation is wholesale deletion during a reorg rollback.
type FeeHistory struct {
	db     storage.Database
	log    *slog.Logger
	reads  uint64
	writes uint64
}

// NewFeeHistory constructs a fee history ledger over the supplied table.
func NewFeeHistory(db storage.Database, log *slog.Logger) *FeeHistory {
	if log == nil {
		log = slog.Default()
	}
	return &FeeHistory{db: db, log: log.With("component", "feehistory")}
}

func historyKey(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

// nextSequenceID advances the persisted sequence counter and returns the id
// for the record about to be written. Ids are never reused: a rollback that
// deletes records does not rewind the counter, so replayed distributions get
// fresh ids. Legacy databases without a counter are seeded from the record
// count on first use.
func (h *FeeHistory) nextSequenceID() (uint64, error) {
	var last uint64
	data, err := h.db.Get(historyMetaSeqKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		count, countErr := h.CountRecords()
		if countErr != nil {
			return 0, countErr
		}
		last = uint64(count)
	case err != nil:
		return 0, fmt.Errorf("fees: load sequence counter: %w", err)
	default:
		if len(data) != 8 {
			return 0, fmt.Errorf("fees: sequence counter has %d bytes, want 8", len(data))
		}
		last = binary.BigEndian.Uint64(data)
	}
	next := last + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := h.db.Put(historyMetaSeqKey, buf); err != nil {
		return 0, fmt.Errorf("fees: store sequence counter: %w", err)
	}
	return next, nil
}

// RecordFeeDistribution writes a new distribution record and returns its
// sequence id. Recipients are stored sorted by address.
func (h *FeeHistory) RecordFeeDistribution(propertyID uint32, block int64, total int64, recipients []Receiver) (uint64, error) {
	if h == nil || h.db == nil {
		return 0, ErrNotInitialised
	}
	id, err := h.nextSequenceID()
	if err != nil {
		return 0, err
	}
	rec := &Record{
		Block:      block,
		PropertyID: propertyID,
		Total:      total,
		Recipients: sortedReceivers(recipients),
	}
	encoded, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := h.db.Put(historyKey(id), encoded); err != nil {
		return 0, fmt.Errorf("fees: store distribution %d: %w", id, err)
	}
	h.writes++
	metrics.Fees().IncHistoryWrite()
	h.log.Debug("recorded fee distribution",
		"id", id, "property", propertyID, "block", block, "total", total, "recipients", len(rec.Recipients))
	return id, nil
}

// GetRecord loads a full distribution record. A missing id or a malformed
// stored value reports not-found; malformed values are logged, never fatal.
func (h *FeeHistory) GetRecord(id uint64) (*Record, bool, error) {
	if h == nil || h.db == nil {
		return nil, false, ErrNotInitialised
	}
	data, err := h.db.Get(historyKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fees: load distribution %d: %w", id, err)
	}
	h.reads++
	metrics.Fees().IncHistoryRead()
	rec, malformed, err := decodeRecord(data)
	if err != nil {
		h.log.Error("skipping malformed fee history record", "id", id, "error", err)
		metrics.Fees().IncMalformedRecord("feehistory")
		return nil, false, nil
	}
	h.logMalformedItems(id, malformed)
	return rec, true, nil
}

// GetDistributionData returns the property, block and total of a recorded
// distribution.
func (h *FeeHistory) GetDistributionData(id uint64) (DistributionData, bool, error) {
	rec, ok, err := h.GetRecord(id)
	if err != nil || !ok {
		return DistributionData{}, false, err
	}
	return DistributionData{
		SequenceID: id,
		PropertyID: rec.PropertyID,
		Block:      rec.Block,
		Total:      rec.Total,
	}, true, nil
}

// GetFeeDistribution returns the recipient set of a recorded distribution,
// or an empty set when the id is unknown or the record is malformed.
func (h *FeeHistory) GetFeeDistribution(id uint64) ([]Receiver, error) {
	rec, ok, err := h.GetRecord(id)
	if err != nil || !ok {
		return nil, err
	}
	return append([]Receiver(nil), rec.Recipients...), nil
}

// GetDistributionsForProperty scans the ledger for distributions of the
// given property and returns their sequence ids in ascending order.
func (h *FeeHistory) GetDistributionsForProperty(propertyID uint32) ([]uint64, error) {
	if h == nil || h.db == nil {
		return nil, ErrNotInitialised
	}
	var ids []uint64
	err := h.scan(func(id uint64, rec *Record) bool {
		if rec.PropertyID == propertyID {
			ids = append(ids, id)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CountRecords counts stored distribution records with a full scan. The
// underlying store offers no cheaper count, and distributions are rare
// enough that O(n) is acceptable.
func (h *FeeHistory) CountRecords() (int, error) {
	if h == nil || h.db == nil {
		return 0, ErrNotInitialised
	}
	count := 0
	err := h.db.Iterate(nil, func(key, value []byte) bool {
		if bytes.Equal(key, historyMetaSeqKey) {
			return true
		}
		if _, parseErr := strconv.ParseUint(string(key), 10, 64); parseErr != nil {
			return true
		}
		count++
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("fees: count history records: %w", err)
	}
	return count, nil
}

// RollBackHistory deletes every record whose block height is >= block,
// inclusive. Sequence ids of surviving records are untouched and deleted ids
// are never reassigned.
func (h *FeeHistory) RollBackHistory(block int64) error {
	if h == nil || h.db == nil {
		return ErrNotInitialised
	}
	var stale []uint64
	err := h.scan(func(id uint64, rec *Record) bool {
		if rec.Block >= block {
			stale = append(stale, id)
		}
		return true
	})
	if err != nil {
		return err
	}
	for _, id := range stale {
		if err := h.db.Delete(historyKey(id)); err != nil {
			return fmt.Errorf("fees: delete distribution %d: %w", id, err)
		}
		h.log.Info("rolled back fee distribution", "id", id, "block", block)
	}
	return nil
}

// DumpAll writes every stored record to w in the readable delimiter format.
func (h *FeeHistory) DumpAll(w io.Writer) error {
	if h == nil || h.db == nil {
		return ErrNotInitialised
	}
	count := 0
	return h.db.Iterate(nil, func(key, value []byte) bool {
		if bytes.Equal(key, historyMetaSeqKey) {
			return true
		}
		count++
		rec, _, err := decodeRecord(value)
		if err != nil {
			fmt.Fprintf(w, "entry #%8d= %s-<malformed: %v>\n", count, key, err)
			return true
		}
		fmt.Fprintf(w, "entry #%8d= %s-%s\n", count, key, encodeLegacyRecord(rec))
		return true
	})
}

// Stats reports the read and write counts since the ledger was opened.
func (h *FeeHistory) Stats() (reads, writes uint64) {
	if h == nil {
		return 0, 0
	}
	return h.reads, h.writes
}

// scan walks every well-formed record. Malformed records are logged and
// skipped; they never abort the scan.
func (h *FeeHistory) scan(fn func(id uint64, rec *Record) bool) error {
	err := h.db.Iterate(nil, func(key, value []byte) bool {
		if bytes.Equal(key, historyMetaSeqKey) {
			return true
		}
		id, parseErr := strconv.ParseUint(string(key), 10, 64)
		if parseErr != nil {
			return true
		}
		h.reads++
		metrics.Fees().IncHistoryRead()
		rec, malformed, decodeErr := decodeRecord(value)
		if decodeErr != nil {
			h.log.Error("skipping malformed fee history record", "id", id, "error", decodeErr)
			metrics.Fees().IncMalformedRecord("feehistory")
			return true
		}
		h.logMalformedItems(id, malformed)
		return fn(id, rec)
	})
	if err != nil {
		return fmt.Errorf("fees: scan history: %w", err)
	}
	return nil
}

func (h *FeeHistory) logMalformedItems(id uint64, malformed []string) {
	for _, item := range malformed {
		h.log.Error("skipping malformed fee history recipient", "id", id, "raw", item)
		metrics.Fees().IncMalformedRecord("feehistory")
	}
}
