package fees

import (
	"testing"

	"github.com/stretchr/testify/require"

	"feeledger/storage"
)

func newHistory(t *testing.T) *FeeHistory {
	t.Helper()
	return NewFeeHistory(storage.NewMemDB(), quietLogger())
}

func TestRecordAndGetDistribution(t *testing.T) {
	history := newHistory(t)

	id, err := history.RecordFeeDistribution(3, 500, 105, []Receiver{
		{Address: "addrB", Amount: 53},
		{Address: "addrA", Amount: 52},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	data, ok, err := history.GetDistributionData(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DistributionData{SequenceID: 1, PropertyID: 3, Block: 500, Total: 105}, data)

	recipients, err := history.GetFeeDistribution(id)
	require.NoError(t, err)
	require.Equal(t, []Receiver{
		{Address: "addrA", Amount: 52},
		{Address: "addrB", Amount: 53},
	}, recipients)
}

func TestGetDistributionMissing(t *testing.T) {
	history := newHistory(t)

	_, ok, err := history.GetDistributionData(42)
	require.NoError(t, err)
	require.False(t, ok)

	recipients, err := history.GetFeeDistribution(42)
	require.NoError(t, err)
	require.Empty(t, recipients)
}

func TestSequenceIDsAreDense(t *testing.T) {
	history := newHistory(t)

	for i := 1; i <= 3; i++ {
		id, err := history.RecordFeeDistribution(3, int64(100*i), 10, nil)
		require.NoError(t, err)
		require.EqualValues(t, i, id)
	}

	count, err := history.CountRecords()
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestRollBackHistoryInclusive(t *testing.T) {
	history := newHistory(t)

	_, err := history.RecordFeeDistribution(3, 400, 10, nil)
	require.NoError(t, err)
	_, err = history.RecordFeeDistribution(5, 500, 20, nil)
	require.NoError(t, err)
	_, err = history.RecordFeeDistribution(3, 600, 30, nil)
	require.NoError(t, err)

	require.NoError(t, history.RollBackHistory(500))

	count, err := history.CountRecords()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The surviving record keeps its original sequence id.
	data, ok, err := history.GetDistributionData(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 400, data.Block)

	_, ok, err = history.GetDistributionData(2)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = history.GetDistributionData(3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSequenceIDsNeverReusedAfterRollback(t *testing.T) {
	history := newHistory(t)

	for i := 1; i <= 3; i++ {
		_, err := history.RecordFeeDistribution(3, int64(100*i), 10, nil)
		require.NoError(t, err)
	}
	require.NoError(t, history.RollBackHistory(200)) // deletes ids 2 and 3

	id, err := history.RecordFeeDistribution(3, 150, 10, nil)
	require.NoError(t, err)
	require.EqualValues(t, 4, id)

	ids, err := history.GetDistributionsForProperty(3)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 4}, ids)
}

func TestGetDistributionsForProperty(t *testing.T) {
	history := newHistory(t)

	_, err := history.RecordFeeDistribution(3, 100, 10, nil)
	require.NoError(t, err)
	_, err = history.RecordFeeDistribution(5, 110, 20, nil)
	require.NoError(t, err)
	_, err = history.RecordFeeDistribution(3, 120, 30, nil)
	require.NoError(t, err)

	ids, err := history.GetDistributionsForProperty(3)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, ids)

	ids, err = history.GetDistributionsForProperty(9)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestLegacyRecordsRemainReadable(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("1"), []byte("500:3:105:addrA=52,addrB=53")))
	history := NewFeeHistory(db, quietLogger())

	data, ok, err := history.GetDistributionData(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DistributionData{SequenceID: 1, PropertyID: 3, Block: 500, Total: 105}, data)

	// The counter seeds from the record count on first write after import.
	id, err := history.RecordFeeDistribution(5, 510, 7, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, id)
}

func TestMalformedRecordSkippedDuringScans(t *testing.T) {
	history := newHistory(t)

	_, err := history.RecordFeeDistribution(3, 100, 10, nil)
	require.NoError(t, err)
	require.NoError(t, history.db.Put([]byte("9"), []byte("only:three:fields")))

	ids, err := history.GetDistributionsForProperty(3)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids)

	_, ok, err := history.GetRecord(9)
	require.NoError(t, err)
	require.False(t, ok)

	// Rollback must not abort on the bad record either.
	require.NoError(t, history.RollBackHistory(1))
	count, err := history.CountRecords()
	require.NoError(t, err)
	require.Equal(t, 1, count) // only the malformed record remains
}
