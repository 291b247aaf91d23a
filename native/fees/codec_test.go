package fees

import (
	"reflect"
	"testing"
)

func TestCacheHistoryRoundTrip(t *testing.T) {
	cases := [][]CacheEntry{
		nil,
		{{Block: 100, Amount: 50}},
		{{Block: 100, Amount: 50}, {Block: 105, Amount: 70}, {Block: 400000, Amount: 9223372036854775807}},
	}
	for _, entries := range cases {
		encoded, err := encodeCacheHistory(entries)
		if err != nil {
			t.Fatalf("encode cache history: %v", err)
		}
		decoded, malformed, err := decodeCacheHistory(encoded)
		if err != nil {
			t.Fatalf("decode cache history: %v", err)
		}
		if len(malformed) != 0 {
			t.Fatalf("expected no malformed items, got %v", malformed)
		}
		if len(decoded) != len(entries) {
			t.Fatalf("expected %d entries, got %d", len(entries), len(decoded))
		}
		for i := range entries {
			if decoded[i] != entries[i] {
				t.Fatalf("entry %d: expected %+v, got %+v", i, entries[i], decoded[i])
			}
		}
	}
}

func TestCacheHistoryLegacyRoundTrip(t *testing.T) {
	entries := []CacheEntry{{Block: 100, Amount: 50}, {Block: 105, Amount: 70}}
	encoded := encodeLegacyCacheHistory(entries)
	if string(encoded) != "100:50,105:70" {
		t.Fatalf("unexpected legacy encoding: %s", encoded)
	}
	decoded, malformed, err := decodeCacheHistory(encoded)
	if err != nil {
		t.Fatalf("decode legacy cache history: %v", err)
	}
	if len(malformed) != 0 {
		t.Fatalf("expected no malformed items, got %v", malformed)
	}
	if !reflect.DeepEqual(decoded, entries) {
		t.Fatalf("expected %+v, got %+v", entries, decoded)
	}
}

func TestCacheHistoryLegacyUnsortedAndMalformed(t *testing.T) {
	decoded, malformed, err := decodeCacheHistory([]byte("105:70,100:50,borked,1:2:3,"))
	if err != nil {
		t.Fatalf("decode legacy cache history: %v", err)
	}
	if len(malformed) != 2 {
		t.Fatalf("expected 2 malformed items, got %v", malformed)
	}
	want := []CacheEntry{{Block: 100, Amount: 50}, {Block: 105, Amount: 70}}
	if !reflect.DeepEqual(decoded, want) {
		t.Fatalf("expected sorted %+v, got %+v", want, decoded)
	}
}

func TestCacheHistoryEmptyValue(t *testing.T) {
	decoded, malformed, err := decodeCacheHistory(nil)
	if err != nil {
		t.Fatalf("decode empty cache history: %v", err)
	}
	if len(decoded) != 0 || len(malformed) != 0 {
		t.Fatalf("expected empty result, got %v / %v", decoded, malformed)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	cases := []*Record{
		{Block: 500, PropertyID: 3, Total: 0},
		{Block: 500, PropertyID: 3, Total: 105, Recipients: []Receiver{
			{Address: "addrB", Amount: 53},
			{Address: "addrA", Amount: 52},
		}},
	}
	for _, rec := range cases {
		encoded, err := encodeRecord(rec)
		if err != nil {
			t.Fatalf("encode record: %v", err)
		}
		decoded, malformed, err := decodeRecord(encoded)
		if err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if len(malformed) != 0 {
			t.Fatalf("expected no malformed items, got %v", malformed)
		}
		if decoded.Block != rec.Block || decoded.PropertyID != rec.PropertyID || decoded.Total != rec.Total {
			t.Fatalf("header mismatch: expected %+v, got %+v", rec, decoded)
		}
		want := sortedReceivers(rec.Recipients)
		if len(decoded.Recipients) != len(want) {
			t.Fatalf("expected %d recipients, got %d", len(want), len(decoded.Recipients))
		}
		for i := range want {
			if decoded.Recipients[i] != want[i] {
				t.Fatalf("recipient %d: expected %+v, got %+v", i, want[i], decoded.Recipients[i])
			}
		}
	}
}

func TestRecordLegacyRoundTrip(t *testing.T) {
	rec := &Record{Block: 500, PropertyID: 3, Total: 105, Recipients: []Receiver{
		{Address: "addrA", Amount: 52},
		{Address: "addrB", Amount: 53},
	}}
	encoded := encodeLegacyRecord(rec)
	if string(encoded) != "500:3:105:addrA=52,addrB=53" {
		t.Fatalf("unexpected legacy encoding: %s", encoded)
	}
	decoded, malformed, err := decodeRecord(encoded)
	if err != nil {
		t.Fatalf("decode legacy record: %v", err)
	}
	if len(malformed) != 0 {
		t.Fatalf("expected no malformed items, got %v", malformed)
	}
	if decoded.Block != 500 || decoded.PropertyID != 3 || decoded.Total != 105 {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if !reflect.DeepEqual(decoded.Recipients, rec.Recipients) {
		t.Fatalf("expected %+v, got %+v", rec.Recipients, decoded.Recipients)
	}
}

func TestRecordLegacyEmptyRecipients(t *testing.T) {
	decoded, malformed, err := decodeRecord([]byte("500:3:0:"))
	if err != nil {
		t.Fatalf("decode legacy record: %v", err)
	}
	if len(malformed) != 0 {
		t.Fatalf("expected no malformed items, got %v", malformed)
	}
	if len(decoded.Recipients) != 0 {
		t.Fatalf("expected no recipients, got %+v", decoded.Recipients)
	}
}

func TestRecordLegacyFieldCount(t *testing.T) {
	if _, _, err := decodeRecord([]byte("500:3:105")); err == nil {
		t.Fatal("expected field count error for 3-field record")
	}
	if _, _, err := decodeRecord([]byte("500:3:105:x:y")); err == nil {
		t.Fatal("expected field count error for 5-field record")
	}
}

func TestRecordLegacyMalformedRecipients(t *testing.T) {
	decoded, malformed, err := decodeRecord([]byte("500:3:105:addrA=52,borked,addrB=fifty"))
	if err != nil {
		t.Fatalf("decode legacy record: %v", err)
	}
	if len(malformed) != 2 {
		t.Fatalf("expected 2 malformed items, got %v", malformed)
	}
	want := []Receiver{{Address: "addrA", Amount: 52}}
	if !reflect.DeepEqual(decoded.Recipients, want) {
		t.Fatalf("expected %+v, got %+v", want, decoded.Recipients)
	}
}
