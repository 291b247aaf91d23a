package fees

import "fmt"

// Ecosystem identifiers. Properties are partitioned into a main range and a
// test range; the test range starts at a fixed offset so the two never mix.
const (
	EcosystemMain uint8 = 1
	EcosystemTest uint8 = 2
)

const (
	// PropertyIDMainReference is the main ecosystem's native property. Fee
	// distributions for main-ecosystem tokens are shared across its holders.
	PropertyIDMainReference uint32 = 1
	// PropertyIDTestReference is the test ecosystem's reference property.
	PropertyIDTestReference uint32 = 2
	// TestEcosystemFirstPropertyID is the first issuable property id in the
	// test ecosystem.
	TestEcosystemFirstPropertyID uint32 = 0x80000003
)

// IsTestEcosystemProperty reports whether the property belongs to the test
// ecosystem.
func IsTestEcosystemProperty(propertyID uint32) bool {
	return propertyID == PropertyIDTestReference || propertyID >= TestEcosystemFirstPropertyID
}

// ReferenceProperty returns the ecosystem reference property whose holders
// receive fee distributions for the given property.
func ReferenceProperty(propertyID uint32) uint32 {
	if IsTestEcosystemProperty(propertyID) {
		return PropertyIDTestReference
	}
	return PropertyIDMainReference
}

// firstPropertyID returns the lowest issuable property id for an ecosystem.
func firstPropertyID(ecosystem uint8) uint32 {
	if ecosystem == EcosystemTest {
		return TestEcosystemFirstPropertyID
	}
	return PropertyIDMainReference
}

// cacheKey formats a property id as the fee cache table key. The fixed width
// keeps lexicographic iteration order aligned with numeric order.
func cacheKey(propertyID uint32) []byte {
	return []byte(fmt.Sprintf("%010d", propertyID))
}

// Receiver is one recipient of a fee distribution.
type Receiver struct {
	Amount  int64
	Address string
}

// SupplySource reports the current circulating supply of a property.
type SupplySource interface {
	TotalSupply(propertyID uint32) (int64, error)
}

// SnapshotDistributor computes the pro-rata shares of an amount across the
// current holders of a reference property. The returned shares must sum to at
// most amount; allocation rounding is the distributor's responsibility.
type SnapshotDistributor interface {
	Receivers(purpose string, referencePropertyID uint32, amount int64) ([]Receiver, error)
}

// BalanceLedger credits fee payouts into the global balance ledger. The
// implementation owns whatever locking its balance table requires; FeeCache
// performs the whole credit loop of a distribution as one uninterrupted
// sequence under the caller's single-writer contract.
type BalanceLedger interface {
	Credit(addr string, propertyID uint32, amount int64) error
}

// PropertyRegistry enumerates the issued property id range per ecosystem.
type PropertyRegistry interface {
	// NextPropertyID returns the id the next issued property in the
	// ecosystem would receive, i.e. one past the highest existing id.
	NextPropertyID(ecosystem uint8) uint32
}
