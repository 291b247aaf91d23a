package fees

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNotInitialised marks use of a store without a backing database.
	ErrNotInitialised = errors.New("fees: store not initialised")
	// ErrShortfall marks a distribution that did not pay out the full
	// cached amount. The snapshot distributor broke its contract and the
	// cache invariant can no longer be trusted.
	ErrShortfall = errors.New("fees: distribution shortfall")
)

// OverflowError reports an AddFee whose checked addition would push a fee
// cache past the signed 64-bit range. It is a fatal accounting fault: the
// caller owns the shutdown decision and is expected to call PurgeChainState
// before halting so the node cannot restart without a full reparse.
type OverflowError struct {
	PropertyID uint32
	Block      int64
	Current    int64
	Amount     int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("fees: cache overflow (block %d property %d current %d amount %d)",
		e.Block, e.PropertyID, e.Current, e.Amount)
}

// IsOverflow reports whether err is a fee cache overflow fault.
func IsOverflow(err error) bool {
	var overflow *OverflowError
	return errors.As(err, &overflow)
}

// PurgeChainState removes locally persisted chain state so a restarted node
// is forced into a full reprocess instead of resuming from corrupted
// balances. A missing directory is treated as already purged.
func PurgeChainState(dir string) error {
	if dir == "" {
		return errors.New("fees: chain state dir required")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("fees: stat chain state dir: %w", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("fees: purge chain state: %w", err)
	}
	return nil
}
