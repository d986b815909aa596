package deployment

import (
	"fmt"
	"math/big"
	"time"
)

// DefaultUnlockDelay is how far in the future the contract unlocks when no delay is configured.
const DefaultUnlockDelay = time.Hour

// Clock returns the current time.
type Clock func() time.Time

// UnlockTime returns now plus delay as a Unix timestamp in whole seconds. The delay is truncated
// to seconds and must be at least one second, so the result is always after now.
func UnlockTime(now time.Time, delay time.Duration) (*big.Int, error) {
	seconds := int64(delay / time.Second)
	if seconds <= 0 {
		return nil, fmt.Errorf("unlock delay must be at least 1s, got %s", delay)
	}

	return big.NewInt(now.Unix() + seconds), nil
}
