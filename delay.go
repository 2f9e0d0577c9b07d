package iris2sqlite

import (
	"math"
	"strconv"
)

// computeDelayMinutes derives the signed delay of an event. The explicit dc
// attribute is the most direct signal and may reflect adjustments that are
// not visible in the raw timestamps, so it takes precedence over the
// changed-planned difference. Returns nil when no delay can be determined.
func computeDelayMinutes(plannedKey, changedKey *int64, delta string) *int64 {
	if delta != "" {
		if n, err := strconv.ParseInt(delta, 10, 64); err == nil {
			return &n
		}
	}

	if plannedKey == nil || changedKey == nil {
		return nil
	}
	planned, err := timeKeyTime(*plannedKey)
	if err != nil {
		return nil
	}
	changed, err := timeKeyTime(*changedKey)
	if err != nil {
		return nil
	}

	minutes := int64(math.Round(changed.Sub(planned).Minutes()))
	return &minutes
}
