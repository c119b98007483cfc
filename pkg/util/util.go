package util

import (
	"fmt"
	"time"
)

// HzString renders a frequency for log output.
func HzString(hz float64) string {
	switch {
	case hz >= 1e6:
		return fmt.Sprintf("%0.4f MHz", hz/1e6)
	case hz >= 1e3:
		return fmt.Sprintf("%0.3f kHz", hz/1e3)
	default:
		return fmt.Sprintf("%0.1f Hz", hz)
	}
}

// TimeOperationMicroseconds runs op and reports how long it took.
func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}
