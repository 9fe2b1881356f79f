// Package fileutil holds filesystem helpers shared by the intake watcher.
package fileutil

import (
	"context"
	"os"
	"time"
)

var statFile = os.Stat

// IsStable samples the size of path every interval and reports whether it
// stopped changing. The counter resets whenever the size changes or is zero
// and the file is stable once required consecutive identical non-zero
// readings were seen. It gives up after 2*required samples, or as soon as the
// file disappears or cannot be read. A cancelled ctx aborts the wait and
// returns ctx.Err().
func IsStable(ctx context.Context, path string, required int, interval time.Duration) (bool, error) {
	if required < 1 {
		required = 1
	}

	var (
		prev   int64 = -1
		stable int
	)
	maxSamples := 2 * required

	for i := 0; i < maxSamples; i++ {
		info, err := statFile(path)
		if err != nil || !info.Mode().IsRegular() {
			return false, nil
		}

		size := info.Size()
		if size == 0 || size != prev {
			stable = 0
		} else {
			stable++
		}
		prev = size

		if stable >= required {
			return true, nil
		}
		if i == maxSamples-1 {
			break
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
	return false, nil
}
