package sandbox

import (
	"fmt"
	"sync/atomic"
	"time"
)

var seq int64

// randomSuffix names each throwaway container uniquely, the same way
// the teacher's dispatcher names agent sessions: a timestamp plus a
// per-process counter, since two checks can start in the same
// nanosecond under load.
func randomSuffix() string {
	n := atomic.AddInt64(&seq, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), n)
}
