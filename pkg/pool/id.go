package pool

import (
	"fmt"
	"os"
	"sync/atomic"
)

// idCounter provides process-unique pool numbering.
var idCounter uint64

// generatePoolName builds the default pool identity string. The "AXN:SP:"
// prefix marks an Axion session pool; the remainder is unique within the
// process lifetime.
func generatePoolName() string {
	return fmt.Sprintf("AXN:SP:%d-%d", os.Getpid(), atomic.AddUint64(&idCounter, 1))
}
