package axisdata

import (
	"fmt"
	"os"
	"sync"
)

// uniqueNames is the process-wide unique-name counter and dedup
// registry, one of the few pieces of shared mutable process state
// (along with the inefficient-action handler in layout.go), each
// behind its own lock.
var uniqueNames = struct {
	mu       sync.Mutex
	counter  uint64
	seen     map[string]struct{}
	pid      int
}{seen: make(map[string]struct{}), pid: os.Getpid()}

// UniqueName returns a name of the form "<base>#<pid>.<counter>" that
// has never been returned before by this process, registering it in
// the dedup registry so a caller-supplied name colliding with a
// previously generated one can be detected via RegisterName.
func UniqueName(base string) string {
	uniqueNames.mu.Lock()
	defer uniqueNames.mu.Unlock()
	for {
		uniqueNames.counter++
		name := fmt.Sprintf("%s#%d.%d", base, uniqueNames.pid, uniqueNames.counter)
		if _, dup := uniqueNames.seen[name]; dup {
			continue
		}
		uniqueNames.seen[name] = struct{}{}
		return name
	}
}

// RegisterName records name in the dedup registry so that future
// UniqueName calls never collide with it, and reports whether it was
// already registered.
func RegisterName(name string) (alreadyRegistered bool) {
	uniqueNames.mu.Lock()
	defer uniqueNames.mu.Unlock()
	_, alreadyRegistered = uniqueNames.seen[name]
	uniqueNames.seen[name] = struct{}{}
	return alreadyRegistered
}
