package channel

import "sync"

var (
	registryMu sync.Mutex
	registry   = map[string]*Channel{}
)

// register adds ch to the process-wide registry under ch.name, failing if
// the name is already taken.
func register(ch *Channel) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[ch.name]; exists {
		return ErrDuplicateChannelName
	}
	registry[ch.name] = ch
	return nil
}

// Lookup returns the registered channel by name, if any.
func Lookup(name string) (*Channel, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ch, ok := registry[name]
	return ch, ok
}

// ResetRegistry clears every registered channel. It exists for tests that
// construct multiple channels under the same name across test functions;
// production code has no reason to call it.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]*Channel{}
}
