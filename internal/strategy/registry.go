package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownStrategy is returned when no factory is registered for an id.
var ErrUnknownStrategy = errors.New("unknown strategy")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register(LateEntryID, func(params json.RawMessage) (Strategy, error) {
		return NewLateEntry(params)
	})
	Register(TrendFollowingID, func(params json.RawMessage) (Strategy, error) {
		return NewTrendFollowing(params)
	})
	Register(MeanReversionID, func(params json.RawMessage) (Strategy, error) {
		return NewMeanReversion(params)
	})
}

// Register adds a strategy factory under an id, replacing any previous one.
func Register(id string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = factory
}

// New instantiates a registered strategy with the given JSON parameters.
func New(id string, params json.RawMessage) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", id, ErrUnknownStrategy)
	}
	return factory(params)
}

// List returns the registered strategy ids, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
