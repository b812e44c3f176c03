package httpapi

import (
	"github.com/aretw0/introspection"
)

// storeState returns the store's introspection state, or just its component
// type when it exposes nothing more.
func storeState(store any) any {
	if in, ok := store.(introspection.Introspectable); ok {
		return in.State()
	}
	if comp, ok := store.(introspection.Component); ok {
		return map[string]string{"type": comp.ComponentType()}
	}
	return nil
}
