package projection

import (
	"fmt"
	"sort"
)

// Registry maps event types to the projectors that consume them.
//
// Registration is explicit; there is no scanning or discovery. The registry
// is populated during engine construction and is not safe for concurrent
// mutation thereafter.
type Registry struct {
	entries map[string]*registryEntry
}

type registryEntry struct {
	handler Handler

	// eventTypes is the set of event types the handler consumes. A nil set
	// means the handler consumes every event.
	eventTypes map[string]struct{}
}

// Register adds h to the registry.
//
// If eventTypes are given the handler is only presented with events of those
// types; otherwise it is presented with every event.
//
// It panics if a handler with the same name is already registered, or if the
// handler's name is empty.
func (r *Registry) Register(h Handler, eventTypes ...string) {
	n := h.Name()

	if n == "" {
		panic("projection handler has an empty name")
	}

	if _, ok := r.entries[n]; ok {
		panic(fmt.Sprintf(
			"a projection handler named %s is already registered",
			n,
		))
	}

	if r.entries == nil {
		r.entries = map[string]*registryEntry{}
	}

	e := &registryEntry{handler: h}

	if len(eventTypes) != 0 {
		e.eventTypes = map[string]struct{}{}
		for _, t := range eventTypes {
			e.eventTypes[t] = struct{}{}
		}
	}

	r.entries[n] = e
}

// Get returns the handler with the given name.
func (r *Registry) Get(name string) (Handler, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}

	return e.handler, true
}

// EventTypes returns the event types consumed by the named handler, sorted.
// A nil result means the handler consumes every event.
func (r *Registry) EventTypes(name string) []string {
	e, ok := r.entries[name]
	if !ok || e.eventTypes == nil {
		return nil
	}

	types := make([]string, 0, len(e.eventTypes))
	for t := range e.eventTypes {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

// Handlers returns the registered handlers, ordered by name.
func (r *Registry) Handlers() []Handler {
	handlers := make([]Handler, 0, len(r.entries))

	for _, e := range r.entries {
		handlers = append(handlers, e.handler)
	}

	sortHandlers(handlers)

	return handlers
}

// HandlersFor returns the handlers that consume the given event type,
// ordered by name.
func (r *Registry) HandlersFor(eventType string) []Handler {
	var handlers []Handler

	for _, e := range r.entries {
		if e.eventTypes != nil {
			if _, ok := e.eventTypes[eventType]; !ok {
				continue
			}
		}

		handlers = append(handlers, e.handler)
	}

	sortHandlers(handlers)

	return handlers
}

func sortHandlers(handlers []Handler) {
	sort.Slice(handlers, func(i, j int) bool {
		return handlers[i].Name() < handlers[j].Name()
	})
}
