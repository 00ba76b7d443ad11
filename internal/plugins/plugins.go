// Package plugins lets callers register reverse-domain event types,
// custom reducers, and export formats without a process-wide
// singleton: a Registry is an explicit object the caller creates and
// queries, not a package-level var. internal/event and internal/reducer
// do not consult a Registry.
package plugins

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/provara-protocol/provara/internal/event"
)

// EventTypePlugin validates the payload of a reverse-domain event
// type the core schema in internal/event doesn't know about.
type EventTypePlugin interface {
	Name() string
	ValidatePayload(payload json.RawMessage) error
}

// ReducerPlugin folds a custom event type into its own derived state,
// independent of internal/reducer's canonical/local/contested buckets.
type ReducerPlugin interface {
	Name() string
	Reduce(events []*event.Event) (any, error)
}

// ExportPlugin writes vault data to a custom output format.
type ExportPlugin interface {
	Name() string
	Export(vaultPath, outputPath string) error
}

// reservedEventTypes are the core types plugins may never shadow.
var reservedEventTypes = map[string]bool{
	event.TypeGenesis:       true,
	event.TypeObservation:   true,
	event.TypeAssertion:     true,
	event.TypeAttestation:   true,
	event.TypeRetraction:    true,
	event.TypeKeyRevocation: true,
	event.TypeKeyPromotion:  true,
	event.TypeReducerEpoch:  true,
}

// Registry holds registered plugins. The zero value is not usable;
// build one with New. A Registry is not safe for concurrent
// registration, matching the single-goroutine bootstrap/config-load
// path it is used from; lookups after registration are read-only.
type Registry struct {
	eventTypes map[string]EventTypePlugin
	reducers   map[string]ReducerPlugin
	exports    map[string]ExportPlugin
}

// New builds an empty plugin registry.
func New() *Registry {
	return &Registry{
		eventTypes: make(map[string]EventTypePlugin),
		reducers:   make(map[string]ReducerPlugin),
		exports:    make(map[string]ExportPlugin),
	}
}

// RegisterEventType adds p, refusing a reserved core-type name or a
// collision with an already-registered plugin.
func (r *Registry) RegisterEventType(p EventTypePlugin) error {
	if reservedEventTypes[p.Name()] {
		return fmt.Errorf("plugins: event type %q is reserved for a core type", p.Name())
	}
	if _, exists := r.eventTypes[p.Name()]; exists {
		return fmt.Errorf("plugins: event type %q is already registered", p.Name())
	}
	r.eventTypes[p.Name()] = p
	return nil
}

// RegisterReducer adds p, refusing a name collision.
func (r *Registry) RegisterReducer(p ReducerPlugin) error {
	if _, exists := r.reducers[p.Name()]; exists {
		return fmt.Errorf("plugins: reducer %q is already registered", p.Name())
	}
	r.reducers[p.Name()] = p
	return nil
}

// RegisterExport adds p, refusing a name collision.
func (r *Registry) RegisterExport(p ExportPlugin) error {
	if _, exists := r.exports[p.Name()]; exists {
		return fmt.Errorf("plugins: export format %q is already registered", p.Name())
	}
	r.exports[p.Name()] = p
	return nil
}

// EventType returns the plugin registered for name, if any.
func (r *Registry) EventType(name string) (EventTypePlugin, bool) {
	p, ok := r.eventTypes[name]
	return p, ok
}

// Reducer returns the reducer plugin registered for name, if any.
func (r *Registry) Reducer(name string) (ReducerPlugin, bool) {
	p, ok := r.reducers[name]
	return p, ok
}

// Export returns the export plugin registered for name, if any.
func (r *Registry) Export(name string) (ExportPlugin, bool) {
	p, ok := r.exports[name]
	return p, ok
}

// EventTypeNames returns registered event-type plugin names, sorted.
func (r *Registry) EventTypeNames() []string {
	return sortedKeys(r.eventTypes)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidatePayload checks payload against a registered plugin's schema
// for eventType. An unregistered type is not an error here — the core
// reducer's unknown-type fallthrough handles it instead (counted, not
// folded).
func (r *Registry) ValidatePayload(eventType string, payload json.RawMessage) error {
	p, ok := r.eventTypes[eventType]
	if !ok {
		return nil
	}
	return p.ValidatePayload(payload)
}
