package events

// Event is a structured notification describing a committed state change.
type Event struct {
	Type       string
	Attributes map[string]string
}

// EventType returns the event's type tag, guarding against nil receivers so
// emitters can pass events through without checking.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

// Emitter broadcasts events to downstream subscribers (RPC streams, indexers,
// log sinks).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for components that expose events optionally.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}
