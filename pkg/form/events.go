package form

import (
	"github.com/goliatone/go-formstate/pkg/fieldpath"
)

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventValue      EventKind = "value"
	EventTouched    EventKind = "touched"
	EventValidation EventKind = "validation"
	EventArray      EventKind = "array"
	EventRegister   EventKind = "register"
	EventReset      EventKind = "reset"
	EventDefaults   EventKind = "defaults"
	EventSubmit     EventKind = "submit"
)

// Event is delivered to subscribers after a mutation commits. Values and
// Status are snapshots taken at commit time. An empty Path marks a form-wide
// event.
type Event struct {
	Kind   EventKind
	Path   fieldpath.Path
	Values map[string]any
	Status Status
}

func (f *Form) eventLocked(kind EventKind, p fieldpath.Path) Event {
	return Event{
		Kind:   kind,
		Path:   fieldpath.Join(p),
		Values: f.store.Snapshot(),
		Status: f.statusLocked(),
	}
}

// emit must be called without holding f.mu.
func (f *Form) emit(ev Event) {
	if ev.Path.IsRoot() {
		f.events.Broadcast(ev)
		return
	}
	f.events.Publish(ev.Path, ev)
}
