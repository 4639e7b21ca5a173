package admission

type EventKind string

// Events
const (
	EventSubmitted         EventKind = "submitted"
	EventTransitioned      EventKind = "transitioned"
	EventSelected          EventKind = "selected"
	EventCleared           EventKind = "cleared"
	EventReset             EventKind = "reset"
	EventResumed           EventKind = "resumed"
	EventRejected          EventKind = "rejected" // an operation failed; Code says why
	EventPersistenceFailed EventKind = "persistence_failed"
)

// Event is emitted by a Session after every operation.
// Application is a copy of the application the event is about, if any.
type Event struct {
	Kind          EventKind
	ApplicationID string
	Stage         Stage
	Status        Status
	Code          string
	Err           error
	Application   Application
}

// Notifier is any sink interested in Session events (UI refresh, applicant emails, logs...).
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a func to a Notifier.
type NotifierFunc func(ev Event)

func (fn NotifierFunc) Notify(ev Event) { fn(ev) }

// Notifiers fans events out to every Notifier, in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ev Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ev)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// NopNotifier discards every event.
var NopNotifier Notifier = nopNotifier{}
