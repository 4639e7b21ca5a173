package notifysvc

import (
	"fmt"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
)

// LogNotifier writes a line per event; rejected operations are logged as warnings.
type LogNotifier struct {
	logger core.Logger
}

var _ admission.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger core.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ev admission.Event) {
	switch ev.Kind {
	case admission.EventRejected:
		n.logger.Warn(fmt.Sprintf("admissions: %s rejected (%s): %v", describe(ev), ev.Code, ev.Err))
	case admission.EventPersistenceFailed:
		// already reported by the session
	case admission.EventSubmitted, admission.EventTransitioned, admission.EventSelected, admission.EventResumed:
		n.logger.Debug(fmt.Sprintf("admissions: %s %s", ev.Kind, describe(ev)), ev.Application)
	default:
		n.logger.Debug(fmt.Sprintf("admissions: %s %s", ev.Kind, describe(ev)))
	}
}

func describe(ev admission.Event) string {
	s := ev.ApplicationID
	if s == "" {
		s = "-"
	}
	if ev.Stage != "" {
		s += fmt.Sprintf(" %s=%s", ev.Stage, ev.Status)
	}
	return s
}
