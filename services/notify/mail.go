// Package notifysvc turns admissions events into applicant emails and log lines.
package notifysvc

import (
	"net/mail"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
)

// Email templates
const (
	tmplApplicationReceived = "application_received"
	tmplStageChanged        = "stage_changed"
)

type mailData struct {
	ID     string
	Name   string
	Course string
	Stage  string
	Status string
	Note   string
}

// MailNotifier emails applicants when their application is received and whenever a stage changes.
type MailNotifier struct {
	mailSvc core.EmailService
}

var _ admission.Notifier = (*MailNotifier)(nil)

func NewMailNotifier(mailSvc core.EmailService) *MailNotifier {
	return &MailNotifier{mailSvc: mailSvc}
}

func (n *MailNotifier) Notify(ev admission.Event) {
	app := ev.Application
	if app.Email == "" {
		return
	}

	var msg *core.EmailMessage
	switch ev.Kind {
	case admission.EventSubmitted:
		msg = &core.EmailMessage{
			Subject:      "Application received: " + app.ID,
			TemplateName: tmplApplicationReceived,
			TemplateData: newMailData(app, ""),
		}
	case admission.EventTransitioned:
		msg = &core.EmailMessage{
			Subject:      "Application update: " + app.ID,
			TemplateName: tmplStageChanged,
			TemplateData: newMailData(app, ev.Stage),
		}
	default:
		return
	}
	msg.To = []mail.Address{{Name: app.Name, Address: app.Email}}
	n.mailSvc.SendMessages(msg)
}

func newMailData(app admission.Application, stage admission.Stage) mailData {
	data := mailData{ID: app.ID, Name: app.Name, Course: app.Course}
	if stage != "" {
		data.Stage = stage.Title()
		data.Status = app.Stages.Get(stage).Title()
		data.Note = app.StageNote(stage)
	}
	return data
}
