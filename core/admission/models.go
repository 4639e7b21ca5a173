package admission

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/qlass/backend/core"
)

type (
	Stage  string
	Status string
)

// Stages
const (
	StageVerification Stage = "verification"
	StageApproval     Stage = "approval"
	StageEnrollment   Stage = "enrollment"
)

// Statuses
const (
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusApproved   Status = "approved"
	StatusEnrolled   Status = "enrolled"
	StatusRejected   Status = "rejected"
	StatusWaitlisted Status = "waitlisted"
)

// NotStarted is the stage label of an application whose stages are all pending.
const NotStarted = "not started"

var (
	// AllStages in pipeline order.
	AllStages = []Stage{StageVerification, StageApproval, StageEnrollment}

	stageStatuses = map[Stage][]Status{
		StageVerification: {StatusPending, StatusVerified, StatusRejected, StatusWaitlisted},
		StageApproval:     {StatusPending, StatusApproved, StatusRejected, StatusWaitlisted},
		StageEnrollment:   {StatusPending, StatusEnrolled, StatusRejected},
	}

	stageSuccess = map[Stage]Status{
		StageVerification: StatusVerified,
		StageApproval:     StatusApproved,
		StageEnrollment:   StatusEnrolled,
	}
)

func (s Stage) Valid() bool {
	_, ok := stageStatuses[s]
	return ok
}

// Statuses returns the statuses s accepts.
func (s Stage) Statuses() []Status {
	return append([]Status(nil), stageStatuses[s]...)
}

func (s Stage) Allows(status Status) bool {
	for _, st := range stageStatuses[s] {
		if st == status {
			return true
		}
	}
	return false
}

// Success is the status that opens the gate of the next stage.
func (s Stage) Success() Status {
	return stageSuccess[s]
}

// Gate returns the stage that must have reached its success status before s can be set.
func (s Stage) Gate() (Stage, bool) {
	switch s {
	case StageApproval:
		return StageVerification, true
	case StageEnrollment:
		return StageApproval, true
	}
	return "", false
}

// Downstream returns the stages after s, in pipeline order.
func (s Stage) Downstream() []Stage {
	for i, st := range AllStages {
		if st == s {
			return AllStages[i+1:]
		}
	}
	return nil
}

func (s Stage) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

func (s Status) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

type StageStatuses struct {
	Verification Status `json:"verification"`
	Approval     Status `json:"approval"`
	Enrollment   Status `json:"enrollment"`
}

func PendingStages() StageStatuses {
	return StageStatuses{
		Verification: StatusPending,
		Approval:     StatusPending,
		Enrollment:   StatusPending,
	}
}

func (ss StageStatuses) Get(stage Stage) Status {
	switch stage {
	case StageVerification:
		return ss.Verification
	case StageApproval:
		return ss.Approval
	case StageEnrollment:
		return ss.Enrollment
	}
	return ""
}

func (ss *StageStatuses) set(stage Stage, status Status) {
	switch stage {
	case StageVerification:
		ss.Verification = status
	case StageApproval:
		ss.Approval = status
	case StageEnrollment:
		ss.Enrollment = status
	}
}

// Progress is the pipeline completion percentage: 0, 33, 66 or 100.
func (ss StageStatuses) Progress() int {
	var progress int
	if ss.Verification == StatusVerified {
		progress = 33
	}
	if ss.Approval == StatusApproved {
		progress = 66
	}
	if ss.Enrollment == StatusEnrolled {
		progress = 100
	}
	return progress
}

// Timestamps holds a human-readable time per stage; null until the stage is set.
type Timestamps struct {
	Verification null.String `json:"verification"`
	Approval     null.String `json:"approval"`
	Enrollment   null.String `json:"enrollment"`
}

func (ts Timestamps) Get(stage Stage) null.String {
	switch stage {
	case StageVerification:
		return ts.Verification
	case StageApproval:
		return ts.Approval
	case StageEnrollment:
		return ts.Enrollment
	}
	return null.String{}
}

func (ts *Timestamps) set(stage Stage, tstamp null.String) {
	switch stage {
	case StageVerification:
		ts.Verification = tstamp
	case StageApproval:
		ts.Approval = tstamp
	case StageEnrollment:
		ts.Enrollment = tstamp
	}
}

type Application struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Phone       string        `json:"phone"`
	Course      string        `json:"course"`
	SubmittedAt time.Time     `json:"submittedAt"` // UTC
	Stages      StageStatuses `json:"stages"`
	Timestamps  Timestamps    `json:"timestamps"`
}

// Label is the stage an application is displayed at.
type Label struct {
	Stage  string `json:"stage"`
	Status Status `json:"status"`
}

// CurrentStage returns the latest non-pending stage: enrollment, then approval, then verification.
func (a Application) CurrentStage() Label {
	for i := len(AllStages) - 1; i >= 0; i-- {
		stage := AllStages[i]
		if status := a.Stages.Get(stage); status != StatusPending {
			return Label{Stage: string(stage), Status: status}
		}
	}
	return Label{Stage: NotStarted, Status: StatusPending}
}

// Summary is the one-line status shown in the history list, eg. "Approval: waitlisted".
func (a Application) Summary() string {
	lbl := a.CurrentStage()
	if lbl.Stage == NotStarted {
		return "Pending"
	}
	return Stage(lbl.Stage).Title() + ": " + string(lbl.Status)
}

var stageNotes = map[Stage]map[Status]string{
	StageVerification: {
		StatusVerified:   "Documents verified by Admissions Officer",
		StatusRejected:   "Rejected at verification",
		StatusWaitlisted: "Waitlisted at verification",
	},
	StageApproval: {
		StatusApproved:   "Approved by Dean/Principal",
		StatusRejected:   "Rejected at approval",
		StatusWaitlisted: "Waitlisted at approval",
	},
	StageEnrollment: {
		StatusEnrolled: "Enrollment completed by Registrar",
		StatusRejected: "Rejected at enrollment",
	},
}

// StageNote describes where the application stands at stage, suffixed with the stage's timestamp if any.
func (a Application) StageNote(stage Stage) string {
	status := a.Stages.Get(stage)

	var note string
	if status == StatusPending {
		switch stage {
		case StageVerification:
			note = "Submitted: awaiting verification"
		case StageApproval:
			note = "Requires verified status"
			if a.Stages.Verification == StatusVerified {
				note = "Ready for Dean/Principal review"
			}
		case StageEnrollment:
			note = "Requires approved status"
			if a.Stages.Approval == StatusApproved {
				note = "Ready for Registrar enrollment"
			}
		}
	} else if n, ok := stageNotes[stage][status]; ok {
		note = n
	} else {
		note = stage.Title() + " status"
	}

	if ts := a.Timestamps.Get(stage); ts.Valid && ts.String != "" {
		note += " (" + ts.String + ")"
	}
	return note
}

// NewApplication contains information needed to submit a new Application.
type NewApplication struct {
	Name   string `json:"name" validate:"notblank"`
	Email  string `json:"email" validate:"notblank"`
	Phone  string `json:"phone" validate:"notblank"`
	Course string `json:"course" validate:"notblank"`
}

func (na *NewApplication) Clean() {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email)
	na.Phone = core.CleanString(na.Phone)
	na.Course = core.CleanString(na.Course)
}

// StageTransition is a request to set Stage to Status on the active application.
type StageTransition struct {
	Stage  Stage  `json:"stage" validate:"required,stage"`
	Status Status `json:"status" validate:"required"`
}

type HistoryFilter struct {
	Search string `query:"search"`
	Course string `query:"course"`
}

func (hf *HistoryFilter) Clean() {
	hf.Search = core.CleanString(hf.Search)
	hf.Course = core.CleanString(hf.Course)
}

func (hf HistoryFilter) IsEmpty() bool {
	return hf.Search == "" && hf.Course == ""
}
