package admission

import "github.com/volatiletech/null/v8"

// checkGate returns a *GateError when the stage gating stage has not reached its success status.
func (a Application) checkGate(stage Stage) error {
	gate, ok := stage.Gate()
	if !ok {
		return nil
	}
	if got := a.Stages.Get(gate); got != gate.Success() {
		return &GateError{Stage: stage, Gate: gate, Want: gate.Success(), Got: got}
	}
	return nil
}

// apply returns a copy of a with stage set to status and stamped with tstamp.
// Downstream stages are reset to pending, timestamps cleared, unless status is the stage's success.
// a is left untouched whether the transition is accepted or not.
func (a Application) apply(stage Stage, status Status, tstamp string) (Application, error) {
	if !stage.Valid() {
		return a, errUnknownStage(stage)
	}
	if !stage.Allows(status) {
		return a, errInvalidStatus(stage, status)
	}
	if err := a.checkGate(stage); err != nil {
		return a, err
	}

	a.Stages.set(stage, status)
	a.Timestamps.set(stage, null.StringFrom(tstamp))
	if status != stage.Success() {
		a.resetDownstream(stage)
	}
	return a, nil
}

func (a *Application) resetDownstream(stage Stage) {
	for _, down := range stage.Downstream() {
		a.Stages.set(down, StatusPending)
		a.Timestamps.set(down, null.String{})
	}
}

// normalize backfills missing or unknown statuses with pending and repairs gating violations
// by resetting every stage whose gate is not satisfied.
func (a *Application) normalize() {
	for _, stage := range AllStages {
		if !stage.Allows(a.Stages.Get(stage)) {
			a.Stages.set(stage, StatusPending)
		}
	}
	for _, stage := range AllStages {
		if a.Stages.Get(stage) != stage.Success() {
			a.resetDownstream(stage)
			break
		}
	}
}
