package admission

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Snapshot is the persisted form of a Session.
type Snapshot struct {
	ActiveApplicationID null.String   `json:"activeApplicationId"`
	Applications        []Application `json:"applications"`
}

// Active returns the active application, if the snapshot names one that exists.
func (snap Snapshot) Active() (Application, bool) {
	if !snap.ActiveApplicationID.Valid {
		return Application{}, false
	}
	for _, app := range snap.Applications {
		if app.ID == snap.ActiveApplicationID.String {
			return app, true
		}
	}
	return Application{}, false
}

// MarshalSnapshot serializes snap. A nil applications list is written as [].
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	if snap.Applications == nil {
		snap.Applications = []Application{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling snapshot")
	}
	return data, nil
}

// LoadSnapshot deserializes data written by MarshalSnapshot, or by older versions of it.
//
// Decoding is lenient: missing or wrongly typed fields get their defaults, unknown statuses become pending,
// gating violations are repaired, entries without an id (or with an already seen id) are dropped,
// and an active id that matches no application resolves to no selection.
// Only data that is not a JSON object at all yields ErrMalformedSnapshot.
func LoadSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if len(bytes.TrimSpace(data)) == 0 {
		return snap, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return snap, errors.WithMessage(ErrMalformedSnapshot, errorString(err))
	}

	var rawApps []json.RawMessage
	if raw, ok := top["applications"]; ok {
		_ = json.Unmarshal(raw, &rawApps) // not a list: no applications
	}
	seen := make(map[string]bool, len(rawApps))
	snap.Applications = make([]Application, 0, len(rawApps))
	for _, raw := range rawApps {
		app, ok := decodeApplication(raw)
		if !ok || seen[app.ID] {
			continue
		}
		seen[app.ID] = true
		snap.Applications = append(snap.Applications, app)
	}

	if activeID := decodeActiveID(top); activeID != "" && seen[activeID] {
		snap.ActiveApplicationID = null.StringFrom(activeID)
	}
	return snap, nil
}

// decodeActiveID reads "activeApplicationId", falling back to the legacy `"application": {"id": ...}` form.
func decodeActiveID(top map[string]json.RawMessage) string {
	if id := rawString(top["activeApplicationId"]); id != "" {
		return id
	}
	var legacy map[string]json.RawMessage
	if raw, ok := top["application"]; ok && json.Unmarshal(raw, &legacy) == nil {
		return rawString(legacy["id"])
	}
	return ""
}

func decodeApplication(raw json.RawMessage) (Application, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Application{}, false
	}
	app := Application{
		ID:     rawString(fields["id"]),
		Name:   rawString(fields["name"]),
		Email:  rawString(fields["email"]),
		Phone:  rawString(fields["phone"]),
		Course: rawString(fields["course"]),
	}
	if app.ID == "" {
		return Application{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, rawString(fields["submittedAt"])); err == nil {
		app.SubmittedAt = t.UTC()
	}

	var stages, tstamps map[string]json.RawMessage
	_ = json.Unmarshal(fields["stages"], &stages)
	_ = json.Unmarshal(fields["timestamps"], &tstamps)
	for _, stage := range AllStages {
		app.Stages.set(stage, Status(rawString(stages[string(stage)])))
		if ts := rawString(tstamps[string(stage)]); ts != "" {
			app.Timestamps.set(stage, null.StringFrom(ts))
		}
	}
	app.normalize()
	return app, true
}

// rawString returns raw as a string, or "" if raw is missing, null or not a JSON string.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func errorString(err error) string {
	if err == nil {
		return "not a JSON object"
	}
	return err.Error()
}
