package admission

import (
	"context"
	"reflect"
	"regexp"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/storage/kvstore/inmemkv"
)

var idRegexp = regexp.MustCompile(`^APP-[0-9A-F]{6}$`)

func TestSession_Submit(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	// Scenario A
	app := submitApp(t, s, "Asha", "Grade 5")
	if !idRegexp.MatchString(app.ID) {
		t.Errorf("Submit() ID = %q, want APP-XXXXXX", app.ID)
	}
	if app.Stages != PendingStages() {
		t.Errorf("Submit() stages = %+v, want all pending", app.Stages)
	}
	if app.Timestamps != (Timestamps{}) {
		t.Errorf("Submit() timestamps = %+v, want all null", app.Timestamps)
	}
	if want := (Label{Stage: NotStarted, Status: StatusPending}); app.CurrentStage() != want {
		t.Errorf("CurrentStage() = %+v, want %+v", app.CurrentStage(), want)
	}
	if !app.SubmittedAt.Equal(testNow) {
		t.Errorf("Submit() submittedAt = %v, want %v", app.SubmittedAt, testNow)
	}
	if active, ok := s.Active(); !ok || active.ID != app.ID {
		t.Errorf("Active() = %v, %v; want %s", active.ID, ok, app.ID)
	}
	if got := s.events.last(); got.Kind != EventSubmitted || got.ApplicationID != app.ID {
		t.Errorf("last event = %+v, want submitted %s", got, app.ID)
	}

	// a second submission becomes active; the first one stays untouched
	second := submitApp(t, s, "Baraka", "Grade 6")
	if second.ID == app.ID {
		t.Fatalf("Submit() reused ID %s", app.ID)
	}
	if apps := s.Applications(); len(apps) != 2 || apps[0] != app || apps[1].ID != second.ID {
		t.Errorf("Applications() = %+v, want [%s %s]", apps, app.ID, second.ID)
	}
	if active, _ := s.Active(); active.ID != second.ID {
		t.Errorf("Active() = %s, want %s", active.ID, second.ID)
	}

	// persisted
	raw, err := s.store.Get(ctx, DefaultStorageKey)
	if err != nil {
		t.Fatalf("store.Get() failed: %v", err)
	}
	snap, err := LoadSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if len(snap.Applications) != 2 || snap.ActiveApplicationID.String != second.ID {
		t.Errorf("persisted snapshot = %+v", snap)
	}
}

func TestSession_Submit_validation(t *testing.T) {
	tests := []struct {
		name       string
		na         NewApplication
		wantFields []string
	}{
		{name: "empty", na: NewApplication{}, wantFields: []string{"name", "email", "phone", "course"}},
		{name: "blank name", na: NewApplication{Name: "   ", Email: "a@x.com", Phone: "999", Course: "Grade 5"}, wantFields: []string{"name"}},
		{name: "missing course", na: NewApplication{Name: "Asha", Email: "a@x.com", Phone: "999"}, wantFields: []string{"course"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t)
			_, err := s.Submit(context.Background(), tt.na)

			var vErr *core.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Submit() error = %v, want a validation error", err)
			}
			fields := make([]string, 0, len(vErr.Fields))
			for _, fe := range vErr.Fields {
				fields = append(fields, fe.Field)
			}
			if !reflect.DeepEqual(fields, tt.wantFields) {
				t.Errorf("Submit() error fields = %v, want %v", fields, tt.wantFields)
			}
			if len(s.Applications()) != 0 {
				t.Error("Submit() created an application")
			}
			if ev := s.events.last(); ev.Kind != EventRejected || ev.Code != CodeValidation {
				t.Errorf("last event = %+v, want rejected %s", ev, CodeValidation)
			}
		})
	}
}

func TestSession_Transition(t *testing.T) {
	s := newTestSession(t)
	app := submitApp(t, s, "Asha", "Grade 5")

	// Scenario B
	transitionApp(t, s, StageVerification, StatusVerified)
	transitionApp(t, s, StageApproval, StatusApproved)
	enrolled := transitionApp(t, s, StageEnrollment, StatusEnrolled)
	if want := (Label{Stage: "enrollment", Status: StatusEnrolled}); enrolled.CurrentStage() != want {
		t.Errorf("CurrentStage() = %+v, want %+v", enrolled.CurrentStage(), want)
	}
	if enrolled.Timestamps != stampedWith(testTstamp, testTstamp, testTstamp) {
		t.Errorf("timestamps = %+v, want all %q", enrolled.Timestamps, testTstamp)
	}
	if stored, _ := s.Get(app.ID); stored != enrolled {
		t.Errorf("Get() = %+v, want %+v", stored, enrolled)
	}
	checkInvariants(t, s.Applications()...)

	// Scenario C
	rejected := transitionApp(t, s, StageVerification, StatusRejected)
	if want := stagesOf(StatusRejected, StatusPending, StatusPending); rejected.Stages != want {
		t.Errorf("stages = %+v, want %+v", rejected.Stages, want)
	}
	if rejected.Timestamps != stampedWith(testTstamp, "", "") {
		t.Errorf("timestamps = %+v, want only verification", rejected.Timestamps)
	}
	if want := (Label{Stage: "verification", Status: StatusRejected}); rejected.CurrentStage() != want {
		t.Errorf("CurrentStage() = %+v, want %+v", rejected.CurrentStage(), want)
	}
	checkInvariants(t, s.Applications()...)

	ev := s.events.last()
	if ev.Kind != EventTransitioned || ev.Stage != StageVerification || ev.Status != StatusRejected || ev.ApplicationID != app.ID {
		t.Errorf("last event = %+v, want transitioned verification rejected", ev)
	}
}

func TestSession_Transition_errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no active application", func(t *testing.T) {
		s := newTestSession(t)
		_, err := s.Transition(ctx, StageTransition{Stage: StageVerification, Status: StatusVerified})
		if err != ErrNoActiveApplication {
			t.Errorf("Transition() error = %v, want %v", err, ErrNoActiveApplication)
		}
		if ev := s.events.last(); ev.Kind != EventRejected || ev.Code != CodeNoActiveApplication {
			t.Errorf("last event = %+v, want rejected %s", ev, CodeNoActiveApplication)
		}
	})

	// Scenario D
	t.Run("gate not satisfied", func(t *testing.T) {
		s := newTestSession(t)
		app := submitApp(t, s, "Asha", "Grade 5")
		before := s.Snapshot()

		got, err := s.Transition(ctx, StageTransition{Stage: StageApproval, Status: StatusApproved})
		if !errors.Is(err, ErrGateNotSatisfied) {
			t.Fatalf("Transition() error = %v, want %v", err, ErrGateNotSatisfied)
		}
		var gErr *GateError
		if !errors.As(err, &gErr) || gErr.Gate != StageVerification || gErr.Got != StatusPending {
			t.Errorf("Transition() error = %#v", err)
		}
		if got != (Application{}) {
			t.Errorf("Transition() = %+v, want zero Application", got)
		}
		if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
			t.Errorf("state changed: %+v -> %+v", before, after)
		}
		if ev := s.events.last(); ev.Kind != EventRejected || ev.Code != CodeGateNotSatisfied || ev.ApplicationID != app.ID {
			t.Errorf("last event = %+v, want rejected %s", ev, CodeGateNotSatisfied)
		}
	})

	t.Run("invalid requests", func(t *testing.T) {
		s := newTestSession(t)
		submitApp(t, s, "Asha", "Grade 5")
		tests := []StageTransition{
			{},
			{Stage: "interview", Status: StatusPending},
			{Stage: StageVerification},
			{Stage: StageVerification, Status: StatusApproved},
			{Stage: StageEnrollment, Status: StatusWaitlisted},
		}
		for _, tr := range tests {
			if _, err := s.Transition(ctx, tr); !core.IsValidationError(err) {
				t.Errorf("Transition(%+v) error = %v, want a validation error", tr, err)
			}
		}
		if active, _ := s.Active(); active.Stages != PendingStages() {
			t.Errorf("stages = %+v, want all pending", active.Stages)
		}
	})

	t.Run("validation before active check", func(t *testing.T) {
		s := newTestSession(t)
		_, err := s.Transition(ctx, StageTransition{Stage: "interview", Status: StatusPending})
		if ErrorCode(err) != CodeValidation {
			t.Errorf("Transition() error code = %s, want %s", ErrorCode(err), CodeValidation)
		}
	})
}

func TestSession_Select(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	first := submitApp(t, s, "Asha", "Grade 5")
	transitionApp(t, s, StageVerification, StatusVerified)
	second := submitApp(t, s, "Baraka", "Grade 6")
	submitApp(t, s, "Chiku", "Grade 5")

	selected, err := s.Select(ctx, first.ID)
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if selected.Stages.Verification != StatusVerified {
		t.Errorf("Select() = %+v, want the verified application", selected)
	}

	others := map[string]Application{}
	for _, app := range s.Applications() {
		if app.ID != first.ID {
			others[app.ID] = app
		}
	}

	// transitions only touch the selected entry
	transitionApp(t, s, StageApproval, StatusWaitlisted)
	for _, app := range s.Applications() {
		if app.ID == first.ID {
			if app.Stages.Approval != StatusWaitlisted {
				t.Errorf("selected application approval = %s, want waitlisted", app.Stages.Approval)
			}
			continue
		}
		if app != others[app.ID] {
			t.Errorf("application %s changed: %+v -> %+v", app.ID, others[app.ID], app)
		}
	}
	checkInvariants(t, s.Applications()...)

	// unknown ID leaves the selection alone
	if _, err = s.Select(ctx, "APP-ZZZZZZ"); err != ErrNotFound {
		t.Errorf("Select() error = %v, want %v", err, ErrNotFound)
	}
	if active, _ := s.Active(); active.ID != first.ID {
		t.Errorf("Active() = %s, want %s", active.ID, first.ID)
	}

	if _, err = s.Select(ctx, "  "+second.ID+" "); err != nil {
		t.Errorf("Select() with padded ID failed: %v", err)
	}
}

func TestSession_ClearActive(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	app := submitApp(t, s, "Asha", "Grade 5")
	verified := transitionApp(t, s, StageVerification, StatusVerified)

	s.ClearActive(ctx)
	if _, ok := s.Active(); ok {
		t.Error("Active() after ClearActive() is still set")
	}
	if got, _ := s.Get(app.ID); got != verified {
		t.Errorf("ClearActive() altered history: %+v, want %+v", got, verified)
	}
	if _, err := s.Transition(ctx, StageTransition{Stage: StageApproval, Status: StatusApproved}); err != ErrNoActiveApplication {
		t.Errorf("Transition() error = %v, want %v", err, ErrNoActiveApplication)
	}
	if snap := s.Snapshot(); snap.ActiveApplicationID.Valid {
		t.Errorf("snapshot active ID = %v, want null", snap.ActiveApplicationID)
	}
}

func TestSession_persistenceFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	app := submitApp(t, s, "Asha", "Grade 5")

	s.store.setDown(true)
	s.events.reset()

	got, err := s.Transition(ctx, StageTransition{Stage: StageVerification, Status: StatusVerified})
	if err != nil {
		t.Fatalf("Transition() error = %v, want nil", err)
	}
	if got.Stages.Verification != StatusVerified {
		t.Errorf("Transition() = %+v, want verified", got.Stages)
	}
	if stored, _ := s.Get(app.ID); stored.Stages.Verification != StatusVerified {
		t.Error("in-memory state rolled back after a failed save")
	}
	want := []EventKind{EventTransitioned, EventPersistenceFailed}
	if kinds := s.events.kinds(); !reflect.DeepEqual(kinds, want) {
		t.Errorf("events = %v, want %v", kinds, want)
	}
	ev := s.events.last()
	var pErr *PersistenceError
	if !errors.As(ev.Err, &pErr) || pErr.Op != "save" || !errors.Is(ev.Err, errStoreDown) || ev.Code != CodePersistence {
		t.Errorf("persistence event = %+v", ev)
	}

	// explicit flushes do report the failure
	if err = s.Save(ctx); ErrorCode(err) != CodePersistence {
		t.Errorf("Save() error = %v, want a persistence error", err)
	}

	// and the store catches up once it is back
	s.store.setDown(false)
	if err = s.Save(ctx); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	raw, _ := s.store.Get(ctx, DefaultStorageKey)
	snap, _ := LoadSnapshot([]byte(raw))
	if active, ok := snap.Active(); !ok || active.Stages.Verification != StatusVerified {
		t.Errorf("persisted active = %+v, want verified", active)
	}
}

func TestSession_Load(t *testing.T) {
	ctx := context.Background()
	kv := inmemkv.Open()

	s := newTestSession(t, kv)
	first := submitApp(t, s, "Asha", "Grade 5")
	transitionApp(t, s, StageVerification, StatusVerified)
	transitionApp(t, s, StageApproval, StatusApproved)
	submitApp(t, s, "Baraka", "Grade 6")
	transitionApp(t, s, StageVerification, StatusWaitlisted)
	if _, err := s.Select(ctx, first.ID); err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	want := s.Snapshot()

	resumed := newTestSession(t, kv)
	if err := resumed.Load(ctx); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := resumed.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if ev := resumed.events.last(); ev.Kind != EventResumed || ev.ApplicationID != first.ID {
		t.Errorf("last event = %+v, want resumed %s", ev, first.ID)
	}

	// transitions continue where they left off
	enrolled := transitionApp(t, resumed, StageEnrollment, StatusEnrolled)
	if enrolled.ID != first.ID || enrolled.Stages.Progress() != 100 {
		t.Errorf("Transition() after Load() = %+v", enrolled)
	}

	t.Run("empty store", func(t *testing.T) {
		s := newTestSession(t)
		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(s.Applications()) != 0 {
			t.Error("Load() of an empty store returned applications")
		}
	})

	t.Run("store down", func(t *testing.T) {
		s := newTestSession(t, kv)
		s.store.setDown(true)
		err := s.Load(ctx)
		if ErrorCode(err) != CodePersistence || !errors.Is(err, errStoreDown) {
			t.Errorf("Load() error = %v, want a persistence error", err)
		}
		if len(s.Applications()) != 0 {
			t.Error("Load() failure left applications behind")
		}

		// the unread snapshot is not overwritten by the empty session
		s.store.setDown(false)
		s.events.reset()
		submitApp(t, s, "Chiku", "Grade 1")
		ev := s.events.last()
		if ev.Kind != EventPersistenceFailed || !errors.Is(ev.Err, ErrStateNotLoaded) {
			t.Errorf("last event = %+v, want persistence_failed %v", ev, ErrStateNotLoaded)
		}
		raw, _ := kv.Get(ctx, DefaultStorageKey)
		if stored, _ := LoadSnapshot([]byte(raw)); len(stored.Applications) != 2 {
			t.Errorf("stored applications = %d, want 2", len(stored.Applications))
		}

		// saves resume once the store has been read
		if err := s.Load(ctx); err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		submitApp(t, s, "Chiku", "Grade 1")
		raw, _ = kv.Get(ctx, DefaultStorageKey)
		if stored, _ := LoadSnapshot([]byte(raw)); len(stored.Applications) != 3 {
			t.Errorf("stored applications = %d, want 3", len(stored.Applications))
		}
	})

	t.Run("malformed snapshot", func(t *testing.T) {
		bad := inmemkv.Open()
		_ = bad.Set(ctx, DefaultStorageKey, "[1, 2]")
		s := newTestSession(t, bad)
		if err := s.Load(ctx); !errors.Is(err, ErrMalformedSnapshot) {
			t.Errorf("Load() error = %v, want %v", err, ErrMalformedSnapshot)
		}
	})
}

func TestSession_concurrent(t *testing.T) {
	ctx := context.Background()
	kv := inmemkv.Open()
	s := newTestSession(t, kv)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app, err := s.Submit(ctx, NewApplication{Name: "Asha", Email: "a@x.com", Phone: "999", Course: "Grade 5"})
			if err != nil {
				t.Errorf("Submit() failed: %v", err)
				return
			}
			// other workers move the active selection; gate errors are expected then
			for _, tr := range []StageTransition{
				{Stage: StageVerification, Status: StatusVerified},
				{Stage: StageApproval, Status: StatusApproved},
				{Stage: StageEnrollment, Status: StatusEnrolled},
			} {
				if _, err := s.Transition(ctx, tr); err != nil && !errors.Is(err, ErrGateNotSatisfied) {
					t.Errorf("Transition(%s) error = %v", tr.Stage, err)
				}
			}
			if _, err := s.Select(ctx, app.ID); err != nil {
				t.Errorf("Select(%s) failed: %v", app.ID, err)
			}
			_ = s.Stats()
			_ = s.History(HistoryFilter{Search: "asha"})
		}()
	}
	wg.Wait()

	apps := s.Applications()
	if len(apps) != workers {
		t.Fatalf("len(Applications()) = %d, want %d", len(apps), workers)
	}
	checkInvariants(t, apps...)

	raw, err := kv.Get(ctx, DefaultStorageKey)
	if err != nil {
		t.Fatalf("store.Get() failed: %v", err)
	}
	stored, err := LoadSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if !reflect.DeepEqual(stored, s.Snapshot()) {
		t.Errorf("stored snapshot = %+v, want %+v", stored, s.Snapshot())
	}
}

func TestSession_Reset(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	submitApp(t, s, "Asha", "Grade 5")

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if len(s.Applications()) != 0 {
		t.Error("Reset() kept applications")
	}
	if _, ok := s.Active(); ok {
		t.Error("Reset() kept the active selection")
	}
	if _, err := s.store.Get(ctx, DefaultStorageKey); err != core.ErrKeyNotFound {
		t.Errorf("store.Get() after Reset() error = %v, want %v", err, core.ErrKeyNotFound)
	}

	submitApp(t, s, "Asha", "Grade 5")
	s.store.setDown(true)
	if err := s.Reset(ctx); ErrorCode(err) != CodePersistence {
		t.Errorf("Reset() error = %v, want a persistence error", err)
	}
	if len(s.Applications()) != 0 {
		t.Error("Reset() kept applications after a store failure")
	}
}

func TestSession_queries(t *testing.T) {
	s := newTestSession(t)
	asha := submitApp(t, s, "Asha", "Grade 5")
	transitionApp(t, s, StageVerification, StatusVerified)
	transitionApp(t, s, StageApproval, StatusApproved)
	transitionApp(t, s, StageEnrollment, StatusEnrolled)
	baraka := submitApp(t, s, "Baraka", "Grade 6")
	transitionApp(t, s, StageVerification, StatusRejected)
	chiku := submitApp(t, s, "Chiku", "Grade 5")

	if got := s.Enrolled(); len(got) != 1 || got[0].ID != asha.ID {
		t.Errorf("Enrolled() = %+v, want [%s]", got, asha.ID)
	}

	history := s.History(HistoryFilter{Course: "Grade 5"})
	if len(history) != 2 || history[0].ID != chiku.ID || history[1].ID != asha.ID {
		t.Errorf("History() = %+v, want [%s %s]", history, chiku.ID, asha.ID)
	}
	if got := s.History(HistoryFilter{Search: baraka.ID[4:]}); len(got) != 1 || got[0].ID != baraka.ID {
		t.Errorf("History(search ID) = %+v, want [%s]", got, baraka.ID)
	}

	stats := s.Stats()
	want := Stats{
		Total: 3, Verified: 1, Approved: 1, Enrolled: 1, Rejected: 1, ThisYear: 3,
		ByCourse: []CourseCount{{Course: "Grade 5", Count: 2}, {Course: "Grade 6", Count: 1}},
	}
	if !reflect.DeepEqual(stats, want) {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}
