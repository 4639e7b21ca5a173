package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/storage/kvstore/inmemkv"
)

var testNow = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

const testTstamp = "3/5/2024, 2:07:09 PM"

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

var errStoreDown = errors.New("store down")

// flakyStore fails every call once down is set.
type flakyStore struct {
	core.KVStore
	mu   sync.Mutex
	down bool
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if s.isDown() {
		return "", errStoreDown
	}
	return s.KVStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.isDown() {
		return errStoreDown
	}
	return s.KVStore.Set(ctx, key, value)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.isDown() {
		return errStoreDown
	}
	return s.KVStore.Delete(ctx, key)
}

// eventRecorder collects every event a Session emits.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Notify(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type testSession struct {
	*Session
	store  *flakyStore
	events *eventRecorder
}

func newTestSession(t *testing.T, store ...core.KVStore) testSession {
	t.Helper()

	var kv core.KVStore = inmemkv.Open()
	if len(store) > 0 {
		kv = store[0]
	}
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	ts := testSession{store: &flakyStore{KVStore: kv}, events: new(eventRecorder)}
	ts.Session = NewSession(
		Deps{
			Store:      ts.store,
			Logger:     discardLogger{},
			Notifier:   ts.events,
			Validate:   validate,
			Translator: translator,
		},
		Options{Now: func() time.Time { return testNow }},
	)
	return ts
}

func submitApp(t *testing.T, s testSession, name, course string) Application {
	t.Helper()
	app, err := s.Submit(context.Background(), NewApplication{
		Name:   name,
		Email:  "a@x.com",
		Phone:  "999",
		Course: course,
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return app
}

func transitionApp(t *testing.T, s testSession, stage Stage, status Status) Application {
	t.Helper()
	app, err := s.Transition(context.Background(), StageTransition{Stage: stage, Status: status})
	if err != nil {
		t.Fatalf("Transition(%s, %s) failed: %v", stage, status, err)
	}
	return app
}

// checkInvariants fails t when an application breaks the stage gating.
func checkInvariants(t *testing.T, apps ...Application) {
	t.Helper()
	for _, app := range apps {
		s := app.Stages
		if s.Approval != StatusPending && s.Verification != StatusVerified {
			t.Errorf("%s: approval = %s while verification = %s", app.ID, s.Approval, s.Verification)
		}
		if s.Enrollment != StatusPending && s.Approval != StatusApproved {
			t.Errorf("%s: enrollment = %s while approval = %s", app.ID, s.Enrollment, s.Approval)
		}
		for _, stage := range AllStages {
			if !stage.Allows(s.Get(stage)) {
				t.Errorf("%s: %s = %q is not a valid status", app.ID, stage, s.Get(stage))
			}
		}
	}
}

// stampedWith builds Timestamps, "" meaning null.
func stampedWith(v, a, e string) Timestamps {
	var ts Timestamps
	for stage, tstamp := range map[Stage]string{StageVerification: v, StageApproval: a, StageEnrollment: e} {
		if tstamp != "" {
			ts.set(stage, null.StringFrom(tstamp))
		}
	}
	return ts
}
