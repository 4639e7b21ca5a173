// Package testutil holds the helpers shared by the apps' tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/qlass/backend/core"
	"github.com/qlass/backend/core/admission"
	"github.com/qlass/backend/storage/kvstore/inmemkv"
)

// Now is the frozen clock of sessions built by NewSession.
var Now = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// NopLogger discards everything.
var NopLogger core.Logger = nopLogger{}

// NewValidator returns a validator with the core and admission validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	admission.InitValidators(validate, translator)
	return validate, translator
}

// NewSession returns an admission session on an in-memory store, unless one is given.
func NewSession(t *testing.T, store ...core.KVStore) *admission.Session {
	t.Helper()

	var kv core.KVStore = inmemkv.Open()
	if len(store) > 0 {
		kv = store[0]
	}
	validate, translator := NewValidator()
	sess := admission.NewSession(
		admission.Deps{
			Store:      kv,
			Logger:     NopLogger,
			Validate:   validate,
			Translator: translator,
		},
		admission.Options{Now: func() time.Time { return Now }},
	)
	if err := sess.Load(context.Background()); err != nil {
		t.Fatalf("NewSession() failed: %v", err)
	}
	return sess
}

// SubmitApplication submits an application for name and makes it active.
func SubmitApplication(t *testing.T, sess *admission.Session, name, course string) admission.Application {
	t.Helper()
	app, err := sess.Submit(context.Background(), admission.NewApplication{
		Name:   name,
		Email:  "applicant@test.cd",
		Phone:  "0999",
		Course: course,
	})
	if err != nil {
		t.Fatalf("SubmitApplication() failed: %v", err)
	}
	return app
}

// AdvanceTo walks the active application through every stage up to stage, each set to its success status.
func AdvanceTo(t *testing.T, sess *admission.Session, stage admission.Stage) admission.Application {
	t.Helper()
	var app admission.Application
	for _, st := range admission.AllStages {
		var err error
		app, err = sess.Transition(context.Background(), admission.StageTransition{Stage: st, Status: st.Success()})
		if err != nil {
			t.Fatalf("AdvanceTo(%s) failed: %v", stage, err)
		}
		if st == stage {
			break
		}
	}
	return app
}
