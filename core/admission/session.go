package admission

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/qlass/backend/core"
)

const (
	DefaultStorageKey      = "qlass_admissions_state_v2"
	DefaultTimestampLayout = "1/2/2006, 3:04:05 PM"
)

type Options struct {
	StorageKey      string
	TimestampLayout string
	Now             func() time.Time // mockable
}

type Deps struct {
	Store      core.KVStore
	Logger     core.Logger
	Notifier   Notifier
	Validate   *validator.Validate
	Translator ut.Translator
}

// Session owns the admissions collection and the active selection.
// The collection entry is the only copy of an application; the active selection is just its ID.
// Every mutating operation persists the whole collection, best effort.
type Session struct {
	mu sync.Mutex

	store      core.KVStore
	logger     core.Logger
	notifier   Notifier
	validate   *validator.Validate
	translator ut.Translator
	opts       Options

	apps     []Application
	index    map[string]int // {id: position in apps}
	activeID string         // "" when nothing is selected

	// set when the store could not be read; the stored snapshot is not overwritten until a Load succeeds
	holdSaves bool
}

func NewSession(deps Deps, opts Options) *Session {
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = DefaultTimestampLayout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier
	}
	return &Session{
		store:      deps.Store,
		logger:     deps.Logger,
		notifier:   deps.Notifier,
		validate:   deps.Validate,
		translator: deps.Translator,
		opts:       opts,
		index:      make(map[string]int),
	}
}

// =========================================================================
// Persistence

// Load replaces the in-memory state with the stored snapshot.
// A missing snapshot is an empty session. On failure the session is left empty and a *PersistenceError is returned.
// If the store itself failed, saves are held (ErrStateNotLoaded) until a later Load or Reset succeeds,
// so the stored applications are never replaced by the empty session.
func (s *Session) Load(ctx context.Context) error {
	evs, err := s.load(ctx)
	s.dispatch(evs)
	return err
}

func (s *Session) load(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replace(Snapshot{})

	raw, err := s.store.Get(ctx, s.opts.StorageKey)
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			s.holdSaves = false
			return nil, nil
		}
		s.holdSaves = true
		pErr := &PersistenceError{Op: "load", Err: err}
		s.logger.Error("failed to load admissions", pErr)
		return []Event{{Kind: EventPersistenceFailed, Code: CodePersistence, Err: pErr}}, pErr
	}

	snap, err := LoadSnapshot([]byte(raw))
	if err != nil {
		s.holdSaves = false // readable but not a snapshot: nothing to preserve
		pErr := &PersistenceError{Op: "load", Err: err}
		s.logger.Error("failed to decode admissions", pErr)
		return []Event{{Kind: EventPersistenceFailed, Code: CodePersistence, Err: pErr}}, pErr
	}
	s.replace(snap)
	s.holdSaves = false

	if app, ok := s.active(); ok {
		s.logger.Info(fmt.Sprintf("Resumed application: %s", app.ID), app)
		return []Event{newEvent(EventResumed, app)}, nil
	}
	return nil, nil
}

// Save persists the current state. Mutating operations already do; this is for explicit flushes.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	ev := s.persist(ctx)
	s.mu.Unlock()

	if ev != nil {
		s.dispatch([]Event{*ev})
		return ev.Err
	}
	return nil
}

// persist writes the snapshot; failures are logged and returned as an event, never rolled back.
func (s *Session) persist(ctx context.Context) *Event {
	if s.holdSaves {
		pErr := &PersistenceError{Op: "save", Err: ErrStateNotLoaded}
		s.logger.Warn("admissions not saved: stored state was never loaded", pErr)
		return &Event{Kind: EventPersistenceFailed, Code: CodePersistence, Err: pErr}
	}

	data, err := MarshalSnapshot(s.snapshot())
	if err == nil {
		err = s.store.Set(ctx, s.opts.StorageKey, string(data))
	}
	if err != nil {
		pErr := &PersistenceError{Op: "save", Err: err}
		s.logger.Error("failed to save admissions", pErr)
		return &Event{Kind: EventPersistenceFailed, Code: CodePersistence, Err: pErr}
	}
	return nil
}

func (s *Session) replace(snap Snapshot) {
	s.apps = make([]Application, 0, len(snap.Applications))
	s.index = make(map[string]int, len(snap.Applications))
	s.activeID = ""
	for _, app := range snap.Applications {
		if _, dup := s.index[app.ID]; dup || app.ID == "" {
			continue
		}
		s.index[app.ID] = len(s.apps)
		s.apps = append(s.apps, app)
	}
	if snap.ActiveApplicationID.Valid {
		if _, ok := s.index[snap.ActiveApplicationID.String]; ok {
			s.activeID = snap.ActiveApplicationID.String
		}
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{Applications: s.applications()}
	if s.activeID != "" {
		snap.ActiveApplicationID = null.StringFrom(s.activeID)
	}
	return snap
}

// Snapshot returns a copy of the current state, in its persisted form.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Reset wipes the stored snapshot and the in-memory state.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.replace(Snapshot{})
	s.holdSaves = false
	evs := []Event{{Kind: EventReset}}
	var retErr error
	if err := s.store.Delete(ctx, s.opts.StorageKey); err != nil {
		pErr := &PersistenceError{Op: "reset", Err: err}
		s.logger.Error("failed to clear saved admissions", pErr)
		evs = append(evs, Event{Kind: EventPersistenceFailed, Code: CodePersistence, Err: pErr})
		retErr = pErr
	}
	s.mu.Unlock()

	s.logger.Info("Saved state cleared")
	s.dispatch(evs)
	return retErr
}

// =========================================================================
// Operations

// Submit creates a new application, all stages pending, and makes it the active one.
func (s *Session) Submit(ctx context.Context, na NewApplication) (Application, error) {
	app, evs, err := s.submit(ctx, na)
	s.dispatch(evs)
	return app, err
}

func (s *Session) submit(ctx context.Context, na NewApplication) (Application, []Event, error) {
	na.Clean()
	if err := core.ValidateStruct(s.validate, s.translator, na); err != nil {
		return Application{}, []Event{rejectedEvent(err, "", "", "")}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app := Application{
		ID:          s.newID(),
		Name:        na.Name,
		Email:       na.Email,
		Phone:       na.Phone,
		Course:      na.Course,
		SubmittedAt: s.opts.Now().UTC().Truncate(time.Millisecond),
		Stages:      PendingStages(),
	}
	s.index[app.ID] = len(s.apps)
	s.apps = append(s.apps, app)
	s.activeID = app.ID

	evs := []Event{newEvent(EventSubmitted, app)}
	if ev := s.persist(ctx); ev != nil {
		evs = append(evs, *ev)
	}
	return app, evs, nil
}

// Transition sets a stage of the active application, applying the gates and the cascade reset.
func (s *Session) Transition(ctx context.Context, tr StageTransition) (Application, error) {
	app, evs, err := s.transition(ctx, tr)
	s.dispatch(evs)
	return app, err
}

func (s *Session) transition(ctx context.Context, tr StageTransition) (Application, []Event, error) {
	if err := core.ValidateStruct(s.validate, s.translator, tr); err != nil {
		return Application{}, []Event{rejectedEvent(err, "", tr.Stage, tr.Status)}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	curr, ok := s.active()
	if !ok {
		return Application{}, []Event{rejectedEvent(ErrNoActiveApplication, "", tr.Stage, tr.Status)}, ErrNoActiveApplication
	}

	tstamp := s.opts.Now().Format(s.opts.TimestampLayout)
	updated, err := curr.apply(tr.Stage, tr.Status, tstamp)
	if err != nil {
		return Application{}, []Event{rejectedEvent(err, curr.ID, tr.Stage, tr.Status)}, err
	}
	s.apps[s.index[curr.ID]] = updated

	ev := newEvent(EventTransitioned, updated)
	ev.Stage, ev.Status = tr.Stage, tr.Status
	evs := []Event{ev}
	if pev := s.persist(ctx); pev != nil {
		evs = append(evs, *pev)
	}
	return updated, evs, nil
}

// Select makes the application with the given ID the active one.
func (s *Session) Select(ctx context.Context, id string) (Application, error) {
	app, evs, err := s.selectByID(ctx, id)
	s.dispatch(evs)
	return app, err
}

func (s *Session) selectByID(ctx context.Context, id string) (Application, []Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = core.CleanString(id)
	idx, ok := s.index[id]
	if !ok {
		return Application{}, []Event{rejectedEvent(ErrNotFound, id, "", "")}, ErrNotFound
	}
	s.activeID = id
	app := s.apps[idx]

	evs := []Event{newEvent(EventSelected, app)}
	if ev := s.persist(ctx); ev != nil {
		evs = append(evs, *ev)
	}
	return app, evs, nil
}

// ClearActive deselects the active application. Its stages and history are kept.
func (s *Session) ClearActive(ctx context.Context) {
	s.mu.Lock()
	prevID := s.activeID
	s.activeID = ""
	evs := []Event{{Kind: EventCleared, ApplicationID: prevID}}
	if ev := s.persist(ctx); ev != nil {
		evs = append(evs, *ev)
	}
	s.mu.Unlock()

	s.dispatch(evs)
}

// =========================================================================
// Queries

// Active returns the active application, if any.
func (s *Session) Active() (Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active()
}

func (s *Session) active() (Application, bool) {
	if s.activeID == "" {
		return Application{}, false
	}
	idx, ok := s.index[s.activeID]
	if !ok {
		return Application{}, false
	}
	return s.apps[idx], true
}

func (s *Session) Get(id string) (Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.index[core.CleanString(id)]
	if !ok {
		return Application{}, ErrNotFound
	}
	return s.apps[idx], nil
}

// Applications returns a copy of the collection, in submission order.
func (s *Session) Applications() []Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applications()
}

func (s *Session) applications() []Application {
	apps := make([]Application, len(s.apps))
	copy(apps, s.apps)
	return apps
}

func (s *Session) History(filter HistoryFilter) []Application {
	return FilterHistory(s.Applications(), filter)
}

func (s *Session) Stats() Stats {
	return ComputeStats(s.Applications(), s.opts.Now())
}

func (s *Session) Enrolled() []Application {
	return Enrolled(s.Applications())
}

// =========================================================================
// Helpers

// newID allocates an "APP-XXXXXX" ID not used by any application. Caller holds s.mu.
func (s *Session) newID() string {
	for {
		u := uuid.New()
		id := "APP-" + strings.ToUpper(hex.EncodeToString(u[:3]))
		if _, taken := s.index[id]; !taken {
			return id
		}
	}
}

func (s *Session) dispatch(evs []Event) {
	for _, ev := range evs {
		s.notifier.Notify(ev)
	}
}

func newEvent(kind EventKind, app Application) Event {
	lbl := app.CurrentStage()
	ev := Event{Kind: kind, ApplicationID: app.ID, Status: lbl.Status, Application: app}
	if lbl.Stage != NotStarted {
		ev.Stage = Stage(lbl.Stage)
	}
	return ev
}

func rejectedEvent(err error, id string, stage Stage, status Status) Event {
	return Event{
		Kind:          EventRejected,
		ApplicationID: id,
		Stage:         stage,
		Status:        status,
		Code:          ErrorCode(err),
		Err:           err,
	}
}
