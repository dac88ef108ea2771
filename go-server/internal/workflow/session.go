package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/model"
)

// ResetDelay is how long the success panel stays up before the form is cleared
const ResetDelay = 5 * time.Second

var (
	ErrSubmitDisabled   = errors.New("required fields are missing")
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	ErrNotEditing       = errors.New("session is showing a completed submission")
	ErrReadOnly         = errors.New("fields are read-only outside of editing")
	ErrSessionClosed    = errors.New("session is closed")
)

const (
	failureTitle       = "Submission Failed"
	failureDescription = "Please try again later."
	variantDestructive = "destructive"
)

// State is the lifecycle state of a page session
type State int

const (
	Editing State = iota
	Submitting
	Success
)

func (s State) String() string {
	switch s {
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "editing":
		*s = Editing
	case "submitting":
		*s = Submitting
	case "success":
		*s = Success
	default:
		return fmt.Errorf("unknown state %q", text)
	}
	return nil
}

// Submitter performs the remote store calls on behalf of a session
type Submitter interface {
	Submit(ctx context.Context, form model.FormState) (*model.SubmissionRecord, error)
	VerifyLatest(ctx context.Context)
}

// Notification is a transient toast shown once to the visitor
type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     string    `json:"variant"`
	At          time.Time `json:"at"`
}

// Snapshot is a consistent copy of a session's state
type Snapshot struct {
	ID            string                  `json:"id"`
	State         State                   `json:"state"`
	Fields        model.FormState         `json:"fields"`
	CanSubmit     bool                    `json:"canSubmit"`
	Notifications []Notification          `json:"notifications"`
	LastRecord    *model.SubmissionRecord `json:"lastRecord,omitempty"`
}

// Session holds the form and lifecycle of one visitor's page
type Session struct {
	id        string
	submitter Submitter
	clock     Clock
	logger    *zap.Logger

	mu            sync.Mutex
	state         State
	fields        model.FormState
	notifications []Notification
	lastRecord    *model.SubmissionRecord
	resetTimer    Timer
	// generation invalidates reset callbacks armed before the last transition
	generation uint64
	closed     bool
	lastSeen   time.Time
}

func NewSession(id string, submitter Submitter, clock Clock) *Session {
	return &Session{
		id:        id,
		submitter: submitter,
		clock:     clock,
		logger:    zap.L().With(zap.String("component", "session"), zap.String("session_id", id)),
		state:     Editing,
		lastSeen:  clock.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// UpdateFields replaces the form contents while the session is editing
func (s *Session) UpdateFields(fields model.FormState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != Editing {
		return ErrReadOnly
	}

	s.fields = fields
	return nil
}

// Submit sends the current form to the store.
// The lock is released while the store is called so snapshots stay responsive.
func (s *Session) Submit(ctx context.Context) (*model.SubmissionRecord, error) {
	s.mu.Lock()
	if err := s.checkSubmittable(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.state = Submitting
	s.generation++
	form := s.fields
	s.mu.Unlock()

	s.logger.Info("Submitting product", zap.String("product_name", form.ProductName))

	record, err := s.submitter.Submit(ctx, form)
	if err != nil {
		s.logger.Warn("Submission failed", zap.Error(err))

		s.mu.Lock()
		if !s.closed {
			s.state = Editing
			s.notifications = append(s.notifications, Notification{
				Title:       failureTitle,
				Description: failureDescription,
				Variant:     variantDestructive,
				At:          s.clock.Now(),
			})
		}
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if !s.closed {
		s.state = Success
		s.lastRecord = record
	}
	s.mu.Unlock()

	s.submitter.VerifyLatest(ctx)

	s.mu.Lock()
	if !s.closed && s.state == Success {
		gen := s.generation
		s.resetTimer = s.clock.AfterFunc(ResetDelay, func() { s.reset(gen) })
	}
	s.mu.Unlock()

	return record, nil
}

func (s *Session) checkSubmittable() error {
	if s.closed {
		return ErrSessionClosed
	}
	switch s.state {
	case Submitting:
		return ErrSubmitInProgress
	case Success:
		return ErrNotEditing
	}
	if !s.fields.Complete() {
		return ErrSubmitDisabled
	}
	return nil
}

func (s *Session) reset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.generation || s.state != Success {
		return
	}

	s.fields = model.FormState{}
	s.state = Editing
	s.resetTimer = nil
	s.logger.Debug("Form reset after successful submission")
}

// Snapshot returns the current state without consuming notifications
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := make([]Notification, len(s.notifications))
	copy(notifications, s.notifications)

	return s.snapshotLocked(notifications)
}

// SnapshotAndTake returns the snapshot and drains the pending notifications
// under one lock, so a notification added concurrently is either in the
// returned snapshot or still pending for the next read.
func (s *Session) SnapshotAndTake() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := s.notifications
	if notifications == nil {
		notifications = []Notification{}
	}
	s.notifications = nil

	return s.snapshotLocked(notifications)
}

func (s *Session) snapshotLocked(notifications []Notification) Snapshot {
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		Fields:        s.fields,
		CanSubmit:     s.state == Editing && s.fields.Complete(),
		Notifications: notifications,
		LastRecord:    s.lastRecord,
	}
}

// BlankSnapshot is what a visitor without a session sees
func BlankSnapshot() Snapshot {
	return Snapshot{State: Editing, Notifications: []Notification{}}
}

func (s *Session) TakeNotifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.notifications
	s.notifications = nil
	return pending
}

// Close stops the reset timer; later timer callbacks leave the session untouched
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}
