package composer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"outreach/models"
)

const (
	// DefaultAutosaveDelay is the idle period after the last edit before
	// the draft is saved in the background.
	DefaultAutosaveDelay = 30 * time.Second

	// DefaultStageLabel is the stage label sent along with every email
	DefaultStageLabel = string(models.StageFirstImpression)
)

// Backend is the persistence collaborator the composer talks to
type Backend interface {
	// GetDraft returns the stored draft content, or "" when there is none
	GetDraft(ctx context.Context, connectionID uint) (string, error)
	SaveDraft(ctx context.Context, connectionID uint, content string) error
	SendEmail(ctx context.Context, connectionID uint, stageLabel, subject, body string) error
	// UpdateStage and AdvanceTimeline return the refreshed timeline, or nil
	// when the response carried none.
	UpdateStage(ctx context.Context, connectionID, stageID uint, update models.StageUpdate) (*models.Timeline, error)
	AdvanceTimeline(ctx context.Context, connectionID uint, trigger string, stageID uint) (*models.Timeline, error)
	GetTimeline(ctx context.Context, connectionID uint) (*models.Timeline, error)
	MarkComposerOpened(ctx context.Context, connectionID uint) error
}

// TimelineSink receives every timeline returned by a stage update or advance
type TimelineSink interface {
	Apply(connectionID uint, tl *models.Timeline)
}

// Listener is notified after successful primary operations. Nil callbacks
// are skipped.
type Listener struct {
	OnDraftSaved func(connectionID uint)
	OnEmailSent  func(connectionID uint)
}

// CloseDecision is the caller's answer to closing with unsaved changes
type CloseDecision int

const (
	CloseUndecided CloseDecision = iota
	CloseSave
	CloseDiscard
)

// Option configures a Session
type Option func(*Session)

func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithLogger(log *logrus.Entry) Option {
	return func(s *Session) { s.log = log }
}

func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

func WithTimeline(sink TimelineSink) Option {
	return func(s *Session) { s.timeline = sink }
}

func WithAutosaveDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.autosaveDelay = d
		}
	}
}

func WithStageLabel(label string) Option {
	return func(s *Session) {
		if label != "" {
			s.stageLabel = label
		}
	}
}

// WithStageID pins the stage that timeline updates target. It takes
// precedence over the connection's current_stage_id.
func WithStageID(id uint) Option {
	return func(s *Session) { s.stageID = &id }
}

// Session is one open composer for one connection. All methods are safe
// for concurrent use; backend calls are made without holding the lock.
type Session struct {
	backend       Backend
	timeline      TimelineSink
	listener      Listener
	clock         clock.Clock
	log           *logrus.Entry
	autosaveDelay time.Duration
	stageLabel    string
	stageID       *uint

	mu    sync.Mutex
	conn  models.Connection
	state State
	timer *clock.Timer
	gen   uint64
}

func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:       backend,
		clock:         clock.New(),
		log:           logrus.WithField("component", "composer"),
		autosaveDelay: DefaultAutosaveDelay,
		stageLabel:    DefaultStageLabel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the composer state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StageID returns the stage timeline updates will target, if any
func (s *Session) StageID() (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveStageLocked()
}

// Open starts the session for conn. Generated content in initial is used
// as-is and counts as saved; otherwise the stored draft is loaded. A
// missing draft yields empty fields. If loading fails the session still
// opens empty and the load error is returned.
func (s *Session) Open(ctx context.Context, conn models.Connection, initial *Email) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.conn = conn
	s.mu.Unlock()

	log := s.log.WithField("connection_id", conn.ID)

	if err := s.backend.MarkComposerOpened(ctx, conn.ID); err != nil {
		log.WithError(err).Warn("Failed to mark composer opened")
	}

	if initial != nil {
		s.dispatch(Opened{Email: *initial, FromGeneration: true})
		return nil
	}

	content, err := s.backend.GetDraft(ctx, conn.ID)
	if err != nil {
		err = opError(OpLoadDraft, err)
		s.dispatch(Opened{})
		s.dispatch(SaveFailed{Err: err})
		log.WithError(err).Error("Failed to load draft")
		return err
	}

	var email Email
	if content != "" {
		email = DecodeDraft(content)
	}
	s.dispatch(Opened{Email: email})
	return nil
}

// Edit changes one field, marks the composer dirty and restarts the
// autosave countdown.
func (s *Session) Edit(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Open {
		return ErrSessionClosed
	}
	s.state = Reduce(s.state, Edited{Field: field, Value: value})
	s.armTimerLocked()
	return nil
}

// SaveDraft persists the current subject and body. It does nothing when
// both are empty. A failed stage update after a successful save is logged
// and does not affect the result.
func (s *Session) SaveDraft(ctx context.Context, auto bool) error {
	s.mu.Lock()
	if !s.state.Open {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	email := s.state.Email()
	if email.IsEmpty() {
		s.mu.Unlock()
		return nil
	}
	s.cancelTimerLocked()
	s.state = Reduce(s.state, SaveStarted{})
	connID := s.conn.ID
	stageID, hasStage := s.resolveStageLocked()
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{
		"connection_id": connID,
		"auto":          auto,
	})

	if err := s.backend.SaveDraft(ctx, connID, EncodeDraft(email)); err != nil {
		err = opError(OpSaveDraft, err)
		s.dispatch(SaveFailed{Err: err})
		log.WithError(err).Error("Failed to save draft")
		return err
	}
	s.dispatch(SaveSucceeded{Saved: email, At: s.clock.Now()})
	log.Debug("Draft saved")

	if hasStage {
		body := email.Body
		s.updateStage(ctx, connID, stageID, models.StageUpdate{
			StageStatus:  models.StageDraft,
			DraftContent: &body,
		})
	}

	if s.listener.OnDraftSaved != nil {
		s.listener.OnDraftSaved(connID)
	}
	return nil
}

// Send validates, persists and sends the email. On success the stage is
// marked sent and the timeline advanced, both best effort, and the session
// closes. On a primary failure the session stays open with the error
// recorded.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.Open {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state.IsSending {
		s.mu.Unlock()
		return ErrBusy
	}
	email := s.state.Email()
	if err := validateForSend(email); err != nil {
		s.state = Reduce(s.state, SendFailed{Err: err})
		s.mu.Unlock()
		return err
	}
	s.cancelTimerLocked()
	s.state = Reduce(s.state, SendStarted{})
	connID := s.conn.ID
	stageID, hasStage := s.resolveStageLocked()
	s.mu.Unlock()

	log := s.log.WithField("connection_id", connID)

	if err := s.backend.SaveDraft(ctx, connID, EncodeDraft(email)); err != nil {
		return s.failSend(log, opError(OpSaveDraft, err))
	}
	if err := s.backend.SendEmail(ctx, connID, s.stageLabel, email.Subject, email.Body); err != nil {
		return s.failSend(log, opError(OpSendEmail, err))
	}

	sentAt := s.clock.Now()
	if hasStage {
		body := email.Body
		var wg conc.WaitGroup
		wg.Go(func() {
			s.updateStage(ctx, connID, stageID, models.StageUpdate{
				StageStatus:  models.StageSent,
				EmailContent: &body,
				SentAt:       &sentAt,
			})
		})
		wg.Go(func() {
			s.advanceTimeline(ctx, connID, stageID)
		})
		wg.Wait()
	}

	s.mu.Lock()
	s.cancelTimerLocked()
	s.state = Reduce(s.state, SendSucceeded{At: sentAt})
	s.mu.Unlock()

	log.Info("Email sent")

	if s.listener.OnEmailSent != nil {
		s.listener.OnEmailSent(connID)
	}
	return nil
}

// Close ends the session. With unsaved changes the caller must choose:
// CloseUndecided returns ErrUnsavedChanges and leaves the session open,
// CloseSave saves first and CloseDiscard drops the changes. Closing an
// already closed session is a no-op.
func (s *Session) Close(ctx context.Context, decision CloseDecision) error {
	s.mu.Lock()
	if !s.state.Open {
		s.mu.Unlock()
		return nil
	}
	if s.state.HasUnsavedChanges {
		switch decision {
		case CloseUndecided:
			s.mu.Unlock()
			return ErrUnsavedChanges
		case CloseSave:
			s.mu.Unlock()
			if err := s.SaveDraft(ctx, false); err != nil {
				return err
			}
			s.mu.Lock()
		}
	}
	s.cancelTimerLocked()
	s.state = Reduce(s.state, Closed{})
	s.mu.Unlock()
	return nil
}

func validateForSend(e Email) error {
	if strings.TrimSpace(e.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(e.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

func (s *Session) failSend(log *logrus.Entry, err error) error {
	s.dispatch(SendFailed{Err: err})
	log.WithError(err).Error("Failed to send email")
	return err
}

func (s *Session) updateStage(ctx context.Context, connID, stageID uint, update models.StageUpdate) {
	tl, err := s.backend.UpdateStage(ctx, connID, stageID, update)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"connection_id": connID,
			"stage_id":      stageID,
			"stage_status":  update.StageStatus,
			"operation":     "update_stage",
		}).WithError(err).Warn("Timeline stage update failed")
		return
	}
	s.reconcile(connID, tl)
}

func (s *Session) advanceTimeline(ctx context.Context, connID, stageID uint) {
	tl, err := s.backend.AdvanceTimeline(ctx, connID, models.TriggerSendEmail, stageID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"connection_id": connID,
			"stage_id":      stageID,
			"operation":     "advance_timeline",
		}).WithError(err).Warn("Timeline advance failed")
		return
	}
	s.reconcile(connID, tl)
}

func (s *Session) reconcile(connID uint, tl *models.Timeline) {
	if s.timeline != nil {
		s.timeline.Apply(connID, tl)
	}
}

func (s *Session) dispatch(ev Event) {
	s.mu.Lock()
	s.state = Reduce(s.state, ev)
	s.mu.Unlock()
}

// resolveStageLocked prefers the pinned stage over the connection's
// current_stage_id.
func (s *Session) resolveStageLocked() (uint, bool) {
	if s.stageID != nil {
		return *s.stageID, true
	}
	if s.conn.CurrentStageID != nil {
		return *s.conn.CurrentStageID, true
	}
	return 0, false
}

// armTimerLocked replaces any pending autosave with a fresh one. Each arm
// bumps the generation so a timer that fires after being superseded does
// nothing.
func (s *Session) armTimerLocked() {
	s.cancelTimerLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.autosaveDelay, func() {
		s.autosave(gen)
	})
}

func (s *Session) cancelTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) autosave(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.state.Open {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	if err := s.SaveDraft(context.Background(), true); err != nil {
		s.log.WithError(err).Warn("Autosave failed")
	}
}
