package bolock

import (
	"context"
	"errors"
	"log/slog"
)

// Session drives a Control through one business object's edit/save cycle.
// It calls the control at the documented points and propagates every
// conflict unchanged. A Session is not safe for concurrent use.
type Session struct {
	obj     Object
	ctrl    Control
	log     *slog.Logger
	editing bool
}

// SessionOption configures the Session.
type SessionOption func(*Session)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession returns a Session for obj guarded by ctrl.
func NewSession(obj Object, ctrl Control, opts ...SessionOption) *Session {
	s := &Session{
		obj:  obj,
		ctrl: ctrl,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("class", obj.ClassName(), "id", obj.ID().String())
	return s
}

// Editing reports whether an edit is in progress.
func (s *Session) Editing() bool { return s.editing }

// BeginEdit starts an edit. Calling it while already editing is a no-op.
func (s *Session) BeginEdit(ctx context.Context) error {
	if s.editing {
		return nil
	}
	if err := s.ctrl.CheckBeforeBeginEdit(ctx); err != nil {
		s.logFailure(ctx, "begin edit refused", err)
		return err
	}
	s.editing = true
	s.log.DebugContext(ctx, "edit started")
	return nil
}

// Save checks, stamps and persists the object. persist issues the actual
// write; if it fails the stamping is rolled back and its error returned.
// After a successful write the locks are released and the edit ends.
func (s *Session) Save(ctx context.Context, persist func(context.Context) error) error {
	if err := s.ctrl.CheckBeforePersist(ctx); err != nil {
		s.logFailure(ctx, "save refused", err)
		return err
	}
	s.ctrl.PrepareForPersist()
	if err := persist(ctx); err != nil {
		s.ctrl.Rollback()
		s.log.WarnContext(ctx, "persist failed, rolled back", "error", err)
		return err
	}
	s.editing = false
	if err := s.ctrl.ReleaseLocks(ctx); err != nil {
		s.log.WarnContext(ctx, "releasing locks after save", "error", err)
		return err
	}
	s.log.DebugContext(ctx, "saved")
	return nil
}

// CancelEdit ends the edit without saving and releases any lock.
func (s *Session) CancelEdit(ctx context.Context) error {
	s.editing = false
	if err := s.ctrl.ReleaseLocks(ctx); err != nil {
		s.log.WarnContext(ctx, "releasing locks after cancel", "error", err)
		return err
	}
	return nil
}

func (s *Session) logFailure(ctx context.Context, msg string, err error) {
	var ts *TimestampError
	switch {
	case IsConflict(err):
		s.log.InfoContext(ctx, msg, "error", err)
	case errors.As(err, &ts):
		s.log.ErrorContext(ctx, msg, "column", ts.Column, "error", err)
	default:
		s.log.WarnContext(ctx, msg, "error", err)
	}
}
