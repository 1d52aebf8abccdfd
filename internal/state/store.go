package state

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joescharf/codereview/internal/models"
)

var (
	// ErrUndeclaredKey is returned when a writer touches a key it did not declare.
	ErrUndeclaredKey = errors.New("write to undeclared key")
	// ErrAlreadySet is returned when a write-once key is written twice.
	ErrAlreadySet = errors.New("key already set")
	// ErrTypeMismatch is returned when a value does not fit its key.
	ErrTypeMismatch = errors.New("value type does not match key")
	// ErrOverlappingKeys is returned when concurrent writers share a key.
	ErrOverlappingKeys = errors.New("overlapping write keys")
)

// Store owns the Record for one run. Stages never mutate the Record
// directly; they hand an Update to Apply, which checks it against the
// writer's declared keys.
type Store struct {
	mu      sync.Mutex
	rec     Record
	written map[Key]bool
	lenient bool
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLenient makes Apply log and skip invalid writes instead of rejecting
// the whole update.
func WithLenient(lenient bool) Option {
	return func(s *Store) { s.lenient = lenient }
}

// WithLogger sets the logger used for skipped writes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store whose record holds only the input locator.
func NewStore(locator string, opts ...Option) *Store {
	s := &Store{
		rec: Record{
			RunID:        newRunID(),
			StartedAt:    time.Now().UTC(),
			InputLocator: locator,
			Warnings:     []string{},
		},
		written: map[Key]bool{KeyInputLocator: true},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply merges u into the record on behalf of w.
//
// In strict mode every entry is checked before anything is written, so a
// rejected update leaves the record untouched. In lenient mode invalid
// entries are logged and skipped while valid ones are applied.
func (s *Store) Apply(w Writer, u *Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	valid := make([]Entry, 0, len(u.Entries()))
	pending := make(map[Key]bool)
	for _, e := range u.Entries() {
		if err := s.check(w, e, pending); err != nil {
			if s.lenient {
				s.logger.Warn("skipping state write", "writer", w.Name, "key", e.Key, "error", err)
				continue
			}
			errs = append(errs, err)
			continue
		}
		if !appendOnly(e.Key) {
			pending[e.Key] = true
		}
		valid = append(valid, e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", w.Name, errors.Join(errs...))
	}

	for _, e := range valid {
		s.set(e)
		s.written[e.Key] = true
	}
	return nil
}

// check validates e without touching the record.
func (s *Store) check(w Writer, e Entry, pending map[Key]bool) error {
	if !w.Allows(e.Key) {
		return fmt.Errorf("%w: %q", ErrUndeclaredKey, e.Key)
	}
	if !appendOnly(e.Key) && (s.written[e.Key] || pending[e.Key]) {
		return fmt.Errorf("%w: %q", ErrAlreadySet, e.Key)
	}
	if _, err := coerce(e); err != nil {
		return err
	}
	return nil
}

// set writes a previously checked entry.
func (s *Store) set(e Entry) {
	v, _ := coerce(e)
	switch e.Key {
	case KeySourceKind:
		s.rec.SourceKind = v.(models.SourceKind)
	case KeyWorkingDirectory:
		s.rec.WorkingDirectory = v.(string)
	case KeyFileInventory:
		s.rec.FileInventory = v.(models.FileInventory).Clone()
	case KeySecurityFindings:
		s.rec.SecurityFindings = v.([]models.SecurityFinding)
	case KeyPerformanceFindings:
		s.rec.PerformanceFindings = v.([]models.PerformanceFinding)
	case KeyStyleFindings:
		s.rec.StyleFindings = v.([]models.StyleFinding)
	case KeyWarnings:
		s.rec.Warnings = append(s.rec.Warnings, v.([]string)...)
	case KeyTerminalError:
		s.rec.TerminalError = v.(string)
	case KeyReport:
		s.rec.Report = v.(string)
	case KeyReportLocation:
		s.rec.ReportLocation = v.(string)
	}
}

// Snapshot returns a deep copy of the record.
func (s *Store) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.clone()
}

// TerminalError returns the terminal error message, if any.
func (s *Store) TerminalError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.TerminalError
}

// Written reports whether k has been written.
func (s *Store) Written(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[k]
}

// coerce converts e.Value into the concrete type stored under e.Key.
func coerce(e Entry) (any, error) {
	mismatch := func() error {
		return fmt.Errorf("%w: %q got %T", ErrTypeMismatch, e.Key, e.Value)
	}
	switch e.Key {
	case KeyInputLocator:
		return nil, fmt.Errorf("%w: %q", ErrAlreadySet, e.Key)
	case KeySourceKind:
		switch v := e.Value.(type) {
		case models.SourceKind:
			return v, nil
		case string:
			return models.SourceKind(v), nil
		}
	case KeyWorkingDirectory, KeyTerminalError, KeyReport, KeyReportLocation:
		if v, ok := e.Value.(string); ok {
			return v, nil
		}
	case KeyFileInventory:
		switch v := e.Value.(type) {
		case models.FileInventory:
			return v, nil
		case *models.FileInventory:
			if v != nil {
				return *v, nil
			}
		}
	case KeySecurityFindings:
		return findingsOf[models.SecurityFinding](e.Value, mismatch)
	case KeyPerformanceFindings:
		return findingsOf[models.PerformanceFinding](e.Value, mismatch)
	case KeyStyleFindings:
		return findingsOf[models.StyleFinding](e.Value, mismatch)
	case KeyWarnings:
		switch v := e.Value.(type) {
		case string:
			return []string{v}, nil
		case []string:
			return slices.Clone(v), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown key %q", ErrUndeclaredKey, e.Key)
	}
	return nil, mismatch()
}

// findingsOf accepts either a typed slice or a []models.Finding whose
// elements all have type T. The result is never nil.
func findingsOf[T models.Finding](v any, mismatch func() error) ([]T, error) {
	out := []T{}
	switch vs := v.(type) {
	case []T:
		return append(out, vs...), nil
	case []models.Finding:
		for _, f := range vs {
			t, ok := f.(T)
			if !ok {
				return nil, mismatch()
			}
			out = append(out, t)
		}
		return out, nil
	case nil:
		return out, nil
	}
	return nil, mismatch()
}
