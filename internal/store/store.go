package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"schoolledger/internal/model"
)

// Store holds every record collection behind one lock. All mutations run to
// completion under the write lock, so readers never observe a half-applied
// create/update/delete, and import can replace the whole dataset in one
// critical section.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	validate *validator.Validate

	users    map[string]model.UserProfile
	students map[string]model.Student
	staff    map[string]model.Staff
	finances map[string]model.FinancialRecord
	exams    map[string]examEntry
	sms      []model.SMSLog
	smsIDs   map[string]struct{}
	audit    []model.AuditEntry

	examSeq uint64
	lastTS  time.Time
}

type examEntry struct {
	rec model.ExamRecord
	seq uint64
}

type Option func(*Store)

// WithClock overrides the store clock. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		validate: validator.New(),
		users:    map[string]model.UserProfile{},
		students: map[string]model.Student{},
		staff:    map[string]model.Staff{},
		finances: map[string]model.FinancialRecord{},
		exams:    map[string]examEntry{},
		smsIDs:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap seeds an admin headmaster profile for the given identity when no
// users exist yet. Without it the very first createUser call would have no
// authorized caller.
func (s *Store) Bootstrap(identity, fullName string) bool {
	if identity == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 {
		return false
	}
	s.users[identity] = model.UserProfile{
		Identity:    identity,
		FullName:    fullName,
		Role:        model.SystemRoleAdmin,
		AppRole:     model.AppRoleHeadmaster,
		Active:      true,
		LastUpdated: s.tick(),
	}
	return true
}

// requireActive checks that the caller has an active profile. Callers without
// one are unauthenticated as far as the domain is concerned, whatever token
// they presented. Must be called with at least the read lock held.
func (s *Store) requireActive(caller string) error {
	if caller == "" {
		return fmt.Errorf("missing caller: %w", ErrUnauthenticated)
	}
	profile, ok := s.users[caller]
	if !ok {
		return fmt.Errorf("no profile for caller: %w", ErrUnauthenticated)
	}
	if !profile.Active {
		return fmt.Errorf("profile disabled: %w", ErrUnauthenticated)
	}
	return nil
}

// requireRole allows the caller when its application role is one of roles.
// Must be called with the lock held.
func (s *Store) requireRole(caller string, roles ...model.AppRole) error {
	if err := s.requireActive(caller); err != nil {
		return err
	}
	profile := s.users[caller]
	for _, role := range roles {
		if profile.AppRole == role {
			return nil
		}
	}
	return fmt.Errorf("role %s: %w", profile.AppRole, ErrForbidden)
}

// requireIdentityAdmin gates identity-management operations. The admin system
// role bypasses the application-role check here and only here; domain entity
// mutations never honor it.
func (s *Store) requireIdentityAdmin(caller string) error {
	if err := s.requireActive(caller); err != nil {
		return err
	}
	profile := s.users[caller]
	if profile.Role == model.SystemRoleAdmin || profile.AppRole == model.AppRoleHeadmaster {
		return nil
	}
	return fmt.Errorf("role %s: %w", profile.AppRole, ErrForbidden)
}

// tick returns the current time, clamped so consecutive calls never go
// backwards. Audit ordering relies on this.
func (s *Store) tick() time.Time {
	ts := s.now().UTC()
	if ts.Before(s.lastTS) {
		ts = s.lastTS
	}
	s.lastTS = ts
	return ts
}

// appendAudit records one completed mutation. Must be called with the write
// lock held, after the mutation has been applied.
func (s *Store) appendAudit(caller, action, details string) {
	s.audit = append(s.audit, model.AuditEntry{
		ID:        uuid.NewString(),
		User:      caller,
		Action:    action,
		Details:   details,
		Timestamp: s.tick(),
	})
}

// ListAuditLogs returns the full trail oldest first. Headmaster only.
func (s *Store) ListAuditLogs(caller string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return nil, err
	}
	out := make([]model.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out, nil
}

// ActiveCaller reports whether the identity has an active profile. Transport
// layers use it to gate operations that do not go through a store mutation.
func (s *Store) ActiveCaller(caller string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requireActive(caller) == nil
}

// AuditLen reports the current trail length without an authorization check.
func (s *Store) AuditLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audit)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
