package store

import (
	"fmt"

	"schoolledger/internal/model"
)

func (s *Store) validateProfile(p *model.UserProfile) error {
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("profile: %v: %w", err, ErrValidation)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("profile: unknown system role %q: %w", p.Role, ErrValidation)
	}
	if !p.AppRole.Valid() {
		return fmt.Errorf("profile: unknown app role %q: %w", p.AppRole, ErrValidation)
	}
	return nil
}

// CreateUser registers a profile for a new identity.
func (s *Store) CreateUser(caller, identity string, profile model.UserProfile) error {
	profile.Identity = identity
	if err := s.validateProfile(&profile); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return err
	}
	if _, ok := s.users[identity]; ok {
		return fmt.Errorf("user %q: %w", identity, ErrDuplicateKey)
	}
	profile.LastUpdated = s.tick()
	s.users[identity] = profile
	s.appendAudit(caller, "createUser", "user "+identity)
	return nil
}

// UpdateUser replaces the stored profile for identity. Full replace: fields
// absent from the new profile are cleared, not merged.
func (s *Store) UpdateUser(caller, identity string, profile model.UserProfile) error {
	profile.Identity = identity
	if err := s.validateProfile(&profile); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return err
	}
	if _, ok := s.users[identity]; !ok {
		return fmt.Errorf("user %q: %w", identity, ErrNotFound)
	}
	profile.LastUpdated = s.tick()
	s.users[identity] = profile
	s.appendAudit(caller, "updateUser", "user "+identity)
	return nil
}

// DisableUser deactivates a profile. Profiles are never deleted, so the
// audit trail always resolves past callers.
func (s *Store) DisableUser(caller, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return err
	}
	profile, ok := s.users[identity]
	if !ok {
		return fmt.Errorf("user %q: %w", identity, ErrNotFound)
	}
	profile.Active = false
	profile.LastUpdated = s.tick()
	s.users[identity] = profile
	s.appendAudit(caller, "disableUser", "user "+identity)
	return nil
}

// AssignRole changes the system role of an identity.
func (s *Store) AssignRole(caller, identity string, role model.SystemRole) error {
	if !role.Valid() {
		return fmt.Errorf("unknown system role %q: %w", role, ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return err
	}
	profile, ok := s.users[identity]
	if !ok {
		return fmt.Errorf("user %q: %w", identity, ErrNotFound)
	}
	profile.Role = role
	profile.LastUpdated = s.tick()
	s.users[identity] = profile
	s.appendAudit(caller, "assignRole", "user "+identity+" role "+string(role))
	return nil
}

// SaveCallerProfile lets a caller update its own name and photo. Roles and
// the active flag are pinned to the stored values so nobody self-escalates.
func (s *Store) SaveCallerProfile(caller string, profile model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(caller); err != nil {
		return err
	}
	current := s.users[caller]
	profile.Identity = caller
	profile.Role = current.Role
	profile.AppRole = current.AppRole
	profile.Active = current.Active
	if err := s.validateProfile(&profile); err != nil {
		return err
	}
	profile.LastUpdated = s.tick()
	s.users[caller] = profile
	s.appendAudit(caller, "saveCallerUserProfile", "user "+caller)
	return nil
}

// CallerProfile returns the caller's own profile. Always allowed, even for
// disabled profiles: the UI needs it to explain why access is denied.
func (s *Store) CallerProfile(caller string) (model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.users[caller]
	return profile, ok
}

// CallerRole reports the caller's system role, guest when no profile exists.
func (s *Store) CallerRole(caller string) model.SystemRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.users[caller]
	if !ok {
		return model.SystemRoleGuest
	}
	return profile.Role
}

func (s *Store) IsAdmin(caller string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.users[caller]
	return ok && profile.Active && profile.Role == model.SystemRoleAdmin
}

// GetProfile returns another identity's profile. Identity-management read.
func (s *Store) GetProfile(caller, identity string) (model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return model.UserProfile{}, err
	}
	profile, ok := s.users[identity]
	if !ok {
		return model.UserProfile{}, fmt.Errorf("user %q: %w", identity, ErrNotFound)
	}
	return profile, nil
}

func (s *Store) ListUsers(caller string) ([]model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireIdentityAdmin(caller); err != nil {
		return nil, err
	}
	out := make([]model.UserProfile, 0, len(s.users))
	for _, id := range sortedKeys(s.users) {
		out = append(out, s.users[id])
	}
	return out, nil
}
