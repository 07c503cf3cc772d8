package store

import (
	"fmt"

	"schoolledger/internal/model"
)

func (s *Store) validateStaff(st *model.Staff) error {
	if err := s.validate.Struct(st); err != nil {
		return fmt.Errorf("staff: %v: %w", err, ErrValidation)
	}
	if !st.Status.Valid() {
		return fmt.Errorf("staff: unknown status %q: %w", st.Status, ErrValidation)
	}
	return nil
}

func (s *Store) CreateStaff(caller string, st model.Staff) error {
	if err := s.validateStaff(&st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.staff[st.SystemID]; ok {
		return fmt.Errorf("staff %q: %w", st.SystemID, ErrDuplicateKey)
	}
	s.staff[st.SystemID] = st
	s.appendAudit(caller, "createStaff", "staff "+st.SystemID)
	return nil
}

func (s *Store) UpdateStaff(caller string, st model.Staff) error {
	if err := s.validateStaff(&st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.staff[st.SystemID]; !ok {
		return fmt.Errorf("staff %q: %w", st.SystemID, ErrNotFound)
	}
	s.staff[st.SystemID] = st
	s.appendAudit(caller, "updateStaff", "staff "+st.SystemID)
	return nil
}

func (s *Store) DeleteStaff(caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.staff[id]; !ok {
		return fmt.Errorf("staff %q: %w", id, ErrNotFound)
	}
	delete(s.staff, id)
	s.appendAudit(caller, "deleteStaff", "staff "+id)
	return nil
}

func (s *Store) GetStaff(caller, id string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return model.Staff{}, err
	}
	st, ok := s.staff[id]
	if !ok {
		return model.Staff{}, fmt.Errorf("staff %q: %w", id, ErrNotFound)
	}
	return st, nil
}

func (s *Store) ListStaff(caller string) ([]model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := make([]model.Staff, 0, len(s.staff))
	for _, id := range sortedKeys(s.staff) {
		out = append(out, s.staff[id])
	}
	return out, nil
}
