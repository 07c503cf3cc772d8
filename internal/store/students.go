package store

import (
	"fmt"

	"schoolledger/internal/model"
)

func (s *Store) validateStudent(st *model.Student) error {
	if err := s.validate.Struct(st); err != nil {
		return fmt.Errorf("student: %v: %w", err, ErrValidation)
	}
	if !st.Status.Valid() {
		return fmt.Errorf("student: unknown status %q: %w", st.Status, ErrValidation)
	}
	return nil
}

func (s *Store) CreateStudent(caller string, st model.Student) error {
	if err := s.validateStudent(&st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.students[st.SystemID]; ok {
		return fmt.Errorf("student %q: %w", st.SystemID, ErrDuplicateKey)
	}
	s.students[st.SystemID] = st
	// Exam records may already reference this student; their cohort gains a
	// class name now.
	s.recomputePositions()
	s.appendAudit(caller, "createStudent", "student "+st.SystemID)
	return nil
}

func (s *Store) UpdateStudent(caller string, st model.Student) error {
	if err := s.validateStudent(&st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.students[st.SystemID]; !ok {
		return fmt.Errorf("student %q: %w", st.SystemID, ErrNotFound)
	}
	s.students[st.SystemID] = st
	// Class changes move the student's exam records into another cohort.
	s.recomputePositions()
	s.appendAudit(caller, "updateStudent", "student "+st.SystemID)
	return nil
}

func (s *Store) DeleteStudent(caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	if _, ok := s.students[id]; !ok {
		return fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	delete(s.students, id)
	s.recomputePositions()
	s.appendAudit(caller, "deleteStudent", "student "+id)
	return nil
}

// TransferStudent marks a student transferred. The prior status is not
// checked; repeating the call is a no-op that still audits.
func (s *Store) TransferStudent(caller, id string) error {
	return s.setStudentStatus(caller, id, model.AdmissionTransferred, "transferStudent")
}

// DismissStudent marks a student dismissed, with the same idempotent shape
// as TransferStudent.
func (s *Store) DismissStudent(caller, id string) error {
	return s.setStudentStatus(caller, id, model.AdmissionDismissed, "dismissStudent")
}

func (s *Store) setStudentStatus(caller, id string, status model.AdmissionStatus, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	st, ok := s.students[id]
	if !ok {
		return fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	st.Status = status
	s.students[id] = st
	s.appendAudit(caller, action, "student "+id)
	return nil
}

func (s *Store) GetStudent(caller, id string) (model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return model.Student{}, err
	}
	st, ok := s.students[id]
	if !ok {
		return model.Student{}, fmt.Errorf("student %q: %w", id, ErrNotFound)
	}
	return st, nil
}

func (s *Store) ListStudents(caller string) ([]model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := make([]model.Student, 0, len(s.students))
	for _, id := range sortedKeys(s.students) {
		out = append(out, s.students[id])
	}
	return out, nil
}
