package store

import (
	"fmt"
	"sort"

	"schoolledger/internal/model"
)

// gradeFor maps marks to a letter grade. Boundaries are inclusive at the
// lower edge: exactly 80 is an A, exactly 50 is a D.
func gradeFor(marks float64) string {
	switch {
	case marks >= 80:
		return "A"
	case marks >= 70:
		return "B"
	case marks >= 60:
		return "C"
	case marks >= 50:
		return "D"
	default:
		return "F"
	}
}

// cohortKey groups exam records that rank against each other: same subject,
// same class. Records whose student is unknown fall into the subject's
// empty-class cohort.
func (s *Store) cohortKey(rec model.ExamRecord) string {
	className := ""
	if st, ok := s.students[rec.StudentID]; ok {
		className = st.ClassName
	}
	return rec.Subject + "\x00" + className
}

// recomputePositions rewrites the derived Position of every exam record:
// rank within its cohort by descending marks, ties broken by insertion
// order. Called under the write lock after any mutation that can change a
// cohort's membership or marks.
func (s *Store) recomputePositions() {
	cohorts := map[string][]string{}
	for id, entry := range s.exams {
		key := s.cohortKey(entry.rec)
		cohorts[key] = append(cohorts[key], id)
	}
	for _, ids := range cohorts {
		sort.Slice(ids, func(i, j int) bool {
			a, b := s.exams[ids[i]], s.exams[ids[j]]
			if a.rec.Marks != b.rec.Marks {
				return a.rec.Marks > b.rec.Marks
			}
			return a.seq < b.seq
		})
		for pos, id := range ids {
			entry := s.exams[id]
			entry.rec.Position = pos + 1
			s.exams[id] = entry
		}
	}
}

func (s *Store) validateExam(rec *model.ExamRecord) error {
	if err := s.validate.Struct(rec); err != nil {
		return fmt.Errorf("exam record: %v: %w", err, ErrValidation)
	}
	return nil
}

func (s *Store) AddExamRecord(caller string, rec model.ExamRecord) error {
	if err := s.validateExam(&rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleExamsCoordinator); err != nil {
		return err
	}
	if _, ok := s.exams[rec.SystemID]; ok {
		return fmt.Errorf("exam record %q: %w", rec.SystemID, ErrDuplicateKey)
	}
	rec.Grade = gradeFor(rec.Marks)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.tick()
	}
	s.examSeq++
	s.exams[rec.SystemID] = examEntry{rec: rec, seq: s.examSeq}
	s.recomputePositions()
	s.appendAudit(caller, "addExamRecord", "examRecord "+rec.SystemID)
	return nil
}

func (s *Store) UpdateExamRecord(caller string, rec model.ExamRecord) error {
	if err := s.validateExam(&rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleExamsCoordinator); err != nil {
		return err
	}
	current, ok := s.exams[rec.SystemID]
	if !ok {
		return fmt.Errorf("exam record %q: %w", rec.SystemID, ErrNotFound)
	}
	rec.Grade = gradeFor(rec.Marks)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = current.rec.Timestamp
	}
	s.exams[rec.SystemID] = examEntry{rec: rec, seq: current.seq}
	s.recomputePositions()
	s.appendAudit(caller, "updateExamRecord", "examRecord "+rec.SystemID)
	return nil
}

func (s *Store) DeleteExamRecord(caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleExamsCoordinator); err != nil {
		return err
	}
	if _, ok := s.exams[id]; !ok {
		return fmt.Errorf("exam record %q: %w", id, ErrNotFound)
	}
	delete(s.exams, id)
	s.recomputePositions()
	s.appendAudit(caller, "deleteExamRecord", "examRecord "+id)
	return nil
}

func (s *Store) GetExamRecord(caller, id string) (model.ExamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return model.ExamRecord{}, err
	}
	entry, ok := s.exams[id]
	if !ok {
		return model.ExamRecord{}, fmt.Errorf("exam record %q: %w", id, ErrNotFound)
	}
	return entry.rec, nil
}

func (s *Store) ListExamRecords(caller string) ([]model.ExamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := make([]model.ExamRecord, 0, len(s.exams))
	for _, id := range sortedKeys(s.exams) {
		out = append(out, s.exams[id].rec)
	}
	return out, nil
}

func (s *Store) ListStudentExamRecords(caller, studentID string) ([]model.ExamRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := []model.ExamRecord{}
	for _, id := range sortedKeys(s.exams) {
		if entry := s.exams[id]; entry.rec.StudentID == studentID {
			out = append(out, entry.rec)
		}
	}
	return out, nil
}
