package store

import (
	"fmt"

	"schoolledger/internal/model"
)

func (s *Store) validateFinancial(rec *model.FinancialRecord) error {
	if err := s.validate.Struct(rec); err != nil {
		return fmt.Errorf("financial record: %v: %w", err, ErrValidation)
	}
	if !rec.RecordType.Valid() {
		return fmt.Errorf("financial record: unknown type %q: %w", rec.RecordType, ErrValidation)
	}
	return nil
}

func (s *Store) AddFinancialRecord(caller string, rec model.FinancialRecord) error {
	if err := s.validateFinancial(&rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleAccountant); err != nil {
		return err
	}
	if _, ok := s.finances[rec.SystemID]; ok {
		return fmt.Errorf("financial record %q: %w", rec.SystemID, ErrDuplicateKey)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.tick()
	}
	s.finances[rec.SystemID] = rec
	s.appendAudit(caller, "addFinancialRecord", "financialRecord "+rec.SystemID)
	return nil
}

// UpdateFinancialRecord replaces the stored record. The record type is fixed
// at creation; an update that tries to flip revenue/expense is rejected.
func (s *Store) UpdateFinancialRecord(caller string, rec model.FinancialRecord) error {
	if err := s.validateFinancial(&rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleAccountant); err != nil {
		return err
	}
	current, ok := s.finances[rec.SystemID]
	if !ok {
		return fmt.Errorf("financial record %q: %w", rec.SystemID, ErrNotFound)
	}
	if rec.RecordType != current.RecordType {
		return fmt.Errorf("financial record %q: record type is immutable: %w", rec.SystemID, ErrValidation)
	}
	s.finances[rec.SystemID] = rec
	s.appendAudit(caller, "updateFinancialRecord", "financialRecord "+rec.SystemID)
	return nil
}

func (s *Store) DeleteFinancialRecord(caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster, model.AppRoleAccountant); err != nil {
		return err
	}
	if _, ok := s.finances[id]; !ok {
		return fmt.Errorf("financial record %q: %w", id, ErrNotFound)
	}
	delete(s.finances, id)
	s.appendAudit(caller, "deleteFinancialRecord", "financialRecord "+id)
	return nil
}

func (s *Store) GetFinancialRecord(caller, id string) (model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return model.FinancialRecord{}, err
	}
	rec, ok := s.finances[id]
	if !ok {
		return model.FinancialRecord{}, fmt.Errorf("financial record %q: %w", id, ErrNotFound)
	}
	return rec, nil
}

func (s *Store) ListFinancialRecords(caller string) ([]model.FinancialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := make([]model.FinancialRecord, 0, len(s.finances))
	for _, id := range sortedKeys(s.finances) {
		out = append(out, s.finances[id])
	}
	return out, nil
}
