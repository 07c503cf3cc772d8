package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"schoolledger/internal/model"
)

// buildDocument assembles the export document from live state. Must be
// called with at least the read lock held.
func (s *Store) buildDocument() model.Document {
	doc := model.Document{
		Users:            make([]model.UserProfile, 0, len(s.users)),
		Students:         make([]model.Student, 0, len(s.students)),
		Staff:            make([]model.Staff, 0, len(s.staff)),
		FinancialRecords: make([]model.FinancialRecord, 0, len(s.finances)),
		ExamRecords:      make([]model.ExamRecord, 0, len(s.exams)),
		SMSLogs:          make([]model.SMSLog, len(s.sms)),
		AuditLogs:        make([]model.AuditEntry, len(s.audit)),
	}
	for _, id := range sortedKeys(s.users) {
		doc.Users = append(doc.Users, s.users[id])
	}
	for _, id := range sortedKeys(s.students) {
		doc.Students = append(doc.Students, s.students[id])
	}
	for _, id := range sortedKeys(s.staff) {
		doc.Staff = append(doc.Staff, s.staff[id])
	}
	for _, id := range sortedKeys(s.finances) {
		doc.FinancialRecords = append(doc.FinancialRecords, s.finances[id])
	}
	for _, id := range sortedKeys(s.exams) {
		doc.ExamRecords = append(doc.ExamRecords, s.exams[id].rec)
	}
	copy(doc.SMSLogs, s.sms)
	copy(doc.AuditLogs, s.audit)
	return doc
}

// ExportAll serialises every collection into one JSON blob. Headmaster only.
// The blob is a pure copy of state; the act of exporting is audited.
func (s *Store) ExportAll(caller string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return "", err
	}
	doc := s.buildDocument()
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %v: %w", err, ErrInternal)
	}
	s.appendAudit(caller, "exportAllData", "full snapshot")
	return string(blob), nil
}

// ImportAll validates the document and then atomically replaces the whole
// dataset. A malformed document is rejected with one aggregate error and
// leaves every collection untouched. Headmaster only.
func (s *Store) ImportAll(caller, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireRole(caller, model.AppRoleHeadmaster); err != nil {
		return err
	}
	doc, err := s.parseDocument(data)
	if err != nil {
		return err
	}
	s.replace(doc)
	s.appendAudit(caller, "importData", "full snapshot")
	return nil
}

// parseDocument decodes and fully validates an import blob before any state
// changes. All problems are reported in one error.
func (s *Store) parseDocument(data string) (model.Document, error) {
	var doc model.Document
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return model.Document{}, fmt.Errorf("import document: %v: %w", err, ErrValidation)
	}

	var issues []string
	seen := map[string]bool{}
	dup := func(kind, id string) bool {
		key := kind + "\x00" + id
		if seen[key] {
			return true
		}
		seen[key] = true
		return false
	}
	for i := range doc.Users {
		if err := s.validateProfile(&doc.Users[i]); err != nil {
			issues = append(issues, err.Error())
		}
		if dup("user", doc.Users[i].Identity) {
			issues = append(issues, fmt.Sprintf("duplicate user %q", doc.Users[i].Identity))
		}
	}
	for i := range doc.Students {
		if err := s.validateStudent(&doc.Students[i]); err != nil {
			issues = append(issues, err.Error())
		}
		if dup("student", doc.Students[i].SystemID) {
			issues = append(issues, fmt.Sprintf("duplicate student %q", doc.Students[i].SystemID))
		}
	}
	for i := range doc.Staff {
		if err := s.validateStaff(&doc.Staff[i]); err != nil {
			issues = append(issues, err.Error())
		}
		if dup("staff", doc.Staff[i].SystemID) {
			issues = append(issues, fmt.Sprintf("duplicate staff %q", doc.Staff[i].SystemID))
		}
	}
	for i := range doc.FinancialRecords {
		if err := s.validateFinancial(&doc.FinancialRecords[i]); err != nil {
			issues = append(issues, err.Error())
		}
		if dup("financialRecord", doc.FinancialRecords[i].SystemID) {
			issues = append(issues, fmt.Sprintf("duplicate financial record %q", doc.FinancialRecords[i].SystemID))
		}
	}
	for i := range doc.ExamRecords {
		if err := s.validateExam(&doc.ExamRecords[i]); err != nil {
			issues = append(issues, err.Error())
		}
		if dup("examRecord", doc.ExamRecords[i].SystemID) {
			issues = append(issues, fmt.Sprintf("duplicate exam record %q", doc.ExamRecords[i].SystemID))
		}
	}
	for i := range doc.SMSLogs {
		if err := s.validate.Struct(&doc.SMSLogs[i]); err != nil {
			issues = append(issues, fmt.Sprintf("sms log: %v", err))
		}
		if dup("smsLog", doc.SMSLogs[i].SystemID) {
			issues = append(issues, fmt.Sprintf("duplicate sms log %q", doc.SMSLogs[i].SystemID))
		}
	}
	if len(issues) > 0 {
		return model.Document{}, fmt.Errorf("import document: %s: %w", strings.Join(issues, "; "), ErrValidation)
	}
	return doc, nil
}

// replace swaps in the document's contents wholesale. Must be called with
// the write lock held and only with a validated document.
func (s *Store) replace(doc model.Document) {
	s.users = make(map[string]model.UserProfile, len(doc.Users))
	for _, u := range doc.Users {
		s.users[u.Identity] = u
	}
	s.students = make(map[string]model.Student, len(doc.Students))
	for _, st := range doc.Students {
		s.students[st.SystemID] = st
	}
	s.staff = make(map[string]model.Staff, len(doc.Staff))
	for _, st := range doc.Staff {
		s.staff[st.SystemID] = st
	}
	s.finances = make(map[string]model.FinancialRecord, len(doc.FinancialRecords))
	for _, rec := range doc.FinancialRecords {
		s.finances[rec.SystemID] = rec
	}
	s.exams = make(map[string]examEntry, len(doc.ExamRecords))
	s.examSeq = 0
	// The document's positions encode the original insertion order within
	// each cohort (ties rank first-inserted first). Seed seq in position
	// order so recomputation reproduces the imported ranks.
	ordered := append([]model.ExamRecord(nil), doc.ExamRecords...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	for _, rec := range ordered {
		rec.Grade = gradeFor(rec.Marks)
		s.examSeq++
		s.exams[rec.SystemID] = examEntry{rec: rec, seq: s.examSeq}
	}
	s.recomputePositions()
	s.sms = append([]model.SMSLog(nil), doc.SMSLogs...)
	s.smsIDs = make(map[string]struct{}, len(doc.SMSLogs))
	for _, entry := range doc.SMSLogs {
		s.smsIDs[entry.SystemID] = struct{}{}
	}
	if doc.AuditLogs != nil {
		s.audit = append([]model.AuditEntry(nil), doc.AuditLogs...)
	}
}

// SnapshotJSON is the unaudited export used by the autosave job and boot
// restore. It performs no authorization: callers are in-process only.
func (s *Store) SnapshotJSON() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, err := json.MarshalIndent(s.buildDocument(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %v: %w", err, ErrInternal)
	}
	return string(blob), nil
}

// RestoreJSON loads a snapshot produced by SnapshotJSON, replacing all
// state. Used at boot before the server starts accepting calls.
func (s *Store) RestoreJSON(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.parseDocument(data)
	if err != nil {
		return err
	}
	s.replace(doc)
	return nil
}
