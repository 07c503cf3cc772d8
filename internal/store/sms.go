package store

import (
	"fmt"

	"schoolledger/internal/model"
)

const simulatedDelivery = "sent (simulated)"

// LogSMS records a simulated send. No message leaves the system; the log is
// the whole effect. Any active profile may log. The collection is
// append-only, kept as a slice like the audit trail.
func (s *Store) LogSMS(caller string, entry model.SMSLog) error {
	if err := s.validate.Struct(&entry); err != nil {
		return fmt.Errorf("sms log: %v: %w", err, ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(caller); err != nil {
		return err
	}
	if _, ok := s.smsIDs[entry.SystemID]; ok {
		return fmt.Errorf("sms log %q: %w", entry.SystemID, ErrDuplicateKey)
	}
	if entry.DeliveryStatus == "" {
		entry.DeliveryStatus = simulatedDelivery
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.tick()
	}
	s.sms = append(s.sms, entry)
	s.smsIDs[entry.SystemID] = struct{}{}
	s.appendAudit(caller, "logSMS", "smsLog "+entry.SystemID)
	return nil
}

// ListSMSLogs returns all logs in append order, oldest first.
func (s *Store) ListSMSLogs(caller string) ([]model.SMSLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.requireActive(caller); err != nil {
		return nil, err
	}
	out := make([]model.SMSLog, len(s.sms))
	copy(out, s.sms)
	return out, nil
}
