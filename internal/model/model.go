package model

import "time"

// SystemRole is the coarse access tier granted by the identity provider.
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
	SystemRoleGuest SystemRole = "guest"
)

func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleAdmin, SystemRoleUser, SystemRoleGuest:
		return true
	default:
		return false
	}
}

// AppRole is the business-facing permission tier carried on a profile.
type AppRole string

const (
	AppRoleHeadmaster       AppRole = "headmaster"
	AppRoleAccountant       AppRole = "accountant"
	AppRoleExamsCoordinator AppRole = "examsCoordinator"
)

func (r AppRole) Valid() bool {
	switch r {
	case AppRoleHeadmaster, AppRoleAccountant, AppRoleExamsCoordinator:
		return true
	default:
		return false
	}
}

type AdmissionStatus string

const (
	AdmissionActive      AdmissionStatus = "active"
	AdmissionTransferred AdmissionStatus = "transferred"
	AdmissionDismissed   AdmissionStatus = "dismissed"
	AdmissionPromoted    AdmissionStatus = "promoted"
)

func (s AdmissionStatus) Valid() bool {
	switch s {
	case AdmissionActive, AdmissionTransferred, AdmissionDismissed, AdmissionPromoted:
		return true
	default:
		return false
	}
}

type StaffStatus string

const (
	StaffActive      StaffStatus = "active"
	StaffTransferred StaffStatus = "transferred"
	StaffDismissed   StaffStatus = "dismissed"
)

func (s StaffStatus) Valid() bool {
	switch s {
	case StaffActive, StaffTransferred, StaffDismissed:
		return true
	default:
		return false
	}
}

type FinancialType string

const (
	FinancialRevenue FinancialType = "revenue"
	FinancialExpense FinancialType = "expense"
)

func (t FinancialType) Valid() bool {
	switch t {
	case FinancialRevenue, FinancialExpense:
		return true
	default:
		return false
	}
}

// PhotoRef is an opaque content-addressed handle to an externally stored
// photo. Entity records carry only the handle; bytes and direct URLs are
// resolved through the blob store.
type PhotoRef string

// UserProfile maps an opaque caller identity to its roles. Disabling a
// profile sets Active=false; profiles are never deleted.
type UserProfile struct {
	Identity    string     `json:"identity" validate:"required"`
	FullName    string     `json:"fullName" validate:"required"`
	Role        SystemRole `json:"role"`
	AppRole     AppRole    `json:"appRole"`
	Active      bool       `json:"active"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Photo       *PhotoRef  `json:"photo,omitempty"`
}

type Student struct {
	SystemID    string          `json:"systemId" validate:"required"`
	FirstName   string          `json:"firstName" validate:"required"`
	LastName    string          `json:"lastName" validate:"required"`
	ClassName   string          `json:"className"`
	ParentName  string          `json:"parentName"`
	ParentPhone string          `json:"parentPhone"`
	Status      AdmissionStatus `json:"status"`
	Photo       *PhotoRef       `json:"photo,omitempty"`
}

type Staff struct {
	SystemID string      `json:"systemId" validate:"required"`
	Name     string      `json:"name" validate:"required"`
	Position string      `json:"position"`
	Status   StaffStatus `json:"status"`
	Photo    *PhotoRef   `json:"photo,omitempty"`
}

type FinancialRecord struct {
	SystemID    string        `json:"systemId" validate:"required"`
	Amount      float64       `json:"amount" validate:"gte=0"`
	Description string        `json:"description"`
	RecordType  FinancialType `json:"recordType"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ExamRecord stores the marks a student scored in one subject. Grade and
// Position are derived fields owned by the store: grade follows fixed mark
// thresholds and position is the record's rank within its subject+class
// cohort. Values submitted by callers for either field are ignored.
type ExamRecord struct {
	SystemID  string    `json:"systemId" validate:"required"`
	StudentID string    `json:"studentId" validate:"required"`
	Subject   string    `json:"subject" validate:"required"`
	Marks     float64   `json:"marks" validate:"gte=0,lte=100"`
	Grade     string    `json:"grade"`
	Position  int       `json:"position"`
	Remarks   string    `json:"remarks"`
	Timestamp time.Time `json:"timestamp"`
}

// SMSLog records a simulated send. Append-only.
type SMSLog struct {
	SystemID       string    `json:"systemId" validate:"required"`
	Receiver       string    `json:"receiver" validate:"required"`
	Message        string    `json:"message" validate:"required"`
	DeliveryStatus string    `json:"deliveryStatus"`
	Timestamp      time.Time `json:"timestamp"`
}

// AuditEntry is one line of the append-only audit trail.
type AuditEntry struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Document is the self-describing export blob: every collection in full.
// Photos serialise as their PhotoRef handles, resolvable on import.
type Document struct {
	Users            []UserProfile     `json:"users"`
	Students         []Student         `json:"students"`
	Staff            []Staff           `json:"staff"`
	FinancialRecords []FinancialRecord `json:"financialRecords"`
	ExamRecords      []ExamRecord      `json:"examRecords"`
	SMSLogs          []SMSLog          `json:"smsLogs"`
	AuditLogs        []AuditEntry      `json:"auditLogs,omitempty"`
}
