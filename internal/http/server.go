package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolledger/internal/auth"
	"schoolledger/internal/blob"
	"schoolledger/internal/config"
	"schoolledger/internal/model"
	"schoolledger/internal/store"
)

const maxPhotoBytes = 5 << 20

type Server struct {
	cfg    config.Config
	store  *store.Store
	photos blob.Store
}

func NewServer(cfg config.Config, st *store.Store, photos blob.Store) *Server {
	return &Server{cfg: cfg, store: st, photos: photos}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", s.handleCallerProfile)
			r.Put("/", s.handleSaveCallerProfile)
			r.Get("/role", s.handleCallerRole)
			r.Get("/admin", s.handleIsAdmin)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/{identity}", s.handleGetProfile)
			r.Put("/{identity}", s.handleUpdateUser)
			r.Post("/{identity}/disable", s.handleDisableUser)
			r.Post("/{identity}/role", s.handleAssignRole)
		})

		r.Route("/students", func(r chi.Router) {
			r.Get("/", s.handleListStudents)
			r.Post("/", s.handleCreateStudent)
			r.Get("/{id}", s.handleGetStudent)
			r.Put("/{id}", s.handleUpdateStudent)
			r.Delete("/{id}", s.handleDeleteStudent)
			r.Post("/{id}/transfer", s.handleTransferStudent)
			r.Post("/{id}/dismiss", s.handleDismissStudent)
			r.Get("/{id}/exams", s.handleListStudentExams)
		})

		r.Route("/staff", func(r chi.Router) {
			r.Get("/", s.handleListStaff)
			r.Post("/", s.handleCreateStaff)
			r.Get("/{id}", s.handleGetStaff)
			r.Put("/{id}", s.handleUpdateStaff)
			r.Delete("/{id}", s.handleDeleteStaff)
		})

		r.Route("/finance", func(r chi.Router) {
			r.Get("/", s.handleListFinancialRecords)
			r.Post("/", s.handleAddFinancialRecord)
			r.Get("/{id}", s.handleGetFinancialRecord)
			r.Put("/{id}", s.handleUpdateFinancialRecord)
			r.Delete("/{id}", s.handleDeleteFinancialRecord)
		})

		r.Route("/exams", func(r chi.Router) {
			r.Get("/", s.handleListExamRecords)
			r.Post("/", s.handleAddExamRecord)
			r.Get("/{id}", s.handleGetExamRecord)
			r.Put("/{id}", s.handleUpdateExamRecord)
			r.Delete("/{id}", s.handleDeleteExamRecord)
		})

		r.Route("/sms", func(r chi.Router) {
			r.Get("/", s.handleListSMSLogs)
			r.Post("/", s.handleLogSMS)
		})

		r.Get("/audit", s.handleListAuditLogs)

		r.Route("/backup", func(r chi.Router) {
			r.Get("/export", s.handleExport)
			r.Post("/import", s.handleImport)
		})

		r.Route("/photos", func(r chi.Router) {
			r.Post("/", s.handleUploadPhoto)
			r.Get("/{ref}", s.handleGetPhoto)
		})
	})

	return r
}

// --- identity ---

func (s *Server) handleCallerProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := s.store.CallerProfile(identityFromContext(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSaveCallerProfile(w http.ResponseWriter, r *http.Request) {
	var profile model.UserProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.SaveCallerProfile(identityFromContext(r.Context()), profile); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("saveCallerUserProfile").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCallerRole(w http.ResponseWriter, r *http.Request) {
	role := s.store.CallerRole(identityFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]model.SystemRole{"role": role})
}

func (s *Server) handleIsAdmin(w http.ResponseWriter, r *http.Request) {
	admin := s.store.IsAdmin(identityFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"admin": admin})
}

type createUserRequest struct {
	Identity string            `json:"identity"`
	Profile  model.UserProfile `json:"profile"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		writeError(w, http.StatusBadRequest, "missing_identity")
		return
	}
	if err := s.store.CreateUser(identityFromContext(r.Context()), req.Identity, req.Profile); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("createUser").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var profile model.UserProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.UpdateUser(identityFromContext(r.Context()), chi.URLParam(r, "identity"), profile); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("updateUser").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDisableUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DisableUser(identityFromContext(r.Context()), chi.URLParam(r, "identity")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("disableUser").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type assignRoleRequest struct {
	Role model.SystemRole `json:"role"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.AssignRole(identityFromContext(r.Context()), chi.URLParam(r, "identity"), req.Role); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("assignRole").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(identityFromContext(r.Context()), chi.URLParam(r, "identity"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// --- students ---

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var st model.Student
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.CreateStudent(identityFromContext(r.Context()), st); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("createStudent").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var st model.Student
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	st.SystemID = chi.URLParam(r, "id")
	if err := s.store.UpdateStudent(identityFromContext(r.Context()), st); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("updateStudent").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStudent(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("deleteStudent").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransferStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.TransferStudent(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("transferStudent").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDismissStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DismissStudent(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("dismissStudent").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStudent(identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.store.ListStudents(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

// --- staff ---

func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var st model.Staff
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.CreateStaff(identityFromContext(r.Context()), st); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("createStaff").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	var st model.Staff
	if err := decodeJSON(r, &st); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	st.SystemID = chi.URLParam(r, "id")
	if err := s.store.UpdateStaff(identityFromContext(r.Context()), st); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("updateStaff").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStaff(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("deleteStaff").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetStaff(identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.store.ListStaff(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, staff)
}

// --- finance ---

func (s *Server) handleAddFinancialRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.FinancialRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.AddFinancialRecord(identityFromContext(r.Context()), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("addFinancialRecord").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateFinancialRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.FinancialRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	rec.SystemID = chi.URLParam(r, "id")
	if err := s.store.UpdateFinancialRecord(identityFromContext(r.Context()), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("updateFinancialRecord").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteFinancialRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteFinancialRecord(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("deleteFinancialRecord").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFinancialRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetFinancialRecord(identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListFinancialRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListFinancialRecords(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- exams ---

func (s *Server) handleAddExamRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.ExamRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.AddExamRecord(identityFromContext(r.Context()), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("addExamRecord").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleUpdateExamRecord(w http.ResponseWriter, r *http.Request) {
	var rec model.ExamRecord
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	rec.SystemID = chi.URLParam(r, "id")
	if err := s.store.UpdateExamRecord(identityFromContext(r.Context()), rec); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("updateExamRecord").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteExamRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteExamRecord(identityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("deleteExamRecord").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetExamRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetExamRecord(identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListExamRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListExamRecords(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleListStudentExams(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListStudentExamRecords(identityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// --- sms ---

func (s *Server) handleLogSMS(w http.ResponseWriter, r *http.Request) {
	var entry model.SMSLog
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.LogSMS(identityFromContext(r.Context()), entry); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("logSMS").Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"status": "logged"})
}

func (s *Server) handleListSMSLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListSMSLogs(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// --- audit / backup ---

func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListAuditLogs(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	blobData, err := s.store.ExportAll(identityFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("exportAllData").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, blobData)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.store.ImportAll(identityFromContext(r.Context()), string(data)); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("importData").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// --- photos ---

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if !s.store.ActiveCaller(identityFromContext(r.Context())) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPhotoBytes+1))
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(data) > maxPhotoBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "photo_too_large")
		return
	}
	ref, err := s.photos.Put(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"ref": string(ref),
		"url": s.photos.DirectURL(ref),
	})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	if !s.store.ActiveCaller(identityFromContext(r.Context())) {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	ref := model.PhotoRef(chi.URLParam(r, "ref"))
	data, err := s.photos.Bytes(r.Context(), ref)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "photo_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- middleware and helpers ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil || claims.Identity == "" {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, claims.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type identityKey struct{}

func identityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(identityKey{}).(string)
	return identity
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, store.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "duplicate_key")
	case errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
