package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"schoolledger/internal/auth"
	"schoolledger/internal/blob"
	"schoolledger/internal/config"
	"schoolledger/internal/model"
	"schoolledger/internal/store"
)

const (
	rootID  = "root-principal"
	headID  = "head-principal"
	acctID  = "acct-principal"
	ghostID = "ghost-principal"
)

func newTestServer(t *testing.T) (*httptest.Server, config.Config, *store.Store) {
	t.Helper()
	cfg := config.Config{
		HTTPAddr:      ":0",
		JWTSecret:     "test-secret",
		JWTIssuer:     "test-issuer",
		PublicBaseURL: "http://test.local",
	}
	st := store.New()
	if !st.Bootstrap(rootID, "Root Admin") {
		t.Fatal("bootstrap failed")
	}
	seed := map[string]model.AppRole{
		headID:  model.AppRoleHeadmaster,
		acctID:  model.AppRoleAccountant,
		ghostID: model.AppRoleAccountant,
	}
	for identity, appRole := range seed {
		err := st.CreateUser(rootID, identity, model.UserProfile{
			FullName: "Profile " + identity,
			Role:     model.SystemRoleUser,
			AppRole:  appRole,
			Active:   true,
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", identity, err)
		}
	}
	if err := st.DisableUser(rootID, ghostID); err != nil {
		t.Fatalf("disable ghost: %v", err)
	}
	server := NewServer(cfg, st, blob.NewMemoryStore(cfg.PublicBaseURL))
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app, cfg, st
}

func mustToken(t *testing.T, cfg config.Config, identity string) string {
	t.Helper()
	token, err := auth.NewAccessToken(cfg.JWTSecret, cfg.JWTIssuer, 15*time.Minute, auth.Claims{
		Identity: identity,
	})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func studentBody(id string) map[string]interface{} {
	return map[string]interface{}{
		"systemId":    id,
		"firstName":   "Asha",
		"lastName":    "Nansubuga",
		"className":   "P6",
		"parentName":  "Ruth Nansubuga",
		"parentPhone": "+256700000001",
		"status":      "active",
	}
}

func TestMissingAndInvalidToken(t *testing.T) {
	app, cfg, _ := newTestServer(t)

	resp := doReq(t, http.MethodGet, app.URL+"/students/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	badCfg := cfg
	badCfg.JWTSecret = "wrong-secret"
	resp = doReq(t, http.MethodGet, app.URL+"/students/", mustToken(t, badCfg, headID), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStudentLifecycleOverHTTP(t *testing.T) {
	app, cfg, _ := newTestServer(t)
	headToken := mustToken(t, cfg, headID)
	acctToken := mustToken(t, cfg, acctID)

	// Accountant cannot create students.
	resp := doReq(t, http.MethodPost, app.URL+"/students/", acctToken, studentBody("stu-1"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/students/", headToken, studentBody("stu-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/students/", headToken, studentBody("stu-1"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// Any active profile can read.
	resp = doReq(t, http.MethodGet, app.URL+"/students/stu-1", acctToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got model.Student
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode student: %v", err)
	}
	if got.FirstName != "Asha" {
		t.Fatalf("unexpected student %+v", got)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/students/stu-1/dismiss", headToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/students/stu-1", headToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode student: %v", err)
	}
	if got.Status != model.AdmissionDismissed {
		t.Fatalf("expected dismissed, got %s", got.Status)
	}

	resp = doReq(t, http.MethodDelete, app.URL+"/students/stu-1", headToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodDelete, app.URL+"/students/stu-1", headToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestFinanceValidationOverHTTP(t *testing.T) {
	app, cfg, _ := newTestServer(t)
	acctToken := mustToken(t, cfg, acctID)

	resp := doReq(t, http.MethodPost, app.URL+"/finance/", acctToken, map[string]interface{}{
		"systemId":   "fin-1",
		"amount":     -10,
		"recordType": "expense",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodPost, app.URL+"/finance/", acctToken, map[string]interface{}{
		"systemId":    "fin-1",
		"amount":      45000,
		"description": "chalk and dusters",
		"recordType":  "expense",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
}

func TestAuditEndpointHeadmasterOnly(t *testing.T) {
	app, cfg, _ := newTestServer(t)

	resp := doReq(t, http.MethodGet, app.URL+"/audit", mustToken(t, cfg, acctID), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/audit", mustToken(t, cfg, headID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var logs []model.AuditEntry
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected seeded audit entries")
	}
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	app, cfg, _ := newTestServer(t)
	headToken := mustToken(t, cfg, headID)

	resp := doReq(t, http.MethodPost, app.URL+"/students/", headToken, studentBody("stu-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/backup/export", headToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	exported, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	// A fresh server imports the blob and serves the same student.
	app2, cfg2, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPost, app2.URL+"/backup/import", bytes.NewReader(exported))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+mustToken(t, cfg2, headID))
	importResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer importResp.Body.Close()
	if importResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", importResp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app2.URL+"/students/stu-1", mustToken(t, cfg2, headID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Malformed blob: rejected, nothing changes.
	resp = doReq(t, http.MethodPost, app2.URL+"/backup/import", mustToken(t, cfg2, headID), map[string]interface{}{
		"bogus": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp = doReq(t, http.MethodGet, app2.URL+"/students/stu-1", mustToken(t, cfg2, headID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected student to survive rejected import, got %d", resp.StatusCode)
	}
}

func TestCallerEndpoints(t *testing.T) {
	app, cfg, _ := newTestServer(t)

	resp := doReq(t, http.MethodGet, app.URL+"/me/", mustToken(t, cfg, headID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// A token for an unknown principal authenticates at the transport but
	// has no profile.
	resp = doReq(t, http.MethodGet, app.URL+"/me/", mustToken(t, cfg, "stranger"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodGet, app.URL+"/me/role", mustToken(t, cfg, "stranger"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var roleResp map[string]model.SystemRole
	if err := json.NewDecoder(resp.Body).Decode(&roleResp); err != nil {
		t.Fatalf("decode role: %v", err)
	}
	if roleResp["role"] != model.SystemRoleGuest {
		t.Fatalf("expected guest, got %s", roleResp["role"])
	}

	resp = doReq(t, http.MethodGet, app.URL+"/me/admin", mustToken(t, cfg, rootID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var adminResp map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&adminResp); err != nil {
		t.Fatalf("decode admin: %v", err)
	}
	if !adminResp["admin"] {
		t.Fatal("expected root to be admin")
	}
}

func TestPhotoUploadAndFetch(t *testing.T) {
	app, cfg, _ := newTestServer(t)
	headToken := mustToken(t, cfg, headID)

	payload := []byte("fake-jpeg-bytes")
	req, err := http.NewRequest(http.MethodPost, app.URL+"/photos/", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+headToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var uploaded map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if uploaded["ref"] == "" || uploaded["url"] == "" {
		t.Fatalf("expected ref and url, got %+v", uploaded)
	}

	fetch := doReq(t, http.MethodGet, app.URL+"/photos/"+uploaded["ref"], headToken, nil)
	if fetch.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", fetch.StatusCode)
	}
	data, err := io.ReadAll(fetch.Body)
	if err != nil {
		t.Fatalf("read photo: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("photo bytes do not round-trip")
	}

	fetch = doReq(t, http.MethodGet, app.URL+"/photos/doesnotexist", headToken, nil)
	if fetch.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", fetch.StatusCode)
	}
}

func TestPhotoEndpointsRejectDisabledProfiles(t *testing.T) {
	app, cfg, _ := newTestServer(t)
	ghostToken := mustToken(t, cfg, ghostID)

	req, err := http.NewRequest(http.MethodPost, app.URL+"/photos/", bytes.NewReader([]byte("pic")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+ghostToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Same for unknown principals with a valid token.
	resp = doReq(t, http.MethodGet, app.URL+"/photos/anything", mustToken(t, cfg, "stranger"), nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
