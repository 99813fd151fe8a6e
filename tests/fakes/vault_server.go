package fakes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// VaultServer is an in-process stand-in for the subset of the Vault HTTP API
// the client uses: AppRole login, token self-renewal, and KV v2 data and
// metadata reads on a single mount.
type VaultServer struct {
	*httptest.Server

	Mount     string
	AuthMount string
	RoleID    string
	SecretID  string

	Logins        atomic.Int64
	Renewals      atomic.Int64
	Reads         atomic.Int64
	MetadataReads atomic.Int64

	mu             sync.Mutex
	lease          int
	renewable      bool
	rotateOnRenew  bool
	tokenSeq       int
	token          string
	secrets        map[string]map[string]interface{}
	updated        map[string]time.Time
	loginStatus    int
	renewStatus    int
	readStatus     int
	metadataStatus int
	delay          time.Duration
}

// NewVaultServer starts a fake Vault accepting role-1/secret-1 on "approle"
// and serving KV v2 under "secret". It is closed with the test.
func NewVaultServer(t testing.TB) *VaultServer {
	t.Helper()

	v := &VaultServer{
		Mount:     "secret",
		AuthMount: "approle",
		RoleID:    "role-1",
		SecretID:  "secret-1",
		lease:     3600,
		renewable: true,
		secrets:   make(map[string]map[string]interface{}),
		updated:   make(map[string]time.Time),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", v.route)
	v.Server = httptest.NewServer(mux)
	t.Cleanup(v.Close)
	return v
}

// PutSecret stores data at path and stamps its update time
func (v *VaultServer) PutSecret(path string, data map[string]interface{}, updated time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[path] = data
	v.updated[path] = updated
}

// Touch changes only the update time of an existing secret
func (v *VaultServer) Touch(path string, updated time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updated[path] = updated
}

// SetLease controls lease_duration and renewable on issued tokens
func (v *VaultServer) SetLease(seconds int, renewable bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lease = seconds
	v.renewable = renewable
}

// RotateOnRenew makes renew-self hand out a fresh token
func (v *VaultServer) RotateOnRenew(rotate bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rotateOnRenew = rotate
}

// FailLogin makes logins answer with status; 0 restores normal behavior.
func (v *VaultServer) FailLogin(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loginStatus = status
}

// FailRenew makes renew-self answer with status
func (v *VaultServer) FailRenew(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renewStatus = status
}

// FailReads makes data reads answer with status
func (v *VaultServer) FailReads(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readStatus = status
}

// FailMetadata makes metadata reads answer with status
func (v *VaultServer) FailMetadata(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metadataStatus = status
}

// SetDelay slows every response down, to widen race windows in tests.
func (v *VaultServer) SetDelay(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delay = d
}

// Token is the most recently issued client token
func (v *VaultServer) Token() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

// Calls is the total number of requests the fake has served
func (v *VaultServer) Calls() int64 {
	return v.Logins.Load() + v.Renewals.Load() + v.Reads.Load() + v.MetadataReads.Load()
}

func (v *VaultServer) route(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	delay := v.delay
	v.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	p := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case p == "auth/"+v.AuthMount+"/login" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		v.login(w, r)
	case p == "auth/token/renew-self" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		v.renew(w, r)
	case strings.HasPrefix(p, v.Mount+"/data/") && r.Method == http.MethodGet:
		v.read(w, r, strings.TrimPrefix(p, v.Mount+"/data/"))
	case strings.HasPrefix(p, v.Mount+"/metadata/") && r.Method == http.MethodGet:
		v.metadata(w, r, strings.TrimPrefix(p, v.Mount+"/metadata/"))
	default:
		writeErrors(w, http.StatusNotFound)
	}
}

func (v *VaultServer) login(w http.ResponseWriter, r *http.Request) {
	v.Logins.Add(1)

	var body struct {
		RoleID   string `json:"role_id"`
		SecretID string `json:"secret_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrors(w, http.StatusBadRequest, "failed to parse JSON input")
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.loginStatus != 0 {
		writeErrors(w, v.loginStatus, "login rejected")
		return
	}
	if body.RoleID != v.RoleID || body.SecretID != v.SecretID {
		writeErrors(w, http.StatusBadRequest, "invalid role or secret ID")
		return
	}

	v.tokenSeq++
	v.token = fmt.Sprintf("hvs.fake-%d", v.tokenSeq)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth": map[string]interface{}{
			"client_token":   v.token,
			"lease_duration": v.lease,
			"renewable":      v.renewable,
			"policies":       []string{"default"},
		},
	})
}

func (v *VaultServer) renew(w http.ResponseWriter, r *http.Request) {
	v.Renewals.Add(1)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.authorized(r) {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}
	if v.renewStatus != 0 {
		writeErrors(w, v.renewStatus, "renewal rejected")
		return
	}
	if v.rotateOnRenew {
		v.tokenSeq++
		v.token = fmt.Sprintf("hvs.fake-%d", v.tokenSeq)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auth": map[string]interface{}{
			"client_token":   v.token,
			"lease_duration": v.lease,
			"renewable":      v.renewable,
		},
	})
}

func (v *VaultServer) read(w http.ResponseWriter, r *http.Request, path string) {
	v.Reads.Add(1)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.authorized(r) {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}
	if v.readStatus != 0 {
		writeErrors(w, v.readStatus, "read failed")
		return
	}
	data, ok := v.secrets[path]
	if !ok {
		writeErrors(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"data": data,
			"metadata": map[string]interface{}{
				"created_time":    v.updated[path].UTC().Format(time.RFC3339Nano),
				"custom_metadata": nil,
				"deletion_time":   "",
				"destroyed":       false,
				"version":         1,
			},
		},
	})
}

func (v *VaultServer) metadata(w http.ResponseWriter, r *http.Request, path string) {
	v.MetadataReads.Add(1)

	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.authorized(r) {
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}
	if v.metadataStatus != 0 {
		writeErrors(w, v.metadataStatus, "metadata read failed")
		return
	}
	updated, ok := v.updated[path]
	if !ok {
		writeErrors(w, http.StatusNotFound)
		return
	}
	stamp := updated.UTC().Format(time.RFC3339Nano)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"cas_required":         false,
			"created_time":         stamp,
			"current_version":      1,
			"custom_metadata":      nil,
			"delete_version_after": "0s",
			"max_versions":         0,
			"oldest_version":       0,
			"updated_time":         stamp,
			"versions":             map[string]interface{}{},
		},
	})
}

// authorized must be called with v.mu held
func (v *VaultServer) authorized(r *http.Request) bool {
	tok := r.Header.Get("X-Vault-Token")
	return tok != "" && tok == v.token
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrors(w http.ResponseWriter, status int, msgs ...string) {
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(w, status, map[string]interface{}{"errors": msgs})
}
