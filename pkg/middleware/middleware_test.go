package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultcache/internal/bootstrap"
	"github.com/systmms/vaultcache/internal/config"
	"github.com/systmms/vaultcache/internal/logging"
	"github.com/systmms/vaultcache/internal/manager"
	"github.com/systmms/vaultcache/pkg/middleware"
	"github.com/systmms/vaultcache/tests/fakes"
	"github.com/systmms/vaultcache/tests/testutil"
)

type recordingHandler struct {
	calls   atomic.Int64
	secrets atomic.Value
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	h.secrets.Store(middleware.FromContext(r.Context()))
	_, _ = io.WriteString(w, "ok")
}

func (h *recordingHandler) lastSecrets() map[string]string {
	v, _ := h.secrets.Load().(map[string]string)
	return v
}

func newVault(t *testing.T) *fakes.VaultServer {
	t.Helper()
	srv := fakes.NewVaultServer(t)
	srv.PutSecret("prod/slack-bot", map[string]interface{}{"SLACK_BOT_TOKEN": "xoxb-test"}, time.Now().Add(-time.Hour))
	return srv
}

func staticLoader(srv *fakes.VaultServer) bootstrap.Loader {
	return bootstrap.Static(config.Bootstrap{
		RoleID:      srv.RoleID,
		SecretID:    srv.SecretID,
		Address:     srv.URL,
		Mount:       srv.Mount,
		Environment: "prod",
	})
}

var loadOpts = config.Options{BootstrapPath: "static", Expiration: time.Hour, CheckDelay: time.Minute}

func serve(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestSecrets_FirstAndCachedCalls(t *testing.T) {
	t.Parallel()

	srv := newVault(t)
	mgr := manager.New(manager.WithLoader(staticLoader(srv)), manager.WithLogger(logging.Discard()))
	app := &recordingHandler{}
	h := middleware.Secrets(mgr, middleware.Options{
		Service: "slack-bot",
		Load:    loadOpts,
		SkipEnv: true,
		Logger:  logging.Discard(),
	})(app)

	rec := serve(t, h)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"}, app.lastSecrets())
	assert.EqualValues(t, 1, srv.Logins.Load())
	assert.EqualValues(t, 1, srv.Reads.Load())

	calls := srv.Calls()
	rec = serve(t, h)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"}, app.lastSecrets())
	assert.Equal(t, calls, srv.Calls(), "second request must be served from cache")
	assert.EqualValues(t, 2, app.calls.Load())
}

func TestSecrets_BootstrapFailure(t *testing.T) {
	t.Parallel()

	srv := newVault(t)
	loader := bootstrap.LoaderFunc(func(context.Context, string) (*config.Bootstrap, error) {
		return nil, errors.New("AccessDeniedException: not allowed")
	})
	mgr := manager.New(manager.WithLoader(loader), manager.WithLogger(logging.Discard()))
	logger, logs := testutil.NewLogger(t, false)
	app := &recordingHandler{}
	h := middleware.Secrets(mgr, middleware.Options{
		Service: "slack-bot",
		Load:    loadOpts,
		SkipEnv: true,
		Logger:  logger,
	})(app)

	rec := serve(t, h)
	logs.AssertContains(t, "AccessDeniedException")
	logs.AssertContains(t, `"slack-bot"`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "error fetching secrets.", rec.Header().Get("x-error"))
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, app.calls.Load())
	assert.Zero(t, srv.Calls())
}

func TestSecrets_ReadFailure(t *testing.T) {
	t.Parallel()

	srv := newVault(t)
	srv.FailReads(http.StatusInternalServerError)
	mgr := manager.New(manager.WithLoader(staticLoader(srv)), manager.WithLogger(logging.Discard()))
	app := &recordingHandler{}
	h := middleware.Secrets(mgr, middleware.Options{Service: "slack-bot", Load: loadOpts, SkipEnv: true, Logger: logging.Discard()})(app)

	rec := serve(t, h)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, middleware.ErrorMessage, rec.Header().Get(middleware.ErrorHeader))
	assert.Zero(t, app.calls.Load())
}

type fakeLoader struct {
	calls   atomic.Int64
	secrets map[string]map[string]string
	err     error
}

func (f *fakeLoader) LoadSecrets(_ context.Context, caller config.Caller, _ config.Options) (map[string]string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.secrets[caller.ServiceName], nil
}

func TestSecrets_PerRequestCaller(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{secrets: map[string]map[string]string{
		"billing": {"STRIPE_KEY": "sk"},
		"search":  {"ALGOLIA_KEY": "ak"},
	}}
	app := &recordingHandler{}
	h := middleware.Secrets(loader, middleware.Options{
		Caller: func(r *http.Request) config.Caller {
			return config.Caller{ServiceName: r.Header.Get("X-Service")}
		},
		SkipEnv: true,
		Logger:  logging.Discard(),
	})(app)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Service", "search")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"ALGOLIA_KEY": "ak"}, app.lastSecrets())
}

func TestSecrets_NestedMiddlewareMerges(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{secrets: map[string]map[string]string{
		"outer": {"A": "1", "SHARED": "outer"},
		"inner": {"B": "2", "SHARED": "inner"},
	}}
	app := &recordingHandler{}
	inner := middleware.Secrets(loader, middleware.Options{Service: "inner", SkipEnv: true, Logger: logging.Discard()})(app)
	outer := middleware.Secrets(loader, middleware.Options{Service: "outer", SkipEnv: true, Logger: logging.Discard()})(inner)

	rec := serve(t, outer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"A": "1", "B": "2", "SHARED": "inner"}, app.lastSecrets())
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestSecrets_ExportsEnvironment(t *testing.T) {
	testutil.ProtectEnv(t, "VAULTCACHE_MW_TOKEN")
	require.NoError(t, os.Setenv("VAULTCACHE_MW_TOKEN", "stale"))

	loader := &fakeLoader{secrets: map[string]map[string]string{
		"svc": {"VAULTCACHE_MW_TOKEN": "fresh"},
	}}
	var seen string
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = os.Getenv("VAULTCACHE_MW_TOKEN")
	})
	h := middleware.Secrets(loader, middleware.Options{Service: "svc", Logger: logging.Discard()})(app)

	rec := serve(t, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", seen)
}

func TestFromContext_Empty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, middleware.FromContext(context.Background()))
}

func TestSecrets_PerRequestCallerSharesManager(t *testing.T) {
	t.Parallel()

	srv := newVault(t)
	srv.PutSecret("prod/billing", map[string]interface{}{"STRIPE_KEY": "sk_test"}, time.Now().Add(-time.Hour))
	mgr := manager.New(manager.WithLoader(staticLoader(srv)), manager.WithLogger(logging.Discard()))
	app := &recordingHandler{}
	h := middleware.Secrets(mgr, middleware.Options{
		Caller: func(r *http.Request) config.Caller {
			return config.Caller{ServiceName: r.Header.Get("X-Service")}
		},
		Load:    loadOpts,
		SkipEnv: true,
		Logger:  logging.Discard(),
	})(app)

	for _, tc := range []struct {
		service string
		want    map[string]string
	}{
		{"slack-bot", map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"}},
		{"billing", map[string]string{"STRIPE_KEY": "sk_test"}},
		{"slack-bot", map[string]string{"SLACK_BOT_TOKEN": "xoxb-test"}},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Service", tc.service)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, tc.want, app.lastSecrets(), tc.service)
	}
	assert.EqualValues(t, 1, srv.Logins.Load())
}
