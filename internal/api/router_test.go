package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/filehub/internal/auth"
	"github.com/charlesng35/filehub/internal/auth/seat"
	"github.com/charlesng35/filehub/internal/database/testutil"
)

func newTestRouter(t *testing.T, loginRateLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:     "router-test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, nil)
	require.NoError(t, err)

	users := iauth.NewGormUserRepository(db)
	store := iauth.NewGormSessionStore(db, iauth.SessionStoreConfig{})
	limiter := iauth.NewGormSessionLimiter(db, iauth.LimiterConfig{})
	alloc := seat.NewMemoryAllocator(5, 0)

	manager, err := iauth.NewSessionManager(iauth.SessionManagerDeps{
		Users:    users,
		Sessions: store,
		Limiter:  limiter,
		Seats:    alloc,
		Tokens:   jwt,
	}, iauth.SessionManagerConfig{})
	require.NoError(t, err)

	router, err := NewRouter(Deps{
		DB:             db,
		JWT:            jwt,
		Sessions:       manager,
		Store:          store,
		Limiter:        limiter,
		Seats:          alloc,
		Reconciler:     seat.NewReconciler(alloc, store, db),
		LoginRateLimit: loginRateLimit,
	})
	require.NoError(t, err)
	return router
}

func TestRouterRequiresCoreDeps(t *testing.T) {
	_, err := NewRouter(Deps{})
	require.Error(t, err)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"seat_pool":"ok"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterUnknownRouteIsJSON(t *testing.T) {
	router := newTestRouter(t, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestRouterProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, 0)

	for _, path := range []string{"/api/auth/me", "/api/sessions", "/api/pool"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouterRateLimitsLogin(t *testing.T) {
	router := newTestRouter(t, 2)

	body := `{"username":"alice","password":"wrong"}`
	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		last = w.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}
