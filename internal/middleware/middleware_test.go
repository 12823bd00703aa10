package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"appointment-booking-api/internal/auth"
	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/middleware"
	"appointment-booking-api/internal/model"
)

const secret = "test-secret"

func token(t *testing.T, id int64, role model.Role) string {
	t.Helper()
	tok, err := auth.MakeToken(&model.User{ID: id, Username: "u" + strconv.FormatInt(id, 10), Role: role}, secret, time.Minute)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func whoami(w http.ResponseWriter, r *http.Request) {
	c, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(strconv.FormatInt(c.UserID, 10)))
}

func TestRequireAuth(t *testing.T) {
	h := middleware.RequireAuth(secret)(http.HandlerFunc(whoami))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"garbage", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"not bearer", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"ok", map[string]string{"Authorization": "Bearer " + token(t, 7, model.RoleUser)}, http.StatusOK},
		{"matching user header", map[string]string{
			"Authorization":         "Bearer " + token(t, 7, model.RoleUser),
			middleware.UserIDHeader: "7",
		}, http.StatusOK},
		{"spoofed user header", map[string]string{
			"Authorization":         "Bearer " + token(t, 7, model.RoleUser),
			middleware.UserIDHeader: "8",
		}, http.StatusForbidden},
		{"user header alone", map[string]string{middleware.UserIDHeader: "7"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRequireAuthWrongSecret(t *testing.T) {
	tok, _ := auth.MakeToken(&model.User{ID: 1, Role: model.RoleAdmin}, "other", time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	middleware.RequireAuth(secret)(http.HandlerFunc(whoami)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := middleware.RequireAuth(secret)(middleware.RequireRole(model.RoleAdmin)(http.HandlerFunc(whoami)))

	for _, tc := range []struct {
		role model.Role
		want int
	}{
		{model.RoleUser, http.StatusForbidden},
		{model.RoleAdmin, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, 1, tc.role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 2)
	defer rl.Stop()
	defer rl.Stop() // second call must not panic

	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:" + strconv.Itoa(40000+i)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestRateLimiterConcurrent(t *testing.T) {
	rl := middleware.NewRateLimiter(1000, 1000)
	defer rl.Stop()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl.Allow("10.0.0." + strconv.Itoa(i%5))
		}(i)
	}
	wg.Wait()
}

type fakeRecorder struct {
	mu       sync.Mutex
	inflight int
	paths    []string
	statuses []int
}

func (f *fakeRecorder) IncrementInFlight() { f.mu.Lock(); f.inflight++; f.mu.Unlock() }
func (f *fakeRecorder) DecrementInFlight() { f.mu.Lock(); f.inflight--; f.mu.Unlock() }
func (f *fakeRecorder) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.statuses = append(f.statuses, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	rec := &fakeRecorder{}
	r := mux.NewRouter()
	r.Use(middleware.Metrics(rec))
	r.HandleFunc("/api/appointments/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/appointments/42", nil))

	if len(rec.paths) != 1 || rec.paths[0] != "/api/appointments/{id:[0-9]+}" {
		t.Fatalf("paths = %v", rec.paths)
	}
	if rec.statuses[0] != http.StatusNotFound {
		t.Fatalf("status = %d", rec.statuses[0])
	}
	if rec.inflight != 0 {
		t.Fatalf("inflight = %d", rec.inflight)
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	var seen string
	h := middleware.Logging(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(middleware.RequestIDHeader) != seen {
		t.Fatalf("generated id %q, header %q", seen, rec.Header().Get(middleware.RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" {
		t.Fatalf("propagated id = %q", seen)
	}
}

func TestRecover(t *testing.T) {
	h := middleware.Recover(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := middleware.CORS([]string{"http://app.local"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/branches", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.local" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/branches", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin was allowed")
	}
}
