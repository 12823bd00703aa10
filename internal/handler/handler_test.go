package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appointment-booking-api/internal/handler"
	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/seed"
	"appointment-booking-api/internal/service"
	"appointment-booking-api/internal/store/memstore"
)

const secret = "handler-test-secret"

type env struct {
	t     *testing.T
	srv   *httptest.Server
	st    *memstore.Store
	admin string
	user  string
}

func setup(t *testing.T) *env {
	t.Helper()
	st := memstore.New()
	f, err := seed.Load("")
	require.NoError(t, err)
	require.NoError(t, seed.New(st, logging.Discard()).Run(context.Background(), f, false))

	appts := service.NewAppointmentService(st, st, nil, logging.Discard())
	authSvc := service.NewAuthService(st, st, service.AuthConfig{Secret: secret}, nil, logging.Discard())
	branches := service.NewBranchService(st, nil, nil)
	h := handler.New(appts, authSvc, branches, logging.Discard(), nil)

	srv := httptest.NewServer(h.Routes(handler.RouterConfig{Secret: secret}))
	t.Cleanup(srv.Close)

	e := &env{t: t, srv: srv, st: st}
	e.admin = e.login("admin", "admin123")
	e.user = e.login("user", "user123")
	return e
}

func (e *env) do(method, path, token string, body any, hdr ...string) (int, []byte, http.Header) {
	e.t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(e.t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, out, resp.Header
}

func (e *env) login(username, password string) string {
	e.t.Helper()
	code, body, _ := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": password,
	})
	require.Equal(e.t, http.StatusOK, code, string(body))
	var s struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(e.t, json.Unmarshal(body, &s))
	require.True(e.t, s.Success)
	return s.Token
}

func day(n int) string {
	return model.DateOf(time.Now().UTC()).AddDays(n).String()
}

func checkup() map[string]any {
	return map[string]any{
		"branchId":    1,
		"requestedBy": "Jane",
		"title":       "Checkup",
		"date":        day(1),
		"startTime":   "09:00:00",
		"endTime":     "09:30:00",
	}
}

func decodeInto[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func (e *env) create(body map[string]any) model.Appointment {
	e.t.Helper()
	code, raw, _ := e.do(http.MethodPost, "/api/appointments", e.user, body)
	require.Equal(e.t, http.StatusCreated, code, string(raw))
	return decodeInto[model.Appointment](e.t, raw)
}

func TestCheckupFlow(t *testing.T) {
	e := setup(t)

	code, raw, hdr := e.do(http.MethodPost, "/api/appointments", e.user, checkup())
	require.Equal(t, http.StatusCreated, code, string(raw))
	a := decodeInto[model.Appointment](t, raw)
	assert.Equal(t, fmt.Sprintf("/api/appointments/%d", a.ID), hdr.Get("Location"))
	assert.Equal(t, model.StatusPending, a.Status)
	assert.Equal(t, "Istanbul Branch", a.BranchName)
	assert.Equal(t, "09:30:00", a.EndTime.String())
	// requester is linked to the token, so the display name is the account's
	assert.Equal(t, "Sample User", a.RequestedBy)

	code, raw, _ = e.do(http.MethodPost, fmt.Sprintf("/api/appointments/%d/approve", a.ID), e.admin, nil)
	require.Equal(t, http.StatusOK, code, string(raw))
	assert.Equal(t, model.StatusApproved, decodeInto[model.Appointment](t, raw).Status)

	code, raw, _ = e.do(http.MethodGet, fmt.Sprintf("/api/appointments/%d/audits", a.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	audits := decodeInto[[]model.AppointmentAudit](t, raw)
	require.Len(t, audits, 2)
	assert.Equal(t, model.StatusApproved, audits[0].ToStatus)
	assert.Equal(t, "admin", audits[0].ActionBy)
	assert.Equal(t, model.StatusDraft, audits[1].FromStatus)

	// second approve is not applicable and writes nothing
	code, raw, _ = e.do(http.MethodPost, fmt.Sprintf("/api/appointments/%d/approve", a.ID), e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, code, string(raw))
	assert.Contains(t, string(raw), "Approved")
	_, raw, _ = e.do(http.MethodGet, fmt.Sprintf("/api/appointments/%d/audits", a.ID), "", nil)
	assert.Len(t, decodeInto[[]model.AppointmentAudit](t, raw), 2)
}

func TestReject(t *testing.T) {
	e := setup(t)
	a := e.create(checkup())
	path := fmt.Sprintf("/api/appointments/%d/reject", a.ID)

	code, raw, _ := e.do(http.MethodPost, path, e.admin, map[string]string{"comment": "  "})
	assert.Equal(t, http.StatusBadRequest, code, string(raw))

	code, raw, _ = e.do(http.MethodPost, path, e.admin, map[string]string{"comment": "branch closed"})
	require.Equal(t, http.StatusOK, code, string(raw))
	got := decodeInto[model.Appointment](t, raw)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, "branch closed", got.AdminComment)
}

func TestAdminOnlyTransitions(t *testing.T) {
	e := setup(t)
	a := e.create(checkup())

	for _, action := range []string{"approve", "reject", "status"} {
		code, _, _ := e.do(http.MethodPost, fmt.Sprintf("/api/appointments/%d/%s", a.ID, action), e.user, map[string]any{"comment": "x", "status": "Approved"})
		assert.Equal(t, http.StatusForbidden, code, action)
		code, _, _ = e.do(http.MethodPost, fmt.Sprintf("/api/appointments/%d/%s", a.ID, action), "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, action)
	}
}

func TestGenericStatusIsUnguarded(t *testing.T) {
	e := setup(t)
	a := e.create(checkup())
	path := fmt.Sprintf("/api/appointments/%d/status", a.ID)

	code, raw, _ := e.do(http.MethodPost, path, e.admin, map[string]any{"status": "Rejected"})
	require.Equal(t, http.StatusOK, code, string(raw))
	code, raw, _ = e.do(http.MethodPost, path, e.admin, map[string]any{"status": 2})
	require.Equal(t, http.StatusOK, code, string(raw))
	assert.Equal(t, model.StatusApproved, decodeInto[model.Appointment](t, raw).Status)

	// same status: no-op
	code, _, _ = e.do(http.MethodPost, path, e.admin, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, code)
	_, raw, _ = e.do(http.MethodGet, fmt.Sprintf("/api/appointments/%d/audits", a.ID), "", nil)
	assert.Len(t, decodeInto[[]model.AppointmentAudit](t, raw), 3)

	code, _, _ = e.do(http.MethodPost, path, e.admin, map[string]any{"status": "Cancelled"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _, _ = e.do(http.MethodPost, path, e.admin, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateValidation(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name  string
		edit  func(m map[string]any)
		field string
	}{
		{"past date", func(m map[string]any) { m["date"] = day(-1) }, "date"},
		{"end before start", func(m map[string]any) { m["endTime"] = "08:00" }, "endTime"},
		{"end equals start", func(m map[string]any) { m["endTime"] = "09:00:00" }, "endTime"},
		{"missing title", func(m map[string]any) { delete(m, "title") }, "title"},
		{"long title", func(m map[string]any) { m["title"] = strings.Repeat("x", 201) }, "title"},
		{"missing requester", func(m map[string]any) { m["requestedBy"] = "" }, "requestedBy"},
		{"missing start", func(m map[string]any) { delete(m, "startTime") }, "startTime"},
		{"zero branch", func(m map[string]any) { m["branchId"] = 0 }, "branchId"},
		{"unknown branch", func(m map[string]any) { m["branchId"] = 99 }, "branchId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := checkup()
			tt.edit(body)
			code, raw, _ := e.do(http.MethodPost, "/api/appointments", e.user, body)
			require.Equal(t, http.StatusBadRequest, code, string(raw))
			var resp struct {
				Error  string               `json:"error"`
				Fields []handler.FieldError `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(raw, &resp))
			assert.Equal(t, "validation failed", resp.Error)
			var names []string
			for _, f := range resp.Fields {
				names = append(names, f.Field)
			}
			assert.Contains(t, names, tt.field)
		})
	}

	// today is allowed
	body := checkup()
	body["date"] = day(0)
	code, raw, _ := e.do(http.MethodPost, "/api/appointments", e.user, body)
	assert.Equal(t, http.StatusCreated, code, string(raw))

	code, _, _ = e.do(http.MethodPost, "/api/appointments", e.user, "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _, _ = e.do(http.MethodPost, "/api/appointments", "", checkup())
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestUserIDHeaderMustMatchToken(t *testing.T) {
	e := setup(t)
	code, _, _ := e.do(http.MethodPost, "/api/appointments", e.user, checkup(), "X-User-Id", "1")
	assert.Equal(t, http.StatusForbidden, code)

	u, err := e.st.GetUserByUsername(context.Background(), "user")
	require.NoError(t, err)
	code, _, _ = e.do(http.MethodPost, "/api/appointments", e.user, checkup(), "X-User-Id", fmt.Sprint(u.ID))
	assert.Equal(t, http.StatusCreated, code)
}

func TestUpdate(t *testing.T) {
	e := setup(t)
	a := e.create(checkup())
	path := fmt.Sprintf("/api/appointments/%d", a.ID)

	body := checkup()
	body["id"] = a.ID
	body["title"] = "Dental checkup"
	body["branchId"] = 2
	body["version"] = a.Version
	code, raw, _ := e.do(http.MethodPut, path, e.user, body)
	require.Equal(t, http.StatusNoContent, code, string(raw))

	_, raw, _ = e.do(http.MethodGet, path, "", nil)
	got := decodeInto[model.Appointment](t, raw)
	assert.Equal(t, "Dental checkup", got.Title)
	assert.Equal(t, "Ankara Branch", got.BranchName)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Greater(t, got.Version, a.Version)

	// stale version
	code, _, _ = e.do(http.MethodPut, path, e.user, body)
	assert.Equal(t, http.StatusConflict, code)

	// path and body disagree
	body["id"] = a.ID + 1
	body["version"] = got.Version
	code, _, _ = e.do(http.MethodPut, path, e.user, body)
	assert.Equal(t, http.StatusBadRequest, code)
	delete(body, "id")

	// someone else's appointment
	code, raw, _ = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "mallory", "email": "mallory@example.com", "password": "password1", "fullName": "Mallory",
	})
	require.Equal(t, http.StatusOK, code, string(raw))
	other := e.login("mallory", "password1")
	code, _, _ = e.do(http.MethodPut, path, other, body)
	assert.Equal(t, http.StatusForbidden, code)

	// owners cannot move the status themselves, but may echo it
	body["status"] = "Approved"
	code, raw, _ = e.do(http.MethodPut, path, e.user, body)
	assert.Equal(t, http.StatusForbidden, code, string(raw))
	_, raw, _ = e.do(http.MethodGet, path, "", nil)
	got = decodeInto[model.Appointment](t, raw)
	assert.Equal(t, model.StatusPending, got.Status)
	_, raw, _ = e.do(http.MethodGet, path+"/audits", "", nil)
	require.Len(t, decodeInto[[]model.AppointmentAudit](t, raw), 1)

	body["status"] = "Pending"
	body["description"] = strings.Repeat("long notes ", 200)
	code, raw, _ = e.do(http.MethodPut, path, e.user, body)
	require.Equal(t, http.StatusNoContent, code, string(raw))
	_, raw, _ = e.do(http.MethodGet, path, "", nil)
	got = decodeInto[model.Appointment](t, raw)
	body["version"] = got.Version

	// admin may edit anything, including status
	body["status"] = "Approved"
	code, raw, _ = e.do(http.MethodPut, path, e.admin, body)
	require.Equal(t, http.StatusNoContent, code, string(raw))
	_, raw, _ = e.do(http.MethodGet, path+"/audits", "", nil)
	audits := decodeInto[[]model.AppointmentAudit](t, raw)
	require.Len(t, audits, 2)
	assert.Equal(t, "Appointment updated", audits[0].Comment)

	code, _, _ = e.do(http.MethodPut, "/api/appointments/9999", e.admin, body)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListAndRouteOrder(t *testing.T) {
	e := setup(t)
	first := e.create(checkup())
	second := checkup()
	second["title"] = "Follow-up"
	second["date"] = day(3)
	e.create(second)
	_, _, _ = e.do(http.MethodPost, fmt.Sprintf("/api/appointments/%d/approve", first.ID), e.admin, nil)

	code, raw, _ := e.do(http.MethodGet, "/api/appointments/pending", "", nil)
	require.Equal(t, http.StatusOK, code, string(raw))
	page := decodeInto[model.Page[model.Appointment]](t, raw)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Follow-up", page.Items[0].Title)

	code, raw, _ = e.do(http.MethodGet, "/api/appointments?SORTBY=date&sortdescending=false&PageSize=1", "", nil)
	require.Equal(t, http.StatusOK, code, string(raw))
	page = decodeInto[model.Page[model.Appointment]](t, raw)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Checkup", page.Items[0].Title)

	code, raw, _ = e.do(http.MethodGet, "/api/appointments?status=approved&searchText=check", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decodeInto[model.Page[model.Appointment]](t, raw).TotalCount)

	for _, q := range []string{"status=Cancelled", "branchId=x", "startDate=yesterday", "pageNumber=one", "sortDescending=maybe"} {
		code, _, _ = e.do(http.MethodGet, "/api/appointments?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}

	code, raw, _ = e.do(http.MethodGet, "/api/appointments?pageNumber=9223372036854775807&pageSize=10", "", nil)
	require.Equal(t, http.StatusOK, code, string(raw))
	page = decodeInto[model.Page[model.Appointment]](t, raw)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.TotalCount)

	code, _, _ = e.do(http.MethodGet, "/api/appointments/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, raw, _ = e.do(http.MethodGet, "/api/appointments/9999/audits", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(raw))
	code, _, _ = e.do(http.MethodGet, "/api/appointments/abc", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBranches(t *testing.T) {
	e := setup(t)
	code, raw, _ := e.do(http.MethodGet, "/api/branches", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeInto[[]model.Branch](t, raw), 5)

	code, raw, _ = e.do(http.MethodGet, "/api/branches/3", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Izmir Branch", decodeInto[model.Branch](t, raw).Name)

	code, _, _ = e.do(http.MethodGet, "/api/branches/42", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAuthEndpoints(t *testing.T) {
	e := setup(t)

	code, raw, _ := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.JSONEq(t, `{"error":"invalid username or password"}`, string(raw))

	code, raw, _ = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "user", "email": "new@example.com", "password": "password1", "fullName": "Dup",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(raw), "username")

	code, raw, _ = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "fresh", "email": "user@example.com", "password": "password1", "fullName": "Dup",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(raw), "email")

	code, _, _ = e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "ab", "email": "bad", "password": "short", "fullName": "",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, raw, _ = e.do(http.MethodGet, "/api/auth/me", e.admin, nil)
	require.Equal(t, http.StatusOK, code)
	me := decodeInto[model.PublicUser](t, raw)
	assert.Equal(t, "admin", me.Username)
	assert.NotContains(t, string(raw), "password")

	code, _, _ = e.do(http.MethodGet, fmt.Sprintf("/api/auth/user/%d", me.ID), "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _, _ = e.do(http.MethodGet, "/api/auth/user/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRefreshAndLogout(t *testing.T) {
	e := setup(t)
	code, raw, _ := e.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "user", "password": "user123"})
	require.Equal(t, http.StatusOK, code)
	first := decodeInto[struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    int    `json:"expiresIn"`
	}](t, raw)
	assert.Equal(t, 900, first.ExpiresIn)

	code, raw, _ = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken})
	require.Equal(t, http.StatusOK, code, string(raw))
	second := decodeInto[struct {
		RefreshToken string `json:"refreshToken"`
	}](t, raw)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// replaying the rotated token revokes the whole family
	code, _, _ = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _, _ = e.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = e.do(http.MethodPost, "/api/auth/logout", first.Token, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _, _ = e.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestUnknownRoute(t *testing.T) {
	e := setup(t)
	code, raw, _ := e.do(http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(raw), "error")
	code, _, _ = e.do(http.MethodDelete, "/api/branches", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
