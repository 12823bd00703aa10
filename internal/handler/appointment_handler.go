package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"appointment-booking-api/internal/middleware"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/service"
)

// appointmentRequest is the body of create and full update. ID is only
// meaningful on update, where it must match the path.
type appointmentRequest struct {
	ID          *int64           `json:"id,omitempty"`
	BranchID    int64            `json:"branchId" validate:"gt=0"`
	RequestedBy string           `json:"requestedBy" validate:"required,max=100"`
	Title       string           `json:"title" validate:"required,max=200"`
	Date        *model.Date      `json:"date" validate:"required"`
	StartTime   *model.TimeOfDay `json:"startTime" validate:"required"`
	EndTime     *model.TimeOfDay `json:"endTime" validate:"required"`
	Description string           `json:"description"`
	Status      *model.Status    `json:"status,omitempty"`
	Version     int              `json:"version"`
}

func (req appointmentRequest) input() service.AppointmentInput {
	return service.AppointmentInput{
		BranchID:    req.BranchID,
		RequestedBy: req.RequestedBy,
		Title:       req.Title,
		Date:        *req.Date,
		StartTime:   *req.StartTime,
		EndTime:     *req.EndTime,
		Description: req.Description,
		Status:      req.Status,
		Version:     req.Version,
	}
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

type statusRequest struct {
	Status  *model.Status `json:"status" validate:"required"`
	Comment string        `json:"comment"`
}

func (h *Handler) readAppointment(w http.ResponseWriter, r *http.Request) (*appointmentRequest, bool) {
	var req appointmentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if fields := h.check(req); fields != nil {
		writeFields(w, fields)
		return nil, false
	}
	return &req, true
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	c, _ := middleware.ClaimsFrom(r.Context())
	req, ok := h.readAppointment(w, r)
	if !ok {
		return
	}
	in := req.input()
	in.RequestedByID = &c.UserID

	a, err := h.appts.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/appointments/%d", a.ID))
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	a, err := h.appts.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// updateAppointment is open to the appointment's owner and to admins.
func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	req, ok := h.readAppointment(w, r)
	if !ok {
		return
	}
	if req.ID != nil && *req.ID != id {
		writeError(w, http.StatusBadRequest, "id in body does not match the URL")
		return
	}

	c, _ := middleware.ClaimsFrom(r.Context())
	cur, err := h.appts.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !c.IsAdmin() && (cur.RequestedByID == nil || *cur.RequestedByID != c.UserID) {
		h.fail(w, r, fmt.Errorf("update appointment %d: %w", id, service.ErrForbidden))
		return
	}
	// status moves are admin work; owners may only echo the current one
	if !c.IsAdmin() && req.Status != nil && *req.Status != cur.Status {
		h.fail(w, r, fmt.Errorf("change status of appointment %d: %w", id, service.ErrForbidden))
		return
	}

	if _, err := h.appts.Update(r.Context(), id, req.input(), c.Username); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	c, _ := middleware.ClaimsFrom(r.Context())
	a, err := h.appts.Approve(r.Context(), id, c.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := middleware.ClaimsFrom(r.Context())
	a, err := h.appts.Reject(r.Context(), id, c.Username, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fields := h.check(req); fields != nil {
		writeFields(w, fields)
		return
	}
	c, _ := middleware.ClaimsFrom(r.Context())
	a, err := h.appts.UpdateStatus(r.Context(), id, *req.Status, c.Username, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.appts.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.appts.Pending(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) audits(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	out, err := h.appts.Audits(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.AppointmentAudit{}
	}
	writeJSON(w, http.StatusOK, out)
}

// parseFilter reads list parameters. Names match in any case.
func parseFilter(r *http.Request) (model.AppointmentFilter, error) {
	q := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			q[strings.ToLower(k)] = strings.TrimSpace(v[0])
		}
	}

	var f model.AppointmentFilter
	if v := q["status"]; v != "" {
		s, err := model.ParseStatus(v)
		if err != nil {
			return f, fmt.Errorf("invalid status: %w", err)
		}
		f.Status = &s
	}
	var err error
	if f.BranchID, err = optInt64(q, "branchid"); err != nil {
		return f, err
	}
	if f.RequestedByID, err = optInt64(q, "requestedbyid"); err != nil {
		return f, err
	}
	if f.StartDate, err = optDate(q, "startdate"); err != nil {
		return f, err
	}
	if f.EndDate, err = optDate(q, "enddate"); err != nil {
		return f, err
	}
	f.SearchText = q["searchtext"]
	f.SortBy = q["sortby"]
	if v := q["sortdescending"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid sortDescending %q", v)
		}
		f.SortDescending = b
	}
	if f.PageNumber, err = optInt(q, "pagenumber"); err != nil {
		return f, err
	}
	if f.PageSize, err = optInt(q, "pagesize"); err != nil {
		return f, err
	}
	return f, nil
}

func optInt64(q map[string]string, key string) (*int64, error) {
	v := q[key]
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, v)
	}
	return &n, nil
}

func optInt(q map[string]string, key string) (int, error) {
	v := q[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func optDate(q map[string]string, key string) (*model.Date, error) {
	v := q[key]
	if v == "" {
		return nil, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, v)
	}
	return &d, nil
}
