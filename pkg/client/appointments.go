package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"appointment-booking-api/internal/model"
)

// ListOptions maps onto the list query string. Zero values are omitted.
type ListOptions struct {
	Status         *model.Status
	BranchID       int64
	RequestedByID  int64
	StartDate      *model.Date
	EndDate        *model.Date
	SearchText     string
	SortBy         string
	SortDescending bool
	PageNumber     int
	PageSize       int
}

func (o ListOptions) Values() url.Values {
	v := url.Values{}
	if o.Status != nil {
		v.Set("status", o.Status.String())
	}
	if o.BranchID > 0 {
		v.Set("branchId", strconv.FormatInt(o.BranchID, 10))
	}
	if o.RequestedByID > 0 {
		v.Set("requestedById", strconv.FormatInt(o.RequestedByID, 10))
	}
	if o.StartDate != nil {
		v.Set("startDate", o.StartDate.String())
	}
	if o.EndDate != nil {
		v.Set("endDate", o.EndDate.String())
	}
	if o.SearchText != "" {
		v.Set("searchText", o.SearchText)
	}
	if o.SortBy != "" {
		v.Set("sortBy", o.SortBy)
		v.Set("sortDescending", strconv.FormatBool(o.SortDescending))
	}
	if o.PageNumber > 0 {
		v.Set("pageNumber", strconv.Itoa(o.PageNumber))
	}
	if o.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(o.PageSize))
	}
	return v
}

// AppointmentRequest is the body of create and update.
type AppointmentRequest struct {
	ID          *int64          `json:"id,omitempty"`
	BranchID    int64           `json:"branchId"`
	RequestedBy string          `json:"requestedBy"`
	Title       string          `json:"title"`
	Date        model.Date      `json:"date"`
	StartTime   model.TimeOfDay `json:"startTime"`
	EndTime     model.TimeOfDay `json:"endTime"`
	Description string          `json:"description,omitempty"`
	Status      *model.Status   `json:"status,omitempty"`
	Version     int             `json:"version,omitempty"`
}

func (c *Client) list(ctx context.Context, path string, o ListOptions) (*model.Page[model.Appointment], error) {
	var p model.Page[model.Appointment]
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: o.Values()}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListAppointments(ctx context.Context, o ListOptions) (*model.Page[model.Appointment], error) {
	return c.list(ctx, "/appointments", o)
}

// PendingAppointments ignores o.Status.
func (c *Client) PendingAppointments(ctx context.Context, o ListOptions) (*model.Page[model.Appointment], error) {
	return c.list(ctx, "/appointments/pending", o)
}

func (c *Client) Appointment(ctx context.Context, id int64) (*model.Appointment, error) {
	var a model.Appointment
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/appointments/%d", id)}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Audits(ctx context.Context, id int64) ([]model.AppointmentAudit, error) {
	var out []model.AppointmentAudit
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/appointments/%d/audits", id)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAppointment(ctx context.Context, r AppointmentRequest) (*model.Appointment, error) {
	var a model.Appointment
	if err := c.do(ctx, request{method: http.MethodPost, path: "/appointments", body: r, auth: true}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, id int64, r AppointmentRequest) error {
	return c.do(ctx, request{method: http.MethodPut, path: fmt.Sprintf("/appointments/%d", id), body: r, auth: true}, nil)
}

func (c *Client) transition(ctx context.Context, id int64, action string, body any) (*model.Appointment, error) {
	var a model.Appointment
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/appointments/%d/%s", id, action),
		body:   body,
		auth:   true,
	}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Approve(ctx context.Context, id int64) (*model.Appointment, error) {
	return c.transition(ctx, id, "approve", nil)
}

func (c *Client) Reject(ctx context.Context, id int64, comment string) (*model.Appointment, error) {
	return c.transition(ctx, id, "reject", map[string]string{"comment": comment})
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, to model.Status, comment string) (*model.Appointment, error) {
	return c.transition(ctx, id, "status", map[string]any{"status": to, "comment": comment})
}
