package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/store"
)

func (s *Store) checkRefs(a *model.Appointment) error {
	if _, ok := s.branches[a.BranchID]; !ok {
		return &store.DBError{Sentinel: store.ErrForeignKey, Cause: fmt.Errorf("branch %d", a.BranchID), Constraint: "appointments_branch_id_fkey"}
	}
	if a.RequestedByID != nil {
		if _, ok := s.users[*a.RequestedByID]; !ok {
			return &store.DBError{Sentinel: store.ErrForeignKey, Cause: fmt.Errorf("user %d", *a.RequestedByID), Constraint: "appointments_requested_by_id_fkey"}
		}
	}
	return nil
}

func (s *Store) CreateAppointment(_ context.Context, a *model.Appointment, audit *model.AppointmentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRefs(a); err != nil {
		return err
	}
	now := s.now().UTC()
	a.ID = s.id("appointments")
	a.Version = 1
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	s.appointments[a.ID] = &cp
	if audit != nil {
		audit.AppointmentID = a.ID
		s.appendAudit(audit)
	}
	return nil
}

// enrich returns a copy with branch and requester display fields resolved.
func (s *Store) enrich(a *model.Appointment) model.Appointment {
	out := *a
	if b, ok := s.branches[a.BranchID]; ok {
		out.BranchName = b.Name
		out.BranchLocation = b.Location
	}
	if a.RequestedByID != nil {
		if u, ok := s.users[*a.RequestedByID]; ok {
			out.RequestedBy = u.FullName
		}
	}
	return out
}

func (s *Store) GetAppointment(_ context.Context, id int64) (*model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, notFound("appointment", id)
	}
	out := s.enrich(a)
	return &out, nil
}

func (s *Store) ListAppointments(_ context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error) {
	f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Appointment
	for _, a := range s.appointments {
		if matches(a, f) {
			matched = append(matched, a)
		}
	}

	key, desc := f.Order()
	sort.Slice(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j], key)
		if c == 0 {
			c = cmpInt64(matched[i].ID, matched[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	out := []model.Appointment{}
	for i := f.Offset(); i < total && len(out) < f.PageSize; i++ {
		out = append(out, s.enrich(matched[i]))
	}
	return out, total, nil
}

func matches(a *model.Appointment, f model.AppointmentFilter) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.BranchID != nil && a.BranchID != *f.BranchID {
		return false
	}
	if f.RequestedByID != nil && (a.RequestedByID == nil || *a.RequestedByID != *f.RequestedByID) {
		return false
	}
	if f.StartDate != nil && a.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && a.Date.After(*f.EndDate) {
		return false
	}
	if f.SearchText != "" {
		q := strings.ToLower(f.SearchText)
		if !strings.Contains(strings.ToLower(a.Title), q) && !strings.Contains(strings.ToLower(a.RequestedBy), q) {
			return false
		}
	}
	return true
}

func compare(a, b *model.Appointment, key model.SortKey) int {
	switch key {
	case model.SortByStatus:
		return a.Status.Ordinal() - b.Status.Ordinal()
	case model.SortByRequestedBy:
		return strings.Compare(strings.ToLower(a.RequestedBy), strings.ToLower(b.RequestedBy))
	default:
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmpInt64(int64(a.StartTime), int64(b.StartTime))
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (s *Store) UpdateAppointment(_ context.Context, a *model.Appointment, audit *model.AppointmentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.appointments[a.ID]
	if !ok {
		return notFound("appointment", a.ID)
	}
	if cur.Version != a.Version {
		return &store.DBError{Sentinel: store.ErrConflict, Cause: fmt.Errorf("appointment %d version changed", a.ID)}
	}
	if err := s.checkRefs(a); err != nil {
		return err
	}

	a.Version++
	a.UpdatedAt = s.now().UTC()
	a.CreatedAt = cur.CreatedAt
	a.AdminComment = cur.AdminComment
	a.RequestedBy = cur.RequestedBy
	a.RequestedByID = cur.RequestedByID
	cp := *a
	cp.BranchName, cp.BranchLocation = "", ""
	s.appointments[a.ID] = &cp
	if audit != nil {
		audit.AppointmentID = a.ID
		s.appendAudit(audit)
	}
	return nil
}

func (s *Store) Transition(_ context.Context, id int64, version int, to model.Status, adminComment *string, audit *model.AppointmentAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.appointments[id]
	if !ok {
		return notFound("appointment", id)
	}
	if cur.Version != version {
		return &store.DBError{Sentinel: store.ErrConflict, Cause: fmt.Errorf("appointment %d version changed", id)}
	}
	cur.Status = to
	if adminComment != nil {
		cur.AdminComment = *adminComment
	}
	cur.Version++
	cur.UpdatedAt = s.now().UTC()
	if audit != nil {
		audit.AppointmentID = id
		s.appendAudit(audit)
	}
	return nil
}

func (s *Store) appendAudit(au *model.AppointmentAudit) {
	au.ID = s.id("appointment_audits")
	au.ActionAt = s.now().UTC()
	s.audits = append(s.audits, *au)
}

func (s *Store) ListAudits(_ context.Context, appointmentID int64) ([]model.AppointmentAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.AppointmentAudit{}
	for _, au := range s.audits {
		if au.AppointmentID == appointmentID {
			out = append(out, au)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ActionAt.Equal(out[j].ActionAt) {
			return out[i].ActionAt.After(out[j].ActionAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CountAppointments(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments), nil
}
