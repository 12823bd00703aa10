package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/store"
)

const (
	commentCreated  = "Appointment request submitted"
	commentUpdated  = "Appointment updated"
	commentApproved = "Appointment approved"
)

// TransitionRecorder observes status changes that were committed.
type TransitionRecorder interface {
	RecordTransition(from, to model.Status)
}

// AppointmentInput carries the caller-editable fields of an appointment.
type AppointmentInput struct {
	BranchID      int64
	RequestedBy   string
	RequestedByID *int64
	Title         string
	Date          model.Date
	StartTime     model.TimeOfDay
	EndTime       model.TimeOfDay
	Description   string
	// Status is only honoured by Update; nil keeps the current status.
	Status *model.Status
	// Version, when non-zero, must match the stored row version.
	Version int
}

type AppointmentService struct {
	appts    AppointmentStore
	branches BranchStore
	rec      TransitionRecorder
	log      logrus.FieldLogger
}

func NewAppointmentService(appts AppointmentStore, branches BranchStore, rec TransitionRecorder, log logrus.FieldLogger) *AppointmentService {
	if log == nil {
		log = logging.Discard()
	}
	return &AppointmentService{appts: appts, branches: branches, rec: rec, log: log}
}

func (s *AppointmentService) record(from, to model.Status) {
	if s.rec != nil {
		s.rec.RecordTransition(from, to)
	}
}

// Create stores a new Pending appointment together with its
// Draft -> Pending audit row.
func (s *AppointmentService) Create(ctx context.Context, in AppointmentInput) (*model.Appointment, error) {
	if err := s.checkBranch(ctx, in.BranchID); err != nil {
		return nil, err
	}

	a := &model.Appointment{
		BranchID:      in.BranchID,
		RequestedBy:   strings.TrimSpace(in.RequestedBy),
		RequestedByID: in.RequestedByID,
		Title:         strings.TrimSpace(in.Title),
		Date:          in.Date,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		Description:   in.Description,
		Status:        model.StatusPending,
	}
	audit := &model.AppointmentAudit{
		FromStatus: model.StatusDraft,
		ToStatus:   model.StatusPending,
		ActionBy:   a.RequestedBy,
		Comment:    commentCreated,
	}
	if err := s.appts.CreateAppointment(ctx, a, audit); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return nil, ErrUnknownBranch
		}
		return nil, storeErr(err, "create appointment")
	}
	s.record(model.StatusDraft, model.StatusPending)
	logging.WithContext(ctx, s.log).WithFields(logrus.Fields{
		"appointment_id": a.ID,
		"branch_id":      a.BranchID,
	}).Info("appointment created")

	return s.Get(ctx, a.ID)
}

func (s *AppointmentService) checkBranch(ctx context.Context, id int64) error {
	if _, err := s.branches.GetBranch(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownBranch
		}
		return storeErr(err, "branch lookup")
	}
	return nil
}

func (s *AppointmentService) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	a, err := s.appts.GetAppointment(ctx, id)
	if err != nil {
		return nil, storeErr(err, fmt.Sprintf("appointment %d", id))
	}
	return a, nil
}

func (s *AppointmentService) List(ctx context.Context, f model.AppointmentFilter) (model.Page[model.Appointment], error) {
	f.Normalize()
	items, total, err := s.appts.ListAppointments(ctx, f)
	if err != nil {
		return model.Page[model.Appointment]{}, storeErr(err, "list appointments")
	}
	return model.NewPage(items, total, f.PageNumber, f.PageSize), nil
}

// Pending lists like List but always restricted to Pending.
func (s *AppointmentService) Pending(ctx context.Context, f model.AppointmentFilter) (model.Page[model.Appointment], error) {
	pending := model.StatusPending
	f.Status = &pending
	return s.List(ctx, f)
}

// Audits returns the history of one appointment, newest first.
func (s *AppointmentService) Audits(ctx context.Context, id int64) ([]model.AppointmentAudit, error) {
	out, err := s.appts.ListAudits(ctx, id)
	if err != nil {
		return nil, storeErr(err, "list audits")
	}
	return out, nil
}

func (s *AppointmentService) Approve(ctx context.Context, id int64, actor string) (*model.Appointment, error) {
	return s.guarded(ctx, id, "approve", model.StatusApproved, actor, commentApproved, nil)
}

func (s *AppointmentService) Reject(ctx context.Context, id int64, actor, comment string) (*model.Appointment, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, ErrCommentRequired
	}
	return s.guarded(ctx, id, "reject", model.StatusRejected, actor, comment, &comment)
}

// guarded applies a transition that is only legal from Pending.
func (s *AppointmentService) guarded(ctx context.Context, id int64, action string, to model.Status, actor, comment string, adminComment *string) (*model.Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusPending {
		return nil, &TransitionError{ID: id, Action: action, Current: a.Status}
	}
	if err := s.apply(ctx, a, to, actor, comment, adminComment); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// UpdateStatus moves an appointment to any status. Unlike Approve and
// Reject it has no Pending precondition. Setting the current status again
// is a no-op and writes no audit row.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id int64, to model.Status, actor, comment string) (*model.Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", to, ErrNotApplicable)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == to {
		return a, nil
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = fmt.Sprintf("Status changed to %s", to)
	}
	if err := s.apply(ctx, a, to, actor, comment, nil); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *AppointmentService) apply(ctx context.Context, a *model.Appointment, to model.Status, actor, comment string, adminComment *string) error {
	from := a.Status
	audit := &model.AppointmentAudit{
		FromStatus: from,
		ToStatus:   to,
		ActionBy:   actor,
		Comment:    comment,
	}
	if err := s.appts.Transition(ctx, a.ID, a.Version, to, adminComment, audit); err != nil {
		return storeErr(err, fmt.Sprintf("appointment %d", a.ID))
	}
	s.record(from, to)
	logging.WithContext(ctx, s.log).WithFields(logrus.Fields{
		"appointment_id": a.ID,
		"from":           from,
		"to":             to,
		"actor":          actor,
	}).Info("appointment status changed")
	return nil
}

// Update rewrites an appointment's editable fields. A status change
// made this way is audited with actor as the author.
func (s *AppointmentService) Update(ctx context.Context, id int64, in AppointmentInput, actor string) (*model.Appointment, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Version != 0 && in.Version != cur.Version {
		return nil, fmt.Errorf("appointment %d at version %d, got %d: %w", id, cur.Version, in.Version, ErrConflict)
	}
	if in.BranchID != cur.BranchID {
		if err := s.checkBranch(ctx, in.BranchID); err != nil {
			return nil, err
		}
	}

	next := *cur
	next.BranchID = in.BranchID
	next.Title = strings.TrimSpace(in.Title)
	next.Date = in.Date
	next.StartTime = in.StartTime
	next.EndTime = in.EndTime
	next.Description = in.Description
	if in.Status != nil {
		next.Status = *in.Status
	}

	var audit *model.AppointmentAudit
	if next.Status != cur.Status {
		audit = &model.AppointmentAudit{
			FromStatus: cur.Status,
			ToStatus:   next.Status,
			ActionBy:   actor,
			Comment:    commentUpdated,
		}
	}
	if err := s.appts.UpdateAppointment(ctx, &next, audit); err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return nil, ErrUnknownBranch
		}
		return nil, storeErr(err, fmt.Sprintf("appointment %d", id))
	}
	if audit != nil {
		s.record(cur.Status, next.Status)
	}
	return s.Get(ctx, id)
}
