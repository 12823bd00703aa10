// Package service holds the booking workflow, authentication and branch
// lookup on top of the storage contracts below.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appointment-booking-api/internal/model"
	"appointment-booking-api/internal/store"
)

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, a *model.Appointment, audit *model.AppointmentAudit) error
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error)
	UpdateAppointment(ctx context.Context, a *model.Appointment, audit *model.AppointmentAudit) error
	Transition(ctx context.Context, id int64, version int, to model.Status, adminComment *string, audit *model.AppointmentAudit) error
	ListAudits(ctx context.Context, appointmentID int64) ([]model.AppointmentAudit, error)
}

type BranchStore interface {
	ListBranches(ctx context.Context) ([]model.Branch, error)
	GetBranch(ctx context.Context, id int64) (*model.Branch, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type TokenStore interface {
	CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID string, userID int64, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error
}

var (
	ErrNotFound           = errors.New("not found")
	ErrNotApplicable      = errors.New("transition not applicable")
	ErrConflict           = errors.New("appointment was modified by another request, reload and retry")
	ErrCommentRequired    = errors.New("a rejection reason is required")
	ErrUnknownBranch      = errors.New("branch does not exist")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	ErrDuplicateUsername  = errors.New("username is already taken")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrForbidden          = errors.New("not allowed")
)

// TransitionError reports a guarded transition refused because of the
// appointment's current status. Nothing is written when it is returned.
type TransitionError struct {
	ID      int64
	Action  string
	Current model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment %d: status is %s, expected %s", e.Action, e.ID, e.Current, model.StatusPending)
}

func (e *TransitionError) Is(target error) bool { return target == ErrNotApplicable }

// storeErr translates storage sentinels into service errors.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
