// Package seed loads reference users, branches and a sample appointment
// into an empty database.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"appointment-booking-api/internal/auth"
	"appointment-booking-api/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

type Store interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u *model.User) error
	CountBranches(ctx context.Context) (int, error)
	CreateBranch(ctx context.Context, b *model.Branch) error
	ListBranches(ctx context.Context) ([]model.Branch, error)
	CountAppointments(ctx context.Context) (int, error)
	CreateAppointment(ctx context.Context, a *model.Appointment, audit *model.AppointmentAudit) error
}

type File struct {
	Users    []UserSeed   `yaml:"users"`
	Branches []BranchSeed `yaml:"branches"`
	Sample   *SampleSeed  `yaml:"sample"`
}

type UserSeed struct {
	Username string     `yaml:"username"`
	Email    string     `yaml:"email"`
	Password string     `yaml:"password"`
	FullName string     `yaml:"fullName"`
	Role     model.Role `yaml:"role"`
}

type BranchSeed struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

type SampleSeed struct {
	Title       string `yaml:"title"`
	RequestedBy string `yaml:"requestedBy"`
	Description string `yaml:"description"`
	DaysFromNow int    `yaml:"daysFromNow"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
}

// Load reads path, or the embedded defaults when path is empty.
func Load(path string) (*File, error) {
	raw := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("seed file: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed yaml: %w", err)
	}
	for i, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d: username and password are required", i)
		}
		if u.Role != model.RoleAdmin && u.Role != model.RoleUser {
			return nil, fmt.Errorf("seed user %q: unknown role %q", u.Username, u.Role)
		}
	}
	return &f, nil
}

type Seeder struct {
	st  Store
	log logrus.FieldLogger
	now func() time.Time
}

func New(st Store, log logrus.FieldLogger) *Seeder {
	return &Seeder{st: st, log: log, now: time.Now}
}

// Run applies f. withSample controls the demo appointment.
func (s *Seeder) Run(ctx context.Context, f *File, withSample bool) error {
	if err := s.users(ctx, f.Users); err != nil {
		return err
	}
	if err := s.branches(ctx, f.Branches); err != nil {
		return err
	}
	if withSample && f.Sample != nil {
		return s.sample(ctx, f.Sample)
	}
	return nil
}

func (s *Seeder) users(ctx context.Context, users []UserSeed) error {
	n, err := s.st.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("users already present")
		return nil
	}
	for _, us := range users {
		hash, err := auth.HashPassword(us.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", us.Username, err)
		}
		u := &model.User{
			Username:     us.Username,
			Email:        us.Email,
			PasswordHash: hash,
			FullName:     us.FullName,
			Role:         us.Role,
			IsActive:     true,
		}
		if err := s.st.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", us.Username, err)
		}
	}
	s.log.WithField("count", len(users)).Info("users seeded")
	return nil
}

func (s *Seeder) branches(ctx context.Context, branches []BranchSeed) error {
	n, err := s.st.CountBranches(ctx)
	if err != nil {
		return fmt.Errorf("count branches: %w", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("branches already present")
		return nil
	}
	for _, bs := range branches {
		b := &model.Branch{Name: bs.Name, Location: bs.Location}
		if err := s.st.CreateBranch(ctx, b); err != nil {
			return fmt.Errorf("seed branch %s: %w", bs.Name, err)
		}
	}
	s.log.WithField("count", len(branches)).Info("branches seeded")
	return nil
}

func (s *Seeder) sample(ctx context.Context, sm *SampleSeed) error {
	n, err := s.st.CountAppointments(ctx)
	if err != nil {
		return fmt.Errorf("count appointments: %w", err)
	}
	if n > 0 {
		s.log.WithField("count", n).Info("appointments already present")
		return nil
	}
	branches, err := s.st.ListBranches(ctx)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}
	if len(branches) == 0 {
		s.log.Warn("no branches, sample appointment skipped")
		return nil
	}
	start, err := model.ParseTimeOfDay(sm.Start)
	if err != nil {
		return fmt.Errorf("sample start: %w", err)
	}
	end, err := model.ParseTimeOfDay(sm.End)
	if err != nil {
		return fmt.Errorf("sample end: %w", err)
	}

	a := &model.Appointment{
		BranchID:    branches[0].ID,
		RequestedBy: sm.RequestedBy,
		Title:       sm.Title,
		Date:        model.DateOf(s.now().UTC()).AddDays(sm.DaysFromNow),
		StartTime:   start,
		EndTime:     end,
		Description: sm.Description,
		Status:      model.StatusPending,
	}
	audit := &model.AppointmentAudit{
		FromStatus: model.StatusDraft,
		ToStatus:   model.StatusPending,
		ActionBy:   sm.RequestedBy,
		Comment:    "Appointment request submitted",
	}
	if err := s.st.CreateAppointment(ctx, a, audit); err != nil {
		return fmt.Errorf("seed sample appointment: %w", err)
	}
	s.log.WithField("appointment_id", a.ID).Info("sample appointment seeded")
	return nil
}
