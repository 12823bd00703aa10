package model

import "time"

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
}

// PublicUser is the projection of a user that is safe to return to clients.
type PublicUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

type Branch struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type Appointment struct {
	ID             int64     `json:"id"`
	BranchID       int64     `json:"branchId"`
	BranchName     string    `json:"branchName"`
	BranchLocation string    `json:"branchLocation"`
	RequestedBy    string    `json:"requestedBy"`
	RequestedByID  *int64    `json:"requestedById,omitempty"`
	Title          string    `json:"title"`
	Date           Date      `json:"date"`
	StartTime      TimeOfDay `json:"startTime"`
	EndTime        TimeOfDay `json:"endTime"`
	Description    string    `json:"description,omitempty"`
	Status         Status    `json:"status"`
	AdminComment   string    `json:"adminComment,omitempty"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type AppointmentAudit struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointmentId"`
	FromStatus    Status    `json:"fromStatus"`
	ToStatus      Status    `json:"toStatus"`
	ActionBy      string    `json:"actionBy"`
	ActionAt      time.Time `json:"actionAt"`
	Comment       string    `json:"comment,omitempty"`
}

type RefreshToken struct {
	ID         string
	UserID     int64
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}
