package account

import "time"

// Role is the coarse authorization level attached to an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the two recognized values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is a durable record of a person who may authenticate.
//
// Email is globally unique (enforced by the store). PasswordHash is a bcrypt
// hash; the cleartext never leaves the login/register handlers. New accounts
// start inactive and cannot authenticate until an admin approves them.
type Account struct {
	ID             string
	FirstName      string
	LastName       string
	Email          string
	PasswordHash   string
	Role           Role
	Active         bool
	AssignedOrders []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
