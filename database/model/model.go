// Package model holds the persisted records of the arena: users and their roles,
// contests, payments with their submissions, and creator applications.
package model

import "slices"

// Role is the single role a user holds at any time.
type Role string

const (
	RoleUser    Role = "user"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

// HasCapability reports whether role is one of required. All authorization
// checks go through here.
func HasCapability(role Role, required ...Role) bool {
	return slices.Contains(required, role)
}

type ContestStatus string

const (
	ContestPending  ContestStatus = "pending"
	ContestApproved ContestStatus = "approved"
	ContestRejected ContestStatus = "rejected"
)

// ParseTransition accepts only the two terminal states an admin may set.
func ParseTransition(s string) (ContestStatus, bool) {
	switch ContestStatus(s) {
	case ContestApproved, ContestRejected:
		return ContestStatus(s), true
	}
	return "", false
}

// PaymentStatusPaid is the only status a recorded payment carries.
const PaymentStatusPaid = "paid"

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// AllModels lists every table for migration.
func AllModels() []any {
	return []any{
		&User{},
		&Contest{},
		&Payment{},
		&Submission{},
		&CreatorApplication{},
	}
}
