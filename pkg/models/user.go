package models

import (
	"github.com/google/uuid"
)

// UserRole represents user role type
type UserRole string

const (
	RolePassenger UserRole = "passenger"
	RoleDriver    UserRole = "driver"
)

// Valid reports whether r is a role this service recognises.
func (r UserRole) Valid() bool {
	return r == RolePassenger || r == RoleDriver
}

// Actor is the verified identity behind a request.
type Actor struct {
	ID   uuid.UUID
	Role UserRole
}

func (a Actor) IsPassenger() bool { return a.Role == RolePassenger }

func (a Actor) IsDriver() bool { return a.Role == RoleDriver }

// DriverProfile is the subset of a driver's record needed to accept rides.
type DriverProfile struct {
	UserID     uuid.UUID
	IsVerified bool
	IsActive   bool
	Vehicle    *VehicleSnapshot
}
