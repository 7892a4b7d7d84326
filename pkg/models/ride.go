package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RideStatus represents the status of a ride
type RideStatus string

const (
	RideStatusPending    RideStatus = "pending"
	RideStatusAccepted   RideStatus = "accepted"
	RideStatusInProgress RideStatus = "in-progress"
	RideStatusCompleted  RideStatus = "completed"
	RideStatusCancelled  RideStatus = "cancelled"
)

// PassengerActiveStatuses block a passenger from requesting another ride.
var PassengerActiveStatuses = []RideStatus{RideStatusPending, RideStatusAccepted, RideStatusInProgress}

// DriverActiveStatuses block a driver from accepting or browsing rides.
var DriverActiveStatuses = []RideStatus{RideStatusAccepted, RideStatusInProgress}

var rideTransitions = map[RideStatus][]RideStatus{
	RideStatusPending:    {RideStatusAccepted, RideStatusCancelled},
	RideStatusAccepted:   {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
}

// Valid reports whether s is a known status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideStatusPending, RideStatusAccepted, RideStatusInProgress, RideStatusCompleted, RideStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits s -> next.
func (s RideStatus) CanTransitionTo(next RideStatus) bool {
	for _, allowed := range rideTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether a ride in this status may still be cancelled.
func (s RideStatus) Cancellable() bool {
	return s.CanTransitionTo(RideStatusCancelled)
}

// Terminal reports whether no further transition is possible.
func (s RideStatus) Terminal() bool {
	return len(rideTransitions[s]) == 0
}

// PaymentMethod is how the passenger settles the fare.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodWallet PaymentMethod = "wallet"
	PaymentMethodCard   PaymentMethod = "card"
)

// DefaultVehicleType is used when a ride request names none.
const DefaultVehicleType = "bike"

// DefaultCancellationReason is recorded when the canceller gives none.
const DefaultCancellationReason = "No reason provided"

// GeoPoint is a WGS84 coordinate. It marshals as a GeoJSON point.
type GeoPoint struct {
	Longitude float64
	Latitude  float64
}

type geoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// MarshalJSON renders {"type":"Point","coordinates":[lng,lat]}.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: [2]float64{p.Longitude, p.Latitude}})
}

// UnmarshalJSON accepts the GeoJSON form produced by MarshalJSON.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var raw geoJSONPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != "Point" {
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	p.Longitude, p.Latitude = raw.Coordinates[0], raw.Coordinates[1]
	return nil
}

// Location is a pickup or drop point.
type Location struct {
	Address  string   `json:"address"`
	City     string   `json:"city"`
	GeoPoint GeoPoint `json:"geopoint"`
}

// VehicleSnapshot freezes the driver's vehicle at accept time.
type VehicleSnapshot struct {
	Type        string `json:"type"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	NumberPlate string `json:"number_plate"`
	Capacity    int    `json:"capacity"`
}

// Ride represents a ride in the system
type Ride struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	PassengerID        uuid.UUID        `json:"passenger_id" db:"passenger_id"`
	DriverID           *uuid.UUID       `json:"driver_id,omitempty" db:"driver_id"`
	PickupLocation     Location         `json:"pickup_location"`
	DropLocation       Location         `json:"drop_location"`
	PickupCell         string           `json:"pickup_cell,omitempty" db:"pickup_cell"`
	Fare               float64          `json:"fare" db:"fare"`
	Distance           float64          `json:"distance" db:"distance"` // in kilometers
	Duration           int              `json:"duration" db:"duration"` // in minutes
	PaymentMethod      PaymentMethod    `json:"payment_method" db:"payment_method"`
	VehicleType        string           `json:"vehicle_type" db:"vehicle_type"`
	Notes              *string          `json:"notes,omitempty" db:"notes"`
	Polyline           *string          `json:"polyline,omitempty" db:"polyline"`
	VehicleSnapshot    *VehicleSnapshot `json:"vehicle_snapshot,omitempty" db:"vehicle_snapshot"`
	Status             RideStatus       `json:"status" db:"status"`
	PassengerRating    *int             `json:"passenger_rating,omitempty" db:"passenger_rating"`
	DriverRating       *int             `json:"driver_rating,omitempty" db:"driver_rating"`
	CancellationReason *string          `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledBy        *UserRole        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	AcceptedAt         *time.Time       `json:"accepted_at,omitempty" db:"accepted_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// IsPassenger reports whether userID requested the ride.
func (r *Ride) IsPassenger(userID uuid.UUID) bool {
	return r.PassengerID == userID
}

// IsAssignedDriver reports whether userID is the ride's driver.
func (r *Ride) IsAssignedDriver(userID uuid.UUID) bool {
	return r.DriverID != nil && *r.DriverID == userID
}

// NearbyRide is a pending ride annotated with its distance from the searching driver.
type NearbyRide struct {
	*Ride
	DistanceMeters float64 `json:"distance_meters"`
}

// LocationInput is the wire form of a location: coordinates are [longitude, latitude].
type LocationInput struct {
	Address     string    `json:"address" validate:"required,max=255"`
	City        string    `json:"city" validate:"required,max=100"`
	Coordinates []float64 `json:"coordinates" validate:"required,len=2,lnglat"`
}

// ToLocation converts validated input into a Location.
func (l LocationInput) ToLocation() Location {
	return Location{
		Address:  l.Address,
		City:     l.City,
		GeoPoint: GeoPoint{Longitude: l.Coordinates[0], Latitude: l.Coordinates[1]},
	}
}

// CreateRideRequest is the passenger's ride request
type CreateRideRequest struct {
	PickupLocation LocationInput `json:"pickup_location" validate:"required"`
	DropLocation   LocationInput `json:"drop_location" validate:"required"`
	Fare           float64       `json:"fare" validate:"gt=0"`
	Distance       float64       `json:"distance" validate:"gt=0"`
	Duration       float64       `json:"duration" validate:"gt=0,whole"`
	PaymentMethod  string        `json:"payment_method" validate:"required,payment_method"`
	VehicleType    string        `json:"vehicle_type,omitempty" validate:"omitempty,max=32"`
	Notes          *string       `json:"notes,omitempty" validate:"omitempty,max=500"`
	Polyline       *string       `json:"polyline,omitempty" validate:"omitempty,max=20000"`
}

// CancelRideRequest carries an optional cancellation reason
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// RateRideRequest carries a 1-5 rating. Fractional values are rejected.
type RateRideRequest struct {
	Rating *float64 `json:"rating" validate:"required,gte=1,lte=5,whole"`
}

// NearbyRidesQuery is the driver's dispatch search
type NearbyRidesQuery struct {
	Longitude *float64 `form:"longitude" validate:"required,longitude"`
	Latitude  *float64 `form:"latitude" validate:"required,latitude"`
	Radius    float64  `form:"radius" validate:"gte=0"`
}

// ListRidesQuery filters the caller's ride history
type ListRidesQuery struct {
	Status string `form:"status" validate:"omitempty,ride_status"`
	Page   int    `form:"page" validate:"omitempty,gte=1"`
	Limit  int    `form:"limit" validate:"omitempty,gte=1,lte=50"`
}
