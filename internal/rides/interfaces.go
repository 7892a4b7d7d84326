package rides

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

// RideFilter narrows a participant's ride history.
type RideFilter struct {
	PassengerID *uuid.UUID
	DriverID    *uuid.UUID
	Status      *models.RideStatus
	Limit       int
	Offset      int
}

// RepositoryInterface is the ride store. Every state change is a single
// conditional write so concurrent callers cannot both succeed.
type RepositoryInterface interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRideByID(ctx context.Context, id uuid.UUID) (*models.Ride, error)
	GetActiveRideByPassenger(ctx context.Context, passengerID uuid.UUID) (*models.Ride, error)
	GetActiveRideByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error)
	AcceptRide(ctx context.Context, rideID, driverID uuid.UUID, vehicle models.VehicleSnapshot) (*models.Ride, error)
	TransitionRide(ctx context.Context, rideID, driverID uuid.UUID, from, to models.RideStatus) (*models.Ride, error)
	CancelRide(ctx context.Context, rideID uuid.UUID, from models.RideStatus, cancelledBy models.UserRole, reason string) (*models.Ride, error)
	SetRating(ctx context.Context, rideID uuid.UUID, by models.UserRole, rating int) (*models.Ride, error)
	ListRides(ctx context.Context, filter RideFilter) ([]*models.Ride, int64, error)
	FindPendingRidesNear(ctx context.Context, origin models.GeoPoint, radiusMeters float64, cells []string) ([]*models.NearbyRide, error)
}

// DriverProfileProvider looks up the eligibility and vehicle of a driver.
type DriverProfileProvider interface {
	GetDriverProfile(ctx context.Context, driverID uuid.UUID) (*models.DriverProfile, error)
}

// EventPublisher is the slice of the event bus the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *eventbus.Event) error
}
