package drivers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
)

// ErrProfileNotFound is returned when the user has no driver profile.
var ErrProfileNotFound = errors.New("driver profile not found")

// ProfileStore reads driver eligibility and the primary vehicle from the
// driver profile database. Lookups go through a circuit breaker so an
// unavailable profile database fails fast.
type ProfileStore struct {
	db      *sql.DB
	breaker *resilience.CircuitBreaker
}

// NewProfileStore creates a store. breaker may be nil.
func NewProfileStore(db *sql.DB, breaker *resilience.CircuitBreaker) *ProfileStore {
	return &ProfileStore{db: db, breaker: breaker}
}

// BreakerSettings marks a missing profile as a successful call so that it
// never trips the breaker.
func BreakerSettings(settings resilience.Settings) resilience.Settings {
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrProfileNotFound)
	}
	return settings
}

// GetDriverProfile returns the driver's verification state and primary
// vehicle. Vehicle is nil when the driver has none.
func (s *ProfileStore) GetDriverProfile(ctx context.Context, driverID uuid.UUID) (*models.DriverProfile, error) {
	result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return s.fetch(ctx, driverID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.DriverProfile), nil
}

func (s *ProfileStore) fetch(ctx context.Context, driverID uuid.UUID) (*models.DriverProfile, error) {
	query := `
		SELECT p.user_id, p.is_verified, p.is_active,
		       v.vehicle_type, v.make, v.model, v.number_plate, v.capacity
		FROM driver_profiles p
		LEFT JOIN driver_vehicles v ON v.driver_id = p.user_id AND v.is_primary
		WHERE p.user_id = $1
	`

	var (
		profile      models.DriverProfile
		vehicleType  sql.NullString
		vehicleMake  sql.NullString
		vehicleModel sql.NullString
		plate        sql.NullString
		capacity     sql.NullInt32
	)
	err := s.db.QueryRowContext(ctx, query, driverID).Scan(
		&profile.UserID,
		&profile.IsVerified,
		&profile.IsActive,
		&vehicleType,
		&vehicleMake,
		&vehicleModel,
		&plate,
		&capacity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver profile: %w", err)
	}

	if vehicleType.Valid {
		profile.Vehicle = &models.VehicleSnapshot{
			Type:        vehicleType.String,
			Make:        vehicleMake.String,
			Model:       vehicleModel.String,
			NumberPlate: plate.String,
			Capacity:    int(capacity.Int32),
		}
	}
	return &profile, nil
}

// Ping checks the profile database connection.
func (s *ProfileStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
