package rides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/ride-dispatch/pkg/database"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
	"github.com/richxcame/ride-dispatch/pkg/tracing"
)

const tracerName = "rides"

const (
	constraintPassengerActive = "rides_one_active_per_passenger"
	constraintDriverActive    = "rides_one_active_per_driver"
)

const rideColumns = `
	id, passenger_id, driver_id,
	pickup_address, pickup_city, ST_X(pickup_geog::geometry), ST_Y(pickup_geog::geometry), pickup_cell,
	drop_address, drop_city, ST_X(drop_geog::geometry), ST_Y(drop_geog::geometry),
	fare::float8, distance, duration, payment_method, vehicle_type, notes, polyline,
	vehicle_snapshot, status, passenger_rating, driver_rating,
	cancellation_reason, cancelled_by,
	accepted_at, started_at, completed_at, cancelled_at, created_at, updated_at`

// Repository handles database operations for rides
type Repository struct {
	db    *pgxpool.Pool
	retry resilience.RetryConfig
}

// NewRepository creates a new rides repository
func NewRepository(db *pgxpool.Pool) *Repository {
	retry := resilience.DefaultRetryConfig()
	retry.RetryableChecker = database.IsRetryable
	return &Repository{db: db, retry: retry}
}

func scanRide(row pgx.Row, extra ...any) (*models.Ride, error) {
	ride := &models.Ride{}
	var (
		paymentMethod string
		status        string
		snapshot      []byte
		cancelledBy   *string
		passengerRate *int16
		driverRate    *int16
	)

	dest := []any{
		&ride.ID, &ride.PassengerID, &ride.DriverID,
		&ride.PickupLocation.Address, &ride.PickupLocation.City,
		&ride.PickupLocation.GeoPoint.Longitude, &ride.PickupLocation.GeoPoint.Latitude, &ride.PickupCell,
		&ride.DropLocation.Address, &ride.DropLocation.City,
		&ride.DropLocation.GeoPoint.Longitude, &ride.DropLocation.GeoPoint.Latitude,
		&ride.Fare, &ride.Distance, &ride.Duration, &paymentMethod, &ride.VehicleType, &ride.Notes, &ride.Polyline,
		&snapshot, &status, &passengerRate, &driverRate,
		&ride.CancellationReason, &cancelledBy,
		&ride.AcceptedAt, &ride.StartedAt, &ride.CompletedAt, &ride.CancelledAt, &ride.CreatedAt, &ride.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	ride.PaymentMethod = models.PaymentMethod(paymentMethod)
	ride.Status = models.RideStatus(status)
	if len(snapshot) > 0 {
		ride.VehicleSnapshot = &models.VehicleSnapshot{}
		if err := json.Unmarshal(snapshot, ride.VehicleSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode vehicle snapshot: %w", err)
		}
	}
	if cancelledBy != nil {
		role := models.UserRole(*cancelledBy)
		ride.CancelledBy = &role
	}
	ride.PassengerRating = widen(passengerRate)
	ride.DriverRating = widen(driverRate)
	return ride, nil
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// activeRideError translates a partial unique index violation.
func activeRideError(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case constraintPassengerActive:
		return ErrPassengerHasActiveRide
	case constraintDriverActive:
		return ErrDriverHasActiveRide
	}
	return err
}

// CreateRide inserts a pending ride. A second active ride for the same
// passenger fails with ErrPassengerHasActiveRide.
func (r *Repository) CreateRide(ctx context.Context, ride *models.Ride) error {
	query := `
		INSERT INTO rides (
			id, passenger_id,
			pickup_address, pickup_city, pickup_geog, pickup_cell,
			drop_address, drop_city, drop_geog,
			fare, distance, duration, payment_method, vehicle_type, notes, polyline, status
		)
		VALUES (
			$1, $2,
			$3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7,
			$8, $9, ST_SetSRID(ST_MakePoint($10, $11), 4326)::geography,
			$12, $13, $14, $15, $16, $17, $18, $19
		)
		RETURNING created_at, updated_at
	`

	return tracing.TraceDBQuery(ctx, tracerName, "INSERT", "rides", func(ctx context.Context) error {
		err := r.db.QueryRow(ctx, query,
			ride.ID,
			ride.PassengerID,
			ride.PickupLocation.Address,
			ride.PickupLocation.City,
			ride.PickupLocation.GeoPoint.Longitude,
			ride.PickupLocation.GeoPoint.Latitude,
			ride.PickupCell,
			ride.DropLocation.Address,
			ride.DropLocation.City,
			ride.DropLocation.GeoPoint.Longitude,
			ride.DropLocation.GeoPoint.Latitude,
			ride.Fare,
			ride.Distance,
			ride.Duration,
			string(ride.PaymentMethod),
			ride.VehicleType,
			ride.Notes,
			ride.Polyline,
			string(ride.Status),
		).Scan(&ride.CreatedAt, &ride.UpdatedAt)
		if err != nil {
			if mapped := activeRideError(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("failed to create ride: %w", err)
		}
		return nil
	})
}

func (r *Repository) getOne(ctx context.Context, operation, query string, args ...any) (*models.Ride, error) {
	return resilience.Retry(ctx, r.retry, "rides."+operation, func(ctx context.Context) (*models.Ride, error) {
		var ride *models.Ride
		err := tracing.TraceDBQuery(ctx, tracerName, "SELECT", "rides", func(ctx context.Context) error {
			var scanErr error
			ride, scanErr = scanRide(r.db.QueryRow(ctx, query, args...))
			return scanErr
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRideNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", operation, err)
		}
		return ride, nil
	})
}

// GetRideByID retrieves a ride by ID
func (r *Repository) GetRideByID(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return r.getOne(ctx, "get ride", query, id)
}

// GetActiveRideByPassenger returns the passenger's pending, accepted or
// in-progress ride.
func (r *Repository) GetActiveRideByPassenger(ctx context.Context, passengerID uuid.UUID) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE passenger_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`
	return r.getOne(ctx, "get active passenger ride", query, passengerID, statusStrings(models.PassengerActiveStatuses))
}

// GetActiveRideByDriver returns the driver's accepted or in-progress ride.
func (r *Repository) GetActiveRideByDriver(ctx context.Context, driverID uuid.UUID) (*models.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`
	return r.getOne(ctx, "get active driver ride", query, driverID, statusStrings(models.DriverActiveStatuses))
}

// conditionalUpdate runs an UPDATE ... RETURNING guarded by the ride's
// expected state. No returned row means the guard failed.
func (r *Repository) conditionalUpdate(ctx context.Context, operation, query string, args ...any) (*models.Ride, error) {
	var ride *models.Ride
	err := tracing.TraceDBQuery(ctx, tracerName, "UPDATE", "rides", func(ctx context.Context) error {
		var scanErr error
		ride, scanErr = scanRide(r.db.QueryRow(ctx, query, args...))
		return scanErr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleRide
	}
	if err != nil {
		if mapped := activeRideError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to %s: %w", operation, err)
	}
	return ride, nil
}

// AcceptRide assigns the driver and vehicle snapshot only while the ride is
// still pending. Losing the race yields ErrStaleRide; a driver who already
// holds an active ride yields ErrDriverHasActiveRide.
func (r *Repository) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID, vehicle models.VehicleSnapshot) (*models.Ride, error) {
	snapshot, err := json.Marshal(vehicle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vehicle snapshot: %w", err)
	}

	query := `
		UPDATE rides
		SET status = $1, driver_id = $2, vehicle_snapshot = $3, accepted_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6 AND driver_id IS NULL
		RETURNING ` + rideColumns

	return r.conditionalUpdate(ctx, "accept ride", query,
		string(models.RideStatusAccepted), driverID, snapshot, time.Now(), rideID, string(models.RideStatusPending),
	)
}

// TransitionRide moves the driver's ride from one status to the next.
func (r *Repository) TransitionRide(ctx context.Context, rideID, driverID uuid.UUID, from, to models.RideStatus) (*models.Ride, error) {
	var stamp string
	switch to {
	case models.RideStatusInProgress:
		stamp = "started_at"
	case models.RideStatusCompleted:
		stamp = "completed_at"
	default:
		return nil, fmt.Errorf("unsupported transition %s -> %s", from, to)
	}

	query := `
		UPDATE rides
		SET status = $1, ` + stamp + ` = $2, updated_at = $2
		WHERE id = $3 AND driver_id = $4 AND status = $5
		RETURNING ` + rideColumns

	return r.conditionalUpdate(ctx, "transition ride", query,
		string(to), time.Now(), rideID, driverID, string(from),
	)
}

// CancelRide cancels a ride still in the status the caller observed.
func (r *Repository) CancelRide(ctx context.Context, rideID uuid.UUID, from models.RideStatus, cancelledBy models.UserRole, reason string) (*models.Ride, error) {
	query := `
		UPDATE rides
		SET status = $1, cancellation_reason = $2, cancelled_by = $3, cancelled_at = $4, updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING ` + rideColumns

	return r.conditionalUpdate(ctx, "cancel ride", query,
		string(models.RideStatusCancelled), reason, string(cancelledBy), time.Now(), rideID, string(from),
	)
}

// SetRating writes the role's rating once. A completed ride whose rating is
// already set yields ErrStaleRide.
func (r *Repository) SetRating(ctx context.Context, rideID uuid.UUID, by models.UserRole, rating int) (*models.Ride, error) {
	var column string
	switch by {
	case models.RolePassenger:
		column = "passenger_rating"
	case models.RoleDriver:
		column = "driver_rating"
	default:
		return nil, fmt.Errorf("unsupported rating role %q", by)
	}

	query := `
		UPDATE rides
		SET ` + column + ` = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND ` + column + ` IS NULL
		RETURNING ` + rideColumns

	return r.conditionalUpdate(ctx, "rate ride", query,
		rating, time.Now(), rideID, string(models.RideStatusCompleted),
	)
}

// ListRides returns a page of rides matching the filter, newest first, and
// the total number of matches.
func (r *Repository) ListRides(ctx context.Context, filter RideFilter) ([]*models.Ride, int64, error) {
	where := "WHERE TRUE"
	args := []any{}
	if filter.PassengerID != nil {
		args = append(args, *filter.PassengerID)
		where += fmt.Sprintf(" AND passenger_id = $%d", len(args))
	}
	if filter.DriverID != nil {
		args = append(args, *filter.DriverID)
		where += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	type page struct {
		rides []*models.Ride
		total int64
	}

	result, err := resilience.Retry(ctx, r.retry, "rides.list", func(ctx context.Context) (page, error) {
		var p page
		err := tracing.TraceDBQuery(ctx, tracerName, "SELECT", "rides", func(ctx context.Context) error {
			if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rides `+where, args...).Scan(&p.total); err != nil {
				return err
			}

			query := fmt.Sprintf(`SELECT %s FROM rides %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
				rideColumns, where, len(args)+1, len(args)+2)
			rows, err := r.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
			if err != nil {
				return err
			}
			defer rows.Close()

			p.rides = make([]*models.Ride, 0, filter.Limit)
			for rows.Next() {
				ride, err := scanRide(rows)
				if err != nil {
					return err
				}
				p.rides = append(p.rides, ride)
			}
			return rows.Err()
		})
		if err != nil {
			return page{}, fmt.Errorf("failed to list rides: %w", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result.rides, result.total, nil
}

// FindPendingRidesNear returns pending rides whose pickup lies within
// radiusMeters of origin, nearest first and oldest first among equals. When
// cells is non-empty only rides in those H3 cells are considered.
func (r *Repository) FindPendingRidesNear(ctx context.Context, origin models.GeoPoint, radiusMeters float64, cells []string) ([]*models.NearbyRide, error) {
	query := `
		WITH origin AS (
			SELECT ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography AS geog
		)
		SELECT ` + rideColumns + `, ST_Distance(rides.pickup_geog, origin.geog) AS distance_meters
		FROM rides, origin
		WHERE rides.status = $3
			AND (cardinality($4::text[]) = 0 OR rides.pickup_cell = ANY($4))
			AND ST_DWithin(rides.pickup_geog, origin.geog, $5)
		ORDER BY distance_meters ASC, rides.created_at ASC
	`
	if cells == nil {
		cells = []string{}
	}

	return resilience.Retry(ctx, r.retry, "rides.nearby", func(ctx context.Context) ([]*models.NearbyRide, error) {
		results := make([]*models.NearbyRide, 0)
		err := tracing.TraceDBQuery(ctx, tracerName, "SELECT", "rides", func(ctx context.Context) error {
			rows, err := r.db.Query(ctx, query,
				origin.Longitude, origin.Latitude, string(models.RideStatusPending), cells, radiusMeters,
			)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var distance float64
				ride, err := scanRide(rows, &distance)
				if err != nil {
					return err
				}
				results = append(results, &models.NearbyRide{Ride: ride, DistanceMeters: distance})
			}
			return rows.Err()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to find nearby rides: %w", err)
		}
		return results, nil
	})
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func statusStrings(statuses []models.RideStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
