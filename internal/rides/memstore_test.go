package rides

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/geo"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

// memStore is an in-memory RepositoryInterface with the same conditional
// write and one-active-ride semantics as the Postgres repository.
type memStore struct {
	mu    sync.Mutex
	rides map[uuid.UUID]*models.Ride
	clock time.Time

	// failWith, when set, is returned by every call.
	failWith error
}

func newMemStore() *memStore {
	return &memStore{
		rides: make(map[uuid.UUID]*models.Ride),
		clock: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp. Caller holds mu.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func cloneRide(r *models.Ride) *models.Ride {
	c := *r
	return &c
}

func hasStatus(status models.RideStatus, set []models.RideStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memStore) activeFor(match func(*models.Ride) bool, statuses []models.RideStatus) *models.Ride {
	for _, r := range m.rides {
		if match(r) && hasStatus(r.Status, statuses) {
			return r
		}
	}
	return nil
}

func (m *memStore) passengerActive(passengerID uuid.UUID) *models.Ride {
	return m.activeFor(func(r *models.Ride) bool { return r.PassengerID == passengerID }, models.PassengerActiveStatuses)
}

func (m *memStore) driverActive(driverID uuid.UUID) *models.Ride {
	return m.activeFor(func(r *models.Ride) bool { return r.IsAssignedDriver(driverID) }, models.DriverActiveStatuses)
}

func (m *memStore) CreateRide(_ context.Context, ride *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}

	if m.passengerActive(ride.PassengerID) != nil {
		return ErrPassengerHasActiveRide
	}
	now := m.tick()
	ride.CreatedAt, ride.UpdatedAt = now, now
	m.rides[ride.ID] = cloneRide(ride)
	return nil
}

func (m *memStore) GetRideByID(_ context.Context, id uuid.UUID) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	r, ok := m.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	return cloneRide(r), nil
}

func (m *memStore) GetActiveRideByPassenger(_ context.Context, passengerID uuid.UUID) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	if r := m.passengerActive(passengerID); r != nil {
		return cloneRide(r), nil
	}
	return nil, ErrRideNotFound
}

func (m *memStore) GetActiveRideByDriver(_ context.Context, driverID uuid.UUID) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	if r := m.driverActive(driverID); r != nil {
		return cloneRide(r), nil
	}
	return nil, ErrRideNotFound
}

func (m *memStore) AcceptRide(_ context.Context, rideID, driverID uuid.UUID, vehicle models.VehicleSnapshot) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	r, ok := m.rides[rideID]
	if !ok || r.Status != models.RideStatusPending || r.DriverID != nil {
		return nil, ErrStaleRide
	}
	if m.driverActive(driverID) != nil {
		return nil, ErrDriverHasActiveRide
	}

	now := m.tick()
	driver := driverID
	snapshot := vehicle
	r.DriverID = &driver
	r.VehicleSnapshot = &snapshot
	r.Status = models.RideStatusAccepted
	r.AcceptedAt = &now
	r.UpdatedAt = now
	return cloneRide(r), nil
}

func (m *memStore) TransitionRide(_ context.Context, rideID, driverID uuid.UUID, from, to models.RideStatus) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	r, ok := m.rides[rideID]
	if !ok || r.Status != from || !r.IsAssignedDriver(driverID) {
		return nil, ErrStaleRide
	}

	now := m.tick()
	switch to {
	case models.RideStatusInProgress:
		r.StartedAt = &now
	case models.RideStatusCompleted:
		r.CompletedAt = &now
	default:
		return nil, errors.New("unsupported transition")
	}
	r.Status = to
	r.UpdatedAt = now
	return cloneRide(r), nil
}

func (m *memStore) CancelRide(_ context.Context, rideID uuid.UUID, from models.RideStatus, cancelledBy models.UserRole, reason string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	r, ok := m.rides[rideID]
	if !ok || r.Status != from {
		return nil, ErrStaleRide
	}

	now := m.tick()
	by := cancelledBy
	why := reason
	r.Status = models.RideStatusCancelled
	r.CancelledBy = &by
	r.CancellationReason = &why
	r.CancelledAt = &now
	r.UpdatedAt = now
	return cloneRide(r), nil
}

func (m *memStore) SetRating(_ context.Context, rideID uuid.UUID, by models.UserRole, rating int) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	r, ok := m.rides[rideID]
	if !ok || r.Status != models.RideStatusCompleted {
		return nil, ErrStaleRide
	}

	value := rating
	switch by {
	case models.RolePassenger:
		if r.PassengerRating != nil {
			return nil, ErrStaleRide
		}
		r.PassengerRating = &value
	case models.RoleDriver:
		if r.DriverRating != nil {
			return nil, ErrStaleRide
		}
		r.DriverRating = &value
	default:
		return nil, errors.New("unsupported rating role")
	}
	r.UpdatedAt = m.tick()
	return cloneRide(r), nil
}

func (m *memStore) ListRides(_ context.Context, filter RideFilter) ([]*models.Ride, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}

	var matched []*models.Ride
	for _, r := range m.rides {
		if filter.PassengerID != nil && r.PassengerID != *filter.PassengerID {
			continue
		}
		if filter.DriverID != nil && !r.IsAssignedDriver(*filter.DriverID) {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		matched = append(matched, cloneRide(r))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*models.Ride{}, total, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memStore) FindPendingRidesNear(_ context.Context, origin models.GeoPoint, radiusMeters float64, cells []string) ([]*models.NearbyRide, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	allowed := make(map[string]bool, len(cells))
	for _, c := range cells {
		allowed[c] = true
	}

	var results []*models.NearbyRide
	for _, r := range m.rides {
		if r.Status != models.RideStatusPending {
			continue
		}
		if len(allowed) > 0 && !allowed[r.PickupCell] {
			continue
		}
		p := r.PickupLocation.GeoPoint
		distance := geo.Haversine(origin.Latitude, origin.Longitude, p.Latitude, p.Longitude)
		if distance > radiusMeters {
			continue
		}
		results = append(results, &models.NearbyRide{Ride: cloneRide(r), DistanceMeters: distance})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

var _ RepositoryInterface = (*memStore)(nil)
