package drivers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumns = []string{
	"user_id", "is_verified", "is_active",
	"vehicle_type", "make", "model", "number_plate", "capacity",
}

func newTestStore(t *testing.T, breaker *resilience.CircuitBreaker) (*ProfileStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProfileStore(db, breaker), mock
}

func TestGetDriverProfile_WithVehicle(t *testing.T) {
	store, mock := newTestStore(t, nil)
	driverID := uuid.New()

	mock.ExpectQuery("SELECT p.user_id.*FROM driver_profiles p.*LEFT JOIN driver_vehicles").
		WithArgs(driverID).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(driverID.String(), true, true, "car", "Toyota", "Prius", "AB-123", 4))

	profile, err := store.GetDriverProfile(context.Background(), driverID)
	require.NoError(t, err)
	assert.Equal(t, driverID, profile.UserID)
	assert.True(t, profile.IsVerified)
	assert.True(t, profile.IsActive)
	require.NotNil(t, profile.Vehicle)
	assert.Equal(t, "car", profile.Vehicle.Type)
	assert.Equal(t, "Toyota", profile.Vehicle.Make)
	assert.Equal(t, "Prius", profile.Vehicle.Model)
	assert.Equal(t, "AB-123", profile.Vehicle.NumberPlate)
	assert.Equal(t, 4, profile.Vehicle.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDriverProfile_WithoutVehicle(t *testing.T) {
	store, mock := newTestStore(t, nil)
	driverID := uuid.New()

	mock.ExpectQuery("SELECT p.user_id").
		WithArgs(driverID).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(driverID.String(), true, false, nil, nil, nil, nil, nil))

	profile, err := store.GetDriverProfile(context.Background(), driverID)
	require.NoError(t, err)
	assert.False(t, profile.IsActive)
	assert.Nil(t, profile.Vehicle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDriverProfile_NotFound(t *testing.T) {
	store, mock := newTestStore(t, nil)
	driverID := uuid.New()

	mock.ExpectQuery("SELECT p.user_id").
		WithArgs(driverID).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := store.GetDriverProfile(context.Background(), driverID)
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDriverProfile_BreakerOpensOnDatabaseFailures(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(BreakerSettings(resilience.Settings{
		Name:             "driver-profiles-test",
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}))
	store, mock := newTestStore(t, breaker)
	driverID := uuid.New()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT p.user_id").
			WithArgs(driverID).
			WillReturnError(errors.New("connection refused"))
	}

	for i := 0; i < 2; i++ {
		_, err := store.GetDriverProfile(context.Background(), driverID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}

	_, err := store.GetDriverProfile(context.Background(), driverID)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDriverProfile_MissingProfileDoesNotTripBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(BreakerSettings(resilience.Settings{
		Name:             "driver-profiles-missing-test",
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}))
	store, mock := newTestStore(t, breaker)
	driverID := uuid.New()

	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT p.user_id").
			WithArgs(driverID).
			WillReturnRows(sqlmock.NewRows(profileColumns))
	}

	for i := 0; i < 3; i++ {
		_, err := store.GetDriverProfile(context.Background(), driverID)
		assert.ErrorIs(t, err, ErrProfileNotFound)
	}
	assert.True(t, breaker.Allow())
	assert.NoError(t, mock.ExpectationsWereMet())
}
