package rides

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/internal/drivers"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/geo"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/richxcame/ride-dispatch/pkg/pagination"
	"github.com/richxcame/ride-dispatch/pkg/resilience"
	"github.com/richxcame/ride-dispatch/pkg/tracing"
	"github.com/richxcame/ride-dispatch/pkg/validation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Service owns the ride state machine.
type Service struct {
	repo     RepositoryInterface
	profiles DriverProfileProvider
	events   EventPublisher
}

// NewService creates a new rides service. events may be nil.
func NewService(repo RepositoryInterface, profiles DriverProfileProvider, events EventPublisher) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		events:   events,
	}
}

func startSpan(ctx context.Context, name string, actor models.Actor) (context.Context, trace.Span) {
	ctx, span := tracing.StartSpan(ctx, tracerName, name)
	tracing.AddSpanAttributes(ctx, tracing.ActorAttributes(actor.ID.String(), string(actor.Role))...)
	return ctx, span
}

func endSpan(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		if appErr, ok := common.AsAppError(err); !ok || appErr.Code >= 500 {
			tracing.RecordError(ctx, err)
		}
	}
	span.End()
}

// loadRide fetches a ride, translating a missing row into NotFound.
func (s *Service) loadRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.repo.GetRideByID(ctx, rideID)
	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("ride not found", err)
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get ride", err)
	}
	return ride, nil
}

func statusConflict(message string, ride *models.Ride) error {
	return common.NewRideConflictError(message, ride.ID.String(), string(ride.Status))
}

// activeRideConflict looks up the actor's current active ride so the
// conflict can name it.
func (s *Service) activeRideConflict(ctx context.Context, actor models.Actor, message string) error {
	var (
		active *models.Ride
		err    error
	)
	if actor.IsDriver() {
		active, err = s.repo.GetActiveRideByDriver(ctx, actor.ID)
	} else {
		active, err = s.repo.GetActiveRideByPassenger(ctx, actor.ID)
	}
	if err != nil {
		return common.NewConflictError(message)
	}
	return statusConflict(message, active)
}

// staleConflict reports a lost conditional update with the ride's current state.
func (s *Service) staleConflict(ctx context.Context, rideID uuid.UUID, message string) error {
	current, err := s.repo.GetRideByID(ctx, rideID)
	if err != nil {
		return common.NewConflictError(message)
	}
	return statusConflict(message, current)
}

// CreateRide records a pending ride request for the passenger.
func (s *Service) CreateRide(ctx context.Context, actor models.Actor, req *models.CreateRideRequest) (ride *models.Ride, err error) {
	ctx, span := startSpan(ctx, "rides.CreateRide", actor)
	defer func() { endSpan(ctx, span, err) }()

	if err := Authorize(actor, ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	active, err := s.repo.GetActiveRideByPassenger(ctx, actor.ID)
	switch {
	case err == nil:
		return nil, statusConflict("you already have an active ride", active)
	case !errors.Is(err, ErrRideNotFound):
		return nil, common.NewInternalError("failed to check active rides", err)
	}

	pickup := req.PickupLocation.ToLocation()
	vehicleType := strings.TrimSpace(req.VehicleType)
	if vehicleType == "" {
		vehicleType = models.DefaultVehicleType
	}

	ride = &models.Ride{
		ID:             uuid.New(),
		PassengerID:    actor.ID,
		PickupLocation: pickup,
		DropLocation:   req.DropLocation.ToLocation(),
		PickupCell:     geo.ZoneCell(pickup.GeoPoint.Latitude, pickup.GeoPoint.Longitude),
		Fare:           req.Fare,
		Distance:       req.Distance,
		Duration:       int(math.Round(req.Duration)),
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
		VehicleType:    vehicleType,
		Notes:          req.Notes,
		Polyline:       req.Polyline,
		Status:         models.RideStatusPending,
	}

	if err := s.repo.CreateRide(ctx, ride); err != nil {
		if errors.Is(err, ErrPassengerHasActiveRide) {
			return nil, s.activeRideConflict(ctx, actor, "you already have an active ride")
		}
		return nil, common.NewInternalError("failed to create ride", err)
	}

	transitionsTotal.WithLabelValues(string(models.RideStatusPending)).Inc()
	logger.InfoContext(ctx, "ride requested",
		zap.String("ride_id", ride.ID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("status", string(ride.Status)),
	)
	s.publish(ctx, eventbus.SubjectRideRequested, actor, ride, nil)

	return ride, nil
}

// AcceptRide assigns a pending ride to the driver. Of several drivers
// accepting the same ride concurrently exactly one succeeds.
func (s *Service) AcceptRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (ride *models.Ride, err error) {
	ctx, span := startSpan(ctx, "rides.AcceptRide", actor)
	defer func() { endSpan(ctx, span, err) }()
	tracing.AddSpanAttributes(ctx, tracing.RideIDKey.String(rideID.String()))

	if err := Authorize(actor, ActionAccept, nil); err != nil {
		return nil, err
	}

	ride, err = s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusPending {
		acceptConflictsTotal.Inc()
		return nil, statusConflict("ride is no longer available", ride)
	}

	active, err := s.repo.GetActiveRideByDriver(ctx, actor.ID)
	switch {
	case err == nil:
		acceptConflictsTotal.Inc()
		return nil, statusConflict("you already have an active ride", active)
	case !errors.Is(err, ErrRideNotFound):
		return nil, common.NewInternalError("failed to check active rides", err)
	}

	vehicle, err := s.eligibleVehicle(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	accepted, err := s.repo.AcceptRide(ctx, rideID, actor.ID, *vehicle)
	switch {
	case errors.Is(err, ErrStaleRide):
		acceptConflictsTotal.Inc()
		return nil, s.staleConflict(ctx, rideID, "ride is no longer available")
	case errors.Is(err, ErrDriverHasActiveRide):
		acceptConflictsTotal.Inc()
		return nil, s.activeRideConflict(ctx, actor, "you already have an active ride")
	case err != nil:
		return nil, common.NewInternalError("failed to accept ride", err)
	}

	transitionsTotal.WithLabelValues(string(models.RideStatusAccepted)).Inc()
	logger.InfoContext(ctx, "ride accepted",
		zap.String("ride_id", rideID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("status", string(accepted.Status)),
	)
	s.publish(ctx, eventbus.SubjectRideAccepted, actor, accepted, nil)

	return accepted, nil
}

// eligibleVehicle returns the vehicle to snapshot for an eligible driver.
func (s *Service) eligibleVehicle(ctx context.Context, driverID uuid.UUID) (*models.VehicleSnapshot, error) {
	if s.profiles == nil {
		return nil, common.NewInternalError("driver profiles are not configured", nil)
	}

	profile, err := s.profiles.GetDriverProfile(ctx, driverID)
	switch {
	case errors.Is(err, drivers.ErrProfileNotFound):
		return nil, common.NewForbiddenError("driver profile not found")
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, common.NewInternalError("driver profiles are temporarily unavailable", err)
	case err != nil:
		return nil, common.NewInternalError("failed to load driver profile", err)
	}

	if !profile.IsVerified || !profile.IsActive {
		return nil, common.NewForbiddenError("driver is not verified or not active")
	}
	if profile.Vehicle == nil {
		return nil, common.NewForbiddenError("driver has no registered vehicle")
	}
	return profile.Vehicle, nil
}

// StartRide begins the trip of an accepted ride.
func (s *Service) StartRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error) {
	return s.driverTransition(ctx, actor, rideID, ActionStart,
		models.RideStatusAccepted, models.RideStatusInProgress, eventbus.SubjectRideStarted)
}

// CompleteRide finishes an in-progress trip.
func (s *Service) CompleteRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error) {
	return s.driverTransition(ctx, actor, rideID, ActionComplete,
		models.RideStatusInProgress, models.RideStatusCompleted, eventbus.SubjectRideCompleted)
}

func (s *Service) driverTransition(ctx context.Context, actor models.Actor, rideID uuid.UUID, action Action, from, to models.RideStatus, subject string) (ride *models.Ride, err error) {
	ctx, span := startSpan(ctx, "rides."+string(action), actor)
	defer func() { endSpan(ctx, span, err) }()
	tracing.AddSpanAttributes(ctx, tracing.RideIDKey.String(rideID.String()))

	ride, err = s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, action, ride); err != nil {
		return nil, err
	}
	if ride.Status != from {
		return nil, statusConflict("cannot "+string(action)+" a ride that is "+string(ride.Status), ride)
	}

	updated, err := s.repo.TransitionRide(ctx, rideID, actor.ID, from, to)
	if errors.Is(err, ErrStaleRide) {
		return nil, s.staleConflict(ctx, rideID, "ride status changed, cannot "+string(action))
	}
	if err != nil {
		return nil, common.NewInternalError("failed to "+string(action)+" ride", err)
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	logger.InfoContext(ctx, "ride status changed",
		zap.String("ride_id", rideID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("status", string(to)),
	)
	s.publish(ctx, subject, actor, updated, nil)

	return updated, nil
}

// CancelRide cancels a pending or accepted ride on behalf of one of its
// parties. In-progress rides cannot be cancelled.
func (s *Service) CancelRide(ctx context.Context, actor models.Actor, rideID uuid.UUID, reason string) (ride *models.Ride, err error) {
	ctx, span := startSpan(ctx, "rides.CancelRide", actor)
	defer func() { endSpan(ctx, span, err) }()
	tracing.AddSpanAttributes(ctx, tracing.RideIDKey.String(rideID.String()))

	if err := validation.ValidateStruct(&models.CancelRideRequest{Reason: reason}); err != nil {
		return nil, err
	}

	ride, err = s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionCancel, ride); err != nil {
		return nil, err
	}
	if !ride.Status.Cancellable() {
		return nil, statusConflict("cannot cancel a ride that is "+string(ride.Status), ride)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.DefaultCancellationReason
	}

	cancelled, err := s.repo.CancelRide(ctx, rideID, ride.Status, actor.Role, reason)
	if errors.Is(err, ErrStaleRide) {
		return nil, s.staleConflict(ctx, rideID, "ride status changed, cannot cancel")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to cancel ride", err)
	}

	transitionsTotal.WithLabelValues(string(models.RideStatusCancelled)).Inc()
	logger.InfoContext(ctx, "ride cancelled",
		zap.String("ride_id", rideID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("cancelled_by", string(actor.Role)),
		zap.String("status", string(cancelled.Status)),
	)
	s.publish(ctx, eventbus.SubjectRideCancelled, actor, cancelled, func(d *eventbus.RideEventData) {
		d.CancellationReason = reason
	})

	return cancelled, nil
}

// RateRide records the actor's rating of a completed ride. Each party rates
// at most once.
func (s *Service) RateRide(ctx context.Context, actor models.Actor, rideID uuid.UUID, rating int) (ride *models.Ride, err error) {
	ctx, span := startSpan(ctx, "rides.RateRide", actor)
	defer func() { endSpan(ctx, span, err) }()
	tracing.AddSpanAttributes(ctx, tracing.RideIDKey.String(rideID.String()))

	if rating < 1 || rating > 5 {
		return nil, common.NewValidationError("invalid rating", []common.FieldError{
			{Field: "rating", Message: "must be a whole number between 1 and 5"},
		})
	}

	ride, err = s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideStatusCompleted {
		return nil, statusConflict("only completed rides can be rated", ride)
	}
	if err := Authorize(actor, ActionRate, ride); err != nil {
		return nil, err
	}
	if alreadyRated(ride, actor.Role) {
		return nil, statusConflict("you have already rated this ride", ride)
	}

	rated, err := s.repo.SetRating(ctx, rideID, actor.Role, rating)
	if errors.Is(err, ErrStaleRide) {
		return nil, s.staleConflict(ctx, rideID, "you have already rated this ride")
	}
	if err != nil {
		return nil, common.NewInternalError("failed to rate ride", err)
	}

	logger.InfoContext(ctx, "ride rated",
		zap.String("ride_id", rideID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("role", string(actor.Role)),
		zap.Int("rating", rating),
	)
	s.publish(ctx, eventbus.SubjectRideRated, actor, rated, func(d *eventbus.RideEventData) {
		d.Rating = rating
		d.RatedBy = string(actor.Role)
	})

	return rated, nil
}

func alreadyRated(ride *models.Ride, role models.UserRole) bool {
	if role == models.RoleDriver {
		return ride.DriverRating != nil
	}
	return ride.PassengerRating != nil
}

// GetRide returns a ride to one of its parties.
func (s *Service) GetRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.loadRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, ActionRead, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// GetActiveRide returns the actor's single active ride.
func (s *Service) GetActiveRide(ctx context.Context, actor models.Actor) (*models.Ride, error) {
	var (
		ride *models.Ride
		err  error
	)
	switch actor.Role {
	case models.RolePassenger:
		ride, err = s.repo.GetActiveRideByPassenger(ctx, actor.ID)
	case models.RoleDriver:
		ride, err = s.repo.GetActiveRideByDriver(ctx, actor.ID)
	default:
		return nil, common.NewForbiddenError("unknown role")
	}

	if errors.Is(err, ErrRideNotFound) {
		return nil, common.NewNotFoundError("no active ride", err)
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get active ride", err)
	}
	return ride, nil
}

// ListMyRides returns the actor's rides, newest first.
func (s *Service) ListMyRides(ctx context.Context, actor models.Actor, query *models.ListRidesQuery) ([]*models.Ride, *common.Pagination, error) {
	if err := validation.ValidateStruct(query); err != nil {
		return nil, nil, err
	}

	params := pagination.NewParams(query.Page, query.Limit)
	filter := RideFilter{Limit: params.Limit, Offset: params.Offset()}
	switch actor.Role {
	case models.RolePassenger:
		filter.PassengerID = &actor.ID
	case models.RoleDriver:
		filter.DriverID = &actor.ID
	default:
		return nil, nil, common.NewForbiddenError("unknown role")
	}
	if query.Status != "" {
		status := models.RideStatus(query.Status)
		filter.Status = &status
	}

	rides, total, err := s.repo.ListRides(ctx, filter)
	if err != nil {
		return nil, nil, common.NewInternalError("failed to list rides", err)
	}
	return rides, pagination.BuildMeta(params, total), nil
}
