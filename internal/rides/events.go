package rides

import (
	"context"
	"time"

	"github.com/richxcame/ride-dispatch/pkg/eventbus"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"go.uber.org/zap"
)

const (
	eventSource         = "rides-service"
	eventPublishTimeout = 2 * time.Second
)

// publish emits a lifecycle event. The transition has already committed, so
// a failure is logged and never returned to the caller.
func (s *Service) publish(ctx context.Context, subject string, actor models.Actor, ride *models.Ride, mutate func(*eventbus.RideEventData)) {
	if s.events == nil {
		return
	}

	data := eventbus.RideEventData{
		RideID:      ride.ID,
		PassengerID: ride.PassengerID,
		DriverID:    ride.DriverID,
		Status:      string(ride.Status),
		ActorID:     actor.ID,
		ActorRole:   string(actor.Role),
		PickupCell:  ride.PickupCell,
		Fare:        ride.Fare,
		VehicleType: ride.VehicleType,
		OccurredAt:  ride.UpdatedAt,
	}
	if mutate != nil {
		mutate(&data)
	}

	event, err := eventbus.NewEvent(subject, eventSource, data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build ride event", zap.String("subject", subject), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.Publish(pubCtx, subject, event); err != nil {
		logger.WarnContext(ctx, "failed to publish ride event",
			zap.String("subject", subject),
			zap.String("ride_id", ride.ID.String()),
			zap.Error(err),
		)
	}
}
