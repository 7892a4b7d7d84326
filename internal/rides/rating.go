package rides

import (
	"context"

	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/richxcame/ride-dispatch/pkg/validation"
)

// RatingRecorder turns a wire rating into a once-only rating on the ride.
type RatingRecorder struct {
	service *Service
}

// NewRatingRecorder creates a recorder on top of the lifecycle service.
func NewRatingRecorder(service *Service) *RatingRecorder {
	return &RatingRecorder{service: service}
}

// Record validates the request and stores the rating for the actor's role.
func (r *RatingRecorder) Record(ctx context.Context, actor models.Actor, rideID uuid.UUID, req *models.RateRideRequest) (*models.Ride, error) {
	if err := validation.ValidateStruct(req); err != nil {
		return nil, err
	}

	ride, err := r.service.RateRide(ctx, actor, rideID, int(*req.Rating))
	if err != nil {
		return nil, err
	}

	ratingsTotal.WithLabelValues(string(actor.Role)).Inc()
	return ride, nil
}
