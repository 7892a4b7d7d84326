package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// RideEventData is the payload of every rides.* event.
type RideEventData struct {
	RideID      uuid.UUID  `json:"ride_id"`
	PassengerID uuid.UUID  `json:"passenger_id"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"`
	Status      string     `json:"status"`
	ActorID     uuid.UUID  `json:"actor_id"`
	ActorRole   string     `json:"actor_role"`
	PickupCell  string     `json:"pickup_cell,omitempty"`
	Fare        float64    `json:"fare"`
	VehicleType string     `json:"vehicle_type"`
	OccurredAt  time.Time  `json:"occurred_at"`

	// Set on rides.cancelled.
	CancellationReason string `json:"cancellation_reason,omitempty"`
	// Set on rides.rated: the score and the role that gave it.
	Rating  int    `json:"rating,omitempty"`
	RatedBy string `json:"rated_by,omitempty"`
}
