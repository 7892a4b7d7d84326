package rides

import "errors"

// Store errors. The service maps each onto an AppError.
var (
	ErrRideNotFound = errors.New("ride not found")
	// ErrStaleRide means a conditional update matched no row: the ride left
	// the expected status (or was rated) between the read and the write.
	ErrStaleRide              = errors.New("ride changed concurrently")
	ErrPassengerHasActiveRide = errors.New("passenger already has an active ride")
	ErrDriverHasActiveRide    = errors.New("driver already has an active ride")
)
