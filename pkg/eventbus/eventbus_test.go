package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Success(t *testing.T) {
	data := map[string]string{"ride_id": "abc"}

	event, err := NewEvent(SubjectRideRequested, "rides-service", data)
	require.NoError(t, err)

	assert.Equal(t, SubjectRideRequested, event.Type)
	assert.Equal(t, "rides-service", event.Source)
	assert.False(t, event.Timestamp.IsZero())

	_, err = uuid.Parse(event.ID)
	assert.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(event.Data, &decoded))
	assert.Equal(t, "abc", decoded["ride_id"])
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("rides.broken", "rides-service", make(chan int))
	assert.Error(t, err)
}

func TestRideEventData_OmitsUnsetFields(t *testing.T) {
	data := RideEventData{
		RideID:      uuid.New(),
		PassengerID: uuid.New(),
		Status:      "pending",
		ActorID:     uuid.New(),
		ActorRole:   "passenger",
		Fare:        120,
		VehicleType: "bike",
		OccurredAt:  time.Now().UTC(),
	}

	event, err := NewEvent(SubjectRideRequested, "rides-service", data)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Data, &decoded))
	assert.NotContains(t, decoded, "driver_id")
	assert.NotContains(t, decoded, "rating")
	assert.NotContains(t, decoded, "cancellation_reason")
	assert.Equal(t, "pending", decoded["status"])
}
