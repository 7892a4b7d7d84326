package rides

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/middleware"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

// ServiceInterface is the lifecycle surface the handler drives.
type ServiceInterface interface {
	CreateRide(ctx context.Context, actor models.Actor, req *models.CreateRideRequest) (*models.Ride, error)
	AcceptRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error)
	StartRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error)
	CompleteRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error)
	CancelRide(ctx context.Context, actor models.Actor, rideID uuid.UUID, reason string) (*models.Ride, error)
	GetRide(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error)
	GetActiveRide(ctx context.Context, actor models.Actor) (*models.Ride, error)
	ListMyRides(ctx context.Context, actor models.Actor, query *models.ListRidesQuery) ([]*models.Ride, *common.Pagination, error)
}

// NearbyFinder searches pending rides around a driver.
type NearbyFinder interface {
	FindNearby(ctx context.Context, actor models.Actor, query *models.NearbyRidesQuery) ([]*models.NearbyRide, error)
}

// Rater records ratings.
type Rater interface {
	Record(ctx context.Context, actor models.Actor, rideID uuid.UUID, req *models.RateRideRequest) (*models.Ride, error)
}

// Handler handles HTTP requests for rides
type Handler struct {
	service    ServiceInterface
	dispatcher NearbyFinder
	rater      Rater
}

// NewHandler creates a new rides handler
func NewHandler(service ServiceInterface, dispatcher NearbyFinder, rater Rater) *Handler {
	return &Handler{service: service, dispatcher: dispatcher, rater: rater}
}

func actorFrom(c *gin.Context) (models.Actor, bool) {
	actor, err := middleware.GetActor(c)
	if err != nil {
		common.AppErrorResponse(c, common.NewUnauthorizedError("unauthorized"))
		return models.Actor{}, false
	}
	return actor, true
}

// CreateRide handles a passenger requesting a ride
func (h *Handler) CreateRide(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.CreateRideRequest
	if !common.BindJSON(c, &req) {
		return
	}

	ride, err := h.service.CreateRide(c.Request.Context(), actor, &req)
	if common.HandleServiceError(c, err, "failed to create ride") {
		return
	}

	common.CreatedResponse(c, "ride requested", ride)
}

// ListMyRides handles listing the caller's rides
func (h *Handler) ListMyRides(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var query models.ListRidesQuery
	if !common.BindQuery(c, &query) {
		return
	}

	rides, page, err := h.service.ListMyRides(c.Request.Context(), actor, &query)
	if common.HandleServiceError(c, err, "failed to list rides") {
		return
	}

	common.SuccessResponseWithPagination(c, "rides retrieved", rides, page)
}

// GetActiveRide handles getting the caller's active ride
func (h *Handler) GetActiveRide(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ride, err := h.service.GetActiveRide(c.Request.Context(), actor)
	if common.HandleServiceError(c, err, "failed to get active ride") {
		return
	}

	common.SuccessResponse(c, "active ride retrieved", ride)
}

// FindNearby handles a driver searching for pending rides
func (h *Handler) FindNearby(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var query models.NearbyRidesQuery
	if !common.BindQuery(c, &query) {
		return
	}

	rides, err := h.dispatcher.FindNearby(c.Request.Context(), actor, &query)
	if common.HandleServiceError(c, err, "failed to find nearby rides") {
		return
	}

	common.SuccessResponse(c, "nearby rides retrieved", rides)
}

// GetRide handles getting a ride by ID
func (h *Handler) GetRide(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	rideID, ok := common.ParseUUIDParam(c, "id", "ride ID")
	if !ok {
		return
	}

	ride, err := h.service.GetRide(c.Request.Context(), actor, rideID)
	if common.HandleServiceError(c, err, "failed to get ride") {
		return
	}

	common.SuccessResponse(c, "ride retrieved", ride)
}

type rideAction func(ctx context.Context, actor models.Actor, rideID uuid.UUID) (*models.Ride, error)

func (h *Handler) transition(action rideAction, success, fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		rideID, ok := common.ParseUUIDParam(c, "id", "ride ID")
		if !ok {
			return
		}

		ride, err := action(c.Request.Context(), actor, rideID)
		if common.HandleServiceError(c, err, fallback) {
			return
		}

		common.SuccessResponse(c, success, ride)
	}
}

// AcceptRide handles a driver accepting a ride
func (h *Handler) AcceptRide(c *gin.Context) {
	h.transition(h.service.AcceptRide, "ride accepted", "failed to accept ride")(c)
}

// StartRide handles a driver starting a ride
func (h *Handler) StartRide(c *gin.Context) {
	h.transition(h.service.StartRide, "ride started", "failed to start ride")(c)
}

// CompleteRide handles a driver completing a ride
func (h *Handler) CompleteRide(c *gin.Context) {
	h.transition(h.service.CompleteRide, "ride completed", "failed to complete ride")(c)
}

// CancelRide handles either party cancelling a ride
func (h *Handler) CancelRide(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	rideID, ok := common.ParseUUIDParam(c, "id", "ride ID")
	if !ok {
		return
	}

	var req models.CancelRideRequest
	if !common.BindOptionalJSON(c, &req) {
		return
	}

	ride, err := h.service.CancelRide(c.Request.Context(), actor, rideID, req.Reason)
	if common.HandleServiceError(c, err, "failed to cancel ride") {
		return
	}

	common.SuccessResponse(c, "ride cancelled", ride)
}

// RateRide handles either party rating a completed ride
func (h *Handler) RateRide(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	rideID, ok := common.ParseUUIDParam(c, "id", "ride ID")
	if !ok {
		return
	}

	var req models.RateRideRequest
	if !common.BindJSON(c, &req) {
		return
	}

	ride, err := h.rater.Record(c.Request.Context(), actor, rideID, &req)
	if common.HandleServiceError(c, err, "failed to rate ride") {
		return
	}

	common.SuccessResponse(c, "ride rated", ride)
}

// RegisterRoutes registers ride routes. createMiddleware runs on ride
// creation only, after authentication.
func (h *Handler) RegisterRoutes(r *gin.Engine, jwtCfg config.JWTConfig, createMiddleware ...gin.HandlerFunc) {
	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtCfg))

	rides := api.Group("/rides")
	{
		create := append([]gin.HandlerFunc{middleware.RequireRole(models.RolePassenger)}, createMiddleware...)
		rides.POST("", append(create, h.CreateRide)...)
		rides.GET("", h.ListMyRides)
		rides.GET("/active", h.GetActiveRide)
		rides.GET("/nearby", middleware.RequireRole(models.RoleDriver), h.FindNearby)
		rides.GET("/:id", h.GetRide)
		rides.POST("/:id/accept", middleware.RequireRole(models.RoleDriver), h.AcceptRide)
		rides.POST("/:id/start", middleware.RequireRole(models.RoleDriver), h.StartRide)
		rides.POST("/:id/complete", middleware.RequireRole(models.RoleDriver), h.CompleteRide)
		rides.POST("/:id/cancel", h.CancelRide)
		rides.POST("/:id/rate", h.RateRide)
	}
}
