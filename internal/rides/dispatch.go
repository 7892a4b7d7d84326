package rides

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/geo"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/richxcame/ride-dispatch/pkg/tracing"
	"github.com/richxcame/ride-dispatch/pkg/validation"
	"go.uber.org/zap"
)

const (
	DefaultRadiusMeters = 5000
	MaxRadiusMeters     = 20000
)

// Dispatcher answers which pending rides are near a driver.
type Dispatcher struct {
	repo          RepositoryInterface
	defaultRadius float64
	maxRadius     float64
}

// NewDispatcher creates a dispatcher. Zero config values fall back to the
// package defaults.
func NewDispatcher(repo RepositoryInterface, cfg config.DispatchConfig) *Dispatcher {
	d := &Dispatcher{
		repo:          repo,
		defaultRadius: cfg.DefaultRadiusMeters,
		maxRadius:     cfg.MaxRadiusMeters,
	}
	if d.defaultRadius <= 0 {
		d.defaultRadius = DefaultRadiusMeters
	}
	if d.maxRadius <= 0 {
		d.maxRadius = MaxRadiusMeters
	}
	if d.defaultRadius > d.maxRadius {
		d.defaultRadius = d.maxRadius
	}
	return d
}

// Radius resolves the requested search radius.
func (d *Dispatcher) Radius(requested float64) float64 {
	if requested <= 0 {
		return d.defaultRadius
	}
	if requested > d.maxRadius {
		return d.maxRadius
	}
	return requested
}

// FindNearby lists pending rides within the radius of the driver, nearest
// first. A driver with an active ride gets a Conflict before any search runs.
func (d *Dispatcher) FindNearby(ctx context.Context, actor models.Actor, query *models.NearbyRidesQuery) (results []*models.NearbyRide, err error) {
	ctx, span := startSpan(ctx, "rides.FindNearby", actor)
	defer func() { endSpan(ctx, span, err) }()

	if err := Authorize(actor, ActionNearby, nil); err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(query); err != nil {
		return nil, err
	}

	active, err := d.repo.GetActiveRideByDriver(ctx, actor.ID)
	switch {
	case err == nil:
		return nil, statusConflict("finish your active ride before looking for new ones", active)
	case !errors.Is(err, ErrRideNotFound):
		return nil, common.NewInternalError("failed to check active rides", err)
	}

	origin := models.GeoPoint{Longitude: *query.Longitude, Latitude: *query.Latitude}
	radius := d.Radius(query.Radius)
	cells := geo.ZoneCellsWithin(origin.Latitude, origin.Longitude, radius)

	start := time.Now()
	results, err = d.repo.FindPendingRidesNear(ctx, origin, radius, cells)
	nearbyQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, common.NewInternalError("failed to find nearby rides", err)
	}

	nearbyResults.Observe(float64(len(results)))
	tracing.AddSpanAttributes(ctx,
		tracing.RadiusKey.Float64(radius),
		tracing.ResultsKey.Int(len(results)),
	)
	logger.DebugContext(ctx, "nearby rides searched",
		zap.String("actor_id", actor.ID.String()),
		zap.Float64("radius_meters", radius),
		zap.Int("cells", len(cells)),
		zap.Int("results", len(results)),
	)

	return results, nil
}
