package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

// Validate is the global validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names.
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	_ = Validate.RegisterValidation("latitude", validateLatitude)
	_ = Validate.RegisterValidation("longitude", validateLongitude)
	_ = Validate.RegisterValidation("lnglat", validateLngLat)
	_ = Validate.RegisterValidation("whole", validateWhole)
	_ = Validate.RegisterValidation("ride_status", validateRideStatus)
	_ = Validate.RegisterValidation("payment_method", validatePaymentMethod)
}

// ValidateStruct runs the struct tags of s and converts failures into a
// ValidationError carrying one entry per invalid field.
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return common.NewInternalError("validation failed", err)
	}

	fields := make([]common.FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, common.FieldError{
			Field:   fieldPath(fe),
			Message: describe(fe),
		})
	}
	return common.NewValidationError("validation failed", fields)
}

// fieldPath drops the root struct name: "pickup_location.coordinates".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must contain exactly %s elements", fe.Param())
	case "whole":
		return "must be a whole number"
	case "lnglat":
		return "must be [longitude, latitude] within [-180,180] and [-90,90]"
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "payment_method":
		return "must be one of cash, wallet, card"
	case "ride_status":
		return "must be one of pending, accepted, in-progress, completed, cancelled"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func validateLatitude(fl validator.FieldLevel) bool {
	latitude := fl.Field().Float()
	return latitude >= -90.0 && latitude <= 90.0
}

func validateLongitude(fl validator.FieldLevel) bool {
	longitude := fl.Field().Float()
	return longitude >= -180.0 && longitude <= 180.0
}

// validateLngLat checks a [longitude, latitude] pair.
func validateLngLat(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice || field.Len() != 2 {
		return false
	}
	return ValidateCoordinates(field.Index(1).Float(), field.Index(0).Float()) == nil
}

// validateWhole accepts integers, and floats with no fractional part.
func validateWhole(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		v := field.Float()
		return !math.IsInf(v, 0) && v == math.Trunc(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func validateRideStatus(fl validator.FieldLevel) bool {
	return models.RideStatus(fl.Field().String()).Valid()
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	switch models.PaymentMethod(fl.Field().String()) {
	case models.PaymentMethodCash, models.PaymentMethodWallet, models.PaymentMethodCard:
		return true
	}
	return false
}

// ValidateCoordinates validates latitude and longitude
func ValidateCoordinates(latitude, longitude float64) error {
	if math.IsNaN(latitude) || latitude < -90.0 || latitude > 90.0 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", latitude)
	}
	if math.IsNaN(longitude) || longitude < -180.0 || longitude > 180.0 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", longitude)
	}
	return nil
}
