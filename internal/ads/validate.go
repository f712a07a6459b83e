package ads

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"classifieds-marketplace/internal/models"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports JSON field names
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateCreate checks the request and resolves its category payload
func validateCreate(v *validator.Validate, in *CreateInput) (payload, error) {
	verr := NewValidationError()

	// blank text counts as missing
	trimInput(in)
	if err := v.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return payload{}, fmt.Errorf("failed to validate request: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
		}
	}

	if in.Category != "" && !in.Category.Valid() {
		verr.Add("category", "must be one of: property, private_vehicle, commercial_vehicle, two_wheeler")
	}
	if in.Price != nil && (math.IsNaN(*in.Price) || math.IsInf(*in.Price, 0)) {
		verr.Add("price", "must be a finite number")
	}

	hasLat, hasLon := in.Latitude != nil, in.Longitude != nil
	if hasLat != hasLon {
		verr.Add("latitude", "latitude and longitude must be supplied together")
	}
	if strings.TrimSpace(in.Location) == "" && !(hasLat && hasLon) {
		verr.Add("location", "is required unless latitude and longitude are supplied")
	}

	p := resolvePayload(in, verr)
	return p, verr.OrNil()
}

func trimInput(in *CreateInput) {
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Link = strings.TrimSpace(in.Link)
	if in.Property != nil {
		in.Property.PropertyType = strings.TrimSpace(in.Property.PropertyType)
	}
	if in.Vehicle != nil {
		in.Vehicle.ManufacturerID = strings.TrimSpace(in.Vehicle.ManufacturerID)
		in.Vehicle.ModelID = strings.TrimSpace(in.Vehicle.ModelID)
	}
	if in.CommercialVehicle != nil {
		in.CommercialVehicle.ManufacturerID = strings.TrimSpace(in.CommercialVehicle.ManufacturerID)
		in.CommercialVehicle.ModelID = strings.TrimSpace(in.CommercialVehicle.ModelID)
	}
}

// resolvePayload picks the single category payload that matches the category
func resolvePayload(in *CreateInput, verr *ValidationError) payload {
	supplied := 0
	if in.Property != nil {
		supplied++
	}
	if in.Vehicle != nil {
		supplied++
	}
	if in.CommercialVehicle != nil {
		supplied++
	}
	if supplied > 1 {
		verr.Add("category", "exactly one category payload must be supplied")
		return payload{}
	}
	if !in.Category.Valid() {
		return payload{}
	}

	kind := in.Category.SubtypeKind()
	p := payload{kind: kind}
	switch kind {
	case models.SubtypeProperty:
		if in.Property == nil {
			verr.Add("property", "is required for category "+string(in.Category))
		}
		p.property = in.Property
	case models.SubtypeVehicle:
		if in.Vehicle == nil {
			verr.Add("vehicle", "is required for category "+string(in.Category))
		}
		p.vehicle = in.Vehicle
	case models.SubtypeCommercialVehicle:
		if in.CommercialVehicle == nil {
			verr.Add("commercialVehicle", "is required for category "+string(in.Category))
		} else if !in.CommercialVehicle.hasCommercialAttribute() {
			verr.Add("commercialVehicle", "must include at least one of commercialVehicleType, bodyType, payloadCapacity, axleCount, seatingCapacity")
		}
		p.commercial = in.CommercialVehicle
	}
	return p
}

// fieldPath turns "CreateInput.property.propertyType" into "property.propertyType"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.String {
			return "must have at most " + fe.Param() + " items or characters"
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		return "must be a valid URL"
	}
	return "is invalid"
}
