package inventory

import (
	"context"
	"errors"
	"fmt"
)

// References are the inventory ids carried by a vehicle ad
type References struct {
	ManufacturerID string
	ModelID        string
	VariantID      string
	TransmissionID string
	FuelTypeID     string
}

// Names are the display names resolved for a set of references.
// Unresolvable references are left empty.
type Names struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Variant      string `json:"variant,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	FuelType     string `json:"fuelType,omitempty"`
}

// Gateway validates inventory references and resolves their names
type Gateway interface {
	// AssertReferencesValid fails with *InvalidReferenceError naming the first
	// invalid field in precedence order. Empty optional ids are skipped.
	AssertReferencesValid(ctx context.Context, refs References) error
	ResolveDisplayName(ctx context.Context, modelID string) (string, bool)
	ResolveNames(ctx context.Context, refs References) Names
}

// Field names in precedence order
const (
	FieldManufacturerID = "manufacturerId"
	FieldModelID        = "modelId"
	FieldVariantID      = "variantId"
	FieldTransmissionID = "transmissionId"
	FieldFuelTypeID     = "fuelTypeId"
)

// InvalidReferenceError reports a reference that does not resolve
type InvalidReferenceError struct {
	Field string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference: %s", e.Field)
}

// ErrUnavailable wraps lookup failures that are not a missing reference
var ErrUnavailable = errors.New("inventory unavailable")

// IsInvalidReference returns the offending field when err is an InvalidReferenceError
func IsInvalidReference(err error) (string, bool) {
	var ire *InvalidReferenceError
	if errors.As(err, &ire) {
		return ire.Field, true
	}
	return "", false
}
