package emission

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/carbon-tracker/internal/models"
	"github.com/carbon-tracker/internal/types"
)

var suggestions = map[types.ActivityType]string{
	types.ActivityTransport:   "Try walking, cycling, or using public transport more often.",
	types.ActivityElectricity: "Reduce electricity usage and switch to renewable sources.",
	types.ActivityDiet:        "Consider eating more plant-based meals.",
}

// Calculator maps activity submissions to kg CO2e using a FactorTable
type Calculator struct {
	table FactorTable
}

// NewCalculator creates a calculator over table
func NewCalculator(table FactorTable) *Calculator {
	return &Calculator{table: table}
}

// Compute validates the raw payload for activityType and returns the
// normalized payload together with its footprint.
func (c *Calculator) Compute(activityType types.ActivityType, raw json.RawMessage) (models.ActivityData, float64, error) {
	data, err := c.ParsePayload(activityType, raw)
	if err != nil {
		return models.ActivityData{}, 0, err
	}
	footprint, err := c.Calculate(activityType, data)
	if err != nil {
		return models.ActivityData{}, 0, err
	}
	return data, footprint, nil
}

// ParsePayload decodes a type-specific payload. Numeric fields may be JSON
// numbers or numeric strings.
func (c *Calculator) ParsePayload(activityType types.ActivityType, raw json.RawMessage) (models.ActivityData, error) {
	if !activityType.IsValid() {
		return models.ActivityData{}, invalid("type", ErrUnknownType, string(activityType))
	}

	fields := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return models.ActivityData{}, invalid("data", ErrMissingField, "must be an object")
		}
	}

	var data models.ActivityData
	switch activityType {
	case types.ActivityTransport:
		mode, err := stringField(fields, "mode")
		if err != nil {
			return models.ActivityData{}, err
		}
		if _, ok := c.table.TransportFactor(types.TransportMode(mode)); !ok {
			return models.ActivityData{}, invalid("mode", ErrUnknownMode, mode)
		}
		distance, err := numberField(fields, "distance")
		if err != nil {
			return models.ActivityData{}, err
		}
		data.Mode = types.TransportMode(mode)
		data.Distance = &distance

	case types.ActivityElectricity:
		usage, err := numberField(fields, "usage")
		if err != nil {
			return models.ActivityData{}, err
		}
		data.Usage = &usage

	case types.ActivityDiet:
		diet, err := stringField(fields, "dietType")
		if err != nil {
			return models.ActivityData{}, err
		}
		if _, ok := c.table.DietFactor(types.DietType(diet)); !ok {
			return models.ActivityData{}, invalid("dietType", ErrUnknownDiet, diet)
		}
		data.DietType = types.DietType(diet)
	}

	return data, nil
}

// Calculate returns the footprint in kg CO2e for an already parsed payload.
// The result is always finite and non-negative.
func (c *Calculator) Calculate(activityType types.ActivityType, data models.ActivityData) (float64, error) {
	var footprint float64

	switch activityType {
	case types.ActivityTransport:
		f, ok := c.table.TransportFactor(data.Mode)
		if !ok {
			return 0, invalid("mode", ErrUnknownMode, string(data.Mode))
		}
		if data.Distance == nil {
			return 0, invalid("distance", ErrMissingField, "")
		}
		footprint = *data.Distance * f

	case types.ActivityElectricity:
		if data.Usage == nil {
			return 0, invalid("usage", ErrMissingField, "")
		}
		footprint = *data.Usage * c.table.ElectricityFactor()

	case types.ActivityDiet:
		f, ok := c.table.DietFactor(data.DietType)
		if !ok {
			return 0, invalid("dietType", ErrUnknownDiet, string(data.DietType))
		}
		footprint = f

	default:
		return 0, invalid("type", ErrUnknownType, string(activityType))
	}

	if footprint < 0 || math.IsNaN(footprint) || math.IsInf(footprint, 0) {
		return 0, invalid("data", ErrInvalidNumber, "footprint out of range")
	}
	return footprint, nil
}

// Suggestion returns the reduction advice shown after logging activityType
func Suggestion(activityType types.ActivityType) string {
	return suggestions[activityType]
}

// Round2 rounds kg to two decimal places
func Round2(kg float64) float64 {
	return math.Round(kg*100) / 100
}

// FormatKg renders kg with exactly two decimals, e.g. "2.10"
func FormatKg(kg float64) string {
	return strconv.FormatFloat(Round2(kg), 'f', 2, 64)
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", invalid(name, ErrMissingField, "")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(name, ErrMissingField, "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid(name, ErrMissingField, "")
	}
	return s, nil
}

func numberField(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return 0, invalid(name, ErrMissingField, "")
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, invalid(name, ErrInvalidNumber, "")
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, invalid(name, ErrInvalidNumber, s)
		}
		v = parsed
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(name, ErrInvalidNumber, "must be finite")
	}
	if v < 0 {
		return 0, invalid(name, ErrInvalidNumber, "must not be negative")
	}
	return v, nil
}
