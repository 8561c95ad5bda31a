// Package emission computes the carbon footprint of logged activities.
//
// A FactorTable holds the per-unit emission factors in kg CO2e. Tables are
// immutable once built; callers obtain one from DefaultFactorTable or
// LoadFactorTable and share it freely across goroutines.
package emission

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/carbon-tracker/internal/types"
)

// Default factors in kg CO2e
const (
	// CarPerKm is kg CO2e per km travelled by car
	CarPerKm = 0.21
	// BusPerKm is kg CO2e per km travelled by bus
	BusPerKm = 0.10
	// BikePerKm is kg CO2e per km travelled by bike
	BikePerKm = 0.02
	// TrainPerKm is kg CO2e per km travelled by train
	TrainPerKm = 0.05

	// ElectricityPerKWh is kg CO2e per kWh consumed
	ElectricityPerKWh = 0.7

	// VegetarianPerDay is the fixed footprint of a vegetarian diet entry
	VegetarianPerDay = 2.0
	// NonVegetarianPerDay is the fixed footprint of a non-vegetarian diet entry
	NonVegetarianPerDay = 4.5
	// VeganPerDay is the fixed footprint of a vegan diet entry
	VeganPerDay = 1.5
)

// FactorTable is an immutable set of emission factors
type FactorTable struct {
	transport   map[types.TransportMode]float64
	electricity float64
	diet        map[types.DietType]float64
}

// factorFile is the YAML overlay layout. Omitted keys keep their defaults.
type factorFile struct {
	Transport   map[string]float64 `yaml:"transport"`
	Electricity *float64           `yaml:"electricity"`
	Diet        map[string]float64 `yaml:"diet"`
}

// DefaultFactorTable returns the built-in factors
func DefaultFactorTable() FactorTable {
	return FactorTable{
		transport: map[types.TransportMode]float64{
			types.ModeCar:   CarPerKm,
			types.ModeBus:   BusPerKm,
			types.ModeBike:  BikePerKm,
			types.ModeTrain: TrainPerKm,
		},
		electricity: ElectricityPerKWh,
		diet: map[types.DietType]float64{
			types.DietVegetarian:    VegetarianPerDay,
			types.DietNonVegetarian: NonVegetarianPerDay,
			types.DietVegan:         VeganPerDay,
		},
	}
}

// LoadFactorTable returns the default table overlaid with the YAML file at
// path. An empty path yields the defaults. Overlays may change existing
// factors or add new transport modes and diet types.
func LoadFactorTable(path string) (FactorTable, error) {
	table := DefaultFactorTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FactorTable{}, fmt.Errorf("failed to read emission factors: %w", err)
	}
	return table.overlay(data)
}

func (t FactorTable) overlay(data []byte) (FactorTable, error) {
	var file factorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return FactorTable{}, fmt.Errorf("failed to parse emission factors: %w", err)
	}

	out := t.clone()
	for mode, f := range file.Transport {
		if err := checkFactor("transport."+mode, f); err != nil {
			return FactorTable{}, err
		}
		out.transport[types.TransportMode(mode)] = f
	}
	if file.Electricity != nil {
		if err := checkFactor("electricity", *file.Electricity); err != nil {
			return FactorTable{}, err
		}
		out.electricity = *file.Electricity
	}
	for diet, f := range file.Diet {
		if err := checkFactor("diet."+diet, f); err != nil {
			return FactorTable{}, err
		}
		out.diet[types.DietType(diet)] = f
	}
	return out, nil
}

func checkFactor(name string, f float64) error {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("emission factor %s must be a finite non-negative number, got %v", name, f)
	}
	return nil
}

func (t FactorTable) clone() FactorTable {
	out := FactorTable{
		transport:   make(map[types.TransportMode]float64, len(t.transport)),
		electricity: t.electricity,
		diet:        make(map[types.DietType]float64, len(t.diet)),
	}
	for k, v := range t.transport {
		out.transport[k] = v
	}
	for k, v := range t.diet {
		out.diet[k] = v
	}
	return out
}

// TransportFactor returns the per-km factor for mode
func (t FactorTable) TransportFactor(mode types.TransportMode) (float64, bool) {
	f, ok := t.transport[mode]
	return f, ok
}

// ElectricityFactor returns the per-kWh factor
func (t FactorTable) ElectricityFactor() float64 {
	return t.electricity
}

// DietFactor returns the fixed factor for diet
func (t FactorTable) DietFactor(diet types.DietType) (float64, bool) {
	f, ok := t.diet[diet]
	return f, ok
}
