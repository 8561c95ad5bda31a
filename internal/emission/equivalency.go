package emission

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// MilesDrivenFactor is kg CO2e per mile in an average passenger vehicle
	MilesDrivenFactor = 0.192
	// SmartphoneChargeFactor is kg CO2e per full smartphone charge
	SmartphoneChargeFactor = 0.00822
	// MinEquivalencyKg is the smallest total that gets an equivalency
	MinEquivalencyKg = 1.0
)

var printer = message.NewPrinter(language.English)

// Equivalency expresses a footprint in everyday terms
type Equivalency struct {
	MilesDriven        float64 `json:"milesDriven"`
	SmartphonesCharged float64 `json:"smartphonesCharged"`
	DisplayText        string  `json:"displayText"`
}

// Equivalent converts kg CO2e into miles driven and smartphones charged.
// Totals below MinEquivalencyKg return nil.
func Equivalent(kg float64) *Equivalency {
	if kg < MinEquivalencyKg || math.IsInf(kg, 0) || math.IsNaN(kg) {
		return nil
	}

	miles := kg / MilesDrivenFactor
	phones := kg / SmartphoneChargeFactor

	return &Equivalency{
		MilesDriven:        math.Round(miles*10) / 10,
		SmartphonesCharged: math.Round(phones),
		DisplayText: fmt.Sprintf("Equivalent to driving ~%s miles or charging ~%s smartphones",
			printer.Sprintf("%d", int64(math.Round(miles))),
			printer.Sprintf("%d", int64(math.Round(phones)))),
	}
}
