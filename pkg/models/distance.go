package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kass/go-store-locator/pkg/geoerr"
)

// DistanceUnit is the unit a query radius is expressed in
type DistanceUnit string

const (
	Meters     DistanceUnit = "m"
	Kilometers DistanceUnit = "km"
	Miles      DistanceUnit = "mi"
)

var metersPer = map[DistanceUnit]float64{
	Meters:     1,
	Kilometers: 1000,
	Miles:      1609.344,
}

// Distance is a magnitude with a unit
type Distance struct {
	Value float64
	Unit  DistanceUnit
}

// Km is shorthand for a distance in kilometers
func Km(v float64) Distance { return Distance{Value: v, Unit: Kilometers} }

// Validate rejects unknown units and negative or non-finite magnitudes
func (d Distance) Validate() error {
	if _, ok := metersPer[d.Unit]; !ok {
		return fmt.Errorf("%w: unknown distance unit %q", geoerr.ErrInvalidQuery, d.Unit)
	}
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) || d.Value < 0 {
		return fmt.Errorf("%w: distance must be a non-negative finite number, got %v", geoerr.ErrInvalidQuery, d.Value)
	}
	return nil
}

// Meters converts d to meters. Callers validate first.
func (d Distance) Meters() float64 {
	return d.Value * metersPer[d.Unit]
}

// String renders the distance the way ParseDistance accepts it, e.g. "50km"
func (d Distance) String() string {
	return strconv.FormatFloat(d.Value, 'f', -1, 64) + string(d.Unit)
}

// ParseDistance parses "50km", "500m", "3.5mi" or a bare number of kilometers
func ParseDistance(s string) (Distance, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Distance{}, fmt.Errorf("%w: empty distance", geoerr.ErrInvalidQuery)
	}

	unit := Kilometers
	num := s
	// "mi" and "km" must be checked before "m"
	for _, u := range []DistanceUnit{Kilometers, Miles, Meters} {
		if strings.HasSuffix(s, string(u)) {
			unit = u
			num = strings.TrimSpace(strings.TrimSuffix(s, string(u)))
			break
		}
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Distance{}, fmt.Errorf("%w: invalid distance %q", geoerr.ErrInvalidQuery, s)
	}
	d := Distance{Value: v, Unit: unit}
	if err := d.Validate(); err != nil {
		return Distance{}, err
	}
	return d, nil
}
