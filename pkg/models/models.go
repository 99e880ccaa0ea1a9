package models

import (
	"math"

	"github.com/kass/go-store-locator/pkg/geoerr"
)

const (
	MaxLongitude = 180.0
	MaxLatitude  = 90.0
)

// GeoPoint represents a validated geographic position
type GeoPoint struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// NewGeoPoint builds a GeoPoint, rejecting coordinates outside their range
func NewGeoPoint(lon, lat float64) (GeoPoint, error) {
	if !inRange(lon, MaxLongitude) {
		return GeoPoint{}, &geoerr.OutOfBoundsError{Field: "longitude", Value: lon}
	}
	if !inRange(lat, MaxLatitude) {
		return GeoPoint{}, &geoerr.OutOfBoundsError{Field: "latitude", Value: lat}
	}
	return GeoPoint{Lon: lon, Lat: lat}, nil
}

// Valid reports whether both coordinates are within range
func (p GeoPoint) Valid() bool {
	return inRange(p.Lon, MaxLongitude) && inRange(p.Lat, MaxLatitude)
}

func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// Address is a postal address with an optional position
type Address struct {
	Street   string    `json:"street"`
	City     string    `json:"city"`
	Zip      string    `json:"zip"`
	Location *GeoPoint `json:"location,omitempty"`
}

// Equal compares addresses structurally, including the location value
func (a Address) Equal(b Address) bool {
	if a.Street != b.Street || a.City != b.City || a.Zip != b.Zip {
		return false
	}
	if a.Location == nil || b.Location == nil {
		return a.Location == nil && b.Location == nil
	}
	return *a.Location == *b.Location
}

// Clone returns a copy that shares no pointers with a
func (a Address) Clone() Address {
	if a.Location != nil {
		loc := *a.Location
		a.Location = &loc
	}
	return a
}

// Store is a retail store record. ID is empty until the index assigns one.
type Store struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// Clone returns a deep copy of s
func (s Store) Clone() Store {
	s.Address = s.Address.Clone()
	return s
}

// Customer is consumed read-only by the nearby-link augmenter
type Customer struct {
	ID        string   `json:"id"`
	FirstName string   `json:"firstname"`
	LastName  string   `json:"lastname"`
	Address   *Address `json:"address,omitempty"`
}

// BoundingBox represents a rectangular area defined by two corners
type BoundingBox struct {
	BottomLeft GeoPoint
	TopRight   GeoPoint
}
