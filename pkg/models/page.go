package models

import (
	"fmt"

	"github.com/kass/go-store-locator/pkg/geoerr"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 1000
)

// PageRequest selects a window of an ordered result set
type PageRequest struct {
	Offset int
	Limit  int
}

// Validate requires a zero-based offset and a positive limit
func (p PageRequest) Validate() error {
	if p.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0, got %d", geoerr.ErrInvalidQuery, p.Offset)
	}
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0, got %d", geoerr.ErrInvalidQuery, p.Limit)
	}
	return nil
}

// Capped returns p with the limit clamped to MaxPageLimit
func (p PageRequest) Capped() PageRequest {
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Window returns the [start, end) bounds of p within n items
func (p PageRequest) Window(n int) (int, int) {
	start := p.Offset
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

// StoreHit is a store together with its distance in meters from the query point
type StoreHit struct {
	Store    Store
	Distance float64
}

// Page is one window of a proximity query result
type Page struct {
	Items  []StoreHit
	Total  int
	Offset int
	Limit  int
}

// StoreSummary is the flattened external representation of a StoreHit
type StoreSummary struct {
	ID                     string  `json:"id"`
	Name                   string  `json:"name"`
	Street                 string  `json:"street"`
	City                   string  `json:"city"`
	PostalCode             string  `json:"postalCode"`
	Longitude              float64 `json:"longitude"`
	Latitude               float64 `json:"latitude"`
	DistanceFromQueryPoint float64 `json:"distanceFromQueryPoint"`
}

// SummaryOf flattens a hit for output
func SummaryOf(h StoreHit) StoreSummary {
	s := StoreSummary{
		ID:                     h.Store.ID,
		Name:                   h.Store.Name,
		Street:                 h.Store.Address.Street,
		City:                   h.Store.Address.City,
		PostalCode:             h.Store.Address.Zip,
		DistanceFromQueryPoint: h.Distance,
	}
	if loc := h.Store.Address.Location; loc != nil {
		s.Longitude = loc.Lon
		s.Latitude = loc.Lat
	}
	return s
}
