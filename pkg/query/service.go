// Package query is the proximity query entry point. It combines the
// coordinate normalizer with a store index and classifies every failure.
package query

import (
	"strings"

	"github.com/kass/go-store-locator/pkg/coords"
	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

// DefaultBasePath is where the store search resources are mounted
const DefaultBasePath = "/api/stores"

// StoreIndex is the storage the service queries. Both the in-memory R-Tree
// and the PostGIS index satisfy it.
type StoreIndex interface {
	Insert(s models.Store) (models.Store, error)
	QueryNear(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error)
	Nearest(point models.GeoPoint, n int) ([]models.StoreHit, error)
	Count() (int64, error)
}

// Service answers proximity queries
type Service struct {
	index    StoreIndex
	basePath string
}

// Option configures a Service
type Option func(*Service)

// WithBasePath sets the path prefix used in nearby links
func WithBasePath(path string) Option {
	return func(s *Service) {
		s.basePath = strings.TrimRight(path, "/")
	}
}

// NewService creates a query service over index
func NewService(index StoreIndex, opts ...Option) *Service {
	s := &Service{
		index:    index,
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindNear normalizes rawLocation and returns the page of stores within radius
func (s *Service) FindNear(rawLocation string, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	point, err := coords.Normalize(rawLocation)
	if err != nil {
		return nil, geoerr.Wrap("findNear", err)
	}
	return s.findNear("findNear", point, radius, page)
}

// FindNearPoint is FindNear for an already parsed point
func (s *Service) FindNearPoint(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	return s.findNear("findNearPoint", point, radius, page)
}

func (s *Service) findNear(op string, point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	if err := page.Validate(); err != nil {
		return nil, geoerr.Wrap(op, err)
	}
	res, err := s.index.QueryNear(point, radius, page.Capped())
	if err != nil {
		return nil, geoerr.Wrap(op, err)
	}
	return res, nil
}

// Nearest returns the n stores closest to rawLocation
func (s *Service) Nearest(rawLocation string, n int) ([]models.StoreHit, error) {
	point, err := coords.Normalize(rawLocation)
	if err != nil {
		return nil, geoerr.Wrap("nearest", err)
	}
	if n > models.MaxPageLimit {
		n = models.MaxPageLimit
	}
	hits, err := s.index.Nearest(point, n)
	if err != nil {
		return nil, geoerr.Wrap("nearest", err)
	}
	return hits, nil
}

// AddStore inserts a store and returns it with its assigned identity
func (s *Service) AddStore(store models.Store) (models.Store, error) {
	created, err := s.index.Insert(store)
	if err != nil {
		return models.Store{}, geoerr.Wrap("addStore", err)
	}
	return created, nil
}

// Count returns the number of indexed stores
func (s *Service) Count() (int64, error) {
	n, err := s.index.Count()
	if err != nil {
		return 0, geoerr.Wrap("count", err)
	}
	return n, nil
}

// BuildNearbyLink returns a reference to the radius search around point.
// The link is absolute when host is set and relative otherwise. No query is run.
func (s *Service) BuildNearbyLink(point models.GeoPoint, radius models.Distance, host string) string {
	var b strings.Builder
	if host != "" {
		if !strings.Contains(host, "://") {
			b.WriteString("http://")
		}
		b.WriteString(strings.TrimRight(host, "/"))
	}
	b.WriteString(s.basePath)
	b.WriteString("/search/by-location?location=")
	b.WriteString(coords.Format(point))
	b.WriteString("&distance=")
	b.WriteString(radius.String())
	return b.String()
}
