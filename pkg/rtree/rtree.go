// Package rtree implements an in-memory store index on top of R-Trees,
// partitioned by longitude bands so queries fan out across CPU cores.
package rtree

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"
	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2

	// EarthRadius is the mean earth radius in meters
	EarthRadius = 6371008.8
)

// spatialStore wraps a store to implement rtreego.Spatial
type spatialStore struct {
	store models.Store
	rect  rtreego.Rect
}

func (s *spatialStore) Bounds() rtreego.Rect {
	return s.rect
}

func newSpatialStore(s models.Store) *spatialStore {
	loc := s.Address.Location
	// Coordinates are stored as (lat, lon)
	return &spatialStore{store: s, rect: rtreego.Point{loc.Lat, loc.Lon}.ToRect(tolerance)}
}

func (s *spatialStore) location() models.GeoPoint {
	return *s.store.Address.Location
}

// GeoIndex is a thread-safe R-Tree based store index.
// Writers are serialized; readers run in parallel and only ever observe
// fully inserted records.
type GeoIndex struct {
	partitions      []*rtreego.Rtree
	partitionBounds []models.BoundingBox
	numPartitions   int
	mu              sync.RWMutex
	itemCount       atomic.Int64
	closed          bool

	newID func() string
}

// NewGeoIndex creates an index with one partition per CPU
func NewGeoIndex() *GeoIndex {
	return NewGeoIndexWithPartitions(runtime.NumCPU())
}

// NewGeoIndexWithPartitions creates an index with the given number of longitude bands
func NewGeoIndexWithPartitions(numPartitions int) *GeoIndex {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}

	g := &GeoIndex{
		numPartitions: numPartitions,
		newID:         uuid.NewString,
	}
	g.partitions = g.emptyPartitions()
	g.partitionBounds = make([]models.BoundingBox, numPartitions)

	lonRange := 360.0 / float64(numPartitions)
	for i := 0; i < numPartitions; i++ {
		minLon := -180.0 + float64(i)*lonRange
		maxLon := minLon + lonRange
		if i == numPartitions-1 {
			maxLon = 180.0
		}
		g.partitionBounds[i] = models.BoundingBox{
			BottomLeft: models.GeoPoint{Lat: -90, Lon: minLon},
			TopRight:   models.GeoPoint{Lat: 90, Lon: maxLon},
		}
	}

	return g
}

func (g *GeoIndex) emptyPartitions() []*rtreego.Rtree {
	parts := make([]*rtreego.Rtree, g.numPartitions)
	for i := range parts {
		parts[i] = rtreego.NewTree(dimensions, minChildren, maxChildren)
	}
	return parts
}

func (g *GeoIndex) partitionFor(lon float64) int {
	idx := int((lon + 180.0) / (360.0 / float64(g.numPartitions)))
	if idx >= g.numPartitions {
		idx = g.numPartitions - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func validateRecord(s models.Store) error {
	if s.Address.Location == nil {
		return fmt.Errorf("%w: store %q has no location", geoerr.ErrInvalidRecord, s.Name)
	}
	if !s.Address.Location.Valid() {
		return fmt.Errorf("%w: store %q has location out of bounds", geoerr.ErrInvalidRecord, s.Name)
	}
	return nil
}

// Insert assigns a fresh identity to s and indexes it
func (g *GeoIndex) Insert(s models.Store) (models.Store, error) {
	if err := validateRecord(s); err != nil {
		return models.Store{}, err
	}
	s = s.Clone()
	s.ID = g.newID()
	item := newSpatialStore(s)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return models.Store{}, geoerr.ErrStorageUnavailable
	}

	g.partitions[g.partitionFor(s.Address.Location.Lon)].Insert(item)
	g.itemCount.Add(1)
	return s.Clone(), nil
}

// BulkInsert indexes all stores or none. Every record is validated before
// the index is touched.
func (g *GeoIndex) BulkInsert(stores []models.Store) (int, error) {
	items := make([]*spatialStore, 0, len(stores))
	for _, s := range stores {
		if err := validateRecord(s); err != nil {
			return 0, err
		}
		s = s.Clone()
		s.ID = g.newID()
		items = append(items, newSpatialStore(s))
	}
	if err := g.load(items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// load inserts items keeping their identities
func (g *GeoIndex) load(items []*spatialStore) error {
	if len(items) == 0 {
		return nil
	}

	partitioned := make([][]rtreego.Spatial, g.numPartitions)
	for _, item := range items {
		idx := g.partitionFor(item.store.Address.Location.Lon)
		partitioned[idx] = append(partitioned[idx], item)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return geoerr.ErrStorageUnavailable
	}

	var wg sync.WaitGroup
	for i := 0; i < g.numPartitions; i++ {
		if len(partitioned[i]) == 0 {
			continue
		}

		wg.Add(1)
		go func(idx int, objs []rtreego.Spatial) {
			defer wg.Done()

			// Empty partitions are bulk loaded in one pass
			if g.partitions[idx].Size() == 0 {
				g.partitions[idx] = rtreego.NewTree(dimensions, minChildren, maxChildren, objs...)
				return
			}
			for _, obj := range objs {
				g.partitions[idx].Insert(obj)
			}
		}(i, partitioned[i])
	}

	wg.Wait()
	g.itemCount.Add(int64(len(items)))
	return nil
}

// replace swaps the whole content of the index for items, keeping their
// identities. The new trees are built before the write lock is taken so
// readers see either the old or the new content.
func (g *GeoIndex) replace(items []*spatialStore) error {
	partitioned := make([][]rtreego.Spatial, g.numPartitions)
	for _, item := range items {
		idx := g.partitionFor(item.store.Address.Location.Lon)
		partitioned[idx] = append(partitioned[idx], item)
	}

	parts := make([]*rtreego.Rtree, g.numPartitions)
	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			parts[idx] = rtreego.NewTree(dimensions, minChildren, maxChildren, partitioned[idx]...)
		}(i)
	}
	wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return geoerr.ErrStorageUnavailable
	}
	g.partitions = parts
	g.itemCount.Store(int64(len(items)))
	return nil
}

// QueryNear returns the stores within radius of point, nearest first, ties
// broken by ID, windowed by page.
func (g *GeoIndex) QueryNear(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	if err := validateQuery(point, radius, page); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, geoerr.ErrIndexUnavailable
	}

	hits, err := g.searchRadius(point, radius.Meters())
	if err != nil {
		return nil, err
	}
	sortHits(hits)

	start, end := page.Window(len(hits))
	return &models.Page{
		Items:  cloneHits(hits[start:end]),
		Total:  len(hits),
		Offset: page.Offset,
		Limit:  page.Limit,
	}, nil
}

// Nearest returns the n stores closest to point, nearest first
func (g *GeoIndex) Nearest(point models.GeoPoint, n int) ([]models.StoreHit, error) {
	if !point.Valid() {
		return nil, fmt.Errorf("%w: point out of bounds", geoerr.ErrInvalidQuery)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", geoerr.ErrInvalidQuery, n)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, geoerr.ErrIndexUnavailable
	}

	// R-Tree neighbours are ranked in degree space, so they only bound the
	// answer: every true neighbour lies within the n-th candidate's
	// great-circle distance.
	queryPoint := rtreego.Point{point.Lat, point.Lon}
	var candidates []models.StoreHit
	for _, part := range g.partitions {
		for _, obj := range part.NearestNeighbors(n, queryPoint) {
			item, ok := obj.(*spatialStore)
			if !ok {
				continue
			}
			candidates = append(candidates, models.StoreHit{
				Store:    item.store,
				Distance: Haversine(point, item.location()),
			})
		}
	}
	if len(candidates) == 0 {
		return []models.StoreHit{}, nil
	}
	sortHits(candidates)
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	hits, err := g.searchRadius(point, candidates[len(candidates)-1].Distance)
	if err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > n {
		hits = hits[:n]
	}
	return cloneHits(hits), nil
}

// Count returns the number of indexed stores
func (g *GeoIndex) Count() (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return 0, geoerr.ErrIndexUnavailable
	}
	return g.itemCount.Load(), nil
}

// Stats reports the size of each partition
func (g *GeoIndex) Stats() (map[string]interface{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, geoerr.ErrIndexUnavailable
	}

	sizes := make([]int, len(g.partitions))
	for i, part := range g.partitions {
		sizes[i] = part.Size()
	}
	return map[string]interface{}{
		"backend":         "memory",
		"partitions":      g.numPartitions,
		"partition_sizes": sizes,
		"row_count":       g.itemCount.Load(),
	}, nil
}

// Clear removes all stores from the index
func (g *GeoIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.partitions = g.emptyPartitions()
	g.itemCount.Store(0)
}

// Close releases the trees. Later calls report the index as unavailable.
func (g *GeoIndex) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.partitions = nil
	g.closed = true
	g.itemCount.Store(0)
	return nil
}

// searchRadius collects the stores within meters of center. Callers hold the read lock.
func (g *GeoIndex) searchRadius(center models.GeoPoint, meters float64) ([]models.StoreHit, error) {
	box := searchBox(center, meters)
	bounds, err := rtreego.NewRectFromPoints(
		rtreego.Point{box.BottomLeft.Lat - tolerance, box.BottomLeft.Lon - tolerance},
		rtreego.Point{box.TopRight.Lat + tolerance, box.TopRight.Lon + tolerance},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geoerr.ErrInvalidQuery, err)
	}

	relevant := g.getRelevantPartitions(box)
	perPartition := make([][]models.StoreHit, len(relevant))

	var eg errgroup.Group
	for i, partitionIdx := range relevant {
		i, partitionIdx := i, partitionIdx
		eg.Go(func() error {
			var hits []models.StoreHit
			for _, result := range g.partitions[partitionIdx].SearchIntersect(bounds) {
				item, ok := result.(*spatialStore)
				if !ok {
					continue
				}
				dist := Haversine(center, item.location())
				if dist <= meters {
					hits = append(hits, models.StoreHit{Store: item.store, Distance: dist})
				}
			}
			perPartition[i] = hits
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	all := make([]models.StoreHit, 0)
	for _, hits := range perPartition {
		all = append(all, hits...)
	}
	return all, nil
}

// all returns every indexed store. Callers hold the read lock.
func (g *GeoIndex) all() []models.Store {
	world := models.BoundingBox{
		BottomLeft: models.GeoPoint{Lat: -90, Lon: -180},
		TopRight:   models.GeoPoint{Lat: 90, Lon: 180},
	}
	bounds, _ := rtreego.NewRectFromPoints(
		rtreego.Point{world.BottomLeft.Lat - 1, world.BottomLeft.Lon - 1},
		rtreego.Point{world.TopRight.Lat + 1, world.TopRight.Lon + 1},
	)

	stores := make([]models.Store, 0, g.itemCount.Load())
	for _, part := range g.partitions {
		for _, result := range part.SearchIntersect(bounds) {
			if item, ok := result.(*spatialStore); ok {
				stores = append(stores, item.store.Clone())
			}
		}
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].ID < stores[j].ID })
	return stores
}

// getRelevantPartitions returns the indices of partitions that intersect with the given bounding box
func (g *GeoIndex) getRelevantPartitions(box models.BoundingBox) []int {
	var relevant []int
	for i, bounds := range g.partitionBounds {
		if box.BottomLeft.Lon <= bounds.TopRight.Lon &&
			box.TopRight.Lon >= bounds.BottomLeft.Lon {
			relevant = append(relevant, i)
		}
	}
	return relevant
}

// searchBox returns a degree box containing every point within meters of
// center. Boxes touching a pole or crossing the antimeridian span all longitudes.
func searchBox(center models.GeoPoint, meters float64) models.BoundingBox {
	angular := meters / EarthRadius
	dLat := angular * 180 / math.Pi

	minLat, maxLat := center.Lat-dLat, center.Lat+dLat
	minLon, maxLon := -180.0, 180.0

	if minLat > -90 && maxLat < 90 {
		ratio := math.Sin(angular) / math.Cos(center.Lat*math.Pi/180)
		if angular < math.Pi/2 && ratio < 1 {
			dLon := math.Asin(ratio) * 180 / math.Pi
			if center.Lon-dLon >= -180 && center.Lon+dLon <= 180 {
				minLon, maxLon = center.Lon-dLon, center.Lon+dLon
			}
		}
	}

	return models.BoundingBox{
		BottomLeft: models.GeoPoint{Lat: math.Max(minLat, -90), Lon: minLon},
		TopRight:   models.GeoPoint{Lat: math.Min(maxLat, 90), Lon: maxLon},
	}
}

func validateQuery(point models.GeoPoint, radius models.Distance, page models.PageRequest) error {
	if !point.Valid() {
		return fmt.Errorf("%w: point out of bounds", geoerr.ErrInvalidQuery)
	}
	if err := radius.Validate(); err != nil {
		return err
	}
	return page.Validate()
}

func sortHits(hits []models.StoreHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Store.ID < hits[j].Store.ID
	})
}

func cloneHits(hits []models.StoreHit) []models.StoreHit {
	out := make([]models.StoreHit, len(hits))
	for i, h := range hits {
		out[i] = models.StoreHit{Store: h.Store.Clone(), Distance: h.Distance}
	}
	return out
}

// Haversine returns the great-circle distance between two points in meters
func Haversine(a, b models.GeoPoint) float64 {
	lat1Rad := a.Lat * math.Pi / 180.0
	lon1Rad := a.Lon * math.Pi / 180.0
	lat2Rad := b.Lat * math.Pi / 180.0
	lon2Rad := b.Lon * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push h just past 1 for antipodal points
	h = math.Min(math.Max(h, 0), 1)

	c := 2 * math.Asin(math.Sqrt(h))
	return EarthRadius * c
}
