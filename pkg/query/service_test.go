package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
	"github.com/kass/go-store-locator/pkg/rtree"
)

type stubIndex struct {
	calls    int
	lastPage models.PageRequest
	err      error
}

func (s *stubIndex) Insert(st models.Store) (models.Store, error) {
	s.calls++
	st.ID = "stub"
	return st, s.err
}

func (s *stubIndex) QueryNear(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error) {
	s.calls++
	s.lastPage = page
	if s.err != nil {
		return nil, s.err
	}
	return &models.Page{Items: []models.StoreHit{}, Offset: page.Offset, Limit: page.Limit}, nil
}

func (s *stubIndex) Nearest(point models.GeoPoint, n int) ([]models.StoreHit, error) {
	s.calls++
	return nil, s.err
}

func (s *stubIndex) Count() (int64, error) {
	s.calls++
	return 0, s.err
}

func seededService(t *testing.T) *Service {
	t.Helper()
	index := rtree.NewGeoIndexWithPartitions(4)
	_, err := index.BulkInsert([]models.Store{
		{Name: "Empire", Address: models.Address{Location: &models.GeoPoint{Lat: 40.7484, Lon: -73.9857}}},
		{Name: "Flatiron", Address: models.Address{Location: &models.GeoPoint{Lat: 40.7411, Lon: -73.9897}}},
		{Name: "Boston", Address: models.Address{Location: &models.GeoPoint{Lat: 42.3601, Lon: -71.0589}}},
	})
	require.NoError(t, err)
	return NewService(index)
}

func TestFindNear(t *testing.T) {
	svc := seededService(t)
	_, err := svc.AddStore(models.Store{Name: "Ketchikan", Address: models.Address{Location: &models.GeoPoint{Lat: 55.349451, Lon: -131.673817}}})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		raw      string
		radius   models.Distance
		expected []string
	}{
		{"lat,lng", "40.7484,-73.9857", models.Km(2), []string{"Empire", "Flatiron"}},
		{"lng,lat", "-131.673817,55.349451", models.Km(2), []string{"Ketchikan"}},
		{"ambiguous reads lat,lng", "-73.9857,40.7484", models.Km(2), []string{}},
		{"meters", "40.7484,-73.9857", models.Distance{Value: 100, Unit: models.Meters}, []string{"Empire"}},
		{"miles", "40.7484,-73.9857", models.Distance{Value: 200, Unit: models.Miles}, []string{"Empire", "Flatiron", "Boston"}},
		{"nothing near", "0,0", models.Km(50), []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := svc.FindNear(tc.raw, tc.radius, models.PageRequest{Limit: 10})
			require.NoError(t, err)
			names := make([]string, 0, len(page.Items))
			for _, h := range page.Items {
				names = append(names, h.Store.Name)
			}
			assert.Equal(t, tc.expected, names)
		})
	}
}

func TestFindNearErrorKinds(t *testing.T) {
	svc := seededService(t)

	testCases := []struct {
		name   string
		raw    string
		radius models.Distance
		page   models.PageRequest
		kind   geoerr.Kind
	}{
		{"malformed", "40.7484", models.Km(1), models.PageRequest{Limit: 1}, geoerr.KindMalformedInput},
		{"non numeric", "abc,def", models.Km(1), models.PageRequest{Limit: 1}, geoerr.KindNonNumericToken},
		{"out of bounds", "200,10", models.Km(1), models.PageRequest{Limit: 1}, geoerr.KindOutOfBounds},
		{"negative radius", "1,1", models.Km(-5), models.PageRequest{Limit: 1}, geoerr.KindInvalidQuery},
		{"bad unit", "1,1", models.Distance{Value: 1, Unit: "ft"}, models.PageRequest{Limit: 1}, geoerr.KindInvalidQuery},
		{"zero limit", "1,1", models.Km(1), models.PageRequest{}, geoerr.KindInvalidQuery},
		{"negative offset", "1,1", models.Km(1), models.PageRequest{Offset: -1, Limit: 1}, geoerr.KindInvalidQuery},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.FindNear(tc.raw, tc.radius, tc.page)
			require.Error(t, err)
			assert.Equal(t, tc.kind, geoerr.KindOf(err))
			assert.True(t, geoerr.KindOf(err).IsClientError())
		})
	}
}

func TestFindNearRejectsBeforeTouchingIndex(t *testing.T) {
	stub := &stubIndex{}
	svc := NewService(stub)

	_, err := svc.FindNear("200,10", models.Km(1), models.PageRequest{Limit: 1})
	require.Error(t, err)
	_, err = svc.FindNearPoint(models.GeoPoint{}, models.Km(1), models.PageRequest{Limit: 0})
	require.Error(t, err)
	assert.Equal(t, 0, stub.calls)
}

func TestFindNearCapsLimit(t *testing.T) {
	stub := &stubIndex{}
	svc := NewService(stub)

	page, err := svc.FindNearPoint(models.GeoPoint{}, models.Km(1), models.PageRequest{Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, models.MaxPageLimit, stub.lastPage.Limit)
	assert.Equal(t, models.MaxPageLimit, page.Limit)
}

func TestIndexFailuresAreServerErrors(t *testing.T) {
	svc := NewService(&stubIndex{err: geoerr.ErrIndexUnavailable})

	_, err := svc.FindNear("1,1", models.Km(1), models.PageRequest{Limit: 1})
	assert.ErrorIs(t, err, geoerr.ErrIndexUnavailable)
	assert.Equal(t, geoerr.KindIndexUnavailable, geoerr.KindOf(err))
	assert.False(t, geoerr.KindOf(err).IsClientError())

	_, err = svc.Count()
	assert.Equal(t, geoerr.KindIndexUnavailable, geoerr.KindOf(err))
}

func TestNearest(t *testing.T) {
	svc := seededService(t)

	hits, err := svc.Nearest("42,-71", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Boston", hits[0].Store.Name)

	_, err = svc.Nearest("42,-71", 0)
	assert.Equal(t, geoerr.KindInvalidQuery, geoerr.KindOf(err))
}

func TestAddStore(t *testing.T) {
	svc := seededService(t)

	created, err := svc.AddStore(models.Store{Name: "New", Address: models.Address{Location: &models.GeoPoint{Lat: 1, Lon: 1}}})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	n, err := svc.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = svc.AddStore(models.Store{Name: "Nowhere"})
	assert.Equal(t, geoerr.KindInvalidRecord, geoerr.KindOf(err))
}

func TestBuildNearbyLink(t *testing.T) {
	stub := &stubIndex{}
	point := models.GeoPoint{Lat: 40.7484, Lon: -73.9857}

	testCases := []struct {
		name     string
		opts     []Option
		host     string
		expected string
	}{
		{"relative", nil, "", "/api/stores/search/by-location?location=40.7484,-73.9857&distance=50km"},
		{"absolute", nil, "example.com:8080", "http://example.com:8080/api/stores/search/by-location?location=40.7484,-73.9857&distance=50km"},
		{"with scheme", nil, "https://example.com/", "https://example.com/api/stores/search/by-location?location=40.7484,-73.9857&distance=50km"},
		{"custom base", []Option{WithBasePath("/stores/")}, "", "/stores/search/by-location?location=40.7484,-73.9857&distance=50km"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(stub, tc.opts...)
			assert.Equal(t, tc.expected, svc.BuildNearbyLink(point, models.Km(50), tc.host))
		})
	}
	assert.Equal(t, 0, stub.calls)
}
