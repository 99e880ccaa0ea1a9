package models

import (
	"math"
	"testing"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeoPoint(t *testing.T) {
	p, err := NewGeoPoint(-73.9857, 40.7484)
	require.NoError(t, err)
	assert.Equal(t, GeoPoint{Lon: -73.9857, Lat: 40.7484}, p)
	assert.True(t, p.Valid())

	_, err = NewGeoPoint(181, 0)
	var oob *geoerr.OutOfBoundsError
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, "longitude", oob.Field)
	assert.ErrorIs(t, err, geoerr.ErrOutOfBounds)

	_, err = NewGeoPoint(0, -90.5)
	require.ErrorAs(t, err, &oob)
	assert.Equal(t, "latitude", oob.Field)

	_, err = NewGeoPoint(math.NaN(), 0)
	assert.Error(t, err)
}

func TestAddressEqual(t *testing.T) {
	a := Address{Street: "1 Main St", City: "Springfield", Zip: "12345", Location: &GeoPoint{Lon: 1, Lat: 2}}
	b := a.Clone()
	assert.True(t, a.Equal(b))
	assert.NotSame(t, a.Location, b.Location)

	b.Location.Lat = 3
	assert.False(t, a.Equal(b))

	c := Address{Street: "1 Main St", City: "Springfield", Zip: "12345"}
	assert.False(t, a.Equal(c))
	assert.True(t, c.Equal(Address{Street: "1 Main St", City: "Springfield", Zip: "12345"}))
}

func TestParseDistance(t *testing.T) {
	testCases := []struct {
		in     string
		want   Distance
		meters float64
	}{
		{"50km", Distance{50, Kilometers}, 50000},
		{"500m", Distance{500, Meters}, 500},
		{"3mi", Distance{3, Miles}, 4828.032},
		{"1.5 KM", Distance{1.5, Kilometers}, 1500},
		{"12", Distance{12, Kilometers}, 12000},
		{"0m", Distance{0, Meters}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseDistance(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
			assert.InDelta(t, tc.meters, d.Meters(), 1e-9)
		})
	}

	for _, bad := range []string{"", "km", "-5km", "tenkm", "NaNm", "5ft"} {
		_, err := ParseDistance(bad)
		assert.ErrorIs(t, err, geoerr.ErrInvalidQuery, "input %q", bad)
	}
}

func TestDistanceString(t *testing.T) {
	assert.Equal(t, "50km", Km(50).String())
	assert.Equal(t, "2.5mi", Distance{2.5, Miles}.String())
}

func TestPageRequest(t *testing.T) {
	assert.NoError(t, PageRequest{Offset: 0, Limit: 10}.Validate())
	assert.ErrorIs(t, PageRequest{Offset: -1, Limit: 10}.Validate(), geoerr.ErrInvalidQuery)
	assert.ErrorIs(t, PageRequest{Offset: 0, Limit: 0}.Validate(), geoerr.ErrInvalidQuery)
	assert.Equal(t, MaxPageLimit, PageRequest{Limit: 5000}.Capped().Limit)

	start, end := PageRequest{Offset: 8, Limit: 5}.Window(10)
	assert.Equal(t, 8, start)
	assert.Equal(t, 10, end)

	start, end = PageRequest{Offset: 20, Limit: 5}.Window(10)
	assert.Equal(t, 10, start)
	assert.Equal(t, 10, end)
}
