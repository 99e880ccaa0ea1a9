// Package coords turns free-form "a,b" location strings into validated points.
//
// Both "latitude,longitude" and "longitude,latitude" orderings are accepted.
// When both numbers fit a latitude (|v| <= 90) the string is ambiguous and is
// read as "latitude,longitude".
package coords

import (
	"math"
	"strconv"
	"strings"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

const separator = ","

// Normalize parses raw into a GeoPoint
func Normalize(raw string) (models.GeoPoint, error) {
	parts := strings.Split(strings.TrimSpace(raw), separator)
	if len(parts) != 2 {
		return models.GeoPoint{}, geoerr.ErrMalformedInput
	}

	first, err := parseToken(parts[0])
	if err != nil {
		return models.GeoPoint{}, err
	}
	second, err := parseToken(parts[1])
	if err != nil {
		return models.GeoPoint{}, err
	}

	lon, lat := assign(first, second)
	return models.NewGeoPoint(lon, lat)
}

func parseToken(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, geoerr.ErrMalformedInput
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, geoerr.NewNonNumericError(tok, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, geoerr.NewNonNumericError(tok, nil)
	}
	return v, nil
}

// assign returns (longitude, latitude) for the two tokens in input order
func assign(first, second float64) (float64, float64) {
	a, b := math.Abs(first), math.Abs(second)
	switch {
	case a <= models.MaxLatitude && b <= models.MaxLongitude:
		return second, first
	case a <= models.MaxLongitude && b <= models.MaxLatitude:
		return first, second
	case a > b:
		return first, second
	default:
		return second, first
	}
}

// Format renders p in the "latitude,longitude" ordering Normalize prefers
func Format(p models.GeoPoint) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + separator + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}
