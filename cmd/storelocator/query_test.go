package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kass/go-store-locator/pkg/models"
)

func TestRenderHitsPlain(t *testing.T) {
	hits := []models.StoreHit{
		{
			Store: models.Store{
				ID:   "a",
				Name: "Ferry Building",
				Address: models.Address{
					Street:   "1 Ferry Building",
					City:     "San Francisco",
					Zip:      "94111",
					Location: &models.GeoPoint{Lat: 37.7955, Lon: -122.3937},
				},
			},
			Distance: 1234.4,
		},
	}

	var buf bytes.Buffer
	renderHits(&buf, "ignored", hits, false)

	assert.Equal(t, "a\tFerry Building\t1 Ferry Building\tSan Francisco\t94111\t37.795500\t-122.393700\t1234\n", buf.String())
}

func TestRenderHitsStyled(t *testing.T) {
	var buf bytes.Buffer
	renderHits(&buf, "0 stores", nil, true)
	assert.Contains(t, buf.String(), "no stores found")

	buf.Reset()
	renderHits(&buf, "1 store", []models.StoreHit{{Store: models.Store{Name: "Corner"}, Distance: 12}}, true)
	out := buf.String()
	assert.Contains(t, out, "Corner")
	assert.Contains(t, out, "12 m")
	assert.Equal(t, 1, strings.Count(out, "Corner"))
}

func TestFormatMeters(t *testing.T) {
	tests := []struct {
		meters float64
		want   string
	}{
		{0, "0 m"},
		{999.4, "999 m"},
		{1000, "1.00 km"},
		{68123, "68.12 km"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMeters(tt.meters))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
