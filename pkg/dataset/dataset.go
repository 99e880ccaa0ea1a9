// Package dataset generates synthetic store datasets and writes them in the
// formats the importer reads.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/kass/go-store-locator/pkg/importer"
	"github.com/kass/go-store-locator/pkg/models"
)

// Header is the column order written by WriteCSV and WriteXLSX
var Header = []string{
	importer.ColumnName,
	importer.ColumnStreet,
	importer.ColumnCity,
	importer.ColumnZip,
	importer.ColumnLatitude,
	importer.ColumnLongitude,
}

var cities = []string{"Springfield", "Riverside", "Fairview", "Madison", "Georgetown", "Clinton", "Salem", "Franklin"}

var streets = []string{"Main St", "Oak Ave", "Pine Rd", "Maple Dr", "Cedar Ln", "Elm St", "Lake View", "Hill Rd"}

// RandomStores generates n stores using the given number of workers. Points
// are concentrated around populated regions with a uniform remainder.
// Generation is deterministic for a given seed and worker count.
func RandomStores(n, workers int, seed int64) []models.Store {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	stores := make([]models.Store, n)
	if n == 0 {
		return stores
	}

	batchSize := n / workers
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		startIdx := w * batchSize
		endIdx := startIdx + batchSize
		if w == workers-1 {
			endIdx = n
		}

		go func(start, end int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed + int64(start)))

			for i := start; i < end; i++ {
				var lat, lon float64

				switch r.Intn(5) {
				case 0: // North America
					lat = r.Float64()*30 + 30
					lon = r.Float64()*60 - 120
				case 1: // Europe
					lat = r.Float64()*20 + 40
					lon = r.Float64()*40 - 10
				case 2: // Asia
					lat = r.Float64()*40 + 20
					lon = r.Float64()*80 + 60
				case 3: // South America
					lat = r.Float64()*40 - 50
					lon = r.Float64()*30 - 80
				default:
					lat = r.Float64()*180 - 90
					lon = r.Float64()*360 - 180
				}

				stores[i] = models.Store{
					Name: fmt.Sprintf("Store %d", i+1),
					Address: models.Address{
						Street:   fmt.Sprintf("%d %s", r.Intn(9999)+1, streets[r.Intn(len(streets))]),
						City:     cities[r.Intn(len(cities))],
						Zip:      fmt.Sprintf("%05d", r.Intn(100000)),
						Location: &models.GeoPoint{Lon: lon, Lat: lat},
					},
				}
			}
		}(startIdx, endIdx)
	}

	wg.Wait()
	return stores
}

func row(s models.Store) []string {
	var lat, lon string
	if loc := s.Address.Location; loc != nil {
		lat = strconv.FormatFloat(loc.Lat, 'f', -1, 64)
		lon = strconv.FormatFloat(loc.Lon, 'f', -1, 64)
	}
	return []string{s.Name, s.Address.Street, s.Address.City, s.Address.Zip, lat, lon}
}

// WriteCSV writes stores with a header row
func WriteCSV(w io.Writer, stores []models.Store) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, s := range stores {
		if err := cw.Write(row(s)); err != nil {
			return errors.Wrapf(err, "failed to write %q", s.Name)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes stores to a single-sheet workbook
func WriteXLSX(w io.Writer, sheet string, stores []models.Store) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Stores"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return errors.Wrapf(err, "failed to name sheet %q", sheet)
		}
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for i, s := range stores {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := row(s)
		out := make([]interface{}, len(vals))
		for j, v := range vals {
			out[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &out); err != nil {
			return errors.Wrapf(err, "failed to write %q", s.Name)
		}
	}

	_, err := f.WriteTo(w)
	return err
}
