// Package importer loads a tabular store dataset into an empty store index.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/logging"
	"github.com/kass/go-store-locator/pkg/models"
)

// Column names every source must carry in its header row
const (
	ColumnName      = "Name"
	ColumnStreet    = "Street Address"
	ColumnCity      = "City"
	ColumnZip       = "Zip"
	ColumnLatitude  = "Latitude"
	ColumnLongitude = "Longitude"
)

var requiredColumns = []string{ColumnName, ColumnStreet, ColumnCity, ColumnZip, ColumnLatitude, ColumnLongitude}

const utf8BOM = "\ufeff"

// Target is the index the importer loads into
type Target interface {
	Count() (int64, error)
	BulkInsert(stores []models.Store) (int, error)
}

// RowReader yields one record per call and io.EOF after the last one
type RowReader interface {
	Read() ([]string, error)
}

// Result summarizes an import run
type Result struct {
	Imported int
	Rejected int
	Skipped  bool
}

// Importer moves rows from a RowReader into a Target
type Importer struct {
	target Target
	log    *logrus.Entry
}

// New creates an importer for target
func New(target Target) *Importer {
	return &Importer{
		target: target,
		log:    logging.For("importer"),
	}
}

// ImportIfEmpty imports rows only when the target holds no stores.
// It must not run concurrently with other writers.
func (im *Importer) ImportIfEmpty(rows RowReader) (Result, error) {
	count, err := im.target.Count()
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to count stores")
	}
	if count != 0 {
		im.log.WithField("count", count).Info("index already populated, skipping import")
		return Result{Skipped: true}, nil
	}
	return im.Import(rows)
}

// Import parses every row and bulk-inserts the valid ones. Rows with the
// wrong column count or bad coordinates are skipped and counted.
func (im *Importer) Import(rows RowReader) (Result, error) {
	start := time.Now()

	header, err := rows.Read()
	if err == io.EOF {
		return Result{}, errors.Wrap(geoerr.ErrEmptyOrMalformedSource, "source has no header row")
	}
	if err != nil {
		return Result{}, errors.Wrapf(geoerr.ErrEmptyOrMalformedSource, "failed to read header: %v", err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return Result{}, err
	}

	var (
		stores []models.Store
		result Result
		line   = 1
	)
	for {
		line++
		fields, err := rows.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !isRecoverable(err) {
				return Result{}, errors.Wrapf(geoerr.ErrEmptyOrMalformedSource, "failed to read line %d: %v", line, err)
			}
			im.log.WithField("line", line).Warnf("skipping unreadable row: %v", err)
			result.Rejected++
			continue
		}
		if len(fields) != len(header) {
			im.log.WithField("line", line).Warnf("skipping row with %d columns, expected %d", len(fields), len(header))
			result.Rejected++
			continue
		}

		s, err := parseStore(fields, cols)
		if err != nil {
			im.log.WithField("line", line).Warnf("skipping row: %v", err)
			result.Rejected++
			continue
		}
		stores = append(stores, s)
	}

	if len(stores) == 0 {
		return result, errors.Wrapf(geoerr.ErrEmptyOrMalformedSource, "no valid rows (%d rejected)", result.Rejected)
	}

	n, err := im.target.BulkInsert(stores)
	if err != nil {
		return result, errors.Wrap(err, "failed to load stores")
	}
	result.Imported = n

	im.log.WithFields(logrus.Fields{
		"imported": result.Imported,
		"rejected": result.Rejected,
		"elapsed":  time.Since(start),
	}).Info("import complete")
	return result, nil
}

// columnIndex maps the required columns to their position in header
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		idx[strings.TrimSpace(h)] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(geoerr.ErrEmptyOrMalformedSource, "missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// parseStore builds a store from an already validated row. The coordinate
// columns are known to be in (latitude, longitude) order so only bounds are checked.
func parseStore(fields []string, cols map[string]int) (models.Store, error) {
	lat, err := parseCoord(fields[cols[ColumnLatitude]])
	if err != nil {
		return models.Store{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := parseCoord(fields[cols[ColumnLongitude]])
	if err != nil {
		return models.Store{}, fmt.Errorf("longitude: %w", err)
	}
	loc, err := models.NewGeoPoint(lon, lat)
	if err != nil {
		return models.Store{}, err
	}

	return models.Store{
		Name: strings.TrimSpace(fields[cols[ColumnName]]),
		Address: models.Address{
			Street:   strings.TrimSpace(fields[cols[ColumnStreet]]),
			City:     strings.TrimSpace(fields[cols[ColumnCity]]),
			Zip:      strings.TrimSpace(fields[cols[ColumnZip]]),
			Location: &loc,
		},
	}, nil
}

func parseCoord(val string) (float64, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, geoerr.ErrMalformedInput
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, geoerr.NewNonNumericError(val, err)
	}
	return v, nil
}
