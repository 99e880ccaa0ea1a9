package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
	"github.com/kass/go-store-locator/pkg/rtree"
)

const header = "Name,Street Address,City,Zip,Latitude,Longitude\n"

const validCSV = header +
	"Store A,1 Main St,Springfield,12345,40.7484,-73.9857\n" +
	"Store B,2 Main St,Springfield,12345,40.7500,-73.9900\n" +
	"Store C,\"3 Main St, Suite 1\",Shelbyville,54321,34.0522,-118.2437\n"

type fakeTarget struct {
	count    int64
	inserted []models.Store
	err      error
}

func (f *fakeTarget) Count() (int64, error) { return f.count, nil }

func (f *fakeTarget) BulkInsert(stores []models.Store) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, stores...)
	f.count += int64(len(stores))
	return len(stores), nil
}

func TestImportIfEmpty(t *testing.T) {
	index := rtree.NewGeoIndexWithPartitions(4)
	im := New(index)

	res, err := im.ImportIfEmpty(NewCSVReader(strings.NewReader(validCSV)))
	require.NoError(t, err)
	assert.Equal(t, Result{Imported: 3}, res)

	count, err := index.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Second run is a no-op
	res, err = im.ImportIfEmpty(NewCSVReader(strings.NewReader(validCSV)))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	count, _ = index.Count()
	assert.Equal(t, int64(3), count)

	page, err := index.QueryNear(models.GeoPoint{Lat: 40.7484, Lon: -73.9857}, models.Km(1), models.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Store A", page.Items[0].Store.Name)
	assert.Equal(t, "1 Main St", page.Items[0].Store.Address.Street)
	assert.Equal(t, "12345", page.Items[0].Store.Address.Zip)
}

func TestImportSkipsMalformedRows(t *testing.T) {
	data := header +
		"Good 1,1 Main St,Springfield,12345,40.7484,-73.9857\n" +
		"Short,1 Main St,Springfield,12345,40.7484\n" +
		"Long,1 Main St,Springfield,12345,40.7484,-73.9857,extra\n" +
		"Bad lat,1 Main St,Springfield,12345,north,-73.9857\n" +
		"Out of range,1 Main St,Springfield,12345,95,-73.9857\n" +
		"Empty,1 Main St,Springfield,12345,,-73.9857\n" +
		"Good 2,2 Main St,Springfield,12345,40.75,-73.99\n"

	target := &fakeTarget{}
	res, err := New(target).ImportIfEmpty(NewCSVReader(strings.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 5, res.Rejected)
	require.Len(t, target.inserted, 2)
	assert.Equal(t, "Good 1", target.inserted[0].Name)
	assert.Equal(t, models.GeoPoint{Lat: 40.75, Lon: -73.99}, *target.inserted[1].Address.Location)
}

func TestImportFailures(t *testing.T) {
	testCases := []struct {
		name string
		data string
	}{
		{"empty source", ""},
		{"header only", header},
		{"all rows bad", header + "A,1 Main St,City,1,abc,def\nB,2 Main St\n"},
		{"missing column", "Name,Street Address,City,Zip,Latitude\nA,1 Main St,City,1,40\n"},
		{"case sensitive", "name,street address,city,zip,latitude,longitude\nA,1 Main St,City,1,40,-73\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target := &fakeTarget{}
			_, err := New(target).ImportIfEmpty(NewCSVReader(strings.NewReader(tc.data)))
			assert.ErrorIs(t, err, geoerr.ErrEmptyOrMalformedSource)
			assert.Equal(t, geoerr.KindEmptyOrMalformedSource, geoerr.KindOf(err))
			assert.Empty(t, target.inserted)
		})
	}
}

func TestImportPropagatesTargetFailure(t *testing.T) {
	target := &fakeTarget{err: geoerr.ErrStorageUnavailable}
	_, err := New(target).Import(NewCSVReader(strings.NewReader(validCSV)))
	assert.ErrorIs(t, err, geoerr.ErrStorageUnavailable)
}

func TestImportStripsBOMAndReordersColumns(t *testing.T) {
	data := "\ufeffLongitude,Latitude,Zip,City,Street Address,Name\n" +
		"-73.9857,40.7484,12345,Springfield,1 Main St,Store A\n"

	target := &fakeTarget{}
	res, err := New(target).Import(NewCSVReader(strings.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, "Store A", target.inserted[0].Name)
	assert.Equal(t, models.GeoPoint{Lat: 40.7484, Lon: -73.9857}, *target.inserted[0].Address.Location)
}

func TestImportRecoversFromParseErrors(t *testing.T) {
	data := header +
		"Good,1 Main St,City,1,40.7484,-73.9857\n" +
		"Bad \"quote,1 Main St,City,1,40.7484,-73.9857\n" +
		"Also good,2 Main St,City,1,40.75,-73.99\n"

	target := &fakeTarget{}
	res, err := New(target).Import(NewCSVReader(strings.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Rejected)
}

type failingReader struct{ rows int }

func (f *failingReader) Read() ([]string, error) {
	if f.rows == 0 {
		f.rows++
		return strings.Split(strings.TrimSpace(header), ","), nil
	}
	return nil, errors.New("disk on fire")
}

func TestImportAbortsOnReadFailure(t *testing.T) {
	_, err := New(&fakeTarget{}).Import(&failingReader{})
	assert.ErrorIs(t, err, geoerr.ErrEmptyOrMalformedSource)
}

func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestImportXLSX(t *testing.T) {
	data := writeWorkbook(t, "Stores", [][]interface{}{
		{"Name", "Street Address", "City", "Zip", "Latitude", "Longitude"},
		{"Store A", "1 Main St", "Springfield", "12345", 40.7484, -73.9857},
		{"Store B", "2 Main St", "Springfield", "12345", "not a number", -73.99},
	})

	rows, closer, err := NewXLSXReader(bytes.NewReader(data), "Stores")
	require.NoError(t, err)
	defer closer.Close()

	target := &fakeTarget{}
	res, err := New(target).Import(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, models.GeoPoint{Lat: 40.7484, Lon: -73.9857}, *target.inserted[0].Address.Location)
}

func TestXLSXReaderPadsShortRows(t *testing.T) {
	data := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"Name", "Street Address", "City", "Zip", "Latitude", "Longitude", "Notes"},
		{"Store A", "1 Main St", "Springfield", "12345", 40.7484, -73.9857},
	})

	rows, closer, err := NewXLSXReader(bytes.NewReader(data), "")
	require.NoError(t, err)
	defer closer.Close()

	res, err := New(&fakeTarget{}).Import(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestOpenSource(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "stores.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(validCSV), 0o644))

	src, err := OpenSource(context.Background(), csvPath, SourceOptions{})
	require.NoError(t, err)
	res, err := New(&fakeTarget{}).Import(src)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	require.NoError(t, src.Close())

	xlsxPath := filepath.Join(dir, "stores.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, writeWorkbook(t, "Sheet1", [][]interface{}{
		{"Name", "Street Address", "City", "Zip", "Latitude", "Longitude"},
		{"Store A", "1 Main St", "Springfield", "12345", 40.7484, -73.9857},
	}), 0o644))

	src, err = OpenSource(context.Background(), xlsxPath, SourceOptions{})
	require.NoError(t, err)
	res, err = New(&fakeTarget{}).Import(src)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.NoError(t, src.Close())

	_, err = OpenSource(context.Background(), filepath.Join(dir, "missing.csv"), SourceOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = OpenSource(context.Background(), "s3://bucket-only", SourceOptions{})
	assert.Error(t, err)

	_, err = OpenSource(context.Background(), "s3://bucket/stores.csv", SourceOptions{})
	assert.ErrorContains(t, err, "endpoint")
}
