package dataset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-store-locator/pkg/importer"
	"github.com/kass/go-store-locator/pkg/rtree"
)

func TestRandomStores(t *testing.T) {
	stores := RandomStores(1000, 4, 42)
	require.Len(t, stores, 1000)

	for _, s := range stores {
		require.NotNil(t, s.Address.Location)
		assert.True(t, s.Address.Location.Valid(), "invalid location for %s", s.Name)
		assert.NotEmpty(t, s.Name)
		assert.Len(t, s.Address.Zip, 5)
	}

	assert.Equal(t, stores, RandomStores(1000, 4, 42), "same seed and workers must give the same dataset")
}

func TestRandomStoresEdgeCases(t *testing.T) {
	assert.Empty(t, RandomStores(0, 4, 1))
	assert.Len(t, RandomStores(3, 16, 1), 3)
	assert.Len(t, RandomStores(10, 0, 1), 10)
}

func TestWritersRoundTripThroughImporter(t *testing.T) {
	stores := RandomStores(250, 2, 7)

	tests := []struct {
		name  string
		write func(*bytes.Buffer) error
		open  func([]byte) (importer.RowReader, error)
	}{
		{
			name:  "csv",
			write: func(b *bytes.Buffer) error { return WriteCSV(b, stores) },
			open: func(data []byte) (importer.RowReader, error) {
				return importer.NewCSVReader(bytes.NewReader(data)), nil
			},
		},
		{
			name:  "xlsx",
			write: func(b *bytes.Buffer) error { return WriteXLSX(b, "", stores) },
			open: func(data []byte) (importer.RowReader, error) {
				rows, closer, err := importer.NewXLSXReader(bytes.NewReader(data), "")
				if err != nil {
					return nil, err
				}
				t.Cleanup(func() { closer.Close() })
				return rows, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, tt.write(&buf))

			rows, err := tt.open(buf.Bytes())
			require.NoError(t, err)

			index := rtree.NewGeoIndexWithPartitions(4)
			res, err := importer.New(index).Import(rows)
			require.NoError(t, err)
			assert.Equal(t, len(stores), res.Imported)
			assert.Zero(t, res.Rejected)

			count, err := index.Count()
			require.NoError(t, err)
			assert.Equal(t, int64(len(stores)), count)

			hits, err := index.Nearest(*stores[0].Address.Location, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.InDelta(t, 0, hits[0].Distance, 1e-6)
		})
	}
}
