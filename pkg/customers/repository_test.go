package customers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

func TestRepository(t *testing.T) {
	repo := NewRepository()

	in := models.Customer{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Address:   &models.Address{City: "London", Location: &models.GeoPoint{Lat: 51.5, Lon: -0.12}},
	}
	created, err := repo.Create(in)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, in.ID)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Callers cannot reach the stored copy
	got.Address.Location.Lat = 0
	again, _ := repo.Get(created.ID)
	assert.Equal(t, 51.5, again.Address.Location.Lat)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, geoerr.ErrNotFound)
}

func TestRepositoryRejectsInvalidCustomers(t *testing.T) {
	repo := NewRepository()

	_, err := repo.Create(models.Customer{})
	assert.ErrorIs(t, err, geoerr.ErrInvalidRecord)

	_, err = repo.Create(models.Customer{FirstName: "X", Address: &models.Address{Location: &models.GeoPoint{Lat: 100}}})
	assert.ErrorIs(t, err, geoerr.ErrInvalidRecord)
}

func TestList(t *testing.T) {
	repo := NewRepository()
	for _, name := range [][2]string{{"Grace", "Hopper"}, {"Ada", "Lovelace"}, {"Alan", "Hopper"}} {
		_, err := repo.Create(models.Customer{FirstName: name[0], LastName: name[1]})
		require.NoError(t, err)
	}

	list := repo.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Alan", list[0].FirstName)
	assert.Equal(t, "Grace", list[1].FirstName)
	assert.Equal(t, "Ada", list[2].FirstName)
}
