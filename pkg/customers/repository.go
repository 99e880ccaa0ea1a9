// Package customers is an in-memory customer store backing the customer endpoints.
package customers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

// Repository holds customers keyed by ID
type Repository struct {
	mu        sync.RWMutex
	customers map[string]models.Customer
}

// NewRepository creates an empty repository
func NewRepository() *Repository {
	return &Repository{customers: make(map[string]models.Customer)}
}

func clone(c models.Customer) models.Customer {
	if c.Address != nil {
		addr := c.Address.Clone()
		c.Address = &addr
	}
	return c
}

// Create stores c under a fresh ID
func (r *Repository) Create(c models.Customer) (models.Customer, error) {
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return models.Customer{}, fmt.Errorf("%w: customer needs a name", geoerr.ErrInvalidRecord)
	}
	if c.Address != nil && c.Address.Location != nil && !c.Address.Location.Valid() {
		return models.Customer{}, fmt.Errorf("%w: customer location out of bounds", geoerr.ErrInvalidRecord)
	}

	c = clone(c)
	c.ID = uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[c.ID] = c
	return clone(c), nil
}

// Get returns the customer with id
func (r *Repository) Get(id string) (models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return models.Customer{}, fmt.Errorf("%w: customer %s", geoerr.ErrNotFound, id)
	}
	return clone(c), nil
}

// List returns all customers ordered by last and first name
func (r *Repository) List() []models.Customer {
	r.mu.RLock()
	out := make([]models.Customer, 0, len(r.customers))
	for _, c := range r.customers {
		out = append(out, clone(c))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID < out[j].ID
	})
	return out
}
