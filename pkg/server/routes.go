// Package server exposes the store locator over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"golang.org/x/time/rate"

	"github.com/kass/go-store-locator/pkg/augment"
	"github.com/kass/go-store-locator/pkg/models"
)

// StoreService is the proximity query API the handlers call
type StoreService interface {
	FindNear(rawLocation string, radius models.Distance, page models.PageRequest) (*models.Page, error)
	FindNearPoint(point models.GeoPoint, radius models.Distance, page models.PageRequest) (*models.Page, error)
	Nearest(rawLocation string, n int) ([]models.StoreHit, error)
	AddStore(s models.Store) (models.Store, error)
	Count() (int64, error)
}

// CustomerStore is the customer collaborator
type CustomerStore interface {
	Create(c models.Customer) (models.Customer, error)
	Get(id string) (models.Customer, error)
	List() []models.Customer
}

// StatsProvider is implemented by index backends that can describe themselves
type StatsProvider interface {
	Stats() (map[string]interface{}, error)
}

// Deps are the collaborators the routes are wired to
type Deps struct {
	Stores         StoreService
	Customers      CustomerStore
	Augmenter      *augment.Augmenter
	Stats          StatsProvider
	StoresBasePath string
	Limiter        *rate.Limiter
}

type Server struct {
	chi.Router

	mu         sync.Mutex
	httpServer *http.Server
}

// SetupRoutes provides all the routes that can be used
func SetupRoutes(deps Deps) *Server {
	h := &handlers{deps: deps}
	basePath := deps.StoresBasePath
	if basePath == "" {
		basePath = "/api/stores"
	}

	router := chi.NewRouter()
	router.Use(CommonMiddlewares(deps.Limiter)...)

	// health endpoint
	router.Get("/api/health", h.health)

	router.Route(basePath, func(r chi.Router) {
		r.Post("/", h.createStore)
		r.Get("/count", h.countStores)
		r.Route("/search", func(search chi.Router) {
			search.Get("/by-location", h.storesByLocation)
			search.Get("/nearest", h.nearestStores)
		})
	})

	router.Route("/api/customers", func(r chi.Router) {
		r.Get("/", h.listCustomers)
		r.Post("/", h.createCustomer)
		r.Get("/{id}", h.getCustomer)
	})

	return &Server{Router: router}
}

// Run listens on addr until Shutdown is called
func (svc *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           svc,
		ReadHeaderTimeout: 10 * time.Second,
	}
	svc.mu.Lock()
	svc.httpServer = srv
	svc.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (svc *Server) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	srv := svc.httpServer
	svc.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
