package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.com/kass/go-store-locator/pkg/augment"
	"github.com/kass/go-store-locator/pkg/geoerr"
	"github.com/kass/go-store-locator/pkg/models"
)

const (
	defaultNearestCount = 10
	forwardedHostHeader = "X-Forwarded-Host"
)

type handlers struct {
	deps Deps
}

type storesResponse struct {
	Stores []models.StoreSummary `json:"stores"`
	Total  int                   `json:"total"`
	Offset int                   `json:"offset"`
	Limit  int                   `json:"limit"`
}

func summaries(hits []models.StoreHit) []models.StoreSummary {
	out := make([]models.StoreSummary, len(hits))
	for i, h := range hits {
		out[i] = models.SummaryOf(h)
	}
	return out
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"success": true}
	if h.deps.Stats != nil {
		stats, err := h.deps.Stats.Stats()
		if err != nil {
			RespondKindError(w, err)
			return
		}
		body["index"] = stats
	}
	RespondJSON(w, http.StatusOK, body)
}

// storesByLocation serves the radius search. The point is given either as
// location=<a>,<b> or as separate lat and lng parameters.
func (h *handlers) storesByLocation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw := q.Get("distance")
	if raw == "" {
		RespondKindError(w, errors.Wrap(geoerr.ErrInvalidQuery, "distance is required"))
		return
	}
	radius, err := models.ParseDistance(raw)
	if err != nil {
		RespondKindError(w, err)
		return
	}
	page, err := GetOffsetLimit(r)
	if err != nil {
		RespondKindError(w, err)
		return
	}

	var res *models.Page
	if location := q.Get("location"); location != "" {
		res, err = h.deps.Stores.FindNear(location, radius, page)
	} else {
		var point models.GeoPoint
		point, err = pointFromParams(q.Get("lat"), q.Get("lng"))
		if err == nil {
			res, err = h.deps.Stores.FindNearPoint(point, radius, page)
		}
	}
	if err != nil {
		RespondKindError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, storesResponse{
		Stores: summaries(res.Items),
		Total:  res.Total,
		Offset: res.Offset,
		Limit:  res.Limit,
	})
}

func pointFromParams(lat, lng string) (models.GeoPoint, error) {
	if lat == "" || lng == "" {
		return models.GeoPoint{}, errors.Wrap(geoerr.ErrMalformedInput, "either location or both lat and lng are required")
	}
	latV, err := parseFinite(lat)
	if err != nil {
		return models.GeoPoint{}, err
	}
	lngV, err := parseFinite(lng)
	if err != nil {
		return models.GeoPoint{}, err
	}
	return models.NewGeoPoint(lngV, latV)
}

// parseFinite rejects NaN and Inf the same way the location normalizer does
func parseFinite(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, geoerr.NewNonNumericError(raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, geoerr.NewNonNumericError(raw, nil)
	}
	return v, nil
}

func (h *handlers) nearestStores(w http.ResponseWriter, r *http.Request) {
	n := defaultNearestCount
	if v := r.URL.Query().Get("n"); v != "" {
		var err error
		if n, err = strconv.Atoi(v); err != nil {
			RespondKindError(w, errors.Wrapf(geoerr.ErrInvalidQuery, "n %q is not a number", v))
			return
		}
	}

	hits, err := h.deps.Stores.Nearest(r.URL.Query().Get("location"), n)
	if err != nil {
		RespondKindError(w, err)
		return
	}
	if n > models.MaxPageLimit {
		n = models.MaxPageLimit
	}
	RespondJSON(w, http.StatusOK, storesResponse{
		Stores: summaries(hits),
		Total:  len(hits),
		Limit:  n,
	})
}

func (h *handlers) createStore(w http.ResponseWriter, r *http.Request) {
	var body models.Store
	if err := ParseBody(r.Body, &body); err != nil {
		RespondError(w, http.StatusBadRequest, err, "Failed to parse request body")
		return
	}
	body.ID = ""

	created, err := h.deps.Stores.AddStore(body)
	if err != nil {
		RespondKindError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

func (h *handlers) countStores(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Stores.Count()
	if err != nil {
		RespondKindError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *handlers) customerView(c models.Customer, r *http.Request) augment.CustomerView {
	view := augment.NewCustomerView(c, "/api/customers/"+c.ID)
	if h.deps.Augmenter == nil {
		return view
	}
	return h.deps.Augmenter.Augment(view, r.Header.Get(forwardedHostHeader))
}

func (h *handlers) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Customers.Get(chi.URLParam(r, "id"))
	if err != nil {
		RespondKindError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, h.customerView(c, r))
}

func (h *handlers) listCustomers(w http.ResponseWriter, r *http.Request) {
	list := h.deps.Customers.List()
	views := make([]augment.CustomerView, len(list))
	for i, c := range list {
		views[i] = h.customerView(c, r)
	}
	RespondJSON(w, http.StatusOK, views)
}

func (h *handlers) createCustomer(w http.ResponseWriter, r *http.Request) {
	var body models.Customer
	if err := ParseBody(r.Body, &body); err != nil {
		RespondError(w, http.StatusBadRequest, err, "Failed to parse request body")
		return
	}

	created, err := h.deps.Customers.Create(body)
	if err != nil {
		RespondKindError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, h.customerView(created, r))
}
