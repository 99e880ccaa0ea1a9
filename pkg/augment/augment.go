// Package augment attaches a "stores nearby" link to customer representations.
package augment

import (
	"github.com/kass/go-store-locator/pkg/models"
)

// RelStoresNearby is the relation the nearby-stores link is attached under
const RelStoresNearby = "stores-nearby"

// DefaultRadius is the search radius encoded in the link
var DefaultRadius = models.Km(50)

// LinkBuilder produces a reference to a radius search without running it
type LinkBuilder interface {
	BuildNearbyLink(point models.GeoPoint, radius models.Distance, host string) string
}

// Link is a HAL link object
type Link struct {
	Href string `json:"href"`
}

// CustomerView is the customer representation returned to clients
type CustomerView struct {
	models.Customer
	Links map[string]Link `json:"_links,omitempty"`
}

// NewCustomerView wraps c with a self link
func NewCustomerView(c models.Customer, self string) CustomerView {
	v := CustomerView{Customer: c}
	if self != "" {
		v.Links = map[string]Link{"self": {Href: self}}
	}
	return v
}

// Augmenter decorates customer views with a nearby-stores link
type Augmenter struct {
	links  LinkBuilder
	radius models.Distance
}

// New creates an augmenter using links to build references
func New(links LinkBuilder) *Augmenter {
	return &Augmenter{links: links, radius: DefaultRadius}
}

// Augment returns a copy of view with the nearby-stores link attached. Views
// whose customer has no located address are returned unchanged. host is the
// originating host; when empty the link is relative.
func (a *Augmenter) Augment(view CustomerView, host string) CustomerView {
	addr := view.Address
	if addr == nil || addr.Location == nil {
		return view
	}

	out := view
	out.Links = make(map[string]Link, len(view.Links)+1)
	for rel, l := range view.Links {
		out.Links[rel] = l
	}
	out.Links[RelStoresNearby] = Link{Href: a.links.BuildNearbyLink(*addr.Location, a.radius, host)}
	return out
}
