package returns

import "github.com/google/uuid"

// ActorKind says on whose behalf an operation runs
type ActorKind string

const (
	ActorCustomer ActorKind = "CUSTOMER"
	ActorShop     ActorKind = "SHOP"
	ActorSystem   ActorKind = "SYSTEM"
	ActorCourier  ActorKind = "COURIER"
)

// IsValid checks if the actor kind is known
func (k ActorKind) IsValid() bool {
	switch k {
	case ActorCustomer, ActorShop, ActorSystem, ActorCourier:
		return true
	}
	return false
}

// Actor is the authenticated caller of an orchestrator operation.
// Customers carry CustomerID, shops carry StoreID.
type Actor struct {
	Kind       ActorKind
	UserID     uuid.UUID
	StoreID    uuid.UUID
	CustomerID uuid.UUID
}

// SystemActor is used for deadline firings and other internal triggers
var SystemActor = Actor{Kind: ActorSystem}

// CourierActor is used for tracking updates from the courier
var CourierActor = Actor{Kind: ActorCourier}

// IsCustomerOf reports whether the actor is the customer who opened r
func (a Actor) IsCustomerOf(r *ReturnRequest) bool {
	return a.Kind == ActorCustomer && a.CustomerID != uuid.Nil && a.CustomerID == r.CustomerID
}

// IsShopOf reports whether the actor is the shop that sold the item
func (a Actor) IsShopOf(r *ReturnRequest) bool {
	return a.Kind == ActorShop && a.StoreID != uuid.Nil && a.StoreID == r.StoreID
}

// CanView reports whether the actor may read r
func (a Actor) CanView(r *ReturnRequest) bool {
	return a.Kind == ActorSystem || a.IsCustomerOf(r) || a.IsShopOf(r)
}
