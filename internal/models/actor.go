package models

// ActorKind replaces the per-role user tables with one discriminator.
type ActorKind string

const (
	ActorBuyer        ActorKind = "buyer"
	ActorOrganization ActorKind = "organization"
	ActorAdmin        ActorKind = "admin"
)

func (k ActorKind) Valid() bool {
	return k == ActorBuyer || k == ActorOrganization || k == ActorAdmin
}

// Actor is whoever is calling into the marketplace.
type Actor struct {
	ID      string    `json:"id"`
	Kind    ActorKind `json:"kind"`
	Blocked bool      `json:"blocked"`
}

func (a Actor) Is(kind ActorKind) bool { return a.Kind == kind }
