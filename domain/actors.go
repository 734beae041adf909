package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActorKind is the ActivityStreams type of an actor.
type ActorKind string

const (
	ActorPerson  ActorKind = "Person"
	ActorGroup   ActorKind = "Group"
	ActorService ActorKind = "Service"
)

// Account represents a local user or group actor.
type Account struct {
	Id               uuid.UUID
	Username         string
	Kind             ActorKind
	ManuallyApproves bool
	PublicKeyPem     string
	PrivateKeyPem    string
	CreatedAt        time.Time
}

// RemoteActor represents a cached federated identity. Created or refreshed
// lazily on first reference; FetchedAt drives cache expiry.
type RemoteActor struct {
	Id             uuid.UUID
	Username       string
	Domain         string
	URI            string
	Kind           ActorKind
	DisplayName    string
	InboxURI       string
	SharedInboxURI string
	PublicKeyPem   string
	FetchedAt      time.Time
}

// IsRelay reports whether this actor looks like a pure distribution relay.
// Relays re-broadcast without endorsement, so their Announces carry no boost
// semantics.
func (a *RemoteActor) IsRelay() bool {
	if a.Kind == ActorService && a.Username == "relay" {
		return true
	}
	return a.Kind == ActorService && (hasPathSuffix(a.URI, "/relay") || hasPathSuffix(a.URI, "/actor"))
}

// IsGroup reports whether this actor is a group/community mirror.
func (a *RemoteActor) IsGroup() bool {
	return a.Kind == ActorGroup
}

func hasPathSuffix(uri, suffix string) bool {
	return len(uri) >= len(suffix) && uri[len(uri)-len(suffix):] == suffix
}
