package domain

import (
	"time"

	"github.com/google/uuid"
)

// Relationship represents a follow between a remote actor and a local
// account. At most one row exists per (actor, target) pair; ActivityURI is
// the originating Follow activity id, kept so Accept/Reject can be
// correlated later.
type Relationship struct {
	Id          uuid.UUID
	ActorURI    string
	TargetId    uuid.UUID
	ActivityURI string
	Pending     bool
	CreatedAt   time.Time
}

// RelaySubscription tracks this node's outstanding follow of a relay actor.
type RelaySubscription struct {
	Id          uuid.UUID
	RelayURI    string
	ActivityURI string
	State       string // pending, accepted, rejected
	CreatedAt   time.Time
}

const (
	RelayPending  = "pending"
	RelayAccepted = "accepted"
	RelayRejected = "rejected"
)

// ReactionKind distinguishes likes, dislikes and emoji reactions.
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
	ReactionEmoji   ReactionKind = "emoji"
)

// Reaction is unique per (actor, post, kind). Emoji reactions additionally
// carry the reaction text and a resolved custom-emoji image URL.
type Reaction struct {
	Id        uuid.UUID
	ActorURI  string
	PostId    uuid.UUID
	Kind      ReactionKind
	Content   string
	EmojiURL  string
	CreatedAt time.Time
}

// Boost records an Announce of a local post. Unique per (actor, post).
type Boost struct {
	Id        uuid.UUID
	ActorURI  string
	PostId    uuid.UUID
	CreatedAt time.Time
}

// Notification is written by background fan-out only, never on the critical
// inbox path.
type Notification struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	ActorURI  string
	Kind      string // follow, reply, mention, reaction, boost, poll_vote
	PostId    *uuid.UUID
	CreatedAt time.Time
}
