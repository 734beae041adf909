package activitypub

import (
	"errors"
	"strings"
)

// Error taxonomy for inbound activity processing. Malformed input and
// signature failures are deterministic rejections; benign no-ops are never
// errors at all, they are Outcomes.
var (
	// ErrMalformedSignatureHeader means the Signature header is missing a
	// required parameter (keyId, headers or signature).
	ErrMalformedSignatureHeader = errors.New("malformed signature header")

	// ErrActorUnresolvable means the signing actor could not be fetched.
	// Logged at info level; remote accounts are deleted routinely.
	ErrActorUnresolvable = errors.New("actor unresolvable")

	// ErrInvalidSignatureEncoding means the signature value is not valid
	// base64.
	ErrInvalidSignatureEncoding = errors.New("invalid signature encoding")

	// ErrInvalidSignature means the RSA-SHA256 check failed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnauthorized means the actor is not allowed to perform the
	// operation, e.g. deleting someone else's post.
	ErrUnauthorized = errors.New("unauthorized")
)

// MissingHeadersError reports every header named in the signature's header
// list that is absent from the request, not just the first one.
type MissingHeadersError struct {
	Names []string
}

func (e *MissingHeadersError) Error() string {
	return "missing signed headers: " + strings.Join(e.Names, ", ")
}

// Outcome is the result of processing an activity. Everything except
// handler errors maps onto a successful HTTP response: at-least-once
// delivery means partners cannot know what state this node already holds,
// so duplicates and unknown vocabulary must not look like faults.
type Outcome int

const (
	// OutcomeAccepted: the activity was applied.
	OutcomeAccepted Outcome = iota
	// OutcomeAlreadyExists: a duplicate delivery; state unchanged.
	OutcomeAlreadyExists
	// OutcomeIgnored: a benign no-op (target not found, not our follow,
	// duplicate undo).
	OutcomeIgnored
	// OutcomeUnhandled: vocabulary this node does not support.
	OutcomeUnhandled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeAlreadyExists:
		return "already exists"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnhandled:
		return "unhandled"
	}
	return "unknown"
}
