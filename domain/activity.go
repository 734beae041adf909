package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityRecord logs an inbound activity for deduplication and debugging.
type ActivityRecord struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	CreatedAt    time.Time
}
