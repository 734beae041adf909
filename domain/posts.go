package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility of a federated post, derived from the public-collection URI's
// position in the activity's to/cc lists.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityUnlisted  Visibility = "unlisted"
	VisibilityFollowers Visibility = "followers"
)

// Post is the local representation of a federated Note/Page/Article/Question.
// ActivityPubId is globally unique; a second Create for the same id is a
// no-op, not an error.
type Post struct {
	Id            uuid.UUID
	ActivityPubId string
	AuthorURI     string
	Content       string
	Visibility    Visibility
	InReplyToId   *uuid.UUID
	QuoteOfId     *uuid.UUID
	Hashtags      []string
	Attachments   []string
	Poll          *Poll
	DeletedAt     *time.Time
	CreatedAt     time.Time
}

// Tombstoned reports whether the post has been soft-deleted.
func (p *Post) Tombstoned() bool {
	return p.DeletedAt != nil
}

// Poll holds the question attached to a Question post. VotesTotal is
// maintained with atomic counter updates, never read-modify-write.
type Poll struct {
	Id         uuid.UUID
	PostId     uuid.UUID
	Multiple   bool
	ClosesAt   *time.Time
	VotesTotal int
	Options    []PollOption
}

// Closed reports whether the poll no longer accepts votes.
func (p *Poll) Closed(now time.Time) bool {
	return p.ClosesAt != nil && now.After(*p.ClosesAt)
}

// OptionByName finds an option by case- and space-insensitive name match.
func (p *Poll) OptionByName(name string) *PollOption {
	want := foldOption(name)
	for i := range p.Options {
		if foldOption(p.Options[i].Name) == want {
			return &p.Options[i]
		}
	}
	return nil
}

type PollOption struct {
	Id       uuid.UUID
	PollId   uuid.UUID
	Name     string
	Position int
	Votes    int
}

func foldOption(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
