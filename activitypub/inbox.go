package activitypub

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/atomine-elektrine/elektrine-sub014/domain"
	"github.com/atomine-elektrine/elektrine-sub014/util"
)

// Collaborator interfaces. The processor accepts interfaces so the sqlite
// store stays swappable and handlers stay testable against fakes.

type AccountStore interface {
	AccountByUsername(username string) (*domain.Account, error)
	AccountById(id uuid.UUID) (*domain.Account, error)
}

type PostStore interface {
	PostByActivityPubId(apId string) (*domain.Post, error)
	PostById(id uuid.UUID) (*domain.Post, error)
	CreatePost(post *domain.Post) error
	TombstonePost(id uuid.UUID) error
	PollByPostId(postId uuid.UUID) (*domain.Poll, error)
	RecordVote(pollId, optionId uuid.UUID) error
}

type RelationshipStore interface {
	CreateRelationship(rel *domain.Relationship) error
	RelationshipByActivityURI(activityURI string) (*domain.Relationship, error)
	AcceptRelationship(id uuid.UUID) error
	DeleteRelationship(id uuid.UUID) error
	DeleteRelationshipByPair(actorURI string, targetId uuid.UUID) (bool, error)
	RelaySubscriptionByActivityURI(activityURI string) (*domain.RelaySubscription, error)
	RelaySubscriptionByRelayURI(relayURI string) (*domain.RelaySubscription, error)
	SetRelaySubscriptionState(id uuid.UUID, state string) error
}

type ReactionStore interface {
	CreateReaction(r *domain.Reaction) error
	DeleteReaction(actorURI string, postId uuid.UUID, kind domain.ReactionKind) (bool, error)
	CreateBoost(b *domain.Boost) error
	DeleteBoost(actorURI string, postId uuid.UUID) (bool, error)
}

type NotificationStore interface {
	CreateNotification(n *domain.Notification) error
}

type ActivityLog interface {
	LogActivity(rec *domain.ActivityRecord) error
}

// Store aggregates everything the handlers persist through.
type Store interface {
	AccountStore
	PostStore
	RelationshipStore
	ReactionStore
	NotificationStore
	ActivityLog
}

// Deliverer sends follow responses; consumed fire-and-forget.
type Deliverer interface {
	SendAccept(account *domain.Account, remote *domain.RemoteActor, followURI string) error
	SendReject(account *domain.Account, remote *domain.RemoteActor, followURI string) error
}

// ObjectFetcher retrieves a remote object for Announce mirroring.
type ObjectFetcher interface {
	FetchObject(uri string) (*Object, error)
}

// Processor applies inbound activities to local state.
type Processor struct {
	conf    *util.AppConfig
	store   Store
	actors  *Resolver
	tasks   *TaskRunner
	deliver Deliverer
	fetch   ObjectFetcher
}

func NewProcessor(conf *util.AppConfig, store Store, actors *Resolver, tasks *TaskRunner, deliver Deliverer, fetch ObjectFetcher) *Processor {
	return &Processor{
		conf:    conf,
		store:   store,
		actors:  actors,
		tasks:   tasks,
		deliver: deliver,
		fetch:   fetch,
	}
}

type route struct {
	activity string
	object   string
}

type handlerFunc func(p *Processor, act *Activity, sender *domain.RemoteActor) (Outcome, error)

// routes is the dispatch table over (activity type, embedded object type).
// "" matches activities whose object is a bare URI or whose object type is
// irrelevant. Anything absent here is unhandled vocabulary, which is an
// outcome, never an error.
var routes = map[route]handlerFunc{
	{"Create", "Note"}:     (*Processor).handleCreatePost,
	{"Create", "Page"}:     (*Processor).handleCreatePost,
	{"Create", "Article"}:  (*Processor).handleCreatePost,
	{"Create", "Question"}: (*Processor).handleCreatePoll,
	{"Create", "Answer"}:   (*Processor).handleCreateVote,

	{"Follow", ""}: (*Processor).handleFollow,

	{"Accept", "Follow"}: (*Processor).handleAccept,
	{"Accept", ""}:       (*Processor).handleAccept,
	{"Reject", "Follow"}: (*Processor).handleReject,
	{"Reject", ""}:       (*Processor).handleReject,

	{"Undo", "Follow"}:     (*Processor).handleUndoFollow,
	{"Undo", "Like"}:       (*Processor).handleUndoReaction,
	{"Undo", "Dislike"}:    (*Processor).handleUndoReaction,
	{"Undo", "EmojiReact"}: (*Processor).handleUndoReaction,
	{"Undo", "Announce"}:   (*Processor).handleUndoAnnounce,

	{"Like", ""}:       (*Processor).handleLike,
	{"Dislike", ""}:    (*Processor).handleDislike,
	{"EmojiReact", ""}: (*Processor).handleEmojiReact,

	{"Announce", ""}: (*Processor).handleAnnounce,

	{"Delete", ""}: (*Processor).handleDelete,
}

// Process routes an already-authenticated activity to its handler. The
// primary mutation completes (or fails) before this returns; all fan-out
// goes through the task runner.
func (p *Processor) Process(act *Activity, sender *domain.RemoteActor) (Outcome, error) {
	if act.ID != "" {
		rec := &domain.ActivityRecord{
			Id:           uuid.New(),
			ActivityURI:  act.ID,
			ActivityType: act.Type,
			ActorURI:     act.Actor,
			ObjectURI:    act.ObjectURI(),
			RawJSON:      string(act.Raw),
			CreatedAt:    time.Now(),
		}
		if err := p.store.LogActivity(rec); err != nil {
			log.Warnf("Inbox: failed to log activity %s: %v", act.ID, err)
		}
	}

	handler, ok := routes[route{act.Type, act.ObjectType()}]
	if !ok {
		handler, ok = routes[route{act.Type, ""}]
	}
	if !ok {
		log.Infof("Inbox: unhandled activity %s/%s from %s", act.Type, act.ObjectType(), act.Actor)
		return OutcomeUnhandled, nil
	}

	return handler(p, act, sender)
}

// localAccountForURI maps an actor URI on this node's domain to its
// account row; nil for foreign URIs or unknown accounts.
func (p *Processor) localAccountForURI(uri string) *domain.Account {
	username, ok := p.localUsername(uri)
	if !ok {
		return nil
	}
	acc, err := p.store.AccountByUsername(username)
	if err != nil {
		return nil
	}
	return acc
}

func (p *Processor) localUsername(uri string) (string, bool) {
	prefix := "https://" + p.conf.Conf.Domain + "/users/"
	if !strings.HasPrefix(uri, prefix) {
		return "", false
	}
	name := uri[len(prefix):]
	if name == "" || strings.ContainsRune(name, '/') {
		return "", false
	}
	return name, true
}
